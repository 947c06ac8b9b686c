package models

// MediaKind represents the type of media illustrating a condition
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

// Condition is an entry of the conditions knowledge base
type Condition struct {
	BaseModel
	Name        string     `gorm:"uniqueIndex;size:255;not null" json:"name"`
	Description string     `gorm:"type:text" json:"description"`
	Symptoms    string     `gorm:"type:text" json:"symptoms"`
	Remedies    string     `gorm:"type:text" json:"remedies"`
	Disabled    bool       `gorm:"default:false" json:"disabled"`
	MediaKind   *MediaKind `gorm:"size:10" json:"mediaKind,omitempty"`
	MediaFile   *string    `gorm:"size:255" json:"mediaFile,omitempty"`
	CreatedByID string     `gorm:"size:36;index" json:"createdBy"`
	ThreadID    *string    `gorm:"size:36" json:"threadId,omitempty"`

	Comments []Comment `gorm:"foreignKey:ConditionID;constraint:OnDelete:CASCADE" json:"-"`
}

// Comment is a user remark on a condition
type Comment struct {
	BaseModel
	ConditionID string `gorm:"size:36;index;not null" json:"conditionId"`
	UserID      string `gorm:"size:36;index;not null" json:"-"`
	Body        string `gorm:"type:text;not null" json:"body"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}

// CommentView is a comment with its author projected.
type CommentView struct {
	Comment
	User *UserRef `json:"user"`
}

// View builds the response projection of c.
func (c *Comment) View() CommentView {
	user := c.User.Ref()
	if user == nil {
		user = &UserRef{ID: c.UserID}
	}
	return CommentView{Comment: *c, User: user}
}
