package models

// Review is a patient's rating of a professional for one billed appointment
type Review struct {
	BaseModel
	AppointmentID string `gorm:"uniqueIndex;size:36;not null" json:"appointmentId"`
	ForUserID     string `gorm:"size:36;index;not null" json:"forUser"`
	ByUserID      string `gorm:"size:36;index;not null" json:"-"`
	Rating        int    `gorm:"not null" json:"rating"`
	Feedback      string `gorm:"type:text" json:"feedback"`

	ByUser User `gorm:"foreignKey:ByUserID" json:"-"`
}

// ReviewView is a review with its author projected.
type ReviewView struct {
	Review
	ByUser *UserRef `json:"byUser"`
}

// View builds the response projection of r.
func (r *Review) View() ReviewView {
	by := r.ByUser.Ref()
	if by == nil {
		by = &UserRef{ID: r.ByUserID}
	}
	return ReviewView{Review: *r, ByUser: by}
}

// RatingSummary is the average rating of a professional.
type RatingSummary struct {
	Average float64 `json:"average"`
	Count   int64   `json:"count"`
}
