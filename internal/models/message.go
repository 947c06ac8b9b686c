package models

import (
	"time"
)

// MessageStatus represents the status of a message
type MessageStatus string

const (
	MessageStatusSent MessageStatus = "sent"
	MessageStatusRead MessageStatus = "read"
)

// Thread groups messages. A thread without participants is public.
type Thread struct {
	BaseModel
	Name          string  `gorm:"size:255" json:"name"`
	Public        bool    `gorm:"default:false;index" json:"public"`
	LastMessageID *string `gorm:"size:36" json:"lastMessageId,omitempty"`

	// Relations
	Participants []User `gorm:"many2many:thread_participants" json:"-"`
}

// ThreadView is a thread with its participants projected.
type ThreadView struct {
	Thread
	Participants []UserRef `json:"participants"`
}

// HasParticipant reports whether userID takes part in the thread.
func (t *Thread) HasParticipant(userID string) bool {
	for _, p := range t.Participants {
		if p.ID == userID {
			return true
		}
	}
	return false
}

// View builds the response projection of t.
func (t *Thread) View() ThreadView {
	refs := make([]UserRef, 0, len(t.Participants))
	for i := range t.Participants {
		refs = append(refs, *t.Participants[i].Ref())
	}
	return ThreadView{Thread: *t, Participants: refs}
}

// Message represents a message posted to a thread
type Message struct {
	BaseModel
	ThreadID    string        `gorm:"size:36;index;not null" json:"threadId"`
	SenderID    string        `gorm:"size:36;index;not null" json:"senderId"`
	RecipientID *string       `gorm:"size:36;index" json:"recipientId,omitempty"`
	Body        string        `gorm:"type:text;not null" json:"body"`
	Status      MessageStatus `gorm:"size:20;default:'sent'" json:"status"`
	ReadAt      *time.Time    `json:"readAt,omitempty"`
}
