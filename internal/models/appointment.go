package models

import (
	"time"
)

// AppointmentStatus represents the status of an appointment
type AppointmentStatus string

const (
	StatusUnapproved AppointmentStatus = "UNAPPROVED"
	StatusApproved   AppointmentStatus = "APPROVED"
	StatusRejected   AppointmentStatus = "REJECTED"
	StatusClosed     AppointmentStatus = "CLOSED"
)

// Valid reports whether s is a known status.
func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusUnapproved, StatusApproved, StatusRejected, StatusClosed:
		return true
	}
	return false
}

// AppointmentType represents what kind of visit is booked
type AppointmentType string

const (
	TypeOnsiteConsultation  AppointmentType = "ONSITE_CONSULTATION"
	TypeOnsiteTests         AppointmentType = "ONSITE_TESTS"
	TypeVirtualConsultation AppointmentType = "VIRTUAL_CONSULTATION"
)

// Valid reports whether t is a known appointment type.
func (t AppointmentType) Valid() bool {
	switch t {
	case TypeOnsiteConsultation, TypeOnsiteTests, TypeVirtualConsultation:
		return true
	}
	return false
}

// DateLayout and TimeLayout are the accepted slot formats.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Appointment represents a booked slot between a patient and a professional.
// (date, time, professional_id) is unique.
type Appointment struct {
	BaseModel
	Date           time.Time         `gorm:"type:date;not null;uniqueIndex:idx_appointment_slot,priority:1" json:"date"`
	Time           string            `gorm:"size:5;not null;uniqueIndex:idx_appointment_slot,priority:2" json:"time"`
	ProfessionalID string            `gorm:"size:36;not null;index;uniqueIndex:idx_appointment_slot,priority:3" json:"-"`
	PatientID      string            `gorm:"size:36;not null;index" json:"-"`
	Duration       int               `gorm:"not null" json:"duration"`
	Subject        string            `gorm:"type:text" json:"subject"`
	Type           AppointmentType   `gorm:"size:30;not null" json:"type"`
	Status         AppointmentStatus `gorm:"size:20;not null;default:'UNAPPROVED'" json:"status"`
	HasBeenBilled  bool              `gorm:"not null;default:false" json:"hasBeenBilled"`
	Amount         *float64          `json:"amount"`
	PaymentID      *string           `gorm:"size:255" json:"paymentId"`
	TestFile       *string           `gorm:"size:255" json:"testFile"`
	TestSummary    *string           `gorm:"type:text" json:"testSummary"`
	DateBilled     *time.Time        `json:"dateBilled"`
	HasReview      bool              `gorm:"not null;default:false" json:"hasReview"`

	// Relations
	Professional User `gorm:"foreignKey:ProfessionalID" json:"-"`
	Patient      User `gorm:"foreignKey:PatientID" json:"-"`
}

// AppointmentView is an appointment with both parties projected to their
// minimal identity.
type AppointmentView struct {
	Appointment
	Professional *UserRef `json:"professional"`
	Patient      *UserRef `json:"patient"`
}

// View builds the response projection of a.
func (a *Appointment) View() AppointmentView {
	view := AppointmentView{Appointment: *a}
	view.Professional = a.Professional.Ref()
	if view.Professional == nil {
		view.Professional = &UserRef{ID: a.ProfessionalID}
	}
	view.Patient = a.Patient.Ref()
	if view.Patient == nil {
		view.Patient = &UserRef{ID: a.PatientID}
	}
	return view
}

// IsParty reports whether userID is the patient or the professional.
func (a *Appointment) IsParty(userID string) bool {
	return userID != "" && (a.PatientID == userID || a.ProfessionalID == userID)
}

// AppointmentGuard is the state a conditional update expects to find. Zero
// fields place no condition.
type AppointmentGuard struct {
	// Status must still be the stored status.
	Status AppointmentStatus
	// NoPayment requires that no payment intent is attached.
	NoPayment bool
}

// IsZero reports whether g places no condition.
func (g AppointmentGuard) IsZero() bool {
	return g.Status == "" && !g.NoPayment
}

// PaymentPending reports whether a checkout started and was not billed yet.
func (a *Appointment) PaymentPending() bool {
	return !a.HasBeenBilled && a.PaymentID != nil && *a.PaymentID != ""
}
