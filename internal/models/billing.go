package models

// BillingSummary aggregates billed appointments for one patient and
// professional pair.
type BillingSummary struct {
	PatientID        string  `json:"patient"`
	ProfessionalID   string  `json:"professional"`
	TotalPayments    float64 `json:"totalPayments"`
	AppointmentCount int64   `json:"appointmentCount"`
}

// PaymentFilter narrows the payment summary to one pair. An empty filter
// asks for the grouped report.
type PaymentFilter struct {
	PatientID      string
	ProfessionalID string
}

// IsEmpty reports whether no pair was given.
func (f PaymentFilter) IsEmpty() bool {
	return f.PatientID == "" && f.ProfessionalID == ""
}
