package repository

import (
	"context"
	"time"

	"careconnect-server/internal/models"

	"gorm.io/gorm"
)

const (
	msgAppointmentNotFound = "Appointment not found"
	msgSlotOccupied        = "Selected time slot is occupied."
)

// AppointmentRepository persists appointments with gorm.
type AppointmentRepository struct {
	DB *gorm.DB
}

// NewAppointmentRepository creates a new AppointmentRepository.
func NewAppointmentRepository(db *gorm.DB) *AppointmentRepository {
	return &AppointmentRepository{DB: db}
}

func (r *AppointmentRepository) withParties(ctx context.Context) *gorm.DB {
	return r.DB.WithContext(ctx).
		Preload("Professional", selectRef).
		Preload("Patient", selectRef)
}

func selectRef(db *gorm.DB) *gorm.DB {
	return db.Select("id", "full_name")
}

// Create inserts a new appointment. A concurrent booking of the same slot
// trips idx_appointment_slot and comes back as a conflict.
func (r *AppointmentRepository) Create(ctx context.Context, appointment *models.Appointment) error {
	return translate(r.DB.WithContext(ctx).Create(appointment).Error, msgAppointmentNotFound, msgSlotOccupied)
}

// SlotTaken reports whether another appointment already holds the slot.
func (r *AppointmentRepository) SlotTaken(ctx context.Context, date time.Time, slotTime, professionalID, excludeID string) (bool, error) {
	query := r.DB.WithContext(ctx).Model(&models.Appointment{}).
		Where("date = ? AND time = ? AND professional_id = ?", date.Format(models.DateLayout), slotTime, professionalID)
	if excludeID != "" {
		query = query.Where("id <> ?", excludeID)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, translate(err, msgAppointmentNotFound, msgSlotOccupied)
	}
	return count > 0, nil
}

// FindByID loads an appointment with both parties.
func (r *AppointmentRepository) FindByID(ctx context.Context, id string) (*models.Appointment, error) {
	var appointment models.Appointment
	if err := r.withParties(ctx).First(&appointment, "id = ?", id).Error; err != nil {
		return nil, translate(err, msgAppointmentNotFound, msgSlotOccupied)
	}
	return &appointment, nil
}

// FindForUser lists appointments where the user is patient or professional.
func (r *AppointmentRepository) FindForUser(ctx context.Context, userID string) ([]models.Appointment, error) {
	var appointments []models.Appointment
	err := r.withParties(ctx).
		Where("professional_id = ? OR patient_id = ?", userID, userID).
		Order("date desc, time desc").
		Find(&appointments).Error
	return appointments, translate(err, msgAppointmentNotFound, msgSlotOccupied)
}

// Update applies fields to the appointment when it still matches guard. It
// reports false when a concurrent write changed the guarded state first.
func (r *AppointmentRepository) Update(ctx context.Context, id string, guard models.AppointmentGuard, fields map[string]interface{}) (bool, error) {
	query := r.DB.WithContext(ctx).Model(&models.Appointment{}).Where("id = ?", id)
	if guard.Status != "" {
		query = query.Where("status = ?", guard.Status)
	}
	if guard.NoPayment {
		query = query.Where("payment_id IS NULL AND has_been_billed = ?", false)
	}
	result := query.Updates(fields)
	if result.Error != nil {
		return false, translate(result.Error, msgAppointmentNotFound, msgSlotOccupied)
	}
	return guard.IsZero() || result.RowsAffected == 1, nil
}

// AttachPayment records a pending payment intent. It only succeeds while no
// other intent is attached and the appointment is unbilled.
func (r *AppointmentRepository) AttachPayment(ctx context.Context, id, paymentID string) (bool, error) {
	result := r.DB.WithContext(ctx).Model(&models.Appointment{}).
		Where("id = ? AND payment_id IS NULL AND has_been_billed = ?", id, false).
		Update("payment_id", paymentID)
	if result.Error != nil {
		return false, translate(result.Error, msgAppointmentNotFound, msgSlotOccupied)
	}
	return result.RowsAffected == 1, nil
}

// SwapPayment replaces the pending intent oldID with newID. It fails when
// another caller swapped or billed first.
func (r *AppointmentRepository) SwapPayment(ctx context.Context, id, oldID, newID string) (bool, error) {
	result := r.DB.WithContext(ctx).Model(&models.Appointment{}).
		Where("id = ? AND payment_id = ? AND has_been_billed = ?", id, oldID, false).
		Update("payment_id", newID)
	if result.Error != nil {
		return false, translate(result.Error, msgAppointmentNotFound, msgSlotOccupied)
	}
	return result.RowsAffected == 1, nil
}

// MarkBilled flips has_been_billed for the confirmed intent. Only one caller
// can observe true for a given appointment, and a recorded amount that
// differs from the charged one is never overwritten.
func (r *AppointmentRepository) MarkBilled(ctx context.Context, id, paymentID string, amount float64, billedAt time.Time) (bool, error) {
	result := r.DB.WithContext(ctx).Model(&models.Appointment{}).
		Where("id = ? AND has_been_billed = ? AND payment_id = ?", id, false, paymentID).
		Where("(amount IS NULL OR amount = ?)", amount).
		Updates(map[string]interface{}{
			"has_been_billed": true,
			"amount":          amount,
			"date_billed":     billedAt,
		})
	if result.Error != nil {
		return false, translate(result.Error, msgAppointmentNotFound, msgSlotOccupied)
	}
	return result.RowsAffected == 1, nil
}

// ListBilledByProfessional returns the professional's billed appointments.
func (r *AppointmentRepository) ListBilledByProfessional(ctx context.Context, professionalID string) ([]models.Appointment, error) {
	var appointments []models.Appointment
	err := r.withParties(ctx).
		Where("professional_id = ? AND has_been_billed = ?", professionalID, true).
		Order("date_billed desc").
		Find(&appointments).Error
	return appointments, translate(err, msgAppointmentNotFound, msgSlotOccupied)
}

// ListBilledForPair returns billed appointments matching the filter.
func (r *AppointmentRepository) ListBilledForPair(ctx context.Context, filter models.PaymentFilter) ([]models.Appointment, error) {
	query := r.withParties(ctx).Where("has_been_billed = ?", true)
	if filter.PatientID != "" {
		query = query.Where("patient_id = ?", filter.PatientID)
	}
	if filter.ProfessionalID != "" {
		query = query.Where("professional_id = ?", filter.ProfessionalID)
	}
	var appointments []models.Appointment
	err := query.Order("date_billed desc").Find(&appointments).Error
	return appointments, translate(err, msgAppointmentNotFound, msgSlotOccupied)
}

// SummarizeBilling groups billed appointments by patient and professional.
func (r *AppointmentRepository) SummarizeBilling(ctx context.Context) ([]models.BillingSummary, error) {
	var rows []models.BillingSummary
	err := r.DB.WithContext(ctx).Model(&models.Appointment{}).
		Select("patient_id, professional_id, COALESCE(SUM(amount), 0) AS total_payments, COUNT(*) AS appointment_count").
		Where("has_been_billed = ?", true).
		Group("patient_id, professional_id").
		Order("patient_id, professional_id").
		Scan(&rows).Error
	return rows, translate(err, msgAppointmentNotFound, msgSlotOccupied)
}
