package repository

import (
	"context"

	"careconnect-server/internal/models"

	"gorm.io/gorm"
)

const (
	msgReviewNotFound = "Review not found"
	msgReviewExists   = "appointment already has a review"
)

// ReviewRepository persists reviews with gorm.
type ReviewRepository struct {
	DB *gorm.DB
}

// NewReviewRepository creates a new ReviewRepository.
func NewReviewRepository(db *gorm.DB) *ReviewRepository {
	return &ReviewRepository{DB: db}
}

// CreateForAppointment inserts the review and flips the appointment's
// has_review flag in one transaction. The flag update is conditional, so a
// second review for the same appointment fails with a conflict.
func (r *ReviewRepository) CreateForAppointment(ctx context.Context, review *models.Review) error {
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Appointment{}).
			Where("id = ? AND has_review = ? AND status = ? AND has_been_billed = ?",
				review.AppointmentID, false, models.StatusClosed, true).
			Update("has_review", true)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrDuplicatedKey
		}
		return tx.Create(review).Error
	})
	return translate(err, msgReviewNotFound, msgReviewExists)
}

// FindByAppointment loads the review attached to an appointment.
func (r *ReviewRepository) FindByAppointment(ctx context.Context, appointmentID string) (*models.Review, error) {
	var review models.Review
	err := r.DB.WithContext(ctx).
		Preload("ByUser", selectRef).
		First(&review, "appointment_id = ?", appointmentID).Error
	if err != nil {
		return nil, translate(err, msgReviewNotFound, msgReviewExists)
	}
	return &review, nil
}

// ListForUser returns the reviews written about a professional.
func (r *ReviewRepository) ListForUser(ctx context.Context, userID string) ([]models.Review, error) {
	var reviews []models.Review
	err := r.DB.WithContext(ctx).
		Preload("ByUser", selectRef).
		Where("for_user_id = ?", userID).
		Order("created_at desc").
		Find(&reviews).Error
	return reviews, translate(err, msgReviewNotFound, msgReviewExists)
}

// AverageRating computes the mean rating of a professional.
func (r *ReviewRepository) AverageRating(ctx context.Context, userID string) (models.RatingSummary, error) {
	var summary models.RatingSummary
	err := r.DB.WithContext(ctx).Model(&models.Review{}).
		Select("COALESCE(AVG(rating), 0) AS average, COUNT(*) AS count").
		Where("for_user_id = ?", userID).
		Scan(&summary).Error
	return summary, translate(err, msgReviewNotFound, msgReviewExists)
}
