package services

import (
	"context"

	"github.com/rs/zerolog"

	"careconnect-server/internal/apperrors"
	"careconnect-server/internal/models"
	"careconnect-server/internal/telemetry"
)

// ReviewStore persists reviews. CreateForAppointment flips the
// appointment's has_review flag atomically with the insert.
type ReviewStore interface {
	CreateForAppointment(ctx context.Context, review *models.Review) error
	FindByAppointment(ctx context.Context, appointmentID string) (*models.Review, error)
	ListForUser(ctx context.Context, userID string) ([]models.Review, error)
	AverageRating(ctx context.Context, userID string) (models.RatingSummary, error)
}

// AppointmentReader loads appointments by id.
type AppointmentReader interface {
	FindByID(ctx context.Context, id string) (*models.Appointment, error)
}

// CreateReviewInput is a patient's rating of a closed appointment.
type CreateReviewInput struct {
	Rating   int    `json:"rating" binding:"required,min=1,max=5"`
	Feedback string `json:"feedback"`
}

// ProfessionalReviews lists the reviews of a professional with their average.
type ProfessionalReviews struct {
	Reviews []models.ReviewView  `json:"reviews"`
	Rating  models.RatingSummary `json:"rating"`
}

// ReviewService manages reviews of billed appointments.
type ReviewService struct {
	reviews      ReviewStore
	appointments AppointmentReader
	logger       zerolog.Logger
}

// NewReviewService creates a new ReviewService.
func NewReviewService(reviews ReviewStore, appointments AppointmentReader, logger zerolog.Logger) *ReviewService {
	return &ReviewService{
		reviews:      reviews,
		appointments: appointments,
		logger:       logger.With().Str("service", "reviews").Logger(),
	}
}

// Create records the patient's review of a closed, billed appointment.
// An appointment takes at most one review.
func (s *ReviewService) Create(ctx context.Context, appointmentID, actorID string, in CreateReviewInput) (*models.ReviewView, error) {
	ctx, span := telemetry.StartSpan(ctx, "ReviewService.Create")
	defer span.End()

	appointment, err := s.appointments.FindByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if appointment.PatientID != actorID {
		return nil, apperrors.NewUnauthorizedError("Only the patient can review this appointment")
	}
	if appointment.Status != models.StatusClosed || !appointment.HasBeenBilled {
		return nil, apperrors.NewIneligibleError("appointment not eligible for a review")
	}
	if appointment.HasReview {
		return nil, apperrors.NewConflictError("appointment already has a review")
	}
	if in.Rating < 1 || in.Rating > 5 {
		return nil, apperrors.NewValidationError("rating must be between 1 and 5")
	}

	review := &models.Review{
		AppointmentID: appointment.ID,
		ForUserID:     appointment.ProfessionalID,
		ByUserID:      actorID,
		Rating:        in.Rating,
		Feedback:      in.Feedback,
	}
	if err := s.reviews.CreateForAppointment(ctx, review); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	s.logger.Info().Str("appointment_id", appointment.ID).Int("rating", in.Rating).Msg("review created")

	review.ByUser = appointment.Patient
	view := review.View()
	return &view, nil
}

// GetForAppointment returns the review of an appointment.
func (s *ReviewService) GetForAppointment(ctx context.Context, appointmentID string) (*models.ReviewView, error) {
	review, err := s.reviews.FindByAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	view := review.View()
	return &view, nil
}

// ListForUser returns the reviews about a professional and their average.
func (s *ReviewService) ListForUser(ctx context.Context, userID string) (*ProfessionalReviews, error) {
	reviews, err := s.reviews.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	rating, err := s.reviews.AverageRating(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := &ProfessionalReviews{Reviews: make([]models.ReviewView, 0, len(reviews)), Rating: rating}
	for i := range reviews {
		out.Reviews = append(out.Reviews, reviews[i].View())
	}
	return out, nil
}

// AverageRating returns the mean rating of a professional.
func (s *ReviewService) AverageRating(ctx context.Context, userID string) (models.RatingSummary, error) {
	return s.reviews.AverageRating(ctx, userID)
}
