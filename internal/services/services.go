// Package services holds the business rules of the server. Services depend
// on small store interfaces implemented by internal/repository and return
// *apperrors.AppError values that the HTTP layer maps to status codes.
package services

import (
	"context"
	"errors"
	"io"
	"time"

	"careconnect-server/internal/apperrors"
	"careconnect-server/internal/models"
	"careconnect-server/internal/notify"
	"careconnect-server/internal/storage"
)

// Notifier delivers push notifications to all devices of a user. It must
// return immediately.
type Notifier interface {
	NotifyUser(userID string, msg notify.Message)
}

// Background runs detached work. Submit never blocks.
type Background interface {
	Submit(name string, fn func(ctx context.Context) error) bool
}

// UserReader loads users by id.
type UserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// AppointmentStore persists appointments. Update, AttachPayment, SwapPayment
// and MarkBilled are conditional updates and report whether this caller won.
type AppointmentStore interface {
	Create(ctx context.Context, appointment *models.Appointment) error
	SlotTaken(ctx context.Context, date time.Time, slotTime, professionalID, excludeID string) (bool, error)
	FindByID(ctx context.Context, id string) (*models.Appointment, error)
	FindForUser(ctx context.Context, userID string) ([]models.Appointment, error)
	Update(ctx context.Context, id string, guard models.AppointmentGuard, fields map[string]interface{}) (bool, error)
	AttachPayment(ctx context.Context, id, paymentID string) (bool, error)
	SwapPayment(ctx context.Context, id, oldID, newID string) (bool, error)
	MarkBilled(ctx context.Context, id, paymentID string, amount float64, billedAt time.Time) (bool, error)
	ListBilledByProfessional(ctx context.Context, professionalID string) ([]models.Appointment, error)
	ListBilledForPair(ctx context.Context, filter models.PaymentFilter) ([]models.Appointment, error)
	SummarizeBilling(ctx context.Context) ([]models.BillingSummary, error)
}

// Upload is a file received from a client.
type Upload struct {
	Filename string
	Content  io.Reader
}

// loadActor resolves the calling user. A missing or disabled account is
// treated as unauthorized.
func loadActor(ctx context.Context, users UserReader, actorID string) (*models.User, error) {
	if actorID == "" {
		return nil, apperrors.NewUnauthorizedError("User not authenticated")
	}
	user, err := users.FindByID(ctx, actorID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrorTypeNotFound) {
			return nil, apperrors.NewUnauthorizedError("User not authenticated")
		}
		return nil, err
	}
	if user.Disabled {
		return nil, apperrors.NewUnauthorizedError("Account is disabled")
	}
	return user, nil
}

// storageError maps file store failures to application errors.
func storageError(err error, notFound string) error {
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, storage.ErrInvalidName):
		return apperrors.NewNotFoundError(notFound)
	default:
		return apperrors.NewUpstreamError("file storage failure", err)
	}
}

func views(appointments []models.Appointment) []models.AppointmentView {
	out := make([]models.AppointmentView, 0, len(appointments))
	for i := range appointments {
		out = append(out, appointments[i].View())
	}
	return out
}

func contains(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}
