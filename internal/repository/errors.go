package repository

import (
	"errors"

	"careconnect-server/internal/apperrors"

	"gorm.io/gorm"
)

// translate maps gorm errors to application errors. notFound and conflict
// are the client-facing messages for the two expected failure modes.
func translate(err error, notFound, conflict string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperrors.NewNotFoundError(notFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return apperrors.NewConflictError(conflict)
	default:
		return apperrors.NewInternalError("database error", err)
	}
}
