package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"careconnect-server/internal/apperrors"
	"careconnect-server/internal/models"
)

func newReviewFixture(t *testing.T) (*ReviewService, *appointmentFixture) {
	t.Helper()
	f := newAppointmentFixture(t)
	return NewReviewService(newFakeReviews(f.appts), f.appts, zerolog.Nop()), f
}

func TestReviewService_Create(t *testing.T) {
	ctx := context.Background()
	billed := func(a *models.Appointment) {
		a.Status = models.StatusClosed
		a.HasBeenBilled = true
	}

	t.Run("patient reviews a billed appointment", func(t *testing.T) {
		svc, f := newReviewFixture(t)
		a := f.seed(billed)

		view, err := svc.Create(ctx, a.ID, f.patient.ID, CreateReviewInput{Rating: 4, Feedback: "Kind and thorough"})
		require.NoError(t, err)
		assert.Equal(t, f.professional.ID, view.ForUserID)
		assert.Equal(t, f.patient.ID, view.ByUser.ID)
		assert.True(t, f.appts.get(a.ID).HasReview)
	})

	t.Run("second review is a conflict", func(t *testing.T) {
		svc, f := newReviewFixture(t)
		a := f.seed(billed)

		_, err := svc.Create(ctx, a.ID, f.patient.ID, CreateReviewInput{Rating: 5})
		require.NoError(t, err)
		_, err = svc.Create(ctx, a.ID, f.patient.ID, CreateReviewInput{Rating: 1})
		assertErrorType(t, err, apperrors.ErrorTypeConflict)
	})

	t.Run("unbilled appointment is ineligible", func(t *testing.T) {
		svc, f := newReviewFixture(t)
		a := f.seed(func(a *models.Appointment) { a.Status = models.StatusClosed })

		_, err := svc.Create(ctx, a.ID, f.patient.ID, CreateReviewInput{Rating: 3})
		assertErrorType(t, err, apperrors.ErrorTypeIneligible)
		assert.False(t, f.appts.get(a.ID).HasReview)
	})

	t.Run("only the patient may review", func(t *testing.T) {
		svc, f := newReviewFixture(t)
		a := f.seed(billed)

		_, err := svc.Create(ctx, a.ID, f.professional.ID, CreateReviewInput{Rating: 5})
		assertErrorType(t, err, apperrors.ErrorTypeUnauthorized)
	})

	t.Run("rating out of range", func(t *testing.T) {
		svc, f := newReviewFixture(t)
		a := f.seed(billed)

		for _, rating := range []int{0, 6, -1} {
			_, err := svc.Create(ctx, a.ID, f.patient.ID, CreateReviewInput{Rating: rating})
			assertErrorType(t, err, apperrors.ErrorTypeValidation)
		}
		assert.False(t, f.appts.get(a.ID).HasReview)
	})

	t.Run("concurrent reviews store one", func(t *testing.T) {
		svc, f := newReviewFixture(t)
		a := f.seed(billed)

		var wg sync.WaitGroup
		var created int32
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := svc.Create(ctx, a.ID, f.patient.ID, CreateReviewInput{Rating: 5}); err == nil {
					atomic.AddInt32(&created, 1)
				} else {
					assert.True(t, apperrors.Is(err, apperrors.ErrorTypeConflict), err.Error())
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), created)
	})
}

func TestReviewService_ListForUser(t *testing.T) {
	ctx := context.Background()
	svc, f := newReviewFixture(t)
	for i, slot := range []string{"09:00", "10:00"} {
		a := f.seed(func(a *models.Appointment) {
			a.Time = slot
			a.Status = models.StatusClosed
			a.HasBeenBilled = true
		})
		_, err := svc.Create(ctx, a.ID, f.patient.ID, CreateReviewInput{Rating: 3 + i*2})
		require.NoError(t, err)
	}

	got, err := svc.ListForUser(ctx, f.professional.ID)
	require.NoError(t, err)
	assert.Len(t, got.Reviews, 2)
	assert.Equal(t, int64(2), got.Rating.Count)
	assert.InDelta(t, 4, got.Rating.Average, 1e-9)

	empty, err := svc.AverageRating(ctx, f.patient.ID)
	require.NoError(t, err)
	assert.Zero(t, empty.Count)

	_, err = svc.GetForAppointment(ctx, "missing")
	assertErrorType(t, err, apperrors.ErrorTypeNotFound)
}
