package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"careconnect-server/internal/apperrors"
	"careconnect-server/internal/models"
)

// openTestDB migrates a private in-memory SQLite database. One connection
// keeps every statement on the same database and serializes concurrent
// callers the way row locks would.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, models.Migrate(db))
	return db
}

func seedUser(t *testing.T, db *gorm.DB, name string, accountType models.AccountType) *models.User {
	t.Helper()
	user := &models.User{
		FullName:    name,
		Email:       name + "@example.com",
		Username:    name,
		Password:    "hash",
		AccountType: &accountType,
	}
	require.NoError(t, NewUserRepository(db).Create(context.Background(), user))
	return user
}

type appointmentEnv struct {
	db           *gorm.DB
	repo         *AppointmentRepository
	patient      *models.User
	professional *models.User
}

func newAppointmentEnv(t *testing.T) *appointmentEnv {
	db := openTestDB(t)
	return &appointmentEnv{
		db:           db,
		repo:         NewAppointmentRepository(db),
		patient:      seedUser(t, db, "pat", models.AccountPatient),
		professional: seedUser(t, db, "ada", models.AccountProfessional),
	}
}

func (e *appointmentEnv) seed(t *testing.T, slot string, mod func(a *models.Appointment)) *models.Appointment {
	t.Helper()
	a := &models.Appointment{
		Date:           time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		Time:           slot,
		ProfessionalID: e.professional.ID,
		PatientID:      e.patient.ID,
		Duration:       30,
		Type:           models.TypeOnsiteConsultation,
		Status:         models.StatusUnapproved,
	}
	if mod != nil {
		mod(a)
	}
	require.NoError(t, e.repo.Create(context.Background(), a))
	return a
}

func (e *appointmentEnv) reload(t *testing.T, id string) *models.Appointment {
	t.Helper()
	a, err := e.repo.FindByID(context.Background(), id)
	require.NoError(t, err)
	return a
}

func TestAppointmentRepository_SlotIsUnique(t *testing.T) {
	ctx := context.Background()
	e := newAppointmentEnv(t)
	first := e.seed(t, "10:00", nil)

	dup := &models.Appointment{
		Date:           first.Date,
		Time:           "10:00",
		ProfessionalID: e.professional.ID,
		PatientID:      e.patient.ID,
		Duration:       15,
		Type:           models.TypeVirtualConsultation,
		Status:         models.StatusUnapproved,
	}
	err := e.repo.Create(ctx, dup)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrorTypeConflict), err.Error())

	other := e.seed(t, "11:00", nil)
	_, err = e.repo.Update(ctx, other.ID, models.AppointmentGuard{}, map[string]interface{}{"time": "10:00"})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrorTypeConflict), err.Error())

	_, err = e.repo.FindByID(ctx, uuid.NewString())
	assert.True(t, apperrors.Is(err, apperrors.ErrorTypeNotFound))
}

func TestAppointmentRepository_ConcurrentBookingsOfOneSlot(t *testing.T) {
	ctx := context.Background()
	e := newAppointmentEnv(t)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = e.repo.Create(ctx, &models.Appointment{
				Date:           time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC),
				Time:           "09:00",
				ProfessionalID: e.professional.ID,
				PatientID:      e.patient.ID,
				Duration:       30,
				Type:           models.TypeOnsiteConsultation,
				Status:         models.StatusUnapproved,
			})
		}(i)
	}
	wg.Wait()

	booked := 0
	for _, err := range errs {
		if err == nil {
			booked++
			continue
		}
		assert.True(t, apperrors.Is(err, apperrors.ErrorTypeConflict), err.Error())
	}
	assert.Equal(t, 1, booked)
}

func TestAppointmentRepository_GuardedUpdate(t *testing.T) {
	ctx := context.Background()
	e := newAppointmentEnv(t)

	t.Run("status guard", func(t *testing.T) {
		a := e.seed(t, "08:00", nil)
		require.NoError(t, e.db.Model(&models.Appointment{}).Where("id = ?", a.ID).Update("status", models.StatusClosed).Error)

		applied, err := e.repo.Update(ctx, a.ID, models.AppointmentGuard{Status: models.StatusUnapproved},
			map[string]interface{}{"status": models.StatusApproved})
		require.NoError(t, err)
		assert.False(t, applied)
		assert.Equal(t, models.StatusClosed, e.reload(t, a.ID).Status)

		applied, err = e.repo.Update(ctx, a.ID, models.AppointmentGuard{Status: models.StatusClosed},
			map[string]interface{}{"subject": "follow-up"})
		require.NoError(t, err)
		assert.True(t, applied)
		assert.Equal(t, "follow-up", e.reload(t, a.ID).Subject)
	})

	t.Run("payment guard", func(t *testing.T) {
		a := e.seed(t, "08:30", func(a *models.Appointment) { a.Type = models.TypeOnsiteTests })

		applied, err := e.repo.Update(ctx, a.ID, models.AppointmentGuard{NoPayment: true}, map[string]interface{}{"amount": 50.0})
		require.NoError(t, err)
		assert.True(t, applied)

		attached, err := e.repo.AttachPayment(ctx, a.ID, "pi_1")
		require.NoError(t, err)
		require.True(t, attached)

		applied, err = e.repo.Update(ctx, a.ID, models.AppointmentGuard{NoPayment: true}, map[string]interface{}{"amount": 80.0})
		require.NoError(t, err)
		assert.False(t, applied)
		assert.InDelta(t, 50, *e.reload(t, a.ID).Amount, 1e-9)
	})
}

func TestAppointmentRepository_PaymentLifecycle(t *testing.T) {
	ctx := context.Background()
	e := newAppointmentEnv(t)
	a := e.seed(t, "12:00", func(a *models.Appointment) {
		a.Type = models.TypeOnsiteTests
		a.Status = models.StatusClosed
		amount := 50.0
		a.Amount = &amount
	})

	var wg sync.WaitGroup
	var mu sync.Mutex
	attachedIDs := []string{}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			ok, err := e.repo.AttachPayment(ctx, a.ID, id)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				attachedIDs = append(attachedIDs, id)
				mu.Unlock()
			}
		}(uuid.NewString())
	}
	wg.Wait()
	require.Len(t, attachedIDs, 1)
	assert.Equal(t, attachedIDs[0], *e.reload(t, a.ID).PaymentID)

	swapped, err := e.repo.SwapPayment(ctx, a.ID, "pi_stale", "pi_new")
	require.NoError(t, err)
	assert.False(t, swapped)
	swapped, err = e.repo.SwapPayment(ctx, a.ID, attachedIDs[0], "pi_new")
	require.NoError(t, err)
	assert.True(t, swapped)

	now := time.Date(2024, 6, 1, 15, 0, 0, 0, time.UTC)
	billed, err := e.repo.MarkBilled(ctx, a.ID, "pi_new", 80, now)
	require.NoError(t, err)
	assert.False(t, billed, "a charge that differs from the recorded amount is refused")

	var wins int32
	var billWG sync.WaitGroup
	for i := 0; i < 8; i++ {
		billWG.Add(1)
		go func() {
			defer billWG.Done()
			ok, err := e.repo.MarkBilled(ctx, a.ID, "pi_new", 50, now)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	billWG.Wait()
	assert.Equal(t, int32(1), wins)

	stored := e.reload(t, a.ID)
	assert.True(t, stored.HasBeenBilled)
	assert.InDelta(t, 50, *stored.Amount, 1e-9)
	require.NotNil(t, stored.DateBilled)
	assert.True(t, now.Equal(*stored.DateBilled))

	swapped, err = e.repo.SwapPayment(ctx, a.ID, "pi_new", "pi_late")
	require.NoError(t, err)
	assert.False(t, swapped, "billed appointments keep their payment")
}

func TestAppointmentRepository_MarkBilledWithoutRecordedAmount(t *testing.T) {
	ctx := context.Background()
	e := newAppointmentEnv(t)
	a := e.seed(t, "13:00", func(a *models.Appointment) { a.Status = models.StatusClosed })

	attached, err := e.repo.AttachPayment(ctx, a.ID, "pi_1")
	require.NoError(t, err)
	require.True(t, attached)

	billed, err := e.repo.MarkBilled(ctx, a.ID, "pi_other", 75, time.Now())
	require.NoError(t, err)
	assert.False(t, billed)

	billed, err = e.repo.MarkBilled(ctx, a.ID, "pi_1", 75, time.Now())
	require.NoError(t, err)
	assert.True(t, billed)
	assert.InDelta(t, 75, *e.reload(t, a.ID).Amount, 1e-9)
}

func TestAppointmentRepository_BillingQueries(t *testing.T) {
	ctx := context.Background()
	e := newAppointmentEnv(t)
	other := seedUser(t, e.db, "sam", models.AccountPatient)
	billed := func(patientID string, amount float64, at time.Time) func(a *models.Appointment) {
		return func(a *models.Appointment) {
			a.PatientID = patientID
			a.Status = models.StatusClosed
			a.HasBeenBilled = true
			a.Amount = &amount
			a.DateBilled = &at
		}
	}
	day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	e.seed(t, "09:00", billed(e.patient.ID, 10, day))
	e.seed(t, "09:30", billed(e.patient.ID, 20, day.Add(time.Hour)))
	e.seed(t, "10:00", billed(other.ID, 5, day))
	e.seed(t, "10:30", nil)

	history, err := e.repo.ListBilledByProfessional(ctx, e.professional.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "09:30", history[0].Time, "newest bill first")
	assert.Equal(t, "pat", history[0].Patient.FullName)

	pair, err := e.repo.ListBilledForPair(ctx, models.PaymentFilter{PatientID: e.patient.ID, ProfessionalID: e.professional.ID})
	require.NoError(t, err)
	assert.Len(t, pair, 2)

	summary, err := e.repo.SummarizeBilling(ctx)
	require.NoError(t, err)
	want := map[string]models.BillingSummary{
		e.patient.ID: {PatientID: e.patient.ID, ProfessionalID: e.professional.ID, TotalPayments: 30, AppointmentCount: 2},
		other.ID:     {PatientID: other.ID, ProfessionalID: e.professional.ID, TotalPayments: 5, AppointmentCount: 1},
	}
	require.Len(t, summary, 2)
	for _, row := range summary {
		assert.Equal(t, want[row.PatientID], row)
	}
}

func TestReviewRepository_CreateForAppointmentOnce(t *testing.T) {
	ctx := context.Background()
	e := newAppointmentEnv(t)
	reviews := NewReviewRepository(e.db)
	a := e.seed(t, "14:00", func(a *models.Appointment) {
		a.Status = models.StatusClosed
		a.HasBeenBilled = true
	})

	var wg sync.WaitGroup
	errs := make([]error, 6)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = reviews.CreateForAppointment(ctx, &models.Review{
				AppointmentID: a.ID,
				ForUserID:     e.professional.ID,
				ByUserID:      e.patient.ID,
				Rating:        4,
			})
		}(i)
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		if err == nil {
			created++
			continue
		}
		assert.True(t, apperrors.Is(err, apperrors.ErrorTypeConflict), err.Error())
	}
	assert.Equal(t, 1, created)
	assert.True(t, e.reload(t, a.ID).HasReview)

	summary, err := reviews.AverageRating(ctx, e.professional.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.Count)
	assert.InDelta(t, 4, summary.Average, 1e-9)

	unbilled := e.seed(t, "15:00", func(a *models.Appointment) { a.Status = models.StatusClosed })
	err = reviews.CreateForAppointment(ctx, &models.Review{AppointmentID: unbilled.ID, ForUserID: e.professional.ID, ByUserID: e.patient.ID, Rating: 5})
	assert.True(t, apperrors.Is(err, apperrors.ErrorTypeConflict))
}
