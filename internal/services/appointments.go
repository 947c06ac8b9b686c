package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"careconnect-server/internal/apperrors"
	"careconnect-server/internal/config"
	"careconnect-server/internal/mailer"
	"careconnect-server/internal/models"
	"careconnect-server/internal/notify"
	"careconnect-server/internal/payments"
	"careconnect-server/internal/receipts"
	"careconnect-server/internal/storage"
	"careconnect-server/internal/telemetry"
)

// minimumBillableMinutes is the floor applied to consultation durations.
const minimumBillableMinutes = 10

const msgPaymentFailed = "there was an error processing the payment"

// CreateAppointmentInput is a booking request from a patient.
type CreateAppointmentInput struct {
	Date     string                 `json:"date" binding:"required"`
	Time     string                 `json:"time" binding:"required"`
	Duration int                    `json:"duration" binding:"required,gt=0"`
	Subject  string                 `json:"subject"`
	Type     models.AppointmentType `json:"type" binding:"required"`
}

// UpdateAppointmentInput is a partial update. Nil fields are left alone.
type UpdateAppointmentInput struct {
	Status      *models.AppointmentStatus `json:"status" form:"status"`
	Amount      *float64                  `json:"amount" form:"amount"`
	TestSummary *string                   `json:"testSummary" form:"testSummary"`
	DateBilled  *time.Time                `json:"dateBilled" form:"dateBilled" time_format:"2006-01-02T15:04:05Z07:00"`
	Date        *string                   `json:"date" form:"date"`
	Time        *string                   `json:"time" form:"time"`
	Duration    *int                      `json:"duration" form:"duration"`
	Subject     *string                   `json:"subject" form:"subject"`
}

// onlyCloses reports whether the patch sets status to CLOSED and nothing else.
func (in UpdateAppointmentInput) onlyCloses() bool {
	return in.Status != nil && *in.Status == models.StatusClosed &&
		in.Amount == nil && in.TestSummary == nil && in.DateBilled == nil &&
		in.Date == nil && in.Time == nil && in.Duration == nil && in.Subject == nil
}

// changesPrice reports whether the patch touches what checkout charges.
func (in UpdateAppointmentInput) changesPrice() bool {
	return in.Amount != nil || in.Duration != nil
}

// UpdateResult is the outcome of an update. TestFile is set when a file was
// attached.
type UpdateResult struct {
	Appointment models.AppointmentView `json:"appointment"`
	TestFile    string                 `json:"testFile,omitempty"`
}

// PaymentSummary is either the billed appointments of one pair or the
// grouped report over all pairs.
type PaymentSummary struct {
	Appointments []models.AppointmentView `json:"appointments,omitempty"`
	Summary      []models.BillingSummary  `json:"summary,omitempty"`
}

// AppointmentDeps are the collaborators of AppointmentService.
type AppointmentDeps struct {
	Appointments AppointmentStore
	Users        UserReader
	Notifier     Notifier
	Files        storage.FileStore
	Gateway      payments.Gateway
	Mailer       mailer.Mailer
	Background   Background
	Billing      config.BillingConfig
	Currency     string
	Logger       zerolog.Logger
	Now          func() time.Time
}

// AppointmentService runs the appointment lifecycle: booking, approval,
// test results, checkout and billing.
type AppointmentService struct {
	AppointmentDeps
}

// NewAppointmentService creates a new AppointmentService.
func NewAppointmentService(deps AppointmentDeps) *AppointmentService {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	deps.Logger = deps.Logger.With().Str("service", "appointments").Logger()
	return &AppointmentService{AppointmentDeps: deps}
}

// Create books a slot with a professional for the calling patient.
func (s *AppointmentService) Create(ctx context.Context, professionalID, patientID string, in CreateAppointmentInput) (*models.AppointmentView, error) {
	ctx, span := telemetry.StartSpan(ctx, "AppointmentService.Create")
	defer span.End()
	span.SetAttributes(attribute.String("professional.id", professionalID))

	date, err := parseSlot(in.Date, in.Time)
	if err != nil {
		return nil, err
	}
	if !in.Type.Valid() {
		return nil, apperrors.NewValidationError("type must be one of ONSITE_CONSULTATION, ONSITE_TESTS, VIRTUAL_CONSULTATION")
	}
	if in.Duration <= 0 {
		return nil, apperrors.NewValidationError("duration must be greater than zero")
	}
	if professionalID == "" {
		return nil, apperrors.NewValidationError("professional is required")
	}

	patient, err := loadActor(ctx, s.Users, patientID)
	if err != nil {
		return nil, err
	}
	if !patient.HasAccountType(models.AccountPatient) {
		return nil, apperrors.NewUnauthorizedError("Only patients can book appointments")
	}

	professional, err := s.Users.FindByID(ctx, professionalID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrorTypeNotFound) {
			return nil, apperrors.NewNotFoundError("Professional not found")
		}
		return nil, err
	}
	if !professional.HasAccountType(models.AccountProfessional, models.AccountInstitution) || professional.Disabled {
		return nil, apperrors.NewNotFoundError("Professional not found")
	}

	taken, err := s.Appointments.SlotTaken(ctx, date, in.Time, professionalID, "")
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if taken {
		return nil, apperrors.NewConflictError("Selected time slot is occupied.")
	}

	appointment := &models.Appointment{
		Date:           date,
		Time:           in.Time,
		ProfessionalID: professionalID,
		PatientID:      patientID,
		Duration:       in.Duration,
		Subject:        in.Subject,
		Type:           in.Type,
		Status:         models.StatusUnapproved,
	}
	if err := s.Appointments.Create(ctx, appointment); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.Notifier.NotifyUser(professionalID, notify.Message{
		Title: "Appointment Request",
		Body:  "You have received a new request for an appointment. Open the app to respond.",
		Data:  map[string]string{"appointmentId": appointment.ID},
	})

	appointment.Professional = *professional
	appointment.Patient = *patient
	view := appointment.View()
	return &view, nil
}

// Update applies a status change, a schedule change or a test result to an
// appointment. When file is non-nil the test-result branch runs.
func (s *AppointmentService) Update(ctx context.Context, appointmentID, actorID string, in UpdateAppointmentInput, file *Upload) (*UpdateResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "AppointmentService.Update")
	defer span.End()
	span.SetAttributes(attribute.String("appointment.id", appointmentID))

	appointment, err := s.Appointments.FindByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	actor, err := loadActor(ctx, s.Users, actorID)
	if err != nil {
		return nil, err
	}

	byProfessional := false
	switch {
	case actor.HasAccountType(models.AccountPatient):
		if appointment.PatientID != actor.ID {
			return nil, apperrors.NewUnauthorizedError("You are not a party to this appointment")
		}
		if file != nil || !in.onlyCloses() {
			return nil, apperrors.NewUnauthorizedError("Patients may only close an appointment")
		}
	case actor.HasAccountType(models.AccountProfessional, models.AccountInstitution):
		if appointment.ProfessionalID != actor.ID {
			return nil, apperrors.NewUnauthorizedError("You are not a party to this appointment")
		}
		byProfessional = true
	default:
		return nil, apperrors.NewUnauthorizedError("You are not a party to this appointment")
	}

	if in.Status != nil {
		if !in.Status.Valid() {
			return nil, apperrors.NewValidationError("status must be one of UNAPPROVED, APPROVED, REJECTED, CLOSED")
		}
		if err := checkTransition(appointment.Status, *in.Status, byProfessional); err != nil {
			return nil, err
		}
	}
	if in.Amount != nil {
		if *in.Amount < 0 {
			return nil, apperrors.NewValidationError("amount must not be negative")
		}
		if appointment.HasBeenBilled {
			return nil, apperrors.NewIneligibleError("appointment has already been billed")
		}
	}
	if in.changesPrice() && appointment.PaymentPending() {
		return nil, apperrors.NewIneligibleError("payment in progress; the price can no longer change")
	}

	if file != nil {
		return s.attachTestFile(ctx, appointment, in, file)
	}
	return s.applyPatch(ctx, appointment, in)
}

func (s *AppointmentService) attachTestFile(ctx context.Context, appointment *models.Appointment, in UpdateAppointmentInput, file *Upload) (*UpdateResult, error) {
	if appointment.Type != models.TypeOnsiteTests {
		return nil, apperrors.NewValidationError("test files can only be attached to ONSITE_TESTS appointments")
	}
	ext := storage.Extension(file.Filename)
	if !contains(s.Billing.AllowedTestFileTypes, ext) {
		return nil, apperrors.NewValidationError("file format should be one of: " + strings.Join(s.Billing.AllowedTestFileTypes, ", "))
	}
	if appointment.HasBeenBilled {
		return nil, apperrors.NewIneligibleError("appointment has already been billed")
	}

	name := storage.FileName(appointment.ID, ext)
	if err := s.Files.Save(ctx, storage.BucketTestFiles, name, file.Content); err != nil {
		s.Logger.Error().Err(err).Str("appointment_id", appointment.ID).Msg("failed to store test file")
		return nil, apperrors.NewUpstreamError("failed to store test file", err)
	}

	fields := map[string]interface{}{"test_file": name}
	if in.Status != nil {
		fields["status"] = *in.Status
	}
	if in.TestSummary != nil {
		fields["test_summary"] = *in.TestSummary
	}
	if in.Amount != nil {
		fields["amount"] = *in.Amount
		billed := s.Now().UTC()
		if in.DateBilled != nil {
			billed = in.DateBilled.UTC()
		}
		fields["date_billed"] = billed
	}
	if err := s.update(ctx, appointment, in, fields); err != nil {
		return nil, err
	}

	updated, err := s.Appointments.FindByID(ctx, appointment.ID)
	if err != nil {
		return nil, err
	}
	s.notifyResponse(appointment.Status, updated)
	return &UpdateResult{Appointment: updated.View(), TestFile: name}, nil
}

func (s *AppointmentService) applyPatch(ctx context.Context, appointment *models.Appointment, in UpdateAppointmentInput) (*UpdateResult, error) {
	fields := map[string]interface{}{}
	if in.Status != nil {
		fields["status"] = *in.Status
	}
	if in.Amount != nil {
		fields["amount"] = *in.Amount
	}
	if in.TestSummary != nil {
		fields["test_summary"] = *in.TestSummary
	}
	if in.DateBilled != nil {
		fields["date_billed"] = in.DateBilled.UTC()
	}
	if in.Duration != nil {
		if *in.Duration <= 0 {
			return nil, apperrors.NewValidationError("duration must be greater than zero")
		}
		fields["duration"] = *in.Duration
	}
	if in.Subject != nil {
		fields["subject"] = *in.Subject
	}

	if in.Date != nil || in.Time != nil {
		dateStr := appointment.Date.Format(models.DateLayout)
		slotTime := appointment.Time
		if in.Date != nil {
			dateStr = *in.Date
		}
		if in.Time != nil {
			slotTime = *in.Time
		}
		date, err := parseSlot(dateStr, slotTime)
		if err != nil {
			return nil, err
		}
		taken, err := s.Appointments.SlotTaken(ctx, date, slotTime, appointment.ProfessionalID, appointment.ID)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, apperrors.NewConflictError("Selected time slot is occupied.")
		}
		fields["date"] = date
		fields["time"] = slotTime
	}

	if len(fields) > 0 {
		if err := s.update(ctx, appointment, in, fields); err != nil {
			return nil, err
		}
	}

	updated, err := s.Appointments.FindByID(ctx, appointment.ID)
	if err != nil {
		return nil, err
	}
	s.notifyResponse(appointment.Status, updated)
	return &UpdateResult{Appointment: updated.View()}, nil
}

// update writes fields only if the state the patch was checked against still
// holds: the status it transitions from, and no pending payment when the
// price changes.
func (s *AppointmentService) update(ctx context.Context, appointment *models.Appointment, in UpdateAppointmentInput, fields map[string]interface{}) error {
	var guard models.AppointmentGuard
	if in.Status != nil && *in.Status != appointment.Status {
		guard.Status = appointment.Status
	}
	if in.changesPrice() {
		guard.NoPayment = true
	}
	applied, err := s.Appointments.Update(ctx, appointment.ID, guard, fields)
	if err != nil {
		return err
	}
	if !applied {
		return apperrors.NewIneligibleError("appointment changed concurrently; reload and try again")
	}
	return nil
}

// notifyResponse tells the patient when the professional approved or
// rejected the request.
func (s *AppointmentService) notifyResponse(previous models.AppointmentStatus, updated *models.Appointment) {
	if previous == updated.Status {
		return
	}
	var body string
	switch updated.Status {
	case models.StatusApproved:
		body = "Your appointment request has been approved."
	case models.StatusRejected:
		body = "Your appointment request has been rejected."
	default:
		return
	}
	s.Notifier.NotifyUser(updated.PatientID, notify.Message{
		Title: "Appointment Response",
		Body:  body,
		Data:  map[string]string{"appointmentId": updated.ID},
	})
}

// checkTransition enforces the status state machine. REJECTED and CLOSED are
// terminal; approving or rejecting is reserved for the professional.
func checkTransition(from, to models.AppointmentStatus, byProfessional bool) error {
	if from == to {
		return nil
	}
	switch from {
	case models.StatusRejected, models.StatusClosed:
		return apperrors.NewIneligibleError(fmt.Sprintf("appointment is %s and can no longer change status", from))
	case models.StatusUnapproved:
		switch to {
		case models.StatusApproved, models.StatusRejected:
			if !byProfessional {
				return apperrors.NewUnauthorizedError("Only the professional can approve or reject an appointment")
			}
			return nil
		case models.StatusClosed:
			return nil
		}
	case models.StatusApproved:
		if to == models.StatusClosed {
			return nil
		}
	}
	return apperrors.NewIneligibleError(fmt.Sprintf("cannot change status from %s to %s", from, to))
}

// ComputeCheckoutAmount returns what the patient owes for appointment.
// Test appointments are charged the recorded amount; consultations are
// charged per minute with a ten-minute floor.
func (s *AppointmentService) ComputeCheckoutAmount(appointment *models.Appointment) (float64, error) {
	if appointment.Type == models.TypeOnsiteTests {
		if appointment.Amount == nil {
			return 0, apperrors.NewIneligibleError("test results have not been priced yet")
		}
		return *appointment.Amount, nil
	}
	minutes := appointment.Duration
	if minutes < minimumBillableMinutes {
		minutes = minimumBillableMinutes
	}
	return math.Round(float64(minutes)*s.Billing.ChargeRate*100) / 100, nil
}

// Checkout creates, or resumes, the payment intent for a closed and unbilled
// appointment. It never marks the appointment billed.
func (s *AppointmentService) Checkout(ctx context.Context, appointmentID, actorID string) (*payments.Intent, error) {
	ctx, span := telemetry.StartSpan(ctx, "AppointmentService.Checkout")
	defer span.End()
	span.SetAttributes(attribute.String("appointment.id", appointmentID))

	appointment, err := s.Appointments.FindByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if appointment.PatientID != actorID {
		return nil, apperrors.NewUnauthorizedError("Only the patient can pay for this appointment")
	}
	if appointment.Status != models.StatusClosed || appointment.HasBeenBilled {
		return nil, apperrors.NewIneligibleError("appointment not eligible for checkout")
	}

	amount, err := s.ComputeCheckoutAmount(appointment)
	if err != nil {
		return nil, err
	}

	if !appointment.PaymentPending() {
		intent, err := s.newIntent(ctx, appointment, amount)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
		attached, err := s.Appointments.AttachPayment(ctx, appointment.ID, intent.ID)
		return s.keepIntent(ctx, intent, attached, err)
	}

	current, err := s.Gateway.FetchIntent(ctx, *appointment.PaymentID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, s.gatewayError(appointment.ID, err)
	}
	if current.Paid || (!current.Canceled && payments.SameAmount(current.Amount, amount)) {
		return current, nil
	}

	// The pending intent is dead or charges a stale amount: replace it.
	if !current.Canceled {
		if err := s.Gateway.CancelIntent(ctx, current.ID); err != nil {
			telemetry.RecordError(span, err)
			return nil, s.gatewayError(appointment.ID, err)
		}
	}
	s.Logger.Info().Str("appointment_id", appointment.ID).Str("payment_id", current.ID).
		Bool("canceled", current.Canceled).Msg("replacing payment intent")
	intent, err := s.newIntent(ctx, appointment, amount)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	swapped, err := s.Appointments.SwapPayment(ctx, appointment.ID, current.ID, intent.ID)
	return s.keepIntent(ctx, intent, swapped, err)
}

func (s *AppointmentService) newIntent(ctx context.Context, appointment *models.Appointment, amount float64) (*payments.Intent, error) {
	intent, err := s.Gateway.CreateIntent(ctx, amount, map[string]string{
		"appointment_id": appointment.ID,
		"patient_id":     appointment.PatientID,
	})
	if err != nil {
		return nil, s.gatewayError(appointment.ID, err)
	}
	return intent, nil
}

// keepIntent returns intent when it was stored on the appointment and
// cancels it when a concurrent checkout stored another one first.
func (s *AppointmentService) keepIntent(ctx context.Context, intent *payments.Intent, stored bool, err error) (*payments.Intent, error) {
	if err == nil && stored {
		return intent, nil
	}
	if cancelErr := s.Gateway.CancelIntent(ctx, intent.ID); cancelErr != nil {
		s.Logger.Warn().Err(cancelErr).Str("payment_id", intent.ID).Msg("failed to cancel orphaned payment intent")
	}
	if err != nil {
		return nil, err
	}
	return nil, apperrors.NewIneligibleError("checkout already in progress")
}

// ConfirmPayment verifies the attached intent was paid and marks the
// appointment billed. Concurrent confirmations bill at most once.
func (s *AppointmentService) ConfirmPayment(ctx context.Context, appointmentID, actorID string) (*models.AppointmentView, error) {
	ctx, span := telemetry.StartSpan(ctx, "AppointmentService.ConfirmPayment")
	defer span.End()
	span.SetAttributes(attribute.String("appointment.id", appointmentID))

	appointment, err := s.Appointments.FindByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if appointment.PatientID != actorID {
		return nil, apperrors.NewUnauthorizedError("Only the patient can pay for this appointment")
	}
	if appointment.HasBeenBilled {
		return nil, apperrors.NewIneligibleError("appointment has already been billed")
	}
	if appointment.PaymentID == nil || *appointment.PaymentID == "" {
		return nil, apperrors.NewIneligibleError("no checkout in progress")
	}
	paymentID := *appointment.PaymentID

	intent, err := s.Gateway.FetchIntent(ctx, paymentID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, s.gatewayError(appointment.ID, err)
	}
	if !intent.Paid {
		return nil, apperrors.NewIneligibleError("payment has not been completed")
	}
	if appointment.Amount != nil && !payments.SameAmount(intent.Amount, *appointment.Amount) {
		s.Logger.Error().Str("appointment_id", appointment.ID).Str("payment_id", paymentID).
			Float64("paid", intent.Amount).Float64("recorded", *appointment.Amount).Msg("payment amount does not match the recorded amount")
		return nil, apperrors.NewIneligibleError("payment amount does not match the amount due")
	}

	billed, err := s.Appointments.MarkBilled(ctx, appointment.ID, paymentID, intent.Amount, s.Now().UTC())
	if err != nil {
		return nil, err
	}
	if !billed {
		return nil, apperrors.NewIneligibleError("appointment has already been billed")
	}

	updated, err := s.Appointments.FindByID(ctx, appointment.ID)
	if err != nil {
		return nil, err
	}
	view := updated.View()
	s.sendReceipt(view)
	return &view, nil
}

func (s *AppointmentService) sendReceipt(view models.AppointmentView) {
	if s.Background == nil || s.Mailer == nil {
		return
	}
	s.Background.Submit("receipt:"+view.ID, func(ctx context.Context) error {
		patient, err := s.Users.FindByID(ctx, view.PatientID)
		if err != nil {
			return fmt.Errorf("load patient %s: %w", view.PatientID, err)
		}
		pdf, err := receipts.Render(&view, s.Currency)
		if err != nil {
			return err
		}
		return s.Mailer.Send(ctx, mailer.Email{
			To:      patient.Email,
			Subject: "Your CareConnect receipt",
			Body:    fmt.Sprintf("Hello %s,\n\nThank you for your payment. Your receipt is attached.\n", patient.FullName),
			Attachments: []mailer.Attachment{
				{Name: "receipt-" + view.ID + ".pdf", Data: pdf},
			},
		})
	})
}

func (s *AppointmentService) gatewayError(appointmentID string, err error) error {
	var decline *payments.DeclineError
	if errors.As(err, &decline) {
		return apperrors.NewPaymentDeclinedError(decline.Message, err)
	}
	s.Logger.Error().Err(err).Str("appointment_id", appointmentID).Msg("payment gateway failure")
	return apperrors.NewUpstreamError(msgPaymentFailed, err)
}

// FindForUser lists every appointment of userID. Only the user may list
// their own appointments.
func (s *AppointmentService) FindForUser(ctx context.Context, userID, actorID string) ([]models.AppointmentView, error) {
	if userID != actorID {
		return nil, apperrors.NewUnauthorizedError("You can only view your own appointments")
	}
	appointments, err := s.Appointments.FindForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return views(appointments), nil
}

// FindByID loads one appointment visible to actorID.
func (s *AppointmentService) FindByID(ctx context.Context, appointmentID, actorID string) (*models.AppointmentView, error) {
	appointment, err := s.Appointments.FindByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if !appointment.IsParty(actorID) {
		return nil, apperrors.NewUnauthorizedError("You are not a party to this appointment")
	}
	view := appointment.View()
	return &view, nil
}

// GetBillingHistory lists the billed appointments of a professional.
func (s *AppointmentService) GetBillingHistory(ctx context.Context, professionalID string) ([]models.AppointmentView, error) {
	appointments, err := s.Appointments.ListBilledByProfessional(ctx, professionalID)
	if err != nil {
		return nil, err
	}
	return views(appointments), nil
}

// GetPaymentSummary returns the billed appointments of one pair, or the
// grouped report when filter is empty. The grouped report is admin-only; a
// pair may be inspected by either member or an admin.
func (s *AppointmentService) GetPaymentSummary(ctx context.Context, filter models.PaymentFilter, actorID string) (*PaymentSummary, error) {
	actor, err := loadActor(ctx, s.Users, actorID)
	if err != nil {
		return nil, err
	}
	isAdmin := actor.HasAccountType(models.AccountAdmin)

	if filter.IsEmpty() {
		if !isAdmin {
			return nil, apperrors.NewUnauthorizedError("Only admins can view the payment report")
		}
		rows, err := s.Appointments.SummarizeBilling(ctx)
		if err != nil {
			return nil, err
		}
		return &PaymentSummary{Summary: rows}, nil
	}

	if filter.PatientID == "" || filter.ProfessionalID == "" {
		return nil, apperrors.NewValidationError("both patient and professional are required")
	}
	if !isAdmin && actor.ID != filter.PatientID && actor.ID != filter.ProfessionalID {
		return nil, apperrors.NewUnauthorizedError("You can only view your own payments")
	}
	appointments, err := s.Appointments.ListBilledForPair(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &PaymentSummary{Appointments: views(appointments)}, nil
}

// Receipt renders the PDF receipt of a billed appointment.
func (s *AppointmentService) Receipt(ctx context.Context, appointmentID, actorID string) ([]byte, error) {
	appointment, err := s.Appointments.FindByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if !appointment.IsParty(actorID) {
		return nil, apperrors.NewUnauthorizedError("You are not a party to this appointment")
	}
	if !appointment.HasBeenBilled {
		return nil, apperrors.NewIneligibleError("appointment has not been billed")
	}
	view := appointment.View()
	pdf, err := receipts.Render(&view, s.Currency)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to render receipt", err)
	}
	return pdf, nil
}

// TestFile resolves the stored test result name for download by a party of
// the owning appointment.
func (s *AppointmentService) TestFile(ctx context.Context, name, actorID string) (string, error) {
	appointmentID := strings.TrimSuffix(name, filepath.Ext(name))
	appointment, err := s.Appointments.FindByID(ctx, appointmentID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrorTypeNotFound) {
			return "", apperrors.NewNotFoundError("File not found")
		}
		return "", err
	}
	if !appointment.IsParty(actorID) {
		return "", apperrors.NewUnauthorizedError("You are not a party to this appointment")
	}
	if appointment.TestFile == nil || *appointment.TestFile != name {
		return "", apperrors.NewNotFoundError("File not found")
	}
	path, err := s.Files.Path(storage.BucketTestFiles, name)
	if err != nil {
		return "", storageError(err, "File not found")
	}
	return path, nil
}

// parseSlot validates a date and time pair and returns the date at midnight
// UTC.
func parseSlot(date, slotTime string) (time.Time, error) {
	d, err := time.Parse(models.DateLayout, date)
	if err != nil {
		return time.Time{}, apperrors.NewValidationError("date must be formatted as YYYY-MM-DD")
	}
	if _, err := time.Parse(models.TimeLayout, slotTime); err != nil || len(slotTime) != len(models.TimeLayout) {
		return time.Time{}, apperrors.NewValidationError("time must be formatted as HH:MM")
	}
	return d.UTC(), nil
}
