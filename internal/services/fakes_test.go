package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"careconnect-server/internal/apperrors"
	"careconnect-server/internal/mailer"
	"careconnect-server/internal/models"
	"careconnect-server/internal/notify"
	"careconnect-server/internal/payments"
	"careconnect-server/internal/repository"
	"careconnect-server/internal/storage"
	"careconnect-server/internal/utils"
)

// fakeUsers is an in-memory UserStore.
type fakeUsers struct {
	mu       sync.Mutex
	users    map[string]models.User
	devices  map[string][]string
	invites  map[string]models.Invite
	sessions map[string]models.RefreshToken
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{
		users:    map[string]models.User{},
		devices:  map[string][]string{},
		invites:  map[string]models.Invite{},
		sessions: map[string]models.RefreshToken{},
	}
}

func (f *fakeUsers) put(u models.User) *models.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	f.users[u.ID] = u
	return &u
}

func (f *fakeUsers) Create(_ context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createLocked(user)
}

func (f *fakeUsers) createLocked(user *models.User) error {
	for _, u := range f.users {
		if u.Username == user.Username || u.Email == user.Email {
			return apperrors.NewConflictError("username or email is already taken")
		}
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	f.users[user.ID] = *user
	return nil
}

func (f *fakeUsers) FindByID(_ context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("User not found")
	}
	return &u, nil
}

func (f *fakeUsers) FindByEmail(_ context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == strings.ToLower(email) {
			return &u, nil
		}
	}
	return nil, apperrors.NewNotFoundError("User not found")
}

func (f *fakeUsers) FindByIdentifier(_ context.Context, identifier string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	identifier = strings.ToLower(identifier)
	for _, u := range f.users {
		if u.Email == identifier || u.Username == identifier {
			return &u, nil
		}
	}
	return nil, apperrors.NewNotFoundError("User not found")
}

func (f *fakeUsers) IsTaken(_ context.Context, username, email, excludeID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.ID == excludeID {
			continue
		}
		if (username != "" && u.Username == username) || (email != "" && u.Email == email) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeUsers) Find(_ context.Context, q repository.UserQuery) ([]models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.User
	for _, u := range f.users {
		switch {
		case q.Unset && u.AccountType != nil:
			continue
		case !q.Unset && len(q.AccountTypes) > 0 && !u.HasAccountType(q.AccountTypes...):
			continue
		case q.Username != "" && !strings.Contains(u.Username, strings.ToLower(q.Username)):
			continue
		case !q.IncludeDisabled && u.Disabled:
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	return out, nil
}

func (f *fakeUsers) Update(_ context.Context, id string, fields map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return apperrors.NewNotFoundError("User not found")
	}
	for k, v := range fields {
		switch k {
		case "disabled":
			u.Disabled = v.(bool)
		case "account_type":
			t := v.(models.AccountType)
			u.AccountType = &t
		case "username":
			u.Username = v.(string)
		case "email":
			u.Email = v.(string)
		case "password":
			u.Password = v.(string)
		case "full_name":
			u.FullName = v.(string)
		case "bio":
			u.Bio = v.(string)
		case "reset_code":
			u.ResetCode = v.(string)
		case "reset_code_expiration":
			if t, ok := v.(time.Time); ok {
				u.ResetCodeExpiration = &t
			} else {
				u.ResetCodeExpiration = nil
			}
		}
	}
	f.users[id] = u
	return nil
}

func (f *fakeUsers) AddDevice(_ context.Context, userID, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for owner, tokens := range f.devices {
		for i, t := range tokens {
			if t == token {
				f.devices[owner] = append(tokens[:i:i], tokens[i+1:]...)
			}
		}
	}
	f.devices[userID] = append(f.devices[userID], token)
	return nil
}

func (f *fakeUsers) RemoveDevice(_ context.Context, userID, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	tokens := f.devices[userID]
	for i, t := range tokens {
		if t == token {
			f.devices[userID] = append(tokens[:i:i], tokens[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeUsers) DeviceTokens(_ context.Context, userID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.devices[userID]...), nil
}

func (f *fakeUsers) SaveInvite(_ context.Context, invite *models.Invite) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.invites[invite.Email]; ok {
		invite.ID = existing.ID
	} else if invite.ID == "" {
		invite.ID = uuid.NewString()
	}
	f.invites[invite.Email] = *invite
	return nil
}

func (f *fakeUsers) FindInvite(_ context.Context, email string) (*models.Invite, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	invite, ok := f.invites[strings.ToLower(email)]
	if !ok {
		return nil, apperrors.NewNotFoundError("Invite not found")
	}
	return &invite, nil
}

func (f *fakeUsers) CreateAdminFromInvite(_ context.Context, user *models.User, inviteID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for email, invite := range f.invites {
		if invite.ID == inviteID {
			delete(f.invites, email)
			return f.createLocked(user)
		}
	}
	return apperrors.NewNotFoundError("Invite not found")
}

func (f *fakeUsers) SaveRefreshToken(_ context.Context, token *models.RefreshToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[token.TokenHash]; ok {
		return apperrors.NewConflictError("refresh token already issued")
	}
	f.sessions[token.TokenHash] = *token
	return nil
}

func (f *fakeUsers) RevokeRefreshToken(_ context.Context, userID, tokenHash string, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	token, ok := f.sessions[tokenHash]
	if !ok || token.IsRevoked || !token.ExpiresAt.After(now) || (userID != "" && token.UserID != userID) {
		return false, nil
	}
	token.IsRevoked = true
	f.sessions[tokenHash] = token
	return true, nil
}

// fakeAppointments is an in-memory AppointmentStore that enforces the slot
// uniqueness and conditional updates of the real schema.
type fakeAppointments struct {
	mu            sync.Mutex
	items         map[string]models.Appointment
	skipSlotCheck bool
	markedBilled  int
	// beforeWrite runs ahead of a conditional update, standing in for a
	// concurrent writer between the service's read and its write.
	beforeWrite func()
}

func newFakeAppointments() *fakeAppointments {
	return &fakeAppointments{items: map[string]models.Appointment{}}
}

func slotKey(a models.Appointment) string {
	return a.Date.Format(models.DateLayout) + "|" + a.Time + "|" + a.ProfessionalID
}

func (f *fakeAppointments) put(a models.Appointment) *models.Appointment {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	f.items[a.ID] = a
	return &a
}

func (f *fakeAppointments) get(id string) models.Appointment {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items[id]
}

func (f *fakeAppointments) mutate(id string, fn func(a *models.Appointment)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := f.items[id]
	fn(&a)
	f.items[id] = a
}

func (f *fakeAppointments) Create(_ context.Context, a *models.Appointment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.items {
		if slotKey(existing) == slotKey(*a) {
			return apperrors.NewConflictError("Selected time slot is occupied.")
		}
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	stored := *a
	stored.Professional, stored.Patient = models.User{}, models.User{}
	f.items[a.ID] = stored
	return nil
}

func (f *fakeAppointments) SlotTaken(_ context.Context, date time.Time, slotTime, professionalID, excludeID string) (bool, error) {
	if f.skipSlotCheck {
		return false, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := date.Format(models.DateLayout) + "|" + slotTime + "|" + professionalID
	for id, a := range f.items {
		if id != excludeID && slotKey(a) == key {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeAppointments) FindByID(_ context.Context, id string) (*models.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.items[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("Appointment not found")
	}
	return &a, nil
}

func (f *fakeAppointments) FindForUser(_ context.Context, userID string) ([]models.Appointment, error) {
	return f.filter(func(a models.Appointment) bool { return a.IsParty(userID) }), nil
}

func (f *fakeAppointments) filter(keep func(models.Appointment) bool) []models.Appointment {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Appointment
	for _, a := range f.items {
		if keep(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *fakeAppointments) Update(_ context.Context, id string, guard models.AppointmentGuard, fields map[string]interface{}) (bool, error) {
	if f.beforeWrite != nil {
		f.beforeWrite()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.items[id]
	if !ok {
		return false, apperrors.NewNotFoundError("Appointment not found")
	}
	if guard.Status != "" && a.Status != guard.Status {
		return false, nil
	}
	if guard.NoPayment && (a.PaymentID != nil || a.HasBeenBilled) {
		return false, nil
	}
	for k, v := range fields {
		switch k {
		case "status":
			a.Status = v.(models.AppointmentStatus)
		case "amount":
			amount := v.(float64)
			a.Amount = &amount
		case "test_summary":
			s := v.(string)
			a.TestSummary = &s
		case "test_file":
			s := v.(string)
			a.TestFile = &s
		case "date_billed":
			t := v.(time.Time)
			a.DateBilled = &t
		case "duration":
			a.Duration = v.(int)
		case "subject":
			a.Subject = v.(string)
		case "date":
			a.Date = v.(time.Time)
		case "time":
			a.Time = v.(string)
		default:
			return false, fmt.Errorf("unexpected column %q", k)
		}
	}
	for otherID, other := range f.items {
		if otherID != id && slotKey(other) == slotKey(a) {
			return false, apperrors.NewConflictError("Selected time slot is occupied.")
		}
	}
	f.items[id] = a
	return true, nil
}

func (f *fakeAppointments) AttachPayment(_ context.Context, id, paymentID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.items[id]
	if !ok || a.PaymentID != nil || a.HasBeenBilled {
		return false, nil
	}
	a.PaymentID = &paymentID
	f.items[id] = a
	return true, nil
}

func (f *fakeAppointments) SwapPayment(_ context.Context, id, oldID, newID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.items[id]
	if !ok || a.HasBeenBilled || a.PaymentID == nil || *a.PaymentID != oldID {
		return false, nil
	}
	a.PaymentID = &newID
	f.items[id] = a
	return true, nil
}

func (f *fakeAppointments) MarkBilled(_ context.Context, id, paymentID string, amount float64, billedAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.items[id]
	if !ok || a.HasBeenBilled || a.PaymentID == nil || *a.PaymentID != paymentID {
		return false, nil
	}
	if a.Amount != nil && *a.Amount != amount {
		return false, nil
	}
	a.HasBeenBilled = true
	a.Amount = &amount
	a.DateBilled = &billedAt
	f.items[id] = a
	f.markedBilled++
	return true, nil
}

func (f *fakeAppointments) ListBilledByProfessional(_ context.Context, professionalID string) ([]models.Appointment, error) {
	return f.filter(func(a models.Appointment) bool {
		return a.HasBeenBilled && a.ProfessionalID == professionalID
	}), nil
}

func (f *fakeAppointments) ListBilledForPair(_ context.Context, filter models.PaymentFilter) ([]models.Appointment, error) {
	return f.filter(func(a models.Appointment) bool {
		return a.HasBeenBilled && a.PatientID == filter.PatientID && a.ProfessionalID == filter.ProfessionalID
	}), nil
}

func (f *fakeAppointments) SummarizeBilling(_ context.Context) ([]models.BillingSummary, error) {
	billed := f.filter(func(a models.Appointment) bool { return a.HasBeenBilled })
	index := map[string]int{}
	var out []models.BillingSummary
	for _, a := range billed {
		key := a.PatientID + "|" + a.ProfessionalID
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, models.BillingSummary{PatientID: a.PatientID, ProfessionalID: a.ProfessionalID})
		}
		if a.Amount != nil {
			out[i].TotalPayments += *a.Amount
		}
		out[i].AppointmentCount++
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].PatientID+out[i].ProfessionalID < out[j].PatientID+out[j].ProfessionalID
	})
	return out, nil
}

// fakeReviews shares the appointment map so the has_review flip is atomic
// with the insert, as in the transactional repository.
type fakeReviews struct {
	appts   *fakeAppointments
	reviews map[string]models.Review
}

func newFakeReviews(appts *fakeAppointments) *fakeReviews {
	return &fakeReviews{appts: appts, reviews: map[string]models.Review{}}
}

func (f *fakeReviews) CreateForAppointment(_ context.Context, review *models.Review) error {
	f.appts.mu.Lock()
	defer f.appts.mu.Unlock()
	a, ok := f.appts.items[review.AppointmentID]
	if !ok || a.HasReview || a.Status != models.StatusClosed || !a.HasBeenBilled {
		return apperrors.NewConflictError("appointment already has a review")
	}
	a.HasReview = true
	f.appts.items[a.ID] = a
	if review.ID == "" {
		review.ID = uuid.NewString()
	}
	f.reviews[review.AppointmentID] = *review
	return nil
}

func (f *fakeReviews) FindByAppointment(_ context.Context, appointmentID string) (*models.Review, error) {
	f.appts.mu.Lock()
	defer f.appts.mu.Unlock()
	r, ok := f.reviews[appointmentID]
	if !ok {
		return nil, apperrors.NewNotFoundError("Review not found")
	}
	return &r, nil
}

func (f *fakeReviews) ListForUser(_ context.Context, userID string) ([]models.Review, error) {
	f.appts.mu.Lock()
	defer f.appts.mu.Unlock()
	var out []models.Review
	for _, r := range f.reviews {
		if r.ForUserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeReviews) AverageRating(ctx context.Context, userID string) (models.RatingSummary, error) {
	reviews, _ := f.ListForUser(ctx, userID)
	var summary models.RatingSummary
	for _, r := range reviews {
		summary.Average += float64(r.Rating)
		summary.Count++
	}
	if summary.Count > 0 {
		summary.Average /= float64(summary.Count)
	}
	return summary, nil
}

// fakeGateway is an in-memory payments.Gateway.
type fakeGateway struct {
	mu        sync.Mutex
	intents   map[string]payments.Intent
	created   int
	cancelled int
	createErr error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{intents: map[string]payments.Intent{}}
}

func (g *fakeGateway) CreateIntent(_ context.Context, amount float64, _ map[string]string) (*payments.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.created++
	id := fmt.Sprintf("pi_%d", g.created)
	intent := payments.Intent{ID: id, ClientSecret: id + "_secret", Amount: amount}
	g.intents[id] = intent
	return &intent, nil
}

func (g *fakeGateway) FetchIntent(_ context.Context, id string) (*payments.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	intent, ok := g.intents[id]
	if !ok {
		return nil, errors.New("no such payment intent")
	}
	return &intent, nil
}

func (g *fakeGateway) CancelIntent(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelled++
	intent, ok := g.intents[id]
	if !ok {
		return errors.New("no such payment intent")
	}
	intent.Canceled = true
	g.intents[id] = intent
	return nil
}

// expire cancels id on the processor side, as an abandoned checkout does.
func (g *fakeGateway) expire(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	intent := g.intents[id]
	intent.Canceled = true
	g.intents[id] = intent
}

func (g *fakeGateway) pay(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	intent := g.intents[id]
	intent.Paid = true
	g.intents[id] = intent
}

type sentPush struct {
	UserID string
	Msg    notify.Message
}

// recordingNotifier captures notifications instead of sending them.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentPush
}

func (n *recordingNotifier) NotifyUser(userID string, msg notify.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentPush{UserID: userID, Msg: msg})
}

func (n *recordingNotifier) messages() []sentPush {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentPush(nil), n.sent...)
}

// inlineBackground runs submitted jobs synchronously.
type inlineBackground struct {
	mu   sync.Mutex
	errs []error
}

func (b *inlineBackground) Submit(_ string, fn func(ctx context.Context) error) bool {
	err := fn(context.Background())
	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.errs = append(b.errs, err)
	}
	return true
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []mailer.Email
}

func (m *recordingMailer) Send(_ context.Context, email mailer.Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, email)
	return nil
}

func (m *recordingMailer) emails() []mailer.Email {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mailer.Email(nil), m.sent...)
}

// memFiles is an in-memory storage.FileStore.
type memFiles struct {
	mu      sync.Mutex
	files   map[string][]byte
	saveErr error
}

func newMemFiles() *memFiles {
	return &memFiles{files: map[string][]byte{}}
}

func (m *memFiles) Save(_ context.Context, bucket, name string, r io.Reader) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[bucket+"/"+name] = buf.Bytes()
	return nil
}

func (m *memFiles) Path(bucket, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[bucket+"/"+name]; !ok {
		return "", storage.ErrNotFound
	}
	return "/mem/" + bucket + "/" + name, nil
}

func (m *memFiles) Remove(bucket, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, bucket+"/"+name)
	return nil
}

// fakeTokens issues opaque tokens that encode the user id.
type fakeTokens struct {
	mu     sync.Mutex
	issued int
}

func (t *fakeTokens) GenerateTokens(user *models.User) (*utils.TokenPair, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.issued++
	return &utils.TokenPair{
		AccessToken:      fmt.Sprintf("access|%s|%d", user.ID, t.issued),
		RefreshToken:     fmt.Sprintf("refresh|%s|%d", user.ID, t.issued),
		RefreshExpiresAt: time.Now().Add(time.Hour),
	}, nil
}

func (t *fakeTokens) GenerateAccessToken(user *models.User) (string, error) {
	return "access|" + user.ID, nil
}

func (t *fakeTokens) ValidateRefreshToken(token string) (*utils.Claims, error) {
	parts := strings.Split(token, "|")
	if len(parts) != 3 || parts[0] != "refresh" {
		return nil, errors.New("invalid token")
	}
	return &utils.Claims{UserID: parts[1]}, nil
}

func accountType(t models.AccountType) *models.AccountType {
	return &t
}

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

func intPtr(i int) *int { return &i }

func statusPtr(s models.AppointmentStatus) *models.AppointmentStatus { return &s }
