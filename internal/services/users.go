package services

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"careconnect-server/internal/apperrors"
	"careconnect-server/internal/mailer"
	"careconnect-server/internal/models"
	"careconnect-server/internal/repository"
	"careconnect-server/internal/telemetry"
	"careconnect-server/internal/utils"
)

// TestResetCode is the password reset code issued when FixedResetCode is set.
const TestResetCode = "123456"

// UserStore persists users and their credentials.
type UserStore interface {
	UserReader
	Create(ctx context.Context, user *models.User) error
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByIdentifier(ctx context.Context, identifier string) (*models.User, error)
	IsTaken(ctx context.Context, username, email, excludeID string) (bool, error)
	Find(ctx context.Context, q repository.UserQuery) ([]models.User, error)
	Update(ctx context.Context, id string, fields map[string]interface{}) error
	AddDevice(ctx context.Context, userID, token string) error
	RemoveDevice(ctx context.Context, userID, token string) error
	SaveInvite(ctx context.Context, invite *models.Invite) error
	FindInvite(ctx context.Context, email string) (*models.Invite, error)
	CreateAdminFromInvite(ctx context.Context, user *models.User, inviteID string) error
	SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error
	RevokeRefreshToken(ctx context.Context, userID, tokenHash string, now time.Time) (bool, error)
}

// TokenIssuer signs and verifies JWTs.
type TokenIssuer interface {
	GenerateTokens(user *models.User) (*utils.TokenPair, error)
	GenerateAccessToken(user *models.User) (string, error)
	ValidateRefreshToken(token string) (*utils.Claims, error)
}

// RegisterInput is a sign-up request.
type RegisterInput struct {
	FullName string `json:"fullName" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Username string `json:"username" binding:"required,min=3,max=100"`
	Password string `json:"password" binding:"required,min=8"`
	Gender   string `json:"gender" binding:"required"`
	Birthday string `json:"birthday" binding:"required"`
	Invite   string `json:"invite"`
}

// AuthResult is returned by sign-in and token refresh.
type AuthResult struct {
	AccessToken      string                `json:"accessToken"`
	RefreshToken     string                `json:"refreshToken"`
	RefreshExpiresAt time.Time             `json:"-"`
	User             *models.UserSanitized `json:"user,omitempty"`
}

// FindUsersInput filters the user directory.
type FindUsersInput struct {
	AccountType     string `form:"accountType"`
	Username        string `form:"username"`
	IncludeDisabled bool   `form:"includeDisabled"`
}

// UpdateUserInput is a partial profile update.
type UpdateUserInput struct {
	FullName    *string             `json:"fullName"`
	Username    *string             `json:"username"`
	Email       *string             `json:"email" binding:"omitempty,email"`
	Password    *string             `json:"password" binding:"omitempty,min=8"`
	AccountType *models.AccountType `json:"accountType"`
	Gender      *string             `json:"gender"`
	Birthday    *string             `json:"birthday"`
	Bio         *string             `json:"bio"`
	Phone       *string             `json:"phone"`
	Picture     *string             `json:"picture"`
	Speciality  *string             `json:"speciality"`
	Experience  *int                `json:"experience"`
	Education   *[]string           `json:"education"`
	Conditions  *[]string           `json:"conditions"`
	Available   *bool               `json:"available"`
	Disabled    *bool               `json:"disabled"`
}

// onlyDisabled reports whether the patch toggles disabled and nothing else.
func (in UpdateUserInput) onlyDisabled() bool {
	return in.Disabled != nil &&
		in.FullName == nil && in.Username == nil && in.Email == nil && in.Password == nil &&
		in.AccountType == nil && in.Gender == nil && in.Birthday == nil && in.Bio == nil &&
		in.Phone == nil && in.Picture == nil && in.Speciality == nil && in.Experience == nil &&
		in.Education == nil && in.Conditions == nil && in.Available == nil
}

// UpdateUserResult carries a fresh access token when the account type changed.
type UpdateUserResult struct {
	User        models.UserSanitized `json:"user"`
	AccessToken string               `json:"accessToken,omitempty"`
}

// UserDeps are the collaborators of UserService.
type UserDeps struct {
	Users        UserStore
	Tokens       TokenIssuer
	Mailer       mailer.Mailer
	Background   Background
	ResetCodeTTL time.Duration
	Logger       zerolog.Logger
	Now          func() time.Time

	// FixedResetCode issues TestResetCode instead of a random code. Only the
	// test environment sets it.
	FixedResetCode bool
}

// UserService manages accounts, sessions, devices and password resets.
type UserService struct {
	UserDeps
}

// NewUserService creates a new UserService.
func NewUserService(deps UserDeps) *UserService {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.ResetCodeTTL <= 0 {
		deps.ResetCodeTTL = 48 * time.Hour
	}
	deps.Logger = deps.Logger.With().Str("service", "users").Logger()
	return &UserService{UserDeps: deps}
}

// Register creates an account. A valid invite code for the email makes the
// account an admin and consumes the invite.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.UserSanitized, error) {
	ctx, span := telemetry.StartSpan(ctx, "UserService.Register")
	defer span.End()

	email := strings.ToLower(strings.TrimSpace(in.Email))
	username := strings.ToLower(strings.TrimSpace(in.Username))
	if len(in.Password) < 8 {
		return nil, apperrors.NewValidationError("password must be at least 8 characters")
	}
	birthday, err := time.Parse(models.DateLayout, in.Birthday)
	if err != nil {
		return nil, apperrors.NewValidationError("birthday must be formatted as YYYY-MM-DD")
	}

	taken, err := s.Users.IsTaken(ctx, username, email, "")
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, apperrors.NewConflictError("username or email is already taken")
	}

	user := &models.User{
		FullName:  strings.TrimSpace(in.FullName),
		Email:     email,
		Username:  username,
		Gender:    in.Gender,
		Birthday:  &birthday,
		Available: true,
	}
	if err := user.SetPassword(in.Password); err != nil {
		return nil, apperrors.NewInternalError("failed to hash password", err)
	}

	if in.Invite != "" {
		invite, err := s.Users.FindInvite(ctx, email)
		if err != nil {
			if apperrors.Is(err, apperrors.ErrorTypeNotFound) {
				return nil, apperrors.NewUnauthorizedError("Invalid invite code")
			}
			return nil, err
		}
		if bcrypt.CompareHashAndPassword([]byte(invite.Code), []byte(in.Invite)) != nil {
			return nil, apperrors.NewUnauthorizedError("Invalid invite code")
		}
		admin := models.AccountAdmin
		user.AccountType = &admin
		if err := s.Users.CreateAdminFromInvite(ctx, user, invite.ID); err != nil {
			if apperrors.Is(err, apperrors.ErrorTypeNotFound) {
				return nil, apperrors.NewUnauthorizedError("Invalid invite code")
			}
			return nil, err
		}
	} else if err := s.Users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.Logger.Info().Str("user_id", user.ID).Msg("user registered")
	sanitized := user.Sanitize()
	return &sanitized, nil
}

// Authenticate checks credentials and opens a session.
func (s *UserService) Authenticate(ctx context.Context, identifier, password string) (*AuthResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "UserService.Authenticate")
	defer span.End()

	user, err := s.Users.FindByIdentifier(ctx, strings.TrimSpace(identifier))
	if err != nil {
		if apperrors.Is(err, apperrors.ErrorTypeNotFound) {
			return nil, apperrors.NewUnauthorizedError("Invalid credentials")
		}
		return nil, err
	}
	if !user.CheckPassword(password) {
		return nil, apperrors.NewUnauthorizedError("Invalid credentials")
	}
	if user.Disabled {
		return nil, apperrors.NewUnauthorizedError("Account is disabled")
	}

	result, err := s.issueSession(ctx, user)
	if err != nil {
		return nil, err
	}
	sanitized := user.Sanitize()
	result.User = &sanitized
	return result, nil
}

// Refresh rotates a refresh token. Each refresh token can be used once.
func (s *UserService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	claims, err := s.Tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, apperrors.NewUnauthorizedError("Invalid refresh token")
	}
	revoked, err := s.Users.RevokeRefreshToken(ctx, claims.UserID, models.HashToken(refreshToken), s.Now())
	if err != nil {
		return nil, err
	}
	if !revoked {
		return nil, apperrors.NewUnauthorizedError("Refresh token not found, expired, or revoked")
	}

	user, err := loadActor(ctx, s.Users, claims.UserID)
	if err != nil {
		return nil, err
	}
	return s.issueSession(ctx, user)
}

// Logout revokes a refresh token. Unknown tokens are ignored.
func (s *UserService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return apperrors.NewValidationError("refresh token is required")
	}
	_, err := s.Users.RevokeRefreshToken(ctx, "", models.HashToken(refreshToken), s.Now())
	return err
}

func (s *UserService) issueSession(ctx context.Context, user *models.User) (*AuthResult, error) {
	pair, err := s.Tokens.GenerateTokens(user)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to generate tokens", err)
	}
	if err := s.Users.SaveRefreshToken(ctx, &models.RefreshToken{
		UserID:    user.ID,
		TokenHash: models.HashToken(pair.RefreshToken),
		ExpiresAt: pair.RefreshExpiresAt,
	}); err != nil {
		return nil, err
	}
	return &AuthResult{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	}, nil
}

// Get returns a user's public profile.
func (s *UserService) Get(ctx context.Context, id string) (*models.UserSanitized, error) {
	user, err := s.Users.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	sanitized := user.Sanitize()
	return &sanitized, nil
}

// Find lists users. Disabled accounts are only listed for admins.
func (s *UserService) Find(ctx context.Context, in FindUsersInput, actorID string) ([]models.UserSanitized, error) {
	actor, err := loadActor(ctx, s.Users, actorID)
	if err != nil {
		return nil, err
	}

	q := repository.UserQuery{
		Username:        in.Username,
		IncludeDisabled: in.IncludeDisabled && actor.HasAccountType(models.AccountAdmin),
	}
	switch strings.ToLower(in.AccountType) {
	case "":
	case "patient":
		q.AccountTypes = []models.AccountType{models.AccountPatient}
	case "professional":
		q.AccountTypes = []models.AccountType{models.AccountProfessional, models.AccountInstitution}
	case "admin":
		q.AccountTypes = []models.AccountType{models.AccountAdmin}
	case "unset":
		q.Unset = true
	default:
		return nil, apperrors.NewValidationError("accountType must be one of patient, professional, admin, unset")
	}

	users, err := s.Users.Find(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]models.UserSanitized, 0, len(users))
	for i := range users {
		out = append(out, users[i].Sanitize())
	}
	return out, nil
}

// Update edits a profile. Users edit themselves; an admin editing someone
// else may only toggle disabled. The account type can be chosen once.
func (s *UserService) Update(ctx context.Context, id, actorID string, in UpdateUserInput) (*UpdateUserResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "UserService.Update")
	defer span.End()

	actor, err := loadActor(ctx, s.Users, actorID)
	if err != nil {
		return nil, err
	}
	user, err := s.Users.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	self := actor.ID == user.ID
	switch {
	case self && in.Disabled != nil:
		return nil, apperrors.NewUnauthorizedError("You cannot disable your own account")
	case !self && !actor.HasAccountType(models.AccountAdmin):
		return nil, apperrors.NewUnauthorizedError("You can only update your own profile")
	case !self && !in.onlyDisabled():
		return nil, apperrors.NewUnauthorizedError("Admins may only enable or disable accounts")
	}

	fields := map[string]interface{}{}
	accountTypeChanged := false

	if in.Disabled != nil {
		fields["disabled"] = *in.Disabled
		user.Disabled = *in.Disabled
	}
	if in.AccountType != nil {
		switch *in.AccountType {
		case models.AccountPatient, models.AccountProfessional, models.AccountInstitution:
		default:
			return nil, apperrors.NewValidationError("accountType must be one of PATIENT, PROFESSIONAL, INSTITUTION")
		}
		if user.AccountType != nil && *user.AccountType != *in.AccountType {
			return nil, apperrors.NewIneligibleError("account type has already been set")
		}
		if user.AccountType == nil {
			t := *in.AccountType
			fields["account_type"] = t
			user.AccountType = &t
			accountTypeChanged = true
		}
	}

	if in.Username != nil || in.Email != nil {
		username, email := user.Username, user.Email
		if in.Username != nil {
			username = strings.ToLower(strings.TrimSpace(*in.Username))
		}
		if in.Email != nil {
			email = strings.ToLower(strings.TrimSpace(*in.Email))
		}
		if username == "" || email == "" {
			return nil, apperrors.NewValidationError("username and email must not be empty")
		}
		taken, err := s.Users.IsTaken(ctx, username, email, user.ID)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, apperrors.NewConflictError("username or email is already taken")
		}
		fields["username"], fields["email"] = username, email
		user.Username, user.Email = username, email
	}

	if in.Password != nil {
		if len(*in.Password) < 8 {
			return nil, apperrors.NewValidationError("password must be at least 8 characters")
		}
		if err := user.SetPassword(*in.Password); err != nil {
			return nil, apperrors.NewInternalError("failed to hash password", err)
		}
		fields["password"] = user.Password
	}
	if in.Birthday != nil {
		birthday, err := time.Parse(models.DateLayout, *in.Birthday)
		if err != nil {
			return nil, apperrors.NewValidationError("birthday must be formatted as YYYY-MM-DD")
		}
		fields["birthday"] = birthday
		user.Birthday = &birthday
	}
	setString(fields, "full_name", in.FullName, &user.FullName)
	setString(fields, "gender", in.Gender, &user.Gender)
	setString(fields, "bio", in.Bio, &user.Bio)
	setString(fields, "phone", in.Phone, &user.Phone)
	setString(fields, "picture", in.Picture, &user.Picture)
	setString(fields, "speciality", in.Speciality, &user.Speciality)
	if in.Experience != nil {
		fields["experience"] = *in.Experience
		user.Experience = *in.Experience
	}
	if in.Education != nil {
		fields["education"] = models.StringList(*in.Education)
		user.Education = *in.Education
	}
	if in.Conditions != nil {
		fields["conditions"] = models.StringList(*in.Conditions)
		user.Conditions = *in.Conditions
	}
	if in.Available != nil {
		fields["available"] = *in.Available
		user.Available = *in.Available
	}

	if len(fields) > 0 {
		if err := s.Users.Update(ctx, user.ID, fields); err != nil {
			return nil, err
		}
	}

	result := &UpdateUserResult{User: user.Sanitize()}
	if accountTypeChanged {
		token, err := s.Tokens.GenerateAccessToken(user)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to generate token", err)
		}
		result.AccessToken = token
	}
	return result, nil
}

func setString(fields map[string]interface{}, column string, value *string, target *string) {
	if value == nil {
		return
	}
	fields[column] = *value
	*target = *value
}

// AddDevice registers a push token for the calling user.
func (s *UserService) AddDevice(ctx context.Context, userID, actorID, token string) error {
	if userID != actorID {
		return apperrors.NewUnauthorizedError("You can only manage your own devices")
	}
	if strings.TrimSpace(token) == "" {
		return apperrors.NewValidationError("device token is required")
	}
	return s.Users.AddDevice(ctx, userID, token)
}

// RemoveDevice unregisters a push token of the calling user.
func (s *UserService) RemoveDevice(ctx context.Context, userID, actorID, token string) error {
	if userID != actorID {
		return apperrors.NewUnauthorizedError("You can only manage your own devices")
	}
	return s.Users.RemoveDevice(ctx, userID, token)
}

// InviteAdmin emails an admin registration code to email. Inviting the same
// address again replaces the previous code.
func (s *UserService) InviteAdmin(ctx context.Context, actorID, email string) error {
	actor, err := loadActor(ctx, s.Users, actorID)
	if err != nil {
		return err
	}
	if !actor.HasAccountType(models.AccountAdmin) {
		return apperrors.NewUnauthorizedError("Only admins can invite admins")
	}
	email = strings.ToLower(strings.TrimSpace(email))
	taken, err := s.Users.IsTaken(ctx, "", email, "")
	if err != nil {
		return err
	}
	if taken {
		return apperrors.NewConflictError("a user with this email already exists")
	}

	code, err := randomCode()
	if err != nil {
		return apperrors.NewInternalError("failed to generate invite code", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return apperrors.NewInternalError("failed to hash invite code", err)
	}
	if err := s.Users.SaveInvite(ctx, &models.Invite{Email: email, Code: string(hash)}); err != nil {
		return err
	}

	s.sendEmail(mailer.Email{
		To:      email,
		Subject: "You have been invited to CareConnect",
		Body:    fmt.Sprintf("You have been invited to join CareConnect as an administrator.\n\nUse the code %s when you register with this email address.\n", code),
	})
	return nil
}

// ResetPassword issues a reset code for email and mails it.
func (s *UserService) ResetPassword(ctx context.Context, email string) error {
	user, err := s.Users.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return err
	}

	code := TestResetCode
	if !s.FixedResetCode {
		if code, err = randomCode(); err != nil {
			return apperrors.NewInternalError("failed to generate reset code", err)
		}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return apperrors.NewInternalError("failed to hash reset code", err)
	}
	expires := s.Now().Add(s.ResetCodeTTL)
	if err := s.Users.Update(ctx, user.ID, map[string]interface{}{
		"reset_code":            string(hash),
		"reset_code_expiration": expires,
	}); err != nil {
		return err
	}

	s.sendEmail(mailer.Email{
		To:      user.Email,
		Subject: "Reset your CareConnect password",
		Body:    fmt.Sprintf("Hello %s,\n\nYour password reset code is %s. It expires on %s.\n", user.FullName, code, expires.UTC().Format(time.RFC1123)),
	})
	return nil
}

// ConfirmReset sets a new password when code matches the issued reset code.
func (s *UserService) ConfirmReset(ctx context.Context, email, code, newPassword string) error {
	if len(newPassword) < 8 {
		return apperrors.NewValidationError("password must be at least 8 characters")
	}
	user, err := s.Users.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if apperrors.Is(err, apperrors.ErrorTypeNotFound) {
			return apperrors.NewUnauthorizedError("Invalid or expired reset code")
		}
		return err
	}
	if user.ResetCode == "" || user.ResetCodeExpiration == nil || !s.Now().Before(*user.ResetCodeExpiration) {
		return apperrors.NewUnauthorizedError("Invalid or expired reset code")
	}
	if bcrypt.CompareHashAndPassword([]byte(user.ResetCode), []byte(code)) != nil {
		return apperrors.NewUnauthorizedError("Invalid or expired reset code")
	}

	if err := user.SetPassword(newPassword); err != nil {
		return apperrors.NewInternalError("failed to hash password", err)
	}
	return s.Users.Update(ctx, user.ID, map[string]interface{}{
		"password":              user.Password,
		"reset_code":            "",
		"reset_code_expiration": nil,
	})
}

func (s *UserService) sendEmail(email mailer.Email) {
	if s.Background == nil || s.Mailer == nil {
		return
	}
	s.Background.Submit("email:"+email.Subject, func(ctx context.Context) error {
		return s.Mailer.Send(ctx, email)
	})
}

// randomCode returns six random decimal digits.
func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
