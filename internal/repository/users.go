package repository

import (
	"context"
	"strings"
	"time"

	"careconnect-server/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	msgUserNotFound  = "User not found"
	msgUserTaken     = "username or email is already taken"
	msgInviteMissing = "Invite not found"
)

// UserQuery filters a user listing.
type UserQuery struct {
	// AccountTypes matches any of the listed types; Unset matches users that
	// have not chosen one yet.
	AccountTypes    []models.AccountType
	Unset           bool
	Username        string
	IncludeDisabled bool
}

// UserRepository persists users, their devices, invites and refresh tokens.
type UserRepository struct {
	DB *gorm.DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{DB: db}
}

// Create inserts a user.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	return translate(r.DB.WithContext(ctx).Create(user).Error, msgUserNotFound, msgUserTaken)
}

// FindByID loads a user.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := r.DB.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, translate(err, msgUserNotFound, msgUserTaken)
	}
	return &user, nil
}

// FindByEmail loads a user by email address.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.DB.WithContext(ctx).First(&user, "email = ?", strings.ToLower(email)).Error; err != nil {
		return nil, translate(err, msgUserNotFound, msgUserTaken)
	}
	return &user, nil
}

// FindByIdentifier loads a user by username or email.
func (r *UserRepository) FindByIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	identifier = strings.ToLower(identifier)
	var user models.User
	err := r.DB.WithContext(ctx).
		Where("username = ? OR email = ?", identifier, identifier).
		First(&user).Error
	if err != nil {
		return nil, translate(err, msgUserNotFound, msgUserTaken)
	}
	return &user, nil
}

// IsTaken reports whether username or email belongs to a user other than excludeID.
func (r *UserRepository) IsTaken(ctx context.Context, username, email, excludeID string) (bool, error) {
	query := r.DB.WithContext(ctx).Model(&models.User{}).
		Where("username = ? OR email = ?", strings.ToLower(username), strings.ToLower(email))
	if excludeID != "" {
		query = query.Where("id <> ?", excludeID)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, translate(err, msgUserNotFound, msgUserTaken)
	}
	return count > 0, nil
}

// Find lists users matching q.
func (r *UserRepository) Find(ctx context.Context, q UserQuery) ([]models.User, error) {
	query := r.DB.WithContext(ctx).Model(&models.User{})
	switch {
	case q.Unset:
		query = query.Where("account_type IS NULL")
	case len(q.AccountTypes) > 0:
		query = query.Where("account_type IN ?", q.AccountTypes)
	}
	if q.Username != "" {
		query = query.Where("username LIKE ?", "%"+strings.ToLower(q.Username)+"%")
	}
	if !q.IncludeDisabled {
		query = query.Where("disabled = ?", false)
	}
	var users []models.User
	err := query.Order("full_name asc").Find(&users).Error
	return users, translate(err, msgUserNotFound, msgUserTaken)
}

// Update applies fields to the user.
func (r *UserRepository) Update(ctx context.Context, id string, fields map[string]interface{}) error {
	err := r.DB.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(fields).Error
	return translate(err, msgUserNotFound, msgUserTaken)
}

// AddDevice registers a push token for the user. Re-registering a token
// moves it to the new owner.
func (r *UserRepository) AddDevice(ctx context.Context, userID, token string) error {
	device := models.Device{UserID: userID, Token: token}
	err := r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "updated_at"}),
	}).Create(&device).Error
	return translate(err, msgUserNotFound, msgUserTaken)
}

// RemoveDevice unregisters a push token.
func (r *UserRepository) RemoveDevice(ctx context.Context, userID, token string) error {
	err := r.DB.WithContext(ctx).
		Where("user_id = ? AND token = ?", userID, token).
		Delete(&models.Device{}).Error
	return translate(err, msgUserNotFound, msgUserTaken)
}

// DeviceTokens returns the push tokens registered for the user.
func (r *UserRepository) DeviceTokens(ctx context.Context, userID string) ([]string, error) {
	var tokens []string
	err := r.DB.WithContext(ctx).Model(&models.Device{}).
		Where("user_id = ?", userID).
		Pluck("token", &tokens).Error
	return tokens, translate(err, msgUserNotFound, msgUserTaken)
}

// SaveInvite creates or replaces the invite for invite.Email.
func (r *UserRepository) SaveInvite(ctx context.Context, invite *models.Invite) error {
	err := r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoUpdates: clause.AssignmentColumns([]string{"code", "updated_at"}),
	}).Create(invite).Error
	return translate(err, msgInviteMissing, msgUserTaken)
}

// FindInvite loads the invite for email.
func (r *UserRepository) FindInvite(ctx context.Context, email string) (*models.Invite, error) {
	var invite models.Invite
	if err := r.DB.WithContext(ctx).First(&invite, "email = ?", strings.ToLower(email)).Error; err != nil {
		return nil, translate(err, msgInviteMissing, msgUserTaken)
	}
	return &invite, nil
}

// CreateAdminFromInvite inserts the user and consumes the invite in one
// transaction.
func (r *UserRepository) CreateAdminFromInvite(ctx context.Context, user *models.User, inviteID string) error {
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ?", inviteID).Delete(&models.Invite{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Create(user).Error
	})
	return translate(err, msgInviteMissing, msgUserTaken)
}

// SaveRefreshToken stores an issued refresh token.
func (r *UserRepository) SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	return translate(r.DB.WithContext(ctx).Create(token).Error, msgUserNotFound, "refresh token already issued")
}

// RevokeRefreshToken revokes a live refresh token. It reports false when the
// token is unknown, expired or already revoked, so a token can only be
// rotated once.
func (r *UserRepository) RevokeRefreshToken(ctx context.Context, userID, tokenHash string, now time.Time) (bool, error) {
	query := r.DB.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("token_hash = ? AND is_revoked = ? AND expires_at > ?", tokenHash, false, now)
	if userID != "" {
		query = query.Where("user_id = ?", userID)
	}
	result := query.Update("is_revoked", true)
	if result.Error != nil {
		return false, translate(result.Error, msgUserNotFound, msgUserTaken)
	}
	return result.RowsAffected == 1, nil
}
