package models

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

// AccountType enum
type AccountType string

const (
	AccountAdmin        AccountType = "ADMIN"
	AccountProfessional AccountType = "PROFESSIONAL"
	AccountPatient      AccountType = "PATIENT"
	AccountInstitution  AccountType = "INSTITUTION"
)

// IsProvider reports whether the account type may receive appointments.
func (a AccountType) IsProvider() bool {
	return a == AccountProfessional || a == AccountInstitution
}

// User represents a user in the system
type User struct {
	BaseModel
	FullName            string       `gorm:"size:255;not null" json:"fullName"`
	Email               string       `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Username            string       `gorm:"uniqueIndex;size:100;not null" json:"username"`
	Password            string       `gorm:"size:255;not null" json:"-"` // Never send password in JSON
	AccountType         *AccountType `gorm:"size:20;index" json:"accountType"`
	Gender              string       `gorm:"size:20" json:"gender,omitempty"`
	Birthday            *time.Time   `json:"birthday,omitempty"`
	Bio                 string       `gorm:"type:text" json:"bio,omitempty"`
	Phone               string       `gorm:"size:30" json:"phone,omitempty"`
	Picture             string       `gorm:"size:255" json:"picture,omitempty"`
	Speciality          string       `gorm:"size:255" json:"speciality,omitempty"`
	Experience          int          `json:"experience,omitempty"`
	Education           StringList   `gorm:"type:text" json:"education,omitempty"`
	Conditions          StringList   `gorm:"type:text" json:"conditions,omitempty"`
	Disabled            bool         `gorm:"default:false" json:"disabled"`
	Available           bool         `gorm:"default:true" json:"available"`
	ResetCode           string       `gorm:"size:255" json:"-"`
	ResetCodeExpiration *time.Time   `json:"-"`

	// Relations (not always preloaded)
	Devices       []Device       `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	RefreshTokens []RefreshToken `gorm:"foreignKey:UserID" json:"-"`
}

// Device is a push notification token registered by one of the user's devices.
type Device struct {
	BaseModel
	UserID string `gorm:"size:36;index;not null" json:"userId"`
	Token  string `gorm:"uniqueIndex;size:255;not null" json:"token"`
}

// Invite grants admin registration to an email address.
type Invite struct {
	BaseModel
	Email string `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Code  string `gorm:"size:255;not null" json:"-"`
}

// UserSanitized represents the user data that is safe to send in API responses.
type UserSanitized struct {
	ID          string       `json:"id"`
	FullName    string       `json:"fullName"`
	Email       string       `json:"email"`
	Username    string       `json:"username"`
	AccountType *AccountType `json:"accountType"`
	Gender      string       `json:"gender,omitempty"`
	Birthday    *time.Time   `json:"birthday,omitempty"`
	Bio         string       `json:"bio,omitempty"`
	Phone       string       `json:"phone,omitempty"`
	Picture     string       `json:"picture,omitempty"`
	Speciality  string       `json:"speciality,omitempty"`
	Experience  int          `json:"experience,omitempty"`
	Education   []string     `json:"education,omitempty"`
	Conditions  []string     `json:"conditions,omitempty"`
	Disabled    bool         `json:"disabled"`
	Available   bool         `json:"available"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// UserRef is the minimal identity projection embedded in other resources.
type UserRef struct {
	ID       string `json:"id"`
	FullName string `json:"fullName"`
}

// SetPassword hashes a password and sets it on the user
func (u *User) SetPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.Password = string(hashedPassword)
	return nil
}

// CheckPassword compares a password with the user's hashed password
func (u *User) CheckPassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password))
	return err == nil
}

// HasAccountType reports whether the user's account type is one of types.
func (u *User) HasAccountType(types ...AccountType) bool {
	if u.AccountType == nil {
		return false
	}
	for _, t := range types {
		if *u.AccountType == t {
			return true
		}
	}
	return false
}

// Ref projects the user to its minimal identity.
func (u *User) Ref() *UserRef {
	if u == nil || u.ID == "" {
		return nil
	}
	return &UserRef{ID: u.ID, FullName: u.FullName}
}

// Sanitize creates a UserSanitized struct from a User model, excluding sensitive data.
func (u *User) Sanitize() UserSanitized {
	return UserSanitized{
		ID:          u.ID,
		FullName:    u.FullName,
		Email:       u.Email,
		Username:    u.Username,
		AccountType: u.AccountType,
		Gender:      u.Gender,
		Birthday:    u.Birthday,
		Bio:         u.Bio,
		Phone:       u.Phone,
		Picture:     u.Picture,
		Speciality:  u.Speciality,
		Experience:  u.Experience,
		Education:   u.Education,
		Conditions:  u.Conditions,
		Disabled:    u.Disabled,
		Available:   u.Available,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}
