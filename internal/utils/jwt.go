package utils

import (
	"fmt"
	"time"

	"careconnect-server/internal/config"
	"careconnect-server/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims represents the JWT claims.
type Claims struct {
	UserID      string `json:"userId"`
	AccountType string `json:"accountType,omitempty"`
	jwt.RegisteredClaims
}

// TokenPair is an access token with its refresh token.
type TokenPair struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"-"`
}

// GenerateTokens generates both access and refresh tokens for a user.
func GenerateTokens(user *models.User, cfg *config.Config) (*TokenPair, error) {
	accessToken, err := GenerateAccessToken(user, cfg)
	if err != nil {
		return nil, err
	}

	refreshExpires := time.Now().Add(time.Duration(cfg.JWTRefreshExpirationHours) * time.Hour)
	refreshToken, err := signToken(user, refreshExpires, cfg.JWTRefreshSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: refreshExpires,
	}, nil
}

// GenerateAccessToken issues a short-lived access token.
func GenerateAccessToken(user *models.User, cfg *config.Config) (string, error) {
	expirationTime := time.Now().Add(time.Duration(cfg.JWTExpirationMinutes) * time.Minute)
	token, err := signToken(user, expirationTime, cfg.JWTSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return token, nil
}

func signToken(user *models.User, expires time.Time, secret string) (string, error) {
	claims := &Claims{
		UserID: user.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   user.ID,
		},
	}
	if user.AccountType != nil {
		claims.AccountType = string(*user.AccountType)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ValidateToken validates a JWT token.
func ValidateToken(tokenString string, secretKey string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secretKey), nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	return claims, nil
}

// JWTIssuer issues and verifies tokens with the secrets of cfg.
type JWTIssuer struct {
	Cfg *config.Config
}

// NewJWTIssuer creates a new JWTIssuer.
func NewJWTIssuer(cfg *config.Config) *JWTIssuer {
	return &JWTIssuer{Cfg: cfg}
}

// GenerateTokens issues an access and refresh token pair.
func (i *JWTIssuer) GenerateTokens(user *models.User) (*TokenPair, error) {
	return GenerateTokens(user, i.Cfg)
}

// GenerateAccessToken issues an access token.
func (i *JWTIssuer) GenerateAccessToken(user *models.User) (string, error) {
	return GenerateAccessToken(user, i.Cfg)
}

// ValidateAccessToken verifies an access token.
func (i *JWTIssuer) ValidateAccessToken(token string) (*Claims, error) {
	return ValidateToken(token, i.Cfg.JWTSecret)
}

// ValidateRefreshToken verifies a refresh token.
func (i *JWTIssuer) ValidateRefreshToken(token string) (*Claims, error) {
	return ValidateToken(token, i.Cfg.JWTRefreshSecret)
}
