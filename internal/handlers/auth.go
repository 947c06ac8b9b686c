package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"careconnect-server/internal/models"
	"careconnect-server/internal/services"
	"careconnect-server/internal/utils"
)

const refreshCookie = "refresh_token"

// AccountService is the account surface used by AuthHandler and UserHandler.
type AccountService interface {
	Register(ctx context.Context, in services.RegisterInput) (*models.UserSanitized, error)
	Authenticate(ctx context.Context, identifier, password string) (*services.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*services.AuthResult, error)
	Logout(ctx context.Context, refreshToken string) error
	Get(ctx context.Context, id string) (*models.UserSanitized, error)
	Find(ctx context.Context, in services.FindUsersInput, actorID string) ([]models.UserSanitized, error)
	Update(ctx context.Context, id, actorID string, in services.UpdateUserInput) (*services.UpdateUserResult, error)
	AddDevice(ctx context.Context, userID, actorID, token string) error
	RemoveDevice(ctx context.Context, userID, actorID, token string) error
	InviteAdmin(ctx context.Context, actorID, email string) error
	ResetPassword(ctx context.Context, email string) error
	ConfirmReset(ctx context.Context, email, code, newPassword string) error
}

// AuthHandler handles authentication related requests.
type AuthHandler struct {
	accounts      AccountService
	secureCookies bool
}

// NewAuthHandler creates a new AuthHandler. secureCookies marks the refresh
// cookie Secure.
func NewAuthHandler(accounts AccountService, secureCookies bool) *AuthHandler {
	return &AuthHandler{accounts: accounts, secureCookies: secureCookies}
}

// Register handles user registration.
func (h *AuthHandler) Register(c *gin.Context) {
	var req services.RegisterInput
	if !utils.BindAndValidate(c, &req) {
		return
	}
	user, err := h.accounts.Register(c.Request.Context(), req)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Created(c, "User registered successfully", user)
}

// SignInRequest accepts a username or an email as identifier.
type SignInRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	Password   string `json:"password" binding:"required"`
}

// SignIn handles user sign-in.
func (h *AuthHandler) SignIn(c *gin.Context) {
	var req SignInRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	result, err := h.accounts.Authenticate(c.Request.Context(), req.Identifier, req.Password)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	h.setRefreshCookie(c, result.RefreshToken, result.RefreshExpiresAt)
	utils.Success(c, "Login successful", result)
}

// RefreshTokenRequest represents the request body for token refresh.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// RefreshToken rotates the refresh token from the cookie, or from the body
// when no cookie is sent.
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	token := h.refreshTokenFrom(c)
	if token == "" {
		utils.Unauthorized(c, "Refresh token is required")
		return
	}
	result, err := h.accounts.Refresh(c.Request.Context(), token)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	h.setRefreshCookie(c, result.RefreshToken, result.RefreshExpiresAt)
	utils.Success(c, "Token refreshed successfully", result)
}

// Logout revokes the refresh token and clears the cookie.
func (h *AuthHandler) Logout(c *gin.Context) {
	token := h.refreshTokenFrom(c)
	if token == "" {
		utils.BadRequest(c, "Refresh token is required")
		return
	}
	if err := h.accounts.Logout(c.Request.Context(), token); err != nil {
		utils.HandleError(c, err)
		return
	}
	c.SetCookie(refreshCookie, "", -1, "/", "", h.secureCookies, true)
	utils.Success(c, "Logout successful. Refresh token has been invalidated.", nil)
}

// Profile returns the authenticated user's profile.
func (h *AuthHandler) Profile(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	user, err := h.accounts.Get(c.Request.Context(), userID)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Success(c, "Profile retrieved successfully", user)
}

func (h *AuthHandler) refreshTokenFrom(c *gin.Context) string {
	if token, err := c.Cookie(refreshCookie); err == nil && token != "" {
		return token
	}
	var req RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return ""
	}
	return req.RefreshToken
}

func (h *AuthHandler) setRefreshCookie(c *gin.Context, token string, expires time.Time) {
	maxAge := int(time.Until(expires).Seconds())
	if maxAge < 0 {
		maxAge = 0
	}
	c.SetCookie(refreshCookie, token, maxAge, "/", "", h.secureCookies, true)
}
