package handlers

import (
	"github.com/gin-gonic/gin"

	"careconnect-server/internal/services"
	"careconnect-server/internal/utils"
)

// UserHandler handles user directory and account management requests.
type UserHandler struct {
	accounts AccountService
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(accounts AccountService) *UserHandler {
	return &UserHandler{accounts: accounts}
}

// FindUsers lists users filtered by account type and username.
func (h *UserHandler) FindUsers(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var query services.FindUsersInput
	if !utils.BindQuery(c, &query) {
		return
	}
	users, err := h.accounts.Find(c.Request.Context(), query, userID)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Success(c, "Users retrieved successfully", users)
}

// GetUser returns a user's public profile.
func (h *UserHandler) GetUser(c *gin.Context) {
	user, err := h.accounts.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Success(c, "User retrieved successfully", user)
}

// UpdateUser applies a partial profile update.
func (h *UserHandler) UpdateUser(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req services.UpdateUserInput
	if !utils.BindAndValidate(c, &req) {
		return
	}
	result, err := h.accounts.Update(c.Request.Context(), c.Param("id"), userID, req)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Success(c, "User updated successfully", result)
}

// DeviceRequest registers a push token.
type DeviceRequest struct {
	Token string `json:"token" binding:"required"`
}

// AddDevice registers a push token for the caller.
func (h *UserHandler) AddDevice(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req DeviceRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	if err := h.accounts.AddDevice(c.Request.Context(), c.Param("id"), userID, req.Token); err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Created(c, "Device registered", nil)
}

// RemoveDevice unregisters a push token of the caller.
func (h *UserHandler) RemoveDevice(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.accounts.RemoveDevice(c.Request.Context(), c.Param("id"), userID, c.Param("token")); err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Success(c, "Device removed", nil)
}

// InviteRequest names the email to invite as admin.
type InviteRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// InviteAdmin emails an admin registration code.
func (h *UserHandler) InviteAdmin(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req InviteRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	if err := h.accounts.InviteAdmin(c.Request.Context(), userID, req.Email); err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Created(c, "Invite sent", nil)
}

// ResetPasswordRequest asks for a reset code.
type ResetPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// ResetPassword mails a password reset code.
func (h *UserHandler) ResetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	if err := h.accounts.ResetPassword(c.Request.Context(), req.Email); err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Success(c, "Reset code sent", nil)
}

// ConfirmResetRequest sets a new password with a reset code.
type ConfirmResetRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Code     string `json:"code" binding:"required"`
	Password string `json:"password" binding:"required,min=8"`
}

// ConfirmReset sets a new password.
func (h *UserHandler) ConfirmReset(c *gin.Context) {
	var req ConfirmResetRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	if err := h.accounts.ConfirmReset(c.Request.Context(), req.Email, req.Code, req.Password); err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Success(c, "Password updated", nil)
}
