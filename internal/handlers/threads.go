package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"careconnect-server/internal/models"
	"careconnect-server/internal/services"
	"careconnect-server/internal/utils"
)

// ThreadAPI is the messaging surface used by ThreadHandler.
type ThreadAPI interface {
	Post(ctx context.Context, senderID string, in services.PostMessageInput) (*models.Message, error)
	ThreadMessages(ctx context.Context, actorID, threadID string) ([]models.Message, error)
	UserThreads(ctx context.Context, userID, actorID string) ([]models.ThreadView, error)
	PublicThreads(ctx context.Context) ([]models.ThreadView, error)
	Conversation(ctx context.Context, actorID, otherID string) ([]models.Message, error)
	MarkRead(ctx context.Context, actorID, messageID string) (*models.Message, error)
}

// ThreadHandler handles message threads.
type ThreadHandler struct {
	threads ThreadAPI
}

// NewThreadHandler creates a new ThreadHandler.
func NewThreadHandler(threads ThreadAPI) *ThreadHandler {
	return &ThreadHandler{threads: threads}
}

// SendMessage posts to an existing thread or opens a private one with the
// recipient.
func (h *ThreadHandler) SendMessage(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req services.PostMessageInput
	if !utils.BindAndValidate(c, &req) {
		return
	}
	message, err := h.threads.Post(c.Request.Context(), userID, req)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Created(c, "Message sent successfully", message)
}

// GetThreads lists the caller's threads.
func (h *ThreadHandler) GetThreads(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	threads, err := h.threads.UserThreads(c.Request.Context(), userID, userID)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Success(c, "Threads retrieved successfully", threads)
}

func (h *ThreadHandler) GetPublicThreads(c *gin.Context) {
	threads, err := h.threads.PublicThreads(c.Request.Context())
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Success(c, "Threads retrieved successfully", threads)
}

func (h *ThreadHandler) GetThreadMessages(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	messages, err := h.threads.ThreadMessages(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Success(c, "Messages retrieved successfully", messages)
}

// GetConversation returns the private messages between the caller and
// another user.
func (h *ThreadHandler) GetConversation(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	messages, err := h.threads.Conversation(c.Request.Context(), userID, c.Param("userId"))
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Success(c, "Conversation retrieved successfully", messages)
}

// MarkMessageAsRead marks a message addressed to the caller as read.
func (h *ThreadHandler) MarkMessageAsRead(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	message, err := h.threads.MarkRead(c.Request.Context(), userID, c.Param("messageId"))
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Success(c, "Message marked as read", message)
}
