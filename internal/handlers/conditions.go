package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"careconnect-server/internal/models"
	"careconnect-server/internal/services"
	"careconnect-server/internal/utils"
)

// ConditionAPI is the condition catalogue surface used by ConditionHandler.
type ConditionAPI interface {
	Create(ctx context.Context, actorID string, in services.CreateConditionInput, media *services.Upload) (*models.Condition, error)
	Find(ctx context.Context, actorID, search string, includeDisabled bool) ([]models.Condition, error)
	Get(ctx context.Context, actorID, id string) (*models.Condition, error)
	Update(ctx context.Context, actorID, id string, in services.UpdateConditionInput) (*models.Condition, error)
	AddComment(ctx context.Context, actorID, conditionID, body string) (*models.CommentView, error)
	ListComments(ctx context.Context, conditionID string) ([]models.CommentView, error)
	Media(name string) (string, error)
}

// ConditionHandler handles the condition catalogue and its comments.
type ConditionHandler struct {
	conditions ConditionAPI
}

// NewConditionHandler creates a new ConditionHandler.
func NewConditionHandler(conditions ConditionAPI) *ConditionHandler {
	return &ConditionHandler{conditions: conditions}
}

// ConditionQuery filters the catalogue.
type ConditionQuery struct {
	Search          string `form:"search"`
	IncludeDisabled bool   `form:"includeDisabled"`
}

// CreateCondition adds a condition. A multipart request may carry a media
// file in the media field.
func (h *ConditionHandler) CreateCondition(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req services.CreateConditionInput
	if isMultipart(c) {
		if !utils.BindForm(c, &req) {
			return
		}
	} else if !utils.BindAndValidate(c, &req) {
		return
	}

	media, closeFile, err := formFile(c, "media")
	if err != nil {
		utils.BadRequest(c, "Invalid media upload")
		return
	}
	defer closeFile()

	condition, err := h.conditions.Create(c.Request.Context(), userID, req, media)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Created(c, "Condition created successfully", condition)
}

// FindConditions lists conditions matching the search term.
func (h *ConditionHandler) FindConditions(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var query ConditionQuery
	if !utils.BindQuery(c, &query) {
		return
	}
	list, err := h.conditions.Find(c.Request.Context(), userID, query.Search, query.IncludeDisabled)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Success(c, "Conditions retrieved successfully", list)
}

func (h *ConditionHandler) GetCondition(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	condition, err := h.conditions.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Success(c, "Condition retrieved successfully", condition)
}

func (h *ConditionHandler) UpdateCondition(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req services.UpdateConditionInput
	if !utils.BindAndValidate(c, &req) {
		return
	}
	condition, err := h.conditions.Update(c.Request.Context(), userID, c.Param("id"), req)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Success(c, "Condition updated successfully", condition)
}

// CommentRequest is the body of a new comment.
type CommentRequest struct {
	Body string `json:"body" binding:"required"`
}

func (h *ConditionHandler) AddComment(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req CommentRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	comment, err := h.conditions.AddComment(c.Request.Context(), userID, c.Param("id"), req.Body)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Created(c, "Comment added", comment)
}

func (h *ConditionHandler) ListComments(c *gin.Context) {
	comments, err := h.conditions.ListComments(c.Request.Context(), c.Param("id"))
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Success(c, "Comments retrieved successfully", comments)
}

// GetMedia streams a stored condition media file.
func (h *ConditionHandler) GetMedia(c *gin.Context) {
	path, err := h.conditions.Media(c.Param("file"))
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	c.File(path)
}
