package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"careconnect-server/internal/models"
	"careconnect-server/internal/services"
	"careconnect-server/internal/utils"
)

// ReviewAPI is the review surface used by ReviewHandler.
type ReviewAPI interface {
	Create(ctx context.Context, appointmentID, actorID string, in services.CreateReviewInput) (*models.ReviewView, error)
	GetForAppointment(ctx context.Context, appointmentID string) (*models.ReviewView, error)
	ListForUser(ctx context.Context, userID string) (*services.ProfessionalReviews, error)
}

type ReviewHandler struct {
	reviews ReviewAPI
}

func NewReviewHandler(reviews ReviewAPI) *ReviewHandler {
	return &ReviewHandler{reviews: reviews}
}

// CreateReview rates a closed appointment.
func (h *ReviewHandler) CreateReview(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req services.CreateReviewInput
	if !utils.BindAndValidate(c, &req) {
		return
	}
	review, err := h.reviews.Create(c.Request.Context(), c.Param("appointmentId"), userID, req)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Created(c, "Review created successfully", review)
}

func (h *ReviewHandler) GetReview(c *gin.Context) {
	review, err := h.reviews.GetForAppointment(c.Request.Context(), c.Param("appointmentId"))
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Success(c, "Review retrieved successfully", review)
}

// GetUserReviews lists a professional's reviews with the average rating.
func (h *ReviewHandler) GetUserReviews(c *gin.Context) {
	result, err := h.reviews.ListForUser(c.Request.Context(), c.Param("userId"))
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Success(c, "Reviews retrieved successfully", result)
}
