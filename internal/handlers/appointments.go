package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"careconnect-server/internal/models"
	"careconnect-server/internal/payments"
	"careconnect-server/internal/services"
	"careconnect-server/internal/utils"
)

// AppointmentAPI is the appointment surface used by AppointmentHandler.
type AppointmentAPI interface {
	Create(ctx context.Context, professionalID, patientID string, in services.CreateAppointmentInput) (*models.AppointmentView, error)
	Update(ctx context.Context, appointmentID, actorID string, in services.UpdateAppointmentInput, file *services.Upload) (*services.UpdateResult, error)
	Checkout(ctx context.Context, appointmentID, actorID string) (*payments.Intent, error)
	ConfirmPayment(ctx context.Context, appointmentID, actorID string) (*models.AppointmentView, error)
	FindForUser(ctx context.Context, userID, actorID string) ([]models.AppointmentView, error)
	FindByID(ctx context.Context, appointmentID, actorID string) (*models.AppointmentView, error)
	GetBillingHistory(ctx context.Context, professionalID string) ([]models.AppointmentView, error)
	GetPaymentSummary(ctx context.Context, filter models.PaymentFilter, actorID string) (*services.PaymentSummary, error)
	Receipt(ctx context.Context, appointmentID, actorID string) ([]byte, error)
	TestFile(ctx context.Context, name, actorID string) (string, error)
}

// AppointmentHandler handles appointment, billing and test file requests.
type AppointmentHandler struct {
	appointments AppointmentAPI
}

// NewAppointmentHandler creates a new AppointmentHandler.
func NewAppointmentHandler(appointments AppointmentAPI) *AppointmentHandler {
	return &AppointmentHandler{appointments: appointments}
}

// CreateAppointment books a slot with the professional in the path.
func (h *AppointmentHandler) CreateAppointment(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req services.CreateAppointmentInput
	if !utils.BindAndValidate(c, &req) {
		return
	}
	appointment, err := h.appointments.Create(c.Request.Context(), c.Param("professionalId"), userID, req)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Created(c, "Appointment created successfully", appointment)
}

// UpdateAppointment applies a patch. Multipart requests may carry the test
// result file in the testFile field.
func (h *AppointmentHandler) UpdateAppointment(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req services.UpdateAppointmentInput
	if isMultipart(c) {
		if !utils.BindForm(c, &req) {
			return
		}
	} else if !utils.BindAndValidate(c, &req) {
		return
	}

	upload, closeFile, err := formFile(c, "testFile")
	if err != nil {
		utils.BadRequest(c, "Invalid test file upload")
		return
	}
	defer closeFile()

	result, err := h.appointments.Update(c.Request.Context(), c.Param("appointmentId"), userID, req, upload)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Success(c, "Appointment updated successfully", result)
}

// Checkout starts or resumes the payment of an appointment.
func (h *AppointmentHandler) Checkout(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	intent, err := h.appointments.Checkout(c.Request.Context(), c.Param("appointmentId"), userID)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Success(c, "Checkout started", intent)
}

// ConfirmPayment records a completed payment.
func (h *AppointmentHandler) ConfirmPayment(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	appointment, err := h.appointments.ConfirmPayment(c.Request.Context(), c.Param("appointmentId"), userID)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Success(c, "Payment confirmed", appointment)
}

// GetUserAppointments lists the appointments of the caller.
func (h *AppointmentHandler) GetUserAppointments(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	list, err := h.appointments.FindForUser(c.Request.Context(), c.Param("userId"), userID)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Success(c, "Appointments retrieved successfully", list)
}

// GetAppointment returns one appointment the caller is party to.
func (h *AppointmentHandler) GetAppointment(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	appointment, err := h.appointments.FindByID(c.Request.Context(), c.Param("appointmentId"), userID)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Success(c, "Appointment retrieved successfully", appointment)
}

// GetBillingHistory lists the billed appointments the caller provided, as a
// professional or an institution.
func (h *AppointmentHandler) GetBillingHistory(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	list, err := h.appointments.GetBillingHistory(c.Request.Context(), userID)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Success(c, "Billing history retrieved successfully", list)
}

// PaymentSummaryQuery selects one patient and professional pair.
type PaymentSummaryQuery struct {
	Patient      string `form:"patient"`
	Professional string `form:"professional"`
}

// GetPaymentSummary returns the pair's billed appointments or, without a
// pair, the grouped report.
func (h *AppointmentHandler) GetPaymentSummary(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var query PaymentSummaryQuery
	if !utils.BindQuery(c, &query) {
		return
	}
	filter := models.PaymentFilter{PatientID: query.Patient, ProfessionalID: query.Professional}
	summary, err := h.appointments.GetPaymentSummary(c.Request.Context(), filter, userID)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Success(c, "Payment summary retrieved successfully", summary)
}

// GetReceipt streams the PDF receipt of a billed appointment.
func (h *AppointmentHandler) GetReceipt(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id := c.Param("appointmentId")
	pdf, err := h.appointments.Receipt(c.Request.Context(), id, userID)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=receipt-%s.pdf", id))
	c.Data(http.StatusOK, "application/pdf", pdf)
}

// GetTestFile streams a stored test result.
func (h *AppointmentHandler) GetTestFile(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	path, err := h.appointments.TestFile(c.Request.Context(), c.Param("testFile"), userID)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	c.File(path)
}
