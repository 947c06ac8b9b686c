package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"careconnect-server/internal/handlers"
	"careconnect-server/internal/middleware"
	"careconnect-server/internal/models"
	"careconnect-server/internal/realtime"
)

// Handlers groups the HTTP handlers mounted by SetupRoutes.
type Handlers struct {
	Auth         *handlers.AuthHandler
	Users        *handlers.UserHandler
	Appointments *handlers.AppointmentHandler
	Reviews      *handlers.ReviewHandler
	Conditions   *handlers.ConditionHandler
	Threads      *handlers.ThreadHandler
	Realtime     *realtime.Handler
}

// SetupRoutes configures the application routes.
func SetupRoutes(router *gin.Engine, h Handlers, tokens middleware.TokenValidator) {
	// Public routes (no authentication required)
	public := router.Group("/api/v1")
	{
		authRoutes := public.Group("/auth")
		{
			authRoutes.POST("/register", h.Auth.Register)
			authRoutes.POST("/signin", h.Auth.SignIn)
			authRoutes.POST("/refresh-token", h.Auth.RefreshToken)
		}
		public.POST("/users/reset-password", h.Users.ResetPassword)
		public.POST("/users/confirm-reset", h.Users.ConfirmReset)

		// The websocket authenticates with the token query parameter.
		public.GET("/ws", h.Realtime.Connect)
	}

	// Authenticated routes
	private := router.Group("/api/v1")
	private.Use(middleware.AuthMiddleware(tokens))
	{
		authRoutesPrivate := private.Group("/auth")
		{
			authRoutesPrivate.POST("/logout", h.Auth.Logout)
			authRoutesPrivate.GET("/profile", h.Auth.Profile)
		}

		userRoutes := private.Group("/users")
		{
			userRoutes.GET("", h.Users.FindUsers)
			userRoutes.POST("/invite", middleware.RequireAccountType(models.AccountAdmin), h.Users.InviteAdmin)
			userRoutes.GET("/:id", h.Users.GetUser)
			userRoutes.PUT("/:id", h.Users.UpdateUser)
			userRoutes.POST("/:id/devices", h.Users.AddDevice)
			userRoutes.DELETE("/:id/devices/:token", h.Users.RemoveDevice)
		}

		appointmentRoutes := private.Group("/appointments")
		{
			appointmentRoutes.GET("/user/:userId", h.Appointments.GetUserAppointments)
			appointmentRoutes.GET("/payments", middleware.RequireAccountType(models.AccountProfessional, models.AccountInstitution), h.Appointments.GetBillingHistory)
			appointmentRoutes.GET("/payment-summary", h.Appointments.GetPaymentSummary)
			appointmentRoutes.GET("/checkout/:appointmentId", h.Appointments.Checkout)
			appointmentRoutes.POST("/checkout/:appointmentId/confirm", h.Appointments.ConfirmPayment)
			appointmentRoutes.GET("/test-file/:testFile", h.Appointments.GetTestFile)
			appointmentRoutes.GET("/receipt/:appointmentId", h.Appointments.GetReceipt)
			appointmentRoutes.GET("/:appointmentId", h.Appointments.GetAppointment)
			// Patients book with the professional named in the path
			appointmentRoutes.POST("/:professionalId", middleware.RequireAccountType(models.AccountPatient), h.Appointments.CreateAppointment)
			appointmentRoutes.PUT("/:appointmentId", h.Appointments.UpdateAppointment)
		}

		reviewRoutes := private.Group("/reviews")
		{
			reviewRoutes.GET("/user/:userId", h.Reviews.GetUserReviews)
			reviewRoutes.GET("/:appointmentId", h.Reviews.GetReview)
			reviewRoutes.POST("/:appointmentId", middleware.RequireAccountType(models.AccountPatient), h.Reviews.CreateReview)
		}

		conditionRoutes := private.Group("/conditions")
		{
			conditionRoutes.GET("", h.Conditions.FindConditions)
			conditionRoutes.POST("", h.Conditions.CreateCondition)
			conditionRoutes.GET("/media/:file", h.Conditions.GetMedia)
			conditionRoutes.GET("/:id", h.Conditions.GetCondition)
			conditionRoutes.PUT("/:id", h.Conditions.UpdateCondition)
			conditionRoutes.GET("/:id/comments", h.Conditions.ListComments)
			conditionRoutes.POST("/:id/comments", h.Conditions.AddComment)
		}

		threadRoutes := private.Group("/threads")
		{
			threadRoutes.POST("/messages", h.Threads.SendMessage)
			threadRoutes.PATCH("/messages/:messageId/read", h.Threads.MarkMessageAsRead)
			threadRoutes.GET("", h.Threads.GetThreads)
			threadRoutes.GET("/public", h.Threads.GetPublicThreads)
			threadRoutes.GET("/conversation/:userId", h.Threads.GetConversation)
			threadRoutes.GET("/:id/messages", h.Threads.GetThreadMessages)
		}
	}

	// Simple health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "UP"})
	})
}
