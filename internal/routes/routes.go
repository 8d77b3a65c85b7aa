package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/benaresclub/feedback-backend/internal/handlers"
	"github.com/benaresclub/feedback-backend/internal/middleware"
	"github.com/benaresclub/feedback-backend/internal/services"
	"github.com/benaresclub/feedback-backend/internal/storage"
)

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, store storage.Store, conversation *services.ConversationService, reports *services.ReportService) {
	webhookHandler := handlers.NewWebhookHandler(conversation)
	feedbackHandler := handlers.NewFeedbackHandler(store)
	authHandler := handlers.NewAuthHandler(store)

	// Auth
	auth := app.Group("/auth")
	auth.Post("/login", authHandler.Login)

	// WhatsApp Cloud API webhook (GET = Meta's subscription handshake)
	webhook := app.Group("/webhook")
	webhook.Get("/", webhookHandler.VerifySubscription)
	webhook.Post("/", webhookHandler.HandleWebhook)

	// Dashboard API, JWT-gated
	api := app.Group("/api", middleware.RequireAuth(store))

	feedback := api.Group("/feedback")
	feedback.Get("/", feedbackHandler.ListFeedback)
	feedback.Get("/stats", feedbackHandler.GetStats)
	feedback.Get("/categories", feedbackHandler.GetCategories)
	feedback.Get("/phones", feedbackHandler.GetPhoneNumbers)
	feedback.Get("/:id", feedbackHandler.GetFeedback)
	feedback.Patch("/:id/processed", feedbackHandler.UpdateProcessed)
	feedback.Delete("/:id", feedbackHandler.DeleteFeedback)

	if reports != nil {
		reportHandler := handlers.NewReportHandler(reports)
		api.Post("/reports/daily", reportHandler.TriggerDailyReport)
	}
}
