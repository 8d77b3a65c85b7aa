package handlers

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/benaresclub/feedback-backend/internal/services"
)

// ReportHandler exposes a manual trigger for the daily digest
type ReportHandler struct {
	reports *services.ReportService
}

// NewReportHandler creates a new report handler
func NewReportHandler(reports *services.ReportService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// TriggerDailyReport sends today's digest immediately (for testing)
func (h *ReportHandler) TriggerDailyReport(c *fiber.Ctx) error {
	if err := h.reports.SendDailyReport(time.Now()); err != nil {
		log.Printf("Manual report trigger error: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Failed to send daily report",
			"details": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Daily report sent successfully",
	})
}
