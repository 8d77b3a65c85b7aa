package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/benaresclub/feedback-backend/internal/models"
	"github.com/benaresclub/feedback-backend/internal/storage"
)

// FeedbackHandler serves the admin dashboard API
type FeedbackHandler struct {
	store storage.Store
}

// NewFeedbackHandler creates a new feedback handler
func NewFeedbackHandler(store storage.Store) *FeedbackHandler {
	return &FeedbackHandler{store: store}
}

// ListFeedback returns feedback records with filtering and pagination
func (h *FeedbackHandler) ListFeedback(c *fiber.Ctx) error {
	filter := &storage.FeedbackFilter{
		FromPhone:        c.Query("from_phone"),
		Category:         c.Query("category"),
		ProcessedBy:      c.Query("processed_by"),
		DateFrom:         c.Query("date_from"),
		DateTo:           c.Query("date_to"),
		Search:           c.Query("search"),
		Name:             c.Query("name"),
		MembershipNumber: c.Query("membership_number"),
		Suggestion:       c.Query("suggestion"),
		Limit:            c.QueryInt("limit", 50),
		Offset:           c.QueryInt("offset", 0),
		SortBy:           c.Query("sort_by", "created_at"),
		SortOrder:        c.Query("sort_order", "desc"),
	}
	if v := c.Query("processed"); v != "" {
		b := v == "true"
		filter.Processed = &b
	}
	if v := c.Query("has_media"); v != "" {
		b := v == "true"
		filter.HasMedia = &b
	}

	items, total, err := h.store.ListFeedback(filter)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to fetch feedback",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    items,
		"count":   total,
		"pagination": fiber.Map{
			"limit":    filter.Limit,
			"offset":   filter.Offset,
			"total":    total,
			"has_more": total > int64(filter.Offset+filter.Limit),
		},
	})
}

// GetFeedback returns a single feedback record by ID
func (h *FeedbackHandler) GetFeedback(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Feedback ID is required",
		})
	}

	fb, err := h.store.GetFeedback(uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success": false,
				"error":   "Feedback not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to fetch feedback",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    fb,
	})
}

// UpdateProcessed marks a record processed/unprocessed and stamps who did it
func (h *FeedbackHandler) UpdateProcessed(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Feedback ID is required",
		})
	}

	var req struct {
		Processed *bool `json:"processed"`
	}
	if err := c.BodyParser(&req); err != nil || req.Processed == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Processed status must be a boolean",
		})
	}

	user, ok := c.Locals("user").(*models.User)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"error":   "Unauthorized",
		})
	}

	fb, err := h.store.SetFeedbackProcessed(uint(id), *req.Processed, user.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success": false,
				"error":   "Feedback not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to update feedback",
		})
	}

	message := "Feedback marked as unprocessed"
	if *req.Processed {
		message = "Feedback marked as processed"
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    fb,
		"message": message,
	})
}

// DeleteFeedback removes a record. Admin role only.
func (h *FeedbackHandler) DeleteFeedback(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Feedback ID is required",
		})
	}

	user, ok := c.Locals("user").(*models.User)
	if !ok || user.Role != models.RoleAdmin {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"success": false,
			"error":   "Unauthorized: Only admin can delete feedback",
		})
	}

	fb, err := h.store.DeleteFeedback(uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success": false,
				"error":   "Feedback not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to delete feedback",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    fb,
		"message": "Feedback deleted successfully",
	})
}

// GetStats returns aggregate counts for the dashboard
func (h *FeedbackHandler) GetStats(c *fiber.Ctx) error {
	stats, err := h.store.GetFeedbackStats()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to fetch stats",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    stats,
	})
}

// GetCategories returns the distinct categories present in the table
func (h *FeedbackHandler) GetCategories(c *fiber.Ctx) error {
	categories, err := h.store.GetCategories()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to fetch categories",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    categories,
	})
}

// GetPhoneNumbers returns the distinct sender phone numbers
func (h *FeedbackHandler) GetPhoneNumbers(c *fiber.Ctx) error {
	phones, err := h.store.GetPhoneNumbers()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to fetch phone numbers",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    phones,
	})
}
