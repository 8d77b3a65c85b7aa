package storage

import (
	"log"
	"time"

	"github.com/benaresclub/feedback-backend/internal/models"
)

var storeInstance Store

// SetStore sets the global store instance (call from main.go)
func SetStore(s Store) {
	storeInstance = s
}

// GetStore returns the global store instance
func GetStore() Store {
	return storeInstance
}

// FeedbackFilter captures the admin list query. Zero values mean "no filter";
// the Processed and HasMedia pointers distinguish false from unset.
type FeedbackFilter struct {
	FromPhone        string
	Category         string
	Processed        *bool
	ProcessedBy      string
	HasMedia         *bool
	DateFrom         string // YYYY-MM-DD, inclusive
	DateTo           string // YYYY-MM-DD, inclusive
	Search           string // substring match on caption
	Name             string
	MembershipNumber string
	Suggestion       string
	Limit            int
	Offset           int
	SortBy           string
	SortOrder        string // asc or desc
}

// FeedbackStats summarizes the feedback table for the dashboard.
type FeedbackStats struct {
	Total        int64            `json:"total"`
	Processed    int64            `json:"processed"`
	Unprocessed  int64            `json:"unprocessed"`
	WithMedia    int64            `json:"with_media"`
	WithoutMedia int64            `json:"without_media"`
	Categories   map[string]int64 `json:"categories"`
}

// Store defines the interface for storage operations
type Store interface {
	// Feedback operations
	SaveFeedback(fb *models.Feedback) error
	GetFeedback(id uint) (*models.Feedback, error)
	ListFeedback(filter *FeedbackFilter) ([]*models.Feedback, int64, error)
	SetFeedbackProcessed(id uint, processed bool, userID string) (*models.Feedback, error)
	DeleteFeedback(id uint) (*models.Feedback, error)
	GetFeedbackStats() (*FeedbackStats, error)
	GetCategories() ([]string, error)
	GetPhoneNumbers() ([]string, error)
	CountFeedbackBetween(start, end time.Time) (int64, error)
	GetFeedbackBetween(start, end time.Time) ([]*models.Feedback, error)

	// Opt-in operations
	GetOptinStatus(phone string) (string, error)
	SetOptinStatus(phone string, status string) error

	// User operations
	CreateUser(user *models.User) (*models.User, error)
	GetUserByEmail(email string) (*models.User, error)
	GetUserByID(id string) (*models.User, error)
	UpdateUserLastLogin(id string) error
	CountUsers() (int64, error)
}

// rejectIncomplete logs and reports feedback records missing required fields.
// Incomplete records are dropped rather than erroring: the conversation
// engine's gate should make this unreachable, and an error back on the
// webhook path would only trigger provider redelivery.
func rejectIncomplete(fb *models.Feedback) bool {
	if fb.HasRequiredFields() {
		return false
	}
	log.Printf("Missing required fields in feedback from %s, not saving", fb.FromPhone)
	return true
}
