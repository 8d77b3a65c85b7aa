package storage

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/benaresclub/feedback-backend/internal/models"
)

// MemoryStore holds all data in memory, for tests and local development
type MemoryStore struct {
	feedback map[uint]*models.Feedback
	optins   map[string]bool
	users    map[string]*models.User

	// Mutexes for thread safety
	feedbackMu sync.RWMutex
	optinMu    sync.RWMutex
	userMu     sync.RWMutex

	// Counter for ID generation
	feedbackCounter uint
}

// NewMemoryStore creates a new in-memory storage
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		feedback: make(map[uint]*models.Feedback),
		optins:   make(map[string]bool),
		users:    make(map[string]*models.User),
	}
}

// Feedback operations

func (m *MemoryStore) SaveFeedback(fb *models.Feedback) error {
	if rejectIncomplete(fb) {
		return nil
	}

	m.feedbackMu.Lock()
	defer m.feedbackMu.Unlock()

	m.feedbackCounter++
	fb.ID = m.feedbackCounter
	if fb.CreatedAt.IsZero() {
		fb.CreatedAt = time.Now()
	}
	fb.UpdatedAt = fb.CreatedAt

	m.feedback[fb.ID] = fb
	return nil
}

func (m *MemoryStore) GetFeedback(id uint) (*models.Feedback, error) {
	m.feedbackMu.RLock()
	defer m.feedbackMu.RUnlock()

	fb, exists := m.feedback[id]
	if !exists {
		return nil, gorm.ErrRecordNotFound
	}
	return fb, nil
}

func (m *MemoryStore) ListFeedback(filter *FeedbackFilter) ([]*models.Feedback, int64, error) {
	m.feedbackMu.RLock()
	defer m.feedbackMu.RUnlock()

	var matches []*models.Feedback
	for _, fb := range m.feedback {
		if matchesFilter(fb, filter) {
			matches = append(matches, fb)
		}
	}

	sortFeedback(matches, filter.SortBy, filter.SortOrder)
	total := int64(len(matches))

	// Pagination
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset > len(matches) {
		offset = len(matches)
	}
	end := offset + limit
	if end > len(matches) {
		end = len(matches)
	}

	return matches[offset:end], total, nil
}

func matchesFilter(fb *models.Feedback, filter *FeedbackFilter) bool {
	if filter == nil {
		return true
	}
	if filter.FromPhone != "" && fb.FromPhone != filter.FromPhone {
		return false
	}
	if filter.Category != "" && fb.Category != filter.Category {
		return false
	}
	if filter.Processed != nil && fb.Processed != *filter.Processed {
		return false
	}
	if filter.ProcessedBy != "" && (fb.ProcessedBy == nil || *fb.ProcessedBy != filter.ProcessedBy) {
		return false
	}
	if filter.HasMedia != nil && *filter.HasMedia != (fb.MediaURL != nil) {
		return false
	}
	if filter.Name != "" && !containsFold(fb.Name, filter.Name) {
		return false
	}
	if filter.MembershipNumber != "" && !containsFold(fb.MembershipNumber, filter.MembershipNumber) {
		return false
	}
	if filter.Suggestion != "" && !containsFold(fb.Suggestion, filter.Suggestion) {
		return false
	}
	if filter.Search != "" {
		if fb.Caption == nil || !containsFold(*fb.Caption, filter.Search) {
			return false
		}
	}
	if filter.DateFrom != "" {
		from, err := time.Parse("2006-01-02", filter.DateFrom)
		if err == nil && fb.CreatedAt.Before(from) {
			return false
		}
	}
	if filter.DateTo != "" {
		to, err := time.Parse("2006-01-02", filter.DateTo)
		if err == nil && !fb.CreatedAt.Before(to.Add(24*time.Hour)) {
			return false
		}
	}
	return true
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func sortFeedback(items []*models.Feedback, sortBy, sortOrder string) {
	asc := sortOrder == "asc"
	sort.SliceStable(items, func(i, j int) bool {
		var less bool
		switch sortBy {
		case "name":
			less = items[i].Name < items[j].Name
		case "category":
			less = items[i].Category < items[j].Category
		case "membership_number":
			less = items[i].MembershipNumber < items[j].MembershipNumber
		default: // created_at
			less = items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		if asc {
			return less
		}
		return !less
	})
}

func (m *MemoryStore) SetFeedbackProcessed(id uint, processed bool, userID string) (*models.Feedback, error) {
	m.feedbackMu.Lock()
	defer m.feedbackMu.Unlock()

	fb, exists := m.feedback[id]
	if !exists {
		return nil, gorm.ErrRecordNotFound
	}

	fb.Processed = processed
	if processed {
		fb.ProcessedBy = &userID
	} else {
		fb.ProcessedBy = nil
	}
	fb.UpdatedAt = time.Now()

	return fb, nil
}

func (m *MemoryStore) DeleteFeedback(id uint) (*models.Feedback, error) {
	m.feedbackMu.Lock()
	defer m.feedbackMu.Unlock()

	fb, exists := m.feedback[id]
	if !exists {
		return nil, gorm.ErrRecordNotFound
	}
	delete(m.feedback, id)
	return fb, nil
}

func (m *MemoryStore) GetFeedbackStats() (*FeedbackStats, error) {
	m.feedbackMu.RLock()
	defer m.feedbackMu.RUnlock()

	stats := &FeedbackStats{
		Categories: make(map[string]int64),
	}

	for _, fb := range m.feedback {
		stats.Total++
		if fb.Processed {
			stats.Processed++
		}
		if fb.MediaURL != nil {
			stats.WithMedia++
		}
		if fb.Category != "" {
			stats.Categories[fb.Category]++
		}
	}
	stats.Unprocessed = stats.Total - stats.Processed
	stats.WithoutMedia = stats.Total - stats.WithMedia

	return stats, nil
}

func (m *MemoryStore) GetCategories() ([]string, error) {
	m.feedbackMu.RLock()
	defer m.feedbackMu.RUnlock()

	seen := make(map[string]bool)
	var categories []string
	for _, fb := range m.feedback {
		if fb.Category != "" && !seen[fb.Category] {
			seen[fb.Category] = true
			categories = append(categories, fb.Category)
		}
	}
	sort.Strings(categories)
	return categories, nil
}

func (m *MemoryStore) GetPhoneNumbers() ([]string, error) {
	m.feedbackMu.RLock()
	defer m.feedbackMu.RUnlock()

	seen := make(map[string]bool)
	var phones []string
	for _, fb := range m.feedback {
		if !seen[fb.FromPhone] {
			seen[fb.FromPhone] = true
			phones = append(phones, fb.FromPhone)
		}
	}
	sort.Strings(phones)
	return phones, nil
}

func (m *MemoryStore) CountFeedbackBetween(start, end time.Time) (int64, error) {
	m.feedbackMu.RLock()
	defer m.feedbackMu.RUnlock()

	var count int64
	for _, fb := range m.feedback {
		if !fb.CreatedAt.Before(start) && fb.CreatedAt.Before(end) {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) GetFeedbackBetween(start, end time.Time) ([]*models.Feedback, error) {
	m.feedbackMu.RLock()
	defer m.feedbackMu.RUnlock()

	var items []*models.Feedback
	for _, fb := range m.feedback {
		if !fb.CreatedAt.Before(start) && fb.CreatedAt.Before(end) {
			items = append(items, fb)
		}
	}
	sortFeedback(items, "created_at", "desc")
	return items, nil
}

// Opt-in operations

func (m *MemoryStore) GetOptinStatus(phone string) (string, error) {
	m.optinMu.RLock()
	defer m.optinMu.RUnlock()

	if m.optins[phone] {
		return models.OptinYes, nil
	}
	return models.OptinNo, nil
}

func (m *MemoryStore) SetOptinStatus(phone string, status string) error {
	m.optinMu.Lock()
	defer m.optinMu.Unlock()

	if status == models.OptinYes {
		m.optins[phone] = true
	} else {
		delete(m.optins, phone)
	}
	return nil
}

// User operations

func (m *MemoryStore) CreateUser(user *models.User) (*models.User, error) {
	m.userMu.Lock()
	defer m.userMu.Unlock()

	for _, existing := range m.users {
		if existing.Email == user.Email {
			return nil, fmt.Errorf("email already registered")
		}
	}
	if user.ID == "" {
		user.ID = fmt.Sprintf("USR%d", time.Now().UnixNano())
	}
	user.CreatedAt = time.Now()

	m.users[user.ID] = user
	return user, nil
}

func (m *MemoryStore) GetUserByEmail(email string) (*models.User, error) {
	m.userMu.RLock()
	defer m.userMu.RUnlock()

	for _, user := range m.users {
		if user.Email == email {
			return user, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *MemoryStore) GetUserByID(id string) (*models.User, error) {
	m.userMu.RLock()
	defer m.userMu.RUnlock()

	user, exists := m.users[id]
	if !exists {
		return nil, gorm.ErrRecordNotFound
	}
	return user, nil
}

func (m *MemoryStore) UpdateUserLastLogin(id string) error {
	m.userMu.Lock()
	defer m.userMu.Unlock()

	user, exists := m.users[id]
	if !exists {
		return gorm.ErrRecordNotFound
	}
	now := time.Now()
	user.LastLogin = &now
	return nil
}

func (m *MemoryStore) CountUsers() (int64, error) {
	m.userMu.RLock()
	defer m.userMu.RUnlock()

	return int64(len(m.users)), nil
}
