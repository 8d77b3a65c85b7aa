package storage

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/benaresclub/feedback-backend/internal/models"
)

// DatabaseStore implements Store backed by PostgreSQL via GORM
type DatabaseStore struct {
	db *gorm.DB
}

// NewDatabaseStore creates a database-backed store
func NewDatabaseStore(db *gorm.DB) *DatabaseStore {
	return &DatabaseStore{db: db}
}

// Feedback operations

func (d *DatabaseStore) SaveFeedback(fb *models.Feedback) error {
	if rejectIncomplete(fb) {
		return nil
	}
	return d.db.Create(fb).Error
}

func (d *DatabaseStore) GetFeedback(id uint) (*models.Feedback, error) {
	var fb models.Feedback
	if err := d.db.First(&fb, id).Error; err != nil {
		return nil, err
	}
	return &fb, nil
}

// sortColumns whitelists order-by fields coming from query parameters.
var sortColumns = map[string]bool{
	"created_at":        true,
	"name":              true,
	"category":          true,
	"membership_number": true,
	"processed":         true,
}

func (d *DatabaseStore) ListFeedback(filter *FeedbackFilter) ([]*models.Feedback, int64, error) {
	query := d.db.Model(&models.Feedback{})

	if filter.FromPhone != "" {
		query = query.Where("from_phone = ?", filter.FromPhone)
	}
	if filter.Category != "" {
		query = query.Where("category = ?", filter.Category)
	}
	if filter.Processed != nil {
		query = query.Where("processed = ?", *filter.Processed)
	}
	if filter.ProcessedBy != "" {
		query = query.Where("processed_by = ?", filter.ProcessedBy)
	}
	if filter.HasMedia != nil {
		if *filter.HasMedia {
			query = query.Where("media_url IS NOT NULL")
		} else {
			query = query.Where("media_url IS NULL")
		}
	}
	if filter.Name != "" {
		query = query.Where("name ILIKE ?", "%"+filter.Name+"%")
	}
	if filter.MembershipNumber != "" {
		query = query.Where("membership_number ILIKE ?", "%"+filter.MembershipNumber+"%")
	}
	if filter.Suggestion != "" {
		query = query.Where("suggestion ILIKE ?", "%"+filter.Suggestion+"%")
	}
	if filter.Search != "" {
		query = query.Where("caption ILIKE ?", "%"+filter.Search+"%")
	}
	if filter.DateFrom != "" {
		query = query.Where("created_at >= ?", filter.DateFrom+"T00:00:00")
	}
	if filter.DateTo != "" {
		query = query.Where("created_at <= ?", filter.DateTo+"T23:59:59")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	sortBy := filter.SortBy
	if !sortColumns[sortBy] {
		sortBy = "created_at"
	}
	direction := "DESC"
	if filter.SortOrder == "asc" {
		direction = "ASC"
	}
	query = query.Order(fmt.Sprintf("%s %s", sortBy, direction))

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query = query.Limit(limit).Offset(filter.Offset)

	var items []*models.Feedback
	if err := query.Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (d *DatabaseStore) SetFeedbackProcessed(id uint, processed bool, userID string) (*models.Feedback, error) {
	fb, err := d.GetFeedback(id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{"processed": processed}
	if processed {
		updates["processed_by"] = userID
	} else {
		updates["processed_by"] = nil
	}

	if err := d.db.Model(fb).Updates(updates).Error; err != nil {
		return nil, err
	}
	return fb, nil
}

func (d *DatabaseStore) DeleteFeedback(id uint) (*models.Feedback, error) {
	fb, err := d.GetFeedback(id)
	if err != nil {
		return nil, err
	}
	if err := d.db.Unscoped().Delete(fb).Error; err != nil {
		return nil, err
	}
	return fb, nil
}

func (d *DatabaseStore) GetFeedbackStats() (*FeedbackStats, error) {
	stats := &FeedbackStats{Categories: make(map[string]int64)}

	model := d.db.Model(&models.Feedback{})
	if err := model.Count(&stats.Total).Error; err != nil {
		return nil, err
	}
	if err := d.db.Model(&models.Feedback{}).Where("processed = ?", true).Count(&stats.Processed).Error; err != nil {
		return nil, err
	}
	if err := d.db.Model(&models.Feedback{}).Where("media_url IS NOT NULL").Count(&stats.WithMedia).Error; err != nil {
		return nil, err
	}
	stats.Unprocessed = stats.Total - stats.Processed
	stats.WithoutMedia = stats.Total - stats.WithMedia

	rows := []struct {
		Category string
		Count    int64
	}{}
	err := d.db.Model(&models.Feedback{}).
		Select("category, count(*) as count").
		Where("category <> ''").
		Group("category").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		stats.Categories[row.Category] = row.Count
	}

	return stats, nil
}

func (d *DatabaseStore) GetCategories() ([]string, error) {
	var categories []string
	err := d.db.Model(&models.Feedback{}).
		Distinct("category").
		Where("category <> ''").
		Order("category").
		Pluck("category", &categories).Error
	return categories, err
}

func (d *DatabaseStore) GetPhoneNumbers() ([]string, error) {
	var phones []string
	err := d.db.Model(&models.Feedback{}).
		Distinct("from_phone").
		Order("from_phone").
		Pluck("from_phone", &phones).Error
	return phones, err
}

func (d *DatabaseStore) CountFeedbackBetween(start, end time.Time) (int64, error) {
	var count int64
	err := d.db.Model(&models.Feedback{}).
		Where("created_at >= ? AND created_at < ?", start, end).
		Count(&count).Error
	return count, err
}

func (d *DatabaseStore) GetFeedbackBetween(start, end time.Time) ([]*models.Feedback, error) {
	var items []*models.Feedback
	err := d.db.
		Where("created_at >= ? AND created_at < ?", start, end).
		Order("created_at DESC").
		Find(&items).Error
	return items, err
}

// Opt-in operations

func (d *DatabaseStore) GetOptinStatus(phone string) (string, error) {
	var optin models.Optin
	err := d.db.Where("phone_number = ?", phone).First(&optin).Error
	if err == gorm.ErrRecordNotFound {
		return models.OptinNo, nil
	}
	if err != nil {
		return models.OptinNo, err
	}
	return models.OptinYes, nil
}

func (d *DatabaseStore) SetOptinStatus(phone string, status string) error {
	if status == models.OptinYes {
		optin := &models.Optin{PhoneNumber: phone}
		// Upsert: a repeated opt-in is not an error.
		return d.db.Where("phone_number = ?", phone).FirstOrCreate(optin).Error
	}
	return d.db.Where("phone_number = ?", phone).Delete(&models.Optin{}).Error
}

// User operations

func (d *DatabaseStore) CreateUser(user *models.User) (*models.User, error) {
	if err := d.db.Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

func (d *DatabaseStore) GetUserByEmail(email string) (*models.User, error) {
	var user models.User
	if err := d.db.Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (d *DatabaseStore) GetUserByID(id string) (*models.User, error) {
	var user models.User
	if err := d.db.Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (d *DatabaseStore) UpdateUserLastLogin(id string) error {
	return d.db.Model(&models.User{}).
		Where("id = ?", id).
		Update("last_login", time.Now()).Error
}

func (d *DatabaseStore) CountUsers() (int64, error) {
	var count int64
	err := d.db.Model(&models.User{}).Count(&count).Error
	return count, err
}
