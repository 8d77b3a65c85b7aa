package models

import (
	"gorm.io/gorm"
)

// Feedback is one completed submission collected over the WhatsApp flow.
// The bot only ever inserts; the processed flag and processed_by reference
// are mutated from the admin dashboard.
type Feedback struct {
	gorm.Model
	FromPhone        string  `gorm:"index;not null" json:"from_phone"`
	Name             string  `gorm:"not null" json:"name"`
	MembershipNumber string  `gorm:"not null" json:"membership_number"`
	Category         string  `gorm:"index" json:"category"`
	Suggestion       string  `gorm:"not null" json:"suggestion"`
	MediaURL         *string `json:"media_url"`
	Caption          *string `json:"caption"`
	Processed        bool    `gorm:"default:false;index" json:"processed"`
	ProcessedBy      *string `json:"processed_by"`
}

// Category button payloads sent by the "select" template. Any other button
// payload in the category slot is ignored by the conversation engine.
const (
	CategoryUpkeep = "Upkeep & Maintenance"
	CategoryOthers = "Others"
)

// HasRequiredFields reports whether the record can be persisted.
func (f *Feedback) HasRequiredFields() bool {
	return f.FromPhone != "" && f.Name != "" && f.MembershipNumber != "" && f.Suggestion != ""
}
