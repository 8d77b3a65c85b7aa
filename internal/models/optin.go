package models

import "time"

// Optin marks a phone number as having consented to receive messages.
// A present row means "yes"; opting out deletes the row. Consent is durable
// and outlives any conversation session.
type Optin struct {
	PhoneNumber string    `gorm:"primaryKey" json:"phone_number"`
	CreatedAt   time.Time `json:"created_at"`
}

const (
	OptinYes = "yes"
	OptinNo  = "no"
)
