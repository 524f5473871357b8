package models

import (
	"time"
)

// Feedback is a message left by an authenticated user
type Feedback struct {
	ID          string    `json:"id" db:"id"`
	UserID      *string   `json:"user_id,omitempty" db:"user_id"`
	Subject     string    `json:"subject" db:"subject"`
	Message     string    `json:"message" db:"message"`
	IsImportant bool      `json:"is_important" db:"is_important"`
	CreatedAt   time.Time `json:"timestamp" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// CreateFeedbackRequest is the payload of POST /feedback
type CreateFeedbackRequest struct {
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// UpdateFeedbackRequest is the admin update payload; nil fields are left unchanged
type UpdateFeedbackRequest struct {
	Subject     *string `json:"subject"`
	Message     *string `json:"message"`
	IsImportant *bool   `json:"is_important"`
}

// Length limits for feedback fields
const (
	MaxFeedbackSubjectLength = 200
	MaxFeedbackMessageLength = 5000
)
