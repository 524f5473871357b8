package models

import (
	"time"
)

// AnonymousUserID is recorded for reports saved without a token
const AnonymousUserID = "anonymous"

// Report is a persisted detection event
type Report struct {
	ID             string    `json:"id" db:"id"`
	PestName       string    `json:"pest_name" db:"pest_name"`
	Confidence     float64   `json:"confidence" db:"confidence"`
	Description    string    `json:"description" db:"description"`
	UserID         string    `json:"user_id" db:"user_id"`
	IdempotencyKey string    `json:"-" db:"idempotency_key"`
	CreatedAt      time.Time `json:"timestamp" db:"created_at"`
}

// SaveReportRequest is the payload of POST /save-report
type SaveReportRequest struct {
	PestName    string   `json:"pest_name"`
	Confidence  *float64 `json:"confidence"`
	Description string   `json:"description"`
}

// ReportPage is one page of the report list
type ReportPage struct {
	Reports []*Report `json:"reports"`
	Count   int       `json:"count"`
	Limit   int       `json:"limit"`
	Offset  int       `json:"offset"`
}

// Report list paging bounds
const (
	DefaultReportPageSize = 50
	MaxReportPageSize     = 200
)
