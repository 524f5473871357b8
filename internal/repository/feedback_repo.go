package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/smartpest-api/internal/database"
	"github.com/smartpest-api/internal/models"
)

const feedbackColumns = `id, user_id, subject, message, is_important, created_at, updated_at`

// feedbackRepo is the concrete implementation of FeedbackRepository
type feedbackRepo struct {
	db *database.DB
}

// NewFeedbackRepo creates a new feedback repository
func NewFeedbackRepo(db *database.DB) FeedbackRepository {
	return &feedbackRepo{db: db}
}

func scanFeedback(row rowScanner) (*models.Feedback, error) {
	var (
		fb     models.Feedback
		userID sql.NullString
	)
	err := row.Scan(&fb.ID, &userID, &fb.Subject, &fb.Message, &fb.IsImportant, &fb.CreatedAt, &fb.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if userID.Valid {
		fb.UserID = &userID.String
	}
	return &fb, nil
}

// Create inserts new feedback
func (r *feedbackRepo) Create(ctx context.Context, fb *models.Feedback) error {
	query := `
		INSERT INTO feedback (` + feedbackColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	now := time.Now().UTC()
	if fb.CreatedAt.IsZero() {
		fb.CreatedAt = now
	}
	fb.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, query,
		fb.ID, fb.UserID, fb.Subject, fb.Message, fb.IsImportant, fb.CreatedAt, fb.UpdatedAt,
	)
	return mapError(err)
}

// GetByID retrieves feedback by ID
func (r *feedbackRepo) GetByID(ctx context.Context, id string) (*models.Feedback, error) {
	query := `SELECT ` + feedbackColumns + ` FROM feedback WHERE id = $1`

	fb, err := scanFeedback(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return fb, err
}

// List returns feedback newest first
func (r *feedbackRepo) List(ctx context.Context, limit, offset int) ([]*models.Feedback, error) {
	query := `SELECT ` + feedbackColumns + ` FROM feedback ORDER BY created_at DESC, id LIMIT $1 OFFSET $2`
	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]*models.Feedback, 0)
	for rows.Next() {
		fb, err := scanFeedback(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, fb)
	}
	return items, rows.Err()
}

// Update overwrites subject, message and importance
func (r *feedbackRepo) Update(ctx context.Context, fb *models.Feedback) error {
	query := `
		UPDATE feedback SET subject = $2, message = $3, is_important = $4, updated_at = $5
		WHERE id = $1
	`
	fb.UpdatedAt = time.Now().UTC()
	return checkAffected(r.db.ExecContext(ctx, query,
		fb.ID, fb.Subject, fb.Message, fb.IsImportant, fb.UpdatedAt,
	))
}

// Delete removes feedback
func (r *feedbackRepo) Delete(ctx context.Context, id string) error {
	return checkAffected(r.db.ExecContext(ctx, "DELETE FROM feedback WHERE id = $1", id))
}

// Count returns the total number of feedback entries
func (r *feedbackRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM feedback").Scan(&count)
	return count, err
}
