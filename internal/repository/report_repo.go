package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/smartpest-api/internal/database"
	"github.com/smartpest-api/internal/models"
)

const reportColumns = `id, pest_name, confidence, description, user_id, COALESCE(idempotency_key, ''), created_at`

// reportRepo is the concrete implementation of ReportRepository
type reportRepo struct {
	db *database.DB
}

// NewReportRepo creates a new report repository
func NewReportRepo(db *database.DB) ReportRepository {
	return &reportRepo{db: db}
}

func scanReport(row rowScanner) (*models.Report, error) {
	var report models.Report
	err := row.Scan(
		&report.ID, &report.PestName, &report.Confidence, &report.Description,
		&report.UserID, &report.IdempotencyKey, &report.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// Create inserts a new report
func (r *reportRepo) Create(ctx context.Context, report *models.Report) error {
	query := `
		INSERT INTO reports (id, pest_name, confidence, description, user_id, idempotency_key, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)
	`
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, query,
		report.ID, report.PestName, report.Confidence, report.Description,
		report.UserID, report.IdempotencyKey, report.CreatedAt,
	)
	return mapError(err)
}

// GetByID retrieves a report by ID
func (r *reportRepo) GetByID(ctx context.Context, id string) (*models.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE id = $1`

	report, err := scanReport(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return report, err
}

// GetByIdempotencyKey retrieves the report created with the given key
func (r *reportRepo) GetByIdempotencyKey(ctx context.Context, key string) (*models.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE idempotency_key = $1`

	report, err := scanReport(r.db.QueryRowContext(ctx, query, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return report, err
}

// List returns a page of reports, most recent first
func (r *reportRepo) List(ctx context.Context, limit, offset int) ([]*models.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`
	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reports := make([]*models.Report, 0)
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

// Count returns the total number of reports
func (r *reportRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM reports").Scan(&count)
	return count, err
}

// StreamAll streams all reports for export, most recent first
func (r *reportRepo) StreamAll(ctx context.Context, callback func(*models.Report) error) error {
	query := `SELECT ` + reportColumns + ` FROM reports ORDER BY created_at DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return err
		}
		if err := callback(report); err != nil {
			return err
		}
	}

	return rows.Err()
}
