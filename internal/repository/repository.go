package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/smartpest-api/internal/database"
	"github.com/smartpest-api/internal/models"
)

var (
	// ErrDuplicate is returned when a unique constraint rejects a write
	ErrDuplicate = errors.New("duplicate record")
	// ErrNotFound is returned by updates and deletes that matched no row
	ErrNotFound = errors.New("record not found")
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation
const uniqueViolation = "23505"

// mapError translates driver errors into repository sentinels
func mapError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return ErrDuplicate
	}
	return err
}

// UserRepository defines the interface for user data operations
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	List(ctx context.Context, limit, offset int) ([]*models.User, error)
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

// ReportRepository defines the interface for report data operations
type ReportRepository interface {
	Create(ctx context.Context, report *models.Report) error
	GetByID(ctx context.Context, id string) (*models.Report, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*models.Report, error)
	// List returns reports most recent first
	List(ctx context.Context, limit, offset int) ([]*models.Report, error)
	Count(ctx context.Context) (int, error)
	StreamAll(ctx context.Context, callback func(*models.Report) error) error
}

// FeedbackRepository defines the interface for feedback data operations
type FeedbackRepository interface {
	Create(ctx context.Context, feedback *models.Feedback) error
	GetByID(ctx context.Context, id string) (*models.Feedback, error)
	List(ctx context.Context, limit, offset int) ([]*models.Feedback, error)
	Update(ctx context.Context, feedback *models.Feedback) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

// PesticideRepository defines the interface for pesticide data operations
type PesticideRepository interface {
	Create(ctx context.Context, pesticide *models.Pesticide) error
	BatchInsert(ctx context.Context, pesticides []*models.Pesticide) (int, error)
	GetByID(ctx context.Context, id string) (*models.Pesticide, error)
	NameExists(ctx context.Context, name string) (bool, error)
	List(ctx context.Context) ([]*models.Pesticide, error)
	Update(ctx context.Context, pesticide *models.Pesticide) error
	Delete(ctx context.Context, id string) error
}

// PestRepository defines the interface for pest data operations
type PestRepository interface {
	Create(ctx context.Context, pest *models.Pest) error
	BatchInsert(ctx context.Context, pests []*models.Pest) (int, error)
	GetByID(ctx context.Context, id string) (*models.Pest, error)
	NameExists(ctx context.Context, name string) (bool, error)
	List(ctx context.Context) ([]*models.Pest, error)
	Update(ctx context.Context, pest *models.Pest) error
	Delete(ctx context.Context, id string) error
}

// Repositories holds all repository interfaces
type Repositories struct {
	User      UserRepository
	Report    ReportRepository
	Feedback  FeedbackRepository
	Pesticide PesticideRepository
	Pest      PestRepository
}

// New creates all repositories with the given database connection
func New(db *database.DB) *Repositories {
	return &Repositories{
		User:      NewUserRepo(db),
		Report:    NewReportRepo(db),
		Feedback:  NewFeedbackRepo(db),
		Pesticide: NewPesticideRepo(db),
		Pest:      NewPestRepo(db),
	}
}

// checkAffected turns a zero-row update or delete into ErrNotFound
func checkAffected(res sql.Result, err error) error {
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
