package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/smartpest-api/internal/database"
	"github.com/smartpest-api/internal/models"
)

// pestRepo is the concrete implementation of PestRepository
type pestRepo struct {
	db *database.DB
}

// NewPestRepo creates a new pest repository
func NewPestRepo(db *database.DB) PestRepository {
	return &pestRepo{db: db}
}

func scanPest(row rowScanner) (*models.Pest, error) {
	var p models.Pest
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// Create inserts a new pest
func (r *pestRepo) Create(ctx context.Context, p *models.Pest) error {
	query := `
		INSERT INTO pests (id, name, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now

	_, err := r.db.ExecContext(ctx, query, p.ID, p.Name, p.Description, p.CreatedAt, p.UpdatedAt)
	return mapError(err)
}

// BatchInsert inserts multiple pests using PostgreSQL COPY in one transaction.
// Any failing row aborts the whole batch.
func (r *pestRepo) BatchInsert(ctx context.Context, pests []*models.Pest) (int, error) {
	if len(pests) == 0 {
		return 0, nil
	}

	inserted := 0
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, pq.CopyIn("pests",
			"id", "name", "description", "created_at", "updated_at",
		))
		if err != nil {
			return err
		}
		defer stmt.Close()

		now := time.Now().UTC()
		for _, p := range pests {
			if _, err := stmt.ExecContext(ctx,p.ID, p.Name, p.Description, now, now); err != nil {
				return fmt.Errorf("failed to copy pest %q: %w", p.Name, mapError(err))
			}
			inserted++
		}

		// Flush the COPY buffer
		if _, err := stmt.ExecContext(ctx); err != nil {
			return mapError(err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return inserted, nil
}

// GetByID retrieves a pest by ID
func (r *pestRepo) GetByID(ctx context.Context, id string) (*models.Pest, error) {
	query := `SELECT id, name, description, created_at, updated_at FROM pests WHERE id = $1`

	p, err := scanPest(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// NameExists checks if a pest with the given name exists, ignoring case
func (r *pestRepo) NameExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM pests WHERE LOWER(name) = LOWER($1))", name).Scan(&exists)
	return exists, err
}

// List returns all pests ordered by name
func (r *pestRepo) List(ctx context.Context) ([]*models.Pest, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, description, created_at, updated_at FROM pests ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pests := make([]*models.Pest, 0)
	for rows.Next() {
		p, err := scanPest(rows)
		if err != nil {
			return nil, err
		}
		pests = append(pests, p)
	}
	return pests, rows.Err()
}

// Update overwrites name and description
func (r *pestRepo) Update(ctx context.Context, p *models.Pest) error {
	query := `UPDATE pests SET name = $2, description = $3, updated_at = $4 WHERE id = $1`
	p.UpdatedAt = time.Now().UTC()
	return checkAffected(r.db.ExecContext(ctx, query, p.ID, p.Name, p.Description, p.UpdatedAt))
}

// Delete removes a pest
func (r *pestRepo) Delete(ctx context.Context, id string) error {
	return checkAffected(r.db.ExecContext(ctx, "DELETE FROM pests WHERE id = $1", id))
}
