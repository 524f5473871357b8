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

const pesticideColumns = `id, name, description, chemical_name, toxicity_level, application_methods, safety_precautions, created_at, updated_at`

// pesticideRepo is the concrete implementation of PesticideRepository
type pesticideRepo struct {
	db *database.DB
}

// NewPesticideRepo creates a new pesticide repository
func NewPesticideRepo(db *database.DB) PesticideRepository {
	return &pesticideRepo{db: db}
}

func scanPesticide(row rowScanner) (*models.Pesticide, error) {
	var p models.Pesticide
	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.ChemicalName, &p.ToxicityLevel,
		&p.ApplicationMethods, &p.SafetyPrecautions, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Create inserts a new pesticide
func (r *pesticideRepo) Create(ctx context.Context, p *models.Pesticide) error {
	query := `
		INSERT INTO pesticides (` + pesticideColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now

	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.Name, p.Description, p.ChemicalName, p.ToxicityLevel,
		p.ApplicationMethods, p.SafetyPrecautions, p.CreatedAt, p.UpdatedAt,
	)
	return mapError(err)
}

// BatchInsert inserts multiple pesticides using PostgreSQL COPY in one transaction.
// Any failing row aborts the whole batch.
func (r *pesticideRepo) BatchInsert(ctx context.Context, pesticides []*models.Pesticide) (int, error) {
	if len(pesticides) == 0 {
		return 0, nil
	}

	inserted := 0
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, pq.CopyIn("pesticides",
			"id", "name", "description", "chemical_name", "toxicity_level",
			"application_methods", "safety_precautions", "created_at", "updated_at",
		))
		if err != nil {
			return err
		}
		defer stmt.Close()

		now := time.Now().UTC()
		for _, p := range pesticides {
			if _, err := stmt.ExecContext(ctx,
				p.ID, p.Name, p.Description, p.ChemicalName, p.ToxicityLevel,
				p.ApplicationMethods, p.SafetyPrecautions, now, now,
			); err != nil {
				return fmt.Errorf("failed to copy pesticide %q: %w", p.Name, mapError(err))
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

// GetByID retrieves a pesticide by ID
func (r *pesticideRepo) GetByID(ctx context.Context, id string) (*models.Pesticide, error) {
	query := `SELECT ` + pesticideColumns + ` FROM pesticides WHERE id = $1`

	p, err := scanPesticide(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// NameExists checks if a pesticide with the given name exists, ignoring case
func (r *pesticideRepo) NameExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM pesticides WHERE LOWER(name) = LOWER($1))", name).Scan(&exists)
	return exists, err
}

// List returns all pesticides ordered by name
func (r *pesticideRepo) List(ctx context.Context) ([]*models.Pesticide, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+pesticideColumns+` FROM pesticides ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pesticides := make([]*models.Pesticide, 0)
	for rows.Next() {
		p, err := scanPesticide(rows)
		if err != nil {
			return nil, err
		}
		pesticides = append(pesticides, p)
	}
	return pesticides, rows.Err()
}

// Update overwrites every editable field
func (r *pesticideRepo) Update(ctx context.Context, p *models.Pesticide) error {
	query := `
		UPDATE pesticides
		SET name = $2, description = $3, chemical_name = $4, toxicity_level = $5,
			application_methods = $6, safety_precautions = $7, updated_at = $8
		WHERE id = $1
	`
	p.UpdatedAt = time.Now().UTC()
	return checkAffected(r.db.ExecContext(ctx, query,
		p.ID, p.Name, p.Description, p.ChemicalName, p.ToxicityLevel,
		p.ApplicationMethods, p.SafetyPrecautions, p.UpdatedAt,
	))
}

// Delete removes a pesticide
func (r *pesticideRepo) Delete(ctx context.Context, id string) error {
	return checkAffected(r.db.ExecContext(ctx, "DELETE FROM pesticides WHERE id = $1", id))
}
