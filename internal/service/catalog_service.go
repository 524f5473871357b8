package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/smartpest-api/internal/apperror"
	"github.com/smartpest-api/internal/models"
	"github.com/smartpest-api/internal/repository"
	"github.com/smartpest-api/internal/validation"
)

const (
	pesticideListKey = "pesticides"
	pestListKey      = "pests"
)

// catalogService is the concrete implementation of CatalogService
type catalogService struct {
	pesticides repository.PesticideRepository
	pests      repository.PestRepository
	reference  ReferenceTables
	cache      *cache.Cache
	log        zerolog.Logger
}

// newCatalogService creates a new CatalogService. List results are cached
// for ttl and dropped on every write.
func newCatalogService(pesticides repository.PesticideRepository, pests repository.PestRepository, ref ReferenceTables, ttl time.Duration, log zerolog.Logger) *catalogService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &catalogService{
		pesticides: pesticides,
		pests:      pests,
		reference:  ref,
		cache:      cache.New(ttl, 2*ttl),
		log:        log.With().Str("service", "catalog").Logger(),
	}
}

// ListPesticides returns all pesticides ordered by name
func (s *catalogService) ListPesticides(ctx context.Context) ([]*models.Pesticide, error) {
	if cached, found := s.cache.Get(pesticideListKey); found {
		return cached.([]*models.Pesticide), nil
	}
	items, err := s.pesticides.List(ctx)
	if err != nil {
		return nil, apperror.Internal("failed to list pesticides", err)
	}
	s.cache.SetDefault(pesticideListKey, items)
	return items, nil
}

// GetPesticide retrieves one pesticide
func (s *catalogService) GetPesticide(ctx context.Context, id string) (*models.Pesticide, error) {
	if !validation.IsValidUUID(id) {
		return nil, apperror.NotFound("pesticide")
	}
	p, err := s.pesticides.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.Internal("failed to get pesticide", err)
	}
	if p == nil {
		return nil, apperror.NotFound("pesticide")
	}
	return p, nil
}

// CreatePesticide adds a pesticide with a unique name
func (s *catalogService) CreatePesticide(ctx context.Context, in *models.PesticideInput) (*models.Pesticide, error) {
	if errs := validation.ValidatePesticide(in); len(errs) > 0 {
		return nil, apperror.Validation("invalid pesticide", errs...)
	}

	p := &models.Pesticide{ID: uuid.NewString()}
	applyPesticideInput(p, in)

	if err := s.pesticides.Create(ctx, p); err != nil {
		return nil, catalogWriteError("pesticide", err)
	}
	s.cache.Delete(pesticideListKey)

	s.log.Info().Str("pesticide_id", p.ID).Str("name", p.Name).Msg("Pesticide created")
	return p, nil
}

// UpdatePesticide replaces the fields of an existing pesticide
func (s *catalogService) UpdatePesticide(ctx context.Context, id string, in *models.PesticideInput) (*models.Pesticide, error) {
	if errs := validation.ValidatePesticide(in); len(errs) > 0 {
		return nil, apperror.Validation("invalid pesticide", errs...)
	}

	p, err := s.GetPesticide(ctx, id)
	if err != nil {
		return nil, err
	}
	applyPesticideInput(p, in)

	if err := s.pesticides.Update(ctx, p); err != nil {
		return nil, catalogWriteError("pesticide", err)
	}
	s.cache.Delete(pesticideListKey)
	return p, nil
}

// DeletePesticide removes a pesticide
func (s *catalogService) DeletePesticide(ctx context.Context, id string) error {
	if !validation.IsValidUUID(id) {
		return apperror.NotFound("pesticide")
	}
	if err := s.pesticides.Delete(ctx, id); err != nil {
		return catalogWriteError("pesticide", err)
	}
	s.cache.Delete(pesticideListKey)
	s.log.Info().Str("pesticide_id", id).Msg("Pesticide deleted")
	return nil
}

// ListPests returns all pests ordered by name
func (s *catalogService) ListPests(ctx context.Context) ([]*models.Pest, error) {
	if cached, found := s.cache.Get(pestListKey); found {
		return cached.([]*models.Pest), nil
	}
	items, err := s.pests.List(ctx)
	if err != nil {
		return nil, apperror.Internal("failed to list pests", err)
	}
	s.cache.SetDefault(pestListKey, items)
	return items, nil
}

// GetPest retrieves one pest
func (s *catalogService) GetPest(ctx context.Context, id string) (*models.Pest, error) {
	if !validation.IsValidUUID(id) {
		return nil, apperror.NotFound("pest")
	}
	p, err := s.pests.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.Internal("failed to get pest", err)
	}
	if p == nil {
		return nil, apperror.NotFound("pest")
	}
	return p, nil
}

// CreatePest adds a pest with a unique name
func (s *catalogService) CreatePest(ctx context.Context, in *models.PestInput) (*models.Pest, error) {
	if errs := validation.ValidatePest(in); len(errs) > 0 {
		return nil, apperror.Validation("invalid pest", errs...)
	}

	p := &models.Pest{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
	}
	if err := s.pests.Create(ctx, p); err != nil {
		return nil, catalogWriteError("pest", err)
	}
	s.cache.Delete(pestListKey)

	s.log.Info().Str("pest_id", p.ID).Str("name", p.Name).Msg("Pest created")
	return p, nil
}

// UpdatePest replaces the fields of an existing pest
func (s *catalogService) UpdatePest(ctx context.Context, id string, in *models.PestInput) (*models.Pest, error) {
	if errs := validation.ValidatePest(in); len(errs) > 0 {
		return nil, apperror.Validation("invalid pest", errs...)
	}

	p, err := s.GetPest(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Name = strings.TrimSpace(in.Name)
	p.Description = strings.TrimSpace(in.Description)

	if err := s.pests.Update(ctx, p); err != nil {
		return nil, catalogWriteError("pest", err)
	}
	s.cache.Delete(pestListKey)
	return p, nil
}

// DeletePest removes a pest
func (s *catalogService) DeletePest(ctx context.Context, id string) error {
	if !validation.IsValidUUID(id) {
		return apperror.NotFound("pest")
	}
	if err := s.pests.Delete(ctx, id); err != nil {
		return catalogWriteError("pest", err)
	}
	s.cache.Delete(pestListKey)
	s.log.Info().Str("pest_id", id).Msg("Pest deleted")
	return nil
}

// Seed copies the reference tables into the catalog. Names already present
// are skipped, so running it twice inserts nothing the second time.
func (s *catalogService) Seed(ctx context.Context) (*models.SeedResult, error) {
	result := &models.SeedResult{}
	now := time.Now().UTC()

	var pests []*models.Pest
	var pesticides []*models.Pesticide
	seenPesticides := make(map[string]bool)

	for _, entry := range s.reference.Entries() {
		exists, err := s.pests.NameExists(ctx, entry.Name)
		if err != nil {
			return nil, apperror.Internal("failed to check pest name", err)
		}
		if exists {
			result.Skipped++
		} else {
			pests = append(pests, &models.Pest{
				ID:          uuid.NewString(),
				Name:        entry.Name,
				Description: entry.Description,
				CreatedAt:   now,
				UpdatedAt:   now,
			})
		}

		for _, dosage := range entry.Pesticides {
			key := strings.ToLower(strings.TrimSpace(dosage.Name))
			if key == "" || seenPesticides[key] {
				continue
			}
			seenPesticides[key] = true

			exists, err := s.pesticides.NameExists(ctx, dosage.Name)
			if err != nil {
				return nil, apperror.Internal("failed to check pesticide name", err)
			}
			if exists {
				result.Skipped++
				continue
			}
			pesticides = append(pesticides, &models.Pesticide{
				ID:                uuid.NewString(),
				Name:              strings.TrimSpace(dosage.Name),
				Description:       dosage.Dosage,
				SafetyPrecautions: dosage.SafetyPrecautions,
				CreatedAt:         now,
				UpdatedAt:         now,
			})
		}
	}

	if len(pests) > 0 {
		n, err := s.pests.BatchInsert(ctx, pests)
		if err != nil {
			return nil, apperror.Internal("failed to seed pests", err)
		}
		result.PestsInserted = n
		s.cache.Delete(pestListKey)
	}
	if len(pesticides) > 0 {
		n, err := s.pesticides.BatchInsert(ctx, pesticides)
		if err != nil {
			return nil, apperror.Internal("failed to seed pesticides", err)
		}
		result.PesticidesInserted = n
		s.cache.Delete(pesticideListKey)
	}

	s.log.Info().
		Int("pests", result.PestsInserted).
		Int("pesticides", result.PesticidesInserted).
		Int("skipped", result.Skipped).
		Msg("Catalog seeded")

	return result, nil
}

func applyPesticideInput(p *models.Pesticide, in *models.PesticideInput) {
	p.Name = strings.TrimSpace(in.Name)
	p.Description = strings.TrimSpace(in.Description)
	p.ChemicalName = strings.TrimSpace(in.ChemicalName)
	p.ToxicityLevel = strings.ToLower(strings.TrimSpace(in.ToxicityLevel))
	p.ApplicationMethods = strings.TrimSpace(in.ApplicationMethods)
	p.SafetyPrecautions = strings.TrimSpace(in.SafetyPrecautions)
}

func catalogWriteError(resource string, err error) error {
	switch {
	case errors.Is(err, repository.ErrDuplicate):
		return apperror.Validation(resource+" name already exists",
			apperror.FieldError{Field: "name", Message: "name already exists"})
	case errors.Is(err, repository.ErrNotFound):
		return apperror.NotFound(resource)
	default:
		return apperror.Internal("failed to save "+resource, err)
	}
}
