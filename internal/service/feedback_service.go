package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/smartpest-api/internal/apperror"
	"github.com/smartpest-api/internal/models"
	"github.com/smartpest-api/internal/repository"
	"github.com/smartpest-api/internal/validation"
)

const (
	defaultFeedbackPageSize = 50
	maxFeedbackPageSize     = 200
)

// feedbackService is the concrete implementation of FeedbackService
type feedbackService struct {
	repo repository.FeedbackRepository
	log  zerolog.Logger
}

// newFeedbackService creates a new FeedbackService
func newFeedbackService(repo repository.FeedbackRepository, log zerolog.Logger) *feedbackService {
	return &feedbackService{
		repo: repo,
		log:  log.With().Str("service", "feedback").Logger(),
	}
}

// Create stores feedback from userID
func (s *feedbackService) Create(ctx context.Context, userID string, req *models.CreateFeedbackRequest) (*models.Feedback, error) {
	if errs := validation.ValidateFeedback(req); len(errs) > 0 {
		return nil, apperror.Validation("invalid feedback", errs...)
	}

	fb := &models.Feedback{
		ID:        uuid.NewString(),
		Subject:   strings.TrimSpace(req.Subject),
		Message:   strings.TrimSpace(req.Message),
		CreatedAt: time.Now().UTC(),
	}
	if userID != "" {
		fb.UserID = &userID
	}

	if err := s.repo.Create(ctx, fb); err != nil {
		return nil, apperror.Internal("failed to save feedback", err)
	}

	s.log.Info().Str("feedback_id", fb.ID).Str("user_id", userID).Msg("Feedback received")
	return fb, nil
}

// List returns feedback newest first
func (s *feedbackService) List(ctx context.Context, limit, offset int) ([]*models.Feedback, error) {
	limit, offset = clampPage(limit, offset, defaultFeedbackPageSize, maxFeedbackPageSize)
	items, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, apperror.Internal("failed to list feedback", err)
	}
	return items, nil
}

// Get retrieves one feedback entry
func (s *feedbackService) Get(ctx context.Context, id string) (*models.Feedback, error) {
	if !validation.IsValidUUID(id) {
		return nil, apperror.NotFound("feedback")
	}
	fb, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.Internal("failed to get feedback", err)
	}
	if fb == nil {
		return nil, apperror.NotFound("feedback")
	}
	return fb, nil
}

// Update applies the non-nil fields of req
func (s *feedbackService) Update(ctx context.Context, id string, req *models.UpdateFeedbackRequest) (*models.Feedback, error) {
	if errs := validation.ValidateFeedbackUpdate(req); len(errs) > 0 {
		return nil, apperror.Validation("invalid feedback", errs...)
	}

	fb, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Subject != nil {
		fb.Subject = strings.TrimSpace(*req.Subject)
	}
	if req.Message != nil {
		fb.Message = strings.TrimSpace(*req.Message)
	}
	if req.IsImportant != nil {
		fb.IsImportant = *req.IsImportant
	}

	if err := s.repo.Update(ctx, fb); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperror.NotFound("feedback")
		}
		return nil, apperror.Internal("failed to update feedback", err)
	}
	return fb, nil
}

// Delete removes one feedback entry
func (s *feedbackService) Delete(ctx context.Context, id string) error {
	if !validation.IsValidUUID(id) {
		return apperror.NotFound("feedback")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperror.NotFound("feedback")
		}
		return apperror.Internal("failed to delete feedback", err)
	}
	s.log.Info().Str("feedback_id", id).Msg("Feedback deleted")
	return nil
}

// Count returns the number of feedback entries
func (s *feedbackService) Count(ctx context.Context) (int, error) {
	count, err := s.repo.Count(ctx)
	if err != nil {
		return 0, apperror.Internal("failed to count feedback", err)
	}
	return count, nil
}
