package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/smartpest-api/internal/apperror"
	"github.com/smartpest-api/internal/auth"
	"github.com/smartpest-api/internal/models"
	"github.com/smartpest-api/internal/repository"
	"github.com/smartpest-api/internal/validation"
)

const (
	defaultUserPageSize = 50
	maxUserPageSize     = 200
)

var errBadCredentials = apperror.Unauthorized("invalid email or password")

func errEmailTaken(email string) error {
	return apperror.Validation("email already registered",
		apperror.FieldError{Field: "email", Message: "email already registered", Value: email})
}

// userService is the concrete implementation of UserService
type userService struct {
	repo   repository.UserRepository
	tokens *auth.TokenManager
	log    zerolog.Logger
}

// newUserService creates a new UserService
func newUserService(repo repository.UserRepository, tokens *auth.TokenManager, log zerolog.Logger) *userService {
	return &userService{
		repo:   repo,
		tokens: tokens,
		log:    log.With().Str("service", "user").Logger(),
	}
}

// Register creates a regular user account
func (s *userService) Register(ctx context.Context, req *models.RegisterRequest) (*models.User, error) {
	if errs := validation.ValidateRegistration(req); len(errs) > 0 {
		return nil, apperror.Validation("invalid registration", errs...)
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	taken, err := s.repo.EmailExists(ctx, email)
	if err != nil {
		return nil, apperror.Internal("failed to check email", err)
	}
	if taken {
		return nil, errEmailTaken(email)
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, apperror.Internal("failed to hash password", err)
	}

	now := time.Now().UTC()
	user := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Phone:        strings.TrimSpace(req.Phone),
		Role:         models.RoleUser,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		// Lost a race with a concurrent registration
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, errEmailTaken(user.Email)
		}
		return nil, apperror.Internal("failed to create user", err)
	}

	s.log.Info().Str("user_id", user.ID).Msg("User registered")
	return user, nil
}

// Login verifies credentials and issues a bearer token
func (s *userService) Login(ctx context.Context, req *models.LoginRequest) (*models.LoginResponse, error) {
	if errs := validation.ValidateLogin(req); len(errs) > 0 {
		return nil, apperror.Validation("invalid login", errs...)
	}

	user, err := s.repo.GetByEmail(ctx, strings.TrimSpace(req.Email))
	if err != nil {
		return nil, apperror.Internal("failed to load user", err)
	}
	if user == nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		s.log.Debug().Msg("Login rejected")
		return nil, errBadCredentials
	}
	if !user.Active {
		return nil, apperror.Unauthorized("account is disabled")
	}

	token, expiresAt, err := s.tokens.Issue(user)
	if err != nil {
		return nil, apperror.Internal("failed to issue token", err)
	}

	s.log.Info().Str("user_id", user.ID).Msg("User logged in")
	return &models.LoginResponse{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

// Me returns the account behind a token
func (s *userService) Me(ctx context.Context, id string) (*models.User, error) {
	return s.get(ctx, id)
}

func (s *userService) get(ctx context.Context, id string) (*models.User, error) {
	if !validation.IsValidUUID(id) {
		return nil, apperror.NotFound("user")
	}
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.Internal("failed to get user", err)
	}
	if user == nil {
		return nil, apperror.NotFound("user")
	}
	return user, nil
}

// List returns accounts newest first
func (s *userService) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	limit, offset = clampPage(limit, offset, defaultUserPageSize, maxUserPageSize)
	users, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, apperror.Internal("failed to list users", err)
	}
	return users, nil
}

// Update applies the non-nil fields of req
func (s *userService) Update(ctx context.Context, id string, req *models.UpdateUserRequest) (*models.User, error) {
	if errs := validation.ValidateUserUpdate(req); len(errs) > 0 {
		return nil, apperror.Validation("invalid user update", errs...)
	}

	user, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.FirstName != nil {
		user.FirstName = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		user.LastName = strings.TrimSpace(*req.LastName)
	}
	if req.Phone != nil {
		user.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.Role != nil {
		user.Role = *req.Role
	}
	if req.Active != nil {
		user.Active = *req.Active
	}

	if err := s.repo.Update(ctx, user); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperror.NotFound("user")
		}
		return nil, apperror.Internal("failed to update user", err)
	}

	s.log.Info().Str("user_id", user.ID).Str("role", user.Role).Bool("active", user.Active).Msg("User updated")
	return user, nil
}

// Delete removes an account
func (s *userService) Delete(ctx context.Context, id string) error {
	if !validation.IsValidUUID(id) {
		return apperror.NotFound("user")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperror.NotFound("user")
		}
		return apperror.Internal("failed to delete user", err)
	}
	s.log.Info().Str("user_id", id).Msg("User deleted")
	return nil
}

// CreateAdmin creates an admin account, or promotes and re-keys an existing one
func (s *userService) CreateAdmin(ctx context.Context, email, password string) (*models.User, error) {
	req := &models.RegisterRequest{Email: email, Password: password}
	if errs := validation.ValidateRegistration(req); len(errs) > 0 {
		return nil, apperror.Validation("invalid admin credentials", errs...)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, apperror.Internal("failed to hash password", err)
	}

	existing, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, apperror.Internal("failed to load user", err)
	}
	if existing != nil {
		existing.Role = models.RoleAdmin
		existing.Active = true
		existing.PasswordHash = hash
		if err := s.repo.Update(ctx, existing); err != nil {
			return nil, apperror.Internal("failed to promote user", err)
		}
		s.log.Info().Str("user_id", existing.ID).Msg("User promoted to admin")
		return existing, nil
	}

	now := time.Now().UTC()
	user := &models.User{
		ID:           uuid.NewString(),
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: hash,
		Role:         models.RoleAdmin,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, apperror.Internal(fmt.Sprintf("failed to create admin %s", user.Email), err)
	}

	s.log.Info().Str("user_id", user.ID).Msg("Admin created")
	return user, nil
}

// Count returns the number of accounts
func (s *userService) Count(ctx context.Context) (int, error) {
	count, err := s.repo.Count(ctx)
	if err != nil {
		return 0, apperror.Internal("failed to count users", err)
	}
	return count, nil
}
