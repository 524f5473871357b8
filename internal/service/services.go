package service

import (
	"context"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/smartpest-api/internal/auth"
	"github.com/smartpest-api/internal/config"
	"github.com/smartpest-api/internal/inference"
	"github.com/smartpest-api/internal/models"
	"github.com/smartpest-api/internal/reference"
	"github.com/smartpest-api/internal/repository"
)

// Classifier is the inference backend used by PredictionService
type Classifier interface {
	Predict(ctx context.Context, imagePath string) (*models.Prediction, error)
	Info() inference.Info
}

// ReferenceTables answers pest information lookups
type ReferenceTables interface {
	Lookup(name string) models.PestInfo
	Entries() []reference.Entry
}

// PredictionService defines the interface for image classification
type PredictionService interface {
	PredictUpload(ctx context.Context, filename string, src io.Reader) (*models.Prediction, error)
	PestInfo(name string) models.PestInfo
	ClassifierInfo() inference.Info
	// TotalPredictions counts successful predictions since process start
	TotalPredictions() int64
}

// ReportService defines the interface for detection reports
type ReportService interface {
	// Save persists a report. A repeated idempotency key returns the
	// original report with replayed set.
	Save(ctx context.Context, req *models.SaveReportRequest, userID, idempotencyKey string) (report *models.Report, replayed bool, err error)
	List(ctx context.Context, limit, offset int) (*models.ReportPage, error)
	Get(ctx context.Context, id string) (*models.Report, error)
	Recent(ctx context.Context, n int) ([]*models.Report, error)
	Count(ctx context.Context) (int, error)
	Export(ctx context.Context, w http.ResponseWriter, format string) error
}

// FeedbackService defines the interface for user feedback
type FeedbackService interface {
	Create(ctx context.Context, userID string, req *models.CreateFeedbackRequest) (*models.Feedback, error)
	List(ctx context.Context, limit, offset int) ([]*models.Feedback, error)
	Get(ctx context.Context, id string) (*models.Feedback, error)
	Update(ctx context.Context, id string, req *models.UpdateFeedbackRequest) (*models.Feedback, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

// CatalogService defines the interface for pesticide and pest reference data
type CatalogService interface {
	ListPesticides(ctx context.Context) ([]*models.Pesticide, error)
	GetPesticide(ctx context.Context, id string) (*models.Pesticide, error)
	CreatePesticide(ctx context.Context, in *models.PesticideInput) (*models.Pesticide, error)
	UpdatePesticide(ctx context.Context, id string, in *models.PesticideInput) (*models.Pesticide, error)
	DeletePesticide(ctx context.Context, id string) error

	ListPests(ctx context.Context) ([]*models.Pest, error)
	GetPest(ctx context.Context, id string) (*models.Pest, error)
	CreatePest(ctx context.Context, in *models.PestInput) (*models.Pest, error)
	UpdatePest(ctx context.Context, id string, in *models.PestInput) (*models.Pest, error)
	DeletePest(ctx context.Context, id string) error

	// Seed loads pests and pesticides from the reference tables, skipping known names
	Seed(ctx context.Context) (*models.SeedResult, error)
}

// UserService defines the interface for accounts and authentication
type UserService interface {
	Register(ctx context.Context, req *models.RegisterRequest) (*models.User, error)
	Login(ctx context.Context, req *models.LoginRequest) (*models.LoginResponse, error)
	Me(ctx context.Context, id string) (*models.User, error)
	List(ctx context.Context, limit, offset int) ([]*models.User, error)
	Update(ctx context.Context, id string, req *models.UpdateUserRequest) (*models.User, error)
	Delete(ctx context.Context, id string) error
	// CreateAdmin creates an admin account or promotes an existing one
	CreateAdmin(ctx context.Context, email, password string) (*models.User, error)
	Count(ctx context.Context) (int, error)
}

// DashboardService defines the interface for admin statistics
type DashboardService interface {
	Get(ctx context.Context) (*models.Dashboard, error)
}

// UploadJanitor removes stale upload files left behind by crashed processes
type UploadJanitor interface {
	Start(ctx context.Context)
	Stop()
	Sweep() (int, error)
}

// Dependencies are the collaborators services are built from
type Dependencies struct {
	Repos      *repository.Repositories
	Classifier Classifier
	Reference  ReferenceTables
	Tokens     *auth.TokenManager
}

// Services holds all service interfaces
type Services struct {
	Prediction PredictionService
	Report     ReportService
	Feedback   FeedbackService
	Catalog    CatalogService
	User       UserService
	Dashboard  DashboardService
	Janitor    UploadJanitor
}

// NewServices creates all services
func NewServices(deps Dependencies, cfg *config.Config, log zerolog.Logger) *Services {
	predictionSvc := newPredictionService(deps.Classifier, deps.Reference, cfg.Upload, log)
	reportSvc := newReportService(deps.Repos.Report, log)
	feedbackSvc := newFeedbackService(deps.Repos.Feedback, log)
	userSvc := newUserService(deps.Repos.User, deps.Tokens, log)

	return &Services{
		Prediction: predictionSvc,
		Report:     reportSvc,
		Feedback:   feedbackSvc,
		Catalog:    newCatalogService(deps.Repos.Pesticide, deps.Repos.Pest, deps.Reference, cfg.Reference.CatalogCacheTTL, log),
		User:       userSvc,
		Dashboard:  newDashboardService(userSvc, reportSvc, feedbackSvc, predictionSvc, log),
		Janitor:    newUploadJanitor(cfg.Upload, log),
	}
}

// clampPage applies paging defaults and bounds
func clampPage(limit, offset, def, max int) (int, int) {
	if limit <= 0 {
		limit = def
	}
	if limit > max {
		limit = max
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
