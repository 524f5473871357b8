package service

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/smartpest-api/internal/models"
)

// recentDetections is the number of reports shown on the dashboard
const recentDetections = 5

// dashboardService is the concrete implementation of DashboardService
type dashboardService struct {
	users      UserService
	reports    ReportService
	feedback   FeedbackService
	prediction PredictionService
	log        zerolog.Logger
}

// newDashboardService creates a new DashboardService
func newDashboardService(users UserService, reports ReportService, feedback FeedbackService, prediction PredictionService, log zerolog.Logger) *dashboardService {
	return &dashboardService{
		users:      users,
		reports:    reports,
		feedback:   feedback,
		prediction: prediction,
		log:        log.With().Str("service", "dashboard").Logger(),
	}
}

// Get gathers counters and recent detections concurrently
func (s *dashboardService) Get(ctx context.Context) (*models.Dashboard, error) {
	dash := &models.Dashboard{
		Stats: models.DashboardStats{
			TotalPredictions: s.prediction.TotalPredictions(),
		},
		Classifier: string(s.prediction.ClassifierInfo().State),
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		n, err := s.users.Count(ctx)
		dash.Stats.TotalUsers = n
		return err
	})
	g.Go(func() error {
		n, err := s.reports.Count(ctx)
		dash.Stats.TotalReports = n
		return err
	})
	g.Go(func() error {
		n, err := s.feedback.Count(ctx)
		dash.Stats.TotalFeedback = n
		return err
	})
	g.Go(func() error {
		recent, err := s.reports.Recent(ctx, recentDetections)
		dash.RecentDetections = recent
		return err
	})

	if err := g.Wait(); err != nil {
		s.log.Error().Err(err).Msg("Failed to build dashboard")
		return nil, err
	}
	if dash.RecentDetections == nil {
		dash.RecentDetections = []*models.Report{}
	}
	return dash, nil
}
