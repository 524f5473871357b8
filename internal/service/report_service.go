package service

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/smartpest-api/internal/apperror"
	"github.com/smartpest-api/internal/models"
	"github.com/smartpest-api/internal/repository"
	"github.com/smartpest-api/internal/validation"
)

// ExportFormats lists the accepted export formats
var ExportFormats = map[string]bool{"ndjson": true, "json": true, "csv": true}

// reportService is the concrete implementation of ReportService
type reportService struct {
	repo repository.ReportRepository
	log  zerolog.Logger
}

// newReportService creates a new ReportService
func newReportService(repo repository.ReportRepository, log zerolog.Logger) *reportService {
	return &reportService{
		repo: repo,
		log:  log.With().Str("service", "report").Logger(),
	}
}

// Save validates and persists a report
func (s *reportService) Save(ctx context.Context, req *models.SaveReportRequest, userID, idempotencyKey string) (*models.Report, bool, error) {
	if errs := validation.ValidateReport(req); len(errs) > 0 {
		return nil, false, apperror.Validation("invalid report", errs...)
	}

	if idempotencyKey != "" {
		existing, err := s.repo.GetByIdempotencyKey(ctx, idempotencyKey)
		if err != nil {
			return nil, false, apperror.Internal("failed to check idempotency key", err)
		}
		if existing != nil {
			s.log.Info().Str("report_id", existing.ID).Msg("Replaying report for idempotency key")
			return existing, true, nil
		}
	}

	if userID == "" {
		userID = models.AnonymousUserID
	}

	report := &models.Report{
		ID:             uuid.NewString(),
		PestName:       strings.TrimSpace(req.PestName),
		Confidence:     *req.Confidence,
		Description:    strings.TrimSpace(req.Description),
		UserID:         userID,
		IdempotencyKey: idempotencyKey,
		CreatedAt:      time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, report); err != nil {
		// Lost a race with a concurrent request carrying the same key
		if errors.Is(err, repository.ErrDuplicate) && idempotencyKey != "" {
			existing, getErr := s.repo.GetByIdempotencyKey(ctx, idempotencyKey)
			if getErr == nil && existing != nil {
				return existing, true, nil
			}
		}
		return nil, false, apperror.Internal("failed to save report", err)
	}

	s.log.Info().
		Str("report_id", report.ID).
		Str("pest_name", report.PestName).
		Str("user_id", report.UserID).
		Msg("Report saved")

	return report, false, nil
}

// List returns a page of reports, most recent first
func (s *reportService) List(ctx context.Context, limit, offset int) (*models.ReportPage, error) {
	limit, offset = clampPage(limit, offset, models.DefaultReportPageSize, models.MaxReportPageSize)

	reports, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, apperror.Internal("failed to list reports", err)
	}
	total, err := s.repo.Count(ctx)
	if err != nil {
		return nil, apperror.Internal("failed to count reports", err)
	}

	return &models.ReportPage{
		Reports: reports,
		Count:   total,
		Limit:   limit,
		Offset:  offset,
	}, nil
}

// Get retrieves a single report
func (s *reportService) Get(ctx context.Context, id string) (*models.Report, error) {
	if !validation.IsValidUUID(id) {
		return nil, apperror.NotFound("report")
	}
	report, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.Internal("failed to get report", err)
	}
	if report == nil {
		return nil, apperror.NotFound("report")
	}
	return report, nil
}

// Recent returns the n most recent reports
func (s *reportService) Recent(ctx context.Context, n int) ([]*models.Report, error) {
	reports, err := s.repo.List(ctx, n, 0)
	if err != nil {
		return nil, apperror.Internal("failed to list reports", err)
	}
	return reports, nil
}

// Count returns the number of stored reports
func (s *reportService) Count(ctx context.Context) (int, error) {
	count, err := s.repo.Count(ctx)
	if err != nil {
		return 0, apperror.Internal("failed to count reports", err)
	}
	return count, nil
}

// Export streams every report in the requested format
func (s *reportService) Export(ctx context.Context, w http.ResponseWriter, format string) error {
	if !ExportFormats[format] {
		return apperror.Validation(fmt.Sprintf("unsupported format: %s", format))
	}
	s.log.Info().Str("format", format).Msg("Starting reports export")

	switch format {
	case "json":
		return s.streamJSON(ctx, w)
	case "csv":
		return s.streamCSV(ctx, w)
	default:
		return s.streamNDJSON(ctx, w)
	}
}

func (s *reportService) streamNDJSON(ctx context.Context, w http.ResponseWriter) error {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Content-Disposition", "attachment; filename=reports.ndjson")

	flusher, _ := w.(http.Flusher)
	count := 0

	err := s.repo.StreamAll(ctx, func(report *models.Report) error {
		data, err := json.Marshal(report)
		if err != nil {
			return err
		}
		if _, err := w.Write(append(data, '\n')); err != nil {
			return err
		}
		count++

		// Flush every 100 records for streaming
		if count%100 == 0 && flusher != nil {
			flusher.Flush()
		}
		return nil
	})

	s.log.Info().Int("count", count).Msg("Reports export completed")
	return err
}

func (s *reportService) streamJSON(ctx context.Context, w http.ResponseWriter) error {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", "attachment; filename=reports.json")

	w.Write([]byte("["))
	first := true

	err := s.repo.StreamAll(ctx, func(report *models.Report) error {
		if !first {
			w.Write([]byte(","))
		}
		first = false

		data, err := json.Marshal(report)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	})

	w.Write([]byte("]"))
	return err
}

func (s *reportService) streamCSV(ctx context.Context, w http.ResponseWriter) error {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=reports.csv")

	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{"id", "pest_name", "confidence", "description", "user_id", "timestamp"}); err != nil {
		return err
	}

	return s.repo.StreamAll(ctx, func(report *models.Report) error {
		return writer.Write([]string{
			report.ID,
			report.PestName,
			strconv.FormatFloat(report.Confidence, 'f', 4, 64),
			report.Description,
			report.UserID,
			report.CreatedAt.UTC().Format(time.RFC3339),
		})
	})
}
