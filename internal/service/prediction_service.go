package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/smartpest-api/internal/apperror"
	"github.com/smartpest-api/internal/config"
	"github.com/smartpest-api/internal/inference"
	"github.com/smartpest-api/internal/models"
)

// UploadFilePrefix marks temp files owned by this service
const UploadFilePrefix = "upload-"

var extRegex = regexp.MustCompile(`^\.[a-z0-9]{1,5}$`)

// predictionService is the concrete implementation of PredictionService
type predictionService struct {
	classifier Classifier
	reference  ReferenceTables
	uploadDir  string
	log        zerolog.Logger
	total      atomic.Int64
}

// newPredictionService creates a new PredictionService
func newPredictionService(classifier Classifier, ref ReferenceTables, cfg config.UploadConfig, log zerolog.Logger) *predictionService {
	dir := cfg.TempDir
	if dir == "" {
		dir = os.TempDir()
	}
	return &predictionService{
		classifier: classifier,
		reference:  ref,
		uploadDir:  dir,
		log:        log.With().Str("service", "prediction").Logger(),
	}
}

// PredictUpload stores src in a temp file, classifies it and removes the
// file again on every exit path
func (s *predictionService) PredictUpload(ctx context.Context, filename string, src io.Reader) (*models.Prediction, error) {
	path, err := s.saveUpload(filename, src)
	if path != "" {
		defer func() {
			if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
				s.log.Warn().Err(rmErr).Str("path", path).Msg("Failed to remove upload")
			}
		}()
	}
	if err != nil {
		return nil, apperror.Internal("failed to store upload", err)
	}

	prediction, err := s.classifier.Predict(ctx, path)
	if err != nil {
		s.log.Warn().Err(err).Str("filename", filename).Msg("Prediction failed")
		return nil, err
	}

	s.total.Add(1)
	s.log.Debug().
		Str("class", prediction.Class).
		Float64("confidence", prediction.Confidence).
		Bool("mock", prediction.Mock).
		Msg("Prediction served")

	return prediction, nil
}

// saveUpload returns the temp path whenever a file was created, even on error
func (s *predictionService) saveUpload(filename string, src io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !extRegex.MatchString(ext) {
		ext = ""
	}
	path := filepath.Join(s.uploadDir, fmt.Sprintf("%s%s%s", UploadFilePrefix, uuid.NewString(), ext))

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := io.Copy(file, src); err != nil {
		file.Close()
		return path, fmt.Errorf("failed to write upload: %w", err)
	}
	if err := file.Close(); err != nil {
		return path, fmt.Errorf("failed to close upload: %w", err)
	}
	return path, nil
}

// PestInfo looks up description and pesticide data for a pest
func (s *predictionService) PestInfo(name string) models.PestInfo {
	return s.reference.Lookup(name)
}

// ClassifierInfo reports the classifier state
func (s *predictionService) ClassifierInfo() inference.Info {
	return s.classifier.Info()
}

// TotalPredictions counts successful predictions since process start
func (s *predictionService) TotalPredictions() int64 {
	return s.total.Load()
}
