package mocks

import (
	"context"
	"strings"
	"sync"

	"github.com/smartpest-api/internal/inference"
	"github.com/smartpest-api/internal/models"
	"github.com/smartpest-api/internal/reference"
	"github.com/smartpest-api/internal/service"
)

// MockClassifier is a mock implementation of service.Classifier
type MockClassifier struct {
	mu          sync.Mutex
	PredictFunc func(ctx context.Context, imagePath string) (*models.Prediction, error)
	State       inference.Info
	Paths       []string
}

// Verify interface compliance
var _ service.Classifier = (*MockClassifier)(nil)

// NewMockClassifier returns a classifier that always answers with class and confidence
func NewMockClassifier(class string, confidence float64) *MockClassifier {
	return &MockClassifier{
		PredictFunc: func(ctx context.Context, imagePath string) (*models.Prediction, error) {
			return &models.Prediction{Class: class, Confidence: confidence}, nil
		},
		State: inference.Info{State: inference.StateLoaded, Source: inference.SourcePrimary},
	}
}

func (m *MockClassifier) Predict(ctx context.Context, imagePath string) (*models.Prediction, error) {
	m.mu.Lock()
	m.Paths = append(m.Paths, imagePath)
	m.mu.Unlock()
	return m.PredictFunc(ctx, imagePath)
}

func (m *MockClassifier) Info() inference.Info {
	return m.State
}

// PredictedPaths returns the image paths seen so far
func (m *MockClassifier) PredictedPaths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Paths...)
}

// MockReferenceTables is an in-memory service.ReferenceTables
type MockReferenceTables struct {
	Items []reference.Entry
}

var _ service.ReferenceTables = (*MockReferenceTables)(nil)

func (m *MockReferenceTables) Lookup(name string) models.PestInfo {
	info := models.PestInfo{
		PestName:    name,
		Description: reference.NoDescription,
		Pesticides:  []models.PesticideDosage{{Name: reference.NoPesticideData}},
	}
	for _, e := range m.Items {
		if strings.EqualFold(e.Name, strings.TrimSpace(name)) {
			info.Found = true
			if e.Description != "" {
				info.Description = e.Description
			}
			if len(e.Pesticides) > 0 {
				info.Pesticides = e.Pesticides
			}
		}
	}
	return info
}

func (m *MockReferenceTables) Entries() []reference.Entry {
	return m.Items
}
