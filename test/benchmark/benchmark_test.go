package benchmark

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/smartpest-api/internal/config"
	"github.com/smartpest-api/internal/inference"
	"github.com/smartpest-api/internal/mocks"
	"github.com/smartpest-api/internal/models"
	"github.com/smartpest-api/internal/reference"
	"github.com/smartpest-api/internal/service"
	"github.com/smartpest-api/internal/validation"
)

func seededReports(n int) *mocks.MockReportRepository {
	repo := mocks.NewMockReportRepository()
	base := time.Now().Add(-time.Duration(n) * time.Second)
	for i := 0; i < n; i++ {
		repo.Create(context.Background(), &models.Report{
			ID:         fmt.Sprintf("report-%06d", i),
			PestName:   "aphids",
			Confidence: 0.87,
			UserID:     models.AnonymousUserID,
			CreatedAt:  base.Add(time.Duration(i) * time.Second),
		})
	}
	return repo
}

// BenchmarkPreprocess benchmarks resize and normalisation of a camera-sized photo
func BenchmarkPreprocess(b *testing.B) {
	img := image.NewNRGBA(image.Rect(0, 0, 1024, 768))
	for y := 0; y < 768; y++ {
		for x := 0; x < 1024; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}

	for _, size := range []int{224, 600} {
		b.Run(fmt.Sprintf("%dpx", size), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				inference.Preprocess(img, size, size)
			}
		})
	}
}

// BenchmarkSoftmax benchmarks probability normalisation over a wide output layer
func BenchmarkSoftmax(b *testing.B) {
	logits := make([]float32, 131)
	for i := range logits {
		logits[i] = float32(i%17) - 8
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		inference.Argmax(inference.Softmax(logits))
	}
}

// BenchmarkReportList benchmarks most-recent-first paging
func BenchmarkReportList(b *testing.B) {
	repo := seededReports(1000)
	ctx := context.Background()

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		repo.List(ctx, models.DefaultReportPageSize, 0)
	}
}

// BenchmarkReportExport benchmarks streaming export performance
func BenchmarkReportExport(b *testing.B) {
	repos, set := mocks.NewRepositories()
	set.Report = seededReports(1000)
	repos.Report = set.Report

	cfg := &config.Config{Upload: config.UploadConfig{TempDir: b.TempDir()}}
	services := service.NewServices(service.Dependencies{
		Repos:     repos,
		Reference: &mocks.MockReferenceTables{},
	}, cfg, zerolog.Nop())

	for _, format := range []string{"ndjson", "csv"} {
		b.Run(format, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				w := httptest.NewRecorder()
				services.Report.Export(context.Background(), w, format)
			}
			b.ReportMetric(float64(1000*b.N)/b.Elapsed().Seconds(), "rows/sec")
		})
	}
}

// BenchmarkValidateReport benchmarks report validation
func BenchmarkValidateReport(b *testing.B) {
	confidence := 0.91
	req := &models.SaveReportRequest{PestName: "brown planthopper", Confidence: &confidence}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		validation.ValidateReport(req)
	}
}

// BenchmarkPestLookup benchmarks case-insensitive reference lookups
func BenchmarkPestLookup(b *testing.B) {
	dir := b.TempDir()
	var descriptions []map[string]string
	for i := 0; i < 200; i++ {
		descriptions = append(descriptions, map[string]string{
			"pest_name":   fmt.Sprintf("Pest %d", i),
			"description": "A pest.",
		})
	}
	data, _ := json.Marshal(descriptions)
	descPath := filepath.Join(dir, "pest_description.json")
	os.WriteFile(descPath, data, 0o600)

	store := reference.Load(descPath, filepath.Join(dir, "missing.json"), zerolog.Nop())

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		store.Lookup("PEST 150")
	}
}

// BenchmarkPredictUpload benchmarks the temp file round trip around a prediction
func BenchmarkPredictUpload(b *testing.B) {
	repos, _ := mocks.NewRepositories()
	cfg := &config.Config{Upload: config.UploadConfig{TempDir: b.TempDir()}}
	services := service.NewServices(service.Dependencies{
		Repos:      repos,
		Classifier: mocks.NewMockClassifier("aphids", 0.9),
		Reference:  &mocks.MockReferenceTables{},
	}, cfg, zerolog.Nop())

	payload := make([]byte, 256*1024)
	b.SetBytes(int64(len(payload)))
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := services.Prediction.PredictUpload(context.Background(), "leaf.jpg", bytes.NewReader(payload)); err != nil {
			b.Fatal(err)
		}
	}
}
