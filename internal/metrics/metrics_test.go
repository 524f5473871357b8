package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartpest-api/internal/inference"
)

func TestClassifierState(t *testing.T) {
	m := New()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.classifierState.WithLabelValues("pending")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.classifierDegraded))

	m.ClassifierState(inference.StateUnavailable, inference.SourceNone)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.classifierDegraded))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.classifierState.WithLabelValues("pending")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.classifierState.WithLabelValues("unavailable")))

	m.ClassifierState(inference.StateLoaded, inference.SourcePrimary)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.classifierDegraded))
}

func TestPredictionAndLoadCounters(t *testing.T) {
	m := New()

	m.Prediction(inference.SourceMock, "success", 10*time.Millisecond)
	m.Prediction(inference.SourcePrimary, "success", 20*time.Millisecond)
	m.Prediction(inference.SourcePrimary, "decode", time.Millisecond)
	m.ModelLoadFailed(inference.SourceNone, "classes")
	m.ModelLoadFailed(inference.SourcePrimary, "lfs_pointer")
	m.ModelLoaded(inference.SourceFallback, time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.predictionsTotal.WithLabelValues("mock", "true", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.predictionsTotal.WithLabelValues("primary", "false", "decode")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.modelLoadsTotal.WithLabelValues("none", "classes")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.modelLoadsTotal.WithLabelValues("fallback", "loaded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.modelLoadDuration))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.RecordHTTPRequest(http.MethodGet, "/api/reports", http.StatusOK, 15*time.Millisecond)
	m.RecordRateLimited("/api/predict")

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	for _, want := range []string{
		`smartpest_http_requests_total{method="GET",route="/api/reports",status_code="200"} 1`,
		`smartpest_http_rate_limited_total{route="/api/predict"} 1`,
		`smartpest_classifier_degraded 0`,
		"go_goroutines",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("Expected exposition to contain %q", want)
		}
	}
}
