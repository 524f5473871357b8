package api_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/smartpest-api/internal/api"
	"github.com/smartpest-api/internal/apperror"
	"github.com/smartpest-api/internal/auth"
	"github.com/smartpest-api/internal/config"
	"github.com/smartpest-api/internal/inference"
	"github.com/smartpest-api/internal/metrics"
	"github.com/smartpest-api/internal/mocks"
	"github.com/smartpest-api/internal/models"
	"github.com/smartpest-api/internal/reference"
	"github.com/smartpest-api/internal/service"
)

func init() {
	auth.BcryptCost = bcrypt.MinCost
}

type testEnv struct {
	router     *gin.Engine
	services   *service.Services
	repos      *mocks.MockSet
	classifier *mocks.MockClassifier
	tokens     *auth.TokenManager
	db         *fakeDB
}

type fakeDB struct{ err error }

func (f *fakeDB) HealthCheck(ctx context.Context) error { return f.err }

func (f *fakeDB) Stats() sql.DBStats { return sql.DBStats{OpenConnections: 3, InUse: 1, Idle: 2} }

func setupTestRouter(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Server:    config.ServerConfig{Port: "8000", AllowedOrigins: "*"},
		Upload:    config.UploadConfig{MaxUploadSize: 1024 * 1024, TempDir: t.TempDir()},
		Reference: config.ReferenceConfig{CatalogCacheTTL: time.Minute},
	}
	for _, m := range mutate {
		m(cfg)
	}

	repos, set := mocks.NewRepositories()
	classifier := mocks.NewMockClassifier("aphids", 0.9123)
	tokens := auth.NewTokenManager("test-secret", time.Hour, "test")
	ref := &mocks.MockReferenceTables{Items: []reference.Entry{{
		Name:        "Aphids",
		Description: "Small sap-sucking insects.",
		Pesticides:  []models.PesticideDosage{{Name: "Neem oil", Dosage: "5 ml/L"}},
	}}}

	services := service.NewServices(service.Dependencies{
		Repos:      repos,
		Classifier: classifier,
		Reference:  ref,
		Tokens:     tokens,
	}, cfg, zerolog.Nop())

	db := &fakeDB{}
	router := api.NewRouter(services, api.Dependencies{
		Tokens:  tokens,
		Metrics: metrics.New(),
		DB:      db,
	}, cfg, zerolog.Nop())

	return &testEnv{router: router, services: services, repos: set, classifier: classifier, tokens: tokens, db: db}
}

func (e *testEnv) token(t *testing.T, role string) string {
	t.Helper()
	token, _, err := e.tokens.Issue(&models.User{ID: uuid.NewString(), Role: role})
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	return token
}

func (e *testEnv) do(method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func imageUpload(t *testing.T, field, filename string, content []byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(field, filename)
	if err != nil {
		t.Fatal(err)
	}
	part.Write(content)
	writer.Close()

	req := httptest.NewRequest("POST", "/api/predict", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Invalid JSON body %q: %v", w.Body.String(), err)
	}
	return response
}

func TestHealthEndpoint(t *testing.T) {
	env := setupTestRouter(t)

	w := env.do("GET", "/health", nil, "")
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	response := decode(t, w)
	if response["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got %v", response["status"])
	}
	if response["service"] != "smartpest-api" {
		t.Errorf("Expected service name, got %v", response["service"])
	}
	pool, ok := response["database_pool"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected database_pool object, got %v", response["database_pool"])
	}
	if pool["open_connections"] != float64(3) || pool["in_use"] != float64(1) {
		t.Errorf("Unexpected pool stats: %v", pool)
	}

	env.db.err = errors.New("connection refused")
	w = env.do("GET", "/health", nil, "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503 with database down, got %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupTestRouter(t)
	env.do("GET", "/api/reports", nil, "")

	w := env.do("GET", "/metrics", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `smartpest_http_requests_total{method="GET",route="/api/reports",status_code="200"}`) {
		t.Errorf("Expected request counter for /api/reports in:\n%s", w.Body.String())
	}
}

func TestPredict(t *testing.T) {
	env := setupTestRouter(t)

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, imageUpload(t, "image", "leaf.jpg", []byte("fake image")))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	response := decode(t, w)
	if response["class"] != "aphids" || response["confidence"].(float64) != 0.9123 {
		t.Errorf("Unexpected prediction: %v", response)
	}
	if _, leaked := response["Mock"]; leaked {
		t.Error("Mock flag must not be serialised")
	}

	for _, path := range env.classifier.PredictedPaths() {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("Expected temp file %s removed", path)
		}
	}
}

func TestPredict_Errors(t *testing.T) {
	tests := []struct {
		name       string
		field      string
		content    []byte
		maxUpload  int64
		predictErr error
		wantStatus int
		wantError  string
	}{
		{"missing image", "photo", []byte("bytes"), 0, nil, http.StatusBadRequest, "No image uploaded."},
		{"decode error", "image", []byte("bytes"), 0, apperror.Decode(errors.New("unknown format")), http.StatusBadRequest, ""},
		{"inference error", "image", []byte("bytes"), 0, apperror.Inference(errors.New("runtime panic")), http.StatusInternalServerError, ""},
		{"oversized upload", "image", bytes.Repeat([]byte("x"), 4096), 1024, nil, http.StatusBadRequest, "file too large, max size is 1 KB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestRouter(t, func(c *config.Config) {
				if tt.maxUpload > 0 {
					c.Upload.MaxUploadSize = tt.maxUpload
				}
			})
			if tt.predictErr != nil {
				env.classifier.PredictFunc = func(ctx context.Context, path string) (*models.Prediction, error) {
					return nil, tt.predictErr
				}
			}

			w := httptest.NewRecorder()
			env.router.ServeHTTP(w, imageUpload(t, tt.field, "leaf.jpg", tt.content))

			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, w.Code)
			}
			msg, ok := decode(t, w)["error"]
			if !ok {
				t.Error("Expected error key in body")
			}
			if tt.wantError != "" && msg != tt.wantError {
				t.Errorf("Expected error %q, got %v", tt.wantError, msg)
			}
			for _, path := range env.classifier.PredictedPaths() {
				if _, err := os.Stat(path); !os.IsNotExist(err) {
					t.Errorf("Expected temp file %s removed", path)
				}
			}
		})
	}
}

func TestPredict_DegradedMode(t *testing.T) {
	env := setupTestRouter(t)
	env.classifier.State = inference.Info{State: inference.StateUnavailable, Source: inference.SourceMock}
	env.classifier.PredictFunc = func(ctx context.Context, path string) (*models.Prediction, error) {
		return &models.Prediction{Class: "thrips", Confidence: 0.8, Mock: true}, nil
	}

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, imageUpload(t, "image", "leaf.png", []byte("x")))
		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", w.Code)
		}
		if w.Header().Get("X-Classifier-Mode") != "degraded" {
			t.Error("Expected degraded mode header")
		}
	}

	health := decode(t, env.do("GET", "/health", nil, ""))
	classifier := health["classifier"].(map[string]interface{})
	if classifier["degraded"] != true {
		t.Errorf("Expected degraded classifier in health, got %v", classifier)
	}
}

func TestPredict_RateLimited(t *testing.T) {
	env := setupTestRouter(t, func(c *config.Config) {
		c.RateLimit = config.RateLimitConfig{PredictPerSecond: 0.001, PredictBurst: 1}
	})

	codes := make([]int, 2)
	for i := range codes {
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, imageUpload(t, "image", "leaf.jpg", []byte("x")))
		codes[i] = w.Code
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Errorf("Expected [200 429], got %v", codes)
	}
}

func TestPestInfo(t *testing.T) {
	env := setupTestRouter(t)

	tests := []struct {
		name            string
		path            string
		wantDescription string
		wantPesticide   string
	}{
		{"exact", "/api/pest-info/Aphids", "Small sap-sucking insects.", "Neem oil"},
		{"case insensitive", "/api/pest-info/aPHIDS", "Small sap-sucking insects.", "Neem oil"},
		{"unknown", "/api/pest-info/dragon", reference.NoDescription, reference.NoPesticideData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do("GET", tt.path, nil, "")
			if w.Code != http.StatusOK {
				t.Fatalf("Expected status 200, got %d", w.Code)
			}
			response := decode(t, w)
			if response["description"] != tt.wantDescription {
				t.Errorf("Expected description %q, got %v", tt.wantDescription, response["description"])
			}
			pesticides := response["pesticides"].([]interface{})
			if pesticides[0].(map[string]interface{})["name"] != tt.wantPesticide {
				t.Errorf("Expected pesticide %q, got %v", tt.wantPesticide, pesticides[0])
			}
		})
	}
}

func TestReports_RoundTrip(t *testing.T) {
	env := setupTestRouter(t)

	var ids []string
	for _, name := range []string{"aphids", "thrips", "whitefly"} {
		w := env.do("POST", "/api/save-report", map[string]interface{}{"pest_name": name, "confidence": 0.75}, "")
		if w.Code != http.StatusCreated {
			t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
		}
		response := decode(t, w)
		if response["message"] != "Report saved successfully" {
			t.Errorf("Unexpected message: %v", response["message"])
		}
		ids = append(ids, response["report_id"].(string))
		time.Sleep(2 * time.Millisecond)
	}

	var page models.ReportPage
	w := env.do("GET", "/api/reports", nil, "")
	json.Unmarshal(w.Body.Bytes(), &page)

	if page.Count != 3 || len(page.Reports) != 3 {
		t.Fatalf("Expected 3 reports, got %+v", page)
	}
	if page.Reports[0].ID != ids[2] || page.Reports[2].ID != ids[0] {
		t.Errorf("Expected most recent first, got %s..%s", page.Reports[0].PestName, page.Reports[2].PestName)
	}
	if page.Reports[0].UserID != models.AnonymousUserID {
		t.Errorf("Expected anonymous owner, got %s", page.Reports[0].UserID)
	}

	w = env.do("GET", "/api/reports/"+ids[1], nil, "")
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	w = env.do("GET", "/api/reports/"+uuid.NewString(), nil, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestSaveReport_Validation(t *testing.T) {
	env := setupTestRouter(t)

	w := env.do("POST", "/api/save-report", map[string]interface{}{"pest_name": "aphids", "confidence": 1.5}, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", w.Code)
	}
	details, ok := decode(t, w)["details"].([]interface{})
	if !ok || len(details) != 1 {
		t.Errorf("Expected one field detail, got %v", details)
	}
}

func TestSaveReport_IdempotencyKey(t *testing.T) {
	env := setupTestRouter(t)
	token := env.token(t, models.RoleUser)

	send := func() *httptest.ResponseRecorder {
		data, _ := json.Marshal(map[string]interface{}{"pest_name": "aphids", "confidence": 0.5})
		req := httptest.NewRequest("POST", "/api/save-report", bytes.NewReader(data))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Idempotency-Key", "abc-123")
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)
		return w
	}

	first, second := send(), send()
	if first.Code != http.StatusCreated || second.Code != http.StatusOK {
		t.Errorf("Expected 201 then 200, got %d then %d", first.Code, second.Code)
	}
	if decode(t, first)["report_id"] != decode(t, second)["report_id"] {
		t.Error("Expected replay to return the original report")
	}
	if env.repos.Report.CreateCalls != 1 {
		t.Errorf("Expected one insert, got %d", env.repos.Report.CreateCalls)
	}
}

func TestRegisterAndLogin(t *testing.T) {
	env := setupTestRouter(t)
	creds := map[string]string{"email": "grower@example.com", "password": "s3cure-pass"}

	w := env.do("POST", "/api/register", map[string]string{
		"email": creds["email"], "password": creds["password"], "first_name": "Ada", "role": "admin",
	}, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	if role := decode(t, w)["role"]; role != models.RoleUser {
		t.Errorf("Expected role forced to user, got %v", role)
	}
	if strings.Contains(w.Body.String(), "password") {
		t.Error("Password hash must not be serialised")
	}

	w = env.do("POST", "/api/login", creds, "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	token, _ := decode(t, w)["token"].(string)
	if token == "" {
		t.Fatal("Expected token")
	}

	w = env.do("GET", "/api/users/me", nil, token)
	if w.Code != http.StatusOK || decode(t, w)["email"] != creds["email"] {
		t.Errorf("Expected /users/me to return the account, got %d %s", w.Code, w.Body.String())
	}

	w = env.do("POST", "/api/login", map[string]string{"email": creds["email"], "password": "wrong-password"}, "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
	if _, ok := decode(t, w)["token"]; ok {
		t.Error("Expected no token on failed login")
	}

	w = env.do("POST", "/api/register", creds, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for duplicate email, got %d", w.Code)
	}
}

func TestRoleGating(t *testing.T) {
	env := setupTestRouter(t)
	userToken := env.token(t, models.RoleUser)
	adminToken := env.token(t, models.RoleAdmin)

	w := env.do("POST", "/api/feedback", map[string]string{"subject": "Hello", "message": "Nice app"}, userToken)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	feedbackID := decode(t, w)["id"].(string)

	tests := []struct {
		name       string
		method     string
		path       string
		token      string
		wantStatus int
	}{
		{"anonymous feedback create", "POST", "/api/feedback", "", http.StatusUnauthorized},
		{"garbage token", "GET", "/api/reports", "not-a-token", http.StatusUnauthorized},
		{"anonymous feedback delete", "DELETE", "/api/feedback/" + feedbackID, "", http.StatusUnauthorized},
		{"user feedback delete", "DELETE", "/api/feedback/" + feedbackID, userToken, http.StatusForbidden},
		{"user feedback list", "GET", "/api/feedback", userToken, http.StatusForbidden},
		{"user dashboard", "GET", "/api/admin/dashboard", userToken, http.StatusForbidden},
		{"user export", "GET", "/api/reports/export", userToken, http.StatusForbidden},
		{"user pesticide create", "POST", "/api/pesticides", userToken, http.StatusForbidden},
		{"anonymous pesticide list", "GET", "/api/pesticides", "", http.StatusOK},
		{"admin feedback delete", "DELETE", "/api/feedback/" + feedbackID, adminToken, http.StatusNoContent},
		{"admin feedback delete again", "DELETE", "/api/feedback/" + feedbackID, adminToken, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(tt.method, tt.path, map[string]string{}, tt.token)
			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
		})
	}
}

func TestCatalogCRUD(t *testing.T) {
	env := setupTestRouter(t)
	admin := env.token(t, models.RoleAdmin)

	w := env.do("POST", "/api/pests", map[string]string{"name": "Aphids", "description": "green"}, admin)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	id := decode(t, w)["id"].(string)

	w = env.do("POST", "/api/pests", map[string]string{"name": "aphids"}, admin)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for duplicate name, got %d", w.Code)
	}

	w = env.do("PUT", "/api/pests/"+id, map[string]string{"name": "Aphids", "description": "black"}, admin)
	if w.Code != http.StatusOK || decode(t, w)["description"] != "black" {
		t.Errorf("Expected updated pest, got %d %s", w.Code, w.Body.String())
	}

	w = env.do("GET", "/api/pests", nil, "")
	if decode(t, w)["count"].(float64) != 1 {
		t.Errorf("Expected 1 pest, got %s", w.Body.String())
	}

	w = env.do("POST", "/api/pesticides", map[string]string{"name": "Spinosad", "toxicity_level": "lethal"}, admin)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for invalid toxicity, got %d", w.Code)
	}

	w = env.do("DELETE", "/api/pests/"+id, nil, admin)
	if w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", w.Code)
	}
	w = env.do("GET", "/api/pests/"+id, nil, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestAdminDashboard(t *testing.T) {
	env := setupTestRouter(t)
	admin := env.token(t, models.RoleAdmin)

	env.do("POST", "/api/save-report", map[string]interface{}{"pest_name": "aphids", "confidence": 0.5}, "")

	w := env.do("GET", "/api/admin/dashboard", nil, admin)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var dash models.Dashboard
	json.Unmarshal(w.Body.Bytes(), &dash)
	if dash.Stats.TotalReports != 1 || len(dash.RecentDetections) != 1 {
		t.Errorf("Unexpected dashboard: %+v", dash)
	}
}

func TestExportReports(t *testing.T) {
	env := setupTestRouter(t)
	admin := env.token(t, models.RoleAdmin)
	env.do("POST", "/api/save-report", map[string]interface{}{"pest_name": "aphids", "confidence": 0.5}, "")

	w := env.do("GET", "/api/reports/export?format=csv", nil, admin)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if !strings.HasPrefix(w.Body.String(), "id,pest_name,confidence") {
		t.Errorf("Expected CSV header, got %q", w.Body.String())
	}

	w = env.do("GET", "/api/reports/export?format=xml", nil, admin)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestExportReports_FailureBeforeFirstRow(t *testing.T) {
	env := setupTestRouter(t)
	admin := env.token(t, models.RoleAdmin)
	env.repos.Report.StreamError = errors.New("connection reset")

	w := env.do("GET", "/api/reports/export?format=ndjson", nil, admin)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("Expected status 500, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("Expected JSON content type, got %q", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); cd != "" {
		t.Errorf("Expected no attachment header, got %q", cd)
	}
	if _, ok := decode(t, w)["error"]; !ok {
		t.Error("Expected error key in body")
	}
}

func TestCORS(t *testing.T) {
	env := setupTestRouter(t, func(c *config.Config) {
		c.Server.AllowedOrigins = "https://app.example.com"
	})

	req := httptest.NewRequest("OPTIONS", "/api/predict", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("Expected origin echoed, got %q", got)
	}

	req = httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Expected no CORS header for unknown origin, got %q", got)
	}
}
