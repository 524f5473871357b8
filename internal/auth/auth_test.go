package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/smartpest-api/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
	BcryptCost = bcrypt.MinCost
}

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", hash)

	assert.True(t, CheckPassword(hash, "correct horse"))
	assert.False(t, CheckPassword(hash, "wrong horse"))
	assert.False(t, CheckPassword("not-a-hash", "correct horse"))

	_, err = HashPassword("short")
	assert.ErrorIs(t, err, ErrPasswordTooShort)
}

func TestTokenManager_RoundTrip(t *testing.T) {
	tm := NewTokenManager("test-secret", time.Hour, "smartpest-test")
	user := &models.User{ID: "user-1", Role: models.RoleAdmin}

	token, expiresAt, err := tm.Issue(user)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := tm.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, models.RoleAdmin, claims.Role)
}

func TestTokenManager_Rejects(t *testing.T) {
	tm := NewTokenManager("test-secret", time.Hour, "smartpest-test")
	user := &models.User{ID: "user-1", Role: models.RoleUser}
	valid, _, err := tm.Issue(user)
	require.NoError(t, err)

	expired := NewTokenManager("test-secret", time.Hour, "smartpest-test")
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expiredToken, _, err := expired.Issue(user)
	require.NoError(t, err)

	otherIssuer, _, err := NewTokenManager("test-secret", time.Hour, "someone-else").Issue(user)
	require.NoError(t, err)

	forged, _, err := NewTokenManager("other-secret", time.Hour, "smartpest-test").Issue(user)
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		Role:             models.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1", Issuer: "smartpest-test"},
	})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not.a.token"},
		{"tampered", valid[:len(valid)-2] + "xx"},
		{"expired", expiredToken},
		{"wrong issuer", otherIssuer},
		{"wrong secret", forged},
		{"alg none", unsigned},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tm.Parse(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func newRouter(tm *TokenManager, guards ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(Authenticate(tm))
	handlers := append(guards, func(c *gin.Context) {
		identity, ok := IdentityFrom(c)
		if !ok {
			c.String(http.StatusOK, "anonymous")
			return
		}
		c.String(http.StatusOK, identity.UserID+":"+identity.Role)
	})
	r.GET("/", handlers...)
	return r
}

func TestMiddleware(t *testing.T) {
	tm := NewTokenManager("test-secret", time.Hour, "smartpest-test")
	userToken, _, _ := tm.Issue(&models.User{ID: "u-1", Role: models.RoleUser})
	adminToken, _, _ := tm.Issue(&models.User{ID: "a-1", Role: models.RoleAdmin})

	tests := []struct {
		name       string
		guards     []gin.HandlerFunc
		header     string
		wantStatus int
		wantBody   string
	}{
		{"optional anonymous", nil, "", http.StatusOK, "anonymous"},
		{"optional with token", nil, "Bearer " + userToken, http.StatusOK, "u-1:user"},
		{"lowercase scheme", nil, "bearer " + userToken, http.StatusOK, "u-1:user"},
		{"malformed header", nil, "Token abc", http.StatusUnauthorized, "malformed"},
		{"invalid token", nil, "Bearer abc.def.ghi", http.StatusUnauthorized, "invalid"},
		{"require auth anonymous", []gin.HandlerFunc{RequireAuth()}, "", http.StatusUnauthorized, "authentication required"},
		{"require auth user", []gin.HandlerFunc{RequireAuth()}, "Bearer " + userToken, http.StatusOK, "u-1:user"},
		{"admin anonymous", []gin.HandlerFunc{RequireRole(models.RoleAdmin)}, "", http.StatusUnauthorized, "authentication required"},
		{"admin as user", []gin.HandlerFunc{RequireRole(models.RoleAdmin)}, "Bearer " + userToken, http.StatusForbidden, "insufficient permissions"},
		{"admin as admin", []gin.HandlerFunc{RequireRole(models.RoleAdmin)}, "Bearer " + adminToken, http.StatusOK, "a-1:admin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newRouter(tm, tt.guards...)
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
			if !strings.Contains(w.Body.String(), tt.wantBody) {
				t.Errorf("Expected body to contain %q, got %s", tt.wantBody, w.Body.String())
			}
		})
	}
}

func TestIdentityIsAdmin(t *testing.T) {
	var nilIdentity *Identity
	assert.False(t, nilIdentity.IsAdmin())
	assert.True(t, (&Identity{Role: models.RoleAdmin}).IsAdmin())
	assert.False(t, (&Identity{Role: models.RoleUser}).IsAdmin())
}
