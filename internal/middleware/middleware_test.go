package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"learnhub-backend/pkg/jwt"
	"learnhub-backend/pkg/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubRevocation struct {
	revoked bool
	err     error
}

func (s stubRevocation) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	if tokenID == "" {
		return false, errors.New("token without jti")
	}
	return s.revoked, s.err
}

func serve(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func authRouter(manager *jwt.JWTManager, checker RevocationChecker) *gin.Engine {
	router := gin.New()
	router.Use(AuthMiddleware(manager, checker))
	router.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id":  c.MustGet("user_id").(uuid.UUID).String(),
			"username": c.GetString("username"),
		})
	})
	return router
}

func TestAuthMiddleware(t *testing.T) {
	manager := jwt.NewJWTManager("test-secret-that-is-long-enough-1234", time.Minute)
	userID := uuid.New()
	token, err := manager.GenerateAccessToken(userID, "ada", "student")
	require.NoError(t, err)

	t.Run("valid bearer token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)

		w := serve(authRouter(manager, nil), req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), userID.String())
	})

	t.Run("missing header", func(t *testing.T) {
		w := serve(authRouter(manager, nil), httptest.NewRequest(http.MethodGet, "/me", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("malformed header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Token "+token)
		assert.Equal(t, http.StatusUnauthorized, serve(authRouter(manager, nil), req).Code)
	})

	t.Run("query token only on websocket upgrade", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me?token="+token, nil)
		assert.Equal(t, http.StatusUnauthorized, serve(authRouter(manager, nil), req).Code)

		req = httptest.NewRequest(http.MethodGet, "/me?token="+token, nil)
		req.Header.Set("Upgrade", "websocket")
		assert.Equal(t, http.StatusOK, serve(authRouter(manager, nil), req).Code)
	})

	t.Run("revoked token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := serve(authRouter(manager, stubRevocation{revoked: true}), req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("revocation store down fails open", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := serve(authRouter(manager, stubRevocation{err: errors.New("redis down")}), req)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestCORSMiddleware(t *testing.T) {
	router := gin.New()
	router.Use(CORSMiddleware([]string{"https://learn.example.com"}))
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://learn.example.com")
	w := serve(router, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://learn.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	assert.Equal(t, http.StatusForbidden, serve(router, req).Code)

	req = httptest.NewRequest(http.MethodOptions, "/ping", nil)
	req.Header.Set("Origin", "https://learn.example.com")
	assert.Equal(t, http.StatusNoContent, serve(router, req).Code)

	// Native clients send no Origin
	assert.Equal(t, http.StatusOK, serve(router, httptest.NewRequest(http.MethodGet, "/ping", nil)).Code)
}

func TestSecurityHeaders(t *testing.T) {
	router := gin.New()
	router.Use(SecurityHeaders())
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(router, httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestTimeout(t *testing.T) {
	router := gin.New()
	router.Use(Timeout(20*time.Millisecond, nil))
	router.GET("/slow", func(c *gin.Context) {
		<-c.Request.Context().Done()
	})
	router.GET("/fast", func(c *gin.Context) {
		_, hasDeadline := c.Request.Context().Deadline()
		c.JSON(http.StatusOK, gin.H{"deadline": hasDeadline})
	})

	w := serve(router, httptest.NewRequest(http.MethodGet, "/slow", nil))
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	assert.Contains(t, w.Body.String(), "REQUEST_TIMEOUT")

	w = serve(router, httptest.NewRequest(http.MethodGet, "/fast", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"deadline":true}`, w.Body.String())
}

func TestRecoveryAndHealthCheck(t *testing.T) {
	router := gin.New()
	router.Use(Recovery())
	router.Use(HealthCheck("call-service"))
	router.GET("/boom", func(*gin.Context) { panic("boom") })

	w := serve(router, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")

	w = serve(router, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "call-service")
}

func TestHTTPMetrics(t *testing.T) {
	m := metrics.NewMetrics("call-service-test")
	router := gin.New()
	router.Use(HTTPMetrics(m))
	router.Use(HealthCheck("call-service"))
	router.GET("/metrics", MetricsHandler(m))
	router.GET("/v1/calls/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	serve(router, httptest.NewRequest(http.MethodGet, "/v1/calls/123", nil))
	serve(router, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	serve(router, httptest.NewRequest(http.MethodGet, "/health", nil))

	w := serve(router, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()

	assert.Contains(t, body, `endpoint="/v1/calls/:id"`)
	assert.Contains(t, body, `endpoint="unmatched"`)
	assert.NotContains(t, body, `endpoint="/health"`)
	assert.NotContains(t, body, `endpoint="/metrics"`)
}
