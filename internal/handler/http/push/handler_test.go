package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"learnhub-backend/pkg/push"
)

type MockTokenService struct {
	mock.Mock
}

func (m *MockTokenService) RegisterToken(ctx context.Context, token *push.Token) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *MockTokenService) UnregisterToken(ctx context.Context, userID uuid.UUID, token string) error {
	args := m.Called(ctx, userID, token)
	return args.Error(0)
}

func setupRouter(service TokenService, userID uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("user_id", userID)
		c.Next()
	})
	handler := NewHandler(service)
	router.POST("/v1/push/tokens", handler.RegisterToken)
	router.DELETE("/v1/push/tokens", handler.UnregisterToken)
	return router
}

func send(router *gin.Engine, method string, body any) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(method, "/v1/push/tokens", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRegisterToken(t *testing.T) {
	userID := uuid.New()
	service := new(MockTokenService)
	router := setupRouter(service, userID)

	service.On("RegisterToken", mock.Anything, mock.MatchedBy(func(token *push.Token) bool {
		return token.UserID == userID &&
			token.Token == "device-token" &&
			token.Type == push.TokenTypeAPNs &&
			token.Platform == "ios" &&
			token.Active
	})).Return(nil)

	w := send(router, http.MethodPost, gin.H{"token": " device-token ", "type": "apns", "platform": "ios"})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "token_id")
	service.AssertExpectations(t)
}

func TestRegisterToken_Validation(t *testing.T) {
	service := new(MockTokenService)
	router := setupRouter(service, uuid.New())

	w := send(router, http.MethodPost, gin.H{"token": "device-token", "type": "web"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = send(router, http.MethodPost, gin.H{"token": "device-token", "type": "fcm", "platform": "symbian"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	service.AssertNotCalled(t, "RegisterToken", mock.Anything, mock.Anything)
}

func TestRegisterToken_StoreFailure(t *testing.T) {
	service := new(MockTokenService)
	router := setupRouter(service, uuid.New())

	service.On("RegisterToken", mock.Anything, mock.Anything).Return(errors.New("redis down"))

	w := send(router, http.MethodPost, gin.H{"token": "device-token", "type": "fcm"})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "redis down")
}

func TestRegisterToken_Unauthenticated(t *testing.T) {
	service := new(MockTokenService)
	router := setupRouter(service, uuid.Nil)

	w := send(router, http.MethodPost, gin.H{"token": "device-token", "type": "fcm"})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	service.AssertNotCalled(t, "RegisterToken", mock.Anything, mock.Anything)
}

func TestUnregisterToken(t *testing.T) {
	userID := uuid.New()
	service := new(MockTokenService)
	router := setupRouter(service, userID)

	service.On("UnregisterToken", mock.Anything, userID, "device-token").Return(nil)

	w := send(router, http.MethodDelete, gin.H{"token": "device-token"})

	assert.Equal(t, http.StatusNoContent, w.Code)
	service.AssertExpectations(t)
}
