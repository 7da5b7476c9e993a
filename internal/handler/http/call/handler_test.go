package call

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"learnhub-backend/internal/domain"
	"learnhub-backend/internal/service/call"
	apperrors "learnhub-backend/pkg/errors"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) Initiate(ctx context.Context, input *call.InitiateCallInput) (*domain.CallResponse, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CallResponse), args.Error(1)
}

func (m *MockService) UpdateStatus(ctx context.Context, input *call.UpdateStatusInput) (*domain.CallResponse, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CallResponse), args.Error(1)
}

func (m *MockService) End(ctx context.Context, input *call.EndCallInput) (*domain.CallResponse, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CallResponse), args.Error(1)
}

func (m *MockService) ToggleScreenShare(ctx context.Context, input *call.ScreenShareInput) (*domain.CallResponse, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CallResponse), args.Error(1)
}

func (m *MockService) GetCall(ctx context.Context, callID, userID uuid.UUID) (*domain.CallResponse, error) {
	args := m.Called(ctx, callID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CallResponse), args.Error(1)
}

func (m *MockService) GetHistory(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.CallResponse, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.CallResponse), args.Error(1)
}

func (m *MockService) GetActiveCalls(ctx context.Context, userID uuid.UUID) ([]*domain.CallResponse, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.CallResponse), args.Error(1)
}

func (m *MockService) Cleanup(ctx context.Context, userID uuid.UUID) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockService) GetHistoryMessages(ctx context.Context, userID, peerID uuid.UUID, limit int) ([]*domain.CallHistoryMessage, error) {
	args := m.Called(ctx, userID, peerID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.CallHistoryMessage), args.Error(1)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func setupRouter(service Service, userID uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	group := router.Group("/v1/calls", func(c *gin.Context) {
		if userID != uuid.Nil {
			c.Set("user_id", userID)
		}
		c.Next()
	})
	NewHandler(service).RegisterRoutes(group)
	return router
}

func doRequest(t *testing.T, router *gin.Engine, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return w, env
}

func sampleCall(callerID, calleeID uuid.UUID, status domain.CallStatus) *domain.CallResponse {
	return (&domain.Call{
		CallID:   uuid.New(),
		CallerID: callerID,
		CalleeID: calleeID,
		CallType: domain.CallTypeVoice,
		Status:   status,
		Version:  1,
	}).ToResponse()
}

func TestInitiateCall(t *testing.T) {
	userID, calleeID := uuid.New(), uuid.New()
	service := new(MockService)
	router := setupRouter(service, userID)

	service.On("Initiate", mock.Anything, &call.InitiateCallInput{
		CallerID: userID,
		CalleeID: calleeID,
		CallType: domain.CallTypeVoice,
	}).Return(sampleCall(userID, calleeID, domain.CallStatusInitiated), nil)

	w, env := doRequest(t, router, http.MethodPost, "/v1/calls/initiate", gin.H{
		"callee_id": calleeID.String(),
		"call_type": "voice",
	})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, env.Success)

	var data map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "initiated", data["status"])
	assert.Equal(t, domain.ChannelName(userID, calleeID), data["channel_name"])
	service.AssertExpectations(t)
}

func TestInitiateCall_Validation(t *testing.T) {
	service := new(MockService)
	router := setupRouter(service, uuid.New())

	w, env := doRequest(t, router, http.MethodPost, "/v1/calls/initiate", gin.H{
		"callee_id": uuid.NewString(),
		"call_type": "hologram",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
	service.AssertNotCalled(t, "Initiate", mock.Anything, mock.Anything)
}

func TestInitiateCall_Conflict(t *testing.T) {
	service := new(MockService)
	router := setupRouter(service, uuid.New())

	service.On("Initiate", mock.Anything, mock.Anything).Return(nil, apperrors.ConflictError("already in a call"))

	w, env := doRequest(t, router, http.MethodPost, "/v1/calls/initiate", gin.H{
		"callee_id": uuid.NewString(),
		"call_type": "video",
	})

	assert.Equal(t, http.StatusConflict, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "CONFLICT", env.Error.Code)
	assert.Equal(t, "already in a call", env.Error.Message)
}

func TestInitiateCall_Unauthenticated(t *testing.T) {
	router := setupRouter(new(MockService), uuid.Nil)

	w, _ := doRequest(t, router, http.MethodPost, "/v1/calls/initiate", gin.H{
		"callee_id": uuid.NewString(),
		"call_type": "video",
	})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUpdateStatus_NotifiesCounterpart(t *testing.T) {
	userID := uuid.New()
	service := new(MockService)
	router := setupRouter(service, userID)
	resp := sampleCall(uuid.New(), userID, domain.CallStatusAccepted)

	service.On("UpdateStatus", mock.Anything, &call.UpdateStatusInput{
		CallID: resp.CallID,
		UserID: userID,
		Status: domain.CallStatusAccepted,
		Notify: true,
	}).Return(resp, nil)

	w, env := doRequest(t, router, http.MethodPut, "/v1/calls/"+resp.CallID.String()+"/status", gin.H{
		"status": "accepted",
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)
	service.AssertExpectations(t)
}

func TestUpdateStatus_Errors(t *testing.T) {
	userID := uuid.New()
	service := new(MockService)
	router := setupRouter(service, userID)

	w, _ := doRequest(t, router, http.MethodPut, "/v1/calls/not-a-uuid/status", gin.H{"status": "accepted"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	missing := uuid.New()
	service.On("UpdateStatus", mock.Anything, mock.MatchedBy(func(in *call.UpdateStatusInput) bool {
		return in.CallID == missing
	})).Return(nil, apperrors.CallNotFoundError())

	w, env := doRequest(t, router, http.MethodPut, "/v1/calls/"+missing.String()+"/status", gin.H{"status": "accepted"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "CALL_NOT_FOUND", env.Error.Code)

	forbidden := uuid.New()
	service.On("UpdateStatus", mock.Anything, mock.MatchedBy(func(in *call.UpdateStatusInput) bool {
		return in.CallID == forbidden
	})).Return(nil, apperrors.ForbiddenError("not a participant in this call"))

	w, _ = doRequest(t, router, http.MethodPut, "/v1/calls/"+forbidden.String()+"/status", gin.H{"status": "ended"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestEndCall(t *testing.T) {
	userID := uuid.New()
	service := new(MockService)
	router := setupRouter(service, userID)
	resp := sampleCall(userID, uuid.New(), domain.CallStatusEnded)

	service.On("End", mock.Anything, &call.EndCallInput{
		CallID:   resp.CallID,
		UserID:   userID,
		Duration: 125,
		Notify:   true,
	}).Return(resp, nil)

	w, _ := doRequest(t, router, http.MethodPost, "/v1/calls/"+resp.CallID.String()+"/end", gin.H{"duration": 125})

	assert.Equal(t, http.StatusOK, w.Code)
	service.AssertExpectations(t)
}

func TestEndCall_WithoutBody(t *testing.T) {
	userID := uuid.New()
	service := new(MockService)
	router := setupRouter(service, userID)
	resp := sampleCall(userID, uuid.New(), domain.CallStatusEnded)

	service.On("End", mock.Anything, mock.MatchedBy(func(in *call.EndCallInput) bool {
		return in.Duration == 0
	})).Return(resp, nil)

	w, _ := doRequest(t, router, http.MethodPost, "/v1/calls/"+resp.CallID.String()+"/end", nil)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestEndCall_NegativeDuration(t *testing.T) {
	service := new(MockService)
	router := setupRouter(service, uuid.New())

	w, _ := doRequest(t, router, http.MethodPost, "/v1/calls/"+uuid.NewString()+"/end", gin.H{"duration": -5})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	service.AssertNotCalled(t, "End", mock.Anything, mock.Anything)
}

func TestToggleScreenShare(t *testing.T) {
	userID := uuid.New()
	service := new(MockService)
	router := setupRouter(service, userID)
	resp := sampleCall(userID, uuid.New(), domain.CallStatusAccepted)

	service.On("ToggleScreenShare", mock.Anything, &call.ScreenShareInput{
		CallID:    resp.CallID,
		UserID:    userID,
		IsSharing: false,
		Notify:    true,
	}).Return(resp, nil)

	w, _ := doRequest(t, router, http.MethodPut, "/v1/calls/"+resp.CallID.String()+"/screen-share", gin.H{"is_sharing": false})
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = doRequest(t, router, http.MethodPut, "/v1/calls/"+resp.CallID.String()+"/screen-share", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	service.AssertNumberOfCalls(t, "ToggleScreenShare", 1)
}

func TestGetHistory_PassesLimit(t *testing.T) {
	userID := uuid.New()
	service := new(MockService)
	router := setupRouter(service, userID)

	service.On("GetHistory", mock.Anything, userID, 0).
		Return([]*domain.CallResponse{sampleCall(userID, uuid.New(), domain.CallStatusEnded)}, nil)
	service.On("GetHistory", mock.Anything, userID, 500).Return([]*domain.CallResponse{}, nil)

	w, env := doRequest(t, router, http.MethodGet, "/v1/calls/history", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var data struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, 1, data.Count)

	w, _ = doRequest(t, router, http.MethodGet, "/v1/calls/history?limit=500", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = doRequest(t, router, http.MethodGet, "/v1/calls/history?limit=ten", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	service.AssertExpectations(t)
}

func TestGetActiveCalls_DatabaseErrorIsHidden(t *testing.T) {
	userID := uuid.New()
	service := new(MockService)
	router := setupRouter(service, userID)

	service.On("GetActiveCalls", mock.Anything, userID).
		Return(nil, apperrors.DatabaseError(assert.AnError))

	w, env := doRequest(t, router, http.MethodGet, "/v1/calls/active", nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "DATABASE_ERROR", env.Error.Code)
	assert.Equal(t, "Internal server error", env.Error.Message)
}

func TestCleanup(t *testing.T) {
	userID := uuid.New()
	service := new(MockService)
	router := setupRouter(service, userID)

	service.On("Cleanup", mock.Anything, userID).Return(int64(2), nil)

	w, env := doRequest(t, router, http.MethodPost, "/v1/calls/cleanup", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"updated":2}`, string(env.Data))
}

func TestGetCall(t *testing.T) {
	userID := uuid.New()
	service := new(MockService)
	router := setupRouter(service, userID)
	resp := sampleCall(userID, uuid.New(), domain.CallStatusRinging)

	service.On("GetCall", mock.Anything, resp.CallID, userID).Return(resp, nil)

	w, env := doRequest(t, router, http.MethodGet, "/v1/calls/"+resp.CallID.String(), nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var data map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, resp.CallID.String(), data["call_id"])
}

func TestGetHistoryMessages(t *testing.T) {
	userID, peerID := uuid.New(), uuid.New()
	service := new(MockService)
	router := setupRouter(service, userID)

	service.On("GetHistoryMessages", mock.Anything, userID, peerID, 10).Return([]*domain.CallHistoryMessage{
		{MessageID: uuid.New(), Content: "2 mins", CallStatus: domain.HistoryCompleted},
	}, nil)

	w, env := doRequest(t, router, http.MethodGet, "/v1/calls/messages/"+peerID.String()+"?limit=10", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var data struct {
		Messages []domain.CallHistoryMessage `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.Len(t, data.Messages, 1)
	assert.Equal(t, "2 mins", data.Messages[0].Content)
}
