package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusFollowsCode(t *testing.T) {
	tests := []struct {
		err    *AppError
		status int
	}{
		{ValidationError("bad type"), http.StatusBadRequest},
		{MissingFieldError("callee_id"), http.StatusBadRequest},
		{ForbiddenError("not a participant"), http.StatusForbidden},
		{CallNotFoundError(), http.StatusNotFound},
		{NotFoundError("Group call"), http.StatusNotFound},
		{ConflictError("already in a call"), http.StatusConflict},
		{DatabaseError(errors.New("conn reset")), http.StatusInternalServerError},
		{RelayUnavailableError("u1"), http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(string(tt.err.Code), func(t *testing.T) {
			assert.Equal(t, tt.status, tt.err.StatusCode)
		})
	}
}

func TestHasCode_ThroughWrapping(t *testing.T) {
	err := fmt.Errorf("initiate: %w", ConflictError("already in a call"))

	assert.True(t, HasCode(err, ErrCodeConflict))
	assert.False(t, HasCode(err, ErrCodeValidation))
	assert.False(t, HasCode(errors.New("plain"), ErrCodeConflict))
}

func TestGetAppError(t *testing.T) {
	cause := errors.New("pool exhausted")

	db := GetAppError(fmt.Errorf("list: %w", DatabaseError(cause)))
	assert.Equal(t, ErrCodeDatabase, db.Code)
	assert.ErrorIs(t, db, cause)

	plain := GetAppError(cause)
	assert.Equal(t, ErrCodeInternal, plain.Code)
	assert.Equal(t, http.StatusInternalServerError, plain.StatusCode)
	assert.ErrorIs(t, plain, cause)
}

func TestMissingFieldError_Message(t *testing.T) {
	assert.Equal(t, "Missing required field: call_id", MissingFieldError("call_id").Message)
}
