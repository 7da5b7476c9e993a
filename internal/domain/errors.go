package domain

import "errors"

// Repository sentinels. Services map them to application errors.
var (
	ErrCallNotFound    = errors.New("call not found")
	ErrVersionConflict = errors.New("call version conflict")
	ErrCallerBusy      = errors.New("caller already has an active call")
	ErrUserNotFound    = errors.New("user not found")
)
