package domain

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CallType is the media kind of a two-party call
type CallType string

const (
	CallTypeVoice CallType = "voice"
	CallTypeVideo CallType = "video"
)

// Valid reports whether t is a known call type
func (t CallType) Valid() bool {
	return t == CallTypeVoice || t == CallTypeVideo
}

// CallStatus is a state of the call state machine
type CallStatus string

const (
	CallStatusInitiated CallStatus = "initiated"
	CallStatusRinging   CallStatus = "ringing"
	CallStatusAccepted  CallStatus = "accepted"
	CallStatusEnded     CallStatus = "ended"
	CallStatusRejected  CallStatus = "rejected"
	CallStatusMissed    CallStatus = "missed"
	CallStatusBusy      CallStatus = "busy"
)

// ActiveCallStatuses are the statuses that occupy both participants
var ActiveCallStatuses = []CallStatus{CallStatusInitiated, CallStatusRinging, CallStatusAccepted}

// PendingCallStatuses are the unanswered statuses subject to staleness sweeps
var PendingCallStatuses = []CallStatus{CallStatusInitiated, CallStatusRinging}

// Valid reports whether s is a known status
func (s CallStatus) Valid() bool {
	switch s {
	case CallStatusInitiated, CallStatusRinging, CallStatusAccepted,
		CallStatusEnded, CallStatusRejected, CallStatusMissed, CallStatusBusy:
		return true
	}
	return false
}

// IsActive reports whether the call still occupies its participants
func (s CallStatus) IsActive() bool {
	return s == CallStatusInitiated || s == CallStatusRinging || s == CallStatusAccepted
}

// IsTerminal reports whether no further transition is possible.
// Busy is neither active nor terminal: it can only be ended.
func (s CallStatus) IsTerminal() bool {
	return s == CallStatusEnded || s == CallStatusRejected || s == CallStatusMissed
}

// CanTransitionTo reports whether the state machine allows s -> next
func (s CallStatus) CanTransitionTo(next CallStatus) bool {
	if !next.Valid() || s.IsTerminal() {
		return false
	}
	switch s {
	case CallStatusInitiated:
		return next != CallStatusInitiated
	case CallStatusRinging:
		return next != CallStatusInitiated && next != CallStatusRinging
	case CallStatusAccepted:
		return next == CallStatusEnded || next == CallStatusRejected ||
			next == CallStatusMissed || next == CallStatusBusy
	case CallStatusBusy:
		return next == CallStatusEnded
	}
	return false
}

// ConnectionQuality is the last reported media quality of a call
type ConnectionQuality string

const (
	QualityExcellent ConnectionQuality = "excellent"
	QualityGood      ConnectionQuality = "good"
	QualityFair      ConnectionQuality = "fair"
	QualityPoor      ConnectionQuality = "poor"
)

// Valid reports whether q is a known quality level
func (q ConnectionQuality) Valid() bool {
	switch q {
	case QualityExcellent, QualityGood, QualityFair, QualityPoor:
		return true
	}
	return false
}

// Call represents one two-party call attempt
// Maps to CockroachDB calls table
type Call struct {
	CallID               uuid.UUID         `json:"call_id" db:"call_id"`
	CallerID             uuid.UUID         `json:"caller_id" db:"caller_id"`
	CalleeID             uuid.UUID         `json:"callee_id" db:"callee_id"`
	CallType             CallType          `json:"call_type" db:"call_type"`
	Status               CallStatus        `json:"status" db:"status"`
	StartedAt            *time.Time        `json:"started_at,omitempty" db:"started_at"`
	EndedAt              *time.Time        `json:"ended_at,omitempty" db:"ended_at"`
	Duration             int               `json:"duration" db:"duration"` // seconds
	IsScreenSharing      bool              `json:"is_screen_sharing" db:"is_screen_sharing"`
	ScreenShareStartedAt *time.Time        `json:"screen_share_started_at,omitempty" db:"screen_share_started_at"`
	ConnectionQuality    ConnectionQuality `json:"connection_quality" db:"connection_quality"`
	Version              int               `json:"version" db:"version"`
	CreatedAt            time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at" db:"updated_at"`
}

// IsParticipant reports whether userID is the caller or the callee
func (c *Call) IsParticipant(userID uuid.UUID) bool {
	return userID == c.CallerID || userID == c.CalleeID
}

// Counterpart returns the other participant of the call
func (c *Call) Counterpart(userID uuid.UUID) uuid.UUID {
	if userID == c.CallerID {
		return c.CalleeID
	}
	return c.CallerID
}

// ChannelName returns the media channel both participants join
func (c *Call) ChannelName() string {
	return ChannelName(c.CallerID, c.CalleeID)
}

// ChannelName derives the media channel name from the two participant ids.
// The ids are sorted so both sides compute the same name.
func ChannelName(a, b uuid.UUID) string {
	ids := []string{a.String(), b.String()}
	sort.Strings(ids)
	return strings.Join(ids, "_")
}

// CallResponse is the client representation of a call with display data
type CallResponse struct {
	*Call
	ChannelName string       `json:"channel_name"`
	Caller      *UserSummary `json:"caller,omitempty"`
	Callee      *UserSummary `json:"callee,omitempty"`
}

// ToResponse wraps the call; display data is filled in by the caller
func (c *Call) ToResponse() *CallResponse {
	return &CallResponse{
		Call:        c,
		ChannelName: c.ChannelName(),
	}
}
