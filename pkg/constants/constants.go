// Package constants holds defaults shared across the call service.
// Most of them can be overridden through pkg/config.
package constants

import "time"

// Request handling
const (
	DefaultTimeout          = 30 * time.Second
	GracefulShutdownTimeout = 30 * time.Second

	// ShortTimeout bounds best-effort side calls (presence mirror, push, relay publish)
	ShortTimeout = 5 * time.Second
)

// WebSocket gateway
const (
	WebSocketPingInterval = 60 * time.Second
	WebSocketWriteWait    = 10 * time.Second

	// WebSocketMaxMessageSize caps inbound signaling frames, SDP offers included
	WebSocketMaxMessageSize = 64 * 1024

	MaxWebSocketConnections = 1000
)

// pgx pool tuning
const (
	MaxConnLifetime   = time.Hour
	MaxConnIdleTime   = 30 * time.Minute
	HealthCheckPeriod = time.Minute
)

// Call lifecycle
const (
	// CallStaleAfter is how long an unanswered call may stay initiated or ringing
	CallStaleAfter    = 20 * time.Second
	CallSweepInterval = 10 * time.Second

	// MaxCallDuration rejects durations a client could not have measured
	MaxCallDuration = 24 * time.Hour

	DefaultPageSize = 20
	MaxPageSize     = 100

	// HistoryBucketLookback is how many monthly buckets a history read walks back
	HistoryBucketLookback = 12
)

// PresenceTTL is the lifetime of a user's online flag in Redis.
// Live registrations refresh it every third of the TTL.
const PresenceTTL = 5 * time.Minute

// RoomRosterTTL drops a group call roster nobody joined or updated for this long
const RoomRosterTTL = 12 * time.Hour

// PushTokenExpiry drops device tokens that were not re-registered for 30 days
const PushTokenExpiry = 30 * 24 * time.Hour
