package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType is the wire name of a WebSocket event
type EventType string

// Relay events, forwarded from one participant to the other
const (
	EventCallInitiated      EventType = "call_initiated"
	EventCallAccepted       EventType = "call_accepted"
	EventCallRejected       EventType = "call_rejected"
	EventCallEnded          EventType = "call_ended"
	EventICECandidate       EventType = "ice_candidate"
	EventScreenShareStarted EventType = "screen_share_started"
	EventScreenShareStopped EventType = "screen_share_stopped"
	EventQualityUpdate      EventType = "quality_update"
)

// Server-originated events
const (
	EventCallHistoryMessage EventType = "call_history_message"
	EventRegistered         EventType = "registered"
	EventError              EventType = "error"
)

// Group call events. Client requests first, then server broadcasts.
const (
	EventRegister          EventType = "register"
	EventJoinGroupCall     EventType = "join_group_call"
	EventLeaveGroupCall    EventType = "leave_group_call"
	EventPublishIDMapping  EventType = "publish_id_mapping"
	EventSendGroupMessage  EventType = "send_group_message"
	EventUpdateUserStatus  EventType = "update_user_status"
	EventScreenShareStatus EventType = "screen_share_status"

	EventGroupCallParticipants EventType = "group_call_participants"
	EventParticipantJoined     EventType = "participant_joined"
	EventParticipantLeft       EventType = "participant_left"
	EventGroupMessage          EventType = "group_message"
	EventUserStatusUpdate      EventType = "user_status_update"
)

// IsRelay reports whether t is addressed to a single counterpart
func (t EventType) IsRelay() bool {
	switch t {
	case EventCallInitiated, EventCallAccepted, EventCallRejected, EventCallEnded,
		EventICECandidate, EventScreenShareStarted, EventScreenShareStopped, EventQualityUpdate:
		return true
	}
	return false
}

// Event is the envelope of every WebSocket frame in both directions
type Event struct {
	Type      EventType       `json:"type"`
	From      uuid.UUID       `json:"from,omitzero"`
	To        uuid.UUID       `json:"to,omitzero"`
	CallID    uuid.UUID       `json:"call_id,omitzero"`
	Channel   string          `json:"channel,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp,omitzero"`
}

// NewEvent builds an event with data marshalled into the payload
func NewEvent(t EventType, data any) (*Event, error) {
	event := &Event{
		Type:      t,
		Timestamp: time.Now().UTC(),
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", t, err)
		}
		event.Data = raw
	}
	return event, nil
}

// Decode unmarshals the payload into v. An empty payload leaves v untouched.
func (e *Event) Decode(v any) error {
	if len(e.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("invalid %s payload: %w", e.Type, err)
	}
	return nil
}

// CallInvite is the payload of call_initiated
type CallInvite struct {
	CallID      uuid.UUID    `json:"call_id"`
	CallType    CallType     `json:"call_type"`
	ChannelName string       `json:"channel_name"`
	Caller      *UserSummary `json:"caller"`
}

// CallEndRequest is the payload of call_ended
type CallEndRequest struct {
	Duration int `json:"duration"`
}

// QualityReport is the payload of quality_update
type QualityReport struct {
	Quality ConnectionQuality `json:"quality"`
}

// Registered is the acknowledgement sent after a socket registers
type Registered struct {
	UserID       uuid.UUID `json:"user_id"`
	ConnectionID string    `json:"connection_id"`
}

// ErrorPayload reports a failed client request on the socket
type ErrorPayload struct {
	Code    string    `json:"code"`
	Message string    `json:"message"`
	Request EventType `json:"request,omitempty"`
}
