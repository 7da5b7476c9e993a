package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Participant is one member of a group call room
type Participant struct {
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name"`
	ProfileRef  string    `json:"profile_ref,omitempty"`
	PublishID   *int64    `json:"publish_id,omitempty"` // media-transport participant id
	JoinedAt    time.Time `json:"joined_at"`
}

// JoinGroupCall is the payload of join_group_call
type JoinGroupCall struct {
	DisplayName string `json:"display_name"`
	ProfileRef  string `json:"profile_ref"`
}

// ParticipantsSnapshot is sent privately to a joiner
type ParticipantsSnapshot struct {
	Participants []Participant `json:"participants"`
}

// PublishIDMapping associates a user with the media layer's numeric id
type PublishIDMapping struct {
	UserID    uuid.UUID `json:"user_id"`
	PublishID int64     `json:"publish_id"`
}

// ParticipantLeft is broadcast when a member leaves a room
type ParticipantLeft struct {
	UserID uuid.UUID `json:"user_id"`
}

// GroupMessage is a chat line broadcast to a whole room
type GroupMessage struct {
	MessageID  uuid.UUID `json:"message_id"`
	SenderID   uuid.UUID `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Message    string    `json:"message"`
	SentAt     time.Time `json:"sent_at"`
}

// UserStatusUpdate carries an opaque client status such as mute state
type UserStatusUpdate struct {
	UserID uuid.UUID       `json:"user_id"`
	Status json.RawMessage `json:"status"`
}

// ScreenShareStatus announces a member starting or stopping a screen share
type ScreenShareStatus struct {
	UserID    uuid.UUID `json:"user_id"`
	IsSharing bool      `json:"is_sharing"`
}
