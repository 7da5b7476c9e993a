package domain

import (
	"time"

	"github.com/google/uuid"
)

// HistoryMessageType is the chat message kind of a call history entry
type HistoryMessageType string

const (
	HistoryMessageAudioCall HistoryMessageType = "audio_call"
	HistoryMessageVideoCall HistoryMessageType = "video_call"
)

// HistoryMessageTypeFor maps a call type to its history message type
func HistoryMessageTypeFor(t CallType) HistoryMessageType {
	if t == CallTypeVideo {
		return HistoryMessageVideoCall
	}
	return HistoryMessageAudioCall
}

// HistoryCallStatus is the outcome recorded on a history message
type HistoryCallStatus string

const (
	HistoryCompleted HistoryCallStatus = "completed"
	HistoryMissed    HistoryCallStatus = "missed"
	HistoryRejected  HistoryCallStatus = "rejected"
	HistoryNoAnswer  HistoryCallStatus = "no_answer"
)

// CallHistoryMessage is the chat entry synthesized when a call is rejected or ended.
// Written once, never updated.
// Maps to Cassandra call_history_messages table
type CallHistoryMessage struct {
	MessageID       uuid.UUID          `json:"message_id"`
	ConversationKey string             `json:"conversation_key"` // channel name of the call
	Bucket          int                `json:"-"`
	CallID          uuid.UUID          `json:"call_id"`
	SenderID        uuid.UUID          `json:"sender_id"`
	ReceiverID      uuid.UUID          `json:"receiver_id"`
	Content         string             `json:"content"`
	MessageType     HistoryMessageType `json:"message_type"`
	CallDuration    int                `json:"call_duration"`
	CallStatus      HistoryCallStatus  `json:"call_status"`
	IsRead          bool               `json:"is_read"`
	CreatedAt       time.Time          `json:"created_at"`
}

// CalculateBucket returns the yyyymm partition bucket for t
func CalculateBucket(t time.Time) int {
	t = t.UTC()
	return t.Year()*100 + int(t.Month())
}

// RecentBuckets returns the buckets of the given number of months ending with t's month, newest first
func RecentBuckets(t time.Time, months int) []int {
	t = t.UTC()
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	buckets := make([]int, 0, months)
	for i := 0; i < months; i++ {
		buckets = append(buckets, CalculateBucket(first.AddDate(0, -i, 0)))
	}
	return buckets
}
