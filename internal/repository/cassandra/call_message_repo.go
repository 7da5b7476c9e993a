package cassandra

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"

	"learnhub-backend/internal/domain"
)

// CallMessageRepository stores call history messages in Cassandra.
// Partitioned by (conversation_key, bucket) like the chat message table.
type CallMessageRepository struct {
	session *gocql.Session
}

// NewCallMessageRepository creates a new CallMessageRepository
func NewCallMessageRepository(session *gocql.Session) *CallMessageRepository {
	return &CallMessageRepository{session: session}
}

// Save inserts a history message. Messages are never updated.
func (r *CallMessageRepository) Save(ctx context.Context, message *domain.CallHistoryMessage) error {
	query := `
		INSERT INTO call_history_messages (
			conversation_key, bucket, message_id, call_id, sender_id, receiver_id,
			content, message_type, call_duration, call_status, is_read, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	if err := r.session.Query(query, insertValues(message)...).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("failed to save call history message: %w", err)
	}
	return nil
}

// insertValues fills in the id, timestamp and bucket of message when unset
// and returns the bind values of the insert, in column order
func insertValues(message *domain.CallHistoryMessage) []any {
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}
	if message.Bucket == 0 {
		message.Bucket = domain.CalculateBucket(message.CreatedAt)
	}
	if message.MessageID == uuid.Nil {
		message.MessageID = uuid.New()
	}

	return []any{
		message.ConversationKey,
		message.Bucket,
		gocql.UUID(message.MessageID),
		gocql.UUID(message.CallID),
		gocql.UUID(message.SenderID),
		gocql.UUID(message.ReceiverID),
		message.Content,
		string(message.MessageType),
		message.CallDuration,
		string(message.CallStatus),
		message.IsRead,
		message.CreatedAt,
	}
}

// GetByConversation retrieves the newest history messages of a conversation bucket
func (r *CallMessageRepository) GetByConversation(ctx context.Context, conversationKey string, bucket, limit int) ([]*domain.CallHistoryMessage, error) {
	query := `
		SELECT conversation_key, bucket, message_id, call_id, sender_id, receiver_id,
		       content, message_type, call_duration, call_status, is_read, created_at
		FROM call_history_messages
		WHERE conversation_key = ? AND bucket = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	return scanMessages(r.session.Query(query, conversationKey, bucket, limit).WithContext(ctx).Iter())
}

// rowScanner is the part of *gocql.Iter the row mapping needs
type rowScanner interface {
	Scan(dest ...any) bool
	Close() error
}

func scanMessages(iter rowScanner) ([]*domain.CallHistoryMessage, error) {
	var messages []*domain.CallHistoryMessage
	var messageID, callID, senderID, receiverID gocql.UUID
	var messageType, callStatus string
	var message domain.CallHistoryMessage

	for iter.Scan(
		&message.ConversationKey,
		&message.Bucket,
		&messageID,
		&callID,
		&senderID,
		&receiverID,
		&message.Content,
		&messageType,
		&message.CallDuration,
		&callStatus,
		&message.IsRead,
		&message.CreatedAt,
	) {
		m := message
		m.MessageID = uuid.UUID(messageID)
		m.CallID = uuid.UUID(callID)
		m.SenderID = uuid.UUID(senderID)
		m.ReceiverID = uuid.UUID(receiverID)
		m.MessageType = domain.HistoryMessageType(messageType)
		m.CallStatus = domain.HistoryCallStatus(callStatus)
		messages = append(messages, &m)
	}

	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to get call history messages: %w", err)
	}
	return messages, nil
}
