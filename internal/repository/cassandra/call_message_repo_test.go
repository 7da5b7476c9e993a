package cassandra

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"learnhub-backend/internal/domain"
)

// fakeIter replays rows in column order the way gocql.Iter fills scan targets
type fakeIter struct {
	rows [][]any
	next int
	err  error
}

func (it *fakeIter) Scan(dest ...any) bool {
	if it.next >= len(it.rows) {
		return false
	}
	row := it.rows[it.next]
	it.next++
	for i, value := range row {
		reflect.ValueOf(dest[i]).Elem().Set(reflect.ValueOf(value))
	}
	return true
}

func (it *fakeIter) Close() error {
	return it.err
}

func historyRow(message *domain.CallHistoryMessage) []any {
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

func newHistoryMessage(content string, status domain.HistoryCallStatus) *domain.CallHistoryMessage {
	createdAt := time.Date(2026, time.March, 3, 10, 0, 0, 0, time.UTC)
	return &domain.CallHistoryMessage{
		ConversationKey: "a_b",
		Bucket:          domain.CalculateBucket(createdAt),
		MessageID:       uuid.New(),
		CallID:          uuid.New(),
		SenderID:        uuid.New(),
		ReceiverID:      uuid.New(),
		Content:         content,
		MessageType:     domain.HistoryMessageVideoCall,
		CallDuration:    125,
		CallStatus:      status,
		CreatedAt:       createdAt,
	}
}

func TestScanMessages_MapsEveryRow(t *testing.T) {
	first := newHistoryMessage("2 mins", domain.HistoryCompleted)
	second := newHistoryMessage("Missed call", domain.HistoryMissed)
	second.CallDuration = 0
	second.IsRead = true

	messages, err := scanMessages(&fakeIter{rows: [][]any{historyRow(first), historyRow(second)}})

	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, first, messages[0])
	assert.Equal(t, second, messages[1])
	assert.NotSame(t, messages[0], messages[1])
}

func TestScanMessages_NoRows(t *testing.T) {
	messages, err := scanMessages(&fakeIter{})

	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestScanMessages_CloseError(t *testing.T) {
	row := historyRow(newHistoryMessage("2 mins", domain.HistoryCompleted))

	messages, err := scanMessages(&fakeIter{rows: [][]any{row}, err: errors.New("read timeout")})

	assert.Nil(t, messages)
	assert.ErrorContains(t, err, "failed to get call history messages")
}

func TestInsertValues_ColumnOrder(t *testing.T) {
	message := newHistoryMessage("2 mins", domain.HistoryCompleted)

	values := insertValues(message)

	assert.Equal(t, historyRow(message), values)
}

func TestInsertValues_FillsDefaults(t *testing.T) {
	message := &domain.CallHistoryMessage{ConversationKey: "a_b", Content: "No answer"}

	values := insertValues(message)

	assert.NotEqual(t, uuid.Nil, message.MessageID)
	assert.False(t, message.CreatedAt.IsZero())
	assert.Equal(t, domain.CalculateBucket(message.CreatedAt), message.Bucket)
	assert.Equal(t, message.Bucket, values[1])
	assert.Equal(t, gocql.UUID(message.MessageID), values[2])
}
