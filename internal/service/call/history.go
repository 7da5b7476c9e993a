package call

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"learnhub-backend/internal/domain"
	"learnhub-backend/pkg/logger"
)

const (
	rejectedLabel = "Declined"
	missedLabel   = "Missed call"
	noAnswerLabel = "No answer"
)

// historyOutcome derives the history status and label of an ended call
// from the status it had before ending and the reported duration.
func historyOutcome(previous domain.CallStatus, duration int) (domain.HistoryCallStatus, string) {
	if duration > 0 {
		return domain.HistoryCompleted, formatCallDuration(duration)
	}
	switch previous {
	case domain.CallStatusRejected:
		return domain.HistoryRejected, rejectedLabel
	case domain.CallStatusMissed:
		return domain.HistoryMissed, missedLabel
	default:
		return domain.HistoryNoAnswer, noAnswerLabel
	}
}

// formatCallDuration renders whole minutes from 60s up, seconds below
func formatCallDuration(seconds int) string {
	if seconds >= 60 {
		minutes := seconds / 60
		if minutes == 1 {
			return "1 min"
		}
		return fmt.Sprintf("%d mins", minutes)
	}
	return fmt.Sprintf("%d secs", seconds)
}

// recordHistory persists one history message for call and relays it to both participants.
// Failures are logged: the status change it describes is already committed.
func (s *Service) recordHistory(ctx context.Context, call *domain.Call, status domain.HistoryCallStatus, label string, duration int) {
	message := &domain.CallHistoryMessage{
		MessageID:       uuid.New(),
		ConversationKey: call.ChannelName(),
		CallID:          call.CallID,
		SenderID:        call.CallerID,
		ReceiverID:      call.CalleeID,
		Content:         label,
		MessageType:     domain.HistoryMessageTypeFor(call.CallType),
		CallDuration:    duration,
		CallStatus:      status,
		IsRead:          false,
		CreatedAt:       time.Now().UTC(),
	}
	message.Bucket = domain.CalculateBucket(message.CreatedAt)

	if err := s.messageRepo.Save(ctx, message); err != nil {
		logger.Error("Failed to save call history message",
			zap.String("call_id", call.CallID.String()),
			zap.String("call_status", string(status)),
			zap.Error(err))
	} else {
		s.metrics.RecordHistoryMessage(string(status))
	}

	for _, userID := range []uuid.UUID{call.CallerID, call.CalleeID} {
		event, err := domain.NewEvent(domain.EventCallHistoryMessage, message)
		if err != nil {
			logger.Error("Failed to build history event", zap.Error(err))
			return
		}
		event.From = call.CallerID
		event.CallID = call.CallID
		event.Channel = message.ConversationKey
		s.relay.Deliver(ctx, userID, event)
	}
}
