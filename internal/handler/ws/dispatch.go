package ws

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"learnhub-backend/internal/domain"
	"learnhub-backend/internal/service/call"
	"learnhub-backend/pkg/constants"
	apperrors "learnhub-backend/pkg/errors"
	"learnhub-backend/pkg/logger"
	"learnhub-backend/pkg/sanitize"
)

// dispatch handles one inbound event. Failures are reported to the sender as an error event.
func (g *Gateway) dispatch(ctx context.Context, c *Client, event *domain.Event) {
	// The sender is always the authenticated user
	event.From = c.userID
	event.Timestamp = time.Now().UTC()

	ctx, cancel := context.WithTimeout(ctx, constants.DefaultTimeout)
	defer cancel()

	var err error
	switch {
	case event.Type == domain.EventRegister:
		g.register(ctx, c)
	case event.Type.IsRelay():
		err = g.relayEvent(ctx, c, event)
	default:
		err = g.roomEvent(ctx, c, event)
	}

	if err != nil {
		appErr := apperrors.GetAppError(err)
		if appErr.StatusCode >= 500 {
			logger.FromContext(ctx).Error("WebSocket event failed",
				zap.String("conn_id", c.id),
				zap.String("type", string(event.Type)),
				zap.Error(err))
			c.sendError(event.Type, string(appErr.Code), "Internal server error")
			return
		}
		c.sendError(event.Type, string(appErr.Code), appErr.Message)
	}
}

// relayEvent applies a call event to the call record, then forwards the client's event
// to the counterpart. ICE candidates and invites are forwarded untouched.
func (g *Gateway) relayEvent(ctx context.Context, c *Client, event *domain.Event) error {
	var (
		resp *domain.CallResponse
		err  error
	)

	switch event.Type {
	case domain.EventCallAccepted, domain.EventCallRejected:
		status := domain.CallStatusAccepted
		if event.Type == domain.EventCallRejected {
			status = domain.CallStatusRejected
		}
		if event.CallID == uuid.Nil {
			return apperrors.MissingFieldError("call_id")
		}
		resp, err = g.calls.UpdateStatus(ctx, &call.UpdateStatusInput{
			CallID: event.CallID,
			UserID: c.userID,
			Status: status,
		})

	case domain.EventCallEnded:
		var req domain.CallEndRequest
		if err := event.Decode(&req); err != nil {
			return apperrors.ValidationError(err.Error())
		}
		if event.CallID == uuid.Nil {
			return apperrors.MissingFieldError("call_id")
		}
		resp, err = g.calls.End(ctx, &call.EndCallInput{
			CallID:   event.CallID,
			UserID:   c.userID,
			Duration: req.Duration,
		})

	case domain.EventScreenShareStarted, domain.EventScreenShareStopped:
		if event.CallID == uuid.Nil {
			return apperrors.MissingFieldError("call_id")
		}
		resp, err = g.calls.ToggleScreenShare(ctx, &call.ScreenShareInput{
			CallID:    event.CallID,
			UserID:    c.userID,
			IsSharing: event.Type == domain.EventScreenShareStarted,
		})

	case domain.EventQualityUpdate:
		var report domain.QualityReport
		if err := event.Decode(&report); err != nil {
			return apperrors.ValidationError(err.Error())
		}
		if event.CallID != uuid.Nil {
			if err := g.calls.ReportQuality(ctx, event.CallID, c.userID, report.Quality); err != nil {
				logger.Debug("Quality report not stored",
					zap.String("call_id", event.CallID.String()),
					zap.Error(err))
			}
		}
	}
	if err != nil {
		return err
	}

	to := event.To
	if resp != nil {
		to = resp.Counterpart(c.userID)
		event.Channel = resp.ChannelName
	}
	if to == uuid.Nil {
		return apperrors.MissingFieldError("to")
	}
	if to == c.userID {
		return apperrors.ValidationError("cannot signal yourself")
	}

	event.To = to
	g.relay.Deliver(ctx, to, event)
	return nil
}

// roomEvent applies a group call event. The channel names the room.
func (g *Gateway) roomEvent(ctx context.Context, c *Client, event *domain.Event) error {
	switch event.Type {
	case domain.EventJoinGroupCall:
		var req domain.JoinGroupCall
		if err := event.Decode(&req); err != nil {
			return apperrors.ValidationError(err.Error())
		}
		req.DisplayName = sanitize.DisplayName(req.DisplayName)
		if req.DisplayName == "" {
			req.DisplayName = c.username
		}
		_, err := g.rooms.Join(ctx, event.Channel, domain.Participant{
			UserID:      c.userID,
			DisplayName: req.DisplayName,
			ProfileRef:  req.ProfileRef,
		}, c)
		return err

	case domain.EventLeaveGroupCall:
		g.rooms.Leave(ctx, event.Channel, c.userID)
		return nil

	case domain.EventPublishIDMapping:
		var req domain.PublishIDMapping
		if err := event.Decode(&req); err != nil {
			return apperrors.ValidationError(err.Error())
		}
		return g.rooms.PublishIDMapping(ctx, event.Channel, c.userID, req.PublishID)

	case domain.EventSendGroupMessage:
		var req domain.GroupMessage
		if err := event.Decode(&req); err != nil {
			return apperrors.ValidationError(err.Error())
		}
		_, err := g.rooms.Chat(ctx, event.Channel, req.Message, c.userID, "")
		return err

	case domain.EventUpdateUserStatus:
		var req domain.UserStatusUpdate
		if err := event.Decode(&req); err != nil {
			return apperrors.ValidationError(err.Error())
		}
		return g.rooms.StatusUpdate(ctx, event.Channel, c.userID, req.Status)

	case domain.EventScreenShareStatus:
		var req domain.ScreenShareStatus
		if err := event.Decode(&req); err != nil {
			return apperrors.ValidationError(err.Error())
		}
		return g.rooms.ScreenShareStatus(ctx, event.Channel, c.userID, req.IsSharing)
	}

	return apperrors.ValidationError("unsupported event type: " + string(event.Type))
}
