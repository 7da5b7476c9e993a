// Package call implements the two-party call state machine and its side effects:
// presence-aware invites, history messages and push fallback.
package call

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"learnhub-backend/internal/domain"
	"learnhub-backend/pkg/constants"
	apperrors "learnhub-backend/pkg/errors"
	"learnhub-backend/pkg/logger"
	"learnhub-backend/pkg/metrics"
	"learnhub-backend/pkg/push"
)

// CallRepository persists calls
type CallRepository interface {
	Create(ctx context.Context, call *domain.Call) error
	GetByID(ctx context.Context, callID uuid.UUID) (*domain.Call, error)
	Update(ctx context.Context, call *domain.Call, expectedVersion int) error
	ListByParticipant(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.Call, error)
	ListActiveByParticipant(ctx context.Context, userID uuid.UUID) ([]*domain.Call, error)
	ExpirePending(ctx context.Context, userID uuid.UUID, olderThan time.Duration) (int64, error)
	ExpireAllPending(ctx context.Context, olderThan time.Duration) (int64, error)
}

// UserRepository reads participant display data
type UserRepository interface {
	GetByID(ctx context.Context, userID uuid.UUID) (*domain.User, error)
}

// MessageRepository persists call history messages
type MessageRepository interface {
	Save(ctx context.Context, message *domain.CallHistoryMessage) error
	GetByConversation(ctx context.Context, conversationKey string, bucket, limit int) ([]*domain.CallHistoryMessage, error)
}

// Relay delivers an event to the live socket of a user
type Relay interface {
	Deliver(ctx context.Context, userID uuid.UUID, event *domain.Event) bool
}

// Notifier pushes an incoming call to the devices of an unreachable callee
type Notifier interface {
	SendIncomingCall(ctx context.Context, calleeID uuid.UUID, call *push.IncomingCall) error
}

// Service handles call orchestration business logic
type Service struct {
	callRepo    CallRepository
	userRepo    UserRepository
	messageRepo MessageRepository
	relay       Relay
	notifier    Notifier
	metrics     *metrics.Metrics
	staleAfter  time.Duration
}

// NewService creates a new call service. notifier may be nil.
func NewService(
	callRepo CallRepository,
	userRepo UserRepository,
	messageRepo MessageRepository,
	relay Relay,
	notifier Notifier,
	m *metrics.Metrics,
	staleAfter time.Duration,
) *Service {
	if staleAfter <= 0 {
		staleAfter = constants.CallStaleAfter
	}
	return &Service{
		callRepo:    callRepo,
		userRepo:    userRepo,
		messageRepo: messageRepo,
		relay:       relay,
		notifier:    notifier,
		metrics:     m,
		staleAfter:  staleAfter,
	}
}

// InitiateCallInput contains call initiation data
type InitiateCallInput struct {
	CallerID uuid.UUID
	CalleeID uuid.UUID
	CallType domain.CallType
}

// Initiate creates a call and invites the callee.
// A callee already in a call gets a busy call record and no invite.
func (s *Service) Initiate(ctx context.Context, input *InitiateCallInput) (*domain.CallResponse, error) {
	if input.CallerID == uuid.Nil || input.CalleeID == uuid.Nil {
		return nil, apperrors.ValidationError("caller and callee are required")
	}
	if input.CallerID == input.CalleeID {
		return nil, apperrors.ValidationError("cannot call yourself")
	}
	if !input.CallType.Valid() {
		return nil, apperrors.ValidationError("call_type must be voice or video")
	}

	// Unanswered calls past the ring window must not block a new call
	for _, userID := range []uuid.UUID{input.CallerID, input.CalleeID} {
		if _, err := s.callRepo.ExpirePending(ctx, userID, s.staleAfter); err != nil {
			return nil, apperrors.DatabaseError(err)
		}
	}

	call := &domain.Call{
		CallID:            uuid.New(),
		CallerID:          input.CallerID,
		CalleeID:          input.CalleeID,
		CallType:          input.CallType,
		Status:            domain.CallStatusInitiated,
		ConnectionQuality: domain.QualityGood,
		Version:           1,
	}

	if err := s.callRepo.Create(ctx, call); err != nil {
		switch {
		case errors.Is(err, domain.ErrCallerBusy):
			return nil, apperrors.ConflictError("already in a call")
		case errors.Is(err, domain.ErrVersionConflict):
			return nil, apperrors.ConflictError("call was modified concurrently")
		default:
			return nil, apperrors.DatabaseError(err)
		}
	}

	s.metrics.RecordCall(string(call.CallType), string(call.Status))

	resp := s.toResponse(ctx, call)

	logger.FromContext(ctx).Info("Call initiated",
		zap.String("call_id", call.CallID.String()),
		zap.String("caller_id", call.CallerID.String()),
		zap.String("callee_id", call.CalleeID.String()),
		zap.String("status", string(call.Status)))

	if call.Status == domain.CallStatusBusy {
		return resp, nil
	}

	s.invite(ctx, resp)
	return resp, nil
}

func (s *Service) invite(ctx context.Context, resp *domain.CallResponse) {
	event, err := domain.NewEvent(domain.EventCallInitiated, &domain.CallInvite{
		CallID:      resp.CallID,
		CallType:    resp.CallType,
		ChannelName: resp.ChannelName,
		Caller:      resp.Caller,
	})
	if err != nil {
		logger.Error("Failed to build call invite", zap.Error(err))
		return
	}
	event.From = resp.CallerID
	event.CallID = resp.CallID
	event.Channel = resp.ChannelName

	if s.relay.Deliver(ctx, resp.CalleeID, event) || s.notifier == nil {
		return
	}

	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.ShortTimeout)
	defer cancel()

	err = s.notifier.SendIncomingCall(pushCtx, resp.CalleeID, &push.IncomingCall{
		CallID:      resp.CallID,
		CallerID:    resp.CallerID,
		CallerName:  resp.Caller.Name(),
		CallType:    string(resp.CallType),
		ChannelName: resp.ChannelName,
	})
	if err != nil {
		logger.Warn("Failed to push incoming call",
			zap.String("call_id", resp.CallID.String()),
			zap.String("callee_id", resp.CalleeID.String()),
			zap.Error(err))
	}
}

// UpdateStatusInput contains a status change request
type UpdateStatusInput struct {
	CallID uuid.UUID
	UserID uuid.UUID
	Status domain.CallStatus
	// Notify relays the change to the counterpart. Socket clients relay their own event.
	Notify bool
}

// UpdateStatus moves a call through the state machine
func (s *Service) UpdateStatus(ctx context.Context, input *UpdateStatusInput) (*domain.CallResponse, error) {
	if !input.Status.Valid() {
		return nil, apperrors.ValidationError(fmt.Sprintf("invalid call status: %q", input.Status))
	}

	call, err := s.participantCall(ctx, input.CallID, input.UserID)
	if err != nil {
		return nil, err
	}

	if call.Status == input.Status {
		return s.toResponse(ctx, call), nil
	}
	if !call.Status.CanTransitionTo(input.Status) {
		return nil, apperrors.ConflictError(fmt.Sprintf("cannot change call status from %s to %s", call.Status, input.Status))
	}

	expected := call.Version
	now := time.Now().UTC()
	call.Status = input.Status
	switch input.Status {
	case domain.CallStatusAccepted:
		if call.StartedAt == nil {
			call.StartedAt = &now
		}
	case domain.CallStatusEnded, domain.CallStatusRejected, domain.CallStatusMissed:
		call.EndedAt = &now
	}

	if err := s.save(ctx, call, expected); err != nil {
		return nil, err
	}

	s.metrics.RecordCall(string(call.CallType), string(call.Status))

	logger.Info("Call status updated",
		zap.String("call_id", call.CallID.String()),
		zap.String("user_id", input.UserID.String()),
		zap.String("status", string(call.Status)))

	resp := s.toResponse(ctx, call)

	if input.Notify {
		s.notifyCounterpart(ctx, resp, input.UserID, statusEvent(call.Status))
	}
	if call.Status == domain.CallStatusRejected {
		s.recordHistory(ctx, call, domain.HistoryRejected, rejectedLabel, 0)
	}

	return resp, nil
}

// EndCallInput contains a hang-up request
type EndCallInput struct {
	CallID   uuid.UUID
	UserID   uuid.UUID
	Duration int // seconds, as measured by the client
	Notify   bool
}

// End hangs up a call and writes its history message.
// Ending an already ended call returns it unchanged.
func (s *Service) End(ctx context.Context, input *EndCallInput) (*domain.CallResponse, error) {
	if input.Duration < 0 {
		return nil, apperrors.ValidationError("duration must not be negative")
	}
	if time.Duration(input.Duration)*time.Second > constants.MaxCallDuration {
		return nil, apperrors.ValidationError("duration is too long")
	}

	call, err := s.participantCall(ctx, input.CallID, input.UserID)
	if err != nil {
		return nil, err
	}

	if call.Status == domain.CallStatusEnded {
		return s.toResponse(ctx, call), nil
	}

	previous := call.Status
	expected := call.Version
	now := time.Now().UTC()
	call.Status = domain.CallStatusEnded
	call.EndedAt = &now
	call.Duration = input.Duration

	if err := s.save(ctx, call, expected); err != nil {
		// The other participant ended it first
		if apperrors.HasCode(err, apperrors.ErrCodeConflict) {
			if current, getErr := s.callRepo.GetByID(ctx, input.CallID); getErr == nil && current.Status == domain.CallStatusEnded {
				return s.toResponse(ctx, current), nil
			}
		}
		return nil, err
	}

	s.metrics.RecordCall(string(call.CallType), string(call.Status))
	if call.Duration > 0 {
		s.metrics.RecordCallDuration(string(call.CallType), time.Duration(call.Duration)*time.Second)
	}

	logger.Info("Call ended",
		zap.String("call_id", call.CallID.String()),
		zap.String("user_id", input.UserID.String()),
		zap.String("previous_status", string(previous)),
		zap.Int("duration", call.Duration))

	resp := s.toResponse(ctx, call)

	if input.Notify {
		s.notifyCounterpart(ctx, resp, input.UserID, domain.EventCallEnded)
	}

	status, label := historyOutcome(previous, call.Duration)
	s.recordHistory(ctx, call, status, label, call.Duration)

	return resp, nil
}

// ScreenShareInput contains a screen share toggle
type ScreenShareInput struct {
	CallID    uuid.UUID
	UserID    uuid.UUID
	IsSharing bool
	Notify    bool
}

// ToggleScreenShare records whether a participant is sharing their screen
func (s *Service) ToggleScreenShare(ctx context.Context, input *ScreenShareInput) (*domain.CallResponse, error) {
	call, err := s.participantCall(ctx, input.CallID, input.UserID)
	if err != nil {
		return nil, err
	}

	if call.IsScreenSharing == input.IsSharing {
		return s.toResponse(ctx, call), nil
	}
	if call.Status.IsTerminal() {
		return nil, apperrors.ConflictError(fmt.Sprintf("call is %s", call.Status))
	}

	expected := call.Version
	call.IsScreenSharing = input.IsSharing
	if input.IsSharing {
		now := time.Now().UTC()
		call.ScreenShareStartedAt = &now
	} else {
		call.ScreenShareStartedAt = nil
	}

	if err := s.save(ctx, call, expected); err != nil {
		return nil, err
	}

	resp := s.toResponse(ctx, call)

	if input.Notify {
		eventType := domain.EventScreenShareStopped
		if input.IsSharing {
			eventType = domain.EventScreenShareStarted
		}
		s.notifyCounterpart(ctx, resp, input.UserID, eventType)
	}

	return resp, nil
}

// ReportQuality stores the latest connection quality reported by a participant.
// It is best-effort: a concurrent write simply wins.
func (s *Service) ReportQuality(ctx context.Context, callID, userID uuid.UUID, quality domain.ConnectionQuality) error {
	if !quality.Valid() {
		return apperrors.ValidationError(fmt.Sprintf("invalid connection quality: %q", quality))
	}

	call, err := s.participantCall(ctx, callID, userID)
	if err != nil {
		return err
	}
	if call.ConnectionQuality == quality || call.Status.IsTerminal() {
		return nil
	}

	expected := call.Version
	call.ConnectionQuality = quality
	if err := s.callRepo.Update(ctx, call, expected); err != nil && !errors.Is(err, domain.ErrVersionConflict) {
		return apperrors.DatabaseError(err)
	}
	return nil
}

// GetCall returns a call to one of its participants
func (s *Service) GetCall(ctx context.Context, callID, userID uuid.UUID) (*domain.CallResponse, error) {
	call, err := s.participantCall(ctx, callID, userID)
	if err != nil {
		return nil, err
	}
	return s.toResponse(ctx, call), nil
}

// GetHistory returns the calls of a user, newest first
func (s *Service) GetHistory(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.CallResponse, error) {
	calls, err := s.callRepo.ListByParticipant(ctx, userID, normalizeLimit(limit))
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	return s.toResponses(ctx, calls), nil
}

// GetActiveCalls returns the initiated, ringing and accepted calls of a user, newest first
func (s *Service) GetActiveCalls(ctx context.Context, userID uuid.UUID) ([]*domain.CallResponse, error) {
	calls, err := s.callRepo.ListActiveByParticipant(ctx, userID)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	return s.toResponses(ctx, calls), nil
}

// Cleanup marks every unanswered call of a user as missed and returns how many changed
func (s *Service) Cleanup(ctx context.Context, userID uuid.UUID) (int64, error) {
	count, err := s.callRepo.ExpirePending(ctx, userID, 0)
	if err != nil {
		return 0, apperrors.DatabaseError(err)
	}

	logger.Info("Pending calls cleaned up",
		zap.String("user_id", userID.String()),
		zap.Int64("count", count))
	return count, nil
}

// SweepStale marks every unanswered call older than the ring window as missed
func (s *Service) SweepStale(ctx context.Context) (int64, error) {
	count, err := s.callRepo.ExpireAllPending(ctx, s.staleAfter)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep stale calls: %w", err)
	}
	s.metrics.RecordCallsSwept(int(count))
	return count, nil
}

// GetHistoryMessages returns the newest call history messages between userID and peerID,
// walking back through monthly buckets until limit is reached
func (s *Service) GetHistoryMessages(ctx context.Context, userID, peerID uuid.UUID, limit int) ([]*domain.CallHistoryMessage, error) {
	if userID == peerID {
		return nil, apperrors.ValidationError("peer must be another user")
	}

	limit = normalizeLimit(limit)
	key := domain.ChannelName(userID, peerID)
	messages := make([]*domain.CallHistoryMessage, 0, limit)

	for _, bucket := range domain.RecentBuckets(time.Now(), constants.HistoryBucketLookback) {
		page, err := s.messageRepo.GetByConversation(ctx, key, bucket, limit-len(messages))
		if err != nil {
			return nil, apperrors.DatabaseError(err)
		}
		messages = append(messages, page...)
		if len(messages) >= limit {
			break
		}
	}
	return messages, nil
}

func (s *Service) participantCall(ctx context.Context, callID, userID uuid.UUID) (*domain.Call, error) {
	call, err := s.callRepo.GetByID(ctx, callID)
	if err != nil {
		if errors.Is(err, domain.ErrCallNotFound) {
			return nil, apperrors.CallNotFoundError()
		}
		return nil, apperrors.DatabaseError(err)
	}
	if !call.IsParticipant(userID) {
		return nil, apperrors.ForbiddenError("not a participant in this call")
	}
	return call, nil
}

func (s *Service) save(ctx context.Context, call *domain.Call, expectedVersion int) error {
	if err := s.callRepo.Update(ctx, call, expectedVersion); err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			return apperrors.ConflictError("call was modified concurrently")
		}
		return apperrors.DatabaseError(err)
	}
	return nil
}

func (s *Service) notifyCounterpart(ctx context.Context, resp *domain.CallResponse, actorID uuid.UUID, eventType domain.EventType) {
	if eventType == "" {
		return
	}
	event, err := domain.NewEvent(eventType, resp)
	if err != nil {
		logger.Error("Failed to build call event", zap.Error(err))
		return
	}
	event.From = actorID
	event.CallID = resp.CallID
	event.Channel = resp.ChannelName

	s.relay.Deliver(ctx, resp.Counterpart(actorID), event)
}

func statusEvent(status domain.CallStatus) domain.EventType {
	switch status {
	case domain.CallStatusAccepted:
		return domain.EventCallAccepted
	case domain.CallStatusRejected, domain.CallStatusBusy:
		return domain.EventCallRejected
	case domain.CallStatusEnded, domain.CallStatusMissed:
		return domain.EventCallEnded
	}
	return ""
}

func (s *Service) toResponse(ctx context.Context, call *domain.Call) *domain.CallResponse {
	cache := make(map[uuid.UUID]*domain.UserSummary, 2)
	return s.withUsers(ctx, call, cache)
}

func (s *Service) toResponses(ctx context.Context, calls []*domain.Call) []*domain.CallResponse {
	cache := make(map[uuid.UUID]*domain.UserSummary)
	responses := make([]*domain.CallResponse, 0, len(calls))
	for _, call := range calls {
		responses = append(responses, s.withUsers(ctx, call, cache))
	}
	return responses
}

// withUsers attaches participant display data. Missing users are left empty.
func (s *Service) withUsers(ctx context.Context, call *domain.Call, cache map[uuid.UUID]*domain.UserSummary) *domain.CallResponse {
	resp := call.ToResponse()
	resp.Caller = s.summary(ctx, call.CallerID, cache)
	resp.Callee = s.summary(ctx, call.CalleeID, cache)
	return resp
}

func (s *Service) summary(ctx context.Context, userID uuid.UUID, cache map[uuid.UUID]*domain.UserSummary) *domain.UserSummary {
	if summary, ok := cache[userID]; ok {
		return summary
	}

	var summary *domain.UserSummary
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		logger.Debug("Failed to load participant",
			zap.String("user_id", userID.String()),
			zap.Error(err))
	} else {
		summary = user.ToSummary()
	}

	cache[userID] = summary
	return summary
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return constants.DefaultPageSize
	}
	if limit > constants.MaxPageSize {
		return constants.MaxPageSize
	}
	return limit
}
