// Package signaling routes point-to-point call events to a user's live socket,
// locally or through Redis pub/sub when the socket lives on another instance.
package signaling

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"learnhub-backend/internal/domain"
	"learnhub-backend/internal/presence"
	"learnhub-backend/pkg/constants"
	apperrors "learnhub-backend/pkg/errors"
	"learnhub-backend/pkg/logger"
	"learnhub-backend/pkg/metrics"
)

// Delivery results reported to metrics
const (
	ResultLocal       = "local"
	ResultRemote      = "remote"
	ResultUnavailable = "unavailable"
)

// Locator finds the socket of a user on this instance
type Locator interface {
	Lookup(userID uuid.UUID) (presence.Conn, bool)
	Evict(userID uuid.UUID) (presence.Conn, bool)
}

// Directory names the instance holding a user's socket, "" when the user is offline
type Directory interface {
	Owner(ctx context.Context, userID uuid.UUID) (string, error)
}

// Envelope carries an event to the instance that owns the recipient.
// An evict envelope carries no event: the target instance drops its socket for To.
type Envelope struct {
	Origin   string        `json:"origin"`
	Instance string        `json:"instance"`
	To       uuid.UUID     `json:"to"`
	Evict    bool          `json:"evict,omitempty"`
	Event    *domain.Event `json:"event,omitempty"`
}

// Bus moves envelopes between instances
type Bus interface {
	Publish(ctx context.Context, envelope *Envelope) error
	Subscribe(ctx context.Context) (<-chan *Envelope, error)
}

// Relay delivers events to users by id
type Relay struct {
	locator    Locator
	directory  Directory
	bus        Bus
	instanceID string
	metrics    *metrics.Metrics
}

// NewRelay creates a relay. directory and bus may be nil for a single instance.
func NewRelay(locator Locator, directory Directory, bus Bus, instanceID string, m *metrics.Metrics) *Relay {
	return &Relay{
		locator:    locator,
		directory:  directory,
		bus:        bus,
		instanceID: instanceID,
		metrics:    m,
	}
}

// Deliver sends event to userID and reports whether it was handed off.
// An unreachable user is logged, never returned as an error.
func (r *Relay) Deliver(ctx context.Context, userID uuid.UUID, event *domain.Event) bool {
	if event.To == uuid.Nil {
		event.To = userID
	}

	if conn, ok := r.locator.Lookup(userID); ok {
		err := conn.Send(event)
		if err == nil {
			r.metrics.RecordRelayDelivery(string(event.Type), ResultLocal)
			return true
		}
		logger.Debug("Local delivery failed",
			zap.String("user_id", userID.String()),
			zap.String("event", string(event.Type)),
			zap.Error(err))
	} else if r.deliverRemote(ctx, userID, event) {
		r.metrics.RecordRelayDelivery(string(event.Type), ResultRemote)
		return true
	}

	r.metrics.RecordRelayDelivery(string(event.Type), ResultUnavailable)
	logger.Info("Relay target unavailable",
		zap.String("event", string(event.Type)),
		zap.Error(apperrors.RelayUnavailableError(userID.String())))
	return false
}

func (r *Relay) deliverRemote(ctx context.Context, userID uuid.UUID, event *domain.Event) bool {
	if r.bus == nil || r.directory == nil {
		return false
	}

	lookupCtx, cancel := context.WithTimeout(ctx, constants.ShortTimeout)
	defer cancel()

	owner, err := r.directory.Owner(lookupCtx, userID)
	if err != nil {
		logger.Debug("Presence lookup failed",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return false
	}
	// Owned here but not registered: the socket is already gone
	if owner == "" || owner == r.instanceID {
		return false
	}

	envelope := &Envelope{
		Origin:   r.instanceID,
		Instance: owner,
		To:       userID,
		Event:    event,
	}
	if err := r.bus.Publish(lookupCtx, envelope); err != nil {
		logger.Warn("Failed to publish relay envelope",
			zap.String("user_id", userID.String()),
			zap.String("event", string(event.Type)),
			zap.Error(err))
		return false
	}
	return true
}

// AnnounceTakeover tells previousOwner that userID registered here, so it closes its socket.
// It matches presence.TakeoverFunc.
func (r *Relay) AnnounceTakeover(ctx context.Context, userID uuid.UUID, previousOwner string) {
	if r.bus == nil || previousOwner == r.instanceID {
		return
	}

	envelope := &Envelope{
		Origin:   r.instanceID,
		Instance: previousOwner,
		To:       userID,
		Evict:    true,
	}
	if err := r.bus.Publish(ctx, envelope); err != nil {
		logger.Warn("Failed to announce presence takeover",
			zap.String("user_id", userID.String()),
			zap.String("previous_owner", previousOwner),
			zap.Error(err))
	}
}

// Run delivers envelopes addressed to this instance until ctx is done
func (r *Relay) Run(ctx context.Context) error {
	if r.bus == nil {
		<-ctx.Done()
		return nil
	}

	envelopes, err := r.bus.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to relay bus: %w", err)
	}

	logger.Info("Signaling relay subscribed", zap.String("instance_id", r.instanceID))

	for {
		select {
		case <-ctx.Done():
			return nil
		case envelope, ok := <-envelopes:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("relay bus subscription closed")
			}
			r.handleEnvelope(ctx, envelope)
		}
	}
}

func (r *Relay) handleEnvelope(ctx context.Context, envelope *Envelope) {
	if envelope.Instance != r.instanceID || envelope.Origin == r.instanceID {
		return
	}
	if envelope.Evict {
		r.evict(ctx, envelope.To)
		return
	}
	if envelope.Event == nil {
		return
	}

	conn, ok := r.locator.Lookup(envelope.To)
	if !ok {
		return
	}
	if err := conn.Send(envelope.Event); err != nil {
		logger.Debug("Failed to deliver remote envelope",
			zap.String("user_id", envelope.To.String()),
			zap.String("event", string(envelope.Event.Type)),
			zap.Error(err))
		return
	}
	r.metrics.RecordRelayDelivery(string(envelope.Event.Type), ResultLocal)
}

// evict closes the local socket of a user another instance took over,
// unless the user registered here again since
func (r *Relay) evict(ctx context.Context, userID uuid.UUID) {
	if r.directory != nil {
		lookupCtx, cancel := context.WithTimeout(ctx, constants.ShortTimeout)
		owner, err := r.directory.Owner(lookupCtx, userID)
		cancel()
		if err == nil && owner == r.instanceID {
			return
		}
	}

	conn, ok := r.locator.Evict(userID)
	if !ok {
		return
	}
	logger.Info("Closing connection taken over by another instance",
		zap.String("user_id", userID.String()),
		zap.String("conn_id", conn.ID()))
	conn.Close()
}
