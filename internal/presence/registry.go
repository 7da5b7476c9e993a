// Package presence tracks which users hold a live WebSocket on this instance.
package presence

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"learnhub-backend/internal/domain"
	"learnhub-backend/pkg/constants"
	"learnhub-backend/pkg/logger"
	"learnhub-backend/pkg/metrics"
)

// Conn is a live connection handle that can receive events
type Conn interface {
	// ID is unique per connection, not per user
	ID() string
	UserID() uuid.UUID
	Send(event *domain.Event) error
	Close()
}

// Mirror publishes local presence so other instances can route to this one
type Mirror interface {
	// SetUserOnline claims userID and returns the instance that held it before, if another one did
	SetUserOnline(ctx context.Context, userID uuid.UUID, ttl time.Duration) (string, error)
	SetUserOffline(ctx context.Context, userID uuid.UUID) error
	// RefreshPresence extends the claims still held and returns the users taken over elsewhere
	RefreshPresence(ctx context.Context, userIDs []uuid.UUID, ttl time.Duration) ([]uuid.UUID, error)
}

// TakeoverFunc is told when a registration here took userID over from another instance
type TakeoverFunc func(ctx context.Context, userID uuid.UUID, previousOwner string)

// Registry maps user ids to their current connection.
// The most recent registration for a user wins.
type Registry struct {
	mu    sync.RWMutex
	conns map[uuid.UUID]Conn

	mirror     Mirror
	ttl        time.Duration
	metrics    *metrics.Metrics
	onTakeover TakeoverFunc
}

// NewRegistry creates an empty registry. mirror may be nil for a single instance.
func NewRegistry(mirror Mirror, ttl time.Duration, m *metrics.Metrics) *Registry {
	if ttl <= 0 {
		ttl = constants.PresenceTTL
	}
	return &Registry{
		conns:   make(map[uuid.UUID]Conn),
		mirror:  mirror,
		ttl:     ttl,
		metrics: m,
	}
}

// OnTakeover sets the callback for registrations that take a user over from another instance.
// It must be called before the registry is used.
func (r *Registry) OnTakeover(fn TakeoverFunc) {
	r.onTakeover = fn
}

// Register maps userID to conn, replacing any previous connection, which is returned
func (r *Registry) Register(ctx context.Context, userID uuid.UUID, conn Conn) Conn {
	r.mu.Lock()
	previous := r.conns[userID]
	r.conns[userID] = conn
	online := len(r.conns)
	r.mu.Unlock()

	r.metrics.SetOnlineUsers(online)

	if previous != nil && previous.ID() != conn.ID() {
		logger.Debug("Presence registration replaced",
			zap.String("user_id", userID.String()),
			zap.String("previous_conn", previous.ID()),
			zap.String("conn", conn.ID()))
	}

	if r.mirror != nil {
		mctx, cancel := mirrorContext(ctx)
		defer cancel()
		previousOwner, err := r.mirror.SetUserOnline(mctx, userID, r.ttl)
		if err != nil {
			logger.Warn("Failed to mirror presence online",
				zap.String("user_id", userID.String()),
				zap.Error(err))
		} else if previousOwner != "" && r.onTakeover != nil {
			r.onTakeover(mctx, userID, previousOwner)
		}
	}

	if previous == nil || previous.ID() == conn.ID() {
		return nil
	}
	return previous
}

// Lookup returns the current connection of userID
func (r *Registry) Lookup(userID uuid.UUID) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[userID]
	return conn, ok
}

// Unregister removes userID only while it still maps to conn.
// A connection closing after it was replaced leaves the newer one in place.
func (r *Registry) Unregister(ctx context.Context, userID uuid.UUID, conn Conn) bool {
	r.mu.Lock()
	current, ok := r.conns[userID]
	if !ok || current.ID() != conn.ID() {
		r.mu.Unlock()
		return false
	}
	delete(r.conns, userID)
	online := len(r.conns)
	r.mu.Unlock()

	r.metrics.SetOnlineUsers(online)

	if r.mirror != nil {
		mctx, cancel := mirrorContext(ctx)
		defer cancel()
		if err := r.mirror.SetUserOffline(mctx, userID); err != nil {
			logger.Warn("Failed to mirror presence offline",
				zap.String("user_id", userID.String()),
				zap.Error(err))
		}
	}
	return true
}

// Evict drops the registration of userID without releasing its mirror entry,
// which already belongs to another instance. The evicted connection is returned.
func (r *Registry) Evict(userID uuid.UUID) (Conn, bool) {
	return r.evict(userID, "")
}

// evict removes userID, only while it maps to connID unless connID is empty
func (r *Registry) evict(userID uuid.UUID, connID string) (Conn, bool) {
	r.mu.Lock()
	conn, ok := r.conns[userID]
	if !ok || (connID != "" && conn.ID() != connID) {
		r.mu.Unlock()
		return nil, false
	}
	delete(r.conns, userID)
	online := len(r.conns)
	r.mu.Unlock()

	r.metrics.SetOnlineUsers(online)
	logger.Info("Presence registration evicted",
		zap.String("user_id", userID.String()),
		zap.String("conn_id", conn.ID()))
	return conn, true
}

// Online returns the number of registered users
func (r *Registry) Online() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Users returns the ids of all registered users
func (r *Registry) Users() []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	users := make([]uuid.UUID, 0, len(r.conns))
	for userID := range r.conns {
		users = append(users, userID)
	}
	return users
}

// snapshot returns the connection id registered for every user
func (r *Registry) snapshot() map[uuid.UUID]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make(map[uuid.UUID]string, len(r.conns))
	for userID, conn := range r.conns {
		ids[userID] = conn.ID()
	}
	return ids
}

// Run refreshes the mirror TTL of every registered user until ctx is done.
// Users another instance has claimed meanwhile are evicted and their sockets closed.
func (r *Registry) Run(ctx context.Context) {
	if r.mirror == nil {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(r.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			current := r.snapshot()
			if len(current) == 0 {
				continue
			}
			users := make([]uuid.UUID, 0, len(current))
			for userID := range current {
				users = append(users, userID)
			}
			lost, err := r.mirror.RefreshPresence(ctx, users, r.ttl)
			if err != nil {
				logger.Warn("Failed to refresh presence",
					zap.Int("users", len(users)),
					zap.Error(err))
				continue
			}
			for _, userID := range lost {
				connID, ok := current[userID]
				if !ok {
					continue
				}
				if conn, ok := r.evict(userID, connID); ok {
					conn.Close()
				}
			}
		}
	}
}

// Close drops every registration and marks those users offline
func (r *Registry) Close(ctx context.Context) {
	r.mu.Lock()
	users := make([]uuid.UUID, 0, len(r.conns))
	for userID := range r.conns {
		users = append(users, userID)
	}
	r.conns = make(map[uuid.UUID]Conn)
	r.mu.Unlock()

	r.metrics.SetOnlineUsers(0)

	if r.mirror == nil {
		return
	}
	for _, userID := range users {
		if err := r.mirror.SetUserOffline(ctx, userID); err != nil {
			logger.Warn("Failed to mirror presence offline on shutdown",
				zap.String("user_id", userID.String()),
				zap.Error(err))
		}
	}
}

// mirrorContext survives cancellation of the triggering request or socket
func mirrorContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), constants.ShortTimeout)
}
