// Package ws serves the call WebSocket: presence registration, point-to-point
// call signaling and group call rooms share one socket per user.
package ws

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"learnhub-backend/internal/domain"
	"learnhub-backend/internal/middleware"
	"learnhub-backend/internal/presence"
	"learnhub-backend/internal/room"
	"learnhub-backend/internal/service/call"
	"learnhub-backend/pkg/constants"
	"learnhub-backend/pkg/logger"
	"learnhub-backend/pkg/metrics"
	"learnhub-backend/pkg/response"
)

// CallService is the part of the call service driven by socket events
type CallService interface {
	UpdateStatus(ctx context.Context, input *call.UpdateStatusInput) (*domain.CallResponse, error)
	End(ctx context.Context, input *call.EndCallInput) (*domain.CallResponse, error)
	ToggleScreenShare(ctx context.Context, input *call.ScreenShareInput) (*domain.CallResponse, error)
	ReportQuality(ctx context.Context, callID, userID uuid.UUID, quality domain.ConnectionQuality) error
}

// Relay delivers an event to a user's socket on any instance
type Relay interface {
	Deliver(ctx context.Context, userID uuid.UUID, event *domain.Event) bool
}

// Gateway accepts call sockets and dispatches their events
type Gateway struct {
	registry *presence.Registry
	relay    Relay
	calls    CallService
	rooms    *room.Manager
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader

	// Concurrency limit: maxConnections is the maximum number of concurrent WebSocket connections
	maxConnections int
	semaphore      chan struct{}
}

// NewGateway creates a gateway. An empty allowedOrigins list accepts any origin.
func NewGateway(
	registry *presence.Registry,
	relay Relay,
	calls CallService,
	rooms *room.Manager,
	allowedOrigins []string,
	maxConnections int,
	m *metrics.Metrics,
) *Gateway {
	if maxConnections <= 0 {
		maxConnections = constants.MaxWebSocketConnections
	}

	return &Gateway{
		registry:       registry,
		relay:          relay,
		calls:          calls,
		rooms:          rooms,
		metrics:        m,
		upgrader:       newUpgrader(allowedOrigins),
		maxConnections: maxConnections,
		semaphore:      make(chan struct{}, maxConnections),
	}
}

func newUpgrader(allowedOrigins []string) websocket.Upgrader {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins[origin] = true
		}
	}

	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			// Native clients send no Origin
			if origin == "" || len(origins) == 0 {
				return true
			}
			return origins[origin]
		},
	}
}

// ServeWS upgrades an authenticated request and serves the socket until it closes
func (g *Gateway) ServeWS(c *gin.Context) {
	// Acquire semaphore to limit concurrent connections
	select {
	case g.semaphore <- struct{}{}:
		defer func() {
			<-g.semaphore
		}()
	default:
		logger.Warn("WebSocket connection rejected: max connections reached",
			zap.Int("max_connections", g.maxConnections))
		response.Error(c, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Server at capacity, please try again later")
		return
	}

	uid, ok := middleware.CurrentUser(c)
	if !ok {
		return
	}
	username := c.GetString("username")

	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("WebSocket upgrade failed",
			zap.String("user_id", uid.String()),
			zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request.Context()))
	defer cancel()

	client := newClient(g, conn, uid, username)

	g.metrics.IncWebSocketConnections()
	defer g.metrics.DecWebSocketConnections()

	go client.writePump()

	g.register(ctx, client)
	client.readPump(ctx)

	g.disconnect(ctx, client)
}

// register makes client the user's current socket, closing the one it replaces
func (g *Gateway) register(ctx context.Context, client *Client) {
	previous := g.registry.Register(ctx, client.userID, client)
	if old, ok := previous.(*Client); ok && old != client {
		logger.Info("Closing replaced connection",
			zap.String("user_id", client.userID.String()),
			zap.String("conn_id", old.ID()))
		old.Close()
	}

	event, err := domain.NewEvent(domain.EventRegistered, &domain.Registered{
		UserID:       client.userID,
		ConnectionID: client.ID(),
	})
	if err != nil {
		logger.Error("Failed to build registered event", zap.Error(err))
		return
	}
	_ = client.Send(event)
}

func (g *Gateway) disconnect(ctx context.Context, client *Client) {
	client.Close()

	g.registry.Unregister(ctx, client.userID, client)
	left := g.rooms.LeaveAll(ctx, client.userID, client.ID())

	logger.Debug("WebSocket disconnected",
		zap.String("user_id", client.userID.String()),
		zap.String("conn_id", client.ID()),
		zap.Strings("rooms_left", left))
}
