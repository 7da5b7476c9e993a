package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"learnhub-backend/internal/domain"
	"learnhub-backend/pkg/constants"
	"learnhub-backend/pkg/logger"
)

const (
	sendBufferSize = 256
	pongWait       = constants.WebSocketPingInterval
	pingPeriod     = (pongWait * 9) / 10
)

var (
	// ErrConnectionClosed is returned when sending to a closed socket
	ErrConnectionClosed = errors.New("connection closed")
	// ErrSendBufferFull is returned when a slow socket cannot keep up
	ErrSendBufferFull = errors.New("send buffer full")
)

// Client is one authenticated call socket
type Client struct {
	gateway  *Gateway
	conn     *websocket.Conn
	id       string
	userID   uuid.UUID
	username string

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(g *Gateway, conn *websocket.Conn, userID uuid.UUID, username string) *Client {
	return &Client{
		gateway:  g,
		conn:     conn,
		id:       uuid.NewString(),
		userID:   userID,
		username: username,
		send:     make(chan []byte, sendBufferSize),
		done:     make(chan struct{}),
	}
}

// ID returns the connection id
func (c *Client) ID() string { return c.id }

// UserID returns the authenticated user of the socket
func (c *Client) UserID() uuid.UUID { return c.userID }

// Send queues event for writing. It never blocks; a full buffer closes the socket.
func (c *Client) Send(event *domain.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}

	select {
	case c.send <- data:
		c.gateway.metrics.RecordWebSocketMessage(string(event.Type), "outbound")
		return nil
	case <-c.done:
		return ErrConnectionClosed
	default:
		logger.Warn("WebSocket send buffer full, closing connection",
			zap.String("user_id", c.userID.String()),
			zap.String("conn_id", c.id))
		c.gateway.metrics.RecordWebSocketError("send_buffer_full")
		c.Close()
		return ErrSendBufferFull
	}
}

// Close stops the write pump, which closes the socket. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// readPump reads events until the socket fails or is closed
func (c *Client) readPump(ctx context.Context) {
	c.conn.SetReadLimit(constants.WebSocketMaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("WebSocket connection closed",
					zap.String("user_id", c.userID.String()),
					zap.String("conn_id", c.id),
					zap.Error(err))
			}
			return
		}

		var event domain.Event
		if err := json.Unmarshal(message, &event); err != nil {
			logger.Warn("Invalid message format from WebSocket",
				zap.String("user_id", c.userID.String()),
				zap.Error(err))
			c.gateway.metrics.RecordWebSocketError("invalid_message")
			c.sendError("", "VALIDATION_ERROR", "invalid message format")
			continue
		}

		c.gateway.metrics.RecordWebSocketMessage(string(event.Type), "inbound")
		c.gateway.dispatch(ctx, c, &event)
	}
}

// writePump writes queued events and keeps the socket alive with pings
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.Close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *Client) sendError(request domain.EventType, code, message string) {
	event, err := domain.NewEvent(domain.EventError, &domain.ErrorPayload{
		Code:    code,
		Message: message,
		Request: request,
	})
	if err != nil {
		return
	}
	_ = c.Send(event)
}
