package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the call service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP Request Metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge
	httpRequestTimeouts  *prometheus.CounterVec

	// WebSocket Metrics
	websocketConnections   prometheus.Gauge
	websocketMessagesTotal *prometheus.CounterVec
	websocketErrorsTotal   *prometheus.CounterVec

	// Presence and relay
	onlineUsers            prometheus.Gauge
	relayDeliveriesTotal   *prometheus.CounterVec
	groupRoomsActive       prometheus.Gauge
	groupParticipantsTotal *prometheus.CounterVec

	// Call Metrics
	callsTotal           *prometheus.CounterVec
	callsDuration        *prometheus.HistogramVec
	callsSweptTotal      prometheus.Counter
	historyMessagesTotal *prometheus.CounterVec

	// Push Notification Metrics
	pushNotificationsTotal  *prometheus.CounterVec
	pushNotificationsFailed *prometheus.CounterVec

	// Circuit breakers
	circuitBreakerState    *prometheus.GaugeVec
	circuitBreakerRequests *prometheus.CounterVec

	// Redis Metrics
	redisDegradedMode prometheus.Gauge
}

// NewMetrics creates all metrics on a private registry
func NewMetrics(serviceName string) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)
	labels := prometheus.Labels{"service": serviceName}

	return &Metrics{
		registry: registry,

		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "http_requests_total",
				Help:        "Total number of HTTP requests",
				ConstLabels: labels,
			},
			[]string{"method", "endpoint", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "http_request_duration_seconds",
				Help:        "HTTP request latency in seconds",
				ConstLabels: labels,
				Buckets:     prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		httpRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "http_requests_in_flight",
				Help:        "Number of HTTP requests currently being processed",
				ConstLabels: labels,
			},
		),

		httpRequestTimeouts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "http_request_timeouts_total",
				Help:        "HTTP requests that exceeded their deadline",
				ConstLabels: labels,
			},
			[]string{"method", "endpoint"},
		),

		websocketConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "websocket_connections",
				Help:        "Number of active WebSocket connections",
				ConstLabels: labels,
			},
		),
		websocketMessagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "websocket_messages_total",
				Help:        "Total number of WebSocket messages",
				ConstLabels: labels,
			},
			[]string{"type", "direction"},
		),
		websocketErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "websocket_errors_total",
				Help:        "Total number of WebSocket errors",
				ConstLabels: labels,
			},
			[]string{"error"},
		),

		onlineUsers: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "presence_online_users",
				Help:        "Number of users registered on this instance",
				ConstLabels: labels,
			},
		),
		relayDeliveriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "signaling_relay_deliveries_total",
				Help:        "Relay delivery attempts by event and result",
				ConstLabels: labels,
			},
			[]string{"event", "result"},
		),
		groupRoomsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "group_call_rooms_active",
				Help:        "Number of group call rooms with at least one participant",
				ConstLabels: labels,
			},
		),
		groupParticipantsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "group_call_membership_changes_total",
				Help:        "Group call joins and leaves",
				ConstLabels: labels,
			},
			[]string{"action"},
		),

		callsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "calls_total",
				Help:        "Call status transitions by call type",
				ConstLabels: labels,
			},
			[]string{"type", "status"},
		),
		callsDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "call_duration_seconds",
				Help:        "Reported duration of ended calls",
				ConstLabels: labels,
				Buckets:     []float64{5, 15, 30, 60, 120, 300, 600, 1800, 3600},
			},
			[]string{"type"},
		),
		callsSweptTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name:        "calls_swept_total",
				Help:        "Unanswered calls marked missed by staleness sweeps",
				ConstLabels: labels,
			},
		),
		historyMessagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "call_history_messages_total",
				Help:        "Call history messages synthesized by call status",
				ConstLabels: labels,
			},
			[]string{"call_status"},
		),

		pushNotificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "push_notifications_total",
				Help:        "Total number of push notifications sent",
				ConstLabels: labels,
			},
			[]string{"type"},
		),
		pushNotificationsFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "push_notifications_failed_total",
				Help:        "Total number of failed push notifications",
				ConstLabels: labels,
			},
			[]string{"type", "reason"},
		),

		circuitBreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name:        "circuit_breaker_state",
				Help:        "State of a circuit breaker (0=closed, 1=half_open, 2=open)",
				ConstLabels: labels,
			},
			[]string{"breaker"},
		),
		circuitBreakerRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "circuit_breaker_requests_total",
				Help:        "Requests passing through a circuit breaker by result",
				ConstLabels: labels,
			},
			[]string{"breaker", "result"},
		),

		redisDegradedMode: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "redis_degraded_mode",
				Help:        "Indicates if Redis is in degraded mode (1 = degraded, 0 = healthy)",
				ConstLabels: labels,
			},
		),
	}
}

// GetRegistry returns the registry backing the /metrics endpoint
func (m *Metrics) GetRegistry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// HTTP Request Metrics Methods

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// IncrementHTTPRequestsInFlight increments the in-flight requests counter
func (m *Metrics) IncrementHTTPRequestsInFlight() {
	if m == nil {
		return
	}
	m.httpRequestsInFlight.Inc()
}

// DecrementHTTPRequestsInFlight decrements the in-flight requests counter
func (m *Metrics) DecrementHTTPRequestsInFlight() {
	if m == nil {
		return
	}
	m.httpRequestsInFlight.Dec()
}

// RecordHTTPTimeout records a request that ran past its deadline
func (m *Metrics) RecordHTTPTimeout(method, endpoint string) {
	if m == nil {
		return
	}
	m.httpRequestTimeouts.WithLabelValues(method, endpoint).Inc()
}

// WebSocket Metrics Methods

// IncWebSocketConnections tracks an opened socket
func (m *Metrics) IncWebSocketConnections() {
	if m == nil {
		return
	}
	m.websocketConnections.Inc()
}

// DecWebSocketConnections tracks a closed socket
func (m *Metrics) DecWebSocketConnections() {
	if m == nil {
		return
	}
	m.websocketConnections.Dec()
}

// RecordWebSocketMessage records a WebSocket message
func (m *Metrics) RecordWebSocketMessage(msgType, direction string) {
	if m == nil {
		return
	}
	m.websocketMessagesTotal.WithLabelValues(msgType, direction).Inc()
}

// RecordWebSocketError records a WebSocket error
func (m *Metrics) RecordWebSocketError(err string) {
	if m == nil {
		return
	}
	m.websocketErrorsTotal.WithLabelValues(err).Inc()
}

// Presence, relay and room methods

func (m *Metrics) SetOnlineUsers(count int) {
	if m == nil {
		return
	}
	m.onlineUsers.Set(float64(count))
}

// RecordRelayDelivery records the outcome of a relay attempt: local, remote or unavailable
func (m *Metrics) RecordRelayDelivery(event, result string) {
	if m == nil {
		return
	}
	m.relayDeliveriesTotal.WithLabelValues(event, result).Inc()
}

func (m *Metrics) SetGroupRooms(count int) {
	if m == nil {
		return
	}
	m.groupRoomsActive.Set(float64(count))
}

func (m *Metrics) RecordGroupMembership(action string) {
	if m == nil {
		return
	}
	m.groupParticipantsTotal.WithLabelValues(action).Inc()
}

// Call Metrics Methods

// RecordCall records a call reaching a status
func (m *Metrics) RecordCall(callType, status string) {
	if m == nil {
		return
	}
	m.callsTotal.WithLabelValues(callType, status).Inc()
}

// RecordCallDuration records the duration of an ended call
func (m *Metrics) RecordCallDuration(callType string, duration time.Duration) {
	if m == nil {
		return
	}
	m.callsDuration.WithLabelValues(callType).Observe(duration.Seconds())
}

func (m *Metrics) RecordCallsSwept(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.callsSweptTotal.Add(float64(count))
}

func (m *Metrics) RecordHistoryMessage(callStatus string) {
	if m == nil {
		return
	}
	m.historyMessagesTotal.WithLabelValues(callStatus).Inc()
}

// Push Notification Metrics Methods

// RecordPushNotification records a push notification
func (m *Metrics) RecordPushNotification(notifType string) {
	if m == nil {
		return
	}
	m.pushNotificationsTotal.WithLabelValues(notifType).Inc()
}

// RecordPushNotificationFailure records a failed push notification
func (m *Metrics) RecordPushNotificationFailure(notifType, reason string) {
	if m == nil {
		return
	}
	m.pushNotificationsFailed.WithLabelValues(notifType, reason).Inc()
}

// Circuit Breaker Metrics Methods

func (m *Metrics) SetCircuitBreakerState(breaker string, state int) {
	if m == nil {
		return
	}
	m.circuitBreakerState.WithLabelValues(breaker).Set(float64(state))
}

func (m *Metrics) RecordCircuitBreakerRequest(breaker, result string) {
	if m == nil {
		return
	}
	m.circuitBreakerRequests.WithLabelValues(breaker, result).Inc()
}

// Redis Metrics Methods

// SetRedisDegraded flags whether Redis is currently unreachable
func (m *Metrics) SetRedisDegraded(degraded bool) {
	if m == nil {
		return
	}
	if degraded {
		m.redisDegradedMode.Set(1)
		return
	}
	m.redisDegradedMode.Set(0)
}
