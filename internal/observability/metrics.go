package observability

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "academy_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// DatabaseQueryLatency records database query latency by SQL verb.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "academy_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	// AccessDecisions counts content gate outcomes by required tier.
	AccessDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "academy_access_decisions_total",
		Help: "Content access decisions by required tier and result",
	}, []string{"required_tier", "result"})

	// AssistantRequests counts assistant calls by outcome.
	AssistantRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "academy_assistant_requests_total",
		Help: "Assistant requests by outcome",
	}, []string{"outcome"})

	// WebSocketConnectionsTotal is the gauge of open chat sockets.
	WebSocketConnectionsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "academy_websocket_connections_total",
		Help: "Total number of active WebSocket connections",
	})

	// OnlineUsers is the gauge of users with at least one chat socket.
	OnlineUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "academy_chat_online_users",
		Help: "Number of users currently online in chat",
	})

	// WebSocketEventsTotal counts inbound chat events by type.
	WebSocketEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "academy_websocket_events_total",
		Help: "Total WebSocket events by type",
	}, []string{"event_type"})

	// MessageThroughput counts persisted chat messages by conversation type.
	MessageThroughput = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "academy_message_throughput_total",
		Help: "Total number of chat messages persisted",
	}, []string{"conversation_type"})

	// WebSocketBackpressureDrops counts messages dropped due to backpressure by hub and reason.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "academy_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"hub", "reason"})

	// PushDeliveries counts offline push notifications by sink and result.
	PushDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "academy_push_deliveries_total",
		Help: "Offline push notifications by sink and result",
	}, []string{"sink", "result"})
)

// SQLVerb extracts the leading keyword of a statement for metric labels.
func SQLVerb(sql string) string {
	sql = strings.TrimSpace(sql)
	if i := strings.IndexAny(sql, " \n\t("); i > 0 {
		sql = sql[:i]
	}
	switch verb := strings.ToUpper(sql); verb {
	case "SELECT", "INSERT", "UPDATE", "DELETE", "BEGIN", "COMMIT", "ROLLBACK", "SAVEPOINT":
		return strings.ToLower(verb)
	default:
		return "other"
	}
}

// Result maps a boolean outcome to a metric label.
func Result(ok bool) string {
	if ok {
		return "granted"
	}
	return "denied"
}
