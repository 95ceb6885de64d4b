package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Client-side sync metrics
var (
	ConnectionsOpened = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_connections_opened_total",
			Help: "Total number of successful realtime connection opens",
		},
	)

	ConnectionsClosed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_connections_closed_total",
			Help: "Total number of realtime connection closes by kind",
		},
		[]string{"kind"}, // "clean", "abnormal"
	)

	Connected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_connected",
			Help: "Number of realtime connections currently open",
		},
	)

	ReconnectsScheduled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_reconnects_scheduled_total",
			Help: "Total number of reconnect attempts armed with a backoff delay",
		},
	)

	ReconnectGiveUps = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_reconnect_give_ups_total",
			Help: "Total number of sessions that exhausted their reconnect attempts",
		},
	)

	MessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_messages_received_total",
			Help: "Total number of inbound update messages by type",
		},
		[]string{"type"},
	)

	MessagesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_messages_dropped_total",
			Help: "Total number of inbound messages dropped without invalidation",
		},
		[]string{"reason"}, // "malformed", "unknown_type", "no_tags"
	)

	TagsInvalidated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_tags_invalidated_total",
			Help: "Total number of cache tags sent for invalidation by kind",
		},
		[]string{"kind"},
	)
)

// Relay metrics
var (
	RelayConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_websocket_connections",
			Help: "Number of websocket connections subscribed to the relay",
		},
	)

	RelayMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_messages_published_total",
			Help: "Total number of update messages published by type",
		},
		[]string{"type"},
	)

	RelaySlowConnections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_slow_connections_total",
			Help: "Total number of connections dropped because their send buffer was full",
		},
	)

	RelayAuthFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_auth_failures_total",
			Help: "Total number of rejected websocket handshakes by reason",
		},
		[]string{"reason"},
	)
)
