package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	activeSessionsGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "bridge_gateway",
			Name:      "active_sessions",
			Help:      "Number of session supervisors currently running.",
		},
	)

	sessionTransitionsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bridge_gateway",
			Name:      "session_transitions_total",
			Help:      "Total lifecycle state transitions, labelled by target state.",
		},
		[]string{"to_state"},
	)

	messagesSentCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bridge_gateway",
			Name:      "messages_sent_total",
			Help:      "Total outbound messages accepted by the transport.",
		},
		[]string{"transport"},
	)

	messagesReceivedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bridge_gateway",
			Name:      "messages_received_total",
			Help:      "Total inbound messages recorded in the message log.",
		},
		[]string{"transport"},
	)

	autoRepliesFiredCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "bridge_gateway",
			Name:      "auto_replies_fired_total",
			Help:      "Total auto-reply rules fired for inbound messages.",
		},
	)

	transportSendDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bridge_gateway",
			Name:      "transport_send_duration_seconds",
			Help:      "Duration of send calls to the underlying transport.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"transport"},
	)

	logSubscribersGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "bridge_gateway",
			Name:      "message_log_subscribers",
			Help:      "Live message-log subscribers across all instances.",
		},
	)
)
