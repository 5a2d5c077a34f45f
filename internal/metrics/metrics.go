// Package metrics provides Prometheus metrics for the realtime gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveConnections tracks open socket connections, bound or not.
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wachat_ws_active_connections",
			Help: "Number of currently open socket connections",
		},
	)

	// OnlineUsers tracks users present in the presence registry.
	OnlineUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wachat_ws_online_users",
			Help: "Number of users with a live presence entry",
		},
	)

	InboundEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wachat_ws_inbound_events_total",
			Help: "Total number of inbound socket events by name and outcome",
		},
		[]string{"event", "outcome"},
	)

	Pushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wachat_ws_pushes_total",
			Help: "Total number of outbound socket pushes by event and result",
		},
		[]string{"event", "result"},
	)

	TypingTimers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wachat_ws_typing_timers_total",
			Help: "Typing auto-stop timers by lifecycle step",
		},
		[]string{"step"},
	)

	// BusEventsDropped counts realtime events not handed to the bus because
	// the outbox was full or closed.
	BusEventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wachat_ws_bus_events_dropped_total",
			Help: "Realtime events dropped before reaching the event bus",
		},
		[]string{"reason"},
	)

	DeliveryTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wachat_ws_delivery_transitions_total",
			Help: "Message status transitions applied by the delivery tracker",
		},
		[]string{"status"},
	)
)

// RecordConnectionOpened increments connection metrics.
func RecordConnectionOpened() {
	ActiveConnections.Inc()
}

// RecordConnectionClosed decrements connection metrics.
func RecordConnectionClosed() {
	ActiveConnections.Dec()
}

func RecordInbound(event, outcome string) {
	InboundEvents.WithLabelValues(event, outcome).Inc()
}

// RecordPush records the result of one outbound push.
func RecordPush(event string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	Pushes.WithLabelValues(event, result).Inc()
}

func RecordTypingTimer(step string) {
	TypingTimers.WithLabelValues(step).Inc()
}

func RecordTransition(status string, n int) {
	DeliveryTransitions.WithLabelValues(status).Add(float64(n))
}

func RecordBusEventDropped(reason string) {
	BusEventsDropped.WithLabelValues(reason).Inc()
}
