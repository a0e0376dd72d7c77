// Package metrics holds the process prometheus collectors.
package metrics

import (
	"net/http"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	MessagesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "groupchat_messages_sent_total",
		Help: "Messages committed by the store.",
	})

	Rejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "groupchat_moderation_rejections_total",
		Help: "Actions refused by the moderation gate.",
	}, []string{"action", "reason"})

	BroadcastEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "groupchat_broadcast_events_total",
		Help: "Events published to subscribers, by kind.",
	}, []string{"kind"})

	BroadcastDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "groupchat_broadcast_dropped_total",
		Help: "Subscribers disconnected for falling behind.",
	})

	Subscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "groupchat_ws_subscribers",
		Help: "Open realtime subscriptions.",
	})

	heapAlloc = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "go_heap_alloc_bytes",
			Help: "Current heap allocation in bytes.",
		},
		func() float64 {
			var stats runtime.MemStats
			runtime.ReadMemStats(&stats)
			return float64(stats.HeapAlloc)
		},
	)
)

// Registry is the registry every collector above is registered on.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		MessagesSent,
		Rejections,
		BroadcastEvents,
		BroadcastDropped,
		Subscribers,
		heapAlloc,
		collectors.NewGoCollector(),
	)
}

// Handler serves the registry in the prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
