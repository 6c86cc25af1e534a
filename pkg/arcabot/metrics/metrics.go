// Package metrics holds the Prometheus collectors of ArcaBot and the small
// ops HTTP server that exposes them.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	Sessions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "arcabot_sessions", Help: "Live sessions by status"},
		[]string{"status"},
	)
	Reconnects = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "arcabot_reconnects_total", Help: "Scheduled session reconnects"},
	)
	AutoReplies = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "arcabot_autoreply_total", Help: "Auto-reply decisions"},
		[]string{"mode", "result"},
	)
	Dispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "arcabot_dispatch_total", Help: "Scheduled message outcomes"},
		[]string{"result"},
	)
	DispatchTick = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "arcabot_dispatch_tick_seconds", Help: "Dispatch tick duration"},
	)
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(Sessions, Reconnects, AutoReplies, Dispatches, DispatchTick)
}
