// Package metrics defines the Prometheus metrics exported by owd-server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Connections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "owd_server_connections_total",
			Help: "Number of connections accepted by the owd1 server.",
		},
	)
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "owd_server_active_sessions",
			Help: "A gauge of sessions currently being served.",
		},
	)
	Messages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "owd_server_messages_total",
			Help: "Number of messages answered, by message kind.",
		},
		[]string{"kind"},
	)
	MalformedMessages = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "owd_server_malformed_messages_total",
			Help: "Number of received lines discarded because they could not be parsed.",
		},
	)
	SessionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "owd_server_session_duration_seconds",
			Help: "A histogram of session durations.",
			Buckets: []float64{
				.1, .25, .5, 1, 2.5, 5, 10, 25, 50, 100, 250, 600,
			},
		},
	)
)
