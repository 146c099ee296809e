// Package metrics declares the Prometheus collectors exported by ircsvc.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals
var (
	// Protocol metrics
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ircsvc_commands_total",
			Help: "Total commands processed",
		},
		[]string{"command", "result"}, // result: ok, denied, error, unknown
	)

	CommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ircsvc_command_duration_seconds",
			Help:    "Command processing duration, including credential checks",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		},
		[]string{"command"},
	)

	// Connection metrics
	ConnectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ircsvc_connections_total",
			Help: "Total accepted TCP connections",
		},
		[]string{"outcome"}, // served, rate_limited, dropped, panic
	)

	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ircsvc_connections_active",
			Help: "Connections currently being served",
		},
	)

	// Directory metrics
	UsersRegistered = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ircsvc_users_registered",
			Help: "Registered users",
		},
	)

	RoomsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ircsvc_rooms",
			Help: "Rooms in the directory",
		},
	)

	MessagesPosted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ircsvc_messages_posted_total",
			Help: "Total messages posted to rooms",
		},
	)

	// Admin HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ircsvc_http_requests_total",
			Help: "Total admin HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
)
