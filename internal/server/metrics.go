// Package server – Prometheus instrumentation for command traffic.
//
// Labels are chosen to keep cardinality bounded while remaining actionable
// in dashboards and SLOs:
//
//   - ops:    the operation letter (C/R/U/D)
//   - code:   the numeric command code as a string (e.g. "700")
//   - status: the wire result code as a string (e.g. "200", "400")
//
// All collectors are safe for concurrent use.
package server

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// cmdTotal counts commands by operation letter, code, and result status.
	cmdTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commands_total",
			Help: "Total number of processed commands.",
		},
		[]string{"ops", "code", "status"},
	)

	// cmdDuration records command handling time in seconds by ops and code.
	// Status is intentionally omitted to keep histogram cardinality lower.
	cmdDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "command_duration_seconds",
			Help:    "Duration of command handling in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"ops", "code"},
	)

	// cmdInflight gauges the number of commands currently being handled.
	cmdInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "commands_inflight",
			Help: "Current number of in-flight commands.",
		},
	)

	// connsOpen gauges the number of open command connections.
	connsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "command_connections_open",
			Help: "Current number of open command connections.",
		},
	)
)

func init() {
	prometheus.MustRegister(cmdTotal, cmdDuration, cmdInflight, connsOpen)
}

// observeCommand records one finished command.
func observeCommand(ops string, code, status int, seconds float64) {
	c := strconv.Itoa(code)
	cmdTotal.WithLabelValues(ops, c, strconv.Itoa(status)).Inc()
	cmdDuration.WithLabelValues(ops, c).Observe(seconds)
}
