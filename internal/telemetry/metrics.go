package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics — labelled by method, route template, and status code.
//
// The path label holds the Gin route template (e.g. /api/v1/commands/:name),
// NOT the raw URL, to prevent unbounded cardinality.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Command metrics — one counter per invoked RPC command, labelled by outcome.
// Outcome is "success", "failure", or "unauthenticated".
var CommandInvocationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "command_invocations_total",
		Help: "Total RPC command invocations, by command name and outcome.",
	},
	[]string{"command", "outcome"},
)

// Review workflow metrics.
var ReviewRunsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "review_runs_total",
		Help: "Total review workflow runs, by result (unique, rejected, skipped, error).",
	},
	[]string{"result"},
)

// Purchase workflow metrics, labelled by phase (create, capture) and outcome.
var PurchasePhasesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "purchase_phases_total",
		Help: "Total purchase workflow phases executed, by phase and outcome.",
	},
	[]string{"phase", "outcome"},
)

// BuildTaskDispatchesTotal counts build tasks handed to the external queue.
var BuildTaskDispatchesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "build_task_dispatches_total",
		Help: "Total build tasks dispatched to the task queue, by kind (firmware, workbench).",
	},
	[]string{"kind"},
)

// NotificationFailuresTotal counts failed outbound notification deliveries.
// Notification failures are logged and counted but never retried.
var NotificationFailuresTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "notification_failures_total",
		Help: "Total failed outbound notification deliveries, by channel (discord, gas).",
	},
	[]string{"channel"},
)
