// Package metrics registers the facegate Prometheus collectors with the default
// registry. The /metrics route serves them through promhttp.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "facegate"

// IdentificationsTotal counts processed captures.
// Label outcome: checked_in, already_present, unrecognized or error.
var IdentificationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "identifications_total",
		Help:      "Total number of processed face captures, by outcome.",
	},
	[]string{"outcome"},
)

// AttendanceTransitionsTotal counts ledger state changes.
// Label transition: check_in or check_out.
var AttendanceTransitionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "attendance_transitions_total",
		Help:      "Total number of recorded check-ins and check-outs.",
	},
	[]string{"transition"},
)

// ErrorsTotal counts failed operations by error kind (not_in, persistence, ...).
var ErrorsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "errors_total",
		Help:      "Total number of failed operations, by error kind.",
	},
	[]string{"kind"},
)

// CaptureDuration measures calls to the capture service.
var CaptureDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "capture_duration_seconds",
		Help:      "Duration of biometric capture calls.",
		Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
	},
)

// MembersEnrolled is the current registry size.
var MembersEnrolled = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "members_enrolled",
		Help:      "Number of members currently enrolled.",
	},
)
