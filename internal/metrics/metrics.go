// Package metrics registers the service's Prometheus collectors.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "triage"

var (
	// decisions counts engine evaluations.
	// Labels: level, escalated (true, false)
	decisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "decisions_total",
		Help:      "Total triage decisions by final level",
	}, []string{"level", "escalated"})

	// redFlags counts fired red flags.
	// Labels: red_flag
	redFlags = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "red_flags_total",
		Help:      "Total fired red flags by id",
	}, []string{"red_flag"})

	// patches counts case patches.
	// Labels: change_type, result (ok, validation, not_found, error)
	patches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cases",
		Name:      "patches_total",
		Help:      "Total case patches by change type and result",
	}, []string{"change_type", "result"})

	// casesCreated counts newly created cases.
	casesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cases",
		Name:      "created_total",
		Help:      "Total cases created",
	})

	// imported counts legacy records written by the importer.
	// Labels: kind (case, change, skipped)
	imported = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "legacy",
		Name:      "records_total",
		Help:      "Total legacy records processed by kind",
	}, []string{"kind"})

	// httpLatency measures API request latency.
	// Labels: route, method, status
	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"route", "method", "status"})

	// accessDenials counts rejected requests.
	// Labels: reason (denied, rate_limited)
	accessDenials = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "access",
		Name:      "denials_total",
		Help:      "Total rejected requests by reason",
	}, []string{"reason"})
)

// RecordDecision counts one evaluation and each red flag it fired.
func RecordDecision(level string, escalated bool, firedRedFlags []string) {
	decisions.WithLabelValues(level, strconv.FormatBool(escalated)).Inc()
	for _, id := range firedRedFlags {
		redFlags.WithLabelValues(id).Inc()
	}
}

// RecordCaseCreated counts one new case.
func RecordCaseCreated() { casesCreated.Inc() }

// RecordPatch counts one patch attempt.
func RecordPatch(changeType, result string) {
	patches.WithLabelValues(changeType, result).Inc()
}

// RecordImport adds n to the legacy import counter for kind.
func RecordImport(kind string, n int) {
	if n > 0 {
		imported.WithLabelValues(kind).Add(float64(n))
	}
}

// RecordDenial counts one rejected request.
func RecordDenial(reason string) { accessDenials.WithLabelValues(reason).Inc() }

// ObserveHTTP records the latency of one request.
func ObserveHTTP(route, method string, status int, d time.Duration) {
	httpLatency.WithLabelValues(route, method, strconv.Itoa(status)).Observe(d.Seconds())
}
