// Package metrics exposes selection and HTTP metrics to Prometheus
package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/liamcoop/crewrecovery/fdtl"
	"github.com/liamcoop/crewrecovery/internal/logger"
	"github.com/liamcoop/crewrecovery/recovery"
)

var (
	selections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crewrecovery_selections_total",
		Help: "Selections by outcome status",
	}, []string{"status"})

	candidates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crewrecovery_candidates_total",
		Help: "Evaluated candidates by compliance status",
	}, []string{"status"})

	violations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crewrecovery_violations_total",
		Help: "Rule violations by check, including operating policies",
	}, []string{"check"})

	selectionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "crewrecovery_selection_duration_seconds",
		Help:    "Time to evaluate and select over one candidate set",
		Buckets: []float64{0.00001, 0.0001, 0.001, 0.01, 0.1},
	})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crewrecovery_http_requests_total",
		Help: "HTTP requests by route pattern and status code",
	}, []string{"method", "route", "code"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "crewrecovery_http_request_duration_seconds",
		Help:    "HTTP request latency by route pattern",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	_ = promauto.NewCounterFunc(prometheus.CounterOpts{
		Name: "crewrecovery_log_errors_total",
		Help: "Error log events, counted before sampling",
	}, func() float64 { return float64(logger.TotalErrors.Load()) })

	_ = promauto.NewCounterFunc(prometheus.CounterOpts{
		Name: "crewrecovery_log_warnings_total",
		Help: "Warning log events, counted before sampling",
	}, func() float64 { return float64(logger.TotalWarnings.Load()) })
)

// ObserveSelection records one selection outcome and how long it took
func ObserveSelection(o *recovery.SelectionOutcome, elapsed time.Duration) {
	if o == nil {
		return
	}
	selections.WithLabelValues(string(o.Status)).Inc()
	selectionDuration.Observe(elapsed.Seconds())

	for _, p := range o.Evaluated {
		candidates.WithLabelValues(string(p.Status)).Inc()
		for _, v := range p.Compliance.Violations {
			violations.WithLabelValues(checkLabel(v.Check)).Inc()
		}
	}
}

// checkLabel folds every operating policy into one label value; policy IDs are user-defined
func checkLabel(c fdtl.Check) string {
	if strings.HasPrefix(string(c), "policy:") {
		return "policy"
	}
	return string(c)
}

// ObserveRequest records one HTTP request. route is the router pattern, not the raw path.
func ObserveRequest(method, route string, code int, elapsed time.Duration) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
