package httpserver

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tinytelemetry/logboard/internal/model"
	"github.com/tinytelemetry/logboard/internal/query"
)

// queryMetrics counts and times every engine and store call made by the
// API. Each server owns its registry so tests can build many servers.
type queryMetrics struct {
	registry *prometheus.Registry
	queries  *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newQueryMetrics() *queryMetrics {
	m := &queryMetrics{
		registry: prometheus.NewRegistry(),
		queries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "logboard",
				Name:      "queries_total",
				Help:      "Total number of API operations by outcome.",
			},
			[]string{"op", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "logboard",
				Name:      "query_duration_seconds",
				Help:      "Histogram of API operation durations in seconds.",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"op"},
		),
	}
	m.registry.MustRegister(m.queries, m.duration)
	return m
}

func (m *queryMetrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// observe is a no-op on a nil receiver so handlers need not check.
func (m *queryMetrics) observe(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.queries.WithLabelValues(op, outcome(err)).Inc()
	m.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, query.ErrValidation), errors.Is(err, model.ErrInvalidRecord):
		return "invalid"
	case errors.Is(err, model.ErrNotFound):
		return "not_found"
	case errors.Is(err, model.ErrStoreUnavailable):
		return "unavailable"
	}
	return "error"
}
