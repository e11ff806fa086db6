// Package metrics exports ingestion telemetry to Prometheus. A nil *Metrics
// is valid and records nothing.
package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "groupfiles"

// Ingestion outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

type Metrics struct {
	ingestTotal    *prometheus.CounterVec
	ingestDuration *prometheus.HistogramVec
	uploadedBytes  *prometheus.CounterVec
	degradations   *prometheus.CounterVec
}

// New registers the collectors with reg, or with the default registerer
// when reg is nil. Registering twice reuses the existing collectors.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		ingestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_total",
			Help:      "Ingestion runs by category and outcome.",
		}, []string{"category", "outcome"}),
		ingestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "Wall time of ingestion runs that passed validation.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"category"}),
		uploadedBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploaded_bytes_total",
			Help:      "Bytes stored in the object store by resource kind.",
		}, []string{"kind"}),
		degradations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "degradations_total",
			Help:      "Processing stages that failed and were recovered.",
		}, []string{"stage"}),
	}

	var err error
	m.ingestTotal, err = register(reg, m.ingestTotal)
	if err != nil {
		return nil, err
	}
	m.ingestDuration, err = register(reg, m.ingestDuration)
	if err != nil {
		return nil, err
	}
	m.uploadedBytes, err = register(reg, m.uploadedBytes)
	if err != nil {
		return nil, err
	}
	m.degradations, err = register(reg, m.degradations)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("register metric: %w", err)
	}
	return c, nil
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// ObserveIngest counts a finished run. Rejected runs carry no duration.
func (m *Metrics) ObserveIngest(category, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ingestTotal.WithLabelValues(category, outcome).Inc()
	if outcome != OutcomeRejected {
		m.ingestDuration.WithLabelValues(category).Observe(d.Seconds())
	}
}

func (m *Metrics) AddUploadedBytes(kind string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.uploadedBytes.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) Degradation(stage string) {
	if m == nil {
		return
	}
	m.degradations.WithLabelValues(stage).Inc()
}
