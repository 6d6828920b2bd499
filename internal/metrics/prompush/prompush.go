// Package prompush implements a metrics backend that pushes to a Prometheus
// Pushgateway. Samples accumulate in a private registry; Flush replaces the
// job's group on the gateway with the current values.
package prompush

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"sleepgen/internal/metrics"
)

// Backend implements metrics.Backend on top of a Pushgateway pusher.
type Backend struct {
	registry *prometheus.Registry
	pusher   *push.Pusher

	steps     *prometheus.CounterVec
	records   *prometheus.CounterVec
	durations *prometheus.HistogramVec
}

// Option customizes a Backend.
type Option func(*push.Pusher) *push.Pusher

// WithGrouping adds a grouping label (e.g. run_id) to the pushed group.
func WithGrouping(name, value string) Option {
	return func(p *push.Pusher) *push.Pusher { return p.Grouping(name, value) }
}

// NewBackend creates a backend pushing job's metrics to gatewayURL.
func NewBackend(job, gatewayURL string, opts ...Option) (*Backend, error) {
	if strings.TrimSpace(job) == "" {
		return nil, fmt.Errorf("prompush: empty job name")
	}
	u, err := url.Parse(gatewayURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("prompush: invalid pushgateway url %q", gatewayURL)
	}

	b := &Backend{
		registry: prometheus.NewRegistry(),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.StepTotal,
			Help: "Pipeline steps finished, by step and status.",
		}, []string{"step", "status"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.RecordsTotal,
			Help: "Rows in the expanded table, by kind.",
		}, []string{"kind"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    metrics.StepDurationSeconds,
			Help:    "Pipeline step wall time.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"step", "status"}),
	}
	b.registry.MustRegister(b.steps, b.records, b.durations)

	p := push.New(gatewayURL, job).Gatherer(b.registry)
	for _, o := range opts {
		p = o(p)
	}
	b.pusher = p
	return b, nil
}

// IncCounter implements metrics.Backend. Unknown names are ignored.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}
	switch name {
	case metrics.StepTotal:
		b.steps.WithLabelValues(labels["step"], labels["status"]).Add(delta)
	case metrics.RecordsTotal:
		if kind := labels["kind"]; kind != "" {
			b.records.WithLabelValues(kind).Add(delta)
		}
	}
}

// ObserveHistogram implements metrics.Backend. Unknown names are ignored.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 || name != metrics.StepDurationSeconds {
		return
	}
	b.durations.WithLabelValues(labels["step"], labels["status"]).Observe(value)
}

// Flush pushes the registry to the gateway.
func (b *Backend) Flush() error {
	if err := b.pusher.Push(); err != nil {
		return fmt.Errorf("prompush: %w", err)
	}
	return nil
}

var _ metrics.Backend = (*Backend)(nil)
