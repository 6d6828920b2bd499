// Package metrics is the backend-neutral instrumentation facade.
//
// Pipeline code calls the package-level helpers; cmd/sleepgen decides which
// Backend (Prometheus pushgateway, Datadog, or none) receives the samples.
package metrics

import (
	"sync"
	"time"
)

// Metric names emitted by the pipeline.
const (
	StepTotal           = "sleepgen_step_total"
	StepDurationSeconds = "sleepgen_step_duration_seconds"
	RecordsTotal        = "sleepgen_records_total"
)

// Step statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Labels are metric dimensions, e.g. {"step": "load", "status": "ok"}.
type Labels map[string]string

// Backend receives samples. Implementations must be safe for concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels) {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs b as the process-wide backend. A nil b restores the
// no-op backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		b = nopBackend{}
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// IncCounter adds delta to a counter.
func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

// ObserveHistogram records one sample.
func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

// Flush pushes buffered samples to the backend.
func Flush() error {
	return current().Flush()
}

// RecordStep counts a finished pipeline step and its duration.
func RecordStep(step, status string, d time.Duration) {
	l := Labels{"step": step, "status": status}
	IncCounter(StepTotal, 1, l)
	ObserveHistogram(StepDurationSeconds, d.Seconds(), l)
}

// RecordRecords counts rows by kind ("original" or "generated").
func RecordRecords(kind string, n int) {
	if n <= 0 {
		return
	}
	IncCounter(RecordsTotal, float64(n), Labels{"kind": kind})
}
