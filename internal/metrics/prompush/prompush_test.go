package prompush

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sleepgen/internal/metrics"
)

type pushed struct {
	method string
	path   string
	body   string
}

func gateway(t *testing.T, status int) (*httptest.Server, func() []pushed) {
	t.Helper()
	var (
		mu  sync.Mutex
		got []pushed
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		got = append(got, pushed{r.Method, r.URL.Path, string(body)})
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []pushed {
		mu.Lock()
		defer mu.Unlock()
		return append([]pushed(nil), got...)
	}
}

func TestFlushPushesRegistry(t *testing.T) {
	srv, calls := gateway(t, http.StatusOK)

	b, err := NewBackend("sleepgen", srv.URL, WithGrouping("run_id", "r1"))
	require.NoError(t, err)

	b.IncCounter(metrics.StepTotal, 1, metrics.Labels{"step": "load", "status": "ok"})
	b.IncCounter(metrics.RecordsTotal, 426, metrics.Labels{"kind": "generated"})
	b.IncCounter(metrics.RecordsTotal, 1, metrics.Labels{})
	b.IncCounter("unrelated_total", 1, nil)
	b.ObserveHistogram(metrics.StepDurationSeconds, 0.3, metrics.Labels{"step": "load", "status": "ok"})
	b.ObserveHistogram(metrics.StepDurationSeconds, -1, nil)

	require.NoError(t, b.Flush())

	got := calls()
	require.Len(t, got, 1)
	assert.Equal(t, http.MethodPut, got[0].method)
	assert.Equal(t, "/metrics/job/sleepgen/run_id/r1", got[0].path)
	// Protobuf body still carries metric and label names verbatim.
	assert.Contains(t, got[0].body, metrics.StepTotal)
	assert.Contains(t, got[0].body, metrics.RecordsTotal)
	assert.Contains(t, got[0].body, metrics.StepDurationSeconds)
	assert.Contains(t, got[0].body, "generated")
}

func TestFlushReportsGatewayError(t *testing.T) {
	srv, _ := gateway(t, http.StatusInternalServerError)
	b, err := NewBackend("sleepgen", srv.URL)
	require.NoError(t, err)
	assert.ErrorContains(t, b.Flush(), "prompush:")
}

func TestNewBackendValidates(t *testing.T) {
	_, err := NewBackend("", "http://localhost:9091")
	assert.Error(t, err)
	_, err = NewBackend("sleepgen", "localhost")
	assert.Error(t, err)
	_, err = NewBackend("sleepgen", "::bad")
	assert.Error(t, err)
}
