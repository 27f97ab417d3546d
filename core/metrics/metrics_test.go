package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.ConnectionAccepted()
	m.ConnectionAccepted()
	m.Parsed("complete")
	m.Parsed("invalid")
	m.Responded(200)
	m.Responded(404)
	m.Responded(404)
	m.RateLimited()
	m.WebSocketClients(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.connections))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.parses.WithLabelValues("invalid")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("404")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rateLimited))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.wsClients))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ConnectionAccepted()
		m.Parsed("error")
		m.Responded(500)
		m.RateLimited()
		m.WebSocketClients(1)
		m.ObserveQueue(nil, nil)
	})
	assert.Nil(t, m.Registry())
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveQueue(func() float64 { return 7 }, func() float64 { return 2 })
	m.Responded(200)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `photonyx_responses_total{code="200"} 1`)
	assert.Contains(t, body, "photonyx_worker_queue_depth 7")
	assert.Contains(t, body, "photonyx_workers_busy 2")
}
