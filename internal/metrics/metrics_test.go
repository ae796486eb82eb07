// ABOUTME: Tests for the Prometheus collectors
// ABOUTME: Verifies counters move, nil receivers are safe, and the handler exposes metric names

package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.ObserveTurn(OutcomeResolved, time.Second)
	m.ObserveTurn(OutcomeResolved, 2*time.Second)
	m.ObserveTurn(OutcomeTimeout, 120*time.Second)
	m.FramesDropped(3)
	m.FramesDropped(0)
	m.FrameDecoded("delta")
	m.Handshake(true)
	m.Handshake(false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.turns.WithLabelValues(OutcomeResolved)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.turns.WithLabelValues(OutcomeTimeout)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.framesDropped))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.frames.WithLabelValues("delta")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.handshakes.WithLabelValues("failed")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveTurn(OutcomeAborted, time.Second)
		m.FramesDropped(1)
		m.FrameDecoded("ping")
		m.Handshake(true)
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObserveTurn(OutcomeDegraded, time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `chathub_turns_total{outcome="degraded"} 1`)
	assert.Contains(t, string(body), "chathub_turn_duration_seconds")
}
