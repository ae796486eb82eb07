// ABOUTME: Prometheus collectors for turn outcomes, latency and wire-level frame handling
// ABOUTME: Each Metrics owns its registry; nil *Metrics is a valid no-op

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Turn outcomes used as the "outcome" label.
const (
	OutcomeResolved = "resolved"
	OutcomeDegraded = "degraded"
	OutcomeRejected = "rejected"
	OutcomeTimeout  = "timeout"
	OutcomeAborted  = "aborted"
)

// Metrics groups the collectors exported by the client.
type Metrics struct {
	registry      *prometheus.Registry
	turns         *prometheus.CounterVec
	turnDuration  prometheus.Histogram
	framesDropped prometheus.Counter
	frames        *prometheus.CounterVec
	handshakes    *prometheus.CounterVec
}

// New creates collectors registered on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chathub",
			Name:      "turns_total",
			Help:      "Turns settled, by outcome.",
		}, []string{"outcome"}),
		turnDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "chathub",
			Name:      "turn_duration_seconds",
			Help:      "Wall time from envelope send to settlement.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 120},
		}),
		framesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chathub",
			Name:      "frames_dropped_total",
			Help:      "Wire records that failed to decode.",
		}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chathub",
			Name:      "frames_total",
			Help:      "Decoded wire records, by kind.",
		}, []string{"kind"}),
		handshakes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chathub",
			Name:      "handshakes_total",
			Help:      "Socket handshakes attempted, by result.",
		}, []string{"result"}),
	}
	m.registry.MustRegister(m.turns, m.turnDuration, m.framesDropped, m.frames, m.handshakes)
	return m
}

// ObserveTurn records a settled turn.
func (m *Metrics) ObserveTurn(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(outcome).Inc()
	m.turnDuration.Observe(elapsed.Seconds())
}

// FramesDropped adds n undecodable records.
func (m *Metrics) FramesDropped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.framesDropped.Add(float64(n))
}

// FrameDecoded counts one decoded record of the given kind.
func (m *Metrics) FrameDecoded(kind string) {
	if m == nil {
		return
	}
	m.frames.WithLabelValues(kind).Inc()
}

// Handshake counts a handshake attempt; ok reports whether it was acknowledged.
func (m *Metrics) Handshake(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.handshakes.WithLabelValues(result).Inc()
}

// Registry exposes the underlying registry for tests and custom exporters.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
