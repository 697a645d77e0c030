package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "xarvis_gateway"

// Metrics is the gateway's prometheus surface. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	reg *prometheus.Registry

	connections prometheus.Gauge
	frames      *prometheus.CounterVec
	evictions   *prometheus.CounterVec
	turns       *prometheus.CounterVec
	turnLatency *prometheus.HistogramVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Open websocket connections.",
		}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Protocol frames by direction and message type.",
		}, []string{"direction", "msg_type"}),
		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_evictions_total",
			Help:      "Evicted sessions by reason.",
		}, []string{"reason"}),
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Conversation turns by input kind and outcome.",
		}, []string{"kind", "outcome"}),
		turnLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Wall time of a conversation turn.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
		}, []string{"kind"}),
	}
	reg.MustRegister(
		m.connections, m.frames, m.evictions, m.turns, m.turnLatency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// TrackSessions exposes the live session count, read at scrape time.
func (m *Metrics) TrackSessions(count func() int) {
	if m == nil {
		return
	}
	m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions",
		Help:      "Registered sessions.",
	}, func() float64 { return float64(count()) }))
}

func (m *Metrics) ConnOpened() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) ConnClosed() {
	if m != nil {
		m.connections.Dec()
	}
}

func (m *Metrics) FrameIn(msgType string) {
	if m != nil {
		m.frames.WithLabelValues("in", msgType).Inc()
	}
}

func (m *Metrics) FrameOut(msgType string) {
	if m != nil {
		m.frames.WithLabelValues("out", msgType).Inc()
	}
}

func (m *Metrics) Evicted(reason string) {
	if m != nil {
		m.evictions.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) Turn(kind, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(kind, outcome).Inc()
	m.turnLatency.WithLabelValues(kind).Observe(took.Seconds())
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
