// Package metrics exposes pipeline counters to Prometheus. A nil *Metrics is
// valid and records nothing.
package metrics

import (
	"time"

	"github.com/glizzus/soundcodec/internal/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "soundcodec"

type Metrics struct {
	FramesEncoded   prometheus.Counter
	PayloadBytes    prometheus.Counter
	EncodeErrors    prometheus.Counter
	EncodeLatency   prometheus.Histogram
	PacketsDecoded  prometheus.Counter
	FramesConcealed prometheus.Counter
	CorruptPackets  prometheus.Counter
	JitterDropped   *prometheus.CounterVec
	JitterPending   prometheus.Gauge
}

// New registers the metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FramesEncoded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_encoded_total",
			Help:      "Total number of frames encoded",
		}),
		PayloadBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payload_bytes_total",
			Help:      "Total number of compressed payload bytes produced",
		}),
		EncodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "encode_errors_total",
			Help:      "Total number of frames rejected by the encoder",
		}),
		EncodeLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "encode_duration_seconds",
			Help:      "Time spent encoding one frame",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 8),
		}),
		PacketsDecoded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_decoded_total",
			Help:      "Total number of packets decoded",
		}),
		FramesConcealed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_concealed_total",
			Help:      "Total number of frames synthesized for lost packets",
		}),
		CorruptPackets: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "corrupt_packets_total",
			Help:      "Total number of packets rejected as corrupt",
		}),
		JitterDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jitter_dropped_total",
			Help:      "Packets dropped by the jitter buffer",
		}, []string{"reason"}),
		JitterPending: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jitter_pending_packets",
			Help:      "Packets held by the jitter buffer",
		}),
	}
}

func (m *Metrics) Encoded(payload int, took time.Duration) {
	if m == nil {
		return
	}
	m.FramesEncoded.Inc()
	m.PayloadBytes.Add(float64(payload))
	m.EncodeLatency.Observe(took.Seconds())
}

func (m *Metrics) EncodeFailed() {
	if m == nil {
		return
	}
	m.EncodeErrors.Inc()
}

func (m *Metrics) Decoded(concealed bool) {
	if m == nil {
		return
	}
	if concealed {
		m.FramesConcealed.Inc()
		return
	}
	m.PacketsDecoded.Inc()
}

func (m *Metrics) Corrupt() {
	if m == nil {
		return
	}
	m.CorruptPackets.Inc()
}

// Jitter records the change in jitter buffer stats since prev.
func (m *Metrics) Jitter(prev, cur transport.JitterStats, pending int) {
	if m == nil {
		return
	}
	m.JitterDropped.WithLabelValues("late").Add(float64(cur.Late - prev.Late))
	m.JitterDropped.WithLabelValues("duplicate").Add(float64(cur.Duplicate - prev.Duplicate))
	m.JitterPending.Set(float64(pending))
}
