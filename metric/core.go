package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the pipeline-level metrics shared by every ringpipe run.
// Per-buffer metrics are registered separately by each buffer that asks for them.
type Metrics struct {
	BytesIn       prometheus.Counter
	BytesRejected prometheus.Counter
	FramesOut     prometheus.Counter
	FrameErrors   *prometheus.CounterVec
	SinkErrors    prometheus.Counter
	FrameSize     prometheus.Histogram
}

// NewMetrics creates a new Metrics instance with all pipeline metrics
func NewMetrics() *Metrics {
	return &Metrics{
		BytesIn: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "ringbuf",
				Subsystem: "pipeline",
				Name:      "bytes_in_total",
				Help:      "Total number of bytes read from the input",
			},
		),

		BytesRejected: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "ringbuf",
				Subsystem: "pipeline",
				Name:      "bytes_rejected_total",
				Help:      "Total number of input bytes the ring could not accept",
			},
		),

		FramesOut: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "ringbuf",
				Subsystem: "pipeline",
				Name:      "frames_out_total",
				Help:      "Total number of frames delivered to the sink",
			},
		),

		FrameErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ringbuf",
				Subsystem: "pipeline",
				Name:      "frame_errors_total",
				Help:      "Total number of framing errors by reason",
			},
			[]string{"reason"},
		),

		SinkErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "ringbuf",
				Subsystem: "pipeline",
				Name:      "sink_errors_total",
				Help:      "Total number of failed sink writes",
			},
		),

		FrameSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "ringbuf",
				Subsystem: "pipeline",
				Name:      "frame_size_bytes",
				Help:      "Size of delivered frames in bytes",
				Buckets:   prometheus.ExponentialBuckets(16, 4, 8),
			},
		),
	}
}

// RecordBytesIn adds n bytes read from the input
func (c *Metrics) RecordBytesIn(n int) {
	c.BytesIn.Add(float64(n))
}

// RecordBytesRejected adds n bytes the ring refused
func (c *Metrics) RecordBytesRejected(n int) {
	c.BytesRejected.Add(float64(n))
}

// RecordFrame counts one delivered frame of the given size
func (c *Metrics) RecordFrame(size int) {
	c.FramesOut.Inc()
	c.FrameSize.Observe(float64(size))
}

// RecordFrameError increments the framing error counter
func (c *Metrics) RecordFrameError(reason string) {
	c.FrameErrors.WithLabelValues(reason).Inc()
}

// RecordSinkError increments the sink error counter
func (c *Metrics) RecordSinkError() {
	c.SinkErrors.Inc()
}
