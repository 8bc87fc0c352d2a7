package ringbuf

import (
	"github.com/c360/ringbuf/metric"
	"github.com/prometheus/client_golang/prometheus"
)

// bufferMetrics holds Prometheus metrics for one buffer instance.
type bufferMetrics struct {
	// Element counters
	written  prometheus.Counter
	read     prometheus.Counter
	evicted  prometheus.Counter
	rejected prometheus.Counter

	// Event counters
	peeks     prometheus.Counter
	overflows prometheus.Counter

	// Gauges updated on every transfer
	used        prometheus.Gauge
	utilization prometheus.Gauge
}

func newBufferCounter(prefix, name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   "ringbuf",
		Subsystem:   "buffer",
		Name:        name,
		ConstLabels: prometheus.Labels{"component": prefix},
		Help:        help,
	})
}

func newBufferGauge(prefix, name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   "ringbuf",
		Subsystem:   "buffer",
		Name:        name,
		ConstLabels: prometheus.Labels{"component": prefix},
		Help:        help,
	})
}

// newBufferMetrics creates and registers buffer metrics with the provided registry.
// Collectors registered before a failure are unregistered again, so a failed
// construction leaves the registry unchanged.
func newBufferMetrics(registry metric.MetricsRegistrar, prefix string) (*bufferMetrics, error) {
	m := &bufferMetrics{
		written:     newBufferCounter(prefix, "written_total", "Total number of elements stored by Put"),
		read:        newBufferCounter(prefix, "read_total", "Total number of elements removed by Get"),
		evicted:     newBufferCounter(prefix, "evicted_total", "Total number of elements overwritten before being read"),
		rejected:    newBufferCounter(prefix, "rejected_total", "Total number of elements Put refused because the buffer was full"),
		peeks:       newBufferCounter(prefix, "peeks_total", "Total number of successful peek operations"),
		overflows:   newBufferCounter(prefix, "overflows_total", "Total number of Put calls that evicted or rejected elements"),
		used:        newBufferGauge(prefix, "used", "Current number of elements in the buffer"),
		utilization: newBufferGauge(prefix, "utilization", "Buffer utilization as a fraction (0.0 to 1.0)"),
	}

	counters := []struct {
		name    string
		counter prometheus.Counter
	}{
		{"buffer_written", m.written},
		{"buffer_read", m.read},
		{"buffer_evicted", m.evicted},
		{"buffer_rejected", m.rejected},
		{"buffer_peeks", m.peeks},
		{"buffer_overflows", m.overflows},
	}
	gauges := []struct {
		name  string
		gauge prometheus.Gauge
	}{
		{"buffer_used", m.used},
		{"buffer_utilization", m.utilization},
	}

	var registered []string
	rollback := func() {
		for _, name := range registered {
			registry.Unregister(prefix, name)
		}
	}

	for _, c := range counters {
		if err := registry.RegisterCounter(prefix, c.name, c.counter); err != nil {
			rollback()
			return nil, err
		}
		registered = append(registered, c.name)
	}
	for _, g := range gauges {
		if err := registry.RegisterGauge(prefix, g.name, g.gauge); err != nil {
			rollback()
			return nil, err
		}
		registered = append(registered, g.name)
	}

	return m, nil
}

// recordPut adds the outcome of one Put call and updates used/utilization.
func (m *bufferMetrics) recordPut(written, evicted, rejected, used, capacity int) {
	m.written.Add(float64(written))
	if evicted > 0 {
		m.evicted.Add(float64(evicted))
	}
	if rejected > 0 {
		m.rejected.Add(float64(rejected))
	}
	if evicted > 0 || rejected > 0 {
		m.overflows.Inc()
	}
	m.updateSize(used, capacity)
}

// recordGet adds the outcome of one Get call and updates used/utilization.
func (m *bufferMetrics) recordGet(read, used, capacity int) {
	m.read.Add(float64(read))
	m.updateSize(used, capacity)
}

// recordPeek increments the peek counter.
func (m *bufferMetrics) recordPeek() {
	m.peeks.Inc()
}

// updateSize sets the current buffer size and utilization.
func (m *bufferMetrics) updateSize(used, capacity int) {
	m.used.Set(float64(used))
	if capacity == 0 {
		m.utilization.Set(0)
		return
	}
	m.utilization.Set(float64(used) / float64(capacity))
}
