// Package metric provides Prometheus-based metrics collection and an HTTP server
// for ringbuf pipeline monitoring.
//
// The package offers a centralized metrics registry holding the core pipeline
// metrics (bytes in, bytes rejected, frames out, framing and sink errors) and any
// component-specific metrics registered through the MetricsRegistrar interface,
// such as the per-buffer metrics enabled with ringbuf.WithMetrics.
//
// # Basic Usage
//
//	registry := metric.NewMetricsRegistry()
//	server := metric.NewServer(9090, "/metrics", registry)
//
//	go func() {
//	    if err := server.Start(); err != nil {
//	        logger.Error("metrics server failed", "error", err)
//	    }
//	}()
//	defer server.Stop()
//
//	registry.CoreMetrics().RecordBytesIn(n)
//
// The server exposes Prometheus-formatted metrics at the configured path and a
// health check at /health.
//
// # Component Metrics
//
// Components register their own collectors under a component name. The pair
// (component, metric name) must be unique, and the underlying Prometheus identity
// (fully-qualified name plus const labels) must be unique as well:
//
//	err := registry.RegisterGauge("udp_ring", "buffer_used", usedGauge)
//
// Unregister removes a collector, which allows a component to be rebuilt with
// the same name.
package metric
