package ringbuf

import (
	"log/slog"

	"github.com/c360/ringbuf/metric"
)

// Option configures buffer behavior using the functional options pattern.
// Options do not depend on the element type, so one option list can be shared
// by buffers of different types.
type Option func(*bufferOptions)

// bufferOptions holds internal configuration for buffer instances.
// Stats are ALWAYS collected - they are not optional.
type bufferOptions struct {
	overwrite   bool
	memoryLimit int64
	logger      *slog.Logger

	// metricsReg is optional - if provided, buffer stats are also exposed as Prometheus metrics
	metricsReg metric.MetricsRegistrar

	// metricsPrefix is used as the component label for Prometheus metrics
	metricsPrefix string
}

// WithOverwrite selects the overflow policy. When enabled, Put on a full buffer
// evicts the oldest elements; otherwise Put stores only what fits.
// Defaults to false.
func WithOverwrite(enabled bool) Option {
	return func(opts *bufferOptions) {
		opts.overwrite = enabled
	}
}

// WithMemoryLimit refuses construction when capacity * sizeof(T) exceeds limit
// bytes. A limit of 0 or less disables the check.
func WithMemoryLimit(limit int64) Option {
	return func(opts *bufferOptions) {
		opts.memoryLimit = limit
	}
}

// WithLogger sets the logger used for construction and Clear events.
// Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(opts *bufferOptions) {
		if logger != nil {
			opts.logger = logger
		}
	}
}

// WithMetrics enables Prometheus metrics export for buffer statistics.
// If registry is nil or prefix is empty, this option is ignored.
func WithMetrics(registry metric.MetricsRegistrar, prefix string) Option {
	return func(opts *bufferOptions) {
		if registry != nil && prefix != "" {
			opts.metricsReg = registry
			opts.metricsPrefix = prefix
		}
	}
}

func applyOptions(options ...Option) *bufferOptions {
	opts := &bufferOptions{
		logger: slog.Default(),
	}

	for _, opt := range options {
		if opt != nil {
			opt(opts)
		}
	}

	return opts
}
