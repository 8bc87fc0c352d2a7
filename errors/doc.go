// Package errors provides standardized error handling patterns for ringbuf components.
//
// # Overview
//
// The errors package implements a three-class error classification system: Transient
// (temporary, retryable), Invalid (bad input, non-retryable), and Fatal (unrecoverable,
// stop processing). Components use the class to decide whether to retry, skip the
// offending input, or shut down.
//
// Note that the ring buffer itself never returns an error for a full or empty
// buffer. Capacity exhaustion is reported through short transfer counts; errors are
// reserved for construction failures, configuration problems and I/O at the edges
// of the pipeline.
//
// # Error Classification
//
//   - Transient: Network timeouts, connection issues, context cancellation
//   - Invalid: Malformed frames, bad capacities, oversized frames
//   - Fatal: Storage allocation refusal, invalid or missing configuration
//
// # Error Wrapping Pattern
//
// All error wrapping follows the standardized format:
//
//	"component.method: action failed: %w"
//
// Three wrapper functions provide classification-aware wrapping:
//
//	errors.WrapTransient(err, "NATSSink", "Write", "publish frame")
//	errors.WrapInvalid(err, "Config", "Validate", "check ring section")
//	errors.WrapFatal(err, "RingBuffer", "New", "allocate storage")
//
// # Integration with errors.As/Is
//
//	var ce *errors.ClassifiedError
//	if errors.As(err, &ce) {
//	    logger.Warn("component error", "component", ce.Component, "class", ce.Class)
//	}
//
//	if errors.Is(err, errors.ErrAllocationFailed) {
//	    // the buffer was never created
//	}
package errors
