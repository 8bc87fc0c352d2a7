// Package retry provides exponential backoff retry for transient failures.
//
// Do stops early on errors the errors package classifies as invalid or fatal,
// so callers mark permanent failures with errors.WrapInvalid or
// errors.WrapFatal rather than a retry-specific wrapper.
//
//	err := retry.Do(ctx, retry.Quick(), func() error {
//	    return sink.Connect(ctx)
//	})
//
// Presets:
//
//   - DefaultConfig(): 3 attempts, 100ms-5s delay
//   - Quick(): 10 attempts, 50ms-1s delay, for startup
package retry
