// Package config provides configuration loading and validation for ringpipe.
//
// Configuration comes from JSON or YAML files (chosen by extension), layered in
// order, then RINGPIPE_* environment variables, then built-in defaults for
// anything still unset.
//
// # Basic Usage
//
//	loader := config.NewLoader()
//	loader.AddLayer("configs/base.yaml")
//	loader.AddLayer("configs/site.json") // Overrides base
//
//	cfg, err := loader.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//
// # Sections
//
//   - ring: capacity, overwrite policy and an optional memory limit in bytes
//   - framing: delimited (single-byte delimiter) or length (1, 2 or 4 byte
//     big-endian header) with a max_frame bound
//   - input: stdin or udp (address), read in read_size chunks
//   - output: stdout or nats (urls, subject, credentials, reconnect settings)
//   - metrics: Prometheus endpoint port and path
//
// Validate rejects a max_frame (plus header) larger than the ring capacity,
// since such a frame could never be completed.
//
// # Environment Overrides
//
//	RINGPIPE_RING_CAPACITY, RINGPIPE_RING_OVERWRITE
//	RINGPIPE_FRAMING_MODE, RINGPIPE_FRAMING_MAX_FRAME
//	RINGPIPE_INPUT_TYPE, RINGPIPE_INPUT_ADDRESS, RINGPIPE_INPUT_READ_SIZE
//	RINGPIPE_OUTPUT_TYPE, RINGPIPE_NATS_URLS (comma separated), RINGPIPE_NATS_SUBJECT
//	RINGPIPE_NATS_USERNAME, RINGPIPE_NATS_PASSWORD, RINGPIPE_NATS_TOKEN
//	RINGPIPE_METRICS_ENABLED, RINGPIPE_METRICS_PORT
//
// # Security
//
// Files are read through readConfigFile. Relative paths must stay inside the
// working directory and files must be regular and at most 1MB. Nesting depth
// is bounded for JSON and YAML before decoding, and YAML alias use is capped.
// A missing layer reports errors.ErrConfigNotFound.
package config
