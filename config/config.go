package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/ringbuf/errors"
)

// Input types
const (
	InputStdin = "stdin"
	InputUDP   = "udp"
)

// Output types
const (
	OutputStdout = "stdout"
	OutputNATS   = "nats"
)

// Framing modes
const (
	FramingDelimited = "delimited"
	FramingLength    = "length"
)

// Config is the complete ringpipe configuration
type Config struct {
	Ring    RingConfig    `json:"ring" yaml:"ring"`
	Framing FramingConfig `json:"framing" yaml:"framing"`
	Input   InputConfig   `json:"input" yaml:"input"`
	Output  OutputConfig  `json:"output" yaml:"output"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
}

// RingConfig sizes the byte ring between input and framer
type RingConfig struct {
	Capacity    int   `json:"capacity" yaml:"capacity"`
	Overwrite   bool  `json:"overwrite" yaml:"overwrite"`
	MemoryLimit int64 `json:"memory_limit,omitempty" yaml:"memory_limit,omitempty"` // bytes, 0 = unlimited
}

// FramingConfig selects how frames are cut out of the ring
type FramingConfig struct {
	Mode       string `json:"mode" yaml:"mode"`                                   // delimited, length
	Delimiter  string `json:"delimiter,omitempty" yaml:"delimiter,omitempty"`     // delimited mode only
	HeaderSize int    `json:"header_size,omitempty" yaml:"header_size,omitempty"` // length mode only: 1, 2 or 4
	MaxFrame   int    `json:"max_frame" yaml:"max_frame"`
}

// InputConfig selects the byte source
type InputConfig struct {
	Type     string `json:"type" yaml:"type"`                           // stdin, udp
	Address  string `json:"address,omitempty" yaml:"address,omitempty"` // udp listen address
	ReadSize int    `json:"read_size" yaml:"read_size"`
}

// OutputConfig selects the frame sink
type OutputConfig struct {
	Type string           `json:"type" yaml:"type"` // stdout, nats
	NATS NATSOutputConfig `json:"nats,omitempty" yaml:"nats,omitempty"`
}

// NATSOutputConfig defines the NATS connection and subject frames are published to
type NATSOutputConfig struct {
	URLs          []string `json:"urls,omitempty" yaml:"urls,omitempty"`
	Subject       string   `json:"subject" yaml:"subject"`
	Name          string   `json:"name,omitempty" yaml:"name,omitempty"`
	Username      string   `json:"username,omitempty" yaml:"username,omitempty"`
	Password      string   `json:"password,omitempty" yaml:"password,omitempty"`
	Token         string   `json:"token,omitempty" yaml:"token,omitempty"`
	MaxReconnects int      `json:"max_reconnects,omitempty" yaml:"max_reconnects,omitempty"`
	ReconnectWait Duration `json:"reconnect_wait,omitempty" yaml:"reconnect_wait,omitempty"`
	FlushTimeout  Duration `json:"flush_timeout,omitempty" yaml:"flush_timeout,omitempty"`

	// ConnectAttempts bounds the initial dial; reconnects after that are
	// governed by MaxReconnects.
	ConnectAttempts int `json:"connect_attempts,omitempty" yaml:"connect_attempts,omitempty"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Port    int    `json:"port,omitempty" yaml:"port,omitempty"`
	Path    string `json:"path,omitempty" yaml:"path,omitempty"`
}

// Duration is a time.Duration written as a Go duration string ("2s", "500ms")
// in both JSON and YAML files.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// MarshalJSON implements json.Marshaler
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts a duration string or a number of nanoseconds
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return d.parse(s)
	}

	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("duration must be a string or integer: %s", string(data))
	}
	*d = Duration(n)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	return d.parse(s)
}

func (d *Duration) parse(s string) error {
	if s == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Default returns a configuration that reads newline-delimited frames from
// stdin and writes them to stdout.
func Default() *Config {
	return &Config{
		Ring: RingConfig{
			Capacity: 64 * 1024,
		},
		Framing: FramingConfig{
			Mode:      FramingDelimited,
			Delimiter: "\n",
			MaxFrame:  4096,
		},
		Input: InputConfig{
			Type:     InputStdin,
			ReadSize: 4096,
		},
		Output: OutputConfig{
			Type: OutputStdout,
			NATS: NATSOutputConfig{
				URLs:          []string{"nats://localhost:4222"},
				MaxReconnects: -1,
				ReconnectWait: Duration(2 * time.Second),
				FlushTimeout:  Duration(5 * time.Second),

				ConnectAttempts: 5,
			},
		},
		Metrics: MetricsConfig{
			Port: 9090,
			Path: "/metrics",
		},
	}
}

// ApplyDefaults fills zero-valued fields from Default. Overwrite and
// Metrics.Enabled are left alone since false is meaningful.
func (c *Config) ApplyDefaults() {
	def := Default()

	if c.Ring.Capacity == 0 {
		c.Ring.Capacity = def.Ring.Capacity
	}
	if c.Framing.Mode == "" {
		c.Framing.Mode = def.Framing.Mode
	}
	if c.Framing.Mode == FramingDelimited && c.Framing.Delimiter == "" {
		c.Framing.Delimiter = def.Framing.Delimiter
	}
	if c.Framing.Mode == FramingLength && c.Framing.HeaderSize == 0 {
		c.Framing.HeaderSize = 2
	}
	if c.Framing.MaxFrame == 0 {
		c.Framing.MaxFrame = min(def.Framing.MaxFrame, c.Ring.Capacity-c.Framing.HeaderSize)
	}
	if c.Input.Type == "" {
		c.Input.Type = def.Input.Type
	}
	if c.Input.ReadSize == 0 {
		c.Input.ReadSize = def.Input.ReadSize
	}
	if c.Output.Type == "" {
		c.Output.Type = def.Output.Type
	}
	if len(c.Output.NATS.URLs) == 0 {
		c.Output.NATS.URLs = def.Output.NATS.URLs
	}
	if c.Output.NATS.MaxReconnects == 0 {
		c.Output.NATS.MaxReconnects = def.Output.NATS.MaxReconnects
	}
	if c.Output.NATS.ReconnectWait == 0 {
		c.Output.NATS.ReconnectWait = def.Output.NATS.ReconnectWait
	}
	if c.Output.NATS.FlushTimeout == 0 {
		c.Output.NATS.FlushTimeout = def.Output.NATS.FlushTimeout
	}
	if c.Output.NATS.ConnectAttempts == 0 {
		c.Output.NATS.ConnectAttempts = def.Output.NATS.ConnectAttempts
	}
	if c.Metrics.Port == 0 {
		c.Metrics.Port = def.Metrics.Port
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = def.Metrics.Path
	}
}

// Validate checks if the config is valid
func (c *Config) Validate() error {
	if c.Ring.Capacity <= 0 {
		return invalid("ring.capacity must be positive, got %d", c.Ring.Capacity)
	}
	if c.Ring.MemoryLimit < 0 {
		return invalid("ring.memory_limit cannot be negative")
	}

	switch c.Framing.Mode {
	case FramingDelimited:
		if len(c.Framing.Delimiter) != 1 {
			return invalid("framing.delimiter must be a single byte, got %q", c.Framing.Delimiter)
		}
	case FramingLength:
		switch c.Framing.HeaderSize {
		case 1, 2, 4:
		default:
			return invalid("framing.header_size must be 1, 2 or 4, got %d", c.Framing.HeaderSize)
		}
	default:
		return invalid("unknown framing.mode %q", c.Framing.Mode)
	}

	if c.Framing.MaxFrame <= 0 {
		return invalid("framing.max_frame must be positive, got %d", c.Framing.MaxFrame)
	}
	// A frame that cannot fit in the ring could never be completed.
	if c.Framing.MaxFrame+c.Framing.HeaderSize > c.Ring.Capacity {
		return invalid("framing.max_frame %d plus header does not fit ring.capacity %d",
			c.Framing.MaxFrame, c.Ring.Capacity)
	}

	switch c.Input.Type {
	case InputStdin:
	case InputUDP:
		if c.Input.Address == "" {
			return invalid("input.address is required for udp input")
		}
	default:
		return invalid("unknown input.type %q", c.Input.Type)
	}
	if c.Input.ReadSize <= 0 {
		return invalid("input.read_size must be positive, got %d", c.Input.ReadSize)
	}

	switch c.Output.Type {
	case OutputStdout:
	case OutputNATS:
		if len(c.Output.NATS.URLs) == 0 {
			return invalid("output.nats.urls is required for nats output")
		}
		if !isValidSubject(c.Output.NATS.Subject) {
			return invalid("output.nats.subject %q is not a valid publish subject", c.Output.NATS.Subject)
		}
		if c.Output.NATS.ConnectAttempts < 0 {
			return invalid("output.nats.connect_attempts cannot be negative, got %d", c.Output.NATS.ConnectAttempts)
		}
	default:
		return invalid("unknown output.type %q", c.Output.Type)
	}

	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		return invalid("metrics.port out of range: %d", c.Metrics.Port)
	}

	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errors.ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// isValidSubject checks a NATS publish subject: non-empty dot-separated tokens
// without wildcards or whitespace.
func isValidSubject(s string) bool {
	if s == "" {
		return false
	}
	for _, token := range strings.Split(s, ".") {
		if token == "" || token == "*" || token == ">" {
			return false
		}
		if strings.ContainsAny(token, " \t\r\n*>") {
			return false
		}
	}
	return true
}

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		validation: true,
		envPrefix:  "RINGPIPE",
	}
}

// AddLayer adds a configuration file. Later layers override earlier ones.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables validation after loading
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads configuration from a single file
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load decodes every layer over the defaults, applies environment overrides,
// fills remaining defaults and validates.
func (l *Loader) Load() (*Config, error) {
	cfg := &Config{}

	for _, path := range l.layers {
		if err := decodeFile(path, cfg); err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "Load", fmt.Sprintf("load layer %s", path))
		}
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "Load", "apply environment overrides")
	}

	cfg.ApplyDefaults()

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "Load", "validate")
		}
	}

	return cfg, nil
}

// decodeFile decodes path into cfg, leaving fields absent from the file untouched.
func decodeFile(path string, cfg *Config) error {
	data, format, err := readConfigFile(path)
	if err != nil {
		return err
	}

	switch format {
	case formatYAML:
		root, err := parseYAML(data)
		if err != nil {
			return err
		}
		if root.Kind == 0 {
			return nil // empty document
		}
		if err := root.Decode(cfg); err != nil {
			return fmt.Errorf("parse YAML: %w", err)
		}
	default:
		if err := checkJSONNesting(data); err != nil {
			return err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse JSON: %w", err)
		}
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	lookup := func(suffix string) (string, bool, error) {
		key := l.envPrefix + "_" + suffix
		val := os.Getenv(key)
		if val == "" {
			return "", false, nil
		}
		if err := checkEnvValue(key, val); err != nil {
			return "", false, err
		}
		return val, true, nil
	}

	stringVars := []struct {
		suffix string
		target *string
	}{
		{"INPUT_TYPE", &cfg.Input.Type},
		{"INPUT_ADDRESS", &cfg.Input.Address},
		{"FRAMING_MODE", &cfg.Framing.Mode},
		{"OUTPUT_TYPE", &cfg.Output.Type},
		{"NATS_SUBJECT", &cfg.Output.NATS.Subject},
		{"NATS_USERNAME", &cfg.Output.NATS.Username},
		{"NATS_PASSWORD", &cfg.Output.NATS.Password},
		{"NATS_TOKEN", &cfg.Output.NATS.Token},
	}
	for _, v := range stringVars {
		val, ok, err := lookup(v.suffix)
		if err != nil {
			return err
		}
		if ok {
			*v.target = val
		}
	}

	intVars := []struct {
		suffix string
		target *int
	}{
		{"RING_CAPACITY", &cfg.Ring.Capacity},
		{"FRAMING_MAX_FRAME", &cfg.Framing.MaxFrame},
		{"INPUT_READ_SIZE", &cfg.Input.ReadSize},
		{"METRICS_PORT", &cfg.Metrics.Port},
		{"NATS_CONNECT_ATTEMPTS", &cfg.Output.NATS.ConnectAttempts},
	}
	for _, v := range intVars {
		val, ok, err := lookup(v.suffix)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		parsed, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("%s_%s: %w", l.envPrefix, v.suffix, err)
		}
		*v.target = parsed
	}

	boolVars := []struct {
		suffix string
		target *bool
	}{
		{"RING_OVERWRITE", &cfg.Ring.Overwrite},
		{"METRICS_ENABLED", &cfg.Metrics.Enabled},
	}
	for _, v := range boolVars {
		val, ok, err := lookup(v.suffix)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		parsed, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("%s_%s: %w", l.envPrefix, v.suffix, err)
		}
		*v.target = parsed
	}

	if val, ok, err := lookup("NATS_URLS"); err != nil {
		return err
	} else if ok {
		cfg.Output.NATS.URLs = strings.Split(val, ",")
	}

	return nil
}

// SaveToFile writes the configuration as JSON or YAML, chosen by extension
func (c *Config) SaveToFile(path string) error {
	var (
		data []byte
		err  error
	)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return errors.WrapFatal(err, "Config", "SaveToFile", "marshal")
	}

	return writeConfigFile(path, data)
}

// String returns the configuration as JSON with credentials redacted
func (c *Config) String() string {
	redacted := *c
	if redacted.Output.NATS.Password != "" {
		redacted.Output.NATS.Password = "***"
	}
	if redacted.Output.NATS.Token != "" {
		redacted.Output.NATS.Token = "***"
	}

	data, err := json.Marshal(&redacted)
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
