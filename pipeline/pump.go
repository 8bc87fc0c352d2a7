// Package pipeline moves bytes from an input through a ring buffer and a
// framing splitter to an output sink.
package pipeline

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/c360/ringbuf/errors"
	"github.com/c360/ringbuf/health"
	"github.com/c360/ringbuf/metric"
	"github.com/c360/ringbuf/output"
	"github.com/c360/ringbuf/pkg/framing"
	"github.com/c360/ringbuf/pkg/ringbuf"
)

// DefaultReadSize is the input read size when none is configured.
const DefaultReadSize = 4096

// Option configures a Pump.
type Option func(*Pump)

// WithReadSize sets the size of each input read.
func WithReadSize(n int) Option {
	return func(p *Pump) {
		if n > 0 {
			p.readSize = n
		}
	}
}

// WithMetrics records pump activity in the core pipeline metrics.
func WithMetrics(m *metric.Metrics) Option {
	return func(p *Pump) {
		p.metrics = m
	}
}

// WithLogger sets the pump logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pump) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// Stats is a snapshot of pump counters.
type Stats struct {
	BytesIn       int64 `json:"bytes_in"`
	BytesRejected int64 `json:"bytes_rejected"`
	Frames        int64 `json:"frames"`
	FrameErrors   int64 `json:"frame_errors"`
	SinkErrors    int64 `json:"sink_errors"`
}

// Pump reads input in chunks, stores them in the ring and delivers every
// complete frame to the sink after each chunk. Without overwrite, bytes the
// ring refuses are retried after draining; they are only dropped when the ring
// is full and holds no extractable frame.
type Pump struct {
	src      io.ReadCloser
	ring     *ringbuf.RingBuffer[byte]
	splitter framing.Splitter
	sink     output.Sink
	readSize int
	metrics  *metric.Metrics
	logger   *slog.Logger
	dropLog  *rate.Limiter // throttles per-drop warnings

	bytesIn       atomic.Int64
	bytesRejected atomic.Int64
	frames        atomic.Int64
	frameErrors   atomic.Int64
	sinkErrors    atomic.Int64

	// Health state. Everything here is safe to read while Run is active.
	dropping     atomic.Bool // last chunk was not fully stored
	sinkFailing  atomic.Bool // last delivery failed
	lastActivity atomic.Int64
	mu           sync.Mutex
	state        runState
	started      time.Time
	runErr       error
}

type runState int

const (
	stateIdle runState = iota
	stateRunning
	stateStopped
)

// NewPump wires src, ring, splitter and sink together. The pump takes
// ownership of src and closes it when Run returns. The read goroutine exits
// only once src.Read returns, so src.Close must unblock a pending Read; the
// sources in package input do.
func NewPump(
	src io.ReadCloser,
	ring *ringbuf.RingBuffer[byte],
	splitter framing.Splitter,
	sink output.Sink,
	opts ...Option,
) (*Pump, error) {
	if src == nil || ring == nil || splitter == nil || sink == nil {
		return nil, errors.WrapInvalid(
			stderrors.New("source, ring, splitter and sink are required"),
			"Pump", "New", "validate dependencies")
	}

	p := &Pump{
		src:      src,
		ring:     ring,
		splitter: splitter,
		sink:     sink,
		readSize: DefaultReadSize,
		logger:   slog.Default(),
		dropLog:  rate.NewLimiter(rate.Every(time.Second), 5),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

type chunk struct {
	buf []byte
	n   int
	err error
}

// Run pumps until the input reports io.EOF, returning nil after the final
// drain, or until ctx is done, returning ctx.Err(). Read and fatal sink
// errors end the run with that error.
func (p *Pump) Run(ctx context.Context) error {
	p.mu.Lock()
	switch p.state {
	case stateRunning:
		p.mu.Unlock()
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Pump", "Run", "start")
	case stateStopped:
		p.mu.Unlock()
		return errors.WrapInvalid(errors.ErrAlreadyStopped, "Pump", "Run", "start")
	}
	p.state = stateRunning
	p.started = time.Now()
	p.mu.Unlock()

	err := p.run(ctx)

	p.mu.Lock()
	p.state = stateStopped
	p.runErr = err
	p.mu.Unlock()
	return err
}

func (p *Pump) run(ctx context.Context) error {
	chunks := make(chan chunk)
	free := make(chan []byte, 2)
	free <- make([]byte, p.readSize)
	free <- make([]byte, p.readSize)

	done := make(chan struct{})
	defer close(done)
	defer func() { _ = p.src.Close() }()

	go p.readLoop(free, chunks, done)

	p.logger.Info("Pump started", "read_size", p.readSize, "capacity", p.ring.Capacity(),
		"overwrite", p.ring.Overwrite())

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Pump stopped", "reason", ctx.Err(), "stats", p.Stats())
			return ctx.Err()

		case c := <-chunks:
			if c.n > 0 {
				if err := p.ingest(ctx, c.buf[:c.n]); err != nil {
					return err
				}
			}
			free <- c.buf

			if c.err == nil {
				continue
			}
			if stderrors.Is(c.err, io.EOF) {
				if pending := p.ring.Used(); pending > 0 {
					p.logger.Warn("Discarding incomplete frame at end of input", "bytes", pending)
				}
				p.logger.Info("Input exhausted", "stats", p.Stats())
				return nil
			}
			return errors.WrapTransient(c.err, "Pump", "Run", "read input")
		}
	}
}

// readLoop owns the blocking reads so Run can react to ctx while a read is
// pending. Buffers circulate between free and chunks.
func (p *Pump) readLoop(free <-chan []byte, chunks chan<- chunk, done <-chan struct{}) {
	for {
		var buf []byte
		select {
		case buf = <-free:
		case <-done:
			return
		}

		n, err := p.src.Read(buf)

		select {
		case chunks <- chunk{buf: buf, n: n, err: err}:
		case <-done:
			return
		}
		if err != nil {
			return
		}
	}
}

// ingest stores data in the ring, draining frames as it goes.
func (p *Pump) ingest(ctx context.Context, data []byte) error {
	for len(data) > 0 {
		n := p.ring.Put(data)
		data = data[n:]
		if n > 0 {
			p.bytesIn.Add(int64(n))
			if p.metrics != nil {
				p.metrics.RecordBytesIn(n)
			}
		}

		if err := p.drain(ctx); err != nil {
			return err
		}

		if len(data) > 0 && p.ring.IsFull() {
			p.reject(len(data))
			return nil
		}
	}
	p.dropping.Store(false)
	return nil
}

func (p *Pump) reject(n int) {
	p.dropping.Store(true)
	p.bytesRejected.Add(int64(n))
	if p.metrics != nil {
		p.metrics.RecordBytesRejected(n)
	}
	if p.dropLog.Allow() {
		p.logger.Warn("Ring full with no complete frame, dropping input",
			"bytes", n, "used", p.ring.Used(), "total_rejected", p.bytesRejected.Load())
	}
}

// drain delivers every complete frame currently in the ring.
func (p *Pump) drain(ctx context.Context) error {
	for {
		frame, err := p.splitter.Next()
		switch {
		case err == nil:
			if err := p.deliver(ctx, frame); err != nil {
				return err
			}

		case stderrors.Is(err, framing.ErrIncomplete):
			return nil

		case stderrors.Is(err, errors.ErrFrameTooLarge):
			p.frameErrors.Add(1)
			if p.metrics != nil {
				p.metrics.RecordFrameError("too_large")
			}
			if p.dropLog.Allow() {
				p.logger.Warn("Discarded oversized frame", "error", err)
			}

		default:
			p.frameErrors.Add(1)
			if p.metrics != nil {
				p.metrics.RecordFrameError("other")
			}
			return errors.WrapFatal(err, "Pump", "drain", "extract frame")
		}
	}
}

func (p *Pump) deliver(ctx context.Context, frame []byte) error {
	if err := p.sink.Write(ctx, frame); err != nil {
		p.sinkFailing.Store(true)
		p.sinkErrors.Add(1)
		if p.metrics != nil {
			p.metrics.RecordSinkError()
		}
		if errors.IsFatal(err) || ctx.Err() != nil {
			return err
		}
		if p.dropLog.Allow() {
			p.logger.Warn("Dropping frame after sink error", "size", len(frame), "error", err)
		}
		return nil
	}

	p.sinkFailing.Store(false)
	p.lastActivity.Store(time.Now().UnixNano())
	p.frames.Add(1)
	if p.metrics != nil {
		p.metrics.RecordFrame(len(frame))
	}
	return nil
}

// Stats returns a snapshot of the pump counters.
func (p *Pump) Stats() Stats {
	return Stats{
		BytesIn:       p.bytesIn.Load(),
		BytesRejected: p.bytesRejected.Load(),
		Frames:        p.frames.Load(),
		FrameErrors:   p.frameErrors.Load(),
		SinkErrors:    p.sinkErrors.Load(),
	}
}

// Health reports the input, ring and sink state of the pump. It is safe to
// call from another goroutine while Run is active.
func (p *Pump) Health() health.Status {
	p.mu.Lock()
	state, started, runErr := p.state, p.started, p.runErr
	p.mu.Unlock()

	var input health.Status
	switch {
	case state == stateIdle:
		input = health.NewDegraded("input", "not started")
	case state == stateRunning:
		input = health.NewHealthy("input", "reading")
	case runErr == nil:
		input = health.NewHealthy("input", "input exhausted")
	case stderrors.Is(runErr, context.Canceled):
		input = health.NewUnhealthy("input", "stopped")
	default:
		input = health.FromError("input", runErr)
	}

	var ring health.Status
	capacity := p.ring.Capacity()
	used := int64(0)
	if rs := p.ring.Stats(); rs != nil {
		used = rs.CurrentSize()
	}
	occupancy := fmt.Sprintf("%d/%d bytes buffered", used, capacity)
	if p.dropping.Load() {
		ring = health.NewDegraded("ring", "full with no complete frame, dropping input: "+occupancy)
	} else {
		ring = health.NewHealthy("ring", occupancy)
	}

	sink := health.NewHealthy("sink", "delivering")
	if p.sinkFailing.Load() {
		sink = health.NewDegraded("sink", "last delivery failed")
	}

	metrics := &health.Metrics{
		ErrorCount: p.frameErrors.Load() + p.sinkErrors.Load(),
		FramesOut:  p.frames.Load(),
	}
	if !started.IsZero() {
		metrics.Uptime = time.Since(started)
	}
	if last := p.lastActivity.Load(); last > 0 {
		metrics.LastActivity = time.Unix(0, last)
	}

	return health.Aggregate("pipeline", []health.Status{input, ring, sink}).WithMetrics(metrics)
}
