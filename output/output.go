// Package output provides the sinks ringpipe delivers frames to.
package output

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/c360/ringbuf/config"
	"github.com/c360/ringbuf/errors"
)

// Sink receives complete frames. Write must not retain frame after returning.
type Sink interface {
	Write(ctx context.Context, frame []byte) error
	Close(ctx context.Context) error
}

// Open returns the sink selected by cfg.Type. NATS sinks are connected, with
// backoff between attempts, before Open returns.
func Open(ctx context.Context, cfg config.OutputConfig, clientName string, logger *slog.Logger) (Sink, error) {
	switch cfg.Type {
	case config.OutputStdout:
		return NewWriterSink(os.Stdout), nil
	case config.OutputNATS:
		sink, err := NewNATSSink(cfg.NATS, clientName, logger)
		if err != nil {
			return nil, err
		}
		if err := sink.ConnectWithRetry(ctx); err != nil {
			return nil, err
		}
		return sink, nil
	default:
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: unknown output type %q", errors.ErrInvalidConfig, cfg.Type),
			"output", "Open", "select sink")
	}
}

// WriterSink writes each frame followed by a newline to an io.Writer.
type WriterSink struct {
	mu     sync.Mutex
	w      *bufio.Writer
	frames int64
}

// NewWriterSink creates a sink writing to w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: bufio.NewWriter(w)}
}

// Write implements Sink. Output is flushed after every frame.
func (s *WriterSink) Write(_ context.Context, frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.w.Write(frame); err != nil {
		return errors.WrapTransient(err, "WriterSink", "Write", "write frame")
	}
	if err := s.w.WriteByte('\n'); err != nil {
		return errors.WrapTransient(err, "WriterSink", "Write", "write terminator")
	}
	if err := s.w.Flush(); err != nil {
		return errors.WrapTransient(err, "WriterSink", "Write", "flush")
	}

	s.frames++
	return nil
}

// Frames returns the number of frames written.
func (s *WriterSink) Frames() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Close implements Sink. The underlying writer is not closed.
func (s *WriterSink) Close(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.w.Flush(); err != nil {
		return errors.WrapTransient(err, "WriterSink", "Close", "flush")
	}
	return nil
}
