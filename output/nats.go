package output

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/ringbuf/config"
	"github.com/c360/ringbuf/errors"
	"github.com/c360/ringbuf/pkg/retry"
)

// NATSSink publishes each frame as one message on a fixed subject.
type NATSSink struct {
	cfg        config.NATSOutputConfig
	clientName string
	logger     *slog.Logger

	mu   sync.RWMutex
	conn *nats.Conn

	published  atomic.Int64
	reconnects atomic.Int64
}

// NewNATSSink creates an unconnected sink. Call Connect before Write.
func NewNATSSink(cfg config.NATSOutputConfig, clientName string, logger *slog.Logger) (*NATSSink, error) {
	if len(cfg.URLs) == 0 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: no NATS urls", errors.ErrMissingConfig), "NATSSink", "New", "validate config")
	}
	if cfg.Subject == "" {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: no NATS subject", errors.ErrMissingConfig), "NATSSink", "New", "validate config")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Name != "" {
		clientName = cfg.Name
	}

	return &NATSSink{
		cfg:        cfg,
		clientName: clientName,
		logger:     logger.With("subject", cfg.Subject),
	}, nil
}

// connectionOptions builds NATS connection options from the sink configuration
func (s *NATSSink) connectionOptions() []nats.Option {
	opts := []nats.Option{
		nats.MaxReconnects(s.cfg.MaxReconnects),
		nats.ReconnectWait(s.cfg.ReconnectWait.Std()),
		nats.DisconnectErrHandler(s.handleDisconnect),
		nats.ReconnectHandler(s.handleReconnect),
		nats.ClosedHandler(s.handleClosed),
		nats.ErrorHandler(s.handleError),
	}

	if s.cfg.Username != "" && s.cfg.Password != "" {
		opts = append(opts, nats.UserInfo(s.cfg.Username, s.cfg.Password))
	}
	if s.cfg.Token != "" {
		opts = append(opts, nats.Token(s.cfg.Token))
	}
	if s.clientName != "" {
		opts = append(opts, nats.Name(s.clientName))
	}

	return opts
}

// Connect dials the configured servers once. The dial is abandoned when ctx
// ends; a connection that completes afterwards is closed.
func (s *NATSSink) Connect(ctx context.Context) error {
	conn, err := s.dial(ctx)
	if err != nil {
		return err
	}
	s.install(conn)
	return nil
}

// ConnectWithRetry dials up to ConnectAttempts times with exponential
// backoff. The connect timeout carried by ctx spans all attempts.
func (s *NATSSink) ConnectWithRetry(ctx context.Context) error {
	cfg := retry.Quick()
	cfg.MaxAttempts = s.cfg.ConnectAttempts
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		s.logger.Warn("NATS connect failed, retrying",
			"attempt", attempt, "delay", delay, "error", err)
	}

	conn, err := retry.DoWithResult(ctx, cfg, func() (*nats.Conn, error) {
		return s.dial(ctx)
	})
	if err != nil {
		return err
	}
	s.install(conn)
	return nil
}

func (s *NATSSink) dial(ctx context.Context) (*nats.Conn, error) {
	url := strings.Join(s.cfg.URLs, ",")
	opts := s.connectionOptions()
	if deadline, ok := ctx.Deadline(); ok {
		opts = append(opts, nats.Timeout(time.Until(deadline)))
	}

	type result struct {
		conn *nats.Conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		conn, err := nats.Connect(url, opts...)
		done <- result{conn, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			if isTimeout(r.err) {
				r.err = fmt.Errorf("%w: %w", errors.ErrConnectionTimeout, r.err)
			}
			return nil, errors.WrapTransient(r.err, "NATSSink", "Connect", "establish connection")
		}
		return r.conn, nil
	case <-ctx.Done():
		go func() {
			if r := <-done; r.conn != nil {
				r.conn.Close()
			}
		}()
		err := ctx.Err()
		if stderrors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", errors.ErrConnectionTimeout, err)
		}
		return nil, errors.WrapTransient(err, "NATSSink", "Connect", "establish connection")
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return stderrors.Is(err, nats.ErrTimeout) || (stderrors.As(err, &netErr) && netErr.Timeout())
}

// install replaces any previous connection with conn.
func (s *NATSSink) install(conn *nats.Conn) {
	s.mu.Lock()
	prev := s.conn
	s.conn = conn
	s.mu.Unlock()
	if prev != nil {
		prev.Close()
	}
	s.logger.Info("Connected to NATS", "url", conn.ConnectedUrlRedacted())
}

// Write implements Sink.
func (s *NATSSink) Write(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return errors.WrapTransient(err, "NATSSink", "Write", "publish")
	}

	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()
	if conn == nil {
		return errors.WrapTransient(errors.ErrNoConnection, "NATSSink", "Write", "publish")
	}
	if conn.IsClosed() {
		return errors.WrapTransient(errors.ErrConnectionLost, "NATSSink", "Write", "publish")
	}

	if err := conn.Publish(s.cfg.Subject, frame); err != nil {
		return errors.WrapTransient(err, "NATSSink", "Write", "publish")
	}

	s.published.Add(1)
	return nil
}

// Published returns the number of frames handed to the NATS client.
func (s *NATSSink) Published() int64 {
	return s.published.Load()
}

// Reconnects returns how many times the connection was re-established.
func (s *NATSSink) Reconnects() int64 {
	return s.reconnects.Load()
}

// Close flushes pending publishes, bounded by ctx or the configured flush
// timeout, and closes the connection.
func (s *NATSSink) Close(ctx context.Context) error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	defer conn.Close()

	if _, ok := ctx.Deadline(); !ok && s.cfg.FlushTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.FlushTimeout.Std())
		defer cancel()
	}

	if err := conn.FlushWithContext(ctx); err != nil {
		return errors.WrapTransient(err, "NATSSink", "Close", "flush")
	}

	s.logger.Info("NATS sink closed", "published", s.Published())
	return nil
}

func (s *NATSSink) handleDisconnect(_ *nats.Conn, err error) {
	if err != nil {
		s.logger.Warn("Disconnected from NATS", "error", err)
	}
}

func (s *NATSSink) handleReconnect(conn *nats.Conn) {
	s.reconnects.Add(1)
	s.logger.Info("Reconnected to NATS", "url", conn.ConnectedUrlRedacted())
}

func (s *NATSSink) handleClosed(_ *nats.Conn) {
	s.logger.Debug("NATS connection closed")
}

func (s *NATSSink) handleError(_ *nats.Conn, _ *nats.Subscription, err error) {
	s.logger.Error("NATS error", "error", err)
}
