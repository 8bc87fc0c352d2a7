package pipeline

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/ringbuf/errors"
	"github.com/c360/ringbuf/health"
	"github.com/c360/ringbuf/metric"
	"github.com/c360/ringbuf/pkg/framing"
	"github.com/c360/ringbuf/pkg/ringbuf"
)

// recordingSink keeps every frame it receives.
type recordingSink struct {
	mu     sync.Mutex
	frames []string
	fail   func(frame string) error
	closed bool
}

func (s *recordingSink) Write(_ context.Context, frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		if err := s.fail(string(frame)); err != nil {
			return err
		}
	}
	s.frames = append(s.frames, string(frame))
	return nil
}

func (s *recordingSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordingSink) got() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.frames...)
}

// chunkReader returns one chunk per Read, then io.EOF.
type chunkReader struct {
	chunks []string
	closed bool
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	r.chunks[0] = r.chunks[0][n:]
	if r.chunks[0] == "" {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}

func (r *chunkReader) Close() error {
	r.closed = true
	return nil
}

// blockingReader blocks until closed.
type blockingReader struct {
	once   sync.Once
	closed chan struct{}
}

func newBlockingReader() *blockingReader {
	return &blockingReader{closed: make(chan struct{})}
}

func (r *blockingReader) Read([]byte) (int, error) {
	<-r.closed
	return 0, io.EOF
}

func (r *blockingReader) Close() error {
	r.once.Do(func() { close(r.closed) })
	return nil
}

func newPump(t *testing.T, src io.ReadCloser, capacity int, overwrite bool, maxFrame int, sink *recordingSink, opts ...Option) (*Pump, *ringbuf.RingBuffer[byte]) {
	t.Helper()
	ring, err := ringbuf.New[byte](capacity, ringbuf.WithOverwrite(overwrite))
	require.NoError(t, err)

	pump, err := NewPump(src, ring, framing.NewDelimited(ring, '\n', maxFrame), sink, opts...)
	require.NoError(t, err)
	return pump, ring
}

func TestNewPump_RequiresDependencies(t *testing.T) {
	_, err := NewPump(nil, nil, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestPump_DeliversFramesAcrossChunks(t *testing.T) {
	src := &chunkReader{chunks: []string{"alpha\nbe", "ta\n", "gam", "ma\ndelta\n"}}
	sink := &recordingSink{}
	pump, ring := newPump(t, src, 64, false, 32, sink)

	require.NoError(t, pump.Run(context.Background()))

	assert.Equal(t, []string{"alpha", "beta", "gamma", "delta"}, sink.got())
	assert.True(t, ring.IsEmpty())
	assert.True(t, src.closed)

	stats := pump.Stats()
	assert.Equal(t, int64(23), stats.BytesIn)
	assert.Equal(t, int64(4), stats.Frames)
	assert.Zero(t, stats.BytesRejected)
}

func TestPump_SmallReadSize(t *testing.T) {
	src := io.NopCloser(strings.NewReader("one\ntwo\nthree\n"))
	sink := &recordingSink{}
	pump, _ := newPump(t, src, 16, false, 8, sink, WithReadSize(3))

	require.NoError(t, pump.Run(context.Background()))
	assert.Equal(t, []string{"one", "two", "three"}, sink.got())
}

func TestPump_RetriesRejectedBytes(t *testing.T) {
	// A 30 byte read into an 8 byte ring only fits by draining in between.
	src := &chunkReader{chunks: []string{"ab\ncd\nef\ngh\nij\nkl\nmn\nop\nqr\nst\n"}}
	sink := &recordingSink{}
	pump, _ := newPump(t, src, 8, false, 8, sink, WithReadSize(64))

	require.NoError(t, pump.Run(context.Background()))

	assert.Equal(t, []string{"ab", "cd", "ef", "gh", "ij", "kl", "mn", "op", "qr", "st"}, sink.got())
	assert.Zero(t, pump.Stats().BytesRejected)
	assert.Equal(t, int64(30), pump.Stats().BytesIn)
}

func TestPump_OversizedFrames(t *testing.T) {
	src := &chunkReader{chunks: []string{"this line is far too long\nok\n"}}
	sink := &recordingSink{}
	registry := metric.NewMetricsRegistry()
	pump, _ := newPump(t, src, 8, false, 8, sink,
		WithReadSize(64), WithMetrics(registry.CoreMetrics()))

	require.NoError(t, pump.Run(context.Background()))

	got := sink.got()
	require.NotEmpty(t, got)
	assert.Equal(t, "ok", got[len(got)-1])
	assert.Positive(t, pump.Stats().FrameErrors)

	m := registry.CoreMetrics()
	assert.Equal(t, float64(pump.Stats().FrameErrors),
		testutil.ToFloat64(m.FrameErrors.WithLabelValues("too_large")))
	assert.Equal(t, float64(pump.Stats().BytesIn), testutil.ToFloat64(m.BytesIn))
	assert.Equal(t, float64(len(got)), testutil.ToFloat64(m.FramesOut))
}

func TestPump_OverwriteKeepsNewest(t *testing.T) {
	src := &chunkReader{chunks: []string{"old-data-lost-", "x\ny\n"}}
	sink := &recordingSink{}
	pump, _ := newPump(t, src, 8, true, 8, sink, WithReadSize(64))

	require.NoError(t, pump.Run(context.Background()))

	got := sink.got()
	require.Len(t, got, 2)
	assert.Equal(t, "y", got[1])
	assert.Zero(t, pump.Stats().BytesRejected)
}

func TestPump_IncompleteTailDiscarded(t *testing.T) {
	src := io.NopCloser(strings.NewReader("done\npartial"))
	sink := &recordingSink{}
	pump, ring := newPump(t, src, 32, false, 16, sink)

	require.NoError(t, pump.Run(context.Background()))
	assert.Equal(t, []string{"done"}, sink.got())
	assert.Equal(t, len("partial"), ring.Used())
}

func TestPump_TransientSinkErrorsDropFrame(t *testing.T) {
	src := io.NopCloser(strings.NewReader("a\nb\nc\n"))
	sink := &recordingSink{fail: func(frame string) error {
		if frame == "b" {
			return errors.WrapTransient(errors.ErrConnectionLost, "test", "Write", "publish")
		}
		return nil
	}}
	pump, _ := newPump(t, src, 32, false, 16, sink)

	require.NoError(t, pump.Run(context.Background()))
	assert.Equal(t, []string{"a", "c"}, sink.got())
	assert.Equal(t, int64(1), pump.Stats().SinkErrors)
	assert.Equal(t, int64(2), pump.Stats().Frames)
}

func TestPump_FatalSinkErrorStops(t *testing.T) {
	src := io.NopCloser(strings.NewReader("a\nb\n"))
	sink := &recordingSink{fail: func(string) error {
		return errors.WrapFatal(errors.ErrMissingConfig, "test", "Write", "publish")
	}}
	pump, _ := newPump(t, src, 32, false, 16, sink)

	err := pump.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}

func TestPump_ReadError(t *testing.T) {
	src := io.NopCloser(&failingReader{})
	pump, _ := newPump(t, src, 32, false, 16, &recordingSink{})

	err := pump.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device gone")
	assert.True(t, errors.IsTransient(err))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, stderrors.New("device gone")
}

func TestPump_ContextCancel(t *testing.T) {
	src := newBlockingReader()
	pump, _ := newPump(t, src, 32, false, 16, &recordingSink{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- pump.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	select {
	case <-src.closed:
	case <-time.After(time.Second):
		t.Fatal("source was not closed")
	}
}

func subStatus(t *testing.T, status health.Status, name string) health.Status {
	t.Helper()
	for _, sub := range status.SubStatuses {
		if sub.Component == name {
			return sub
		}
	}
	t.Fatalf("no %q sub-status", name)
	return health.Status{}
}

func TestPump_Health(t *testing.T) {
	t.Run("not started", func(t *testing.T) {
		pump, _ := newPump(t, newBlockingReader(), 32, false, 16, &recordingSink{})

		status := pump.Health()
		assert.Equal(t, "pipeline", status.Component)
		assert.True(t, status.IsDegraded())
		assert.Equal(t, "not started", subStatus(t, status, "input").Message)
	})

	t.Run("input exhausted", func(t *testing.T) {
		src := io.NopCloser(strings.NewReader("a\nb\n"))
		pump, _ := newPump(t, src, 32, false, 16, &recordingSink{})
		require.NoError(t, pump.Run(context.Background()))

		status := pump.Health()
		assert.True(t, status.IsHealthy())
		require.NotNil(t, status.Metrics)
		assert.Equal(t, int64(2), status.Metrics.FramesOut)
		assert.False(t, status.Metrics.LastActivity.IsZero())
		assert.Equal(t, "0/32 bytes buffered", subStatus(t, status, "ring").Message)
	})

	t.Run("ring dropping input", func(t *testing.T) {
		// max frame above capacity lets the ring fill without a frame
		src := &chunkReader{chunks: []string{"abcdefghijkl"}}
		pump, _ := newPump(t, src, 8, false, 16, &recordingSink{}, WithReadSize(64))
		require.NoError(t, pump.Run(context.Background()))

		assert.Equal(t, int64(4), pump.Stats().BytesRejected)
		status := pump.Health()
		assert.True(t, status.IsDegraded())
		assert.True(t, subStatus(t, status, "ring").IsDegraded())
	})

	t.Run("last delivery failed", func(t *testing.T) {
		src := io.NopCloser(strings.NewReader("a\nb\n"))
		sink := &recordingSink{fail: func(frame string) error {
			if frame == "b" {
				return errors.WrapTransient(errors.ErrConnectionLost, "test", "Write", "publish")
			}
			return nil
		}}
		pump, _ := newPump(t, src, 32, false, 16, sink)
		require.NoError(t, pump.Run(context.Background()))

		status := pump.Health()
		assert.True(t, status.IsDegraded())
		assert.True(t, subStatus(t, status, "sink").IsDegraded())
		assert.Equal(t, int64(1), status.Metrics.ErrorCount)
	})

	t.Run("read error", func(t *testing.T) {
		pump, _ := newPump(t, io.NopCloser(&failingReader{}), 32, false, 16, &recordingSink{})
		require.Error(t, pump.Run(context.Background()))

		status := pump.Health()
		assert.True(t, status.IsUnhealthy())
		assert.Contains(t, subStatus(t, status, "input").Message, "device gone")
	})
}

func TestPump_RunOnce(t *testing.T) {
	src := newBlockingReader()
	pump, _ := newPump(t, src, 32, false, 16, &recordingSink{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- pump.Run(ctx) }()

	require.Eventually(t, func() bool {
		for _, sub := range pump.Health().SubStatuses {
			if sub.Component == "input" {
				return sub.Message == "reading"
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	err := pump.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrAlreadyStarted)
	assert.True(t, errors.IsInvalid(err))

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	err = pump.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrAlreadyStopped)
	assert.True(t, errors.IsInvalid(err))
}

func TestPump_DropWarningsThrottled(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	src := io.NopCloser(strings.NewReader(strings.Repeat("this line is far too long\n", 20)))
	pump, _ := newPump(t, src, 8, false, 8, &recordingSink{}, WithReadSize(64), WithLogger(logger))
	require.NoError(t, pump.Run(context.Background()))

	assert.GreaterOrEqual(t, pump.Stats().FrameErrors, int64(20))
	assert.LessOrEqual(t, strings.Count(logs.String(), "Discarded oversized frame"), 5)
}
