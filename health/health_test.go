package health

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregate(t *testing.T) {
	tests := []struct {
		name string
		subs []Status
		want string
	}{
		{"empty", nil, StateHealthy},
		{"all healthy", []Status{NewHealthy("a", ""), NewHealthy("b", "")}, StateHealthy},
		{"one degraded", []Status{NewHealthy("a", ""), NewDegraded("b", "")}, StateDegraded},
		{"unhealthy wins", []Status{NewDegraded("a", ""), NewUnhealthy("b", ""), NewHealthy("c", "")}, StateUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Aggregate("system", tt.subs)
			assert.Equal(t, "system", got.Component)
			assert.Equal(t, tt.want, got.Status)
			assert.Equal(t, tt.want == StateHealthy, got.Healthy)
			assert.Len(t, got.SubStatuses, len(tt.subs))
		})
	}
}

func TestAggregate_CopiesSubStatuses(t *testing.T) {
	subs := []Status{NewHealthy("a", "")}
	got := Aggregate("system", subs)

	subs[0].Status = StateUnhealthy
	assert.Equal(t, StateHealthy, got.SubStatuses[0].Status)
}

func TestFromError(t *testing.T) {
	ok := FromError("output", nil)
	assert.True(t, ok.IsHealthy())

	failed := FromError("output", errors.New("dial nats://user:pw@10.0.0.5:4222 failed"))
	assert.True(t, failed.IsUnhealthy())
	assert.False(t, failed.Healthy)
	assert.Equal(t, "dial [URL] failed", failed.Message)
}

func TestSanitizeErrorMessage(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"path", "failed to open /etc/ringpipe/config.yaml", "failed to open [PATH]"},
		{"nats url", "cannot connect to nats://localhost:4222", "cannot connect to [URL]"},
		{"ip and port", "read udp 192.168.1.20:9000: refused", "read udp [IP][PORT]: refused"},
		{"credential", "auth failed token=abc123", "auth failed [REDACTED]"},
		{"plain", "ring full", "ring full"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeErrorMessage(tt.input))
		})
	}
}

func TestMonitor_UpdateAndGet(t *testing.T) {
	monitor := NewMonitor()
	assert.Equal(t, 0, monitor.Count())

	monitor.Update("output", Status{Component: "wrong", Status: StateHealthy})

	got, ok := monitor.Get("output")
	require.True(t, ok)
	assert.Equal(t, "output", got.Component)
	assert.False(t, got.Timestamp.IsZero())

	_, ok = monitor.Get("missing")
	assert.False(t, ok)
}

func TestMonitor_CheckReplacesStatus(t *testing.T) {
	monitor := NewMonitor()
	monitor.Update("pipeline", NewHealthy("pipeline", "static"))

	calls := 0
	monitor.Register("pipeline", func() Status {
		calls++
		return NewDegraded("", "dropping input")
	})
	assert.Equal(t, 1, monitor.Count())

	got, ok := monitor.Get("pipeline")
	require.True(t, ok)
	assert.Equal(t, "pipeline", got.Component)
	assert.True(t, got.IsDegraded())
	assert.Equal(t, 1, calls)

	monitor.Update("pipeline", NewHealthy("pipeline", "static"))
	got, _ = monitor.Get("pipeline")
	assert.True(t, got.IsHealthy())
	assert.Equal(t, 1, calls, "check removed by Update")

	monitor.Register("pipeline", nil)
	got, _ = monitor.Get("pipeline")
	assert.True(t, got.IsHealthy(), "nil check ignored")
}

func TestMonitor_AggregateHealth(t *testing.T) {
	monitor := NewMonitor()
	monitor.Update("output", NewHealthy("output", "connected"))
	monitor.Register("pipeline", func() Status { return NewUnhealthy("pipeline", "stopped") })
	monitor.Update("input", NewHealthy("input", "listening"))

	got := monitor.AggregateHealth("ringpipe")
	assert.True(t, got.IsUnhealthy())
	require.Len(t, got.SubStatuses, 3)
	assert.Equal(t, "input", got.SubStatuses[0].Component)
	assert.Equal(t, "output", got.SubStatuses[1].Component)
	assert.Equal(t, "pipeline", got.SubStatuses[2].Component)

	monitor.Remove("pipeline")
	assert.True(t, monitor.AggregateHealth("ringpipe").IsHealthy())
}

func TestMonitor_Concurrent(t *testing.T) {
	monitor := NewMonitor()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				monitor.Update("output", NewHealthy("output", ""))
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = monitor.AggregateHealth("ringpipe")
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, monitor.Count())
}

func TestStatus_WithMetrics(t *testing.T) {
	base := NewHealthy("pipeline", "")
	withMetrics := base.WithMetrics(&Metrics{Uptime: time.Second, FramesOut: 3})

	assert.Nil(t, base.Metrics)
	require.NotNil(t, withMetrics.Metrics)
	assert.Equal(t, int64(3), withMetrics.Metrics.FramesOut)
}
