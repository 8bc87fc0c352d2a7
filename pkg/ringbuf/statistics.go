package ringbuf

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Statistics tracks buffer activity. Counters are element counts except Peeks
// and Overflows, which count calls.
//
// The buffer itself is unsynchronized, but Statistics may be read from another
// goroutine (a metrics reporter, for example) while the owner keeps working.
type Statistics struct {
	// Atomic counters for thread-safe updates
	writes    int64
	reads     int64
	peeks     int64
	overflows int64
	evicted   int64
	rejected  int64

	// Protected by mutex
	mu          sync.RWMutex
	startTime   time.Time
	currentSize int64
	maxSize     int64
	memoryUsage int64 // capacity * element size in bytes
}

// NewStatistics creates a new statistics tracker.
func NewStatistics() *Statistics {
	return &Statistics{
		startTime: time.Now(),
	}
}

// Write records n elements stored by Put.
func (s *Statistics) Write(n int64) {
	atomic.AddInt64(&s.writes, n)
}

// Read records n elements removed by Get.
func (s *Statistics) Read(n int64) {
	atomic.AddInt64(&s.reads, n)
}

// Peek records a successful peek.
func (s *Statistics) Peek() {
	atomic.AddInt64(&s.peeks, 1)
}

// Overflow records a Put call that evicted or rejected elements.
func (s *Statistics) Overflow() {
	atomic.AddInt64(&s.overflows, 1)
}

// Evict records n unread elements overwritten by Put.
func (s *Statistics) Evict(n int64) {
	atomic.AddInt64(&s.evicted, n)
}

// Reject records n elements Put refused because the buffer was full.
func (s *Statistics) Reject(n int64) {
	atomic.AddInt64(&s.rejected, n)
}

// UpdateSize updates the current buffer size.
func (s *Statistics) UpdateSize(size int64) {
	s.mu.Lock()
	s.currentSize = size
	if size > s.maxSize {
		s.maxSize = size
	}
	s.mu.Unlock()
}

// UpdateMemoryUsage updates the storage footprint.
func (s *Statistics) UpdateMemoryUsage(usage int64) {
	s.mu.Lock()
	s.memoryUsage = usage
	s.mu.Unlock()
}

// Writes returns the total number of elements stored.
func (s *Statistics) Writes() int64 {
	return atomic.LoadInt64(&s.writes)
}

// Reads returns the total number of elements removed.
func (s *Statistics) Reads() int64 {
	return atomic.LoadInt64(&s.reads)
}

// Peeks returns the total number of successful peeks.
func (s *Statistics) Peeks() int64 {
	return atomic.LoadInt64(&s.peeks)
}

// Overflows returns the number of Put calls that evicted or rejected elements.
func (s *Statistics) Overflows() int64 {
	return atomic.LoadInt64(&s.overflows)
}

// Evicted returns the number of elements overwritten before being read.
func (s *Statistics) Evicted() int64 {
	return atomic.LoadInt64(&s.evicted)
}

// Rejected returns the number of elements Put refused.
func (s *Statistics) Rejected() int64 {
	return atomic.LoadInt64(&s.rejected)
}

// Drops returns every element lost to the overflow policy, evicted or rejected.
func (s *Statistics) Drops() int64 {
	return s.Evicted() + s.Rejected()
}

// CurrentSize returns the number of elements held after the last transfer.
func (s *Statistics) CurrentSize() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentSize
}

// MaxSize returns the maximum number of elements the buffer has held.
func (s *Statistics) MaxSize() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxSize
}

// MemoryUsage returns the storage footprint in bytes.
func (s *Statistics) MemoryUsage() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.memoryUsage
}

// Throughput returns the average number of elements stored per second.
func (s *Statistics) Throughput() float64 {
	s.mu.RLock()
	elapsed := time.Since(s.startTime)
	s.mu.RUnlock()

	if elapsed == 0 {
		return 0.0
	}

	return float64(s.Writes()) / elapsed.Seconds()
}

// ReadThroughput returns the average number of elements removed per second.
func (s *Statistics) ReadThroughput() float64 {
	s.mu.RLock()
	elapsed := time.Since(s.startTime)
	s.mu.RUnlock()

	if elapsed == 0 {
		return 0.0
	}

	return float64(s.Reads()) / elapsed.Seconds()
}

// DropRate returns the fraction of offered elements that were lost (0.0 to 1.0).
// Offered elements are those stored plus those rejected.
func (s *Statistics) DropRate() float64 {
	offered := s.Writes() + s.Rejected()
	if offered == 0 {
		return 0.0
	}

	return float64(s.Drops()) / float64(offered)
}

// OverflowRate returns overflowing Put calls per stored element.
func (s *Statistics) OverflowRate() float64 {
	writes := s.Writes()
	if writes == 0 {
		return 0.0
	}

	return float64(s.Overflows()) / float64(writes)
}

// Utilization returns the current buffer utilization as a fraction (0.0 to 1.0).
func (s *Statistics) Utilization(capacity int64) float64 {
	if capacity == 0 {
		return 0.0
	}

	return float64(s.CurrentSize()) / float64(capacity)
}

// Uptime returns how long the statistics have been collected.
func (s *Statistics) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Since(s.startTime)
}

// Reset zeroes all counters. Memory usage is kept, since storage does not change.
func (s *Statistics) Reset() {
	atomic.StoreInt64(&s.writes, 0)
	atomic.StoreInt64(&s.reads, 0)
	atomic.StoreInt64(&s.peeks, 0)
	atomic.StoreInt64(&s.overflows, 0)
	atomic.StoreInt64(&s.evicted, 0)
	atomic.StoreInt64(&s.rejected, 0)

	s.mu.Lock()
	s.startTime = time.Now()
	s.maxSize = s.currentSize
	s.mu.Unlock()
}

// StatsSummary is a point-in-time snapshot of Statistics.
type StatsSummary struct {
	Writes         int64         `json:"writes"`
	Reads          int64         `json:"reads"`
	Peeks          int64         `json:"peeks"`
	Overflows      int64         `json:"overflows"`
	Evicted        int64         `json:"evicted"`
	Rejected       int64         `json:"rejected"`
	CurrentSize    int64         `json:"current_size"`
	MaxSize        int64         `json:"max_size"`
	MemoryUsage    int64         `json:"memory_usage"`
	Throughput     float64       `json:"throughput"`
	ReadThroughput float64       `json:"read_throughput"`
	DropRate       float64       `json:"drop_rate"`
	OverflowRate   float64       `json:"overflow_rate"`
	Uptime         time.Duration `json:"uptime"`
}

// Summary returns a snapshot of all statistics.
func (s *Statistics) Summary() StatsSummary {
	return StatsSummary{
		Writes:         s.Writes(),
		Reads:          s.Reads(),
		Peeks:          s.Peeks(),
		Overflows:      s.Overflows(),
		Evicted:        s.Evicted(),
		Rejected:       s.Rejected(),
		CurrentSize:    s.CurrentSize(),
		MaxSize:        s.MaxSize(),
		MemoryUsage:    s.MemoryUsage(),
		Throughput:     s.Throughput(),
		ReadThroughput: s.ReadThroughput(),
		DropRate:       s.DropRate(),
		OverflowRate:   s.OverflowRate(),
		Uptime:         s.Uptime(),
	}
}

// String renders the summary as a single log-friendly line.
func (ss StatsSummary) String() string {
	return fmt.Sprintf("writes=%d reads=%d evicted=%d rejected=%d size=%d/%d drop_rate=%.3f",
		ss.Writes, ss.Reads, ss.Evicted, ss.Rejected, ss.CurrentSize, ss.MaxSize, ss.DropRate)
}
