package ringbuf

import (
	"fmt"
	"log/slog"
	"math"
	"unsafe"

	"github.com/c360/ringbuf/errors"
)

// MaxCapacity is the largest capacity New accepts.
const MaxCapacity uint64 = math.MaxUint32

// noCopy makes go vet's copylocks check flag value copies of RingBuffer.
// Two live buffers must never share one storage region; use Clone instead.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// RingBuffer is a bounded FIFO of T backed by one contiguous storage slice.
//
// Occupancy is derived from head, tail and the empty flag; head == tail means
// empty when the flag is set and full otherwise. A nil *RingBuffer and the zero
// value are inert: every query reports 0 and every transfer moves nothing.
//
// A RingBuffer is not safe for concurrent use. Callers sharing one across
// goroutines must serialize every method; only Stats may be read concurrently
// with other calls.
type RingBuffer[T any] struct {
	noCopy noCopy

	storage   []T
	head      int // next slot to write
	tail      int // next slot to read
	empty     bool
	overwrite bool

	stats   *Statistics
	metrics *bufferMetrics
	logger  *slog.Logger
}

// New creates a ring buffer holding up to capacity elements.
//
// Capacity 0 is legal and yields a buffer that is always empty and always full.
// When storage cannot be obtained New returns a nil buffer and an error wrapping
// errors.ErrInvalidCapacity (negative or above MaxCapacity) or
// errors.ErrAllocationFailed (memory limit exceeded, allocation refused). The
// nil buffer is still safe to call.
func New[T any](capacity int, options ...Option) (*RingBuffer[T], error) {
	opts := applyOptions(options...)
	logger := opts.logger

	if capacity < 0 || uint64(capacity) > MaxCapacity {
		logger.Warn("Ring buffer capacity out of range", "capacity", capacity)
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %d not in [0, %d]", errors.ErrInvalidCapacity, capacity, MaxCapacity),
			"RingBuffer", "New", "validate capacity")
	}

	var zero T
	memory := int64(capacity) * int64(unsafe.Sizeof(zero))
	if opts.memoryLimit > 0 && memory > opts.memoryLimit {
		logger.Warn("Ring buffer storage exceeds memory limit",
			"capacity", capacity, "bytes", memory, "limit", opts.memoryLimit)
		return nil, errors.WrapFatal(
			fmt.Errorf("%w: %d bytes exceeds limit of %d", errors.ErrAllocationFailed, memory, opts.memoryLimit),
			"RingBuffer", "New", "allocate storage")
	}

	storage, err := allocate[T](capacity)
	if err != nil {
		logger.Error("Ring buffer storage allocation failed", "capacity", capacity, "error", err)
		return nil, errors.WrapFatal(err, "RingBuffer", "New", "allocate storage")
	}

	var metrics *bufferMetrics
	if opts.metricsReg != nil {
		metrics, err = newBufferMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return nil, errors.WrapInvalid(err, "RingBuffer", "New", "register metrics")
		}
		metrics.updateSize(0, capacity)
	}

	stats := NewStatistics()
	stats.UpdateMemoryUsage(memory)

	logger.Debug("Ring buffer created",
		"capacity", capacity,
		"overwrite", opts.overwrite,
		"bytes", memory)

	return &RingBuffer[T]{
		storage:   storage,
		empty:     true,
		overwrite: opts.overwrite,
		stats:     stats,
		metrics:   metrics,
		logger:    logger,
	}, nil
}

// allocate turns a refused slice allocation into an error instead of a panic.
func allocate[T any](capacity int) (storage []T, err error) {
	defer func() {
		if r := recover(); r != nil {
			storage = nil
			err = fmt.Errorf("%w: %v", errors.ErrAllocationFailed, r)
		}
	}()
	return make([]T, capacity), nil
}

func (rb *RingBuffer[T]) valid() bool {
	return rb != nil && rb.storage != nil
}

func (rb *RingBuffer[T]) isEmpty() bool {
	return rb.head == rb.tail && rb.empty
}

func (rb *RingBuffer[T]) isFull() bool {
	return rb.head == rb.tail && !rb.empty
}

// contiguous returns the length of the run of cells starting at start that ends
// at limit, or at the physical end of storage when limit is not ahead of start.
// Put uses it with (head, tail) and Get with (tail, head).
func (rb *RingBuffer[T]) contiguous(start, limit int) int {
	if start < limit {
		return limit - start
	}
	return len(rb.storage) - start
}

// advance moves index forward by n cells, wrapping to 0 exactly at capacity.
// n never exceeds the run returned by contiguous.
func (rb *RingBuffer[T]) advance(index, n int) int {
	index += n
	if index == len(rb.storage) {
		return 0
	}
	return index
}

// physical maps a logical offset from tail (offset < Used) to a storage index.
func (rb *RingBuffer[T]) physical(offset int) int {
	i := rb.tail + offset
	if i >= len(rb.storage) {
		i -= len(rb.storage)
	}
	return i
}

// Capacity returns the configured capacity, or 0 for an inert buffer.
func (rb *RingBuffer[T]) Capacity() int {
	if !rb.valid() {
		return 0
	}
	return len(rb.storage)
}

// Used returns the number of elements currently held.
func (rb *RingBuffer[T]) Used() int {
	if !rb.valid() {
		return 0
	}

	switch {
	case rb.head > rb.tail:
		return rb.head - rb.tail
	case rb.head < rb.tail:
		return len(rb.storage) - rb.tail + rb.head
	case !rb.empty:
		return len(rb.storage)
	default:
		return 0
	}
}

// Free returns the number of elements that can be put without overflow.
func (rb *RingBuffer[T]) Free() int {
	return rb.Capacity() - rb.Used()
}

// IsEmpty reports whether Used is 0.
func (rb *RingBuffer[T]) IsEmpty() bool {
	return rb.Used() == 0
}

// IsFull reports whether Free is 0. A capacity-0 buffer is both empty and full.
func (rb *RingBuffer[T]) IsFull() bool {
	return rb.Free() == 0
}

// Overwrite reports whether Put evicts the oldest elements when full.
func (rb *RingBuffer[T]) Overwrite() bool {
	return rb != nil && rb.overwrite
}

// Clear discards the logical content. Storage cells are left as they are.
func (rb *RingBuffer[T]) Clear() {
	if !rb.valid() {
		return
	}

	discarded := rb.Used()
	rb.head = 0
	rb.tail = 0
	rb.empty = true

	if rb.stats != nil {
		rb.stats.UpdateSize(0)
	}
	if rb.metrics != nil {
		rb.metrics.updateSize(0, len(rb.storage))
	}
	if rb.logger != nil {
		rb.logger.Debug("Ring buffer cleared", "discarded", discarded)
	}
}

// Put appends the elements of data in order and returns how many were stored.
//
// Without overwrite Put stops once the buffer is full, so the result is
// min(len(data), Free()). With overwrite every element is stored; each chunk
// written into a full buffer advances tail along with head, evicting the oldest
// elements. Each copy covers the longest contiguous run of cells before tail or
// the physical end of storage.
func (rb *RingBuffer[T]) Put(data []T) int {
	if !rb.valid() || len(rb.storage) == 0 || len(data) == 0 {
		return 0
	}

	requested := len(data)
	written := 0
	evicted := 0

	for len(data) > 0 {
		full := rb.isFull()
		if full && !rb.overwrite {
			break
		}

		n := min(len(data), rb.contiguous(rb.head, rb.tail))
		copy(rb.storage[rb.head:rb.head+n], data[:n])

		if full {
			rb.tail = rb.advance(rb.tail, n)
			evicted += n
		}
		rb.head = rb.advance(rb.head, n)
		rb.empty = false

		data = data[n:]
		written += n
	}

	rb.recordPut(written, evicted, requested-written)
	return written
}

// Get moves up to len(out) of the oldest elements into out and returns how
// many were moved.
func (rb *RingBuffer[T]) Get(out []T) int {
	if !rb.valid() {
		return 0
	}

	read := 0
	for len(out) > 0 && !rb.isEmpty() {
		n := min(len(out), rb.contiguous(rb.tail, rb.head))
		copy(out[:n], rb.storage[rb.tail:rb.tail+n])

		rb.tail = rb.advance(rb.tail, n)
		if rb.tail == rb.head {
			rb.empty = true
		}

		out = out[n:]
		read += n
	}

	if read > 0 {
		rb.recordGet(read)
	}
	return read
}

// Peek returns the element at logical index i counted from the oldest element,
// without removing it. The second result is false when i is out of range.
func (rb *RingBuffer[T]) Peek(i int) (T, bool) {
	var zero T
	if i < 0 || i >= rb.Used() {
		return zero, false
	}

	rb.recordPeek()
	return rb.storage[rb.physical(i)], true
}

// At is Peek without the presence flag: out-of-range indices yield the zero
// value of T. Check Used first when a zero element is meaningful.
func (rb *RingBuffer[T]) At(i int) T {
	v, _ := rb.Peek(i)
	return v
}

// PeekRange copies up to len(out) elements starting at logical offset into out,
// without removing them, and returns the number copied. It returns 0 when
// offset is not below Used.
func (rb *RingBuffer[T]) PeekRange(offset int, out []T) int {
	used := rb.Used()
	if offset < 0 || offset >= used || len(out) == 0 {
		return 0
	}

	n := min(len(out), used-offset)
	start := rb.physical(offset)

	first := copy(out[:n], rb.storage[start:min(start+n, len(rb.storage))])
	copy(out[first:n], rb.storage[:n-first])

	rb.recordPeek()
	return n
}

// Clone returns an independent deep copy with its own storage, indices and
// statistics. Metrics registration is not carried over. Cloning an inert buffer
// returns nil.
func (rb *RingBuffer[T]) Clone() *RingBuffer[T] {
	if !rb.valid() {
		return nil
	}

	clone := &RingBuffer[T]{
		storage:   make([]T, len(rb.storage)),
		head:      rb.head,
		tail:      rb.tail,
		empty:     rb.empty,
		overwrite: rb.overwrite,
		stats:     NewStatistics(),
		logger:    rb.logger,
	}
	copy(clone.storage, rb.storage)

	var zero T
	clone.stats.UpdateMemoryUsage(int64(len(clone.storage)) * int64(unsafe.Sizeof(zero)))
	clone.stats.UpdateSize(int64(clone.Used()))

	return clone
}

// Stats returns the buffer statistics, or nil for an inert buffer.
func (rb *RingBuffer[T]) Stats() *Statistics {
	if rb == nil {
		return nil
	}
	return rb.stats
}

func (rb *RingBuffer[T]) recordPut(written, evicted, rejected int) {
	used := rb.Used()

	if rb.stats != nil {
		rb.stats.Write(int64(written))
		if evicted > 0 {
			rb.stats.Evict(int64(evicted))
		}
		if rejected > 0 {
			rb.stats.Reject(int64(rejected))
		}
		if evicted > 0 || rejected > 0 {
			rb.stats.Overflow()
		}
		rb.stats.UpdateSize(int64(used))
	}

	if rb.metrics != nil {
		rb.metrics.recordPut(written, evicted, rejected, used, len(rb.storage))
	}
}

func (rb *RingBuffer[T]) recordGet(read int) {
	used := rb.Used()

	if rb.stats != nil {
		rb.stats.Read(int64(read))
		rb.stats.UpdateSize(int64(used))
	}

	if rb.metrics != nil {
		rb.metrics.recordGet(read, used, len(rb.storage))
	}
}

func (rb *RingBuffer[T]) recordPeek() {
	if rb.stats != nil {
		rb.stats.Peek()
	}
	if rb.metrics != nil {
		rb.metrics.recordPeek()
	}
}
