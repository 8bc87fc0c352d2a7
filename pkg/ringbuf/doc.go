// Package ringbuf provides a fixed-capacity generic FIFO ring buffer with bulk
// put/get, an optional overwrite-oldest overflow policy and non-destructive peeks.
//
// # Quick Start
//
//	rb, err := ringbuf.New[byte](4096, ringbuf.WithOverwrite(false))
//	if err != nil {
//		return err
//	}
//
//	stored := rb.Put(packet)      // min(len(packet), rb.Free())
//	n := rb.PeekRange(0, header)  // inspect without consuming
//	got := rb.Get(frame)          // consume oldest elements
//
// # Overflow Policies
//
// Without overwrite, Put stores what fits and reports the count; the remainder
// belongs to the caller. With overwrite, Put always stores every element and
// the oldest unread elements are evicted to make room.
//
// # Indexing
//
// Peek, At and PeekRange address elements by logical index, where 0 is the
// oldest element. Peek reports presence explicitly; At returns the zero value of
// T for an out-of-range index.
//
// # Concurrency
//
// The buffer performs no internal synchronization. Use it from one goroutine, or
// hold a lock around every call. Statistics returned by Stats may be read
// concurrently with buffer use.
//
// # Observability
//
// Statistics are always collected. WithMetrics additionally exports them to a
// metric.MetricsRegistrar under the ringbuf_buffer_* names with a component label.
//
// # Degraded Buffers
//
// New returns a nil buffer with an error when storage cannot be obtained. A nil
// *RingBuffer, like the zero value, is inert: queries report 0, transfers move
// nothing and peeks report absence.
package ringbuf
