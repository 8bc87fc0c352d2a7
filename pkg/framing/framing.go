// Package framing cuts frames out of a byte ring without consuming partial
// frames. Splitters inspect the ring with peeks and only Get once a whole frame
// is present, so bytes arriving in arbitrary chunks are reassembled in place.
package framing

import (
	stderrors "errors"
	"fmt"

	"github.com/c360/ringbuf/errors"
)

// ErrIncomplete reports that the ring does not yet hold a whole frame.
// It is not a failure: put more bytes and call Next again.
var ErrIncomplete = stderrors.New("incomplete frame")

// Ring is the part of *ringbuf.RingBuffer[byte] a splitter needs.
type Ring interface {
	Used() int
	Peek(i int) (byte, bool)
	PeekRange(offset int, out []byte) int
	Get(out []byte) int
}

// Splitter extracts the next frame from a ring.
//
// Next returns a newly allocated frame, ErrIncomplete when more input is
// needed, or an error wrapping errors.ErrFrameTooLarge after discarding the
// offending bytes so the caller can continue.
type Splitter interface {
	Next() ([]byte, error)
}

// discard drops n bytes from the head of the ring using scratch as the sink.
func discard(ring Ring, n int, scratch []byte) {
	for n > 0 {
		got := ring.Get(scratch[:min(n, len(scratch))])
		if got == 0 {
			return
		}
		n -= got
	}
}

func tooLarge(component, detail string) error {
	return errors.WrapInvalid(
		fmt.Errorf("%w: %s", errors.ErrFrameTooLarge, detail),
		component, "Next", "extract frame")
}
