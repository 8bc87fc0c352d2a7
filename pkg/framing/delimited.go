package framing

import (
	"bytes"
	"fmt"
)

// Delimited splits on a single delimiter byte. The delimiter is consumed but
// not included in the returned frame.
type Delimited struct {
	ring     Ring
	delim    byte
	maxFrame int
	window   []byte
}

// NewDelimited returns a splitter for frames terminated by delim. maxFrame
// bounds a frame including its delimiter; when maxFrame bytes are buffered
// without a delimiter they are discarded and Next reports ErrFrameTooLarge.
// maxFrame must not exceed the ring capacity or a full ring could stall.
func NewDelimited(ring Ring, delim byte, maxFrame int) *Delimited {
	return &Delimited{
		ring:     ring,
		delim:    delim,
		maxFrame: max(maxFrame, 1),
		window:   make([]byte, max(maxFrame, 1)),
	}
}

// Next implements Splitter.
func (d *Delimited) Next() ([]byte, error) {
	used := d.ring.Used()
	if used == 0 {
		return nil, ErrIncomplete
	}

	n := d.ring.PeekRange(0, d.window[:min(used, d.maxFrame)])
	idx := bytes.IndexByte(d.window[:n], d.delim)
	if idx < 0 {
		if used < d.maxFrame {
			return nil, ErrIncomplete
		}
		discard(d.ring, d.maxFrame, d.window)
		return nil, tooLarge("Delimited", fmt.Sprintf("no delimiter within %d bytes", d.maxFrame))
	}

	frame := make([]byte, idx)
	d.ring.Get(frame)
	d.ring.Get(d.window[:1])
	return frame, nil
}
