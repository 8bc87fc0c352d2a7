package framing

import (
	"encoding/binary"
	"fmt"

	"github.com/c360/ringbuf/errors"
)

// LengthPrefixed reads frames carrying a big-endian unsigned length header of
// 1, 2 or 4 bytes followed by that many payload bytes. The header is not part
// of the returned frame.
type LengthPrefixed struct {
	ring       Ring
	headerSize int
	maxFrame   int
	header     [4]byte
	scratch    []byte
}

// NewLengthPrefixed returns a splitter for length-prefixed frames. A declared
// length above maxFrame discards the header and reports ErrFrameTooLarge; the
// payload bytes that follow are then parsed as the next header, so streams
// that can carry oversized frames should resynchronise at a higher layer.
func NewLengthPrefixed(ring Ring, headerSize, maxFrame int) (*LengthPrefixed, error) {
	switch headerSize {
	case 1, 2, 4:
	default:
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: length header size %d must be 1, 2 or 4", errors.ErrInvalidConfig, headerSize),
			"LengthPrefixed", "New", "validate header size")
	}

	return &LengthPrefixed{
		ring:       ring,
		headerSize: headerSize,
		maxFrame:   maxFrame,
		scratch:    make([]byte, 4),
	}, nil
}

// declared decodes the peeked header. The length stays unsigned so a 4 byte
// header cannot wrap negative where int is 32 bits.
func (l *LengthPrefixed) declared() (uint64, bool) {
	if l.headerSize == 1 {
		b, ok := l.ring.Peek(0)
		return uint64(b), ok
	}

	h := l.header[:l.headerSize]
	if l.ring.PeekRange(0, h) != l.headerSize {
		return 0, false
	}
	if l.headerSize == 2 {
		return uint64(binary.BigEndian.Uint16(h)), true
	}
	return uint64(binary.BigEndian.Uint32(h)), true
}

// Next implements Splitter.
func (l *LengthPrefixed) Next() ([]byte, error) {
	used := l.ring.Used()
	if used < l.headerSize {
		return nil, ErrIncomplete
	}

	declared, ok := l.declared()
	if !ok {
		return nil, ErrIncomplete
	}

	if l.maxFrame < 0 || declared > uint64(l.maxFrame) {
		discard(l.ring, l.headerSize, l.scratch)
		return nil, tooLarge("LengthPrefixed", fmt.Sprintf("declared length %d exceeds %d", declared, l.maxFrame))
	}

	size := int(declared) // bounded by maxFrame
	if used < l.headerSize+size {
		return nil, ErrIncomplete
	}

	discard(l.ring, l.headerSize, l.scratch)
	frame := make([]byte, size)
	l.ring.Get(frame)
	return frame, nil
}
