package framing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/ringbuf/errors"
	"github.com/c360/ringbuf/pkg/ringbuf"
)

func newRing(t *testing.T, capacity int) *ringbuf.RingBuffer[byte] {
	t.Helper()
	rb, err := ringbuf.New[byte](capacity)
	require.NoError(t, err)
	return rb
}

// collect drains every complete frame currently in the ring.
func collect(t *testing.T, s Splitter) ([]string, []error) {
	t.Helper()
	var frames []string
	var errs []error
	for {
		frame, err := s.Next()
		if err == ErrIncomplete {
			return frames, errs
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		frames = append(frames, string(frame))
	}
}

func TestDelimited_Frames(t *testing.T) {
	tests := []struct {
		name   string
		chunks []string
		want   []string
		rest   int
	}{
		{"single", []string{"hello\n"}, []string{"hello"}, 0},
		{"several in one chunk", []string{"a\nbb\nccc\n"}, []string{"a", "bb", "ccc"}, 0},
		{"split across chunks", []string{"hel", "lo\nwor", "ld\n"}, []string{"hello", "world"}, 0},
		{"trailing partial", []string{"one\ntw"}, []string{"one"}, 2},
		{"empty frame", []string{"\n\n"}, []string{"", ""}, 0},
		{"no delimiter yet", []string{"abc"}, nil, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ring := newRing(t, 64)
			s := NewDelimited(ring, '\n', 32)

			var got []string
			for _, chunk := range tt.chunks {
				require.Equal(t, len(chunk), ring.Put([]byte(chunk)))
				frames, errs := collect(t, s)
				require.Empty(t, errs)
				got = append(got, frames...)
			}

			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.rest, ring.Used())
		})
	}
}

func TestDelimited_Wraparound(t *testing.T) {
	ring := newRing(t, 8)
	s := NewDelimited(ring, ';', 8)

	var got []string
	for _, chunk := range []string{"ab;cd", "e;fgh;", "ij;k", "lmn;"} {
		require.Equal(t, len(chunk), ring.Put([]byte(chunk)))
		frames, errs := collect(t, s)
		require.Empty(t, errs)
		got = append(got, frames...)
	}

	assert.Equal(t, []string{"ab", "cde", "fgh", "ij", "klmn"}, got)
	assert.True(t, ring.IsEmpty())
}

func TestDelimited_TooLarge(t *testing.T) {
	ring := newRing(t, 16)
	s := NewDelimited(ring, '\n', 4)

	ring.Put([]byte("abcdefg\nok\n"))

	_, err := s.Next()
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrFrameTooLarge)
	assert.True(t, errors.IsInvalid(err))
	assert.Equal(t, 7, ring.Used(), "exactly maxFrame bytes discarded")

	frame, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, "efg", string(frame))

	frame, err = s.Next()
	require.NoError(t, err)
	assert.Equal(t, "ok", string(frame))

	_, err = s.Next()
	assert.Equal(t, ErrIncomplete, err)
}

func TestDelimited_FullRingMakesProgress(t *testing.T) {
	ring := newRing(t, 8)
	s := NewDelimited(ring, '\n', 8)

	require.Equal(t, 8, ring.Put([]byte("xxxxxxxx")))
	require.True(t, ring.IsFull())

	_, err := s.Next()
	assert.ErrorIs(t, err, errors.ErrFrameTooLarge)
	assert.True(t, ring.IsEmpty())
}

func TestDelimited_ExactLimit(t *testing.T) {
	ring := newRing(t, 16)
	s := NewDelimited(ring, '\n', 4)

	ring.Put([]byte("abc\n"))
	frame, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, "abc", string(frame))
}

func TestNewLengthPrefixed_HeaderSize(t *testing.T) {
	ring := newRing(t, 8)

	for _, size := range []int{1, 2, 4} {
		_, err := NewLengthPrefixed(ring, size, 4)
		assert.NoError(t, err, "header size %d", size)
	}

	for _, size := range []int{0, 3, 8} {
		_, err := NewLengthPrefixed(ring, size, 4)
		require.Error(t, err, "header size %d", size)
		assert.ErrorIs(t, err, errors.ErrInvalidConfig)
	}
}

func TestLengthPrefixed_Frames(t *testing.T) {
	tests := []struct {
		name       string
		headerSize int
		stream     []byte
		want       []string
	}{
		{"one byte header", 1, []byte("\x03abc\x02de"), []string{"abc", "de"}},
		{"two byte header", 2, []byte("\x00\x05hello\x00\x00\x00\x01!"), []string{"hello", "", "!"}},
		{"four byte header", 4, []byte("\x00\x00\x00\x04ring"), []string{"ring"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ring := newRing(t, 32)
			s, err := NewLengthPrefixed(ring, tt.headerSize, 16)
			require.NoError(t, err)

			var got []string
			// Feed one byte at a time so every partial state is visited.
			for _, b := range tt.stream {
				require.Equal(t, 1, ring.Put([]byte{b}))
				frames, errs := collect(t, s)
				require.Empty(t, errs)
				got = append(got, frames...)
			}

			assert.Equal(t, tt.want, got)
			assert.True(t, ring.IsEmpty())
		})
	}
}

func TestLengthPrefixed_Wraparound(t *testing.T) {
	ring := newRing(t, 6)
	s, err := NewLengthPrefixed(ring, 2, 4)
	require.NoError(t, err)

	var got []string
	for _, chunk := range []string{"\x00\x03ab", "c", "\x00\x04wx", "yz"} {
		require.Equal(t, len(chunk), ring.Put([]byte(chunk)))
		frames, errs := collect(t, s)
		require.Empty(t, errs)
		got = append(got, frames...)
	}

	assert.Equal(t, []string{"abc", "wxyz"}, got)
	assert.True(t, ring.IsEmpty())
}

func TestLengthPrefixed_TooLarge(t *testing.T) {
	ring := newRing(t, 32)
	s, err := NewLengthPrefixed(ring, 2, 8)
	require.NoError(t, err)

	ring.Put([]byte("\x01\x00"))
	_, err = s.Next()
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrFrameTooLarge)
	assert.Contains(t, err.Error(), "declared length 256")
	assert.True(t, ring.IsEmpty(), "header discarded")

	ring.Put([]byte("\x00\x02ok"))
	frame, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, "ok", string(frame))
}

func TestLengthPrefixed_HighBitHeader(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"top bit set", "\x80\x00\x00\x01", "declared length 2147483649 exceeds 32"},
		{"all ones", "\xff\xff\xff\xff", "declared length 4294967295 exceeds 32"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ring := newRing(t, 64)
			s, err := NewLengthPrefixed(ring, 4, 32)
			require.NoError(t, err)

			ring.Put([]byte(tt.header + "x"))
			frame, err := s.Next()
			require.Error(t, err)
			assert.Nil(t, frame)
			assert.ErrorIs(t, err, errors.ErrFrameTooLarge)
			assert.Contains(t, err.Error(), tt.want)
			assert.Equal(t, 1, ring.Used(), "only the header is discarded")
		})
	}
}
