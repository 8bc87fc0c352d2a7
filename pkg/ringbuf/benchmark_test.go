package ringbuf

import (
	"fmt"
	"testing"
)

func BenchmarkPutGet(b *testing.B) {
	for _, capacity := range []int{64, 4096} {
		for _, chunk := range []int{1, 16, 256} {
			b.Run(fmt.Sprintf("cap_%d_chunk_%d", capacity, chunk), func(b *testing.B) {
				rb, err := New[byte](capacity)
				if err != nil {
					b.Fatal(err)
				}
				in := make([]byte, chunk)
				out := make([]byte, chunk)

				b.SetBytes(int64(chunk))
				b.ResetTimer()
				for i := 0; i < b.N; i++ {
					rb.Put(in)
					rb.Get(out)
				}
			})
		}
	}
}

func BenchmarkPutOverwrite(b *testing.B) {
	rb, err := New[byte](1024, WithOverwrite(true))
	if err != nil {
		b.Fatal(err)
	}
	in := make([]byte, 300)

	b.SetBytes(int64(len(in)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rb.Put(in)
	}
}

func BenchmarkPeekRange(b *testing.B) {
	rb, err := New[byte](1024)
	if err != nil {
		b.Fatal(err)
	}
	rb.Put(make([]byte, 700))
	rb.Get(make([]byte, 600))
	rb.Put(make([]byte, 700))
	out := make([]byte, 512)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rb.PeekRange(100, out)
	}
}
