package relay

import (
	"sync"
	"testing"

	"github.com/matryer/is"
)

func seq(start, n int) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = float32(start + i)
	}
	return s
}

func TestPopRequiresWholeChunk(t *testing.T) {
	is := is.New(t)
	b := New(10, 0)

	b.Push(seq(0, 9))
	chunk, ok := b.TryPopChunk(10)
	is.True(!ok)
	is.True(chunk == nil)
	is.Equal(b.Len(), 9) // a failed pop leaves the buffer unchanged

	b.Push(seq(9, 1))
	chunk, ok = b.TryPopChunk(10)
	is.True(ok)
	is.Equal(chunk, seq(0, 10))
	is.Equal(b.Len(), 0)
}

func TestFIFOOrderAcrossFrames(t *testing.T) {
	is := is.New(t)
	b := New(4800, 0)

	for f := 0; f < 25; f++ {
		b.Push(seq(f*480, 480))
	}
	for c := 0; c < 2; c++ {
		chunk, ok := b.TryPopChunk(4800)
		is.True(ok)
		is.Equal(len(chunk), 4800)
		is.Equal(chunk[0], float32(c*4800))
		is.Equal(chunk[4799], float32(c*4800+4799))
	}
	is.Equal(b.Len(), 5*480)
	_, ok := b.TryPopChunk(4800)
	is.True(!ok)
}

func TestPopIsACopy(t *testing.T) {
	is := is.New(t)
	b := New(2, 0)
	b.Push([]float32{1, 2})
	chunk, _ := b.TryPopChunk(2)
	b.Push([]float32{7, 8})
	is.Equal(chunk, []float32{1, 2})
}

func TestPushCopiesInput(t *testing.T) {
	is := is.New(t)
	b := New(2, 0)
	in := []float32{1, 2}
	b.Push(in)
	in[0] = 99
	chunk, _ := b.TryPopChunk(2)
	is.Equal(chunk, []float32{1, 2})
}

func TestInvalidChunkSize(t *testing.T) {
	is := is.New(t)
	b := New(4, 0)
	b.Push(seq(0, 4))
	_, ok := b.TryPopChunk(0)
	is.True(!ok)
	is.Equal(b.Len(), 4)
}

func TestUnboundedNeverDrops(t *testing.T) {
	is := is.New(t)
	b := New(10, 0)
	for i := 0; i < 1000; i++ {
		is.Equal(b.Push(seq(i*10, 10)), 0)
	}
	is.Equal(b.Len(), 10000)
	is.Equal(b.Dropped(), uint64(0))
}

func TestLimitDropsOldestChunks(t *testing.T) {
	is := is.New(t)
	b := New(10, 30)

	is.Equal(b.Push(seq(0, 30)), 0)
	is.Equal(b.Push(seq(30, 5)), 1) // 35 > 30: oldest chunk goes
	is.Equal(b.Len(), 25)
	is.Equal(b.Dropped(), uint64(1))

	chunk, ok := b.TryPopChunk(10)
	is.True(ok)
	is.Equal(chunk[0], float32(10)) // samples 0..9 were dropped

	is.Equal(b.Push(seq(100, 40)), 3)
	is.True(b.Len() <= 30)
	is.Equal(b.Dropped(), uint64(4))
}

func TestDrainedBufferAcceptsNewSamples(t *testing.T) {
	is := is.New(t)
	b := New(4, 0)
	b.Push(seq(0, 4))
	b.TryPopChunk(4)
	is.Equal(b.Len(), 0)
	b.Push(seq(4, 4))
	chunk, ok := b.TryPopChunk(4)
	is.True(ok)
	is.Equal(chunk, seq(4, 4))
}

func TestConcurrentProducerConsumer(t *testing.T) {
	is := is.New(t)
	const (
		frame  = 48
		chunk  = 480
		frames = 1000
	)
	b := New(chunk, 0)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for f := 0; f < frames; f++ {
			b.Push(seq(f*frame, frame))
		}
	}()

	var got []float32
	for len(got) < frames*frame {
		if c, ok := b.TryPopChunk(chunk); ok {
			got = append(got, c...)
		}
	}
	wg.Wait()

	for i, v := range got {
		if v != float32(i) {
			t.Fatalf("sample %d = %v, want %d", i, v, i)
		}
	}
	is.Equal(b.Len(), 0)
}
