package denoise

import (
	"testing"

	"github.com/matryer/is"
	"github.com/rs/zerolog"
)

func TestPassthroughLeavesFrameUnchanged(t *testing.T) {
	is := is.New(t)
	frame := []float32{0.1, -0.2, 0.3}
	var s Suppressor = Passthrough{}
	s.Process(frame)
	is.Equal(frame, []float32{0.1, -0.2, 0.3})
	is.NoErr(s.Close())
}

func TestNewProcessesFullFrames(t *testing.T) {
	is := is.New(t)
	s, err := New(zerolog.Nop())
	is.NoErr(err)
	defer s.Close()

	frame := make([]float32, FrameSize)
	s.Process(frame)
	for _, v := range frame {
		is.True(v >= -1 && v <= 1) // silence stays silence-ish
	}

	short := []float32{0.5, 0.5}
	s.Process(short) // wrong length is ignored
	is.Equal(short, []float32{0.5, 0.5})
}
