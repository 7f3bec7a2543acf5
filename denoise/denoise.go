// Package denoise wraps the per-frame noise suppressor. The RNNoise backend
// is compiled in with the "rnnoise" build tag; without it frames pass through
// untouched.
package denoise

// FrameSize is the only frame length RNNoise accepts (10 ms at 48 kHz).
const FrameSize = 480

// Suppressor denoises one frame in place. Implementations keep state between
// frames and are driven from a single goroutine.
type Suppressor interface {
	Process(frame []float32)
	Close() error
}

// Passthrough leaves frames unchanged.
type Passthrough struct{}

func (Passthrough) Process([]float32) {}

func (Passthrough) Close() error { return nil }
