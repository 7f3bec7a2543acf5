//go:build rnnoise

package denoise

/*
#cgo pkg-config: rnnoise
#include <rnnoise.h>
*/
import "C"

import (
	"errors"
	"unsafe"

	"github.com/rs/zerolog"
)

// Available reports whether a real suppressor is compiled in.
const Available = true

// RNNoise expects samples in the int16 range, the pipeline uses [-1, 1].
const pcmScale = 32768

// RNNoise holds one DenoiseState. Frames whose length is not FrameSize are
// left untouched.
type RNNoise struct {
	st  *C.DenoiseState
	buf [FrameSize]C.float
}

// New allocates an RNNoise state with the built-in model.
func New(log zerolog.Logger) (Suppressor, error) {
	st := C.rnnoise_create(nil)
	if st == nil {
		return nil, errors.New("rnnoise: create failed")
	}
	log.Info().Int("frame_size", int(C.rnnoise_get_frame_size())).Msg("noise suppression enabled")
	return &RNNoise{st: st}, nil
}

func (r *RNNoise) Process(frame []float32) {
	if r.st == nil || len(frame) != FrameSize {
		return
	}
	for i, s := range frame {
		r.buf[i] = C.float(s * pcmScale)
	}
	p := (*C.float)(unsafe.Pointer(&r.buf[0]))
	C.rnnoise_process_frame(r.st, p, p)
	for i := range frame {
		frame[i] = float32(r.buf[i]) / pcmScale
	}
}

// Close releases the DenoiseState. It is safe to call more than once.
func (r *RNNoise) Close() error {
	if r.st != nil {
		C.rnnoise_destroy(r.st)
		r.st = nil
	}
	return nil
}
