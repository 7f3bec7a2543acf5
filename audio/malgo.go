package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/gen2brain/malgo"
)

// MalgoDevice is a miniaudio duplex device using 32-bit float samples.
type MalgoDevice struct {
	config Config
	ctx    *malgo.AllocatedContext
	device *malgo.Device

	// Conversion buffers reused across periods. Only the device thread
	// touches them while the device runs.
	in, out []float32

	mu      sync.Mutex
	started bool
}

func NewMalgoDevice(config Config) *MalgoDevice {
	return &MalgoDevice{
		config: config,
		in:     make([]float32, config.FramesPerBuffer),
		out:    make([]float32, config.FramesPerBuffer),
	}
}

func (d *MalgoDevice) Initialize() error {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("malgo init context: %w", err)
	}
	d.ctx = ctx
	return nil
}

func (d *MalgoDevice) Terminate() {
	if d.ctx == nil {
		return
	}
	d.ctx.Uninit()
	d.ctx.Free()
	d.ctx = nil
}

func (d *MalgoDevice) Open(cb Callback) error {
	if d.ctx == nil {
		return fmt.Errorf("malgo: context not initialized")
	}
	cfg := malgo.DefaultDeviceConfig(malgo.Duplex)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = uint32(d.config.InputChannels)
	cfg.Playback.Format = malgo.FormatF32
	cfg.Playback.Channels = uint32(d.config.OutputChannels)
	cfg.SampleRate = uint32(d.config.SampleRate)
	cfg.PeriodSizeInFrames = uint32(d.config.FramesPerBuffer)

	callbacks := malgo.DeviceCallbacks{
		Data: func(outBytes, inBytes []byte, frameCount uint32) {
			d.period(cb, outBytes, inBytes, int(frameCount))
		},
	}

	dev, err := malgo.InitDevice(d.ctx.Context, cfg, callbacks)
	if err != nil {
		return fmt.Errorf("malgo init device: %w", err)
	}
	d.device = dev
	return nil
}

func (d *MalgoDevice) period(cb Callback, outBytes, inBytes []byte, frames int) {
	if cap(d.out) < frames {
		d.out = make([]float32, frames)
		d.in = make([]float32, frames)
	}
	out := d.out[:frames]

	var in []float32
	if n := min(len(inBytes)/4, frames); n > 0 {
		in = bytesToFloats(d.in[:n], inBytes)
	}
	cb(in, out)
	floatsToBytes(outBytes, out)
}

func (d *MalgoDevice) Start() error {
	if d.device == nil {
		return ErrNotOpen
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.device.Start(); err != nil {
		return err
	}
	d.started = true
	return nil
}

func (d *MalgoDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.device == nil || !d.started {
		return nil
	}
	d.started = false
	return d.device.Stop()
}

func (d *MalgoDevice) Close() error {
	if d.device != nil {
		d.device.Uninit()
		d.device = nil
	}
	return nil
}

// bytesToFloats decodes native-endian float32 samples from src into dst.
func bytesToFloats(dst []float32, src []byte) []float32 {
	for i := range dst {
		dst[i] = math.Float32frombits(binary.NativeEndian.Uint32(src[4*i:]))
	}
	return dst
}

// floatsToBytes encodes src into dst as native-endian float32, stopping at
// whichever runs out first.
func floatsToBytes(dst []byte, src []float32) {
	n := min(len(dst)/4, len(src))
	for i := 0; i < n; i++ {
		binary.NativeEndian.PutUint32(dst[4*i:], math.Float32bits(src[i]))
	}
}
