// Package audio opens a full-duplex mono device and drives a Callback once
// per hardware period with the captured input and the buffer to play.
package audio

import (
	"errors"
	"fmt"
)

// Callback handles one period. in holds the captured samples and may be nil
// when the device delivered no input; out must be filled completely. The
// callback runs on the device's realtime thread and must not block.
type Callback func(in, out []float32)

// Device is a duplex audio endpoint. The lifecycle is
// Initialize, Open, Start, Stop, Close, Terminate.
type Device interface {
	// Initialize prepares the host audio system.
	Initialize() error

	// Terminate releases the host audio system.
	Terminate()

	// Open opens the stream with cb as its processing callback.
	Open(cb Callback) error

	// Start begins invoking the callback.
	Start() error

	// Stop halts the callback. No callback runs after Stop returns.
	Stop() error

	// Close closes the stream.
	Close() error
}

type Config struct {
	SampleRate      float64
	FramesPerBuffer int
	InputChannels   int
	OutputChannels  int
}

var (
	// ErrNotOpen is returned by Start before a successful Open.
	ErrNotOpen = errors.New("stream not opened")
	// ErrUnknownBackend is returned by New for an unsupported backend name.
	ErrUnknownBackend = errors.New("unknown audio backend")
)

// New returns the device for backend ("portaudio" or "malgo").
func New(backend string, cfg Config) (Device, error) {
	if cfg.InputChannels != 1 || cfg.OutputChannels != 1 {
		return nil, fmt.Errorf("audio: only mono duplex is supported, got %d in / %d out",
			cfg.InputChannels, cfg.OutputChannels)
	}
	switch backend {
	case "portaudio":
		return NewPortAudioDevice(cfg), nil
	case "malgo":
		return NewMalgoDevice(cfg), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
}

func GetDefaultConfig() Config {
	return Config{
		SampleRate:      48000,
		FramesPerBuffer: 480,
		InputChannels:   1,
		OutputChannels:  1,
	}
}
