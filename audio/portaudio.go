package audio

import (
	"github.com/gordonklaus/portaudio"
)

// PortAudioDevice opens the default input and output as one callback stream.
type PortAudioDevice struct {
	stream *portaudio.Stream
	config Config
}

func NewPortAudioDevice(config Config) *PortAudioDevice {
	return &PortAudioDevice{config: config}
}

func (d *PortAudioDevice) Initialize() error {
	return portaudio.Initialize()
}

func (d *PortAudioDevice) Terminate() {
	portaudio.Terminate()
}

func (d *PortAudioDevice) Open(cb Callback) error {
	stream, err := portaudio.OpenDefaultStream(
		d.config.InputChannels,
		d.config.OutputChannels,
		d.config.SampleRate,
		d.config.FramesPerBuffer,
		func(in, out []float32) { cb(in, out) },
	)
	if err != nil {
		return err
	}
	d.stream = stream
	return nil
}

func (d *PortAudioDevice) Start() error {
	if d.stream == nil {
		return ErrNotOpen
	}
	return d.stream.Start()
}

func (d *PortAudioDevice) Stop() error {
	if d.stream == nil {
		return nil
	}
	return d.stream.Stop()
}

func (d *PortAudioDevice) Close() error {
	if d.stream != nil {
		err := d.stream.Close()
		d.stream = nil
		return err
	}
	return nil
}
