package sound

import (
	"errors"
	"fmt"
	"io"

	"github.com/mewkiz/flac"
)

func decodeFLAC(path string) (*Decoded, error) {
	stream, err := flac.Open(path)
	if err != nil {
		return nil, fmt.Errorf("flac open: %w", err)
	}
	defer stream.Close()

	info := stream.Info
	channels := int(info.NChannels)
	if channels == 0 || info.BitsPerSample == 0 {
		return nil, fmt.Errorf("%w: flac stream without channels or bit depth", ErrUnsupportedFormat)
	}
	scale := float32(int64(1) << (info.BitsPerSample - 1))

	samples := make([]float32, 0, int(info.NSamples)*channels)
	for {
		frame, err := stream.ParseNext()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("flac frame: %w", err)
		}
		n := len(frame.Subframes[0].Samples)
		for i := 0; i < n; i++ {
			for ch := 0; ch < channels; ch++ {
				samples = append(samples, float32(frame.Subframes[ch].Samples[i])/scale)
			}
		}
	}

	return &Decoded{
		Samples:    samples,
		Channels:   channels,
		SampleRate: int(info.SampleRate),
	}, nil
}
