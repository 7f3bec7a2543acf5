package sound

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
)

// decodeMP3 reads the whole stream. go-mp3 always produces 16-bit
// little-endian stereo.
func decodeMP3(r io.Reader) (*Decoded, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("mp3 decoder: %w", err)
	}

	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("mp3 read: %w", err)
	}

	samples := make([]float32, len(raw)/2)
	for i := range samples {
		samples[i] = float32(int16(binary.LittleEndian.Uint16(raw[i*2:]))) / 32768
	}

	return &Decoded{
		Samples:    samples,
		Channels:   2,
		SampleRate: dec.SampleRate(),
	}, nil
}
