package sound

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/go-audio/wav"
)

const (
	wavFormatPCM        = 1
	wavFormatIEEEFloat  = 3
	wavFormatExtensible = 0xFFFE
)

// decodeWAV reads integer PCM through go-audio/wav. IEEE float data is read
// from the data chunk directly, bounded by what the file actually holds.
func decodeWAV(r io.ReadSeeker) (*Decoded, error) {
	d := wav.NewDecoder(r)
	d.ReadInfo()
	if err := d.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedFormat, err)
	}
	if d.NumChans == 0 {
		return nil, fmt.Errorf("%w: zero channels", ErrUnsupportedFormat)
	}

	var (
		samples []float32
		err     error
	)
	switch {
	case d.WavAudioFormat == wavFormatIEEEFloat:
		samples, err = wavFloatSamples(d)
	case d.WavAudioFormat == wavFormatPCM, d.WavAudioFormat == wavFormatExtensible:
		samples, err = wavIntSamples(d)
	default:
		err = fmt.Errorf("%w: wav format %d with %d bits", ErrUnsupportedFormat, d.WavAudioFormat, d.BitDepth)
	}
	if err != nil {
		return nil, err
	}

	return &Decoded{
		Samples:    samples,
		Channels:   int(d.NumChans),
		SampleRate: int(d.SampleRate),
	}, nil
}

func wavIntSamples(d *wav.Decoder) ([]float32, error) {
	switch d.BitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: %d-bit integer wav", ErrUnsupportedFormat, d.BitDepth)
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("wav data: %w", err)
	}

	scale := float32(int64(1) << (d.BitDepth - 1))
	out := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		if d.BitDepth == 8 {
			v -= 128 // 8-bit wav is unsigned
		}
		out[i] = float32(v) / scale
	}
	return out, nil
}

func wavFloatSamples(d *wav.Decoder) ([]float32, error) {
	width := int(d.BitDepth) / 8
	if width != 4 && width != 8 {
		return nil, fmt.Errorf("%w: %d-bit float wav", ErrUnsupportedFormat, d.BitDepth)
	}
	if err := d.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("wav data: %w", err)
	}

	// The header size is not trusted: streaming writers leave it at 0xFFFFFFFF.
	raw, err := io.ReadAll(io.LimitReader(d.PCMChunk.R, int64(d.PCMChunk.Size)))
	if err != nil {
		return nil, fmt.Errorf("wav data: %w", err)
	}

	out := make([]float32, len(raw)/width)
	for i := range out {
		if width == 4 {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		} else {
			out[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:])))
		}
	}
	return out, nil
}
