package sound

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFormat is returned by Load for unknown file extensions and
// encodings the decoders do not handle.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Decoded is interleaved PCM normalised to [-1, 1].
type Decoded struct {
	Samples    []float32
	Channels   int
	SampleRate int
}

// Load decodes the file at path, chosen by extension (.wav, .mp3, .flac),
// and returns it as a mono Track.
func Load(path string) (*Track, error) {
	d, err := decodeFile(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	t := NewTrack(Downmix(d.Samples, d.Channels))
	t.SampleRate = d.SampleRate
	return t, nil
}

func decodeFile(path string) (*Decoded, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".wav", ".wave", ".mp3":
	case ".flac":
		return decodeFLAC(path)
	default:
		return nil, fmt.Errorf("%w: extension %q", ErrUnsupportedFormat, ext)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if ext == ".mp3" {
		return decodeMP3(f)
	}
	return decodeWAV(f)
}
