// Package sound owns the background music: a mono sample sequence that is
// read one sample at a time and loops forever.
package sound

// Track is a finite mono buffer with a circular read cursor. After N calls to
// NextSample on a track of length L the cursor is N mod L.
//
// A Track is read by the audio callback only and is not safe for concurrent
// use.
type Track struct {
	samples []float32
	cursor  int

	SampleRate int // rate of the decoded file, informational
}

// NewTrack wraps samples without copying them.
func NewTrack(samples []float32) *Track {
	return &Track{samples: samples}
}

// NextSample returns the sample under the cursor and advances it, wrapping to
// the start at the end. An empty track yields 0.
func (t *Track) NextSample() float32 {
	if len(t.samples) == 0 {
		return 0
	}
	s := t.samples[t.cursor]
	t.cursor++
	if t.cursor >= len(t.samples) {
		t.cursor = 0
	}
	return s
}

// Cursor returns the index of the next sample.
func (t *Track) Cursor() int { return t.cursor }

// Len returns the number of samples in one loop.
func (t *Track) Len() int { return len(t.samples) }

// Downmix converts interleaved audio to mono. Stereo pairs are averaged;
// any other channel count is returned unchanged.
func Downmix(interleaved []float32, channels int) []float32 {
	if channels != 2 {
		return interleaved
	}
	mono := make([]float32, len(interleaved)/2)
	for i := range mono {
		mono[i] = 0.5 * (interleaved[2*i] + interleaved[2*i+1])
	}
	return mono
}
