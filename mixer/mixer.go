// Package mixer produces the speaker output: captured voice plus attenuated
// background music while the classifier says "pass", music alone otherwise.
package mixer

// Source supplies one background sample per call.
type Source interface {
	NextSample() float32
}

// DefaultGain is the music attenuation applied under the pass decision.
const DefaultGain = 0.5

// Mixer is used from the audio callback only. The decision it reads is
// shared with the sender loop.
type Mixer struct {
	decision  *Decision
	music     Source
	passToken string
	gain      float32
}

// New returns a Mixer that lets voice through only while decision equals
// passToken.
func New(decision *Decision, music Source, passToken string, gain float32) *Mixer {
	return &Mixer{
		decision:  decision,
		music:     music,
		passToken: passToken,
		gain:      gain,
	}
}

// Mix writes len(out) samples. voice may be shorter than out; missing voice
// samples count as silence. The decision is sampled once per call.
func (m *Mixer) Mix(voice, out []float32) {
	pass := m.decision.Load() == m.passToken

	for i := range out {
		music := m.music.NextSample()
		if !pass {
			out[i] = Clamp(music)
			continue
		}
		var v float32
		if i < len(voice) {
			v = voice[i]
		}
		out[i] = Clamp(v + music*m.gain)
	}
}

// Clamp limits s to [-1, 1]. NaN becomes 0.
func Clamp(s float32) float32 {
	switch {
	case s != s:
		return 0
	case s < -1:
		return -1
	case s > 1:
		return 1
	}
	return s
}
