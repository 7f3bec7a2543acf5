package mixer

import (
	"math"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/matryer/is"
)

type constSource float32

func (c constSource) NextSample() float32 { return float32(c) }

type countingSource struct{ n int }

func (c *countingSource) NextSample() float32 {
	c.n++
	return 0.25
}

func TestPassMixesVoiceAndHalfMusic(t *testing.T) {
	is := is.New(t)
	m := New(NewDecision("pass"), constSource(0.5), "pass", DefaultGain)

	voice := []float32{0.125, -0.125, 0}
	out := make([]float32, 3)
	m.Mix(voice, out)

	is.Equal(out, []float32{0.375, 0.125, 0.25})
}

func TestOtherTokenPlaysMusicOnly(t *testing.T) {
	is := is.New(t)
	d := NewDecision("pass")
	m := New(d, constSource(0.5), "pass", DefaultGain)
	d.Store("mute")

	out := make([]float32, 4)
	m.Mix([]float32{0.9, 0.9, 0.9, 0.9}, out)

	for _, s := range out {
		is.Equal(s, float32(0.5))
	}
}

func TestUnknownTokenExcludesVoice(t *testing.T) {
	is := is.New(t)
	m := New(NewDecision("siren!"), constSource(0), "pass", DefaultGain)
	out := make([]float32, 2)
	m.Mix([]float32{0.7, 0.7}, out)
	is.Equal(out, []float32{0, 0})
}

func TestOutputAlwaysClamped(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for _, token := range []string{"pass", "mute"} {
		for trial := 0; trial < 200; trial++ {
			music := constSource(float32((r.Float64() - 0.5) * 8))
			m := New(NewDecision(token), music, "pass", DefaultGain)

			voice := make([]float32, 480)
			for i := range voice {
				voice[i] = float32((r.Float64() - 0.5) * 8)
			}
			out := make([]float32, 480)
			m.Mix(voice, out)

			for i, s := range out {
				if s < -1 || s > 1 {
					t.Fatalf("token %q sample %d = %v out of range", token, i, s)
				}
			}
		}
	}
}

func TestMixConsumesOneMusicSamplePerOutput(t *testing.T) {
	is := is.New(t)
	src := &countingSource{}
	m := New(NewDecision("pass"), src, "pass", DefaultGain)
	m.Mix(nil, make([]float32, 480))
	is.Equal(src.n, 480)
}

func TestShortVoiceIsPaddedWithSilence(t *testing.T) {
	is := is.New(t)
	m := New(NewDecision("pass"), constSource(0.5), "pass", DefaultGain)
	out := make([]float32, 3)
	m.Mix([]float32{0.5}, out)
	is.Equal(out, []float32{0.75, 0.25, 0.25})
}

func TestClamp(t *testing.T) {
	is := is.New(t)
	is.Equal(Clamp(2), float32(1))
	is.Equal(Clamp(-2), float32(-1))
	is.Equal(Clamp(0.3), float32(0.3))
	is.Equal(Clamp(float32(math.NaN())), float32(0))
	is.Equal(Clamp(float32(math.Inf(1))), float32(1))
}

func TestDecisionStoreReportsChange(t *testing.T) {
	is := is.New(t)
	d := NewDecision("pass")
	is.Equal(d.Load(), "pass")
	is.True(!d.Store("pass"))
	is.True(d.Store("mute"))
	is.Equal(d.Load(), "mute")
}

func TestDecisionConcurrentReaders(t *testing.T) {
	d := NewDecision("pass")
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			if i%2 == 0 {
				d.Store("mute")
			} else {
				d.Store("pass")
			}
		}
	}()
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				if tok := d.Load(); tok != "pass" && tok != "mute" {
					t.Errorf("torn read %q", tok)
					return
				}
			}
		}()
	}
	wg.Wait()
}
