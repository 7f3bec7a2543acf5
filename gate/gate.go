// Package gate decides, frame by frame, whether captured audio is worth
// forwarding to the classifier. It is an energy gate with a silence hangover:
// frames keep flowing for SilenceTimeout after the last voiced frame.
package gate

import "time"

// State is the forwarding state of a Gate.
type State int

const (
	// Active forwards frames: voice is present or silence has not yet
	// lasted SilenceTimeout.
	Active State = iota
	// TimedOutSilence drops frames until the next above-threshold frame.
	TimedOutSilence
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case TimedOutSilence:
		return "timed-out-silence"
	default:
		return "unknown"
	}
}

// Config holds the gate parameters.
type Config struct {
	Threshold      float64       // mean squared energy; frames at or below are silent
	FrameDuration  time.Duration // wall-clock length of one frame
	SilenceTimeout time.Duration
}

// Gate is owned by the capture goroutine and is not safe for concurrent use.
type Gate struct {
	cfg        Config
	silenceRun int
	state      State
}

// New returns a Gate in the Active state.
func New(cfg Config) *Gate {
	return &Gate{cfg: cfg}
}

// Energy returns the mean squared amplitude of frame, or 0 for an empty frame.
func Energy(frame []float32) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		v := float64(s)
		sum += v * v
	}
	return sum / float64(len(frame))
}

// Process classifies frame and reports whether it should be forwarded.
func (g *Gate) Process(frame []float32) bool {
	if Energy(frame) <= g.cfg.Threshold {
		g.silenceRun++
	} else {
		g.silenceRun = 0
	}

	if time.Duration(g.silenceRun)*g.cfg.FrameDuration < g.cfg.SilenceTimeout {
		g.state = Active
		return true
	}
	g.state = TimedOutSilence
	return false
}

// SilenceRun returns the number of consecutive silent frames seen so far.
func (g *Gate) SilenceRun() int { return g.silenceRun }

// State returns the state after the most recent Process call.
func (g *Gate) State() State { return g.state }
