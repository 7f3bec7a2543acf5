// Package engine wires the pipeline together. The device callback denoises,
// gates and relays each captured frame, then mixes the speaker output; a
// separate sender goroutine drains the relay to the classifier and updates
// the decision the mixer reads.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/chenata22/SoundMixML/audio"
	"github.com/chenata22/SoundMixML/denoise"
	"github.com/chenata22/SoundMixML/gate"
	"github.com/chenata22/SoundMixML/mixer"
	"github.com/chenata22/SoundMixML/observe"
	"github.com/chenata22/SoundMixML/relay"
	"github.com/chenata22/SoundMixML/transport"
)

// ErrAlreadyRunning is returned by Run while another Run is in progress.
var ErrAlreadyRunning = errors.New("engine is already running")

// Sender exchanges one chunk with the classifier. SendChunk always returns a
// usable token, falling back to the pass token on failure.
type Sender interface {
	SendChunk(samples []float32) (string, error)
	// Interrupt unblocks an in-flight SendChunk.
	Interrupt()
	Close() error
}

// Config holds the pipeline parameters.
type Config struct {
	FrameSize       int
	ChunkSize       int
	FrameDuration   time.Duration
	EnergyThreshold float64
	SilenceTimeout  time.Duration
	PollInterval    time.Duration
	RelayLimit      int // max queued samples, 0 = unbounded
	MusicGain       float64
	PassToken       string
}

// Stats is a snapshot of the engine counters.
type Stats struct {
	FramesProcessed uint64
	FramesForwarded uint64
	ChunksSent      uint64
	SendFailures    uint64
	ChunksDropped   uint64
	QueuedSamples   int
}

// Engine owns the suppressor, relay buffer, decision and sender for the
// process lifetime.
type Engine struct {
	config     Config
	suppressor denoise.Suppressor
	sender     Sender
	metrics    *observe.Metrics
	log        zerolog.Logger

	gate     *gate.Gate
	relay    *relay.Buffer
	decision *mixer.Decision
	mixer    *mixer.Mixer

	// Callback-owned scratch.
	frame     []float32
	gateState gate.State

	framesProcessed atomic.Uint64
	framesForwarded atomic.Uint64
	chunksSent      atomic.Uint64
	sendFailures    atomic.Uint64

	isRunning    bool
	runningMutex sync.RWMutex
}

// NewEngine creates an engine. metrics may be nil.
func NewEngine(
	config Config,
	suppressor denoise.Suppressor,
	music mixer.Source,
	sender Sender,
	metrics *observe.Metrics,
	log zerolog.Logger,
) *Engine {
	if config.FrameSize == 0 {
		config.FrameSize = denoise.FrameSize
	}
	if config.ChunkSize == 0 {
		config.ChunkSize = 4800
	}
	if config.FrameDuration == 0 {
		config.FrameDuration = 10 * time.Millisecond
	}
	if config.SilenceTimeout == 0 {
		config.SilenceTimeout = time.Second
	}
	if config.PollInterval == 0 {
		config.PollInterval = 10 * time.Millisecond
	}
	if config.MusicGain == 0 {
		config.MusicGain = mixer.DefaultGain
	}
	if config.PassToken == "" {
		config.PassToken = "pass"
	}
	if suppressor == nil {
		suppressor = denoise.Passthrough{}
	}
	if metrics == nil {
		metrics = observe.Noop()
	}

	decision := mixer.NewDecision(config.PassToken)
	return &Engine{
		config:     config,
		suppressor: suppressor,
		sender:     sender,
		metrics:    metrics,
		log:        log,
		gate: gate.New(gate.Config{
			Threshold:      config.EnergyThreshold,
			FrameDuration:  config.FrameDuration,
			SilenceTimeout: config.SilenceTimeout,
		}),
		relay:    relay.New(config.ChunkSize, config.RelayLimit),
		decision: decision,
		mixer:    mixer.New(decision, music, config.PassToken, float32(config.MusicGain)),
		frame:    make([]float32, 0, config.FrameSize),
	}
}

// Process is the device callback. It never blocks on I/O.
func (e *Engine) Process(in, out []float32) {
	e.framesProcessed.Add(1)

	if in == nil {
		clear(out)
		return
	}

	frame := append(e.frame[:0], in...)
	e.frame = frame

	e.suppressor.Process(frame)

	if e.gate.Process(frame) {
		e.framesForwarded.Add(1)
		e.relay.Push(frame)
	}
	if st := e.gate.State(); st != e.gateState {
		e.gateState = st
		e.log.Debug().Stringer("state", st).Int("silent_frames", e.gate.SilenceRun()).Msg("gate changed")
	}

	e.mixer.Mix(frame, out)
}

// RunSender drains whole chunks from the relay to the classifier until ctx
// is done. An exchange in flight when ctx ends is interrupted.
func (e *Engine) RunSender(ctx context.Context) {
	stop := context.AfterFunc(ctx, e.sender.Interrupt)
	defer stop()

	idle := time.NewTimer(e.config.PollInterval)
	defer idle.Stop()

	for ctx.Err() == nil {
		chunk, ok := e.relay.TryPopChunk(e.config.ChunkSize)
		if !ok {
			idle.Reset(e.config.PollInterval)
			select {
			case <-ctx.Done():
				return
			case <-idle.C:
			}
			continue
		}
		e.exchange(ctx, chunk)
	}
}

func (e *Engine) exchange(ctx context.Context, chunk []float32) {
	start := time.Now()
	token, err := e.sender.SendChunk(chunk)
	rtt := time.Since(start)

	e.chunksSent.Add(1)
	e.metrics.RecordExchange(ctx, rtt, err != nil)

	if err != nil {
		e.sendFailures.Add(1)
		switch {
		case ctx.Err() != nil:
		case errors.Is(err, transport.ErrOutOfSync):
			e.log.Debug().Err(err).Msg("classifier unusable, failing open")
		default:
			e.log.Warn().Err(err).Str("decision", token).Msg("classifier exchange failed")
		}
	}
	e.log.Debug().Str("decision", token).Dur("rtt", rtt).Msg("classifier reply")

	if e.decision.Store(token) {
		e.log.Info().Str("decision", token).Msg("decision changed")
		e.metrics.RecordDecisionChange(ctx, token)
	}
}

// Run opens device with Process as its callback, runs the sender and blocks
// until ctx is done. On return the device, the suppressor and the sender are
// released, whatever the outcome.
func (e *Engine) Run(ctx context.Context, device audio.Device) error {
	e.runningMutex.Lock()
	if e.isRunning {
		e.runningMutex.Unlock()
		return ErrAlreadyRunning
	}
	e.isRunning = true
	e.runningMutex.Unlock()

	defer func() {
		e.runningMutex.Lock()
		e.isRunning = false
		e.runningMutex.Unlock()
	}()

	if err := device.Initialize(); err != nil {
		return errors.Join(fmt.Errorf("failed to initialize audio device: %w", err), e.release())
	}
	if err := device.Open(e.Process); err != nil {
		device.Terminate()
		return errors.Join(fmt.Errorf("failed to open audio stream: %w", err), e.release())
	}

	reg, err := e.metrics.ObservePipeline(e.snapshot)
	if err != nil {
		e.log.Warn().Err(err).Msg("pipeline metrics unavailable")
	}

	senderCtx, stopSender := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		e.RunSender(senderCtx)
	}()

	var startErr error
	if err := device.Start(); err != nil {
		startErr = fmt.Errorf("failed to start audio stream: %w", err)
	} else {
		e.log.Info().
			Int("frame_size", e.config.FrameSize).
			Int("chunk_size", e.config.ChunkSize).
			Msg("engine started")
		<-ctx.Done()
		e.log.Info().Msg("engine stopping")
	}

	stopSender()
	wg.Wait()

	var errs []error
	errs = append(errs, startErr)
	if err := device.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop audio stream: %w", err))
	}
	if err := device.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close audio stream: %w", err))
	}
	device.Terminate()
	if reg != nil {
		reg.Unregister()
	}
	errs = append(errs, e.release())

	return errors.Join(errs...)
}

// release frees the suppressor state and closes the classifier connection.
func (e *Engine) release() error {
	var errs []error
	if err := e.suppressor.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to release noise suppressor: %w", err))
	}
	if err := e.sender.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close classifier connection: %w", err))
	}
	return errors.Join(errs...)
}

// IsRunning returns whether Run is in progress.
func (e *Engine) IsRunning() bool {
	e.runningMutex.RLock()
	defer e.runningMutex.RUnlock()
	return e.isRunning
}

// Decision returns the current classifier token.
func (e *Engine) Decision() string {
	return e.decision.Load()
}

func (e *Engine) Stats() Stats {
	return Stats{
		FramesProcessed: e.framesProcessed.Load(),
		FramesForwarded: e.framesForwarded.Load(),
		ChunksSent:      e.chunksSent.Load(),
		SendFailures:    e.sendFailures.Load(),
		ChunksDropped:   e.relay.Dropped(),
		QueuedSamples:   e.relay.Len(),
	}
}

func (e *Engine) snapshot() observe.Snapshot {
	s := e.Stats()
	return observe.Snapshot{
		FramesProcessed: s.FramesProcessed,
		FramesForwarded: s.FramesForwarded,
		ChunksDropped:   s.ChunksDropped,
		QueuedSamples:   s.QueuedSamples,
	}
}
