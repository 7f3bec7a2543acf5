package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/matryer/is"
	"github.com/rs/zerolog"

	"github.com/chenata22/SoundMixML/audio"
	"github.com/chenata22/SoundMixML/sound"
	"github.com/chenata22/SoundMixML/transport"
)

const frameSize = 480

func testConfig() Config {
	return Config{
		FrameSize:       frameSize,
		ChunkSize:       4800,
		FrameDuration:   10 * time.Millisecond,
		EnergyThreshold: 0.002,
		SilenceTimeout:  time.Second,
		PollInterval:    time.Millisecond,
		MusicGain:       0.5,
		PassToken:       "pass",
	}
}

func constFrame(v float32) []float32 {
	f := make([]float32, frameSize)
	for i := range f {
		f[i] = v
	}
	return f
}

// newTestEngine connects an engine to an in-process classifier answering reply.
func newTestEngine(t *testing.T, reply string, music float32) (*Engine, *transport.FakeClassifier) {
	t.Helper()
	srv, err := transport.NewFakeClassifier(reply)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { srv.Close() })

	client, err := transport.Dial(context.Background(), srv.Addr(), transport.Options{IOTimeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { client.Close() })

	e := NewEngine(testConfig(), nil, sound.NewTrack([]float32{music}), client, nil, zerolog.Nop())
	return e, srv
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestMissingInputYieldsSilence(t *testing.T) {
	is := is.New(t)
	e, _ := newTestEngine(t, "pass", 0.5)

	out := constFrame(0.9)
	e.Process(nil, out)

	is.Equal(out, make([]float32, frameSize))
	is.Equal(e.Stats().FramesProcessed, uint64(1))
	is.Equal(e.Stats().QueuedSamples, 0)
}

func TestPassMixesVoiceWithMusic(t *testing.T) {
	is := is.New(t)
	e, _ := newTestEngine(t, "pass", 0.5)

	out := make([]float32, frameSize)
	e.Process(constFrame(0.125), out)

	is.Equal(out, constFrame(0.375)) // 0.125 + 0.5*0.5
	is.Equal(e.Stats().QueuedSamples, frameSize)
}

func TestInputBufferIsNotModified(t *testing.T) {
	is := is.New(t)
	e, _ := newTestEngine(t, "pass", 0)

	in := constFrame(0.125)
	e.Process(in, make([]float32, frameSize))
	is.Equal(in, constFrame(0.125))
}

func TestMuteDecisionPlaysMusicOnly(t *testing.T) {
	is := is.New(t)
	e, srv := newTestEngine(t, "mute", 0.5)

	// One chunk of speech.
	for i := 0; i < 10; i++ {
		e.Process(constFrame(0.125), make([]float32, frameSize))
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		e.RunSender(ctx)
	}()
	waitFor(t, "mute decision", func() bool { return e.Decision() == "mute" })
	cancel()
	<-done

	out := make([]float32, frameSize)
	e.Process(constFrame(0.125), out)
	is.Equal(out, constFrame(0.5))
	is.Equal(srv.ChunkCount(), 1)
	is.Equal(len(srv.Chunks()[0]), 4800)
}

func TestFailureFallsBackToPass(t *testing.T) {
	is := is.New(t)
	e, srv := newTestEngine(t, "mute", 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		e.RunSender(ctx)
	}()

	for i := 0; i < 10; i++ {
		e.Process(constFrame(0.125), make([]float32, frameSize))
	}
	waitFor(t, "mute decision", func() bool { return e.Decision() == "mute" })

	srv.SetReply("") // hang up after the next chunk
	for i := 0; i < 10; i++ {
		e.Process(constFrame(0.125), make([]float32, frameSize))
	}
	waitFor(t, "fallback", func() bool { return e.Stats().SendFailures == 1 })

	is.Equal(e.Decision(), "pass")
	is.Equal(e.Stats().ChunksSent, uint64(2))

	cancel()
	<-done
}

func TestOnlyWholeChunksAreSent(t *testing.T) {
	is := is.New(t)
	e, srv := newTestEngine(t, "pass", 0)

	// 25 voiced frames: two whole chunks and half a chunk left over.
	for i := 0; i < 25; i++ {
		e.Process(constFrame(0.125), make([]float32, frameSize))
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		e.RunSender(ctx)
	}()
	waitFor(t, "two chunks", func() bool { return srv.ChunkCount() == 2 })
	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	is.Equal(srv.ChunkCount(), 2)
	is.Equal(e.Stats().QueuedSamples, 2400)
	for _, c := range srv.Chunks() {
		is.Equal(len(c), 4800)
		is.Equal(c[0], float32(0.125))
	}
}

func TestSilentStreamStopsForwardingAfterTimeout(t *testing.T) {
	is := is.New(t)
	e, srv := newTestEngine(t, "pass", 0.25)

	// Three seconds of silence at 10 ms per frame.
	frames := make([][]float32, 300)
	for i := range frames {
		frames[i] = make([]float32, frameSize)
	}
	dev := audio.NewFakeDevice(frameSize, frames)

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- e.Run(ctx, dev) }()

	select {
	case <-dev.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("device did not finish feeding")
	}
	// 99 forwarded frames make nine whole chunks.
	waitFor(t, "nine chunks", func() bool { return srv.ChunkCount() == 9 })
	time.Sleep(20 * time.Millisecond)

	st := e.Stats()
	is.Equal(st.FramesProcessed, uint64(300))
	is.Equal(st.FramesForwarded, uint64(99))
	is.Equal(st.QueuedSamples, 99*frameSize-9*4800)
	is.Equal(srv.ChunkCount(), 9)

	for _, out := range dev.Output() {
		is.Equal(out[0], float32(0.125)) // silence + 0.25*0.5
	}

	cancel()
	select {
	case err := <-runErr:
		is.NoErr(err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	is.True(!e.IsRunning())
}

func TestRunTwiceIsRejected(t *testing.T) {
	is := is.New(t)
	e, _ := newTestEngine(t, "pass", 0)
	dev := audio.NewFakeDevice(frameSize, nil)

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- e.Run(ctx, dev) }()
	waitFor(t, "running", e.IsRunning)

	is.True(errors.Is(e.Run(ctx, audio.NewFakeDevice(frameSize, nil)), ErrAlreadyRunning))

	cancel()
	is.NoErr(<-runErr)
}

type failingDevice struct {
	audio.FakeDevice
	terminated bool
}

func (d *failingDevice) Initialize() error { return errors.New("no audio hardware") }
func (d *failingDevice) Terminate()        { d.terminated = true }

type recordingSender struct {
	mu     sync.Mutex
	closed bool
}

func (s *recordingSender) SendChunk([]float32) (string, error) { return "pass", nil }
func (s *recordingSender) Interrupt()                          {}
func (s *recordingSender) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func TestDeviceFailureReleasesResources(t *testing.T) {
	is := is.New(t)
	sender := &recordingSender{}
	e := NewEngine(testConfig(), nil, sound.NewTrack(nil), sender, nil, zerolog.Nop())

	err := e.Run(context.Background(), &failingDevice{})
	is.True(err != nil)
	is.True(sender.closed)
	is.True(!e.IsRunning())
}

type blockingSender struct {
	interrupted chan struct{}
	once        sync.Once
}

func (s *blockingSender) SendChunk([]float32) (string, error) {
	<-s.interrupted
	return "pass", transport.ErrNoReply
}
func (s *blockingSender) Interrupt()   { s.once.Do(func() { close(s.interrupted) }) }
func (s *blockingSender) Close() error { return nil }

func TestCancelInterruptsPendingExchange(t *testing.T) {
	is := is.New(t)
	sender := &blockingSender{interrupted: make(chan struct{})}
	e := NewEngine(testConfig(), nil, sound.NewTrack(nil), sender, nil, zerolog.Nop())

	for i := 0; i < 10; i++ {
		e.Process(constFrame(0.125), make([]float32, frameSize))
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		e.RunSender(ctx)
	}()
	waitFor(t, "chunk in flight", func() bool { return e.Stats().QueuedSamples == 0 })
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sender loop hung on an unresponsive classifier")
	}
	is.Equal(e.Decision(), "pass")
}
