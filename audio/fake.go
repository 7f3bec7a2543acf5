package audio

import (
	"sync"
	"time"
)

// FakeDevice replays prepared input frames through the callback and records
// what the callback wrote. With a zero Interval frames are fed back to back;
// otherwise one frame is fed per Interval to mimic a realtime device.
type FakeDevice struct {
	Interval time.Duration

	frames    [][]float32
	frameSize int

	mu      sync.Mutex
	cb      Callback
	output  [][]float32
	stopCh  chan struct{}
	fedDone chan struct{}
	done    chan struct{}
}

// NewFakeDevice returns a device that feeds frames in order. A nil frame is
// delivered as a callback with no input.
func NewFakeDevice(frameSize int, frames [][]float32) *FakeDevice {
	return &FakeDevice{
		frames:    frames,
		frameSize: frameSize,
		done:      make(chan struct{}),
	}
}

func (f *FakeDevice) Initialize() error { return nil }
func (f *FakeDevice) Terminate()        {}

func (f *FakeDevice) Open(cb Callback) error {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
	return nil
}

// Done is closed once every prepared frame has been fed.
func (f *FakeDevice) Done() <-chan struct{} { return f.done }

func (f *FakeDevice) Start() error {
	f.mu.Lock()
	cb := f.cb
	f.mu.Unlock()
	if cb == nil {
		return ErrNotOpen
	}

	f.stopCh = make(chan struct{})
	f.fedDone = make(chan struct{})
	go f.feed(cb, f.stopCh, f.fedDone)
	return nil
}

func (f *FakeDevice) feed(cb Callback, stop <-chan struct{}, fed chan<- struct{}) {
	defer close(fed)

	var tick <-chan time.Time
	if f.Interval > 0 {
		t := time.NewTicker(f.Interval)
		defer t.Stop()
		tick = t.C
	}

	for i, in := range f.frames {
		if tick != nil && i > 0 {
			select {
			case <-stop:
				return
			case <-tick:
			}
		} else {
			select {
			case <-stop:
				return
			default:
			}
		}

		out := make([]float32, f.frameSize)
		cb(in, out)

		f.mu.Lock()
		f.output = append(f.output, out)
		f.mu.Unlock()
	}
	close(f.done)
}

func (f *FakeDevice) Stop() error {
	if f.stopCh == nil {
		return nil
	}
	close(f.stopCh)
	<-f.fedDone
	f.stopCh = nil
	return nil
}

func (f *FakeDevice) Close() error { return nil }

// Output returns a copy of every frame written by the callback so far.
func (f *FakeDevice) Output() [][]float32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]float32, len(f.output))
	copy(out, f.output)
	return out
}
