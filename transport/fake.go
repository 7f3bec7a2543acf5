package transport

import (
	"io"
	"net"
	"sync"
)

// FakeClassifier is an in-process classifier server for tests and local
// runs. It reads length-prefixed chunks like the real model server and
// answers every chunk with the configured token. An empty token makes it hang
// up after reading the next chunk.
type FakeClassifier struct {
	ln net.Listener

	mu     sync.Mutex
	reply  string
	chunks [][]float32
	conns  map[net.Conn]struct{}

	wg sync.WaitGroup
}

// NewFakeClassifier listens on a random loopback port.
func NewFakeClassifier(reply string) (*FakeClassifier, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	f := &FakeClassifier{
		ln:    ln,
		reply: reply,
		conns: make(map[net.Conn]struct{}),
	}
	f.wg.Add(1)
	go f.serve()
	return f, nil
}

// Addr returns the host:port to dial.
func (f *FakeClassifier) Addr() string { return f.ln.Addr().String() }

// SetReply changes the token sent for subsequent chunks.
func (f *FakeClassifier) SetReply(token string) {
	f.mu.Lock()
	f.reply = token
	f.mu.Unlock()
}

// Chunks returns a copy of every chunk received so far.
func (f *FakeClassifier) Chunks() [][]float32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]float32, len(f.chunks))
	copy(out, f.chunks)
	return out
}

// ChunkCount returns the number of chunks received so far.
func (f *FakeClassifier) ChunkCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.chunks)
}

// Close stops accepting, drops open connections and waits for handlers.
func (f *FakeClassifier) Close() error {
	err := f.ln.Close()
	f.mu.Lock()
	for c := range f.conns {
		c.Close()
	}
	f.mu.Unlock()
	f.wg.Wait()
	return err
}

func (f *FakeClassifier) serve() {
	defer f.wg.Done()
	for {
		conn, err := f.ln.Accept()
		if err != nil {
			return
		}
		f.mu.Lock()
		f.conns[conn] = struct{}{}
		f.mu.Unlock()

		f.wg.Add(1)
		go f.handle(conn)
	}
}

func (f *FakeClassifier) handle(conn net.Conn) {
	defer f.wg.Done()
	defer func() {
		f.mu.Lock()
		delete(f.conns, conn)
		f.mu.Unlock()
		conn.Close()
	}()

	for {
		var h [HeaderSize]byte
		if _, err := io.ReadFull(conn, h[:]); err != nil {
			return
		}
		payload := make([]byte, DecodeHeader(h))
		if _, err := io.ReadFull(conn, payload); err != nil {
			return
		}

		f.mu.Lock()
		f.chunks = append(f.chunks, DecodePayload(payload))
		reply := f.reply
		f.mu.Unlock()

		if reply == "" {
			return
		}
		if _, err := conn.Write([]byte(reply)); err != nil {
			return
		}
	}
}
