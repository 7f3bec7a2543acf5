// Package transport talks to the remote classifier over one persistent TCP
// connection. Each chunk is sent as a 4-byte little-endian length prefix plus
// raw float32 samples, and answered with a short text token. The exchange is
// strictly request/response: no pipelining, no retries, no reconnects.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/rs/zerolog"
)

// DefaultPassToken is the permissive decision used whenever no reply arrives.
const DefaultPassToken = "pass"

var (
	// ErrNoReply means the chunk was sent but no token came back.
	ErrNoReply = errors.New("no reply from classifier")
	// ErrClosed is returned by SendChunk after Close.
	ErrClosed = errors.New("transport closed")
	// ErrInterrupted is returned by SendChunk after Interrupt.
	ErrInterrupted = errors.New("transport interrupted")
	// ErrOutOfSync is returned once an exchange failed midway. A late reply
	// may still be in flight, so the connection is no longer used.
	ErrOutOfSync = errors.New("classifier stream out of sync")
)

// Options configures a Client.
type Options struct {
	DialTimeout time.Duration
	// IOTimeout bounds each exchange (write plus reply). Zero means no deadline.
	IOTimeout time.Duration
	// PassToken is returned when an exchange fails. Defaults to DefaultPassToken.
	PassToken string
	Logger    zerolog.Logger
}

// Client owns the classifier connection. SendChunk must be called from one
// goroutine at a time; Interrupt and Close may be called from any goroutine.
type Client struct {
	conn      net.Conn
	timeout   time.Duration
	passToken string
	log       zerolog.Logger

	buf   []byte
	reply [MaxReplySize]byte

	// broken is the failure that desynchronised the stream. Owned by the
	// SendChunk caller.
	broken error

	interrupted atomic.Bool
	closeOnce   sync.Once
	closed      chan struct{}
}

// Dial connects to addr. A failure here is meant to be fatal for the caller.
func Dial(ctx context.Context, addr string, opts Options) (*Client, error) {
	d := net.Dialer{Timeout: opts.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to classifier at %s: %w", addr, err)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		tcp.SetNoDelay(true)
	}
	c := NewClient(conn, opts)
	c.log.Info().Str("addr", addr).Msg("connected to classifier")
	return c, nil
}

// NewClient wraps an established connection.
func NewClient(conn net.Conn, opts Options) *Client {
	if opts.PassToken == "" {
		opts.PassToken = DefaultPassToken
	}
	return &Client{
		conn:      conn,
		timeout:   opts.IOTimeout,
		passToken: opts.PassToken,
		log:       opts.Logger,
		closed:    make(chan struct{}),
	}
}

// SendChunk sends samples and returns the classifier's decision token.
//
// The token is always usable. When the write fails the chunk is abandoned;
// when the write succeeds but nothing is read back (EOF, error, timeout) the
// pass token is returned. In both cases err says what went wrong.
//
// A failed write or read leaves the stream at an unknown position, so every
// later call returns the pass token with ErrOutOfSync without touching the
// connection.
func (c *Client) SendChunk(samples []float32) (string, error) {
	select {
	case <-c.closed:
		return c.passToken, ErrClosed
	default:
	}
	if c.interrupted.Load() {
		return c.passToken, ErrInterrupted
	}
	if c.broken != nil {
		return c.passToken, fmt.Errorf("%w: %w", ErrOutOfSync, c.broken)
	}

	c.buf = AppendFrame(c.buf[:0], samples)

	if c.timeout > 0 {
		if err := c.conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
			return c.passToken, fmt.Errorf("set deadline: %w", err)
		}
		// An Interrupt that ran before the deadline above was overwritten.
		if c.interrupted.Load() {
			return c.passToken, ErrInterrupted
		}
	}

	if err := writeFull(c.conn, c.buf); err != nil {
		c.broken = err
		return c.passToken, fmt.Errorf("send chunk of %d samples: %w", len(samples), err)
	}

	n, err := c.conn.Read(c.reply[:])
	token := cleanToken(c.reply[:n])
	if token == "" {
		if err != nil {
			c.broken = err
			return c.passToken, fmt.Errorf("%w: %w", ErrNoReply, err)
		}
		return c.passToken, ErrNoReply
	}
	return token, nil
}

// Interrupt unblocks an in-flight SendChunk by expiring the connection
// deadline. Every later SendChunk fails with ErrInterrupted.
func (c *Client) Interrupt() {
	c.interrupted.Store(true)
	c.conn.SetDeadline(time.Now())
}

// Close closes the connection. It is safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}

// writeFull loops until every byte is written or the writer fails.
func writeFull(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}

// cleanToken strips the NUL padding and whitespace a server may add, in any
// order.
func cleanToken(b []byte) string {
	return string(bytes.TrimFunc(b, func(r rune) bool {
		return r == 0 || unicode.IsSpace(r)
	}))
}
