package mixer

import "sync/atomic"

// Decision holds the latest classifier token. A single writer (the sender
// loop) replaces it; the audio callback reads it without blocking. A read
// racing a write sees either the old or the new token.
type Decision struct {
	token    atomic.Pointer[string]
	fallback string
}

// NewDecision returns a Decision initialised to initial, which is also what
// Load returns if Store is never called.
func NewDecision(initial string) *Decision {
	d := &Decision{fallback: initial}
	d.token.Store(&initial)
	return d
}

// Load returns the current token.
func (d *Decision) Load() string {
	if p := d.token.Load(); p != nil {
		return *p
	}
	return d.fallback
}

// Store replaces the token and reports whether it changed.
func (d *Decision) Store(token string) bool {
	old := d.token.Swap(&token)
	return old == nil || *old != token
}
