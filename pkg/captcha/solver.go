// Package captcha abstracts CAPTCHA solving behind one contract so the login
// flow works the same with automatic OCR, a human operator, or a test stub.
package captcha

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// Solver maps a CAPTCHA image to its best-guess text.
type Solver interface {
	Solve(ctx context.Context, image []byte) (string, error)
}

// SolverFunc adapts a function to the Solver interface.
type SolverFunc func(ctx context.Context, image []byte) (string, error)

// Solve implements Solver.
func (f SolverFunc) Solve(ctx context.Context, image []byte) (string, error) {
	return f(ctx, image)
}

// ErrNoAnswer is returned by Relay when the wait ends without an answer.
var ErrNoAnswer = errors.New("captcha: no answer supplied")

// Relay is a human-in-the-loop Solver. Solve parks the calling goroutine on a
// channel until an operator calls Answer or the context is cancelled; there
// is no polling. One Relay serves one pending challenge at a time, matching
// the strictly sequential login flow.
type Relay struct {
	mu      sync.Mutex
	pending chan string
}

// NewRelay creates an idle relay.
func NewRelay() *Relay {
	return &Relay{}
}

// Solve blocks until Answer delivers text or ctx is done.
func (r *Relay) Solve(ctx context.Context, image []byte) (string, error) {
	ch := make(chan string, 1)

	r.mu.Lock()
	r.pending = ch
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		if r.pending == ch {
			r.pending = nil
		}
		r.mu.Unlock()
	}()

	select {
	case text := <-ch:
		text = strings.TrimSpace(text)
		if text == "" {
			return "", ErrNoAnswer
		}
		return text, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Answer delivers the operator's text to the pending Solve call. It reports
// whether a challenge was actually waiting.
func (r *Relay) Answer(text string) bool {
	r.mu.Lock()
	ch := r.pending
	r.pending = nil
	r.mu.Unlock()

	if ch == nil {
		return false
	}
	ch <- text
	return true
}
