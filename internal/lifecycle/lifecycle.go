// Package lifecycle guards controller state against updates that land after
// the owning screen went away.
package lifecycle

import (
	"errors"
	"sync"
)

var ErrClosed = errors.New("controller closed")

// Guard serializes access to a controller's view model. The zero value is
// ready to use.
type Guard struct {
	mu     sync.Mutex
	closed bool
}

// Apply runs fn with exclusive access unless the guard is closed, in which
// case fn is skipped and ErrClosed returned.
func (g *Guard) Apply(fn func()) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return ErrClosed
	}
	fn()
	return nil
}

// View runs fn with exclusive access. Reads stay allowed after Close.
func (g *Guard) View(fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn()
}

func (g *Guard) Close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
}

func (g *Guard) Closed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}
