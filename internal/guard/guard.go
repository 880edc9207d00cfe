// Package guard provides the non-reentrant lock and pause switch wrapped around every
// state-mutating entry point.
package guard

import (
	"sync"

	"github.com/elys-network/perpvault/internal/types"
)

type Guard struct {
	mu      sync.Mutex
	entered bool
	paused  bool
}

// Enter acquires the guard. The returned release must be called on every exit path, typically deferred.
func (g *Guard) Enter() (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.paused {
		return nil, types.ErrPaused
	}
	if g.entered {
		return nil, types.ErrReentrantCall
	}
	g.entered = true
	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			g.entered = false
			g.mu.Unlock()
		})
	}, nil
}

func (g *Guard) Pause() {
	g.mu.Lock()
	g.paused = true
	g.mu.Unlock()
}

func (g *Guard) Unpause() {
	g.mu.Lock()
	g.paused = false
	g.mu.Unlock()
}

func (g *Guard) Paused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}

// Entered reports whether a call currently holds the guard.
func (g *Guard) Entered() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.entered
}
