// Package scangate turns a noisy stream of decoded strings into discrete
// scan events: one acceptance per logical scan.
package scangate

import (
	"sync"
	"time"
)

const (
	DefaultWindow   = 1500 * time.Millisecond
	DefaultCooldown = 750 * time.Millisecond
)

// Gate is safe for concurrent use; the frame pipeline submits while the
// owning flow primes and suppresses.
type Gate struct {
	mu sync.Mutex

	window   time.Duration
	cooldown time.Duration

	lastCode       string
	lastAcceptedAt time.Time
	suppressUntil  time.Time
}

func New(window, cooldown time.Duration) *Gate {
	if window <= 0 {
		window = DefaultWindow
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Gate{window: window, cooldown: cooldown}
}

// Submit reports whether code is a new scan at now. Only accepted codes move
// the debounce window; rejected repeats do not extend it.
func (g *Gate) Submit(code string, now time.Time) bool {
	if code == "" {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if now.Before(g.suppressUntil) {
		return false
	}
	if code == g.lastCode && now.Sub(g.lastAcceptedAt) < g.window {
		return false
	}
	g.lastCode = code
	g.lastAcceptedAt = now
	return true
}

// Prime records code as just consumed and suppresses everything for the
// cooldown. Flows must call it when switching scan targets, otherwise the
// camera still seeing the previous code reads as a fresh scan.
func (g *Gate) Prime(code string, now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastCode = code
	g.lastAcceptedAt = now
	if until := now.Add(g.cooldown); until.After(g.suppressUntil) {
		g.suppressUntil = until
	}
}

// Suppress rejects all submissions before until.
func (g *Gate) Suppress(until time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if until.After(g.suppressUntil) {
		g.suppressUntil = until
	}
}

// SuppressFor is Suppress(now + cooldown).
func (g *Gate) SuppressFor(now time.Time) {
	g.Suppress(now.Add(g.cooldown))
}

func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastCode = ""
	g.lastAcceptedAt = time.Time{}
	g.suppressUntil = time.Time{}
}

func (g *Gate) LastCode() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastCode
}
