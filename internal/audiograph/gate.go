/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package audiograph

import "sync"

// Gate models the media autoplay policy: decode playback stays refused
// until a user gesture arrives from some surface. It starts locked
// unless the deployment opts out, and once unlocked it never relocks
// for the rest of the process lifetime.
type Gate struct {
	mu       sync.Mutex
	unlocked bool
	waiters  []func()
}

// NewGate creates a gate. Pass unlocked=true to start open (trusted
// deployments with no gesture requirement).
func NewGate(unlocked bool) *Gate {
	return &Gate{unlocked: unlocked}
}

// Unlocked reports whether playback starts are currently allowed.
func (g *Gate) Unlocked() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.unlocked
}

// Unlock opens the gate. Registered callbacks fire exactly once, on the
// first unlock; repeated unlocks are no-ops.
func (g *Gate) Unlock() {
	g.mu.Lock()
	if g.unlocked {
		g.mu.Unlock()
		return
	}
	g.unlocked = true
	waiters := g.waiters
	g.waiters = nil
	g.mu.Unlock()

	for _, fn := range waiters {
		fn()
	}
}

// OnUnlock registers a callback invoked when the gate first opens. If
// the gate is already open the callback runs immediately. This is how a
// late user gesture wakes a blocked playback start without waiting for
// the next watchdog tick.
func (g *Gate) OnUnlock(fn func()) {
	g.mu.Lock()
	if g.unlocked {
		g.mu.Unlock()
		fn()
		return
	}
	g.waiters = append(g.waiters, fn)
	g.mu.Unlock()
}
