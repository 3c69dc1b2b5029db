/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package surface

import (
	"sync"
	"time"
)

// Tracker observes TAB_CHECK announces flowing through the gateway and
// spots overlapping surfaces: two different tab IDs announcing within
// the duplicate window. Purely advisory; surfaces arbitrate nothing.
type Tracker struct {
	mu         sync.Mutex
	lastTabID  string
	lastSeenAt time.Time
	warned     bool
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Observe records one announce and reports whether it overlaps a
// different tab's announce within the window. True at most once per
// overlap episode; the flag rearms after a quiet window.
func (t *Tracker) Observe(tabID string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	overlap := t.lastTabID != "" &&
		t.lastTabID != tabID &&
		now.Sub(t.lastSeenAt) <= duplicateWindow

	if !overlap || now.Sub(t.lastSeenAt) > duplicateWindow {
		t.warned = false
	}

	t.lastTabID = tabID
	t.lastSeenAt = now

	if overlap && !t.warned {
		t.warned = true
		return true
	}
	return false
}
