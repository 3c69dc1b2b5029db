/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package surface

import (
	"testing"
	"time"
)

func TestTrackerFlagsOverlapOnce(t *testing.T) {
	tr := NewTracker()
	base := time.Now()

	if tr.Observe("tab-1", base) {
		t.Fatal("first announce flagged")
	}
	if !tr.Observe("tab-2", base.Add(300*time.Millisecond)) {
		t.Fatal("overlapping announce not flagged")
	}
	if tr.Observe("tab-1", base.Add(600*time.Millisecond)) {
		t.Error("overlap flagged twice in one episode")
	}
}

func TestTrackerIgnoresSameTabAndQuietGaps(t *testing.T) {
	tr := NewTracker()
	base := time.Now()

	tr.Observe("tab-1", base)
	if tr.Observe("tab-1", base.Add(200*time.Millisecond)) {
		t.Error("re-announce by the same tab flagged")
	}
	if tr.Observe("tab-2", base.Add(5*time.Second)) {
		t.Error("announce after a quiet gap flagged")
	}
}

func TestTrackerRearmsAfterQuietWindow(t *testing.T) {
	tr := NewTracker()
	base := time.Now()

	tr.Observe("tab-1", base)
	if !tr.Observe("tab-2", base.Add(100*time.Millisecond)) {
		t.Fatal("first overlap not flagged")
	}

	// A new overlap episode after silence flags again.
	tr.Observe("tab-3", base.Add(10*time.Second))
	if !tr.Observe("tab-4", base.Add(10*time.Second+200*time.Millisecond)) {
		t.Error("overlap after rearm not flagged")
	}
}
