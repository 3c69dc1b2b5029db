/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package surface

import (
	"testing"
	"time"

	"github.com/friendsincode/huginn/internal/models"
	"github.com/friendsincode/huginn/internal/protocol"
)

func TestReduceNewestTruthPerType(t *testing.T) {
	now := time.Now()
	var st State

	st = Reduce(st, protocol.New(protocol.SongUpdate{Song: &models.Song{ID: "a", Title: "First"}}), now)
	st = Reduce(st, protocol.New(protocol.SongUpdate{Song: &models.Song{ID: "b", Title: "Second"}}), now)
	if st.Song == nil || st.Song.ID != "b" {
		t.Fatalf("song = %+v, want the newest update", st.Song)
	}

	st = Reduce(st, protocol.New(protocol.SongData{DurationMS: 180000, CurrentMS: 5000}), now)
	st = Reduce(st, protocol.New(protocol.SongData{DurationMS: 180000, CurrentMS: 9000}), now)
	if st.CurrentMS != 9000 {
		t.Errorf("current = %d, want 9000", st.CurrentMS)
	}
	if st.Progress != 0.05 {
		t.Errorf("progress = %v, want 0.05", st.Progress)
	}
}

func TestReduceNilSongClearsPosition(t *testing.T) {
	now := time.Now()
	var st State
	st = Reduce(st, protocol.New(protocol.SongUpdate{Song: &models.Song{ID: "a"}}), now)
	st = Reduce(st, protocol.New(protocol.SongData{DurationMS: 180000, CurrentMS: 30000}), now)

	st = Reduce(st, protocol.New(protocol.SongUpdate{Song: nil}), now)
	if st.Song != nil || st.CurrentMS != 0 || st.DurationMS != 0 || st.Progress != 0 {
		t.Errorf("state after nil song = %+v, want cleared position", st)
	}
}

func TestReduceFramesClearIdle(t *testing.T) {
	now := time.Now()
	var st State
	st = Reduce(st, protocol.New(protocol.IdleAnimation{Preparing: true}), now)
	if !st.Idle || !st.Preparing {
		t.Fatalf("idle/preparing = %v/%v, want true/true", st.Idle, st.Preparing)
	}

	st = Reduce(st, protocol.New(protocol.AudioData{Data: []byte{1, 2, 3}}), now)
	if st.Idle || st.Preparing {
		t.Errorf("idle/preparing = %v/%v after live frame, want false/false", st.Idle, st.Preparing)
	}
	if len(st.Bars) != 3 {
		t.Errorf("bars = %v, want the frame", st.Bars)
	}
}

func TestReduceProgressCarriesOpportunisticFrame(t *testing.T) {
	now := time.Now()
	var st State
	st = Reduce(st, protocol.New(protocol.IdleAnimation{}), now)

	st = Reduce(st, protocol.New(protocol.ProgressUpdate{
		CurrentMS: 10000,
		TotalMS:   60000,
		Progress:  10000.0 / 60000.0,
		AudioData: []byte{7, 7},
	}), now)
	if st.Idle {
		t.Error("idle still set after a progress update with a frame")
	}
	if st.CurrentMS != 10000 || st.DurationMS != 60000 {
		t.Errorf("position = %d/%d, want 10000/60000", st.CurrentMS, st.DurationMS)
	}

	// Without a frame, progress leaves the idle flag alone.
	st = Reduce(st, protocol.New(protocol.IdleAnimation{}), now)
	st = Reduce(st, protocol.New(protocol.ProgressUpdate{CurrentMS: 11000, TotalMS: 60000}), now)
	if !st.Idle {
		t.Error("bare progress update cleared the idle flag")
	}
}

func TestReduceSeekIsIdempotentWithEcho(t *testing.T) {
	now := time.Now()
	var st State
	st = Reduce(st, protocol.New(protocol.SongData{DurationMS: 180000, CurrentMS: 5000}), now)

	st = Reduce(st, protocol.New(protocol.SeekRequest{TimeMS: 93500}), now)
	if st.CurrentMS != 93500 {
		t.Fatalf("current after seek = %d, want 93500", st.CurrentMS)
	}
	after := Reduce(st, protocol.New(protocol.SongData{DurationMS: 180000, CurrentMS: 93500}), now)
	if after.CurrentMS != st.CurrentMS || after.Progress != st.Progress {
		t.Errorf("echoed seek changed state: %+v vs %+v", after, st)
	}
}

func TestReduceDuplicateTabWindow(t *testing.T) {
	base := time.Now()

	st := State{}.Announced("tab-1", base)

	// Own echo never flags.
	st = Reduce(st, protocol.New(protocol.TabCheck{TabID: "tab-1"}), base.Add(100*time.Millisecond))
	if st.DuplicateTab {
		t.Fatal("own announce echo flagged as duplicate")
	}

	// Foreign announce inside the window flags.
	st = Reduce(st, protocol.New(protocol.TabCheck{TabID: "tab-2"}), base.Add(500*time.Millisecond))
	if !st.DuplicateTab {
		t.Fatal("foreign announce within the window not flagged")
	}

	// Foreign announce outside the window never flags a fresh state.
	st2 := State{}.Announced("tab-1", base)
	st2 = Reduce(st2, protocol.New(protocol.TabCheck{TabID: "tab-3"}), base.Add(3*time.Second))
	if st2.DuplicateTab {
		t.Error("foreign announce outside the window flagged")
	}
}

func TestReducePurity(t *testing.T) {
	now := time.Now()
	orig := State{Bars: []byte{1, 2, 3}, CurrentMS: 1000}
	_ = Reduce(orig, protocol.New(protocol.AudioData{Data: []byte{9, 9, 9}}), now)
	if orig.Bars[0] != 1 || orig.CurrentMS != 1000 {
		t.Error("Reduce mutated its input state")
	}
}
