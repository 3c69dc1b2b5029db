/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package seek

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/friendsincode/huginn/internal/audiograph"
)

type fakeSyncer struct {
	applied []int64
	clampTo int64
}

func (f *fakeSyncer) ApplySeek(targetMS int64) int64 {
	if targetMS < 0 {
		targetMS = 0
	}
	if f.clampTo > 0 && targetMS > f.clampTo {
		targetMS = f.clampTo
	}
	f.applied = append(f.applied, targetMS)
	return targetMS
}

type fakeBot struct {
	err   error
	seeks []int64
}

func (f *fakeBot) Seek(_ context.Context, timeMS int64) error {
	f.seeks = append(f.seeks, timeMS)
	return f.err
}

type fakeRefresher struct{ calls int }

func (f *fakeRefresher) ForceRefresh() { f.calls++ }

type fakeSeekHistory struct {
	sources []string
	targets []int64
}

func (f *fakeSeekHistory) RecordSeek(source string, targetMS int64) {
	f.sources = append(f.sources, source)
	f.targets = append(f.targets, targetMS)
}

func newTestController() (*Controller, *fakeSyncer, *fakeBot, *fakeRefresher, *fakeSeekHistory, *audiograph.Gate) {
	sy := &fakeSyncer{clampTo: 180000}
	bot := &fakeBot{}
	ref := &fakeRefresher{}
	hist := &fakeSeekHistory{}
	gate := audiograph.NewGate(false)
	c := NewController(sy, bot, ref, gate, hist, zerolog.Nop())
	return c, sy, bot, ref, hist, gate
}

func TestHandleAppliesLocallyThenMutates(t *testing.T) {
	c, sy, bot, ref, hist, gate := newTestController()

	applied, err := c.Handle(context.Background(), SourceSurface, 93500)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if applied != 93500 {
		t.Errorf("applied = %d, want 93500", applied)
	}
	if !gate.Unlocked() {
		t.Error("seek did not unlock the output gate")
	}
	if len(sy.applied) != 1 || sy.applied[0] != 93500 {
		t.Errorf("local seeks = %v, want [93500]", sy.applied)
	}
	if len(bot.seeks) != 1 || bot.seeks[0] != 93500 {
		t.Errorf("bot seeks = %v, want [93500]", bot.seeks)
	}
	if ref.calls != 1 {
		t.Errorf("force refreshes = %d, want 1", ref.calls)
	}
	if len(hist.targets) != 1 || hist.targets[0] != 93500 || hist.sources[0] != SourceSurface {
		t.Errorf("history = %v/%v, want one surface seek at 93500", hist.sources, hist.targets)
	}
}

func TestHandleSendsClampedTargetToBot(t *testing.T) {
	c, _, bot, _, _, _ := newTestController()

	applied, err := c.Handle(context.Background(), SourceAPI, 999999999)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if applied != 180000 {
		t.Errorf("applied = %d, want 180000", applied)
	}
	if bot.seeks[0] != 180000 {
		t.Errorf("bot received %d, want the clamped 180000", bot.seeks[0])
	}
}

func TestHandleMutationFailureStaysOptimistic(t *testing.T) {
	c, sy, bot, ref, hist, _ := newTestController()
	bot.err = errors.New("bot unreachable")

	applied, err := c.Handle(context.Background(), SourceSurface, 60000)
	if err == nil {
		t.Fatal("Handle returned nil error on mutation failure")
	}
	if applied != 60000 {
		t.Errorf("applied = %d, want 60000", applied)
	}
	if len(sy.applied) != 1 {
		t.Error("local seek skipped on mutation failure")
	}
	if ref.calls != 0 {
		t.Error("force refresh fired despite mutation failure")
	}
	if len(hist.targets) != 1 {
		t.Error("history not recorded on mutation failure")
	}
}
