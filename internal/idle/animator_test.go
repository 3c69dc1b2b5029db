/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package idle

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type frameSink struct {
	mu     sync.Mutex
	frames [][]byte
	modes  []bool
}

func (s *frameSink) onFrame(f []byte) {
	s.mu.Lock()
	s.frames = append(s.frames, f)
	s.mu.Unlock()
}

func (s *frameSink) onMode(preparing bool) {
	s.mu.Lock()
	s.modes = append(s.modes, preparing)
	s.mu.Unlock()
}

func (s *frameSink) frameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func (s *frameSink) modeCalls() []bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]bool(nil), s.modes...)
}

func waitForFrames(t *testing.T, s *frameSink, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for s.frameCount() < n {
		if time.Now().After(deadline) {
			t.Fatalf("only %d frames after 2s, want %d", s.frameCount(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestFramesFlowAndStopCancels(t *testing.T) {
	sink := &frameSink{}
	a := New(64, sink.onFrame, sink.onMode, zerolog.Nop())

	a.Start(false)
	if !a.Running() {
		t.Fatal("not running after Start")
	}
	waitForFrames(t, sink, 3)

	a.Stop()
	if a.Running() {
		t.Fatal("still running after Stop")
	}
	// The one in-flight frame may still land; after that the loop must
	// be dead.
	time.Sleep(50 * time.Millisecond)
	settled := sink.frameCount()
	time.Sleep(100 * time.Millisecond)
	if got := sink.frameCount(); got > settled {
		t.Errorf("frames kept flowing after Stop: %d -> %d", settled, got)
	}
}

func TestFrameShapeAndMotion(t *testing.T) {
	sink := &frameSink{}
	a := New(64, sink.onFrame, nil, zerolog.Nop())

	a.Start(false)
	defer a.Stop()
	waitForFrames(t, sink, 6)

	sink.mu.Lock()
	frames := sink.frames[:6]
	sink.mu.Unlock()

	for i, f := range frames {
		if len(f) != 64 {
			t.Fatalf("frame %d has %d bands, want 64", i, len(f))
		}
	}

	allSame := true
	for _, f := range frames[1:] {
		for i := range f {
			if f[i] != frames[0][i] {
				allSame = false
			}
		}
	}
	if allSame {
		t.Error("six consecutive frames identical, animation is frozen")
	}
}

func TestStartIsIdempotent(t *testing.T) {
	sink := &frameSink{}
	a := New(64, sink.onFrame, sink.onMode, zerolog.Nop())

	a.Start(true)
	a.Start(true)
	defer a.Stop()

	if got := sink.modeCalls(); len(got) != 1 || got[0] != true {
		t.Errorf("mode calls = %v, want exactly one preparing=true", got)
	}
}

func TestModeFlipRebroadcastsWithoutSecondLoop(t *testing.T) {
	sink := &frameSink{}
	a := New(64, sink.onFrame, sink.onMode, zerolog.Nop())

	a.Start(true)
	a.Start(false)
	defer a.Stop()

	got := sink.modeCalls()
	if len(got) != 2 || got[0] != true || got[1] != false {
		t.Errorf("mode calls = %v, want [true false]", got)
	}
	if a.Preparing() {
		t.Error("preparing flag did not flip")
	}
}

func TestRestartUsesFreshGeneration(t *testing.T) {
	sink := &frameSink{}
	a := New(64, sink.onFrame, nil, zerolog.Nop())

	// A rapid stop/start must not leave two frame chains alive. Measure
	// the frame rate afterwards; a doubled loop would roughly double it.
	a.Start(false)
	a.Stop()
	a.Start(false)
	defer a.Stop()

	waitForFrames(t, sink, 2)
	base := sink.frameCount()
	time.Sleep(320 * time.Millisecond)
	got := sink.frameCount() - base

	// 320ms at one frame per 16ms is ~20 frames; two chains would be
	// ~40. Generous slack for scheduler jitter.
	if got > 30 {
		t.Errorf("%d frames in 320ms, loop appears doubled", got)
	}
}

func TestSeedCarriesBarHeightsIntoFirstFrames(t *testing.T) {
	sink := &frameSink{}
	a := New(64, sink.onFrame, nil, zerolog.Nop())

	seed := make([]byte, 64)
	for i := range seed {
		seed[i] = 255
	}
	a.Seed(seed)
	a.Start(false)
	defer a.Stop()
	waitForFrames(t, sink, 1)

	sink.mu.Lock()
	first := sink.frames[0]
	sink.mu.Unlock()

	// One lerp step from 255 can fall at most 30% toward any target.
	for i, b := range first {
		if b < 150 {
			t.Fatalf("band %d dropped to %d on the first frame after a full-scale seed", i, b)
		}
	}
}
