/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package idle synthesizes visualizer frames when no decodable audio is
// bound. Surfaces keep animating through track preparation, pauses and
// decode failures instead of freezing.
package idle

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/huginn/internal/timeutil"
)

// frameInterval approximates one animation frame.
const frameInterval = 16 * time.Millisecond

// Animator runs a cooperative self-rescheduling frame loop: exactly one
// frame is ever scheduled, each frame re-arms the next, and Stop flips
// a flag the next frame observes. Bar heights come from summed sine
// waves plus a little jitter, smoothed through the shared lerp so the
// idle-to-real transition never jumps.
type Animator struct {
	log     zerolog.Logger
	onFrame func([]byte)
	onMode  func(preparing bool)

	mu        sync.Mutex
	running   bool
	preparing bool
	gen       int
	phase     float64
	bars      []byte
	target    []byte
	rng       *rand.Rand
}

// New builds an animator producing frames of the given band count.
// onFrame receives each synthetic frame; onMode fires when the loop
// starts or its preparing flag flips. Either callback may be nil.
func New(bands int, onFrame func([]byte), onMode func(bool), logger zerolog.Logger) *Animator {
	return &Animator{
		log:     logger.With().Str("component", "idle").Logger(),
		onFrame: onFrame,
		onMode:  onMode,
		bars:    make([]byte, bands),
		target:  make([]byte, bands),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Start begins the frame loop. Calling it while a loop is already
// scheduled is a no-op unless the preparing flag changes, in which case
// only the mode is rebroadcast. The generation counter keeps a stale
// scheduled frame from a previous Start/Stop cycle from doubling the
// loop.
func (a *Animator) Start(preparing bool) {
	a.mu.Lock()
	if a.running {
		if a.preparing == preparing {
			a.mu.Unlock()
			return
		}
		a.preparing = preparing
		mode := a.onMode
		a.mu.Unlock()
		if mode != nil {
			mode(preparing)
		}
		return
	}
	a.running = true
	a.preparing = preparing
	a.gen++
	gen := a.gen
	mode := a.onMode
	a.mu.Unlock()

	a.log.Debug().Bool("preparing", preparing).Msg("idle animation started")
	if mode != nil {
		mode(preparing)
	}
	time.AfterFunc(frameInterval, func() { a.frame(gen) })
}

// Stop flags the loop to self-cancel; the in-flight frame exits without
// rescheduling. Safe when not running.
func (a *Animator) Stop() {
	a.mu.Lock()
	wasRunning := a.running
	a.running = false
	a.mu.Unlock()
	if wasRunning {
		a.log.Debug().Msg("idle animation stopped")
	}
}

// Running reports whether a frame loop is currently scheduled.
func (a *Animator) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// Preparing reports the current mode.
func (a *Animator) Preparing() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.preparing
}

// Seed primes the smoothed bar state, typically with the last real
// frame, so the first idle frames continue from where real data left
// off.
func (a *Animator) Seed(frame []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	copy(a.bars, frame)
}

func (a *Animator) frame(gen int) {
	a.mu.Lock()
	if !a.running || gen != a.gen {
		a.mu.Unlock()
		return
	}

	step, scale := 0.09, 1.0
	if a.preparing {
		step, scale = 0.035, 0.45
	}
	a.phase += step
	a.synthesize(scale)
	timeutil.LerpBytes(a.bars, a.target, timeutil.BarSmoothing)
	out := append([]byte(nil), a.bars...)
	emit := a.onFrame
	a.mu.Unlock()

	if emit != nil {
		emit(out)
	}
	time.AfterFunc(frameInterval, func() { a.frame(gen) })
}

// synthesize fills target with the raw (pre-lerp) bar heights for the
// current phase.
func (a *Animator) synthesize(scale float64) {
	n := float64(len(a.target))
	for i := range a.target {
		x := float64(i) / n
		v := 0.35 +
			0.25*math.Sin(2*math.Pi*1.5*x+a.phase) +
			0.15*math.Sin(2*math.Pi*3.0*x-1.7*a.phase) +
			0.10*math.Sin(2*math.Pi*0.5*x+0.6*a.phase)
		v += (a.rng.Float64() - 0.5) * 0.08
		v *= scale
		if v < 0 {
			v = 0
		}
		if v > 1 {
			v = 1
		}
		a.target[i] = byte(v * 255)
	}
}
