/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package audiograph

import (
	"math"
	"sync"
)

// FrameBands is the number of frequency bands in one visualizer frame.
const FrameBands = 64

// analysisWindow is the number of recent mono samples one frame is
// computed over. 128 samples at 64 bins mirrors the byte-frequency
// analyser the surfaces were originally built against.
const analysisWindow = 2 * FrameBands

// Decibel range mapped onto byte values 0..255. Magnitudes at or below
// minDB render as 0, at or above maxDB as 255.
const (
	minDB = -100.0
	maxDB = -30.0
)

// analyser taps decoded samples into a ring buffer and renders the
// newest window as a 64-band byte frame. It never reports an error:
// with no data flowing the frame is all zeros.
type analyser struct {
	mu  sync.Mutex
	buf []float64
	pos int
	fed bool
}

func newAnalyser() *analyser {
	return &analyser{buf: make([]float64, analysisWindow*4)}
}

// feed captures a mono mix of n decoded sample pairs.
func (a *analyser) feed(samples [][2]float64, n int) {
	a.mu.Lock()
	for i := 0; i < n; i++ {
		a.buf[a.pos] = (samples[i][0] + samples[i][1]) / 2
		a.pos = (a.pos + 1) % len(a.buf)
	}
	if n > 0 {
		a.fed = true
	}
	a.mu.Unlock()
}

// reset clears captured samples so a detached element stops producing
// stale bars.
func (a *analyser) reset() {
	a.mu.Lock()
	for i := range a.buf {
		a.buf[i] = 0
	}
	a.pos = 0
	a.fed = false
	a.mu.Unlock()
}

// frame renders the current 64-band byte frame.
func (a *analyser) frame() []byte {
	window := make([]float64, analysisWindow)

	a.mu.Lock()
	if !a.fed {
		a.mu.Unlock()
		return make([]byte, FrameBands)
	}
	start := (a.pos - analysisWindow + len(a.buf)) % len(a.buf)
	for i := range window {
		window[i] = a.buf[(start+i)%len(a.buf)]
	}
	a.mu.Unlock()

	return bandsFromWindow(window)
}

// bandsFromWindow computes the magnitude spectrum of the window and
// maps each bin's level in dBFS onto a byte. Bin k of a real DFT over
// 2*FrameBands samples covers k/(2*FrameBands) of the sample rate, the
// same linear spacing surfaces expect; the DC bin is skipped.
func bandsFromWindow(window []float64) []byte {
	n := len(window)
	out := make([]byte, FrameBands)

	// Hann window keeps bin leakage from smearing quiet bands.
	shaped := make([]float64, n)
	for i, s := range window {
		w := 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
		shaped[i] = s * w
	}

	for k := 1; k <= FrameBands; k++ {
		var re, im float64
		step := 2 * math.Pi * float64(k) / float64(n)
		for i, s := range shaped {
			angle := step * float64(i)
			re += s * math.Cos(angle)
			im -= s * math.Sin(angle)
		}
		mag := math.Hypot(re, im) / (float64(n) / 2)
		out[k-1] = magnitudeToByte(mag)
	}
	return out
}

func magnitudeToByte(mag float64) byte {
	if mag <= 0 {
		return 0
	}
	db := 20 * math.Log10(mag)
	if db <= minDB {
		return 0
	}
	if db >= maxDB {
		return 255
	}
	return byte(math.Round(255 * (db - minDB) / (maxDB - minDB)))
}
