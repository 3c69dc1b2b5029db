/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package timeutil provides the small time/smoothing helpers shared by
// the playback view and the visualizer frame producers.
package timeutil

import "fmt"

// FormatMS renders a millisecond position as m:ss, the display format
// used on every surface. Negative or unknown positions render as 0:00.
func FormatMS(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	total := ms / 1000
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// Progress returns current/total clamped to [0,1]. A zero or negative
// total yields 0 so an unknown duration never produces a full bar.
func Progress(currentMS, totalMS int64) float64 {
	if totalMS <= 0 {
		return 0
	}
	p := float64(currentMS) / float64(totalMS)
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// BarSmoothing is the lerp factor every bar painter uses, idle and
// real alike. Sharing one factor keeps the idle-to-real handoff free of
// height jumps.
const BarSmoothing = 0.3

// Lerp moves current toward target by factor alpha. Both the idle
// animator and the real frequency bars are smoothed through this exact
// function so switching between the two never jumps bar heights.
func Lerp(current, target, alpha float64) float64 {
	return current + (target-current)*alpha
}

// LerpBytes applies Lerp element-wise over byte bars, writing into dst.
// dst and target must be the same length.
func LerpBytes(dst []byte, target []byte, alpha float64) {
	for i := range dst {
		v := Lerp(float64(dst[i]), float64(target[i]), alpha)
		if v < 0 {
			v = 0
		}
		if v > 255 {
			v = 255
		}
		dst[i] = byte(v)
	}
}
