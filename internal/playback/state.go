/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback

import "errors"

// ErrInvalidTransition indicates a playback state transition outside
// the allowed set was attempted.
var ErrInvalidTransition = errors.New("invalid playback transition")

// State is the synchronizer's view of the current song slot.
type State string

const (
	// StateEmpty means no song occupies the slot.
	StateEmpty State = "empty"
	// StatePreparing means a song occupies the slot but no local
	// element is usable (stream still downloading, or undecodable).
	StatePreparing State = "preparing"
	// StateBound means an element is attached and seeked but playback
	// has not been reconciled yet.
	StateBound State = "bound"
	// StatePlaying means the local element is advancing.
	StatePlaying State = "playing"
	// StatePaused means the local element holds position.
	StatePaused State = "paused"
)

// validTransitions is the closed transition set. A song appearing with
// its stream already decodable goes straight from empty to bound; the
// preparing hop only exists while the stream URL is absent.
var validTransitions = map[State][]State{
	StateEmpty:     {StatePreparing, StateBound},
	StatePreparing: {StateEmpty, StateBound},
	StateBound:     {StateEmpty, StatePreparing, StatePlaying, StatePaused},
	StatePlaying:   {StateEmpty, StatePreparing, StateBound, StatePaused},
	StatePaused:    {StateEmpty, StatePreparing, StateBound, StatePlaying},
}

func canTransition(from, to State) bool {
	if from == to {
		return true
	}
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
