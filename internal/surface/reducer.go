/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package surface carries the websocket gateway between the agent and
// its browser surfaces, plus the pure per-surface state reducer the
// message protocol is specified against.
package surface

import (
	"time"

	"github.com/friendsincode/huginn/internal/models"
	"github.com/friendsincode/huginn/internal/protocol"
	"github.com/friendsincode/huginn/internal/timeutil"
)

// duplicateWindow is how long after its own announce a surface treats a
// foreign TAB_CHECK as evidence of overlapping tabs.
const duplicateWindow = time.Second

// State is one surface's view of the playback world. Every message is
// newest truth for the fields it carries; nothing merges across
// messages of the same type.
type State struct {
	Song       *models.Song
	DurationMS int64
	CurrentMS  int64
	Progress   float64
	Bars       []byte
	Idle       bool
	Preparing  bool
	Settings   models.Settings

	// OwnTabID and AnnouncedAt identify this surface's own TAB_CHECK
	// announce; DuplicateTab latches once overlap is observed.
	OwnTabID     string
	AnnouncedAt  time.Time
	DuplicateTab bool
}

// Announced returns the state after this surface sends its own
// announce. Call it once at connect, before reducing inbound traffic.
func (s State) Announced(tabID string, now time.Time) State {
	s.OwnTabID = tabID
	s.AnnouncedAt = now
	return s
}

// Reduce folds one broadcast message into the state. It is pure: the
// input state is never mutated.
func Reduce(state State, msg protocol.Message, now time.Time) State {
	switch p := msg.Payload.(type) {
	case protocol.SongUpdate:
		state.Song = p.Song
		if p.Song == nil {
			state.DurationMS = 0
			state.CurrentMS = 0
			state.Progress = 0
		}

	case protocol.SongData:
		state.DurationMS = p.DurationMS
		state.CurrentMS = p.CurrentMS
		state.Progress = timeutil.Progress(p.CurrentMS, p.DurationMS)

	case protocol.ProgressUpdate:
		state.CurrentMS = p.CurrentMS
		state.DurationMS = p.TotalMS
		state.Progress = p.Progress
		if len(p.AudioData) > 0 {
			state.Bars = append([]byte(nil), p.AudioData...)
			state.Idle = false
		}

	case protocol.AudioData:
		state.Bars = append([]byte(nil), p.Data...)
		state.Idle = false
		state.Preparing = false

	case protocol.IdleAnimation:
		state.Idle = true
		state.Preparing = p.Preparing

	case protocol.SettingsUpdate:
		state.Settings = p.Settings

	case protocol.SeekRequest:
		state.CurrentMS = p.TimeMS
		state.Progress = timeutil.Progress(p.TimeMS, state.DurationMS)

	case protocol.TabCheck:
		if p.TabID != state.OwnTabID && !state.AnnouncedAt.IsZero() &&
			now.Sub(state.AnnouncedAt) <= duplicateWindow {
			state.DuplicateTab = true
		}
	}

	return state
}
