/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package queueview projects playback snapshots into the render model
// served to surfaces. Build is a pure function; View layers the live
// inputs (latest snapshot, settings, visualizer bars, idle mode) and
// extrapolates elapsed time between polls.
package queueview

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/friendsincode/huginn/internal/bus"
	"github.com/friendsincode/huginn/internal/models"
	"github.com/friendsincode/huginn/internal/protocol"
	"github.com/friendsincode/huginn/internal/timeutil"
)

// SongView is the current-song panel.
type SongView struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	Artist       string  `json:"artist"`
	Requester    string  `json:"requester,omitempty"`
	ThumbnailURL string  `json:"thumbnailUrl,omitempty"`
	Elapsed      string  `json:"elapsed"`
	Duration     string  `json:"duration"`
	ElapsedMS    int64   `json:"elapsedMs"`
	DurationMS   int64   `json:"durationMs"`
	Progress     float64 `json:"progress"`
	IsPaused     bool    `json:"isPaused"`
	StatusLabel  string  `json:"statusLabel,omitempty"`
}

// QueueRow is one pending entry.
type QueueRow struct {
	Position    int    `json:"position"`
	ID          string `json:"id"`
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	Requester   string `json:"requester,omitempty"`
	Duration    string `json:"duration"`
	StatusLabel string `json:"statusLabel,omitempty"`
	Ready       bool   `json:"ready"`
}

// Model is the full render model behind GET /api/view.
type Model struct {
	CurrentSong *SongView       `json:"currentSong"`
	Queue       []QueueRow      `json:"queue"`
	QueueLength int             `json:"queueLength"`
	Settings    models.Settings `json:"settings"`
	Bars        []byte          `json:"bars,omitempty"`
	Idle        bool            `json:"idle"`
	Preparing   bool            `json:"preparing"`
	GeneratedAt time.Time       `json:"generatedAt"`
}

// Build projects one snapshot. elapsedMS overrides the snapshot's
// elapsed counter for the current song, so callers can extrapolate
// between polls; pass song.ElapsedMS for the raw projection.
func Build(snap models.PlaybackSnapshot, settings models.Settings, elapsedMS int64) Model {
	m := Model{
		Settings:    settings,
		QueueLength: len(snap.Queue),
	}

	if song := snap.CurrentSong; song != nil {
		if elapsedMS > song.DurationMS && song.DurationMS > 0 {
			elapsedMS = song.DurationMS
		}
		sv := &SongView{
			ID:           song.ID,
			Title:        song.Title,
			Artist:       song.Artist,
			ThumbnailURL: song.ThumbnailURL,
			Elapsed:      timeutil.FormatMS(elapsedMS),
			Duration:     timeutil.FormatMS(song.DurationMS),
			ElapsedMS:    elapsedMS,
			DurationMS:   song.DurationMS,
			Progress:     timeutil.Progress(elapsedMS, song.DurationMS),
			IsPaused:     song.IsPaused,
			StatusLabel:  downloadLabel(song.DownloadStatus, song.DownloadProgressPct),
		}
		if settings.ShowRequester {
			sv.Requester = song.Requester
		}
		m.CurrentSong = sv
	}

	for i, item := range snap.Queue {
		row := QueueRow{
			Position:    i + 1,
			ID:          item.ID,
			Title:       item.Title,
			Artist:      item.Artist,
			Duration:    timeutil.FormatMS(item.DurationMS),
			StatusLabel: downloadLabel(item.DownloadStatus, item.DownloadProgressPct),
			Ready:       item.DownloadStatus == models.DownloadReady || item.DownloadStatus == "",
		}
		if settings.ShowRequester {
			row.Requester = item.Requester
		}
		m.Queue = append(m.Queue, row)
	}

	return m
}

// downloadLabel renders the download pipeline state for display. Ready
// entries carry no label.
func downloadLabel(status models.DownloadState, pct int) string {
	switch status {
	case models.DownloadQueued:
		return "Queued"
	case models.DownloadResolving:
		return "Resolving"
	case models.DownloadDownloading:
		return fmt.Sprintf("Downloading %d%%", pct)
	case models.DownloadConverting:
		return "Converting"
	case models.DownloadError:
		return "Download failed"
	default:
		return ""
	}
}

// View holds the live render inputs and answers Model() at any time.
type View struct {
	mu        sync.RWMutex
	snap      models.PlaybackSnapshot
	snapAt    time.Time
	settings  models.Settings
	bars      []byte
	idle      bool
	preparing bool
}

// NewView returns an empty view; the first poll populates it.
func NewView() *View {
	return &View{}
}

// OnSnapshot stores the newest snapshot. Register with the poller.
func (v *View) OnSnapshot(snap models.PlaybackSnapshot) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.snap = snap
	v.snapAt = time.Now()
}

// ApplySettings replaces the rendering settings.
func (v *View) ApplySettings(s models.Settings) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.settings = s
}

// SetBars stores a real visualizer frame and clears the idle flag;
// live frames only flow while real audio advances.
func (v *View) SetBars(bars []byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.storeBarsLocked(bars)
	v.idle = false
}

// SetIdleBars stores a synthetic frame without touching the idle flag.
// Wire the idle animator's frame hook here.
func (v *View) SetIdleBars(bars []byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.storeBarsLocked(bars)
}

func (v *View) storeBarsLocked(bars []byte) {
	if cap(v.bars) < len(bars) {
		v.bars = make([]byte, len(bars))
	}
	v.bars = v.bars[:len(bars)]
	copy(v.bars, bars)
}

// SetIdle flags that the idle animator is driving the bars.
func (v *View) SetIdle(preparing bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.idle = true
	v.preparing = preparing
}

// Model builds the current render model, extrapolating the elapsed
// counter by wall time since the last snapshot unless paused.
func (v *View) Model() Model {
	v.mu.RLock()
	defer v.mu.RUnlock()

	var elapsed int64
	if song := v.snap.CurrentSong; song != nil {
		elapsed = song.ElapsedMS
		if !song.IsPaused && !v.snapAt.IsZero() {
			elapsed += time.Since(v.snapAt).Milliseconds()
		}
	}

	m := Build(v.snap, v.settings, elapsed)
	m.Idle = v.idle
	m.Preparing = v.idle && v.preparing
	m.GeneratedAt = time.Now()
	if len(v.bars) > 0 {
		m.Bars = append([]byte(nil), v.bars...)
	}
	return m
}

// Watch keeps the view fed from the broadcast bus until ctx ends:
// AUDIO_DATA refreshes bars (and clears the idle flag), IDLE_ANIMATION
// flags idle mode, SETTINGS_UPDATE swaps settings.
func (v *View) Watch(ctx context.Context, b *bus.Bus) {
	sub := b.Subscribe(protocol.TypeAudioData, protocol.TypeIdleAnimation, protocol.TypeSettingsUpdate)
	defer b.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub:
			if !ok {
				return
			}
			switch p := msg.Payload.(type) {
			case protocol.AudioData:
				v.SetBars(p.Data)
			case protocol.IdleAnimation:
				v.SetIdle(p.Preparing)
			case protocol.SettingsUpdate:
				v.ApplySettings(p.Settings)
			}
		}
	}
}
