/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback

import (
	"context"

	"github.com/friendsincode/huginn/internal/audiograph"
	"github.com/friendsincode/huginn/internal/models"
)

// Element is the slice of the audio element the synchronizer drives.
type Element interface {
	Play() audiograph.StartResult
	Pause()
	Paused() bool
	SeekMS(ms int64) error
	PositionMS() int64
	DurationMS() int64
	Frame() []byte
	Close() error
}

// Source builds one playable element per stream URL.
type Source interface {
	Attach(ctx context.Context, streamURL string) (Element, error)
}

// GraphSource adapts the concrete audio graph to the Source interface.
type GraphSource struct {
	Graph *audiograph.Graph
}

func (s GraphSource) Attach(ctx context.Context, streamURL string) (Element, error) {
	el, err := s.Graph.Attach(ctx, streamURL)
	if err != nil {
		return nil, err
	}
	return el, nil
}

// HistoryRecorder receives one call per song the synchronizer binds.
type HistoryRecorder interface {
	RecordPlay(song models.Song)
}
