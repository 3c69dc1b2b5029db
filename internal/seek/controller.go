/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package seek relays seek intents from surfaces and the local API to
// the bot, applying the position locally first so the UI answers
// immediately and the next poll only has to confirm.
package seek

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/friendsincode/huginn/internal/audiograph"
	"github.com/friendsincode/huginn/internal/telemetry"
)

// Seek intent origins, used as the metric source label.
const (
	SourceSurface = "surface"
	SourceAPI     = "api"
)

// Syncer is the local playback side of a seek: clamp the target and
// move the element optimistically.
type Syncer interface {
	ApplySeek(targetMS int64) int64
}

// BotAPI is the backend mutation.
type BotAPI interface {
	Seek(ctx context.Context, timeMS int64) error
}

// Refresher triggers an out-of-band status poll.
type Refresher interface {
	ForceRefresh()
}

// History records applied seek intents. Implementations must not block.
type History interface {
	RecordSeek(source string, targetMS int64)
}

// Controller owns the seek path end to end.
type Controller struct {
	log    zerolog.Logger
	sync   Syncer
	api    BotAPI
	poller Refresher
	gate   *audiograph.Gate
	hist   History
}

// NewController wires the seek path. hist may be nil when seek history
// is disabled.
func NewController(sync Syncer, api BotAPI, poller Refresher, gate *audiograph.Gate, hist History, logger zerolog.Logger) *Controller {
	return &Controller{
		log:    logger.With().Str("component", "seek").Logger(),
		sync:   sync,
		api:    api,
		poller: poller,
		gate:   gate,
		hist:   hist,
	}
}

// Handle applies one seek intent and returns the clamped position that
// was actually requested. A seek is a user gesture, so the output gate
// unlocks before anything else; the local element moves optimistically
// even when the backend mutation fails, and the next poll reconciles
// whichever side is wrong.
func (c *Controller) Handle(ctx context.Context, source string, targetMS int64) (int64, error) {
	c.gate.Unlock()
	applied := c.sync.ApplySeek(targetMS)

	if c.hist != nil {
		c.hist.RecordSeek(source, applied)
	}

	if err := c.api.Seek(ctx, applied); err != nil {
		telemetry.SeekRequestsTotal.WithLabelValues(source, "error").Inc()
		c.log.Warn().
			Err(err).
			Str("source", source).
			Int64("target_ms", applied).
			Msg("seek mutation failed, next poll reconciles")
		return applied, err
	}

	telemetry.SeekRequestsTotal.WithLabelValues(source, "ok").Inc()
	c.log.Info().Str("source", source).Int64("target_ms", applied).Msg("seek applied")
	c.poller.ForceRefresh()
	return applied, nil
}
