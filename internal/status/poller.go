/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package status polls the bot for the authoritative playback snapshot
// and fans it out to the synchronizer and the view builder.
package status

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/huginn/internal/botapi"
	"github.com/friendsincode/huginn/internal/models"
	"github.com/friendsincode/huginn/internal/telemetry"
)

// DefaultInterval is the poll cadence. Two seconds is frequent enough
// that a failed poll needs no backoff; the next one is already close.
const DefaultInterval = 2 * time.Second

// API is the slice of the bot client the poller needs.
type API interface {
	Status(ctx context.Context) (*models.StatusResponse, error)
}

// Poller fetches the snapshot on a fixed interval with an immediate
// first poll. ForceRefresh triggers one extra out-of-band poll without
// disturbing the ticker. Auth loss is terminal: Run returns and is
// never restarted.
type Poller struct {
	api      API
	interval time.Duration
	log      zerolog.Logger

	refreshCh  chan struct{}
	onSnapshot []func(models.PlaybackSnapshot)
	onAuthLost func()
}

// New builds a poller. A non-positive interval falls back to
// DefaultInterval.
func New(api API, interval time.Duration, logger zerolog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		api:       api,
		interval:  interval,
		log:       logger.With().Str("component", "status-poller").Logger(),
		refreshCh: make(chan struct{}, 1),
	}
}

// OnSnapshot registers a handler for every successful poll. Handlers
// run in registration order on the poll goroutine; register them before
// Run.
func (p *Poller) OnSnapshot(fn func(models.PlaybackSnapshot)) {
	p.onSnapshot = append(p.onSnapshot, fn)
}

// OnAuthLost registers the terminal redirect signal, fired once if the
// bot reports the session gone. Register before Run.
func (p *Poller) OnAuthLost(fn func()) {
	p.onAuthLost = fn
}

// ForceRefresh schedules one immediate poll. Coalesces: a refresh
// already pending absorbs further requests.
func (p *Poller) ForceRefresh() {
	select {
	case p.refreshCh <- struct{}{}:
	default:
	}
}

// Run polls until the context ends or authentication is lost. The
// first poll happens immediately. Returns nil on context cancellation,
// botapi.ErrUnauthenticated when the session died.
func (p *Poller) Run(ctx context.Context) error {
	p.log.Debug().Dur("interval", p.interval).Msg("status poller started")

	if err := p.poll(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Debug().Msg("status poller stopped")
			return nil
		case <-ticker.C:
			if err := p.poll(ctx); err != nil {
				return err
			}
		case <-p.refreshCh:
			if err := p.poll(ctx); err != nil {
				return err
			}
		}
	}
}

// poll fetches one snapshot. Transient failures are logged and
// swallowed; only auth loss propagates.
func (p *Poller) poll(ctx context.Context) error {
	status, err := p.api.Status(ctx)
	if err != nil {
		if errors.Is(err, botapi.ErrUnauthenticated) {
			telemetry.StatusPollsTotal.WithLabelValues("auth_lost").Inc()
			p.log.Error().Msg("bot session unauthenticated, stopping poller")
			if p.onAuthLost != nil {
				p.onAuthLost()
			}
			return err
		}
		telemetry.StatusPollsTotal.WithLabelValues("error").Inc()
		p.log.Warn().Err(err).Msg("status poll failed, next tick will retry")
		return nil
	}

	telemetry.StatusPollsTotal.WithLabelValues("success").Inc()
	snap := status.Snapshot()
	for _, fn := range p.onSnapshot {
		fn(snap)
	}
	return nil
}
