/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package api exposes the agent's HTTP surface: the render model,
// seek and queue mutations proxied to the bot, history, and the
// in-memory log ring.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/friendsincode/huginn/internal/audiograph"
	"github.com/friendsincode/huginn/internal/auth"
	"github.com/friendsincode/huginn/internal/logbuffer"
	"github.com/friendsincode/huginn/internal/models"
	"github.com/friendsincode/huginn/internal/queueview"
	"github.com/friendsincode/huginn/internal/seek"
	"github.com/friendsincode/huginn/internal/version"
)

// SeekHandler relays a clamped seek intent to the bot.
type SeekHandler interface {
	Handle(ctx context.Context, source string, targetMS int64) (int64, error)
}

// QueueMutator is the slice of the bot client the queue proxies use.
type QueueMutator interface {
	Skip(ctx context.Context) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Remove(ctx context.Context, index int) error
	Reorder(ctx context.Context, from, to int) error
}

// Refresher triggers an out-of-band status poll after a mutation.
type Refresher interface {
	ForceRefresh()
}

// HistoryStore serves the recent-history endpoint. May be nil when the
// database is disabled.
type HistoryStore interface {
	RecentPlays(ctx context.Context, limit int) ([]models.PlayHistory, error)
	RecentSeeks(ctx context.Context, limit int) ([]models.SeekEvent, error)
}

// API exposes HTTP handlers.
type API struct {
	view      *queueview.View
	seeks     SeekHandler
	bot       QueueMutator
	poller    Refresher
	gate      *audiograph.Gate
	store     HistoryStore
	logBuffer *logbuffer.Buffer
	checker   *version.Checker
	jwtSecret []byte
	logger    zerolog.Logger
}

// New creates the API router wrapper.
func New(view *queueview.View, seeks SeekHandler, bot QueueMutator, poller Refresher, gate *audiograph.Gate, store HistoryStore, logBuf *logbuffer.Buffer, checker *version.Checker, jwtSecret []byte, logger zerolog.Logger) *API {
	return &API{
		view:      view,
		seeks:     seeks,
		bot:       bot,
		poller:    poller,
		gate:      gate,
		store:     store,
		logBuffer: logBuf,
		checker:   checker,
		jwtSecret: jwtSecret,
		logger:    logger.With().Str("component", "api").Logger(),
	}
}

// Routes mounts the authenticated API endpoints.
func (a *API) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Middleware(a.jwtSecret))

		r.Get("/view", a.handleView)
		r.Get("/history", a.handleHistory)
		r.Get("/version", a.handleVersion)

		r.Route("/logs", func(lr chi.Router) {
			lr.Get("/", a.handleLogs)
			lr.Get("/components", a.handleLogComponents)
			lr.Get("/stats", a.handleLogStats)
		})

		// Any authenticated surface may report a user gesture; it only
		// unlocks local audio output.
		r.Post("/gesture", a.handleGesture)

		r.Group(func(cr chi.Router) {
			cr.Use(a.requireControl)

			cr.Post("/seek", a.handleSeek)
			cr.Route("/queue", func(qr chi.Router) {
				qr.Post("/skip", a.handleQueueSkip)
				qr.Post("/pause", a.handleQueuePause)
				qr.Post("/resume", a.handleQueueResume)
				qr.Post("/remove/{index}", a.handleQueueRemove)
				qr.Post("/reorder", a.handleQueueReorder)
			})
		})
	})
}

// requireControl rejects surfaces whose token lacks the controller role.
func (a *API) requireControl(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := auth.ClaimsFromContext(r.Context())
		if !ok || !claims.CanControl() {
			writeError(w, http.StatusForbidden, "controller role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) handleView(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.view.Model())
}

func (a *API) handleSeek(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Time int64 `json:"time"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid seek body")
		return
	}

	applied, err := a.seeks.Handle(r.Context(), seek.SourceAPI, req.Time)
	if err != nil {
		writeError(w, http.StatusBadGateway, "seek failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"time": applied})
}

func (a *API) handleGesture(w http.ResponseWriter, r *http.Request) {
	a.gate.Unlock()
	writeJSON(w, http.StatusOK, map[string]bool{"unlocked": true})
}

func (a *API) handleHistory(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		writeError(w, http.StatusServiceUnavailable, "history store not available")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	plays, err := a.store.RecentPlays(r.Context(), limit)
	if err != nil {
		a.logger.Error().Err(err).Msg("history query failed")
		writeError(w, http.StatusInternalServerError, "history query failed")
		return
	}
	seeks, err := a.store.RecentSeeks(r.Context(), limit)
	if err != nil {
		a.logger.Error().Err(err).Msg("seek history query failed")
		writeError(w, http.StatusInternalServerError, "history query failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"plays": plays,
		"seeks": seeks,
	})
}

func (a *API) handleVersion(w http.ResponseWriter, r *http.Request) {
	if a.checker == nil {
		writeJSON(w, http.StatusOK, map[string]string{"currentVersion": version.Version})
		return
	}
	writeJSON(w, http.StatusOK, a.checker.Info())
}

func (a *API) handleLogs(w http.ResponseWriter, r *http.Request) {
	if a.logBuffer == nil {
		writeError(w, http.StatusServiceUnavailable, "log buffer not available")
		return
	}

	params := logbuffer.QueryParams{
		Level:      r.URL.Query().Get("level"),
		Component:  r.URL.Query().Get("component"),
		Search:     r.URL.Query().Get("search"),
		Descending: true,
	}

	if since := r.URL.Query().Get("since"); since != "" {
		if t, err := time.Parse(time.RFC3339, since); err == nil {
			params.Since = t
		}
	}

	if limit := r.URL.Query().Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil && n > 0 {
			params.Limit = n
		}
	} else {
		params.Limit = 500
	}

	if order := r.URL.Query().Get("order"); order == "asc" {
		params.Descending = false
	}

	entries := a.logBuffer.Query(params)
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

func (a *API) handleLogComponents(w http.ResponseWriter, r *http.Request) {
	if a.logBuffer == nil {
		writeError(w, http.StatusServiceUnavailable, "log buffer not available")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"components": a.logBuffer.GetComponents(),
	})
}

func (a *API) handleLogStats(w http.ResponseWriter, r *http.Request) {
	if a.logBuffer == nil {
		writeError(w, http.StatusServiceUnavailable, "log buffer not available")
		return
	}

	writeJSON(w, http.StatusOK, a.logBuffer.Stats())
}

func (a *API) handleQueueSkip(w http.ResponseWriter, r *http.Request) {
	a.mutateQueue(w, r, "skip", a.bot.Skip)
}

func (a *API) handleQueuePause(w http.ResponseWriter, r *http.Request) {
	a.mutateQueue(w, r, "pause", a.bot.Pause)
}

func (a *API) handleQueueResume(w http.ResponseWriter, r *http.Request) {
	a.mutateQueue(w, r, "resume", a.bot.Resume)
}

func (a *API) handleQueueRemove(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		writeError(w, http.StatusBadRequest, "invalid queue index")
		return
	}

	a.mutateQueue(w, r, "remove", func(ctx context.Context) error {
		return a.bot.Remove(ctx, index)
	})
}

func (a *API) handleQueueReorder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		From int `json:"from"`
		To   int `json:"to"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid reorder body")
		return
	}
	if req.From < 0 || req.To < 0 {
		writeError(w, http.StatusBadRequest, "invalid reorder positions")
		return
	}

	a.mutateQueue(w, r, "reorder", func(ctx context.Context) error {
		return a.bot.Reorder(ctx, req.From, req.To)
	})
}

// mutateQueue proxies one queue mutation to the bot and forces a poll
// so every surface converges on the result without waiting a tick.
func (a *API) mutateQueue(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context) error) {
	if err := fn(r.Context()); err != nil {
		a.logger.Warn().Err(err).Str("op", op).Msg("queue mutation failed")
		writeError(w, http.StatusBadGateway, "queue mutation failed")
		return
	}

	a.poller.ForceRefresh()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
