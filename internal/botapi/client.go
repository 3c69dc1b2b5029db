/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package botapi is the HTTP client for the chat bot's queue API, the
// authoritative source of playback state.
package botapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/friendsincode/huginn/internal/models"
	"github.com/friendsincode/huginn/internal/version"
)

// ErrUnauthenticated means the bot no longer accepts this agent's
// session. It is terminal for the poll loop; surfaces get redirected.
var ErrUnauthenticated = errors.New("bot session unauthenticated")

// Client talks to the bot API. Safe for concurrent use.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     zerolog.Logger
}

func New(baseURL, token string, logger zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		log: logger.With().Str("component", "botapi").Logger(),
	}
}

// Status fetches the authoritative playback snapshot. A 401/403 or an
// auth=false body yields ErrUnauthenticated.
func (c *Client) Status(ctx context.Context) (*models.StatusResponse, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/status", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, ErrUnauthenticated
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch status: HTTP %d", resp.StatusCode)
	}

	var status models.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decode status: %w", err)
	}
	if !status.Auth {
		return nil, ErrUnauthenticated
	}
	return &status, nil
}

// Seek asks the bot to move the shared playhead.
func (c *Client) Seek(ctx context.Context, timeMS int64) error {
	return c.post(ctx, "/api/queue/seek", map[string]int64{"time": timeMS})
}

// Skip advances to the next queued track.
func (c *Client) Skip(ctx context.Context) error {
	return c.post(ctx, "/api/queue/skip", nil)
}

// Pause pauses the shared stream.
func (c *Client) Pause(ctx context.Context) error {
	return c.post(ctx, "/api/queue/pause", nil)
}

// Resume resumes the shared stream.
func (c *Client) Resume(ctx context.Context) error {
	return c.post(ctx, "/api/queue/resume", nil)
}

// Remove drops the queue entry at index.
func (c *Client) Remove(ctx context.Context, index int) error {
	return c.post(ctx, fmt.Sprintf("/api/queue/remove/%d", index), nil)
}

// Reorder moves a queue entry between positions.
func (c *Client) Reorder(ctx context.Context, from, to int) error {
	return c.post(ctx, "/api/queue/reorder", map[string]int{"from": from, "to": to})
}

func (c *Client) post(ctx context.Context, path string, body any) error {
	req, err := c.newRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return ErrUnauthenticated
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s: HTTP %d", path, resp.StatusCode)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var payload *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		payload = bytes.NewReader(data)
	} else {
		payload = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}
