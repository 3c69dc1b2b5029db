/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package version carries the build version and a periodic update
// check against GitHub releases.
package version

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Version is the running Huginn version, set at build time via:
//
//	-X github.com/friendsincode/huginn/internal/version.Version=X.Y.Z
var Version = "0.4.0"

// GitHubRepo is the repository checked for newer releases.
const GitHubRepo = "friendsincode/huginn"

// UserAgent identifies this agent on every outbound HTTP request.
func UserAgent() string { return "Huginn/" + Version }

// UpdateInfo is the result of the most recent release check.
type UpdateInfo struct {
	CurrentVersion  string    `json:"currentVersion"`
	LatestVersion   string    `json:"latestVersion,omitempty"`
	UpdateAvailable bool      `json:"updateAvailable"`
	ReleaseURL      string    `json:"releaseUrl,omitempty"`
	CheckedAt       time.Time `json:"checkedAt,omitempty"`
}

// Checker polls the GitHub releases API on a long interval and keeps
// the latest result for the CLI and the serve log.
type Checker struct {
	log         zerolog.Logger
	checkPeriod time.Duration
	client      *http.Client

	mu     sync.RWMutex
	info   UpdateInfo
	cancel context.CancelFunc
}

func NewChecker(logger zerolog.Logger) *Checker {
	return &Checker{
		log:         logger.With().Str("component", "update-checker").Logger(),
		checkPeriod: 6 * time.Hour,
		client:      &http.Client{Timeout: 10 * time.Second},
		info:        UpdateInfo{CurrentVersion: Version},
	}
}

// Start checks once immediately, then on every period until the context
// ends or Stop is called.
func (c *Checker) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)

	go func() {
		c.check(ctx)

		ticker := time.NewTicker(c.checkPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.check(ctx)
			}
		}
	}()
}

func (c *Checker) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
}

// Info returns the most recent check result.
func (c *Checker) Info() UpdateInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.info
}

// CheckNow performs one synchronous release check and returns the
// result.
func (c *Checker) CheckNow(ctx context.Context) UpdateInfo {
	c.check(ctx)
	return c.Info()
}

type githubRelease struct {
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
}

func (c *Checker) check(ctx context.Context) {
	url := fmt.Sprintf("https://api.github.com/repos/%s/releases/latest", GitHubRepo)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		c.log.Debug().Err(err).Msg("building release request")
		return
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", UserAgent())

	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Debug().Err(err).Msg("fetching latest release")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.log.Debug().Int("status", resp.StatusCode).Msg("unexpected status from GitHub")
		return
	}

	var release githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		c.log.Debug().Err(err).Msg("decoding release")
		return
	}

	latest := strings.TrimPrefix(release.TagName, "v")
	info := UpdateInfo{
		CurrentVersion:  Version,
		LatestVersion:   latest,
		UpdateAvailable: compareVersions(Version, latest) < 0,
		ReleaseURL:      release.HTMLURL,
		CheckedAt:       time.Now(),
	}

	c.mu.Lock()
	c.info = info
	c.mu.Unlock()

	if info.UpdateAvailable {
		c.log.Info().
			Str("current", Version).
			Str("latest", latest).
			Str("url", release.HTMLURL).
			Msg("new version available")
	}
}

// compareVersions orders two semver strings: -1 if a < b, 0 if equal,
// 1 if a > b. Missing components count as zero.
func compareVersions(a, b string) int {
	av, bv := parseVersion(a), parseVersion(b)
	for i := 0; i < 3; i++ {
		if av[i] < bv[i] {
			return -1
		}
		if av[i] > bv[i] {
			return 1
		}
	}
	return 0
}

func parseVersion(v string) [3]int {
	var out [3]int
	parts := strings.Split(strings.TrimPrefix(v, "v"), ".")
	for i := 0; i < len(parts) && i < 3; i++ {
		fmt.Sscanf(parts[i], "%d", &out[i])
	}
	return out
}
