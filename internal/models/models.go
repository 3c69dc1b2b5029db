/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package models holds the wire types shared between the bot API
// client, the synchronizer, and the surface gateway.
package models

import "encoding/json"

// DownloadState enumerates the server-side download pipeline states a
// queue entry moves through.
type DownloadState string

const (
	DownloadQueued      DownloadState = "queued"
	DownloadResolving   DownloadState = "resolving"
	DownloadDownloading DownloadState = "downloading"
	DownloadConverting  DownloadState = "converting"
	DownloadReady       DownloadState = "ready"
	DownloadError       DownloadState = "error"
)

// Song is the bot's view of the track in the current slot. ID is the
// content/filename identity: it is stable across polls for as long as
// the same track occupies the slot, and any change of ID means a new
// track even if the stream URL looks similar.
type Song struct {
	ID                  string        `json:"id"`
	Title               string        `json:"title"`
	Artist              string        `json:"artist"`
	Requester           string        `json:"requester"`
	ThumbnailURL        string        `json:"thumbnailUrl,omitempty"`
	StreamURL           string        `json:"streamUrl,omitempty"`
	ElapsedMS           int64         `json:"elapsedMs"`
	DurationMS          int64         `json:"durationMs"`
	IsPaused            bool          `json:"isPaused"`
	DownloadStatus      DownloadState `json:"downloadStatus,omitempty"`
	DownloadProgressPct int           `json:"downloadProgressPct,omitempty"`
}

// SameIdentity reports whether other refers to the same track slot
// occupant. Nil songs only match other nil songs.
func (s *Song) SameIdentity(other *Song) bool {
	if s == nil || other == nil {
		return s == other
	}
	return s.ID == other.ID
}

// Playable reports whether the song has a decodable stream attached.
func (s *Song) Playable() bool {
	return s != nil && s.StreamURL != ""
}

// QueueItem is one pending entry. Position is server-authoritative and
// may change between polls (reorder); the item carries its own download
// state machine.
type QueueItem struct {
	ID                  string        `json:"id"`
	Title               string        `json:"title"`
	Artist              string        `json:"artist"`
	Requester           string        `json:"requester"`
	ThumbnailURL        string        `json:"thumbnailUrl,omitempty"`
	DurationMS          int64         `json:"durationMs"`
	DownloadStatus      DownloadState `json:"downloadStatus"`
	DownloadProgressPct int           `json:"downloadProgressPct,omitempty"`
}

// PlaybackSnapshot is the full playback state reported by one status
// poll. Each snapshot supersedes the previous one wholesale; nothing is
// merged across polls.
type PlaybackSnapshot struct {
	CurrentSong *Song       `json:"currentSong"`
	Queue       []QueueItem `json:"queue"`
}

// StatusResponse is the GET /api/status body.
type StatusResponse struct {
	Auth  bool `json:"auth"`
	Queue struct {
		Queue       []QueueItem `json:"queue"`
		CurrentSong *Song       `json:"currentSong"`
	} `json:"queue"`
	Stats json.RawMessage `json:"stats,omitempty"`
}

// Snapshot flattens the response into the snapshot the synchronizer and
// queue view consume.
func (r *StatusResponse) Snapshot() PlaybackSnapshot {
	return PlaybackSnapshot{
		CurrentSong: r.Queue.CurrentSong,
		Queue:       r.Queue.Queue,
	}
}

// Settings is the consumed slice of the dashboard settings collaborator.
// Only rendering honors these; the synchronization algorithm never
// reads them.
type Settings struct {
	ShowRequester bool `json:"showRequester"`
	ConfirmSkip   bool `json:"confirmSkip"`
}
