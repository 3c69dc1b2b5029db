/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// PlayHistory records one song taking the playback slot. Rows are
// append-only; a song paused and resumed stays a single row.
type PlayHistory struct {
	ID         string    `gorm:"type:uuid;primaryKey" json:"id"`
	SongID     string    `gorm:"type:varchar(128);index:idx_play_history_song;not null" json:"songId"`
	Title      string    `gorm:"type:varchar(512)" json:"title"`
	Artist     string    `gorm:"type:varchar(512)" json:"artist"`
	Requester  string    `gorm:"type:varchar(255)" json:"requester"`
	DurationMS int64     `json:"durationMs"`
	PlayedAt   time.Time `gorm:"index:idx_play_history_played;not null" json:"playedAt"`
	CreatedAt  time.Time `json:"-"`
}

// TableName returns the table name for GORM.
func (PlayHistory) TableName() string {
	return "play_history"
}

// SeekEvent records one accepted seek mutation, whichever surface or
// API caller issued it.
type SeekEvent struct {
	ID          string    `gorm:"type:uuid;primaryKey" json:"id"`
	Source      string    `gorm:"type:varchar(16);index:idx_seek_events_source;not null" json:"source"`
	TargetMS    int64     `json:"targetMs"`
	RequestedAt time.Time `gorm:"index:idx_seek_events_requested;not null" json:"requestedAt"`
	CreatedAt   time.Time `json:"-"`
}

// TableName returns the table name for GORM.
func (SeekEvent) TableName() string {
	return "seek_events"
}
