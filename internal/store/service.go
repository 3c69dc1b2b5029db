/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package store persists play history and seek events behind the
// recorder seams the playback and seek packages define.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/huginn/internal/models"
)

const defaultHistoryLimit = 100

// Service writes and queries the agent's history tables.
type Service struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// NewService creates a history store over an established connection.
func NewService(database *gorm.DB, logger zerolog.Logger) *Service {
	return &Service{
		db:     database,
		logger: logger.With().Str("component", "store").Logger(),
	}
}

// RecordPlay appends one play row. The insert runs on its own
// goroutine: the caller holds the playback reconciler lock and must
// never wait on the database.
func (s *Service) RecordPlay(song models.Song) {
	row := models.PlayHistory{
		ID:         uuid.NewString(),
		SongID:     song.ID,
		Title:      song.Title,
		Artist:     song.Artist,
		Requester:  song.Requester,
		DurationMS: song.DurationMS,
		PlayedAt:   time.Now(),
	}

	go func() {
		if err := s.db.Create(&row).Error; err != nil {
			s.logger.Error().Err(err).
				Str("song_id", row.SongID).
				Msg("failed to record play")
			return
		}
		s.logger.Debug().
			Str("song_id", row.SongID).
			Str("title", row.Title).
			Msg("play recorded")
	}()
}

// RecordSeek appends one seek row without blocking the caller.
func (s *Service) RecordSeek(source string, targetMS int64) {
	row := models.SeekEvent{
		ID:          uuid.NewString(),
		Source:      source,
		TargetMS:    targetMS,
		RequestedAt: time.Now(),
	}

	go func() {
		if err := s.db.Create(&row).Error; err != nil {
			s.logger.Error().Err(err).
				Str("source", row.Source).
				Msg("failed to record seek")
		}
	}()
}

// RecentPlays returns up to limit play rows, newest first.
func (s *Service) RecentPlays(ctx context.Context, limit int) ([]models.PlayHistory, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	var rows []models.PlayHistory
	err := s.db.WithContext(ctx).
		Order("played_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// RecentSeeks returns up to limit seek rows, newest first.
func (s *Service) RecentSeeks(ctx context.Context, limit int) ([]models.SeekEvent, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	var rows []models.SeekEvent
	err := s.db.WithContext(ctx).
		Order("requested_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
