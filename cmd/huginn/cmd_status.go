/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/friendsincode/huginn/internal/botapi"
	"github.com/friendsincode/huginn/internal/models"
	"github.com/friendsincode/huginn/internal/timeutil"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the bot's current playback snapshot",
	Long:  "Fetch one status snapshot from the bot API and print the current song and queue.",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	bot := botapi.New(cfg.BotBaseURL, cfg.BotAPIToken, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resp, err := bot.Status(ctx)
	if err != nil {
		return fmt.Errorf("fetch status: %w", err)
	}
	snap := resp.Snapshot()

	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Now Playing", "Artist", "Requested By", "Position", "State"})
	if song := snap.CurrentSong; song != nil {
		state := "playing"
		if song.IsPaused {
			state = "paused"
		}
		position := fmt.Sprintf("%s / %s", timeutil.FormatMS(song.ElapsedMS), timeutil.FormatMS(song.DurationMS))
		tw.AppendRow(table.Row{song.Title, song.Artist, song.Requester, position, state})
	} else {
		tw.AppendRow(table.Row{"(nothing)", "", "", "", ""})
	}
	tw.Render()

	if len(snap.Queue) == 0 {
		return nil
	}

	qw := table.NewWriter()
	qw.SetOutputMirror(os.Stdout)
	qw.SetStyle(table.StyleRounded)
	qw.AppendHeader(table.Row{"#", "Title", "Artist", "Duration", "Download"})
	qw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 4, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	for i, item := range snap.Queue {
		qw.AppendRow(table.Row{i + 1, item.Title, item.Artist, timeutil.FormatMS(item.DurationMS), downloadCell(item)})
	}
	qw.Render()

	return nil
}

func downloadCell(item models.QueueItem) string {
	if item.DownloadStatus == models.DownloadDownloading {
		return fmt.Sprintf("downloading %d%%", item.DownloadProgressPct)
	}
	return string(item.DownloadStatus)
}
