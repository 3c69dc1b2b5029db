/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/friendsincode/huginn/internal/version"
)

var versionCheck bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the Huginn version",
	RunE:  runVersion,
}

func init() {
	versionCmd.Flags().BoolVar(&versionCheck, "check", false, "Also query GitHub for a newer release")
	rootCmd.AddCommand(versionCmd)
}

// runVersion deliberately skips loadConfig so it works in a bare shell.
func runVersion(cmd *cobra.Command, args []string) error {
	fmt.Printf("huginn %s\n", version.Version)
	if !versionCheck {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	info := version.NewChecker(zerolog.Nop()).CheckNow(ctx)
	switch {
	case info.LatestVersion == "":
		fmt.Println("release check failed; see https://github.com/" + version.GitHubRepo + "/releases")
	case info.UpdateAvailable:
		fmt.Printf("update available: %s (%s)\n", info.LatestVersion, info.ReleaseURL)
	default:
		fmt.Println("up to date")
	}
	return nil
}
