/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/friendsincode/huginn/internal/auth"
)

var (
	tokenSurfaceID string
	tokenRoles     []string
	tokenTTL       time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a signed surface token",
	Long: `Mint a JWT a dashboard surface presents on /ws/surface and /api.

Tokens without the controller role can watch the broadcast stream but
cannot seek or mutate the queue.

Examples:
  # Read-only surface token with the configured TTL
  huginn token

  # Controller token for a named surface
  huginn token --surface-id kiosk-lobby --role controller

  # Short-lived token for a one-off debug session
  huginn token --role controller --ttl 15m
`,
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSurfaceID, "surface-id", "", "Surface identity to embed (default: random UUID)")
	tokenCmd.Flags().StringSliceVar(&tokenRoles, "role", nil, "Roles to embed (repeatable; use 'controller' to allow mutations)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "Token lifetime (default: configured surface token TTL)")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	surfaceID := tokenSurfaceID
	if surfaceID == "" {
		surfaceID = uuid.NewString()
	}

	ttl := tokenTTL
	if ttl <= 0 {
		ttl = cfg.SurfaceTokenTTL
	}

	token, err := auth.Issue([]byte(cfg.JWTSigningKey), auth.Claims{SurfaceID: surfaceID, Roles: tokenRoles}, ttl)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}

	logger.Info().
		Str("surface_id", surfaceID).
		Strs("roles", tokenRoles).
		Dur("ttl", ttl).
		Msg("Issued surface token")

	fmt.Println(token)
	return nil
}
