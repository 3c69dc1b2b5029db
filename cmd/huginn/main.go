/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/friendsincode/huginn/internal/api"
	"github.com/friendsincode/huginn/internal/audiograph"
	"github.com/friendsincode/huginn/internal/botapi"
	"github.com/friendsincode/huginn/internal/broadcast"
	"github.com/friendsincode/huginn/internal/bus"
	"github.com/friendsincode/huginn/internal/config"
	"github.com/friendsincode/huginn/internal/db"
	"github.com/friendsincode/huginn/internal/idle"
	"github.com/friendsincode/huginn/internal/lockfile"
	"github.com/friendsincode/huginn/internal/logbuffer"
	"github.com/friendsincode/huginn/internal/logging"
	"github.com/friendsincode/huginn/internal/playback"
	"github.com/friendsincode/huginn/internal/protocol"
	"github.com/friendsincode/huginn/internal/queueview"
	"github.com/friendsincode/huginn/internal/relay"
	"github.com/friendsincode/huginn/internal/seek"
	"github.com/friendsincode/huginn/internal/server"
	"github.com/friendsincode/huginn/internal/status"
	"github.com/friendsincode/huginn/internal/store"
	"github.com/friendsincode/huginn/internal/surface"
	"github.com/friendsincode/huginn/internal/telemetry"
	"github.com/friendsincode/huginn/internal/version"
)

var (
	logger zerolog.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "huginn",
	Short: "Huginn - headless playback sync agent",
	Long:  "Huginn keeps browser dashboard surfaces in sync with a music bot: it polls the bot, mirrors playback on a muted local audio graph, and fans state and visualizer frames out to every connected surface.",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sync agent",
	Long:  "Start the status poller, the playback synchronizer, and the HTTP/websocket server surfaces connect to.",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration (called by commands that need it)
func loadConfig() error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger = logging.Setup(cfg.Environment)
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	// Re-init logging with the ring buffer attached so /api/logs sees
	// everything from startup on.
	logBuf := logbuffer.New(4096)
	logger = logging.SetupWithWriter(cfg.Environment, logbuffer.NewWriter(logBuf, nil))

	logger.Info().Str("version", version.Version).Msg("huginn starting")

	lock := lockfile.New(cfg.LockFile)
	if err := lock.Acquire(); err != nil {
		return fmt.Errorf("acquire instance lock: %w", err)
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Error().Err(err).Msg("failed to release instance lock")
		}
	}()

	tracerProvider, err := telemetry.InitTracer(context.Background(), telemetry.TracerConfig{
		ServiceName:    "huginn",
		ServiceVersion: version.Version,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TracingEnabled,
		SampleRate:     cfg.TracingSampleRate,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize tracer: %w", err)
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown tracer provider")
		}
	}()

	database, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer func() {
		if err := db.Close(database); err != nil {
			logger.Error().Err(err).Msg("failed to close database")
		}
	}()
	if err := db.RegisterCallbacks(database); err != nil {
		return fmt.Errorf("register database callbacks: %w", err)
	}
	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	histStore := store.NewService(database, logger)

	local := bus.New()
	redisCfg := relay.DefaultRedisConfig()
	redisCfg.Addr = cfg.RedisAddr
	redisCfg.Password = cfg.RedisPassword
	redisCfg.DB = cfg.RedisDB
	natsCfg := relay.DefaultNATSConfig()
	natsCfg.URL = cfg.NATSURL
	natsCfg.Token = cfg.NATSToken
	rly, err := relay.New(relay.Config{
		Backend: relay.Backend(cfg.RelayBackend),
		Redis:   redisCfg,
		NATS:    natsCfg,
	}, local, logger)
	if err != nil {
		return fmt.Errorf("start relay: %w", err)
	}
	defer func() {
		if err := rly.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close relay")
		}
	}()

	// Audio pipeline: one gate, one graph, one view, one animator.
	gate := audiograph.NewGate(cfg.OutputUnlocked)
	graph := audiograph.New(gate, logger)
	view := queueview.NewView()

	anim := idle.New(audiograph.FrameBands,
		view.SetIdleBars,
		func(preparing bool) {
			rly.Publish(protocol.New(protocol.IdleAnimation{Preparing: preparing}))
		},
		logger)

	syncer := playback.NewSynchronizer(playback.GraphSource{Graph: graph}, anim, rly, histStore, logger)
	gate.OnUnlock(syncer.OnGesture)

	bot := botapi.New(cfg.BotBaseURL, cfg.BotAPIToken, logger)
	poller := status.New(bot, status.DefaultInterval, logger)
	poller.OnSnapshot(syncer.OnSnapshot)
	poller.OnSnapshot(view.OnSnapshot)

	hub := broadcast.NewHub(local, logger)
	poller.OnAuthLost(func() {
		hub.CloseAll(4401, "bot session expired")
	})

	seekCtrl := seek.NewController(syncer, bot, poller, gate, histStore, logger)
	gateway := surface.NewGateway(rly, hub, seekCtrl, gate, logger)

	checker := version.NewChecker(logger)
	apiHandlers := api.New(view, seekCtrl, bot, poller, gate, histStore, logBuf, checker, []byte(cfg.JWTSigningKey), logger)
	srv := server.New(cfg, apiHandlers, http.HandlerFunc(gateway.HandleSurface), logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		hub.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		view.Watch(ctx, local)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := syncer.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("synchronizer exited")
		}
	}()

	pollerDone := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		pollerDone <- poller.Run(ctx)
	}()

	checker.Start(ctx)

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				db.UpdateConnectionMetrics(database)
			}
		}
	}()

	httpServer := srv.HTTPServer()
	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info().Msg("shutting down gracefully...")
	case err := <-pollerDone:
		// Auth loss is terminal: surfaces got the 4401 close, nothing
		// left to sync against.
		if err != nil {
			logger.Error().Err(err).Msg("status poller terminated, shutting down")
		}
	}

	timeoutCtx, cancelTimeout := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelTimeout()
	if err := httpServer.Shutdown(timeoutCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	cancel()
	checker.Stop()
	syncer.Close()
	wg.Wait()

	logger.Info().Msg("huginn stopped")
	return nil
}
