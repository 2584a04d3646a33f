package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"judging-station/internal/camera"
	"judging-station/internal/config"
	"judging-station/internal/evidence"
	"judging-station/internal/frames"
	"judging-station/internal/roster"
	"judging-station/internal/station"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Error("data dir", "err", err)
		os.Exit(1)
	}

	ros, err := roster.Open(cfg.RosterFile, roster.WithLogger(logger))
	if err != nil {
		logger.Error("roster", "err", err)
		os.Exit(1)
	}
	defer ros.Close()

	store := evidence.New(cfg.EvidenceDir, cfg.Mode, logger)

	var src frames.Source
	if cfg.FrameDir != "" {
		ds := frames.NewDirSource(cfg.FrameDir, cfg.FrameFPS, cfg.FrameLoop)
		ds.Log = logger
		src = ds
	}

	st := station.New(cfg, station.Deps{
		Roster:   ros,
		Evidence: store,
		Source:   src,
		Decoder:  frames.NewQRDecoder(true),
		Camera:   camera.NewStillCapture(cfg.CaptureStill, cfg.TempDir),
		Log:      logger,
	})
	if err := st.SetMode(station.Checkin); err != nil {
		logger.Error("station", "err", err)
		os.Exit(1)
	}

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return st.Run(ctx)
	})
	g.Go(func() error {
		return newConsole(st, os.Stdout, logger).run(ctx, os.Stdin, stop)
	})

	logger.Info("station ready", "mode", cfg.Mode, "roster", cfg.RosterFile, "evidence", cfg.EvidenceDir)
	if err := g.Wait(); err != nil {
		logger.Error("station stopped", "err", err)
	}
	logger.Info("shutting down...")
}
