package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"chainreaction/config"
	"chainreaction/domain/room"
	"chainreaction/server"
	"chainreaction/storage"
	"chainreaction/storage/memory"
	"chainreaction/storage/outbox"
	"chainreaction/storage/sqlite"
	"chainreaction/telemetry"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		slog.Error("server stopped",
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	cfg, err := config.ParseConfig(flag.NewFlagSet("chainreaction", flag.ContinueOnError), args)
	if err != nil {
		return err
	}
	level, _ := cfg.Level()
	logger := telemetry.NewLogger(os.Stderr, cfg.LogFormat, level)
	slog.SetDefault(logger)

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.ServiceName, cfg.OTelEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("otel shutdown", slog.String("error", err.Error()))
		}
	}()

	store, leaderboard, closeStore, err := openStore(cfg.SQLitePath)
	if err != nil {
		return err
	}
	defer closeStore()

	writer := outbox.New(store, outbox.Options{
		Workers:  cfg.OutboxWorkers,
		Queue:    cfg.OutboxQueue,
		MaxTries: cfg.OutboxMaxTries,
		Logger:   logger,
	})
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := writer.Close(closeCtx); err != nil {
			logger.Error("outbox flush", slog.String("error", err.Error()))
		}
	}()

	rooms := room.NewRegistry(store, leaderboard, writer, room.Options{
		Rules:         cfg.Rules(),
		InboxSize:     cfg.InboxSize,
		IdleTimeout:   cfg.IdleTimeout,
		SweepInterval: cfg.SweepInterval,
		Logger:        logger,
	})

	httpServer := &http.Server{
		Addr: cfg.Addr,
		Handler: server.Routes(rooms, server.RoutesConfig{
			StaticDir:       cfg.StaticDir,
			LeaderboardSize: cfg.LeaderboardSize,
			Logger:          logger,
		}),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return rooms.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("server running",
			slog.String("addr", cfg.Addr),
			slog.String("placement", cfg.Placement),
			slog.Bool("sqlite", cfg.SQLitePath != ""),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openStore(path string) (storage.Store, storage.Leaderboard, func(), error) {
	if path == "" {
		store := memory.New()
		return store, store, func() {}, nil
	}
	store, err := sqlite.Open(path)
	if err != nil {
		return nil, nil, nil, err
	}
	return store, store, func() {
		if err := store.Close(); err != nil {
			slog.Error("close store", slog.String("error", err.Error()))
		}
	}, nil
}
