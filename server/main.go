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
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "Path to YAML config file")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	flag.Parse()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	log := NewLogger(cfg.Log)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, log *slog.Logger) error {
	gameCfg, err := cfg.Game.Build()
	if err != nil {
		return err
	}

	var db *DB
	if cfg.DBPath != "" {
		db, err = OpenDB(cfg.DBPath)
		if err != nil {
			return err
		}
		defer db.Close()
	}

	archiver, err := NewArchiver(cfg.Archive)
	if err != nil {
		return err
	}
	publisher := NewPublisher(cfg.Kafka)
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Warn("close publisher", "err", err)
		}
	}()

	analytics := NewAnalytics(db, log)
	recorder := NewRecorder(log)
	sessions := NewSessionManager(SessionDeps{
		Game:      gameCfg,
		DB:        db,
		Analytics: analytics,
		Publisher: publisher,
		Archiver:  archiver,
		Recorder:  recorder,
		Log:       log,
	})
	hub := NewHub(db, sessions, analytics, log)
	api, err := NewAPI(hub, recorder, cfg.PublicURL, log)
	if err != nil {
		return err
	}
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           SetupRoutes(hub, api, cfg.ClientDir),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Background writers outlive the request side so the final session
	// results still reach the database and bus.
	workCtx, stopWork := context.WithCancel(context.Background())
	defer stopWork()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return analytics.Run(workCtx) })
	g.Go(func() error { return recorder.Run(workCtx) })
	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error { return sessions.RunReaper(gctx) })
	g.Go(func() error {
		log.Info("server starting", "addr", cfg.Addr, "client", cfg.ClientDir, "policy", cfg.Game.CutPolicy)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		defer stopWork()

		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutCtx); err != nil {
			log.Warn("http shutdown", "err", err)
		}
		return sessions.Shutdown(shutCtx)
	})
	return g.Wait()
}
