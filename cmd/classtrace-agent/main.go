package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/thejerf/suture/v4"

	"github.com/vincentbai/classtrace/internal/clock"
	"github.com/vincentbai/classtrace/internal/config"
	"github.com/vincentbai/classtrace/internal/database"
	"github.com/vincentbai/classtrace/internal/logging"
	"github.com/vincentbai/classtrace/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFrom(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	if dir := filepath.Dir(cfg.Database.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logging.Fatal().Err(err).Str("dir", dir).Msg("failed to create database directory")
		}
	}

	// Initialize database
	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	supervisorLog := logging.Component("supervisor")
	root := suture.New("classtrace-agent", suture.Spec{
		EventHook: func(e suture.Event) {
			supervisorLog.Warn().Fields(e.Map()).Msg(e.String())
		},
		Timeout: cfg.Server.ShutdownTimeout,
	})
	root.Add(server.NewServer(db, cfg.Server, clock.Real{}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().
		Str("address", cfg.Server.Address).
		Str("database", cfg.Database.Path).
		Msg("starting classtrace agent")

	if err := root.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("supervisor stopped")
		db.Close()
		os.Exit(1)
	}
	logging.Info().Msg("classtrace agent stopped")
}
