package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"

	"github.com/vincentbai/classtrace/internal/config"
	"github.com/vincentbai/classtrace/internal/logging"
	"github.com/vincentbai/classtrace/internal/replay"
	"github.com/vincentbai/classtrace/internal/spool"
	"github.com/vincentbai/classtrace/internal/upload"
)

func main() {
	if err := run(); err != nil {
		logging.Error().Err(err).Msg("replay failed")
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to a YAML config file")
	input := flag.String("input", "-", "recording to replay (JSON lines, - for stdin)")
	startAt := flag.String("start", "", "RFC3339 wall time of offset zero (default now)")
	send := flag.Bool("upload", false, "upload interactions to the configured sink")
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
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	opts := replay.Options{Tracker: cfg.Tracker, Sink: cfg.Sink}
	if *startAt != "" {
		if opts.Start, err = time.Parse(time.RFC3339, *startAt); err != nil {
			return fmt.Errorf("invalid start time: %w", err)
		}
	}

	if *send {
		opts.Sender = upload.NewClient(upload.ClientConfig{
			BaseURL:         cfg.Sink.BaseURL,
			Timeout:         cfg.Sink.Timeout,
			BreakerFailures: cfg.Sink.BreakerFailures,
			BreakerOpenFor:  cfg.Sink.BreakerOpenFor,
		})
		if cfg.Spool.Enabled {
			store, err := spool.Open(cfg.Spool.Dir)
			if err != nil {
				return fmt.Errorf("failed to open spool %s: %w", cfg.Spool.Dir, err)
			}
			defer store.Close()
			opts.Spool = store
		}
	}

	var in io.Reader = os.Stdin
	if *input != "-" {
		f, err := os.Open(*input)
		if err != nil {
			return fmt.Errorf("failed to open recording: %w", err)
		}
		defer f.Close()
		in = f
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, err := replay.Run(ctx, in, opts)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
