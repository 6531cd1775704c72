package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/vncsmyrnk/livepoll/internal/app"
	"github.com/vncsmyrnk/livepoll/internal/config"
	"github.com/vncsmyrnk/livepoll/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	var repair bool
	flag.BoolVar(&repair, "repair", false, "Rewrite drifted counters from the vote ledger")
	flag.StringVar(&cfg.Storage.Driver, "driver", cfg.Storage.Driver, "Storage driver (postgres | mongo)")
	flag.IntVar(&cfg.Reconcile.Concurrency, "concurrency", cfg.Reconcile.Concurrency, "Polls checked in parallel")
	flag.Parse()

	logger := logger.New(cfg.Env)
	slog.SetDefault(logger)

	// Bound the whole job so a stuck storage call cannot hang it.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	store, err := app.OpenStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to open storage", "driver", cfg.Storage.Driver, "error", err)
		os.Exit(1)
	}
	application := app.New(store, cfg, logger)
	defer application.Close(context.Background())

	logger.Info("starting vote reconciliation", "repair", repair)

	drifts, err := application.Reconciler.ReconcileAll(ctx, repair)
	if err != nil {
		logger.Error("reconciliation failed", "error", err)
		os.Exit(1)
	}

	for _, d := range drifts {
		logger.Warn("poll drifted", "poll_id", d.PollID, "recorded_total", d.RecordedTotal, "ledger", d.Ledger, "repaired", d.Repaired)
	}
	logger.Info("vote reconciliation completed", "drifted_polls", len(drifts))
}
