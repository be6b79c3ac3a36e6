package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"vela/internal/backfill"
	"vela/internal/config"
	"vela/internal/store"
	"vela/internal/util"
)

func main() {
	symbolsFlag := flag.String("symbols", "", "comma-separated symbols to backfill (required)")
	flag.Parse()

	cfgPath := "config/vela.yaml"
	if p := os.Getenv("VELA_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	if *symbolsFlag == "" {
		log.Fatal("-symbols is required, e.g. -symbols=ES,NQ,GC")
	}
	symbols := strings.Split(*symbolsFlag, ",")

	if cfg.Archive.DataDir == "" {
		log.Fatal("archive.data_dir must be configured for backfill")
	}

	b := backfill.New(
		cfg.Backfill.APIKey,
		cfg.Backfill.APISecret,
		cfg.Backfill.DataURL,
		store.NewParquetArchive(cfg.Archive.DataDir),
		cfg.Backfill.BatchSize,
		cfg.Backfill.RateLimitPerMin,
		cfg.Backfill.StartDate,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := b.Run(ctx, symbols); err != nil {
		log.Fatalf("backfill failed: %v", err)
	}
}
