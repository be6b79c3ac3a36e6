// Package backfill populates the local Parquet archive with daily OHLCV
// bars fetched from the Alpaca market-data API, for offline chart use
// without the remote backend.
package backfill

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	alpacamd "github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"vela/internal/domain"
	"vela/internal/store"
	"vela/internal/util"
)

// Backfiller fetches daily bars for a symbol list in batches and archives
// one Parquet series per symbol.
type Backfiller struct {
	client    *alpacamd.Client
	archive   *store.ParquetArchive
	limiter   *util.RateLimiter
	batchSize int
	startDate string
	log       *slog.Logger
}

// New creates a Backfiller configured with the given Alpaca credentials,
// target archive, and batch parameters.
func New(apiKey, apiSecret, dataURL string, archive *store.ParquetArchive, batchSize, rateLimitPerMin int, startDate string) *Backfiller {
	opts := alpacamd.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}

	if batchSize <= 0 {
		batchSize = 200
	}
	if rateLimitPerMin <= 0 {
		rateLimitPerMin = 200
	}

	return &Backfiller{
		client:    alpacamd.NewClient(opts),
		archive:   archive,
		limiter:   util.NewRateLimiter(rateLimitPerMin),
		batchSize: batchSize,
		startDate: startDate,
		log:       slog.Default().With("component", "backfill"),
	}
}

// Run fetches daily bars for all symbols from the start date through
// yesterday and writes one archive series per symbol. Transient fetch
// failures are retried with backoff; a batch that keeps failing aborts the
// run.
func (b *Backfiller) Run(ctx context.Context, symbols []string) error {
	if len(symbols) == 0 {
		return fmt.Errorf("no symbols to backfill")
	}

	start, err := time.Parse("2006-01-02", b.startDate)
	if err != nil {
		return fmt.Errorf("parsing start date %q: %w", b.startDate, err)
	}
	end := time.Now().UTC().Truncate(24 * time.Hour)
	startMs := start.UnixMilli()
	endMs := end.UnixMilli()

	batches := splitBatches(normalizeSymbols(symbols), b.batchSize)
	b.log.Info("starting backfill",
		"symbols", len(symbols),
		"batches", len(batches),
		"start", b.startDate,
		"end", end.Format("2006-01-02"),
	)

	runStart := time.Now()
	var archived int
	for i, batch := range batches {
		if err := b.limiter.Wait(ctx); err != nil {
			return err
		}

		var multiBars map[string][]alpacamd.Bar
		err := util.Retry(ctx, 3, time.Second, func() error {
			var ferr error
			multiBars, ferr = b.client.GetMultiBars(batch, alpacamd.GetBarsRequest{
				TimeFrame: alpacamd.OneDay,
				Start:     start,
				End:       end,
			})
			return ferr
		})
		if err != nil {
			return fmt.Errorf("fetching batch %d/%d: %w", i+1, len(batches), err)
		}

		for symbol, alpacaBars := range multiBars {
			bars := make([]domain.Bar, 0, len(alpacaBars))
			for _, ab := range alpacaBars {
				bars = append(bars, domain.Bar{
					Timestamp: ab.Timestamp.UnixMilli(),
					Open:      ab.Open,
					High:      ab.High,
					Low:       ab.Low,
					Close:     ab.Close,
					Volume:    float64(ab.Volume),
				})
			}
			if len(bars) == 0 {
				continue
			}
			if _, err := b.archive.WriteSeries(symbol, "1d", startMs, endMs, bars); err != nil {
				return fmt.Errorf("archiving %s: %w", symbol, err)
			}
			archived++
		}

		b.log.Info("batch done",
			"batch", fmt.Sprintf("%d/%d", i+1, len(batches)),
			"elapsed", time.Since(runStart).Round(time.Second),
		)
	}

	b.log.Info("backfill complete", "archived", archived, "elapsed", time.Since(runStart).Round(time.Second))
	return nil
}

// splitBatches splits symbols into batches of at most size.
func splitBatches(symbols []string, size int) [][]string {
	var batches [][]string
	for i := 0; i < len(symbols); i += size {
		end := min(i+size, len(symbols))
		batches = append(batches, symbols[i:end])
	}
	return batches
}

// normalizeSymbols upper-cases and drops empty entries.
func normalizeSymbols(symbols []string) []string {
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
