package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/parquet-go/parquet-go"

	"vela/internal/domain"
)

// ParquetArchive stores fetched OHLCV series as Parquet files on disk, one
// file per exact (instrument, timeframe, range) key. It backs the export
// endpoint and the backfill tool.
type ParquetArchive struct {
	DataDir string
}

// NewParquetArchive creates an archive rooted at the given data directory.
func NewParquetArchive(dataDir string) *ParquetArchive {
	return &ParquetArchive{DataDir: dataDir}
}

// BarRecord is the Parquet schema for archived bars.
type BarRecord struct {
	Symbol    string  `parquet:"symbol"`
	Timeframe string  `parquet:"timeframe"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    float64 `parquet:"volume"`
}

// WriteSeries writes one fetched series to the archive, replacing any
// previous file for the same key. It returns the file path.
//
// Layout: <DataDir>/<SYMBOL>/<timeframe>/<start>-<end>.parquet
func (a *ParquetArchive) WriteSeries(instrument, timeframe string, start, end int64, bars []domain.Bar) (string, error) {
	if instrument == "" || timeframe == "" {
		return "", fmt.Errorf("instrument and timeframe are required")
	}

	records := make([]BarRecord, 0, len(bars))
	for _, b := range bars {
		records = append(records, BarRecord{
			Symbol:    strings.ToUpper(instrument),
			Timeframe: timeframe,
			Timestamp: b.Timestamp,
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Timestamp < records[j].Timestamp })

	path := a.seriesPath(instrument, timeframe, start, end)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating archive dir: %w", err)
	}
	if err := parquet.WriteFile(path, records); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}

// ReadSeries reads an archived series back as bars.
func (a *ParquetArchive) ReadSeries(instrument, timeframe string, start, end int64) ([]domain.Bar, error) {
	path := a.seriesPath(instrument, timeframe, start, end)
	records, err := parquet.ReadFile[BarRecord](path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	bars := make([]domain.Bar, 0, len(records))
	for _, r := range records {
		bars = append(bars, domain.Bar{
			Timestamp: r.Timestamp,
			Open:      r.Open,
			High:      r.High,
			Low:       r.Low,
			Close:     r.Close,
			Volume:    r.Volume,
		})
	}
	return bars, nil
}

// ListInstruments lists instruments that have archived series, sorted.
func (a *ParquetArchive) ListInstruments() ([]string, error) {
	entries, err := os.ReadDir(a.DataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var symbols []string
	for _, e := range entries {
		if e.IsDir() {
			symbols = append(symbols, e.Name())
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// seriesPath returns the archive path for one series key.
func (a *ParquetArchive) seriesPath(instrument, timeframe string, start, end int64) string {
	name := fmt.Sprintf("%d-%d.parquet", start, end)
	return filepath.Join(a.DataDir, strings.ToUpper(instrument), timeframe, name)
}
