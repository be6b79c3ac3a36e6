// Package httpapi provides the HTTP REST API consumed by the chart
// dashboard, serving cached OHLCV series and the instrument catalog in
// JSON.
package httpapi

import (
	"vela/internal/domain"
)

// SeriesResponse holds one OHLCV series for a chart request.
type SeriesResponse struct {
	Symbol    string       `json:"symbol"`
	Timeframe string       `json:"timeframe"`
	Start     int64        `json:"start"`
	End       int64        `json:"end"`
	Count     int          `json:"count"`
	Bars      []domain.Bar `json:"bars"`
}

// InstrumentsResponse holds the (optionally filtered) instrument catalog.
type InstrumentsResponse struct {
	Count       int                 `json:"count"`
	Instruments []domain.Instrument `json:"instruments"`
}

// ExportRequest asks for a series to be fetched and archived as Parquet.
type ExportRequest struct {
	Symbol    string `json:"symbol"`
	Timeframe string `json:"timeframe"`
	Start     int64  `json:"start"`
	End       int64  `json:"end"`
}

// ExportResponse reports the archive file written for an export request.
type ExportResponse struct {
	Path string `json:"path"`
	Bars int    `json:"bars"`
}

// HealthResponse reports service liveness and cache occupancy.
type HealthResponse struct {
	Status       string `json:"status"`
	CacheEntries int    `json:"cacheEntries"`
}
