// Package vela provides a Go SDK for the vela-server HTTP API.
package vela

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Bar is one OHLCV bar as served by the API. Timestamp is Unix
// milliseconds.
type Bar struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// Instrument is one catalog entry as served by the API.
type Instrument struct {
	Ticker    string `json:"ticker"`
	Name      string `json:"name,omitempty"`
	ShortName string `json:"short_name,omitempty"`
	Exchange  string `json:"exchange,omitempty"`
	AssetType string `json:"asset_type,omitempty"`
}

// Client talks to a running vela-server instance.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client for the server at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type seriesResponse struct {
	Bars []Bar `json:"bars"`
}

type instrumentsResponse struct {
	Instruments []Instrument `json:"instruments"`
}

// GetSeries retrieves the OHLCV series for a symbol, timeframe code (e.g.
// "15m"), and range in epoch milliseconds.
func (c *Client) GetSeries(ctx context.Context, symbol, timeframe string, start, end int64) ([]Bar, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("timeframe", timeframe)
	q.Set("start", strconv.FormatInt(start, 10))
	q.Set("end", strconv.FormatInt(end, 10))

	var sr seriesResponse
	if err := c.getJSON(ctx, "/api/series?"+q.Encode(), &sr); err != nil {
		return nil, err
	}
	return sr.Bars, nil
}

// GetInstruments retrieves the instrument catalog, optionally filtered by a
// search term.
func (c *Client) GetInstruments(ctx context.Context, searchTerm string) ([]Instrument, error) {
	path := "/api/instruments"
	if searchTerm != "" {
		path += "?q=" + url.QueryEscape(searchTerm)
	}

	var ir instrumentsResponse
	if err := c.getJSON(ctx, path, &ir); err != nil {
		return nil, err
	}
	return ir.Instruments, nil
}

// ClearCache clears the server-side series cache, scoped by symbol and
// timeframe when non-empty.
func (c *Client) ClearCache(ctx context.Context, symbol, timeframe string) error {
	q := url.Values{}
	if symbol != "" {
		q.Set("symbol", symbol)
	}
	if timeframe != "" {
		q.Set("timeframe", timeframe)
	}
	path := "/api/cache"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("clearing cache: status %d", resp.StatusCode)
	}
	return nil
}

// Export asks the server to fetch a series and archive it as Parquet,
// returning the archive path.
func (c *Client) Export(ctx context.Context, symbol, timeframe string, start, end int64) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"symbol":    symbol,
		"timeframe": timeframe,
		"start":     start,
		"end":       end,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/export", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("export: status %d", resp.StatusCode)
	}

	var er struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return "", fmt.Errorf("decoding export response: %w", err)
	}
	return er.Path, nil
}

// getJSON performs a GET and decodes the JSON response into out.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("GET %s: status %d: %s", path, resp.StatusCode, body)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
