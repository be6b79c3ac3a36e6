// Package marketdata fetches historical OHLCV series from the remote
// backend and caches them per exact (instrument, timeframe, range) key.
// It attaches the session bearer token to every request and transparently
// retries once after a token refresh when the backend answers 401.
package marketdata

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"vela/internal/auth"
	"vela/internal/domain"
)

// Default cache bounds, used when ClientOpts leaves them zero.
const (
	DefaultMaxEntries = 50
	DefaultTTL        = 30 * time.Minute

	// The instrument catalog is small and changes rarely; it gets its own
	// fixed, short-lived single-slot cache.
	catalogTTL = 5 * time.Minute
)

// Persister mirrors the series cache to durable storage. Both operations
// are best-effort: the in-memory cache stays authoritative and failures are
// logged, never propagated.
type Persister interface {
	// TrySave replaces the stored snapshot.
	TrySave(snap Snapshot) error

	// TryLoad returns the stored snapshot. ok is false when nothing has
	// been saved yet.
	TryLoad() (snap Snapshot, ok bool, err error)
}

// ClientOpts configures a Client.
type ClientOpts struct {
	// BaseURL of the OHLCV backend, without trailing slash.
	BaseURL string

	// Session supplies bearer tokens. Required.
	Session auth.Session

	// MaxEntries and TTL bound the series cache. Zero values select the
	// package defaults.
	MaxEntries int
	TTL        time.Duration

	// HTTPClient overrides the transport; defaults to a client with a 30s
	// timeout.
	HTTPClient *http.Client

	// Persister, when non-nil, mirrors the cache to durable storage.
	Persister Persister

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Client is the historical-data cache. One Client owns one cache; construct
// one per consumer and pass it explicitly.
type Client struct {
	baseURL    string
	session    auth.Session
	httpClient *http.Client
	persister  Persister
	log        *slog.Logger

	mu      sync.Mutex
	cache   *seriesCache
	catalog *domain.Catalog
	catAt   time.Time

	now func() time.Time
}

// NewClient creates a Client. If a persister is configured, the previously
// saved cache snapshot is loaded immediately, with expired entries pruned.
func NewClient(opts ClientOpts) *Client {
	maxEntries := opts.MaxEntries
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	c := &Client{
		baseURL:    opts.BaseURL,
		session:    opts.Session,
		httpClient: httpClient,
		persister:  opts.Persister,
		log:        log.With("component", "marketdata"),
		cache:      newSeriesCache(maxEntries, ttl),
		now:        time.Now,
	}

	if c.persister != nil {
		snap, ok, err := c.persister.TryLoad()
		if err != nil {
			c.log.Warn("loading cache snapshot", "error", err)
		} else if ok {
			c.mu.Lock()
			c.cache.restore(snap, c.now())
			n := c.cache.len()
			c.mu.Unlock()
			c.log.Info("cache snapshot restored", "entries", n)
		}
	}

	return c
}

// ---------------------------------------------------------------------------
// FetchSeries
// ---------------------------------------------------------------------------

// FetchSeries returns the OHLCV series for the instrument, timeframe, and
// exact [start, end) range in epoch milliseconds, from cache when a live
// entry exists and from the backend otherwise. The returned slice is owned
// by the cache and must not be modified.
func (c *Client) FetchSeries(ctx context.Context, instrument string, tf domain.Timeframe, start, end int64) ([]domain.Bar, error) {
	if instrument == "" {
		return nil, fmt.Errorf("instrument must not be empty")
	}
	if err := tf.Validate(); err != nil {
		return nil, err
	}
	if start >= end {
		return nil, fmt.Errorf("range start %d must precede end %d", start, end)
	}

	key := seriesKey{Instrument: instrument, Timeframe: tf.Code(), Start: start, End: end}

	c.mu.Lock()
	bars, hit := c.cache.get(key, c.now())
	c.mu.Unlock()
	if hit {
		c.log.Debug("cache hit", "key", key.String())
		return bars, nil
	}

	bars, err := c.fetchRemote(ctx, key)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache.put(key, bars, c.now())
	snap := c.snapshotIfPersisted()
	c.mu.Unlock()
	c.trySave(snap)

	return bars, nil
}

// fetchRemote performs the authenticated backend request, including the
// single refresh-and-retry on 401.
func (c *Client) fetchRemote(ctx context.Context, key seriesKey) ([]domain.Bar, error) {
	token, err := c.session.Token(ctx)
	if err != nil || token == "" {
		return nil, fmt.Errorf("%w: no token available", ErrAuthRequired)
	}

	body, status, err := c.doData(ctx, key, token)
	if err != nil {
		return nil, err
	}

	if status == http.StatusUnauthorized {
		// Exactly one refresh attempt, then one retry. No loop.
		token, err = c.session.Refresh(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: token refresh: %v", ErrAuthFailed, err)
		}
		body, status, err = c.doData(ctx, key, token)
		if err != nil {
			return nil, fmt.Errorf("%w: retry after refresh: %v", ErrAuthFailed, err)
		}
		if status < 200 || status > 299 {
			return nil, fmt.Errorf("%w: retry after refresh returned status %d", ErrAuthFailed, status)
		}
	} else if status < 200 || status > 299 {
		return nil, &RequestError{Status: status}
	}

	bars, err := decodeSeries(body)
	if err != nil {
		return nil, err
	}
	c.log.Debug("series fetched", "key", key.String(), "bars", len(bars))
	return bars, nil
}

// doData issues one GET against the OHLCV data endpoint. Transport-level
// failures map to ErrNetworkUnavailable.
func (c *Client) doData(ctx context.Context, key seriesKey, token string) ([]byte, int, error) {
	q := url.Values{}
	q.Set("symbol", key.Instrument)
	q.Set("start_date", time.UnixMilli(key.Start).UTC().Format("2006-01-02"))
	q.Set("end_date", time.UnixMilli(key.End).UTC().Format("2006-01-02"))
	q.Set("timeframe", key.Timeframe)
	q.Set("source_resolution", "1Y")

	u := c.baseURL + "/api/v1/ohlcv/data?" + q.Encode()
	return c.doGET(ctx, u, token)
}

func (c *Client) doGET(ctx context.Context, u, token string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrNetworkUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: reading body: %v", ErrNetworkUnavailable, err)
	}
	return body, resp.StatusCode, nil
}

// ---------------------------------------------------------------------------
// Instrument catalog
// ---------------------------------------------------------------------------

// ListInstruments returns the instrument catalog, optionally filtered by a
// case-insensitive substring match against ticker, name, and short name.
// When the catalog endpoint fails but an earlier (possibly expired) catalog
// is held, the stale catalog is returned instead of the error.
func (c *Client) ListInstruments(ctx context.Context, searchTerm string) ([]domain.Instrument, error) {
	c.mu.Lock()
	cached := c.catalog
	fresh := cached != nil && c.now().Sub(c.catAt) <= catalogTTL
	c.mu.Unlock()

	if fresh {
		return filterInstruments(cached.Instruments, searchTerm), nil
	}

	catalog, err := c.fetchCatalog(ctx)
	if err != nil {
		if cached != nil {
			c.log.Warn("catalog fetch failed, serving stale catalog", "error", err)
			return filterInstruments(cached.Instruments, searchTerm), nil
		}
		return nil, err
	}

	c.mu.Lock()
	c.catalog = catalog
	c.catAt = c.now()
	c.mu.Unlock()

	return filterInstruments(catalog.Instruments, searchTerm), nil
}

func (c *Client) fetchCatalog(ctx context.Context) (*domain.Catalog, error) {
	token, err := c.session.Token(ctx)
	if err != nil || token == "" {
		return nil, fmt.Errorf("%w: no token available", ErrAuthRequired)
	}

	body, status, err := c.doGET(ctx, c.baseURL+"/api/v1/ohlcv/instruments", token)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, &RequestError{Status: status}
	}

	var catalog domain.Catalog
	if err := unmarshalCatalog(body, &catalog); err != nil {
		return nil, err
	}
	return &catalog, nil
}

func filterInstruments(instruments []domain.Instrument, term string) []domain.Instrument {
	if term == "" {
		out := make([]domain.Instrument, len(instruments))
		copy(out, instruments)
		return out
	}
	out := make([]domain.Instrument, 0, len(instruments))
	for _, inst := range instruments {
		if inst.Matches(term) {
			out = append(out, inst)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Cache management
// ---------------------------------------------------------------------------

// ClearCache removes cached series scoped by instrument and timeframe code.
// An empty scope field matches all values: both empty clears everything,
// instrument alone clears all of its timeframes, timeframe alone clears that
// timeframe across instruments. The persistence mirror is updated
// synchronously before return. Idempotent.
func (c *Client) ClearCache(instrument, timeframe string) {
	c.mu.Lock()
	c.cache.clear(instrument, timeframe)
	snap := c.snapshotIfPersisted()
	c.mu.Unlock()
	c.trySave(snap)
}

// CacheLen reports the number of live cache entries.
func (c *Client) CacheLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.pruneExpired(c.now())
	return c.cache.len()
}

// snapshotIfPersisted captures the cache image while the lock is held;
// returns nil when persistence is disabled.
func (c *Client) snapshotIfPersisted() *Snapshot {
	if c.persister == nil {
		return nil
	}
	snap := c.cache.snapshot()
	return &snap
}

// trySave writes the snapshot to the mirror. Failures are logged and
// swallowed; the in-memory cache remains authoritative.
func (c *Client) trySave(snap *Snapshot) {
	if snap == nil {
		return
	}
	if err := c.persister.TrySave(*snap); err != nil {
		c.log.Warn("saving cache snapshot", "error", err)
	}
}
