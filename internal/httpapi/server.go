package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"vela/internal/domain"
	"vela/internal/marketdata"
	"vela/internal/store"
)

// Server serves the dashboard HTTP API on top of the market-data client.
type Server struct {
	md      *marketdata.Client
	archive *store.ParquetArchive // nil disables export
	log     *slog.Logger
}

// NewServer creates the API server. archive may be nil, in which case the
// export endpoint answers 503.
func NewServer(md *marketdata.Client, archive *store.ParquetArchive, log *slog.Logger) *Server {
	return &Server{
		md:      md,
		archive: archive,
		log:     log,
	}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/series", s.handleSeries)
	mux.HandleFunc("GET /api/instruments", s.handleInstruments)
	mux.HandleFunc("DELETE /api/cache", s.handleClearCache)
	mux.HandleFunc("POST /api/export", s.handleExport)
	mux.HandleFunc("GET /api/health", s.handleHealth)
}

// Handler returns an http.Handler with CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// statusFor maps market-data errors to upstream-facing HTTP statuses. Auth
// and backend problems are gateway errors from the dashboard's point of
// view; transport failures map to gateway timeout.
func statusFor(err error) int {
	var re *marketdata.RequestError
	switch {
	case errors.Is(err, marketdata.ErrAuthRequired),
		errors.Is(err, marketdata.ErrAuthFailed),
		errors.Is(err, marketdata.ErrMalformedResponse),
		errors.As(err, &re):
		return http.StatusBadGateway
	case errors.Is(err, marketdata.ErrNetworkUnavailable):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// parseSeriesParams reads and validates the symbol/timeframe/start/end
// query parameters shared by the series and export paths.
func parseSeriesParams(symbol, tfCode, startStr, endStr string) (string, domain.Timeframe, int64, int64, error) {
	if symbol == "" {
		return "", domain.Timeframe{}, 0, 0, fmt.Errorf("symbol is required")
	}
	tf, err := domain.ParseTimeframe(tfCode)
	if err != nil {
		return "", domain.Timeframe{}, 0, 0, err
	}
	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil {
		return "", domain.Timeframe{}, 0, 0, fmt.Errorf("invalid start %q", startStr)
	}
	end, err := strconv.ParseInt(endStr, 10, 64)
	if err != nil {
		return "", domain.Timeframe{}, 0, 0, fmt.Errorf("invalid end %q", endStr)
	}
	if start >= end {
		return "", domain.Timeframe{}, 0, 0, fmt.Errorf("start must precede end")
	}
	return symbol, tf, start, end, nil
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	symbol, tf, start, end, err := parseSeriesParams(q.Get("symbol"), q.Get("timeframe"), q.Get("start"), q.Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	bars, err := s.md.FetchSeries(r.Context(), symbol, tf, start, end)
	if err != nil {
		s.log.Warn("series fetch failed", "symbol", symbol, "timeframe", tf.Code(), "error", err)
		writeError(w, statusFor(err), err.Error())
		return
	}

	if bars == nil {
		bars = []domain.Bar{}
	}
	writeJSON(w, SeriesResponse{
		Symbol:    symbol,
		Timeframe: tf.Code(),
		Start:     start,
		End:       end,
		Count:     len(bars),
		Bars:      bars,
	})
}

func (s *Server) handleInstruments(w http.ResponseWriter, r *http.Request) {
	instruments, err := s.md.ListInstruments(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		s.log.Warn("catalog fetch failed", "error", err)
		writeError(w, statusFor(err), err.Error())
		return
	}

	if instruments == nil {
		instruments = []domain.Instrument{}
	}
	writeJSON(w, InstrumentsResponse{Count: len(instruments), Instruments: instruments})
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	s.md.ClearCache(q.Get("symbol"), q.Get("timeframe"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeError(w, http.StatusServiceUnavailable, "archive not configured")
		return
	}

	var req ExportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	symbol, tf, start, end, err := parseSeriesParams(req.Symbol, req.Timeframe,
		strconv.FormatInt(req.Start, 10), strconv.FormatInt(req.End, 10))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	bars, err := s.md.FetchSeries(r.Context(), symbol, tf, start, end)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	path, err := s.archive.WriteSeries(symbol, tf.Code(), start, end, bars)
	if err != nil {
		s.log.Error("archiving series", "symbol", symbol, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to archive series")
		return
	}

	s.log.Info("series archived", "symbol", symbol, "timeframe", tf.Code(), "bars", len(bars), "path", path)
	writeJSON(w, ExportResponse{Path: path, Bars: len(bars)})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, HealthResponse{Status: "ok", CacheEntries: s.md.CacheLen()})
}
