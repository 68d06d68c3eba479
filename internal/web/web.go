package web

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"tripcal/internal/config"
	appLog "tripcal/internal/log"
	"tripcal/internal/metrics"
	"tripcal/internal/store"
	"tripcal/internal/tz"
)

// maxRequestBody bounds POST /api/analyze bodies.
const maxRequestBody = 4 << 20

// TripSource yields the latest scheduled analysis. *refresh.Job satisfies it.
type TripSource interface {
	Latest(ctx context.Context) (*store.Record, error)
}

// Server exposes the analysis engine over HTTP.
type Server struct {
	cfg      *config.Config
	analyzer *tz.Analyzer
	repo     store.Repository
	trips    TripSource
	metrics  *metrics.Metrics
	mux      *http.ServeMux
}

// NewServer constructs a new Server. trips may be nil, in which case
// /api/trip always answers 404.
func NewServer(cfg *config.Config, analyzer *tz.Analyzer, repo store.Repository, trips TripSource, m *metrics.Metrics) *Server {
	s := &Server{
		cfg:      cfg,
		analyzer: analyzer,
		repo:     repo,
		trips:    trips,
		metrics:  m,
		mux:      http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials disable auth rather than lock everyone out.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="tripcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// StartServer serves s on listen until ctx is cancelled, then shuts down
// gracefully.
func StartServer(ctx context.Context, s *Server, listen string) error {
	srv := &http.Server{
		Addr:              listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /api/analyze", s.handleAnalyze)
	s.mux.HandleFunc("GET /api/trip", s.handleTrip)
	s.mux.HandleFunc("GET /api/resolve", s.handleResolve)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// analysisResponse wraps a stored result. The id and timestamp live outside
// the result so identical requests keep producing identical results.
type analysisResponse struct {
	AnalysisID  uuid.UUID       `json:"analysis_id"`
	GeneratedAt time.Time       `json:"generated_at"`
	Cached      bool            `json:"cached"`
	Result      json.RawMessage `json:"result"`
}

func recordResponse(rec *store.Record, cached bool) analysisResponse {
	return analysisResponse{
		AnalysisID:  rec.ID,
		GeneratedAt: rec.CreatedAt.UTC(),
		Cached:      cached,
		Result:      json.RawMessage(rec.Payload),
	}
}

// handleAnalyze runs one trip analysis.
//
// POST /api/analyze
//
//	{"events": [...], "destination": "London",
//	 "window": {"start": "2025-09-01", "end": "2025-09-05"},
//	 "home_timezone": "America/New_York"}
//
// Results are cached by the SHA-256 of the re-encoded request, so requests
// that differ only in formatting share an entry.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req tz.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&req); err != nil {
		s.outcome(metrics.OutcomeInvalid)
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	key, err := cacheKey(req)
	if err != nil {
		s.outcome(metrics.OutcomeError)
		appLog.Error("api analyze: cache key failed", err)
		writeError(w, http.StatusInternalServerError, "failed to encode request")
		return
	}

	if rec, err := s.repo.Get(ctx, key); err == nil {
		s.outcome(metrics.OutcomeCached)
		writeJSON(w, http.StatusOK, recordResponse(rec, true))
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		appLog.Warn("api analyze: cache read failed", "error", err)
	}

	started := time.Now()
	res, err := s.analyzer.Analyze(req)
	if err != nil {
		if isInvalid(err) {
			s.outcome(metrics.OutcomeInvalid)
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.outcome(metrics.OutcomeError)
		appLog.Error("api analyze: analysis failed", err, "destination", req.Destination)
		writeError(w, http.StatusInternalServerError, "analysis failed")
		return
	}
	if s.metrics != nil {
		s.metrics.ObserveAnalysis(res, time.Since(started))
	}

	payload, err := json.Marshal(res)
	if err != nil {
		appLog.Error("api analyze: encode result failed", err)
		writeError(w, http.StatusInternalServerError, "failed to encode result")
		return
	}

	rec := store.NewRecord(key, payload, s.cfg.Cache.TTL)
	if err := s.repo.Set(ctx, rec); err != nil {
		appLog.Warn("api analyze: cache write failed", "error", err)
	}

	appLog.Info("api analyze",
		"destination", req.Destination,
		"events", len(req.Events),
		"conflicts", res.Summary.Total,
		"analysis_id", rec.ID.String(),
	)
	writeJSON(w, http.StatusOK, recordResponse(rec, false))
}

// handleTrip returns the analysis stored by the last scheduled refresh.
func (s *Server) handleTrip(w http.ResponseWriter, r *http.Request) {
	if s.trips == nil {
		writeError(w, http.StatusNotFound, "no trip analysis yet")
		return
	}
	rec, err := s.trips.Latest(r.Context())
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no trip analysis yet")
		return
	}
	if err != nil {
		appLog.Error("api trip: read failed", err)
		writeError(w, http.StatusInternalServerError, "failed to read trip analysis")
		return
	}
	writeJSON(w, http.StatusOK, recordResponse(rec, false))
}

type resolveResponse struct {
	City     string `json:"city"`
	Timezone string `json:"timezone"`
	Known    bool   `json:"known"`
}

// handleResolve maps a city name to the zone the analyzer would use.
//
// GET /api/resolve?city=Tokyo
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	city := r.URL.Query().Get("city")
	if city == "" {
		writeError(w, http.StatusBadRequest, "city is required")
		return
	}
	res := s.analyzer.Resolver()
	writeJSON(w, http.StatusOK, resolveResponse{
		City:     city,
		Timezone: res.Resolve(city),
		Known:    res.Known(city),
	})
}

func (s *Server) outcome(o string) {
	if s.metrics != nil {
		s.metrics.Outcome(o)
	}
}

func isInvalid(err error) bool {
	return errors.Is(err, tz.ErrInvalidEvent) ||
		errors.Is(err, tz.ErrInvalidWindow) ||
		errors.Is(err, tz.ErrUnknownTimezone)
}

// cacheKey hashes the canonical encoding of req.
func cacheKey(req tz.Request) (string, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return "analysis:" + hex.EncodeToString(sum[:]), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
