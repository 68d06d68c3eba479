package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"tripcal/internal/config"
	"tripcal/internal/metrics"
	"tripcal/internal/store"
	"tripcal/internal/tz"
)

const tokyoRequest = `{
  "destination": "Tokyo",
  "window": {"start": "2025-09-01", "end": "2025-09-05"},
  "events": [{
    "id": "sync",
    "summary": "Weekly sync",
    "start": {"dateTime": "2025-09-01T09:00:00-04:00", "timeZone": "America/New_York"},
    "end": {"dateTime": "2025-09-01T10:00:00-04:00", "timeZone": "America/New_York"}
  }]
}`

type repoTrips struct{ repo store.Repository }

func (r repoTrips) Latest(ctx context.Context) (*store.Record, error) {
	return r.repo.Get(ctx, "trip:latest")
}

func newTestServer(t *testing.T, cfg *config.Config) (*Server, store.Repository) {
	t.Helper()
	repo := store.NewMemory(zap.NewNop(), 0)
	t.Cleanup(func() { repo.Close() })
	analyzer := tz.NewAnalyzer(cfg.Resolver(), tz.DefaultPolicy(), nil)
	return NewServer(cfg, analyzer, repo, repoTrips{repo}, metrics.New()), repo
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, rd))
	return rec
}

func decodeAnalysis(t *testing.T, rec *httptest.ResponseRecorder) (analysisResponse, tz.Result) {
	t.Helper()
	var resp analysisResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	var res struct {
		Conflicts []struct {
			Type tz.ConflictType `json:"conflict_type"`
		} `json:"conflicts"`
		Summary tz.Summary `json:"summary"`
		Dest    string     `json:"destination_timezone"`
	}
	if err := json.Unmarshal(resp.Result, &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	out := tz.Result{DestinationTimezone: res.Dest, Summary: res.Summary}
	for _, c := range res.Conflicts {
		out.Conflicts = append(out.Conflicts, tz.Conflict{Type: c.Type})
	}
	return resp, out
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, config.DefaultConfig())
	rec := do(t, s.Handler(), http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Fatalf("unexpected health response %d %q", rec.Code, rec.Body.String())
	}
}

func TestAnalyze_CachesIdenticalRequests(t *testing.T) {
	s, _ := newTestServer(t, config.DefaultConfig())
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/analyze", tokyoRequest)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	first, res := decodeAnalysis(t, rec)
	if first.Cached {
		t.Errorf("first request must not be a cache hit")
	}
	if res.DestinationTimezone != "Asia/Tokyo" || res.Summary.Total != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Conflicts[0].Type != tz.TimezoneMismatch {
		t.Errorf("expected timezone_mismatch, got %s", res.Conflicts[0].Type)
	}

	// Same request, different whitespace.
	compact := strings.Join(strings.Fields(tokyoRequest), "")
	rec = do(t, h, http.MethodPost, "/api/analyze", compact)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	second, _ := decodeAnalysis(t, rec)
	if !second.Cached || second.AnalysisID != first.AnalysisID {
		t.Errorf("expected cache hit with id %s, got cached=%v id=%s", first.AnalysisID, second.Cached, second.AnalysisID)
	}
	if string(second.Result) != string(first.Result) {
		t.Errorf("cached result differs")
	}
}

func TestAnalyze_InvalidInput(t *testing.T) {
	s, _ := newTestServer(t, config.DefaultConfig())
	h := s.Handler()

	cases := map[string]string{
		"malformed json":  `{"events": [`,
		"reversed window": `{"destination":"Tokyo","window":{"start":"2025-09-05","end":"2025-09-01"},"events":[]}`,
		"bad timestamp":   `{"destination":"Tokyo","window":{"start":"2025-09-01","end":"2025-09-05"},"events":[{"id":"x","start":{"dateTime":"soon"},"end":{"dateTime":"later"}}]}`,
		"end before start": `{"destination":"Tokyo","window":{"start":"2025-09-01","end":"2025-09-05"},"events":[{"id":"x",
			"start":{"dateTime":"2025-09-02T10:00:00Z"},"end":{"dateTime":"2025-09-02T09:00:00Z"}}]}`,
		"missing window": `{"destination":"Tokyo","events":[{"id":"night","summary":"Vendor call",
			"start":{"dateTime":"2025-08-30T02:00:00-04:00"},"end":{"dateTime":"2025-08-30T03:00:00-04:00"}}]}`,
		"unloadable event zone": `{"destination":"Tokyo","window":{"start":"2025-08-30","end":"2025-09-05"},"events":[{"id":"x",
			"start":{"dateTime":"2025-08-30T09:00:00","timeZone":"Mars/Olympus"},"end":{"dateTime":"2025-08-30T10:00:00","timeZone":"Mars/Olympus"}}]}`,
		"unknown home zone": `{"destination":"Tokyo","home_timezone":"Mars/Olympus","window":{"start":"2025-09-01","end":"2025-09-05"},"events":[]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/analyze", body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}

	if rec := do(t, h, http.MethodGet, "/api/analyze", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405 for GET, got %d", rec.Code)
	}
}

func TestTrip(t *testing.T) {
	s, repo := newTestServer(t, config.DefaultConfig())
	h := s.Handler()

	if rec := do(t, h, http.MethodGet, "/api/trip", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before any refresh, got %d", rec.Code)
	}

	stored := store.NewRecord("trip:latest", []byte(`{"destination":"London"}`), time.Hour)
	if err := repo.Set(context.Background(), stored); err != nil {
		t.Fatalf("seed: %v", err)
	}
	rec := do(t, h, http.MethodGet, "/api/trip", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp analysisResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.AnalysisID != stored.ID || string(resp.Result) != `{"destination":"London"}` {
		t.Errorf("unexpected trip response %+v", resp)
	}

	noTrips := NewServer(config.DefaultConfig(), tz.NewAnalyzer(nil, tz.DefaultPolicy(), nil), repo, nil, nil)
	if rec := do(t, noTrips.Handler(), http.MethodGet, "/api/trip", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 without a trip source, got %d", rec.Code)
	}
}

func TestResolve(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Cities = map[string]string{"reykjavik": "Atlantic/Reykjavik"}
	s, _ := newTestServer(t, cfg)
	h := s.Handler()

	cases := []struct {
		city  string
		zone  string
		known bool
	}{
		{"Tokyo", "Asia/Tokyo", true},
		{"Reykjavik", "Atlantic/Reykjavik", true},
		{"Atlantis", cfg.DefaultTimezone, false},
	}
	for _, tc := range cases {
		rec := do(t, h, http.MethodGet, "/api/resolve?city="+tc.city, "")
		var got resolveResponse
		if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.Timezone != tc.zone || got.Known != tc.known {
			t.Errorf("%s: got %+v", tc.city, got)
		}
	}

	if rec := do(t, h, http.MethodGet, "/api/resolve", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without city, got %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t, config.DefaultConfig())
	h := s.Handler()

	do(t, h, http.MethodPost, "/api/analyze", `not json`)
	rec := do(t, h, http.MethodGet, "/metrics", "")
	if !strings.Contains(rec.Body.String(), `tripcal_analyses_total{outcome="invalid"} 1`) {
		t.Errorf("metrics missing invalid outcome:\n%s", rec.Body.String())
	}
}

func TestBasicAuth(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "ana", Password: "s3cret"}
	s, _ := newTestServer(t, cfg)
	h := s.Handler()

	if rec := do(t, h, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Errorf("/health must stay open, got %d", rec.Code)
	}

	rec := do(t, h, http.MethodGet, "/api/resolve?city=Paris", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if !strings.Contains(rec.Header().Get("WWW-Authenticate"), `realm="tripcal"`) {
		t.Errorf("missing challenge header")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/resolve?city=Paris", nil)
	req.SetBasicAuth("ana", "wrong")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong password should be rejected, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/resolve?city=Paris", nil)
	req.SetBasicAuth("ana", "s3cret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("valid credentials rejected: %d", rec.Code)
	}

	cfg.BasicAuth = &config.BasicAuthConfig{Username: "ana"}
	if s.basicAuthEnabled() {
		t.Errorf("empty password should disable auth")
	}
}

func TestStartServer_Shutdown(t *testing.T) {
	s, _ := newTestServer(t, config.DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- StartServer(ctx, s, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("shutdown returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
