package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vanilla/proftimers/internal/report"
	"github.com/vanilla/proftimers/pkg/logging"
	"github.com/vanilla/proftimers/pkg/middleware"
	"github.com/vanilla/proftimers/pkg/store"
	"github.com/vanilla/proftimers/pkg/timers"
)

type testServer struct {
	router  *mux.Router
	store   *store.MemoryStore
	metrics *report.Metrics
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	logger := logging.NewLogger(logging.ERROR, false)
	logger.SetOutput(io.Discard)

	st := store.NewMemoryStore()
	metrics := report.NewMetrics("proftimers", report.NewViolationLog(report.DefaultViolationLogSize))

	router := mux.NewRouter()
	router.Use(middleware.Timers(middleware.Config{
		Logger:        logger,
		Store:         st,
		Observer:      metrics,
		WarningLimits: map[string]time.Duration{"slow": time.Millisecond},
		SkipPaths:     []string{"/metrics", "/health"},
	}))
	NewHandler(st, metrics, logger).RegisterRoutes(router)

	return &testServer{router: router, store: st, metrics: metrics}
}

func (s *testServer) get(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest("GET", target, nil))
	return w
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w := s.get(t, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, w.Body.String())
}

func TestFormat(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		ms       string
		code     int
		expected string
	}{
		{"1500", http.StatusOK, "1.5s\n"},
		{"0.4", http.StatusOK, "400μs\n"},
		{"90000", http.StatusOK, "1.5m\n"},
		{"abc", http.StatusBadRequest, ""},
		{"-1", http.StatusBadRequest, ""},
		{"NaN", http.StatusBadRequest, ""},
		{"Inf", http.StatusBadRequest, ""},
		{"+Inf", http.StatusBadRequest, ""},
		{"-Inf", http.StatusBadRequest, ""},
		{"1e400", http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.ms, func(t *testing.T) {
			w := s.get(t, "/format/"+tt.ms)
			assert.Equal(t, tt.code, w.Code)
			if tt.code == http.StatusOK {
				assert.Equal(t, tt.expected, w.Body.String())
			}
		})
	}
}

func TestDemo_RecordsAndPersists(t *testing.T) {
	s := newTestServer(t)

	w := s.get(t, "/demo/dbRead?ms=1")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Timer  string                   `json:"timer"`
		Count  int                      `json:"count"`
		Timers map[string]timers.Logged `json:"timers"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "dbRead", body.Timer)
	assert.Equal(t, 1, body.Count)
	assert.GreaterOrEqual(t, body.Timers["dbRead"].Time, 1.0)

	id := w.Header().Get(middleware.RequestIDHeader)
	require.NotEmpty(t, id)

	w = s.get(t, "/summaries/"+id)
	require.Equal(t, http.StatusOK, w.Code)
	var summary timers.Summary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, "GET /demo/{name}", summary.Event)
	assert.Equal(t, 1, summary.Timers["dbRead"].Count)
}

func TestDemo_Failure(t *testing.T) {
	s := newTestServer(t)

	w := s.get(t, "/demo/dbWrite?fail=1")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "simulated failure")

	// The timer was still stopped and the summary still saved.
	summaries, err := s.store.Recent(1)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, 1, summaries[0].Timers["dbWrite"].Count)
}

func TestDemo_BadDuration(t *testing.T) {
	s := newTestServer(t)
	for _, v := range []string{"soon", "NaN", "Inf", "-1"} {
		w := s.get(t, "/demo/x?ms="+v)
		assert.Equal(t, http.StatusBadRequest, w.Code, v)
	}
}

func TestDemo_DurationIsCapped(t *testing.T) {
	s := newTestServer(t)

	// The request context is already cancelled, so a capped sleep returns at
	// once with context.Canceled. An overflowed duration would be negative
	// and skip the sleep, letting the request succeed.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest("GET", "/demo/x?ms=1e20", nil).WithContext(ctx))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), context.Canceled.Error())
}

func TestParseMs(t *testing.T) {
	ms, err := parseMs("12.5")
	require.NoError(t, err)
	assert.Equal(t, 12.5, ms)

	for _, v := range []string{"", "abc", "NaN", "Inf", "-Inf", "-0.1"} {
		_, err := parseMs(v)
		assert.Error(t, err, v)
	}
}

func TestDemo_WithoutRegistry(t *testing.T) {
	router := mux.NewRouter()
	NewHandler(store.NewMemoryStore(), nil, logging.NewLogger(logging.ERROR, false)).RegisterRoutes(router)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/demo/x", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestSummaries(t *testing.T) {
	s := newTestServer(t)
	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, s.get(t, "/demo/op").Code)
	}

	w := s.get(t, "/summaries?limit=2")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Summaries []timers.Summary `json:"summaries"`
		Count     int              `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 2, list.Count)
	assert.Len(t, list.Summaries, 2)

	assert.Equal(t, http.StatusBadRequest, s.get(t, "/summaries?limit=x").Code)
	assert.Equal(t, http.StatusNotFound, s.get(t, "/summaries/unknown").Code)
}

func TestMetricsAndViolations(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusOK, s.get(t, "/demo/slow?ms=5").Code)

	w := s.get(t, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `proftimers_timer_runs_total{timer="slow"} 1`)
	assert.Contains(t, w.Body.String(), `proftimers_timer_warnings_total{timer="slow"} 1`)

	w = s.get(t, "/violations")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), `"slow"`))
	assert.Equal(t, 1, s.metrics.Violations().Count())
}
