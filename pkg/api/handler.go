package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/vanilla/proftimers/internal/report"
	"github.com/vanilla/proftimers/pkg/logging"
	"github.com/vanilla/proftimers/pkg/store"
	"github.com/vanilla/proftimers/pkg/timers"
)

const (
	defaultSummaryLimit = 20
	maxDemoDuration     = 10 * time.Second
)

var (
	errDemoFailure = errors.New("simulated failure")
	errInvalidMs   = errors.New("ms must be a finite, non-negative number")
)

// Handler serves the timer summaries, metrics and violations of a proftimers server
type Handler struct {
	store   store.Store
	metrics *report.Metrics
	logger  *logging.Logger
}

// NewHandler creates a new handler. metrics may be nil.
func NewHandler(s store.Store, metrics *report.Metrics, logger *logging.Logger) *Handler {
	return &Handler{
		store:   s,
		metrics: metrics,
		logger:  logger,
	}
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", h.Health).Methods("GET")

	if h.metrics != nil {
		r.Handle("/metrics", h.metrics.Handler()).Methods("GET")
		if v := h.metrics.Violations(); v != nil {
			r.Handle("/violations", v).Methods("GET")
		}
	}

	r.HandleFunc("/summaries", h.ListSummaries).Methods("GET")
	r.HandleFunc("/summaries/{id}", h.GetSummary).Methods("GET")
	r.HandleFunc("/format/{ms}", h.Format).Methods("GET")
	r.HandleFunc("/demo/{name}", h.Demo).Methods("GET")
}

// Health reports whether the summary store is reachable
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status, code := "healthy", http.StatusOK
	if err := h.store.HealthCheck(); err != nil {
		h.logger.Warn("Store health check failed: {error}", map[string]interface{}{"error": err.Error()})
		status, code = "unhealthy", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": status})
}

// ListSummaries returns the most recent summaries, newest first
func (h *Handler) ListSummaries(w http.ResponseWriter, r *http.Request) {
	limit := defaultSummaryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	summaries, err := h.store.Recent(limit)
	if err != nil {
		h.logger.Error("Failed to list summaries: {error}", map[string]interface{}{"error": err.Error()})
		http.Error(w, "Failed to list summaries", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"summaries": summaries,
		"count":     len(summaries),
	})
}

// GetSummary returns the summary of one request
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	summary, err := h.store.Get(id)
	if err != nil {
		if errors.Is(err, store.ErrSummaryNotFound) {
			http.Error(w, "Summary not found", http.StatusNotFound)
			return
		}
		h.logger.Error("Failed to get summary {request_id}: {error}", map[string]interface{}{
			"request_id": id,
			"error":      err.Error(),
		})
		http.Error(w, "Failed to get summary", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// Format renders a millisecond figure the way timer logs do
func (h *Handler) Format(w http.ResponseWriter, r *http.Request) {
	ms, err := parseMs(mux.Vars(r)["ms"])
	if err != nil {
		http.Error(w, "ms must be a non-negative number", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, timers.FormatDuration(ms))
}

// Demo times a simulated operation of ?ms=N milliseconds on the request's
// registry. ?fail=1 makes the operation return an error after sleeping.
func (h *Handler) Demo(w http.ResponseWriter, r *http.Request) {
	reg, ok := timers.FromContext(r.Context())
	if !ok {
		http.Error(w, "No timer registry on request", http.StatusInternalServerError)
		return
	}

	name := mux.Vars(r)["name"]
	var d time.Duration
	if v := r.URL.Query().Get("ms"); v != "" {
		ms, err := parseMs(v)
		if err != nil {
			http.Error(w, "ms must be a non-negative number", http.StatusBadRequest)
			return
		}
		ms = min(ms, float64(maxDemoDuration.Milliseconds()))
		d = time.Duration(ms * float64(time.Millisecond))
	}
	fail := r.URL.Query().Get("fail") == "1"

	err := reg.TimeContext(r.Context(), name, func(ctx context.Context) error {
		if err := sleep(ctx, d); err != nil {
			return err
		}
		if fail {
			return errDemoFailure
		}
		return nil
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	rec, _ := reg.Get(name)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"timer":  name,
		"human":  rec.Human,
		"count":  rec.Count,
		"timers": reg,
	})
}

// parseMs accepts finite, non-negative millisecond figures
func parseMs(v string) (float64, error) {
	ms, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(ms) || math.IsInf(ms, 0) || ms < 0 {
		return 0, errInvalidMs
	}
	return ms, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
