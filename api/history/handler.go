// Package history exposes the snapshot history and its aggregates over
// HTTP.
package history

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	corehistory "github.com/mgrande/ladevakt/core/history"
	"github.com/mgrande/ladevakt/core/logger"
	"github.com/mgrande/ladevakt/core/model"
)

// defaultWindowHours is the history window used when the request does not
// name one.
const defaultWindowHours = 24

// maxWindowHours caps the requested window so a single request cannot pull
// the entire retention period.
const maxWindowHours = 24 * 90

// Handler serves the history endpoints.
type Handler struct {
	store corehistory.Store
	log   logger.Logger
	now   func() time.Time
}

// NewHandler creates a Handler backed by the given store.
func NewHandler(store corehistory.Store, log logger.Logger) *Handler {
	return &Handler{store: store, log: log, now: time.Now}
}

// Register mounts the endpoints on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/history", h.handleHistory)
	mux.HandleFunc("/api/history/stats", h.handleStats)
}

func (h *Handler) window(r *http.Request) (time.Time, error) {
	hours := defaultWindowHours
	if raw := r.URL.Query().Get("hours"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return time.Time{}, &badRequestError{"hours must be a positive integer"}
		}
		hours = n
	}
	if hours > maxWindowHours {
		hours = maxWindowHours
	}
	return h.now().Add(-time.Duration(hours) * time.Hour), nil
}

type badRequestError struct{ msg string }

func (e *badRequestError) Error() string { return e.msg }

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	since, err := h.window(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	snaps, err := h.store.Query(r.Context(), corehistory.Query{
		VehicleID: r.URL.Query().Get("vehicle"),
		Since:     since,
	})
	if err != nil {
		h.log.Errorf("history query: %v", err)
		http.Error(w, "history query failed", http.StatusInternalServerError)
		return
	}
	if snaps == nil {
		snaps = []model.Status{}
	}
	writeJSON(w, map[string]any{
		"since":    since.Format(time.RFC3339),
		"count":    len(snaps),
		"readings": snaps,
	})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	since, err := h.window(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	snaps, err := h.store.Query(r.Context(), corehistory.Query{Since: since})
	if err != nil {
		h.log.Errorf("history query: %v", err)
		http.Error(w, "history query failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{
		"since":    since.Format(time.RFC3339),
		"vehicles": corehistory.ComputeStats(snaps),
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
