package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/reforgerwatch/reforgerwatch/internal/collector"
	"github.com/reforgerwatch/reforgerwatch/internal/domain"
	"github.com/reforgerwatch/reforgerwatch/internal/remote"
)

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// handleGetStatus returns the last composed snapshot
func (r *Router) handleGetStatus(w http.ResponseWriter, req *http.Request) {
	snap := r.engine.Snapshot()
	if snap == nil {
		writeError(w, http.StatusServiceUnavailable, "no snapshot available yet")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleGetLeaderboard returns the persisted top killers. Placeholder slots
// are stripped; they only pad the stored list.
func (r *Router) handleGetLeaderboard(w http.ResponseWriter, req *http.Request) {
	entries, err := r.engine.Leaderboard(req.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	ranked := make([]domain.LeaderboardEntry, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsPlaceholder() {
			ranked = append(ranked, entry)
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"top_killers": ranked})
}

// handleGetPlayers returns all known player records. GUID and IP are only
// included for authenticated callers.
func (r *Router) handleGetPlayers(w http.ResponseWriter, req *http.Request) {
	records, err := r.store.ListPlayers(req.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if !r.isAuthenticated(req) {
		for i := range records {
			records[i].GUID = ""
			records[i].IP = ""
		}
	}
	writeJSON(w, http.StatusOK, records)
}

// handleGetPlayerStats runs an on-demand live-session query for one identity
func (r *Router) handleGetPlayerStats(w http.ResponseWriter, req *http.Request) {
	identity := req.PathValue("identity")
	if identity == "" {
		writeError(w, http.StatusBadRequest, "identity required")
		return
	}

	stats, err := r.engine.PlayerStats(req.Context(), identity)
	if err != nil {
		if errors.Is(err, remote.ErrNoSessionLogs) {
			writeError(w, http.StatusNotFound, "no session logs available")
			return
		}
		// Interactive queries surface the underlying error text
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleRefresh triggers a manual refresh cycle
func (r *Router) handleRefresh(w http.ResponseWriter, req *http.Request) {
	snap, err := r.engine.RefreshNow(req.Context())
	switch {
	case errors.Is(err, collector.ErrRefreshInFlight):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, collector.ErrRefreshThrottled):
		writeError(w, http.StatusTooManyRequests, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, snap)
	}
}

// handleInstall runs an immediate cycle and returns the snapshot for seeding
// a presentation message
func (r *Router) handleInstall(w http.ResponseWriter, req *http.Request) {
	snap, err := r.engine.Install(req.Context())
	if err != nil {
		if errors.Is(err, collector.ErrRefreshInFlight) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleHealth is the liveness probe
func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
