package handlers

import (
	"net/http"
	"strconv"

	"osdbridge/app/internal/models"
)

// HandleGetLogs returns operator log entries with optional filtering
func HandleGetLogs(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit := 100
		if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 {
			limit = min(n, 500)
		}
		offset := 0
		if n, err := strconv.Atoi(q.Get("offset")); err == nil && n > 0 {
			offset = n
		}

		logs, err := store.GetLogs(limit, q.Get("level"), q.Get("category"), q.Get("source"), offset)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "server error")
			return
		}
		if logs == nil {
			logs = []models.LogEntry{}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"logs": logs})
	}
}

// HandleGetLogStats returns counts per level
func HandleGetLogStats(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := store.GetLogStats()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "server error")
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}
