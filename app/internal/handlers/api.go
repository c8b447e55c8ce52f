package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"osdbridge/app/internal/database"
	"osdbridge/app/internal/models"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// HandleStatus returns the current reading, component health and upload state
func HandleStatus(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]interface{}{
			"reading": d.Watch.CurrentReading(),
			"health":  d.Health.Snapshot(),
			"upload":  d.Uploader.Status(),
		}

		counts := map[string]int{}
		if n, err := d.Store.CountDatapoints(r.Context()); err == nil {
			counts["datapoints"] = n
		}
		if n, err := d.Store.CountPending(r.Context()); err == nil {
			counts["pending"] = n
		}
		if n, err := d.Store.CountEvents(r.Context(), true); err == nil {
			counts["events"] = n
		}
		resp["store"] = counts

		writeJSON(w, http.StatusOK, resp)
	}
}

// HandleListDatapoints lists datapoints newest first, either by id range
// (fromId, toId) or by date range (start, end, limit). The date range
// defaults to the last 24 hours.
func HandleListDatapoints(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		if q.Get("fromId") != "" || q.Get("toId") != "" {
			from, err1 := strconv.ParseInt(q.Get("fromId"), 10, 64)
			to, err2 := strconv.ParseInt(q.Get("toId"), 10, 64)
			if err1 != nil || err2 != nil || to < from {
				writeError(w, http.StatusBadRequest, "fromId and toId must be integers with fromId <= toId")
				return
			}
			dps, err := store.QueryByIDRange(r.Context(), from, to, database.NewestFirst)
			if err != nil {
				writeError(w, http.StatusServiceUnavailable, "store unavailable")
				return
			}
			writeDatapoints(w, dps)
			return
		}

		end := time.Now()
		if v := q.Get("end"); v != "" {
			t, err := parseQueryTime(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid end")
				return
			}
			end = t
		}
		start := end.Add(-24 * time.Hour)
		if v := q.Get("start"); v != "" {
			t, err := parseQueryTime(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid start")
				return
			}
			start = t
		}

		limit := defaultListLimit
		if v := q.Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				writeError(w, http.StatusBadRequest, "invalid limit")
				return
			}
			limit = min(n, maxListLimit)
		}

		dps, err := store.QueryByDateRange(r.Context(), start, end, database.NewestFirst, limit)
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, "store unavailable")
			return
		}
		writeDatapoints(w, dps)
	}
}

func writeDatapoints(w http.ResponseWriter, dps []models.Datapoint) {
	if dps == nil {
		dps = []models.Datapoint{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"datapoints": dps})
}

// parseQueryTime accepts RFC 3339 or the store's "2006-01-02 15:04:05" (UTC)
func parseQueryTime(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.ParseInLocation(database.TimeLayout, v, time.UTC)
}

// HandleGetDatapoint returns one datapoint by id
func HandleGetDatapoint(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid id")
			return
		}
		dp, err := store.GetByID(r.Context(), id)
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, "store unavailable")
			return
		}
		writeJSON(w, http.StatusOK, dp)
	}
}

func HandleAccept(watch Watch) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		watch.AcceptAlarm()
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "alarmState": watch.CurrentReading().AlarmPhrase})
	}
}

func HandleManualAlarm(watch Watch) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		watch.ManualAlarm()
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "alarmState": watch.CurrentReading().AlarmPhrase})
	}
}

// HandleUpload requests an immediate upload sweep
func HandleUpload(up Uploader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if up.Trigger() {
			writeJSON(w, http.StatusAccepted, map[string]interface{}{"started": true})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"started": false, "status": up.Status()})
	}
}

// HandleEventTypes serves the cached remote event types. With nothing
// cached and the remote unavailable it returns 503 and an empty map.
func HandleEventTypes(types EventTypes) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		et, err := types.Get(r.Context())
		if err != nil && len(et) == 0 {
			writeJSON(w, http.StatusServiceUnavailable, models.EventTypes{})
			return
		}
		if et == nil {
			et = models.EventTypes{}
		}
		writeJSON(w, http.StatusOK, et)
	}
}
