package handlers

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"osdbridge/app/internal/ratelimit"
)

// SetupRoutes builds the HTTP handler. The watch ingest path is not rate
// limited; the UI API is, per client address.
func SetupRoutes(d Deps, limiter *ratelimit.Limiter) http.Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}

	api := http.NewServeMux()
	api.HandleFunc("GET /api/status", HandleStatus(d))
	api.HandleFunc("GET /api/datapoints", HandleListDatapoints(d.Store))
	api.HandleFunc("GET /api/datapoints/{id}", HandleGetDatapoint(d.Store))
	api.HandleFunc("POST /api/accept", HandleAccept(d.Watch))
	api.HandleFunc("POST /api/manual-alarm", HandleManualAlarm(d.Watch))
	api.HandleFunc("POST /api/upload", HandleUpload(d.Uploader))
	api.HandleFunc("GET /api/eventtypes", HandleEventTypes(d.EventTypes))
	api.HandleFunc("GET /api/logs", HandleGetLogs(d.Store))
	api.HandleFunc("GET /api/logs/stats", HandleGetLogStats(d.Store))

	var apiHandler http.Handler = api
	if limiter != nil {
		apiHandler = ratelimit.Middleware(limiter, d.Logger)(api)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /data", HandleWatchData(d.Watch, d.Logger))
	mux.Handle("/api/", GzipMiddleware(apiHandler))
	mux.Handle("GET /metrics", promhttp.Handler())

	return SecureHeaders(mux)
}
