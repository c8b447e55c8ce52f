// Package handlers exposes the watch ingest endpoint and the JSON API used
// by the local UI.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"osdbridge/app/internal/database"
	"osdbridge/app/internal/models"
	"osdbridge/app/internal/monitor"
)

// Watch is the active data source
type Watch interface {
	UpdateFromJSON(ctx context.Context, body []byte) string
	CurrentReading() models.Reading
	AcceptAlarm()
	ManualAlarm()
}

// Store is the read side of the local store plus the operator log
type Store interface {
	GetByID(ctx context.Context, id int64) (models.Datapoint, error)
	QueryByIDRange(ctx context.Context, startID, endID int64, order database.Order) ([]models.Datapoint, error)
	QueryByDateRange(ctx context.Context, start, end time.Time, order database.Order, limit int) ([]models.Datapoint, error)
	CountDatapoints(ctx context.Context) (int, error)
	CountEvents(ctx context.Context, includeWarnings bool) (int, error)
	CountPending(ctx context.Context) (int, error)
	GetLogs(limit int, level, category, source string, offset int) ([]models.LogEntry, error)
	GetLogStats() (*models.LogStats, error)
}

type Uploader interface {
	Trigger() bool
	Status() models.UploadStatus
}

type EventTypes interface {
	Get(ctx context.Context) (models.EventTypes, error)
}

// Deps are the collaborators the routes are built from
type Deps struct {
	Watch      Watch
	Store      Store
	Uploader   Uploader
	EventTypes EventTypes
	Health     *monitor.Health
	Logger     *zap.Logger
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
