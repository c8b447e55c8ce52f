// Package remote talks to the case-management web API.
package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"osdbridge/app/internal/models"
)

var (
	ErrNotConfigured = errors.New("remote API not configured")
	ErrBadResponse   = errors.New("remote API returned an unusable response")
)

// EventDescription is attached to every event created by this service
const EventDescription = "Uploaded by osdbridge"

// Event is a remote event as returned by CreateEvent
type Event struct {
	ID       int64
	DataTime time.Time
}

// API is the remote collaborator used by the upload coordinator and UI
type API interface {
	CreateEvent(ctx context.Context, eventType int, at time.Time, description string) (Event, error)
	CreateDatapoint(ctx context.Context, dp models.Datapoint, eventID int64) error
	GetEventTypes(ctx context.Context) (models.EventTypes, error)
}

// EventType maps a datapoint status to the remote event type code
func EventType(status models.AlarmStatus) (int, error) {
	switch status {
	case models.StatusWarning:
		return 1, nil
	case models.StatusAlarm:
		return 0, nil
	case models.StatusFall:
		return 2, nil
	case models.StatusManualAlarm:
		return 3, nil
	}
	return -1, fmt.Errorf("no remote event type for status %d (%s)", status, status.Phrase())
}
