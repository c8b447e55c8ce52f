// Package datasource receives sample windows from the watch, runs them
// through analysis and the alarm state machine, and records the result.
package datasource

import (
	"context"

	"osdbridge/app/internal/models"
)

// Watch replies
const (
	ReplyOK           = "OK"
	ReplySendSettings = "sendSettings"
	ReplyError        = "ERROR"
)

// Source is implemented by each kind of seizure detector device
type Source interface {
	Start(ctx context.Context) error
	Stop()
	UpdatePrefs(s models.Settings)
	CurrentReading() models.Reading
}

var _ Source = (*Garmin)(nil)
