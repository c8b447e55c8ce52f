package remote

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"osdbridge/app/internal/models"
)

// wire formats
type createEventRequest struct {
	EventType int    `json:"eventType"`
	DataTime  string `json:"dataTime"`
	Desc      string `json:"desc"`
}

type eventResponse struct {
	ID       int64  `json:"id"`
	DataTime string `json:"dataTime"`
}

type createDatapointRequest struct {
	EventID  int64  `json:"eventId"`
	DataTime string `json:"dataTime"`
	Status   int    `json:"status"`
	DataJSON string `json:"dataJSON"`
}

const wireTimeLayout = "2006-01-02T15:04:05"

// Client is the resty-backed API implementation. It does not retry;
// retries happen on the next upload sweep.
type Client struct {
	http       *resty.Client
	configured bool
	logger     *zap.Logger
}

// NewClient builds a client for baseURL. An empty baseURL yields a client
// whose calls fail with ErrNotConfigured.
func NewClient(baseURL, token string, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if token != "" {
		httpClient.SetHeader("Authorization", "Token "+token)
	}

	return &Client{
		http:       httpClient,
		configured: baseURL != "",
		logger:     logger,
	}
}

// CreateEvent opens a remote event and returns its id and canonical time
func (c *Client) CreateEvent(ctx context.Context, eventType int, at time.Time, description string) (Event, error) {
	if !c.configured {
		return Event{}, ErrNotConfigured
	}

	var out eventResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(createEventRequest{
			EventType: eventType,
			DataTime:  at.UTC().Format(wireTimeLayout),
			Desc:      description,
		}).
		SetResult(&out).
		Post("/events/")
	if err != nil {
		return Event{}, fmt.Errorf("create event: %w", err)
	}
	if resp.IsError() {
		return Event{}, fmt.Errorf("%w: create event status %d", ErrBadResponse, resp.StatusCode())
	}
	if out.ID == 0 {
		return Event{}, fmt.Errorf("%w: create event returned no id", ErrBadResponse)
	}

	t, err := parseWireTime(out.DataTime)
	if err != nil {
		return Event{}, fmt.Errorf("%w: event %d time %q", ErrBadResponse, out.ID, out.DataTime)
	}

	c.logger.Debug("remote event created", zap.Int64("event_id", out.ID), zap.Int("event_type", eventType))
	return Event{ID: out.ID, DataTime: t}, nil
}

// CreateDatapoint uploads one stored datapoint under eventID
func (c *Client) CreateDatapoint(ctx context.Context, dp models.Datapoint, eventID int64) error {
	if !c.configured {
		return ErrNotConfigured
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(createDatapointRequest{
			EventID:  eventID,
			DataTime: dp.DataTime.UTC().Format(wireTimeLayout),
			Status:   int(dp.Status),
			DataJSON: dp.DataJSON,
		}).
		Post("/datapoints/")
	if err != nil {
		return fmt.Errorf("create datapoint %d: %w", dp.ID, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: create datapoint %d status %d", ErrBadResponse, dp.ID, resp.StatusCode())
	}
	return nil
}

// GetEventTypes fetches the event type to subtype mapping
func (c *Client) GetEventTypes(ctx context.Context) (models.EventTypes, error) {
	if !c.configured {
		return nil, ErrNotConfigured
	}

	out := models.EventTypes{}
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/eventTypes/")
	if err != nil {
		return nil, fmt.Errorf("get event types: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: get event types status %d", ErrBadResponse, resp.StatusCode())
	}
	return out, nil
}

func parseWireTime(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	return time.ParseInLocation(wireTimeLayout, v, time.UTC)
}
