// Package uploader syncs alarm events and their surrounding datapoints from
// the local store to the remote API, one event per sweep.
package uploader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"osdbridge/app/internal/database"
	"osdbridge/app/internal/metrics"
	"osdbridge/app/internal/models"
	"osdbridge/app/internal/monitor"
	"osdbridge/app/internal/remote"
)

// Sweep outcomes
const (
	ResultDisabled    = "disabled"
	ResultMetered     = "metered"
	ResultBusy        = "busy"
	ResultOffline     = "offline"
	ResultNoStorage   = "storage-unavailable"
	ResultIdle        = "idle"
	ResultUploaded    = "uploaded"
	ResultAborted     = "aborted"
	ResultInterrupted = "interrupted"
)

// Store is the subset of the local store the coordinator needs
type Store interface {
	Available(ctx context.Context) bool
	NextEventToUpload(ctx context.Context, cutoff time.Time) (models.Datapoint, bool, error)
	QueryByDateRange(ctx context.Context, start, end time.Time, order database.Order, limit int) ([]models.Datapoint, error)
	MarkUploaded(ctx context.Context, id, eventID int64) error
	InsertLog(level, category, source, message, details string) error
}

// Network reports link state
type Network interface {
	Connected(ctx context.Context) bool
	Metered() bool
}

// Options control when uploads may run
type Options struct {
	Enabled       bool
	AllowMetered  bool
	EventDuration time.Duration
}

// Coordinator runs upload sessions. At most one session is active at any
// time; the in-flight flag is taken before any network call and released
// only when the session ends or aborts.
type Coordinator struct {
	store  Store
	api    remote.API
	net    Network
	opts   Options
	health *monitor.Health
	logger *zap.Logger
	now    func() time.Time

	inFlight atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	status models.UploadStatus
}

// New creates a coordinator
func New(store Store, api remote.API, network Network, opts Options, health *monitor.Health, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if health == nil {
		health = monitor.NewHealth()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		store:  store,
		api:    api,
		net:    network,
		opts:   opts,
		health: health,
		logger: logger,
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Trigger starts a sweep in the background. It returns false without
// doing anything if uploads are not allowed or a session is in flight.
func (c *Coordinator) Trigger() bool {
	if res := c.precheck(); res != "" {
		c.finish(res)
		return false
	}
	if !c.inFlight.CompareAndSwap(false, true) {
		c.logger.Debug("upload already in flight")
		return false
	}
	if c.ctx.Err() != nil {
		c.inFlight.Store(false)
		return false
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.inFlight.Store(false)
		c.finish(c.session(c.ctx))
	}()
	return true
}

// RunOnce performs one sweep synchronously and returns its outcome
func (c *Coordinator) RunOnce(ctx context.Context) string {
	if res := c.precheck(); res != "" {
		c.finish(res)
		return res
	}
	if !c.inFlight.CompareAndSwap(false, true) {
		return ResultBusy
	}
	defer c.inFlight.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.ctx, cancel)
	defer stop()

	res := c.session(ctx)
	c.finish(res)
	return res
}

// Wait blocks until background sessions started by Trigger have ended
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Stop abandons any in-flight session. Markers already written stay.
func (c *Coordinator) Stop() {
	c.cancel()
	c.wg.Wait()
}

// Status returns the current coordinator state
func (c *Coordinator) Status() models.UploadStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.status
	s.InFlight = c.inFlight.Load()
	return s
}

func (c *Coordinator) precheck() string {
	if !c.opts.Enabled {
		return ResultDisabled
	}
	if c.net.Metered() && !c.opts.AllowMetered {
		return ResultMetered
	}
	return ""
}

func (c *Coordinator) finish(result string) {
	metrics.IncUploadSession(result)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.LastResult = result
	c.status.LastRun = c.now()
	c.status.SessionID = ""
	c.status.CurrentEventID = 0
	c.status.Pending = 0
}

func (c *Coordinator) setSession(id string, eventID int64, pending int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.SessionID = id
	c.status.CurrentEventID = eventID
	c.status.Pending = pending
}

// session runs select -> create event -> gather window -> upload loop
func (c *Coordinator) session(ctx context.Context) string {
	if !c.net.Connected(ctx) {
		c.health.Update(monitor.ComponentRemote, errors.New("network unreachable"))
		return ResultOffline
	}
	if !c.store.Available(ctx) {
		c.health.Update(monitor.ComponentStorage, errors.New("store unavailable"))
		return ResultNoStorage
	}

	sessionID := uuid.NewString()
	log := c.logger.With(zap.String("session_id", sessionID))

	seed, res := c.selectSeed(ctx, log, sessionID)
	if res != "" {
		return res
	}

	eventType, err := remote.EventType(seed.Status)
	if err != nil {
		log.Error("cannot map datapoint to event type", zap.Int64("datapoint_id", seed.ID), zap.Error(err))
		return ResultAborted
	}

	ev, err := c.api.CreateEvent(ctx, eventType, seed.DataTime, remote.EventDescription)
	if err != nil {
		if ctx.Err() != nil {
			return ResultInterrupted
		}
		c.health.Update(monitor.ComponentRemote, err)
		log.Warn("create event failed", zap.Int64("datapoint_id", seed.ID), zap.Error(err))
		return ResultAborted
	}
	c.health.Update(monitor.ComponentRemote, nil)
	log = log.With(zap.Int64("event_id", ev.ID))
	log.Info("remote event created", zap.Int64("datapoint_id", seed.ID), zap.String("status", seed.Status.Phrase()))
	_ = c.store.InsertLog(database.LogLevelInfo, database.LogCategoryUpload, "uploader",
		fmt.Sprintf("created remote event %d", ev.ID),
		fmt.Sprintf("session=%s datapoint=%d status=%s", sessionID, seed.ID, seed.Status.Phrase()))

	pending, err := c.gatherWindow(ctx, seed, ev)
	if err != nil {
		c.health.Update(monitor.ComponentStorage, err)
		log.Warn("gather window failed", zap.Error(err))
		return ResultAborted
	}
	c.setSession(sessionID, ev.ID, len(pending))

	uploaded := 0
	for i, dp := range pending {
		if ctx.Err() != nil {
			log.Info("upload session abandoned", zap.Int("uploaded", uploaded))
			return ResultInterrupted
		}

		if !json.Valid([]byte(dp.DataJSON)) {
			if err := c.dropMalformed(ctx, log, sessionID, dp); err != nil {
				if ctx.Err() != nil {
					return ResultInterrupted
				}
				return ResultAborted
			}
			c.setSession(sessionID, ev.ID, len(pending)-i-1)
			continue
		}

		if err := c.api.CreateDatapoint(ctx, dp, ev.ID); err != nil {
			if ctx.Err() != nil {
				return ResultInterrupted
			}
			c.health.Update(monitor.ComponentRemote, err)
			log.Warn("create datapoint failed", zap.Int64("datapoint_id", dp.ID), zap.Error(err))
			return ResultAborted
		}
		if err := c.store.MarkUploaded(ctx, dp.ID, ev.ID); err != nil {
			c.health.Update(monitor.ComponentStorage, err)
			log.Warn("mark uploaded failed", zap.Int64("datapoint_id", dp.ID), zap.Error(err))
			return ResultAborted
		}
		uploaded++
		metrics.IncDatapointUploaded()
		c.setSession(sessionID, ev.ID, len(pending)-i-1)
	}

	log.Info("upload session complete", zap.Int("uploaded", uploaded), zap.Int("window", len(pending)))
	return ResultUploaded
}

// selectSeed returns the datapoint that opens the next remote event, or a
// non-empty result when the session should end. Seeds with a malformed
// payload are marked unsendable and selection moves on, so a bad row can
// never open an event.
func (c *Coordinator) selectSeed(ctx context.Context, log *zap.Logger, sessionID string) (models.Datapoint, string) {
	cutoff := c.now().Add(-c.opts.EventDuration)
	for {
		dp, ok, err := c.store.NextEventToUpload(ctx, cutoff)
		if err != nil {
			if ctx.Err() != nil {
				return models.Datapoint{}, ResultInterrupted
			}
			c.health.Update(monitor.ComponentStorage, err)
			log.Warn("event selection failed", zap.Error(err))
			return models.Datapoint{}, ResultAborted
		}
		if !ok {
			return models.Datapoint{}, ResultIdle
		}
		if json.Valid([]byte(dp.DataJSON)) {
			return dp, ""
		}
		if err := c.dropMalformed(ctx, log, sessionID, dp); err != nil {
			if ctx.Err() != nil {
				return models.Datapoint{}, ResultInterrupted
			}
			return models.Datapoint{}, ResultAborted
		}
	}
}

// dropMalformed records a data-quality error and stamps the row so it is
// not picked up again.
func (c *Coordinator) dropMalformed(ctx context.Context, log *zap.Logger, sessionID string, dp models.Datapoint) error {
	metrics.IncDatapointDropped()
	log.Warn("skipping malformed datapoint", zap.Int64("datapoint_id", dp.ID), zap.String("status", dp.Status.Phrase()))
	_ = c.store.InsertLog(database.LogLevelWarn, database.LogCategoryUpload, "uploader",
		"skipped malformed datapoint", fmt.Sprintf("session=%s datapoint=%d status=%s", sessionID, dp.ID, dp.Status.Phrase()))

	if err := c.store.MarkUploaded(ctx, dp.ID, database.UnsendableEventID); err != nil {
		c.health.Update(monitor.ComponentStorage, err)
		log.Warn("mark unsendable failed", zap.Int64("datapoint_id", dp.ID), zap.Error(err))
		return err
	}
	return nil
}

// gatherWindow returns the datapoints within +/- eventDuration/2 of the
// event time, oldest first. The seed datapoint is always included so a
// skewed remote clock cannot leave it unsent forever.
func (c *Coordinator) gatherWindow(ctx context.Context, seed models.Datapoint, ev remote.Event) ([]models.Datapoint, error) {
	half := c.opts.EventDuration / 2
	rows, err := c.store.QueryByDateRange(ctx, ev.DataTime.Add(-half), ev.DataTime.Add(half), database.OldestFirst, 0)
	if err != nil {
		return nil, err
	}

	for _, dp := range rows {
		if dp.ID == seed.ID {
			return rows, nil
		}
	}
	rows = append(rows, seed)
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].DataTime.Equal(rows[j].DataTime) {
			return rows[i].ID < rows[j].ID
		}
		return rows[i].DataTime.Before(rows[j].DataTime)
	})
	return rows, nil
}
