package datasource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"osdbridge/app/internal/analysis"
	"osdbridge/app/internal/database"
	"osdbridge/app/internal/detector"
	"osdbridge/app/internal/metrics"
	"osdbridge/app/internal/models"
	"osdbridge/app/internal/monitor"
)

var ErrAlreadyStarted = errors.New("data source already started")

// Store is where analysed periods are written
type Store interface {
	Append(ctx context.Context, dp models.Datapoint) (int64, error)
	InsertLog(level, category, source, message, details string) error
}

type Options struct {
	LogDataLocal bool
}

// watchMessage covers both the raw and settings messages
type watchMessage struct {
	DataType string   `json:"dataType"`
	Data     []int    `json:"data"`
	HR       *float64 `json:"HR"`
	Mute     int      `json:"Mute"`

	AnalysisPeriod int     `json:"analysisPeriod"`
	SampleFreq     float64 `json:"sampleFreq"`
	Battery        int     `json:"battery"`
	WatchPartNo    string  `json:"watchPartNo"`
	WatchFwVersion string  `json:"watchFwVersion"`
	SdVersion      string  `json:"sdVersion"`
	SdName         string  `json:"sdName"`
}

// Garmin is the network-passive data source: the watch app posts its
// data and settings, and this side does all the analysis.
type Garmin struct {
	detector *detector.Detector
	store    Store
	health   *monitor.Health
	opts     Options
	logger   *zap.Logger
	now      func() time.Time

	// held for the duration of one analysis pass
	analysing sync.Mutex

	mu           sync.Mutex
	settings     models.Settings
	reading      models.Reading
	haveSettings bool
	lastData     time.Time
	startedAt    time.Time
	faulted      bool

	reset   chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

func NewGarmin(det *detector.Detector, store Store, s models.Settings, opts Options, health *monitor.Health, logger *zap.Logger) *Garmin {
	if logger == nil {
		logger = zap.NewNop()
	}
	if health == nil {
		health = monitor.NewHealth()
	}
	g := &Garmin{
		detector: det,
		store:    store,
		health:   health,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
		settings: s,
		reset:    make(chan struct{}, 1),
	}
	g.reading = models.Reading{
		AlarmState:  models.StatusOK,
		AlarmPhrase: models.StatusOK.Phrase(),
		HR:          -1,
	}
	g.applySettingsLocked()
	return g
}

// Start runs the watch status and settings refresh timers until Stop or
// ctx is cancelled.
func (g *Garmin) Start(ctx context.Context) error {
	g.mu.Lock()
	if g.started {
		g.mu.Unlock()
		return ErrAlreadyStarted
	}
	g.started = true
	g.startedAt = g.now()
	ctx, g.cancel = context.WithCancel(ctx)
	g.mu.Unlock()

	g.wg.Add(1)
	go g.timerLoop(ctx)
	g.logger.Info("garmin data source started")
	return nil
}

func (g *Garmin) Stop() {
	g.mu.Lock()
	cancel := g.cancel
	g.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	g.wg.Wait()

	g.mu.Lock()
	g.started = false
	g.cancel = nil
	g.mu.Unlock()
}

// UpdatePrefs applies new detector settings
func (g *Garmin) UpdatePrefs(s models.Settings) {
	g.mu.Lock()
	g.settings = s
	g.applySettingsLocked()
	g.mu.Unlock()

	g.detector.UpdateSettings(s)
	select {
	case g.reset <- struct{}{}:
	default:
	}
	g.logger.Info("detector settings updated")
}

func (g *Garmin) applySettingsLocked() {
	s := g.settings
	g.reading.AlarmThresh = s.AlarmThresh
	g.reading.AlarmRatioThresh = s.AlarmRatioThresh
	g.reading.AlarmFreqMin = s.AlarmFreqMin
	g.reading.AlarmFreqMax = s.AlarmFreqMax
	g.reading.HRAlarmActive = s.HRAlarmActive
	g.reading.FallActive = s.FallActive
}

func (g *Garmin) CurrentReading() models.Reading {
	g.mu.Lock()
	defer g.mu.Unlock()
	r := g.reading
	r.SimpleSpec = append([]int64(nil), g.reading.SimpleSpec...)
	r.RawData = append([]int(nil), g.reading.RawData...)
	return r
}

// UpdateFromJSON handles one message from the watch and returns the reply
// to send back to it.
func (g *Garmin) UpdateFromJSON(ctx context.Context, body []byte) string {
	var msg watchMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		g.logger.Warn("unparseable watch message", zap.Error(err))
		_ = g.store.InsertLog(database.LogLevelWarn, database.LogCategoryWatch, "garmin",
			"unparseable watch message", err.Error())
		return ReplyError
	}

	switch msg.DataType {
	case "raw":
		if err := g.handleRaw(ctx, msg); err != nil {
			return ReplyError
		}
		g.mu.Lock()
		have := g.haveSettings
		g.mu.Unlock()
		if !have {
			return ReplySendSettings
		}
		return ReplyOK
	case "settings":
		g.handleSettings(msg)
		return ReplyOK
	}

	g.logger.Warn("unknown watch data type", zap.String("data_type", msg.DataType))
	return ReplyError
}

func (g *Garmin) handleSettings(msg watchMessage) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.haveSettings = true
	g.reading.HaveSettings = true
	g.reading.AnalysisPeriod = msg.AnalysisPeriod
	g.reading.SampleFreq = msg.SampleFreq
	g.reading.BatteryPc = msg.Battery
	g.reading.WatchPartNo = msg.WatchPartNo
	g.reading.WatchFwVersion = msg.WatchFwVersion
	g.reading.WatchSdVersion = msg.SdVersion
	g.reading.WatchSdName = msg.SdName
	g.logger.Debug("watch settings received",
		zap.Int("analysis_period", msg.AnalysisPeriod),
		zap.Float64("sample_freq", msg.SampleFreq),
		zap.Int("battery", msg.Battery))
}

func (g *Garmin) handleRaw(ctx context.Context, msg watchMessage) error {
	now := g.now()
	g.mu.Lock()
	g.lastData = now
	g.reading.HaveData = true
	g.reading.WatchAppRunning = true
	recovered := g.faulted
	g.faulted = false
	g.reading.Fault = false
	g.mu.Unlock()
	if recovered {
		g.logger.Info("watch data resumed")
		_ = g.store.InsertLog(database.LogLevelInfo, database.LogCategoryWatch, "garmin", "watch data resumed", "")
	}
	g.health.Update(monitor.ComponentWatch, nil)

	if !g.analysing.TryLock() {
		metrics.IncAnalysisSkipped()
		g.logger.Debug("analysis still running, window dropped")
		return nil
	}
	defer g.analysing.Unlock()

	hr := -1.0
	if msg.HR != nil {
		hr = *msg.HR
	}
	return g.processWindow(ctx, now, models.SampleWindow{Samples: msg.Data, HR: hr, Mute: msg.Mute != 0})
}

// processWindow runs one analysis period. Callers hold g.analysing.
func (g *Garmin) processWindow(ctx context.Context, now time.Time, w models.SampleWindow) error {
	g.mu.Lock()
	s := g.settings
	fs := s.SampleFreq
	if g.reading.SampleFreq > 0 {
		fs = g.reading.SampleFreq
	}
	ts := s.AnalysisPeriod
	if g.reading.AnalysisPeriod > 0 {
		ts = g.reading.AnalysisPeriod
	}
	g.mu.Unlock()

	start := time.Now()
	res, err := analysis.Analyze(w.Samples, analysis.Params{
		SampleFreq:   fs,
		AlarmFreqMin: s.AlarmFreqMin,
		AlarmFreqMax: s.AlarmFreqMax,
		FreqCutoff:   s.FreqCutoff,
	})
	metrics.ObserveAnalysis(time.Since(start))
	if err != nil {
		g.logger.Warn("analysis failed", zap.Int("samples", len(w.Samples)), zap.Error(err))
		_ = g.store.InsertLog(database.LogLevelWarn, database.LogCategoryAnalysis, "garmin",
			"analysis failed", err.Error())
		return err
	}

	out := g.detector.Step(w, res, ts, fs)
	metrics.SetAlarmState(int(out.Status))

	g.mu.Lock()
	r := &g.reading
	r.DataTime = now
	r.AlarmState = out.Status
	r.AlarmPhrase = out.Status.Phrase()
	r.SpecPower = out.Result.SpecPower
	r.RoiPower = out.Result.RoiPower
	r.RoiRatio = out.Result.RoiRatio
	r.SimpleSpec = out.Result.SimpleSpec
	r.HR = w.HR
	r.HRAverage = out.HRAverage
	r.HRAlarmStanding = out.Result.HRAlarm
	r.HRFaultStanding = out.Result.HRFault
	r.HRRateAlarmStanding = out.Result.HRRateAlarm
	r.FallAlarmStanding = out.Result.FallAlarm
	r.RawData = w.Samples
	snapshot := *r
	g.mu.Unlock()

	if out.Status != models.StatusOK {
		g.logger.Info("alarm state",
			zap.String("state", out.Status.Phrase()),
			zap.Int64("roi_power", res.RoiPower),
			zap.Float64("roi_ratio", res.RoiRatio),
			zap.Int("alarm_count", out.AlarmCount))
	}

	if g.opts.LogDataLocal {
		g.record(ctx, snapshot)
	}
	return nil
}

// record appends one datapoint. A failed write drops the datapoint.
func (g *Garmin) record(ctx context.Context, r models.Reading) {
	payload, err := json.Marshal(r)
	if err != nil {
		metrics.IncDatapointWritten(metrics.ResultDropped)
		g.logger.Error("marshal reading", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	_, err = g.store.Append(ctx, models.Datapoint{
		DataTime: r.DataTime,
		Status:   r.AlarmState,
		DataJSON: string(payload),
	})
	if err != nil {
		metrics.IncDatapointWritten(metrics.ResultError)
		g.health.Update(monitor.ComponentStorage, err)
		return
	}
	metrics.IncDatapointWritten(metrics.ResultOK)
	g.health.Update(monitor.ComponentStorage, nil)
}

// AcceptAlarm clears latched alarms
func (g *Garmin) AcceptAlarm() {
	g.detector.Accept()
	g.refreshStatus()
	g.logger.Info("alarm accepted")
	_ = g.store.InsertLog(database.LogLevelInfo, database.LogCategoryAnalysis, "garmin", "alarm accepted", "")
}

// ManualAlarm raises a manual alarm that holds until accepted
func (g *Garmin) ManualAlarm() {
	g.detector.ManualAlarm()
	g.refreshStatus()
	g.logger.Warn("manual alarm raised")
	_ = g.store.InsertLog(database.LogLevelWarn, database.LogCategoryAnalysis, "garmin", "manual alarm raised", "")
}

func (g *Garmin) refreshStatus() {
	status := g.detector.Status()
	metrics.SetAlarmState(int(status))
	g.mu.Lock()
	g.reading.AlarmState = status
	g.reading.AlarmPhrase = status.Phrase()
	g.mu.Unlock()
}

func (g *Garmin) periods() (status, settings time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	status = time.Duration(g.settings.DataUpdatePeriod) * time.Second
	settings = time.Duration(g.settings.SettingsPeriod) * time.Second
	if status <= 0 {
		status = 5 * time.Second
	}
	if settings <= 0 {
		settings = 60 * time.Second
	}
	return status, settings
}

func (g *Garmin) timerLoop(ctx context.Context) {
	defer g.wg.Done()

	statusEvery, settingsEvery := g.periods()
	statusTicker := time.NewTicker(statusEvery)
	settingsTicker := time.NewTicker(settingsEvery)
	defer statusTicker.Stop()
	defer settingsTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			g.logger.Info("garmin data source stopped")
			return
		case <-g.reset:
			statusEvery, settingsEvery = g.periods()
			statusTicker.Reset(statusEvery)
			settingsTicker.Reset(settingsEvery)
		case <-statusTicker.C:
			g.checkStatus(g.now())
		case <-settingsTicker.C:
			g.clearSettings()
		}
	}
}

// clearSettings makes the next raw reply ask the watch for its settings
func (g *Garmin) clearSettings() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.haveSettings = false
	g.reading.HaveSettings = false
}

// checkStatus flags the watch app as stopped, then faulty, as the gap
// since its last data grows.
func (g *Garmin) checkStatus(now time.Time) {
	g.mu.Lock()
	s := g.settings
	last := g.lastData
	if last.IsZero() {
		last = g.startedAt
	}
	gap := now.Sub(last)
	restartAfter := time.Duration(s.DataUpdatePeriod+s.AppRestartTimeout) * time.Second
	faultAfter := time.Duration(s.DataUpdatePeriod+s.FaultTimerPeriod) * time.Second

	stopped := gap > restartAfter
	newFault := false
	if stopped {
		g.reading.WatchAppRunning = false
	}
	if gap > faultAfter {
		newFault = !g.faulted
		g.faulted = true
		g.reading.Fault = true
		g.reading.RoiPower = -1
		g.reading.SpecPower = -1
	}
	g.mu.Unlock()

	if stopped {
		g.detector.ResetAlarmCount()
	}
	if newFault {
		err := fmt.Errorf("no data from watch for %s", gap.Truncate(time.Second))
		g.health.Update(monitor.ComponentWatch, err)
		g.logger.Warn("watch fault", zap.Duration("gap", gap))
		_ = g.store.InsertLog(database.LogLevelWarn, database.LogCategoryWatch, "garmin", "watch fault", err.Error())
	}
}
