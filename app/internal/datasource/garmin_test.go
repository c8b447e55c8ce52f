package datasource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"osdbridge/app/internal/config"
	"osdbridge/app/internal/detector"
	"osdbridge/app/internal/models"
	"osdbridge/app/internal/monitor"
)

type recStore struct {
	mu   sync.Mutex
	dps  []models.Datapoint
	logs []string
	err  error
}

func (s *recStore) Append(ctx context.Context, dp models.Datapoint) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	dp.ID = int64(len(s.dps) + 1)
	s.dps = append(s.dps, dp)
	return dp.ID, nil
}

func (s *recStore) InsertLog(level, category, source, message, details string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, message)
	return nil
}

func (s *recStore) statuses() []models.AlarmStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.AlarmStatus, len(s.dps))
	for i, dp := range s.dps {
		out[i] = dp.Status
	}
	return out
}

func tone(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = int(1000 + 1000*math.Sin(2*math.Pi*5*float64(i)/25))
	}
	return out
}

func flat(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = 1000
	}
	return out
}

func rawMsg(t *testing.T, samples []int, hr interface{}) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]interface{}{
		"dataType": "raw",
		"data":     samples,
		"HR":       hr,
		"Mute":     0,
	})
	if err != nil {
		t.Fatal(err)
	}
	return b
}

var settingsMsg = []byte(`{"dataType":"settings","analysisPeriod":5,"sampleFreq":25,"battery":87,"watchPartNo":"006-B3076-00","watchFwVersion":"1.2","sdVersion":"3.1","sdName":"Garmin"}`)

func newTestGarmin(store Store, opts Options) (*Garmin, *monitor.Health) {
	s := config.DefaultSettings()
	health := monitor.NewHealth()
	return NewGarmin(detector.New(s), store, s, opts, health, nil), health
}

func TestRawBeforeSettingsAsksForSettings(t *testing.T) {
	store := &recStore{}
	g, _ := newTestGarmin(store, Options{LogDataLocal: true})

	if got := g.UpdateFromJSON(context.Background(), rawMsg(t, flat(125), 70)); got != ReplySendSettings {
		t.Fatalf("reply = %q, want %q", got, ReplySendSettings)
	}
	if got := g.UpdateFromJSON(context.Background(), settingsMsg); got != ReplyOK {
		t.Fatalf("settings reply = %q, want OK", got)
	}
	if got := g.UpdateFromJSON(context.Background(), rawMsg(t, flat(125), 70)); got != ReplyOK {
		t.Fatalf("reply = %q, want OK", got)
	}

	r := g.CurrentReading()
	if !r.HaveSettings || r.BatteryPc != 87 || r.WatchSdName != "Garmin" {
		t.Errorf("watch settings not applied: %+v", r)
	}
	if !r.HaveData || !r.WatchAppRunning {
		t.Error("expected haveData and watchAppRunning")
	}
	if len(store.dps) != 2 {
		t.Fatalf("appended %d datapoints, want 2", len(store.dps))
	}

	var stored models.Reading
	if err := json.Unmarshal([]byte(store.dps[0].DataJSON), &stored); err != nil {
		t.Fatalf("dataJSON is not a reading: %v", err)
	}
	if stored.AlarmPhrase != "OK" {
		t.Errorf("stored phrase = %q, want OK", stored.AlarmPhrase)
	}
}

func TestSustainedToneEscalates(t *testing.T) {
	store := &recStore{}
	g, _ := newTestGarmin(store, Options{LogDataLocal: true})
	g.UpdateFromJSON(context.Background(), settingsMsg)

	// 5 s periods: count 5 (not above warnTime), 10 (warning), 15 (alarm)
	for i := 0; i < 3; i++ {
		if got := g.UpdateFromJSON(context.Background(), rawMsg(t, tone(125), nil)); got != ReplyOK {
			t.Fatalf("period %d reply = %q", i+1, got)
		}
	}
	want := []models.AlarmStatus{models.StatusOK, models.StatusWarning, models.StatusAlarm}
	got := store.statuses()
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("statuses = %v, want %v", got, want)
	}

	r := g.CurrentReading()
	if r.AlarmPhrase != "ALARM" {
		t.Errorf("phrase = %q, want ALARM", r.AlarmPhrase)
	}
	if r.HR != -1 {
		t.Errorf("HR = %v, want -1 for null heart rate", r.HR)
	}
	if r.RoiPower <= 0 || r.RoiRatio <= 57 {
		t.Errorf("unexpected features roi=%d ratio=%v", r.RoiPower, r.RoiRatio)
	}

	g.AcceptAlarm()
	if st := g.CurrentReading().AlarmState; st != models.StatusOK {
		t.Errorf("state after accept = %v, want OK", st)
	}
}

func TestBadMessagesReplyError(t *testing.T) {
	store := &recStore{}
	g, _ := newTestGarmin(store, Options{LogDataLocal: true})

	cases := map[string][]byte{
		"not json":     []byte(`{"dataType":`),
		"unknown type": []byte(`{"dataType":"telemetry"}`),
		"empty window": rawMsg(t, []int{}, 60),
		"float data":   []byte(`{"dataType":"raw","data":[1.5,2.5]}`),
	}
	for name, body := range cases {
		if got := g.UpdateFromJSON(context.Background(), body); got != ReplyError {
			t.Errorf("%s: reply = %q, want ERROR", name, got)
		}
	}
	if len(store.dps) != 0 {
		t.Errorf("appended %d datapoints for bad messages", len(store.dps))
	}
}

func TestOverlappingWindowIsDropped(t *testing.T) {
	store := &recStore{}
	g, _ := newTestGarmin(store, Options{LogDataLocal: true})

	g.analysing.Lock()
	reply := g.UpdateFromJSON(context.Background(), rawMsg(t, flat(125), 60))
	g.analysing.Unlock()

	if reply == ReplyError {
		t.Fatal("dropped window should not be reported as an error")
	}
	if len(store.dps) != 0 {
		t.Fatal("dropped window was recorded")
	}
}

func TestLocalLoggingDisabled(t *testing.T) {
	store := &recStore{}
	g, _ := newTestGarmin(store, Options{LogDataLocal: false})
	g.UpdateFromJSON(context.Background(), rawMsg(t, flat(125), 60))
	if len(store.dps) != 0 {
		t.Fatal("datapoint written with local logging disabled")
	}
}

func TestAppendFailureIsCountedNotFatal(t *testing.T) {
	store := &recStore{err: errors.New("disk I/O error")}
	g, health := newTestGarmin(store, Options{LogDataLocal: true})

	if got := g.UpdateFromJSON(context.Background(), rawMsg(t, flat(125), 60)); got == ReplyError {
		t.Fatalf("reply = %q, storage failure must not fail the watch", got)
	}
	if health.Failures(monitor.ComponentStorage) != 1 {
		t.Errorf("storage failures = %d, want 1", health.Failures(monitor.ComponentStorage))
	}
}

func TestCheckStatusStoppedThenFault(t *testing.T) {
	store := &recStore{}
	g, health := newTestGarmin(store, Options{LogDataLocal: true})
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return t0 }
	g.UpdateFromJSON(context.Background(), rawMsg(t, flat(125), 60))

	// dataUpdatePeriod 5 + appRestartTimeout 10
	g.checkStatus(t0.Add(16 * time.Second))
	r := g.CurrentReading()
	if r.WatchAppRunning || r.Fault {
		t.Fatalf("after 16s: running=%v fault=%v, want false/false", r.WatchAppRunning, r.Fault)
	}

	// dataUpdatePeriod 5 + faultTimerPeriod 30
	g.checkStatus(t0.Add(36 * time.Second))
	r = g.CurrentReading()
	if !r.Fault || r.RoiPower != -1 || r.SpecPower != -1 {
		t.Fatalf("after 36s: fault=%v roi=%d spec=%d", r.Fault, r.RoiPower, r.SpecPower)
	}
	g.checkStatus(t0.Add(41 * time.Second))
	if n := health.Failures(monitor.ComponentWatch); n != 1 {
		t.Errorf("watch failures = %d, want 1 (fault reported once)", n)
	}

	g.now = func() time.Time { return t0.Add(45 * time.Second) }
	g.UpdateFromJSON(context.Background(), rawMsg(t, flat(125), 60))
	r = g.CurrentReading()
	if r.Fault || !r.WatchAppRunning {
		t.Errorf("fault not cleared by fresh data: %+v", r)
	}
	if health.Failures(monitor.ComponentWatch) != 0 {
		t.Error("watch health not reset by fresh data")
	}
	found := false
	for _, l := range store.logs {
		if strings.Contains(l, "resumed") {
			found = true
		}
	}
	if !found {
		t.Error("expected a resumed entry in the operator log")
	}
}

func TestClearSettingsRequestsResend(t *testing.T) {
	g, _ := newTestGarmin(&recStore{}, Options{})
	g.UpdateFromJSON(context.Background(), settingsMsg)
	g.clearSettings()
	if got := g.UpdateFromJSON(context.Background(), rawMsg(t, flat(125), 60)); got != ReplySendSettings {
		t.Fatalf("reply = %q, want sendSettings", got)
	}
}

func TestManualAlarmHoldsUntilAccepted(t *testing.T) {
	store := &recStore{}
	g, _ := newTestGarmin(store, Options{LogDataLocal: true})

	g.ManualAlarm()
	if st := g.CurrentReading().AlarmState; st != models.StatusManualAlarm {
		t.Fatalf("state = %v, want MANUAL_ALARM", st)
	}
	g.UpdateFromJSON(context.Background(), rawMsg(t, flat(125), 60))
	if st := store.statuses(); len(st) != 1 || st[0] != models.StatusManualAlarm {
		t.Fatalf("recorded statuses = %v, want [5]", st)
	}
	g.AcceptAlarm()
	if st := g.CurrentReading().AlarmState; st != models.StatusOK {
		t.Fatalf("state after accept = %v, want OK", st)
	}
}

func TestUpdatePrefsRefreshesThresholds(t *testing.T) {
	g, _ := newTestGarmin(&recStore{}, Options{})
	s := config.DefaultSettings()
	s.AlarmThresh = 250
	g.UpdatePrefs(s)
	if got := g.CurrentReading().AlarmThresh; got != 250 {
		t.Fatalf("AlarmThresh = %v, want 250", got)
	}
}

func TestStartStop(t *testing.T) {
	g, _ := newTestGarmin(&recStore{}, Options{})
	if err := g.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := g.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("second Start err = %v, want ErrAlreadyStarted", err)
	}
	g.Stop()
	g.Stop()
}

func TestStopThenRestart(t *testing.T) {
	g, _ := newTestGarmin(&recStore{}, Options{})
	g.Stop()
	for i := 0; i < 2; i++ {
		if err := g.Start(context.Background()); err != nil {
			t.Fatalf("Start #%d: %v", i+1, err)
		}
		g.Stop()
	}
	if err := g.Start(context.Background()); err != nil {
		t.Fatalf("Start after restart cycle: %v", err)
	}
	if err := g.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("double Start err = %v, want ErrAlreadyStarted", err)
	}
	g.Stop()
}
