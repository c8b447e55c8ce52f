package detector

import (
	"testing"

	"osdbridge/app/internal/models"
)

func testSettings() models.Settings {
	return models.Settings{
		AlarmThresh:      100,
		AlarmRatioThresh: 57,
		WarnTime:         3,
		AlarmTime:        10,
		HRThreshMin:      40,
		HRThreshMax:      150,
		HRRateWindow:     5,
		HRRateDuration:   3,
		HRRateThresh:     20,
		FallThreshMin:    200,
		FallThreshMax:    1200,
		FallWindow:       1000,
	}
}

var (
	breach = models.AnalysisResult{RoiPower: 319387, SpecPower: 31882, RoiRatio: 100.2}
	quiet  = models.AnalysisResult{RoiPower: 10, SpecPower: 31882, RoiRatio: 0.003}
	window = models.SampleWindow{HR: -1}
)

func TestStep_EscalatesWarningThenAlarm(t *testing.T) {
	d := New(testSettings())

	for period := 1; period <= 20; period++ {
		out := d.Step(window, breach, 1, 25)
		var want models.AlarmStatus
		switch {
		case period >= 11:
			want = models.StatusAlarm
		case period >= 4:
			want = models.StatusWarning
		default:
			want = models.StatusOK
		}
		if out.Status != want {
			t.Fatalf("period %d: status = %s, want %s", period, out.Status.Phrase(), want.Phrase())
		}
	}
}

func TestStep_ShortBreachNeverAlarms(t *testing.T) {
	d := New(testSettings())

	for period := 1; period <= 10; period++ {
		if out := d.Step(window, breach, 1, 25); out.Status == models.StatusAlarm {
			t.Fatalf("period %d: reached ALARM before alarmTime elapsed", period)
		}
	}
	out := d.Step(window, quiet, 1, 25)
	if out.Status != models.StatusOK {
		t.Errorf("status = %s after breach ended below alarmTime, want OK", out.Status.Phrase())
	}
}

func TestStep_RatioAloneDoesNotAlarm(t *testing.T) {
	d := New(testSettings())
	lowPower := models.AnalysisResult{RoiPower: 50, SpecPower: 5, RoiRatio: 100}

	for i := 0; i < 15; i++ {
		if out := d.Step(window, lowPower, 1, 25); out.Status != models.StatusOK {
			t.Fatalf("status = %s with roiPower below threshold", out.Status.Phrase())
		}
	}
}

func TestStep_DeescalatesThroughWarning(t *testing.T) {
	d := New(testSettings())
	for i := 0; i < 11; i++ {
		d.Step(window, breach, 1, 25)
	}
	if d.Status() != models.StatusAlarm {
		t.Fatalf("expected ALARM after 11 periods, got %s", d.Status().Phrase())
	}

	out := d.Step(window, quiet, 1, 25)
	if out.Status != models.StatusWarning {
		t.Fatalf("first quiet period: status = %s, want WARNING", out.Status.Phrase())
	}
	if out.AlarmCount != 4 {
		t.Errorf("alarmCount = %d, want warnTime+1 = 4", out.AlarmCount)
	}

	out = d.Step(window, quiet, 1, 25)
	if out.Status != models.StatusOK {
		t.Errorf("second quiet period: status = %s, want OK", out.Status.Phrase())
	}
	if out.AlarmCount != 0 {
		t.Errorf("alarmCount = %d, want 0", out.AlarmCount)
	}
}

func TestStep_PeriodLengthScalesCount(t *testing.T) {
	d := New(testSettings())
	// ts=5: count 5 -> WARNING, 10 -> still WARNING (not > 10), 15 -> ALARM
	want := []models.AlarmStatus{models.StatusWarning, models.StatusWarning, models.StatusAlarm}
	for i, w := range want {
		if out := d.Step(window, breach, 5, 25); out.Status != w {
			t.Errorf("step %d: status = %s, want %s", i+1, out.Status.Phrase(), w.Phrase())
		}
	}
}

func TestHRCheck(t *testing.T) {
	tests := []struct {
		name      string
		nullAlarm bool
		hr        float64
		alarm     bool
		fault     bool
	}{
		{"normal", false, 70, false, false},
		{"too high", false, 180, true, false},
		{"too low", false, 30, true, false},
		{"null as fault", false, -1, false, true},
		{"null as alarm", true, -1, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testSettings()
			s.HRAlarmActive = true
			s.HRNullAsAlarm = tt.nullAlarm
			d := New(s)

			out := d.Step(models.SampleWindow{HR: tt.hr}, quiet, 1, 25)
			if out.Result.HRAlarm != tt.alarm {
				t.Errorf("HRAlarm = %v, want %v", out.Result.HRAlarm, tt.alarm)
			}
			if out.Result.HRFault != tt.fault {
				t.Errorf("HRFault = %v, want %v", out.Result.HRFault, tt.fault)
			}
			if tt.alarm && out.Status != models.StatusAlarm {
				t.Errorf("composite status = %s, want ALARM", out.Status.Phrase())
			}
			if tt.fault && out.Status != models.StatusOK {
				t.Errorf("fault must not raise an alarm, got %s", out.Status.Phrase())
			}
		})
	}
}

func TestHRCheck_InactiveIgnoresHR(t *testing.T) {
	d := New(testSettings())
	out := d.Step(models.SampleWindow{HR: 250}, quiet, 1, 25)
	if out.Result.HRAlarm || out.Status != models.StatusOK {
		t.Errorf("HR alarm raised while inactive: %+v", out.Result)
	}
}

func TestHRRateCheck_CountsAndDecays(t *testing.T) {
	s := testSettings()
	s.HRRateAlarmActive = true
	s.HRRateWindow = 10
	s.HRRateDuration = 2
	s.HRRateThresh = 10
	d := New(s)

	// settle the average around 60
	for i := 0; i < 10; i++ {
		d.Step(models.SampleWindow{HR: 60}, quiet, 1, 25)
	}

	// sudden jump: 100 vs average (9*60+100)/10 = 64 -> count 1
	out := d.Step(models.SampleWindow{HR: 100}, quiet, 1, 25)
	if out.Result.HRRateAlarm {
		t.Fatal("rate alarm raised after a single period")
	}
	// still high: average 68 -> count 2 -> alarm
	out = d.Step(models.SampleWindow{HR: 100}, quiet, 1, 25)
	if !out.Result.HRRateAlarm {
		t.Fatal("rate alarm should be raised once count reaches duration")
	}
	if out.Status != models.StatusAlarm {
		t.Errorf("composite status = %s, want ALARM", out.Status.Phrase())
	}

	// back to baseline: count decays one step at a time
	out = d.Step(models.SampleWindow{HR: 60}, quiet, 1, 25)
	if out.Result.HRRateAlarm {
		t.Error("rate alarm should clear once count drops below duration")
	}
	for i := 0; i < 5; i++ {
		d.Step(models.SampleWindow{HR: 60}, quiet, 1, 25)
	}
	if d.hrRateCount != 0 {
		t.Errorf("hrRateCount = %d, want floor of 0", d.hrRateCount)
	}
}

func TestHRRateCheck_InvalidHRSkipsAverage(t *testing.T) {
	s := testSettings()
	s.HRRateAlarmActive = true
	d := New(s)

	d.Step(models.SampleWindow{HR: 80}, quiet, 1, 25)
	out := d.Step(models.SampleWindow{HR: -1}, quiet, 1, 25)
	if out.HRAverage != 80 {
		t.Errorf("HRAverage = %v, want 80 (invalid HR ignored)", out.HRAverage)
	}
	if out.Result.HRRateAlarm {
		t.Error("rate alarm should be false for invalid HR")
	}
}

func fallSamples() []int {
	// 50 samples at 25 Hz; a dip then spike inside one second
	s := make([]int, 50)
	for i := range s {
		s[i] = 1000
	}
	s[20] = 100
	s[25] = 1500
	return s
}

func TestFallCheck_LatchesUntilAccept(t *testing.T) {
	s := testSettings()
	s.FallActive = true
	d := New(s)

	out := d.Step(models.SampleWindow{Samples: fallSamples(), HR: -1}, quiet, 1, 25)
	if !out.Result.FallAlarm || out.Status != models.StatusFall {
		t.Fatalf("expected FALL, got status=%s fall=%v", out.Status.Phrase(), out.Result.FallAlarm)
	}

	calm := make([]int, 50)
	for i := 0; i < 5; i++ {
		out = d.Step(models.SampleWindow{Samples: calm, HR: -1}, quiet, 1, 25)
		if out.Status != models.StatusFall {
			t.Fatalf("fall latch lost on calm period %d", i)
		}
	}

	d.Accept()
	out = d.Step(models.SampleWindow{Samples: calm, HR: -1}, quiet, 1, 25)
	if out.Result.FallAlarm || out.Status != models.StatusOK {
		t.Errorf("after Accept: status=%s fall=%v, want OK/false", out.Status.Phrase(), out.Result.FallAlarm)
	}
}

func TestFallCheck_SpreadOutsideWindowIgnored(t *testing.T) {
	s := testSettings()
	s.FallActive = true
	s.FallWindow = 200 // 5 samples
	d := New(s)

	out := d.Step(models.SampleWindow{Samples: fallSamples(), HR: -1}, quiet, 1, 25)
	if out.Result.FallAlarm {
		t.Error("dip and spike 5 samples apart should not fit a 5-sample window")
	}
}

func TestFallCheck_Inactive(t *testing.T) {
	d := New(testSettings())
	out := d.Step(models.SampleWindow{Samples: fallSamples(), HR: -1}, quiet, 1, 25)
	if out.Result.FallAlarm {
		t.Error("fall detected while fall detection inactive")
	}
}

func TestMute_OverridesAndClearsFall(t *testing.T) {
	s := testSettings()
	s.FallActive = true
	s.HRAlarmActive = true
	d := New(s)

	d.Step(models.SampleWindow{Samples: fallSamples(), HR: -1}, quiet, 1, 25)
	if d.Status() != models.StatusFall {
		t.Fatalf("setup: expected FALL, got %s", d.Status().Phrase())
	}

	out := d.Step(models.SampleWindow{Samples: fallSamples(), HR: 200, Mute: true}, breach, 1, 25)
	if out.Status != models.StatusMute {
		t.Fatalf("status = %s, want MUTE", out.Status.Phrase())
	}
	if out.Result.FallAlarm || out.Result.HRAlarm {
		t.Errorf("mute should suppress fall and HR alarms: %+v", out.Result)
	}

	out = d.Step(models.SampleWindow{HR: 70}, quiet, 1, 25)
	if out.Status != models.StatusOK {
		t.Errorf("after unmute: status = %s, want OK", out.Status.Phrase())
	}
}

func TestManualAlarm_LatchesUntilAccept(t *testing.T) {
	d := New(testSettings())
	d.ManualAlarm()

	for i := 0; i < 3; i++ {
		if out := d.Step(window, quiet, 1, 25); out.Status != models.StatusManualAlarm {
			t.Fatalf("period %d: status = %s, want MANUAL ALARM", i, out.Status.Phrase())
		}
	}
	d.Accept()
	if out := d.Step(window, quiet, 1, 25); out.Status != models.StatusOK {
		t.Errorf("after Accept: status = %s, want OK", out.Status.Phrase())
	}
}

func TestAccept_ResetsAccelChannel(t *testing.T) {
	d := New(testSettings())
	for i := 0; i < 12; i++ {
		d.Step(window, breach, 1, 25)
	}
	d.Accept()
	if d.Status() != models.StatusOK {
		t.Fatalf("status after Accept = %s, want OK", d.Status().Phrase())
	}
	// counting restarts from zero
	out := d.Step(window, breach, 1, 25)
	if out.AlarmCount != 1 || out.Status != models.StatusOK {
		t.Errorf("after Accept: count=%d status=%s, want 1/OK", out.AlarmCount, out.Status.Phrase())
	}
}

func TestUpdateSettings_ResizesHRHistory(t *testing.T) {
	s := testSettings()
	d := New(s)
	s.HRRateWindow = 12
	d.UpdateSettings(s)
	if d.hrRing.size() != 12 {
		t.Errorf("ring size = %d, want 12", d.hrRing.size())
	}
}

func TestHRRing_Average(t *testing.T) {
	r := newHRRing(3)
	if got := r.add(60); got != 60 {
		t.Errorf("average = %v, want 60", got)
	}
	r.add(90)
	if got := r.add(90); got != 80 {
		t.Errorf("average = %v, want 80", got)
	}
	// oldest (60) drops out
	if got := r.add(120); got != 100 {
		t.Errorf("average = %v, want 100", got)
	}
}
