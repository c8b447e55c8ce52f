// Package detector holds the alarm state machine that classifies each
// analysis period as OK, WARNING, ALARM, FALL, MANUAL_ALARM or MUTE.
package detector

import (
	"sync"

	"gonum.org/v1/gonum/floats"

	"osdbridge/app/internal/models"
)

// Outcome is the result of one Step
type Outcome struct {
	Status     models.AlarmStatus
	Result     models.AnalysisResult
	AccelState models.AlarmStatus
	AlarmCount int
	HRAverage  float64
}

// Detector is the per-process alarm state. It is safe for concurrent
// use but Step is expected to be called by one analysis pass at a time.
type Detector struct {
	mu       sync.Mutex
	settings models.Settings

	// accelerometer channel
	accelState models.AlarmStatus
	alarmCount int

	// heart rate channels
	hrAlarm     bool
	hrFault     bool
	hrRing      *hrRing
	hrAverage   float64
	hrRateCount int
	hrRateAlarm bool

	fallLatched bool
	manual      bool
	muted       bool
}

// New creates a detector in the OK state
func New(s models.Settings) *Detector {
	return &Detector{
		settings: s,
		hrRing:   newHRRing(s.HRRateWindow),
	}
}

// UpdateSettings replaces the thresholds. Hysteresis counters are kept;
// the heart rate history is reset only if its window size changed.
func (d *Detector) UpdateSettings(s models.Settings) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.settings = s
	if d.hrRing.size() != s.HRRateWindow {
		d.hrRing = newHRRing(s.HRRateWindow)
	}
}

// Step evaluates one analysis period of length ts seconds
func (d *Detector) Step(w models.SampleWindow, res models.AnalysisResult, ts int, sampleFreq float64) Outcome {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.muted = w.Mute
	res.AccelAlarm = d.alarmCheck(res, ts)
	d.hrCheck(w.HR)
	d.hrRateCheck(w.HR)
	d.fallCheck(w.Samples, sampleFreq)
	if d.muted {
		d.hrAlarm = false
		d.fallLatched = false
	}

	res.HRAlarm = d.hrAlarm
	res.HRFault = d.hrFault
	res.HRRateAlarm = d.hrRateAlarm
	res.FallAlarm = d.fallLatched

	return Outcome{
		Status:     d.composite(),
		Result:     res,
		AccelState: d.accelState,
		AlarmCount: d.alarmCount,
		HRAverage:  d.hrAverage,
	}
}

// alarmCheck runs the accelerometer hysteresis and reports whether the
// current period breaches both thresholds.
func (d *Detector) alarmCheck(res models.AnalysisResult, ts int) bool {
	s := d.settings
	inAlarm := float64(res.RoiPower) > s.AlarmThresh && res.RoiRatio > s.AlarmRatioThresh

	if inAlarm {
		d.alarmCount += ts
		if d.alarmCount > s.AlarmTime {
			d.accelState = models.StatusAlarm
		} else if d.alarmCount > s.WarnTime {
			d.accelState = models.StatusWarning
		}
		return true
	}

	if d.accelState == models.StatusAlarm {
		// one period of warning before OK
		d.accelState = models.StatusWarning
		d.alarmCount = s.WarnTime + 1
	} else {
		d.accelState = models.StatusOK
		d.alarmCount = 0
	}
	return false
}

func (d *Detector) hrCheck(hr float64) {
	s := d.settings
	if !s.HRAlarmActive {
		d.hrAlarm, d.hrFault = false, false
		return
	}
	switch {
	case hr < 0:
		d.hrAlarm = s.HRNullAsAlarm
		d.hrFault = !s.HRNullAsAlarm
	case hr > s.HRThreshMax || hr < s.HRThreshMin:
		d.hrAlarm, d.hrFault = true, false
	default:
		d.hrAlarm, d.hrFault = false, false
	}
}

func (d *Detector) hrRateCheck(hr float64) {
	s := d.settings
	if !s.HRRateAlarmActive {
		d.hrRateAlarm = false
		return
	}
	if hr < 0 {
		d.hrRateAlarm = false
		return
	}

	d.hrAverage = d.hrRing.add(hr)
	if hr-d.hrAverage > s.HRRateThresh {
		d.hrRateCount++
	} else if d.hrRateCount > 0 {
		d.hrRateCount--
	}
	d.hrRateAlarm = d.hrRateCount >= s.HRRateDuration
}

// fallCheck slides a window over the raw samples and latches on the
// first window holding both a value below fallThreshMin and one above
// fallThreshMax. The latch is only cleared by Accept or mute.
func (d *Detector) fallCheck(samples []int, sampleFreq float64) {
	s := d.settings
	if !s.FallActive || d.muted {
		return
	}
	winSamp := int(float64(s.FallWindow) * sampleFreq / 1000)
	if winSamp <= 0 {
		return
	}

	acc := make([]float64, len(samples))
	for i, v := range samples {
		acc[i] = float64(v)
	}
	for i := 0; i < len(acc)-winSamp; i++ {
		win := acc[i : i+winSamp]
		if floats.Min(win) < s.FallThreshMin && floats.Max(win) > s.FallThreshMax {
			d.fallLatched = true
			return
		}
	}
}

func (d *Detector) composite() models.AlarmStatus {
	switch {
	case d.muted:
		return models.StatusMute
	case d.fallLatched:
		return models.StatusFall
	case d.manual:
		return models.StatusManualAlarm
	case d.accelState == models.StatusAlarm || d.hrAlarm || d.hrRateAlarm:
		return models.StatusAlarm
	}
	return d.accelState
}

// Accept clears latched alarms and resets the hysteresis counters
func (d *Detector) Accept() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fallLatched = false
	d.manual = false
	d.accelState = models.StatusOK
	d.alarmCount = 0
	d.hrRateCount = 0
	d.hrRateAlarm = false
}

// ManualAlarm raises a manual alarm that holds until Accept
func (d *Detector) ManualAlarm() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.manual = true
}

// ResetAlarmCount zeroes the accelerometer counter. Used when the watch
// app stops sending data.
func (d *Detector) ResetAlarmCount() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.alarmCount = 0
}

// Status returns the current composite status without stepping
func (d *Detector) Status() models.AlarmStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.composite()
}
