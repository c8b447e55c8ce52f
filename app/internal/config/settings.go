package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"osdbridge/app/internal/models"
)

// DefaultSettings returns the documented detector defaults
func DefaultSettings() models.Settings {
	return models.Settings{
		SampleFreq:     25,
		AnalysisPeriod: 5,
		FreqCutoff:     12,

		AlarmFreqMin:     3,
		AlarmFreqMax:     8,
		AlarmThresh:      100,
		AlarmRatioThresh: 57,
		WarnTime:         5,
		AlarmTime:        10,

		HRThreshMin: 40,
		HRThreshMax: 150,

		HRRateWindow:   30,
		HRRateDuration: 10,
		HRRateThresh:   20,

		FallThreshMin: 200,
		FallThreshMax: 1200,
		FallWindow:    1500,

		DataUpdatePeriod:  5,
		AppRestartTimeout: 10,
		FaultTimerPeriod:  30,
		SettingsPeriod:    60,
	}
}

// LoadSettings reads detector settings from a YAML file.
// A missing file yields the defaults. An unreadable or malformed file
// yields lastGood together with the error. Fields that parse but are out
// of range are reset to their defaults and named in the returned slice.
func LoadSettings(path string, lastGood models.Settings) (models.Settings, []string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return DefaultSettings(), nil, nil
		}
		return lastGood, nil, fmt.Errorf("read settings %s: %w", path, err)
	}

	s := DefaultSettings()
	if err := yaml.Unmarshal(data, &s); err != nil {
		return lastGood, nil, fmt.Errorf("parse settings %s: %w", path, err)
	}

	s, reverted := Sanitize(s)
	return s, reverted, nil
}

// Sanitize resets out-of-range fields to their defaults
func Sanitize(s models.Settings) (models.Settings, []string) {
	d := DefaultSettings()
	var reverted []string
	fix := func(bad bool, name string, apply func()) {
		if bad {
			apply()
			reverted = append(reverted, name)
		}
	}

	fix(s.SampleFreq <= 0, "sampleFreq", func() { s.SampleFreq = d.SampleFreq })
	fix(s.AnalysisPeriod <= 0, "analysisPeriod", func() { s.AnalysisPeriod = d.AnalysisPeriod })
	fix(s.FreqCutoff <= 0, "freqCutoff", func() { s.FreqCutoff = d.FreqCutoff })
	fix(s.AlarmFreqMin < 0 || s.AlarmFreqMax <= s.AlarmFreqMin, "alarmFreqMin/alarmFreqMax", func() {
		s.AlarmFreqMin, s.AlarmFreqMax = d.AlarmFreqMin, d.AlarmFreqMax
	})
	fix(s.AlarmThresh < 0, "alarmThresh", func() { s.AlarmThresh = d.AlarmThresh })
	fix(s.AlarmRatioThresh < 0, "alarmRatioThresh", func() { s.AlarmRatioThresh = d.AlarmRatioThresh })
	fix(s.WarnTime < 0 || s.AlarmTime <= 0 || s.WarnTime >= s.AlarmTime, "warnTime/alarmTime", func() {
		s.WarnTime, s.AlarmTime = d.WarnTime, d.AlarmTime
	})
	fix(s.HRThreshMin < 0 || s.HRThreshMax <= s.HRThreshMin, "hrThreshMin/hrThreshMax", func() {
		s.HRThreshMin, s.HRThreshMax = d.HRThreshMin, d.HRThreshMax
	})
	fix(s.HRRateWindow <= 0, "hrRateWindow", func() { s.HRRateWindow = d.HRRateWindow })
	fix(s.HRRateDuration <= 0, "hrRateDuration", func() { s.HRRateDuration = d.HRRateDuration })
	fix(s.HRRateThresh < 0, "hrRateThresh", func() { s.HRRateThresh = d.HRRateThresh })
	fix(s.FallWindow <= 0, "fallWindow", func() { s.FallWindow = d.FallWindow })
	fix(s.FallThreshMax <= s.FallThreshMin, "fallThreshMin/fallThreshMax", func() {
		s.FallThreshMin, s.FallThreshMax = d.FallThreshMin, d.FallThreshMax
	})
	fix(s.DataUpdatePeriod <= 0, "dataUpdatePeriod", func() { s.DataUpdatePeriod = d.DataUpdatePeriod })
	fix(s.AppRestartTimeout < 0, "appRestartTimeout", func() { s.AppRestartTimeout = d.AppRestartTimeout })
	fix(s.FaultTimerPeriod < 0, "faultTimerPeriod", func() { s.FaultTimerPeriod = d.FaultTimerPeriod })
	fix(s.SettingsPeriod <= 0, "settingsPeriod", func() { s.SettingsPeriod = d.SettingsPeriod })

	return s, reverted
}
