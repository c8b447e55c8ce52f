package models

import "time"

// AlarmStatus is the composite alarm level reported each analysis period
type AlarmStatus int

const (
	StatusOK          AlarmStatus = 0
	StatusWarning     AlarmStatus = 1
	StatusAlarm       AlarmStatus = 2
	StatusFall        AlarmStatus = 3
	StatusManualAlarm AlarmStatus = 5
	StatusMute        AlarmStatus = 6
)

// Phrase returns the display phrase for a status
func (s AlarmStatus) Phrase() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusWarning:
		return "WARNING"
	case StatusAlarm:
		return "ALARM"
	case StatusFall:
		return "FALL"
	case StatusManualAlarm:
		return "MANUAL ALARM"
	case StatusMute:
		return "MUTE"
	}
	return "UNKNOWN"
}

// AlarmClass reports whether the status opens a remote event on its own
// (without falling back to warnings).
func (s AlarmStatus) AlarmClass() bool {
	return s == StatusAlarm || s == StatusFall || s == StatusManualAlarm
}

// Datapoint is one persisted analysis period
type Datapoint struct {
	ID       int64       `json:"id"`
	DataTime time.Time   `json:"dataTime"`
	Status   AlarmStatus `json:"status"`
	DataJSON string      `json:"dataJSON"`
	Uploaded int64       `json:"uploaded"`
}

// SampleWindow is one period of raw accelerometer data from the watch.
// HR is negative when the watch reported no heart rate.
type SampleWindow struct {
	Samples []int
	HR      float64
	Mute    bool
}

// AnalysisResult holds the spectral features of one window plus the
// per-channel alarm signals derived from them.
type AnalysisResult struct {
	SpecPower  int64   `json:"specPower"`
	RoiPower   int64   `json:"roiPower"`
	RoiRatio   float64 `json:"roiRatio"`
	SimpleSpec []int64 `json:"simpleSpec"`

	AccelAlarm  bool `json:"accelAlarm"`
	HRAlarm     bool `json:"hrAlarm"`
	HRFault     bool `json:"hrFault"`
	HRRateAlarm bool `json:"hrRateAlarm"`
	FallAlarm   bool `json:"fallAlarm"`
}

// Reading is the full snapshot of detector state for one period.
// It is what gets serialised into Datapoint.DataJSON and served on /api/status.
type Reading struct {
	DataTime    time.Time   `json:"dataTime"`
	AlarmState  AlarmStatus `json:"alarmState"`
	AlarmPhrase string      `json:"alarmPhrase"`

	SpecPower  int64   `json:"specPower"`
	RoiPower   int64   `json:"roiPower"`
	RoiRatio   float64 `json:"roiRatio"`
	SimpleSpec []int64 `json:"simpleSpec"`

	AlarmThresh      float64 `json:"alarmThresh"`
	AlarmRatioThresh float64 `json:"alarmRatioThresh"`
	AlarmFreqMin     float64 `json:"alarmFreqMin"`
	AlarmFreqMax     float64 `json:"alarmFreqMax"`

	HR                  float64 `json:"hr"`
	HRAverage           float64 `json:"hrAverage"`
	HRAlarmActive       bool    `json:"hrAlarmActive"`
	HRAlarmStanding     bool    `json:"hrAlarmStanding"`
	HRFaultStanding     bool    `json:"hrFaultStanding"`
	HRRateAlarmStanding bool    `json:"hrRateAlarmStanding"`
	FallActive          bool    `json:"fallActive"`
	FallAlarmStanding   bool    `json:"fallAlarmStanding"`

	BatteryPc       int     `json:"batteryPc"`
	SampleFreq      float64 `json:"sampleFreq"`
	AnalysisPeriod  int     `json:"analysisPeriod"`
	WatchAppRunning bool    `json:"watchAppRunning"`
	HaveSettings    bool    `json:"haveSettings"`
	HaveData        bool    `json:"haveData"`
	Fault           bool    `json:"fault"`
	WatchPartNo     string  `json:"watchPartNo,omitempty"`
	WatchFwVersion  string  `json:"watchFwVersion,omitempty"`
	WatchSdVersion  string  `json:"watchSdVersion,omitempty"`
	WatchSdName     string  `json:"watchSdName,omitempty"`

	RawData []int `json:"rawData,omitempty"`
}

// Settings are the detector preferences. Loaded from YAML and pushed to
// the data source on start and on reload.
type Settings struct {
	SampleFreq     float64 `yaml:"sampleFreq" json:"sampleFreq"`
	AnalysisPeriod int     `yaml:"analysisPeriod" json:"analysisPeriod"`
	FreqCutoff     float64 `yaml:"freqCutoff" json:"freqCutoff"`

	AlarmFreqMin     float64 `yaml:"alarmFreqMin" json:"alarmFreqMin"`
	AlarmFreqMax     float64 `yaml:"alarmFreqMax" json:"alarmFreqMax"`
	AlarmThresh      float64 `yaml:"alarmThresh" json:"alarmThresh"`
	AlarmRatioThresh float64 `yaml:"alarmRatioThresh" json:"alarmRatioThresh"`
	WarnTime         int     `yaml:"warnTime" json:"warnTime"`
	AlarmTime        int     `yaml:"alarmTime" json:"alarmTime"`

	HRAlarmActive bool    `yaml:"hrAlarmActive" json:"hrAlarmActive"`
	HRNullAsAlarm bool    `yaml:"hrNullAsAlarm" json:"hrNullAsAlarm"`
	HRThreshMin   float64 `yaml:"hrThreshMin" json:"hrThreshMin"`
	HRThreshMax   float64 `yaml:"hrThreshMax" json:"hrThreshMax"`

	HRRateAlarmActive bool    `yaml:"hrRateAlarmActive" json:"hrRateAlarmActive"`
	HRRateWindow      int     `yaml:"hrRateWindow" json:"hrRateWindow"`
	HRRateDuration    int     `yaml:"hrRateDuration" json:"hrRateDuration"`
	HRRateThresh      float64 `yaml:"hrRateThresh" json:"hrRateThresh"`

	FallActive    bool    `yaml:"fallActive" json:"fallActive"`
	FallThreshMin float64 `yaml:"fallThreshMin" json:"fallThreshMin"`
	FallThreshMax float64 `yaml:"fallThreshMax" json:"fallThreshMax"`
	FallWindow    int     `yaml:"fallWindow" json:"fallWindow"` // milliseconds

	DataUpdatePeriod  int `yaml:"dataUpdatePeriod" json:"dataUpdatePeriod"`
	AppRestartTimeout int `yaml:"appRestartTimeout" json:"appRestartTimeout"`
	FaultTimerPeriod  int `yaml:"faultTimerPeriod" json:"faultTimerPeriod"`
	SettingsPeriod    int `yaml:"settingsPeriod" json:"settingsPeriod"`
}

// EventTypes maps a remote event type to its subtypes
type EventTypes map[string][]string

// LogEntry represents a system log entry
type LogEntry struct {
	ID        int64  `json:"id"`
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Category  string `json:"category"`
	Source    string `json:"source"`
	Message   string `json:"message"`
	Details   string `json:"details"`
}

// LogStats holds log statistics
type LogStats struct {
	TotalLogs  int `json:"total_logs"`
	ErrorCount int `json:"error_count"`
	WarnCount  int `json:"warn_count"`
	InfoCount  int `json:"info_count"`
	DebugCount int `json:"debug_count"`
}

// UploadStatus is the coordinator state exposed to the UI
type UploadStatus struct {
	InFlight       bool      `json:"in_flight"`
	SessionID      string    `json:"session_id,omitempty"`
	CurrentEventID int64     `json:"current_event_id,omitempty"`
	Pending        int       `json:"pending"`
	LastResult     string    `json:"last_result,omitempty"`
	LastRun        time.Time `json:"last_run,omitempty"`
}
