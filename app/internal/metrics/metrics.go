package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricPrefix = "osd_"

// Result labels
const (
	ResultOK      = "ok"
	ResultError   = "error"
	ResultDropped = "dropped"
)

var (
	registerOnce sync.Once

	datapointsWritten  *prometheus.CounterVec
	analysisSkipped    prometheus.Counter
	analysisLatency    prometheus.Histogram
	alarmState         prometheus.Gauge
	uploadSessions     *prometheus.CounterVec
	datapointsUploaded prometheus.Counter
	datapointsDropped  prometheus.Counter
	prunedRows         prometheus.Counter
)

// Init registers all collectors with the default registry
func Init() {
	registerOnce.Do(func() {
		datapointsWritten = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "datapoints_written_total",
				Help: "Datapoints appended to the local store by result",
			},
			[]string{"result"},
		)
		analysisSkipped = prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "analysis_skipped_total",
			Help: "Sample windows dropped because an analysis pass was still running",
		})
		analysisLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    metricPrefix + "analysis_duration_seconds",
			Help:    "Time spent analysing one sample window",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
		})
		alarmState = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "alarm_state",
			Help: "Current composite alarm state code",
		})
		uploadSessions = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "upload_sessions_total",
				Help: "Upload sweeps by outcome",
			},
			[]string{"result"},
		)
		datapointsUploaded = prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "datapoints_uploaded_total",
			Help: "Datapoints uploaded to the remote API",
		})
		datapointsDropped = prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "datapoints_dropped_total",
			Help: "Malformed datapoints skipped during upload",
		})
		prunedRows = prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "pruned_rows_total",
			Help: "Datapoints deleted by the retention sweep",
		})

		prometheus.MustRegister(
			datapointsWritten,
			analysisSkipped,
			analysisLatency,
			alarmState,
			uploadSessions,
			datapointsUploaded,
			datapointsDropped,
			prunedRows,
		)
	})
}

// IncDatapointWritten counts an append attempt
func IncDatapointWritten(result string) {
	if datapointsWritten != nil {
		datapointsWritten.WithLabelValues(result).Inc()
	}
}

// IncAnalysisSkipped counts a dropped overlapping window
func IncAnalysisSkipped() {
	if analysisSkipped != nil {
		analysisSkipped.Inc()
	}
}

// ObserveAnalysis records how long one analysis pass took
func ObserveAnalysis(d time.Duration) {
	if analysisLatency != nil {
		analysisLatency.Observe(d.Seconds())
	}
}

// SetAlarmState publishes the composite alarm state
func SetAlarmState(code int) {
	if alarmState != nil {
		alarmState.Set(float64(code))
	}
}

// IncUploadSession counts an upload sweep outcome
func IncUploadSession(result string) {
	if uploadSessions != nil {
		uploadSessions.WithLabelValues(result).Inc()
	}
}

// IncDatapointUploaded counts one uploaded datapoint
func IncDatapointUploaded() {
	if datapointsUploaded != nil {
		datapointsUploaded.Inc()
	}
}

// IncDatapointDropped counts one skipped malformed datapoint
func IncDatapointDropped() {
	if datapointsDropped != nil {
		datapointsDropped.Inc()
	}
}

// AddPruned counts rows removed by retention
func AddPruned(n int64) {
	if prunedRows != nil && n > 0 {
		prunedRows.Add(float64(n))
	}
}
