package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorders(t *testing.T) {
	Init()
	Init() // second call is a no-op

	before := testutil.ToFloat64(uploadSessions.WithLabelValues(ResultOK))
	IncUploadSession(ResultOK)
	if got := testutil.ToFloat64(uploadSessions.WithLabelValues(ResultOK)); got != before+1 {
		t.Errorf("upload sessions = %v, want %v", got, before+1)
	}

	SetAlarmState(2)
	if got := testutil.ToFloat64(alarmState); got != 2 {
		t.Errorf("alarm state = %v, want 2", got)
	}

	before = testutil.ToFloat64(prunedRows)
	AddPruned(0)
	AddPruned(5)
	if got := testutil.ToFloat64(prunedRows); got != before+5 {
		t.Errorf("pruned rows = %v, want %v", got, before+5)
	}
}
