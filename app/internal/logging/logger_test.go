package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew_Levels(t *testing.T) {
	for _, lvl := range []string{"debug", "info", "warn", "error", "bogus"} {
		logger, err := New(lvl, "json", "osdbridge")
		if err != nil {
			t.Fatalf("New(%q) failed: %v", lvl, err)
		}
		if logger == nil {
			t.Fatalf("New(%q) returned nil logger", lvl)
		}
	}
}

func TestNew_LevelFiltering(t *testing.T) {
	logger, err := New("warn", "console", "")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if logger.Core().Enabled(zapcore.DebugLevel) {
		t.Error("debug should be disabled at warn level")
	}
	if !logger.Core().Enabled(zapcore.WarnLevel) {
		t.Error("warn should be enabled at warn level")
	}
}
