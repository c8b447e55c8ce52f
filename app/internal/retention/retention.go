// Package retention deletes local datapoints older than the configured
// horizon and trims the operator log.
package retention

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"osdbridge/app/internal/database"
	"osdbridge/app/internal/metrics"
)

var ErrStoreUnavailable = errors.New("store unavailable")

type Store interface {
	Available(ctx context.Context) bool
	Prune(ctx context.Context, now time.Time, horizon time.Duration) (int64, error)
	PruneLogs(keepCount int) (int64, error)
	InsertLog(level, category, source, message, details string) error
}

type Options struct {
	AutoPrune bool
	Days      int
	LogKeep   int
}

// Manager runs prune sweeps. Rows are deleted regardless of upload state.
type Manager struct {
	store  Store
	opts   Options
	logger *zap.Logger
	now    func() time.Time
}

func New(store Store, opts Options, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{store: store, opts: opts, logger: logger, now: time.Now}
}

// Horizon is the age beyond which datapoints are removed
func (m *Manager) Horizon() time.Duration {
	return time.Duration(m.opts.Days) * 24 * time.Hour
}

// RunOnce performs one sweep and returns the number of datapoints removed
func (m *Manager) RunOnce(ctx context.Context) (int64, error) {
	if !m.opts.AutoPrune || m.opts.Days <= 0 {
		return 0, nil
	}
	if !m.store.Available(ctx) {
		m.logger.Warn("retention skipped, store unavailable")
		return 0, ErrStoreUnavailable
	}

	n, err := m.store.Prune(ctx, m.now(), m.Horizon())
	if err != nil {
		m.logger.Error("prune failed", zap.Error(err))
		_ = m.store.InsertLog(database.LogLevelError, database.LogCategoryRetention, "retention",
			"prune failed", err.Error())
		return 0, err
	}
	metrics.AddPruned(n)
	if n > 0 {
		m.logger.Info("pruned datapoints", zap.Int64("rows", n), zap.Int("days", m.opts.Days))
		_ = m.store.InsertLog(database.LogLevelInfo, database.LogCategoryRetention, "retention",
			fmt.Sprintf("pruned %d datapoints", n), fmt.Sprintf("older than %d days", m.opts.Days))
	}

	if m.opts.LogKeep > 0 {
		if trimmed, err := m.store.PruneLogs(m.opts.LogKeep); err != nil {
			m.logger.Warn("log trim failed", zap.Error(err))
		} else if trimmed > 0 {
			m.logger.Debug("trimmed operator log", zap.Int64("rows", trimmed))
		}
	}
	return n, nil
}

// Run is the scheduler entry point
func (m *Manager) Run(ctx context.Context) {
	_, _ = m.RunOnce(ctx)
}
