package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// TimeLayout is how dataTime is stored (UTC, second resolution)
const TimeLayout = "2006-01-02 15:04:05"

var ErrNotFound = errors.New("datapoint not found")

// Store owns the SQLite handle. Open it once at startup and Close it at
// shutdown; every component that needs storage gets the same *Store.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (or creates) the database at path and brings the schema up
// to date.
func Open(path string, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// A single connection serialises all reads and writes and keeps
	// :memory: databases alive for the life of the store.
	db.SetMaxOpenConns(1)

	s := New(db, logger)
	if err := s.Migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing handle without touching the schema
func New(db *sql.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger}
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// Available reports whether the database answers a ping
func (s *Store) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.db.PingContext(ctx) == nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

func parseTime(v string) (time.Time, error) {
	return time.ParseInLocation(TimeLayout, v, time.UTC)
}
