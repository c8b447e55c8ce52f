package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"osdbridge/app/internal/models"
)

// Order selects the sort direction of a datapoint query
type Order int

const (
	NewestFirst Order = iota
	OldestFirst
)

func (o Order) sql() string {
	if o == OldestFirst {
		return "ASC"
	}
	return "DESC"
}

// UnsendableEventID is stored in uploaded for a datapoint whose payload
// cannot be uploaded. It is non-zero, so the row is never selected again.
const UnsendableEventID int64 = -1

const datapointCols = `id, dataTime, status, dataJSON, uploaded`

// Append inserts a new datapoint with uploaded=0 and returns its id.
// Failures are logged here; callers drop the point.
func (s *Store) Append(ctx context.Context, dp models.Datapoint) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO datapoints (dataTime, status, dataJSON, uploaded) VALUES (?, ?, ?, 0)`,
		formatTime(dp.DataTime), int(dp.Status), dp.DataJSON)
	if err != nil {
		s.logger.Warn("append datapoint failed, dropping",
			zap.Time("data_time", dp.DataTime), zap.Int("status", int(dp.Status)), zap.Error(err))
		return 0, fmt.Errorf("append datapoint: %w", err)
	}
	return res.LastInsertId()
}

// GetByID returns one datapoint or ErrNotFound
func (s *Store) GetByID(ctx context.Context, id int64) (models.Datapoint, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+datapointCols+` FROM datapoints WHERE id = ?`, id)
	dp, err := scanDatapoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return dp, ErrNotFound
	}
	return dp, err
}

// QueryByIDRange returns datapoints with startID <= id <= endID
func (s *Store) QueryByIDRange(ctx context.Context, startID, endID int64, order Order) ([]models.Datapoint, error) {
	return s.queryDatapoints(ctx,
		`SELECT `+datapointCols+` FROM datapoints WHERE id >= ? AND id <= ? ORDER BY id `+order.sql(),
		startID, endID)
}

// QueryByDateRange returns datapoints with start <= dataTime <= end.
// limit <= 0 means no limit.
func (s *Store) QueryByDateRange(ctx context.Context, start, end time.Time, order Order, limit int) ([]models.Datapoint, error) {
	query := `SELECT ` + datapointCols + ` FROM datapoints WHERE dataTime >= ? AND dataTime <= ?
		ORDER BY dataTime ` + order.sql() + `, id ` + order.sql()
	args := []interface{}{formatTime(start), formatTime(end)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryDatapoints(ctx, query, args...)
}

// NextEventToUpload returns the oldest unsent datapoint that should open a
// remote event. ALARM, FALL and MANUAL_ALARM rows take priority. If the
// oldest such row is newer than cutoff it is deferred and nothing is
// returned, so warnings never jump ahead of a pending alarm. Only when no
// alarm-class row is waiting are WARNING rows considered, with the same
// cutoff.
func (s *Store) NextEventToUpload(ctx context.Context, cutoff time.Time) (models.Datapoint, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+datapointCols+` FROM datapoints
		WHERE uploaded = 0 AND status IN (?, ?, ?)
		ORDER BY dataTime ASC, id ASC LIMIT 1`,
		int(models.StatusAlarm), int(models.StatusFall), int(models.StatusManualAlarm))
	dp, err := scanDatapoint(row)
	switch {
	case err == nil:
		if dp.DataTime.After(cutoff) {
			return models.Datapoint{}, false, nil
		}
		return dp, true, nil
	case !errors.Is(err, sql.ErrNoRows):
		return models.Datapoint{}, false, fmt.Errorf("select alarm event: %w", err)
	}

	row = s.db.QueryRowContext(ctx, `SELECT `+datapointCols+` FROM datapoints
		WHERE uploaded = 0 AND status = ? AND dataTime <= ?
		ORDER BY dataTime ASC, id ASC LIMIT 1`,
		int(models.StatusWarning), formatTime(cutoff))
	dp, err = scanDatapoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Datapoint{}, false, nil
	}
	if err != nil {
		return models.Datapoint{}, false, fmt.Errorf("select warning event: %w", err)
	}
	return dp, true, nil
}

// MarkUploaded records the remote event a datapoint was uploaded under.
// eventID must be non-zero so the marker never returns to "not uploaded".
func (s *Store) MarkUploaded(ctx context.Context, id, eventID int64) error {
	if eventID == 0 {
		return fmt.Errorf("mark datapoint %d: event id must be non-zero", id)
	}
	_, err := s.db.ExecContext(ctx, `UPDATE datapoints SET uploaded = ? WHERE id = ?`, eventID, id)
	if err != nil {
		return fmt.Errorf("mark datapoint %d uploaded: %w", id, err)
	}
	return nil
}

// Prune deletes datapoints with dataTime strictly before now - horizon
func (s *Store) Prune(ctx context.Context, now time.Time, horizon time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM datapoints WHERE dataTime < ?`, formatTime(now.Add(-horizon)))
	if err != nil {
		return 0, fmt.Errorf("prune datapoints: %w", err)
	}
	return res.RowsAffected()
}

// CountDatapoints returns the total number of stored datapoints
func (s *Store) CountDatapoints(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM datapoints`).Scan(&n)
	return n, err
}

// CountEvents returns the number of alarm-class datapoints, plus warnings
// when includeWarnings is set.
func (s *Store) CountEvents(ctx context.Context, includeWarnings bool) (int, error) {
	statuses := []interface{}{int(models.StatusAlarm), int(models.StatusFall), int(models.StatusManualAlarm)}
	query := `SELECT COUNT(*) FROM datapoints WHERE status IN (?, ?, ?`
	if includeWarnings {
		query += `, ?`
		statuses = append(statuses, int(models.StatusWarning))
	}
	query += `)`

	var n int
	err := s.db.QueryRowContext(ctx, query, statuses...).Scan(&n)
	return n, err
}

// CountPending returns the number of datapoints not yet uploaded
func (s *Store) CountPending(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM datapoints WHERE uploaded = 0`).Scan(&n)
	return n, err
}

func (s *Store) queryDatapoints(ctx context.Context, query string, args ...interface{}) ([]models.Datapoint, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Datapoint
	for rows.Next() {
		dp, err := scanDatapoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, dp)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDatapoint(sc scanner) (models.Datapoint, error) {
	var (
		dp       models.Datapoint
		dataTime string
		status   int
	)
	if err := sc.Scan(&dp.ID, &dataTime, &status, &dp.DataJSON, &dp.Uploaded); err != nil {
		return models.Datapoint{}, err
	}
	t, err := parseTime(dataTime)
	if err != nil {
		return models.Datapoint{}, fmt.Errorf("datapoint %d: bad dataTime %q: %w", dp.ID, dataTime, err)
	}
	dp.DataTime = t
	dp.Status = models.AlarmStatus(status)
	return dp, nil
}
