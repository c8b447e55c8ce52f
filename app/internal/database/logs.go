package database

import "osdbridge/app/internal/models"

// LogLevel constants
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// LogCategory constants
const (
	LogCategoryAnalysis  = "analysis"
	LogCategoryUpload    = "upload"
	LogCategoryStorage   = "storage"
	LogCategoryRetention = "retention"
	LogCategoryWatch     = "watch"
	LogCategorySystem    = "system"
)

// InsertLog adds an operator log entry
func (s *Store) InsertLog(level, category, source, message, details string) error {
	_, err := s.db.Exec(`INSERT INTO system_logs (timestamp, level, category, source, message, details)
		VALUES (datetime('now'), ?, ?, ?, ?, ?)`,
		level, category, source, message, details)
	return err
}

// GetLogs retrieves logs with optional filtering, newest first
func (s *Store) GetLogs(limit int, level, category, source string, offset int) ([]models.LogEntry, error) {
	query := `SELECT id, timestamp, level, category, COALESCE(source, ''), message, COALESCE(details, '')
		FROM system_logs WHERE 1=1`
	args := []interface{}{}

	if level != "" {
		query += " AND level = ?"
		args = append(args, level)
	}
	if category != "" {
		query += " AND category = ?"
		args = append(args, category)
	}
	if source != "" {
		query += " AND source = ?"
		args = append(args, source)
	}

	query += " ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []models.LogEntry
	for rows.Next() {
		var e models.LogEntry
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Level, &e.Category, &e.Source, &e.Message, &e.Details); err != nil {
			return nil, err
		}
		logs = append(logs, e)
	}
	return logs, rows.Err()
}

// GetLogStats returns counts per level
func (s *Store) GetLogStats() (*models.LogStats, error) {
	var stats models.LogStats
	rows, err := s.db.Query(`SELECT level, COUNT(*) FROM system_logs GROUP BY level`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var level string
		var n int
		if err := rows.Scan(&level, &n); err != nil {
			return nil, err
		}
		stats.TotalLogs += n
		switch level {
		case LogLevelError:
			stats.ErrorCount = n
		case LogLevelWarn:
			stats.WarnCount = n
		case LogLevelInfo:
			stats.InfoCount = n
		case LogLevelDebug:
			stats.DebugCount = n
		}
	}
	return &stats, rows.Err()
}

// PruneLogs keeps only the newest keepCount entries
func (s *Store) PruneLogs(keepCount int) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM system_logs WHERE id NOT IN (
		SELECT id FROM system_logs ORDER BY timestamp DESC, id DESC LIMIT ?
	)`, keepCount)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
