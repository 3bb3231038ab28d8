package state

import (
	"fmt"
	"log/slog"
	"time"
)

// MarkProcessed records a completed workbook as read. Marking the same
// file again refreshes its row count and timestamp.
func (s *SQLiteStore) MarkProcessed(f ProcessedFile) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	if f.ProcessedAt.IsZero() {
		f.ProcessedAt = time.Now()
	}

	s.logger.Debug("marking file processed", slog.String("file", f.Filename), slog.Int("rows", f.Rows))

	_, err := s.db.Exec(
		`INSERT INTO processed_files (filename, experiment, row_count, processed_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(filename) DO UPDATE SET experiment = excluded.experiment,
		   row_count = excluded.row_count, processed_at = excluded.processed_at`,
		f.Filename, f.Experiment, f.Rows, formatTime(f.ProcessedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to mark %s processed: %w", f.Filename, err)
	}
	return nil
}

// IsProcessed reports whether a completed workbook was already read.
func (s *SQLiteStore) IsProcessed(filename string) (bool, error) {
	if s.db == nil {
		return false, fmt.Errorf("database not opened")
	}

	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM processed_files WHERE filename = ?`, filename).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check processed file: %w", err)
	}
	return n > 0, nil
}

// ListProcessed returns every processed workbook by name.
func (s *SQLiteStore) ListProcessed() ([]ProcessedFile, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.Query(`SELECT filename, experiment, row_count, processed_at FROM processed_files ORDER BY filename`)
	if err != nil {
		return nil, fmt.Errorf("failed to list processed files: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []ProcessedFile
	for rows.Next() {
		var (
			f  ProcessedFile
			at string
		)
		if err := rows.Scan(&f.Filename, &f.Experiment, &f.Rows, &at); err != nil {
			return nil, fmt.Errorf("failed to scan processed file: %w", err)
		}
		if f.ProcessedAt, err = parseTime(at); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
