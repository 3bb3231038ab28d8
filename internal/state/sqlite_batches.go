package state

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrBatchNotFound is returned when no batch has the requested name.
var ErrBatchNotFound = errors.New("batch not found")

const batchColumns = `id, name, profile, experiment, samples, tracked, status, workbook, submitted_at, updated_at`

// RecordBatch inserts a submitted batch. ID and timestamps are filled in
// when empty.
func (s *SQLiteStore) RecordBatch(b *Batch) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	if b.ID == "" {
		b.ID = generateID()
	}
	if b.SubmittedAt.IsZero() {
		b.SubmittedAt = time.Now().UTC()
	}
	if b.Status == "" {
		b.Status = BatchStatusQueued
	}
	b.UpdatedAt = b.SubmittedAt

	s.logger.Debug("recording batch", slog.String("id", b.ID), slog.String("name", b.Name))

	_, err := s.db.Exec(
		`INSERT INTO batches (`+batchColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Name, b.Profile, b.Experiment, b.Samples, b.Tracked, string(b.Status), b.Workbook,
		formatTime(b.SubmittedAt), formatTime(b.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to record batch: %w", err)
	}
	return nil
}

// GetBatch retrieves a batch by name.
func (s *SQLiteStore) GetBatch(name string) (*Batch, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	row := s.db.QueryRow(`SELECT `+batchColumns+` FROM batches WHERE name = ?`, name)
	b, err := scanBatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrBatchNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}
	return b, nil
}

// ListBatches returns the most recently submitted batches first.
// A limit of zero returns every batch.
func (s *SQLiteStore) ListBatches(limit int) ([]*Batch, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	query := `SELECT ` + batchColumns + ` FROM batches ORDER BY submitted_at DESC, name DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var batches []*Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

// UpdateBatchStatus moves a batch to a new lifecycle status.
func (s *SQLiteStore) UpdateBatchStatus(name string, status BatchStatus) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	res, err := s.db.Exec(
		`UPDATE batches SET status = ?, updated_at = ? WHERE name = ?`,
		string(status), formatTime(time.Now()), name,
	)
	if err != nil {
		return fmt.Errorf("failed to update batch status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrBatchNotFound, name)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBatch(row scanner) (*Batch, error) {
	var (
		b                  Batch
		status             string
		submitted, updated string
	)
	if err := row.Scan(&b.ID, &b.Name, &b.Profile, &b.Experiment, &b.Samples, &b.Tracked,
		&status, &b.Workbook, &submitted, &updated); err != nil {
		return nil, err
	}
	b.Status = BatchStatus(status)

	var err error
	if b.SubmittedAt, err = parseTime(submitted); err != nil {
		return nil, err
	}
	if b.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &b, nil
}

// RecordAllocations stores the ledger charges of a batch in one
// transaction.
func (s *SQLiteStore) RecordAllocations(batchID string, allocs []Allocation) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, a := range allocs {
		_, err := tx.Exec(
			`INSERT INTO allocations (batch_id, sample_index, sample, material, type, channel, channel_id, amount, charged)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			batchID, a.SampleIndex, a.Sample, a.Material, a.Type, a.Channel, a.ChannelID, a.Amount, a.Charged,
		)
		if err != nil {
			return fmt.Errorf("failed to record allocation for %s: %w", a.Material, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit allocations: %w", err)
	}
	return nil
}

// AllocationsForBatch returns a batch's charges in sample order.
func (s *SQLiteStore) AllocationsForBatch(batchID string) ([]Allocation, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.Query(
		`SELECT batch_id, sample_index, sample, material, type, channel, channel_id, amount, charged
		 FROM allocations WHERE batch_id = ? ORDER BY sample_index, rowid`,
		batchID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list allocations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Allocation
	for rows.Next() {
		var a Allocation
		if err := rows.Scan(&a.BatchID, &a.SampleIndex, &a.Sample, &a.Material, &a.Type,
			&a.Channel, &a.ChannelID, &a.Amount, &a.Charged); err != nil {
			return nil, fmt.Errorf("failed to scan allocation: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// MaterialUsage totals charges per material across every batch.
func (s *SQLiteStore) MaterialUsage() ([]MaterialUsage, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.Query(
		`SELECT material, type, COUNT(DISTINCT batch_id), SUM(charged)
		 FROM allocations GROUP BY material, type ORDER BY material`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query material usage: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []MaterialUsage
	for rows.Next() {
		var u MaterialUsage
		if err := rows.Scan(&u.Material, &u.Type, &u.Batches, &u.Charged); err != nil {
			return nil, fmt.Errorf("failed to scan material usage: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
