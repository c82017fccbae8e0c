package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Run is the stored outcome of one pipeline run.
type Run struct {
	ID             string
	Mode           string
	Language       string
	Currency       string
	ImageCount     int
	CandidateCount int
	LotCount       int
	// TotalValue sums the lot values that are known amounts.
	TotalValue float64
	// Report is the JSON encoded assembled report.
	Report    []byte
	CreatedAt time.Time
}

// SaveRun stores a run. A missing ID or timestamp is filled in.
func (s *SQLiteStore) SaveRun(run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	_, err := s.db.Exec(
		`INSERT INTO runs (id, mode, language, currency, image_count, candidate_count, lot_count, total_value, report, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Mode, run.Language, run.Currency, run.ImageCount, run.CandidateCount, run.LotCount,
		run.TotalValue, string(run.Report), run.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID. Returns nil, nil if the run does not exist.
func (s *SQLiteStore) GetRun(id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(
		`SELECT id, mode, language, currency, image_count, candidate_count, lot_count, total_value, report, created_at
		FROM runs WHERE id = ?`,
		id,
	)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *SQLiteStore) ListRuns(limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(
		`SELECT id, mode, language, currency, image_count, candidate_count, lot_count, total_value, report, created_at
		FROM runs ORDER BY created_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}

	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var report string
	if err := row.Scan(
		&run.ID, &run.Mode, &run.Language, &run.Currency,
		&run.ImageCount, &run.CandidateCount, &run.LotCount,
		&run.TotalValue, &report, &run.CreatedAt,
	); err != nil {
		return nil, err
	}
	run.Report = []byte(report)
	return &run, nil
}
