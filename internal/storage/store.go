package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// VisionCacheEntry represents a cached model answer.
type VisionCacheEntry struct {
	Model        string
	Text         string
	InputTokens  int64
	OutputTokens int64
	CreatedAt    time.Time
}

// Store defines the interface for run and cache persistence.
type Store interface {
	Close() error

	// Vision cache methods
	GetVisionCache(key string) (*VisionCacheEntry, error)
	SetVisionCache(key string, entry *VisionCacheEntry) error
	PruneVisionCache(maxAge time.Duration) (int64, error)

	// Run history methods
	SaveRun(run *Run) error
	GetRun(id string) (*Run, error)
	ListRuns(limit int) ([]Run, error)
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore creates a new SQLite-based store at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Configure SQLite with WAL mode and busy timeout for better concurrency
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.init(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) init() error {
	visionCacheQuery := `
	CREATE TABLE IF NOT EXISTS vision_cache (
		cache_key TEXT PRIMARY KEY,
		model TEXT NOT NULL,
		response TEXT NOT NULL,
		input_tokens INTEGER NOT NULL DEFAULT 0,
		output_tokens INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);
	`
	if _, err := s.db.Exec(visionCacheQuery); err != nil {
		return fmt.Errorf("failed to create vision_cache table: %w", err)
	}

	runsQuery := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		mode TEXT NOT NULL,
		language TEXT NOT NULL,
		currency TEXT NOT NULL,
		image_count INTEGER NOT NULL,
		candidate_count INTEGER NOT NULL,
		lot_count INTEGER NOT NULL,
		total_value REAL NOT NULL DEFAULT 0,
		report TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	`
	if _, err := s.db.Exec(runsQuery); err != nil {
		return fmt.Errorf("failed to create runs table: %w", err)
	}

	if _, err := s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs (created_at)`); err != nil {
		log.Warn().Err(err).Msg("failed to create runs index")
	}

	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetVisionCache retrieves a cached answer by request hash. Returns nil, nil on a miss.
func (s *SQLiteStore) GetVisionCache(key string) (*VisionCacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entry VisionCacheEntry
	err := s.db.QueryRow(
		`SELECT model, response, input_tokens, output_tokens, created_at FROM vision_cache WHERE cache_key = ?`,
		key,
	).Scan(&entry.Model, &entry.Text, &entry.InputTokens, &entry.OutputTokens, &entry.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vision cache: %w", err)
	}
	return &entry, nil
}

// SetVisionCache stores an answer in the cache, replacing any previous entry.
func (s *SQLiteStore) SetVisionCache(key string, entry *VisionCacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO vision_cache (cache_key, model, response, input_tokens, output_tokens, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		key, entry.Model, entry.Text, entry.InputTokens, entry.OutputTokens, createdAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to set vision cache: %w", err)
	}
	return nil
}

// PruneVisionCache deletes cache entries older than maxAge and returns the
// number of deleted rows.
func (s *SQLiteStore) PruneVisionCache(maxAge time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-maxAge).UTC()
	res, err := s.db.Exec(`DELETE FROM vision_cache WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune vision cache: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned rows: %w", err)
	}
	return n, nil
}
