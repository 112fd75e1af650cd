package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/mindx/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	writeMu sync.Mutex // serializes writes to avoid SQLITE_BUSY
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS progress (
		namespace TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		points INTEGER NOT NULL DEFAULT 0,
		streak INTEGER NOT NULL DEFAULT 0,
		level INTEGER NOT NULL DEFAULT 1,
		phq9_score INTEGER,
		gad7_score INTEGER,
		completed_json TEXT NOT NULL,
		challenges_json TEXT NOT NULL,
		last_active_day TEXT,
		version INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// LoadProgress retrieves the progress record for namespace.
func (s *SQLiteStore) LoadProgress(ctx context.Context, namespace string) (domain.Progress, error) {
	query := `
		SELECT username, points, streak, level, phq9_score, gad7_score,
		       completed_json, challenges_json, last_active_day, version, updated_at
		FROM progress WHERE namespace = ?`

	row := s.db.QueryRowContext(ctx, query, namespace)

	p := domain.NewProgress()
	var phq9, gad7 sql.NullInt64
	var completedJSON, challengesJSON string
	var lastActiveDay sql.NullString
	var updatedAt int64

	err := row.Scan(
		&p.Username, &p.Points, &p.Streak, &p.Level, &phq9, &gad7,
		&completedJSON, &challengesJSON, &lastActiveDay, &p.Version, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Progress{}, ErrNotFound
	}
	if err != nil {
		return domain.Progress{}, fmt.Errorf("scan progress row: %w", err)
	}

	if phq9.Valid {
		v := int(phq9.Int64)
		p.PHQ9Score = &v
	}
	if gad7.Valid {
		v := int(gad7.Int64)
		p.GAD7Score = &v
	}
	if err := json.Unmarshal([]byte(completedJSON), &p.CompletedTasks); err != nil {
		return domain.Progress{}, fmt.Errorf("decode completed tasks: %w", err)
	}
	if err := json.Unmarshal([]byte(challengesJSON), &p.ActiveChallenges); err != nil {
		return domain.Progress{}, fmt.Errorf("decode active challenges: %w", err)
	}
	p.LastActiveDay = lastActiveDay.String
	p.UpdatedAt = time.Unix(updatedAt, 0)

	return p.Clone(), nil
}

// SaveProgress writes the record guarded by an optimistic version check.
// A first save inserts; later saves update only the expected version.
func (s *SQLiteStore) SaveProgress(ctx context.Context, namespace string, p domain.Progress, expectedVersion int64) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	completedJSON, err := json.Marshal(nonNil(p.CompletedTasks))
	if err != nil {
		return fmt.Errorf("encode completed tasks: %w", err)
	}
	challengesJSON, err := json.Marshal(nonNil(p.ActiveChallenges))
	if err != nil {
		return fmt.Errorf("encode active challenges: %w", err)
	}

	var phq9, gad7, lastActiveDay interface{}
	if p.PHQ9Score != nil {
		phq9 = *p.PHQ9Score
	}
	if p.GAD7Score != nil {
		gad7 = *p.GAD7Score
	}
	if p.LastActiveDay != "" {
		lastActiveDay = p.LastActiveDay
	}
	updatedAt := p.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	values := []interface{}{
		p.Username, p.Points, p.Streak, p.Level, phq9, gad7,
		string(completedJSON), string(challengesJSON), lastActiveDay, p.Version, updatedAt.Unix(),
	}

	var query string
	var args []interface{}
	if expectedVersion == 0 {
		query = `
		INSERT INTO progress (
			username, points, streak, level, phq9_score, gad7_score,
			completed_json, challenges_json, last_active_day, version, updated_at, namespace
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(namespace) DO NOTHING`
		args = append(values, namespace)
	} else {
		query = `
		UPDATE progress SET
			username = ?, points = ?, streak = ?, level = ?, phq9_score = ?, gad7_score = ?,
			completed_json = ?, challenges_json = ?, last_active_day = ?, version = ?, updated_at = ?
		WHERE namespace = ? AND version = ?`
		args = append(values, namespace, expectedVersion)
	}

	var rows int64
	err = withBusyRetry(ctx, "save_progress", func() error {
		result, execErr := s.db.ExecContext(ctx, query, args...)
		if execErr != nil {
			return execErr
		}
		rows, execErr = result.RowsAffected()
		return execErr
	})
	if err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	if rows == 0 {
		slog.Warn("SaveProgress affected 0 rows", "namespace", namespace, "expected_version", expectedVersion)
		return fmt.Errorf("%w: expected version %d", ErrVersionConflict, expectedVersion)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
