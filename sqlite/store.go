// Package sqlite provides a crew.CheckpointStore backed by a SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/deepnoodle-ai/crew"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL,
	thread_id TEXT NOT NULL,
	data TEXT NOT NULL,
	checkpoint_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_checkpoints_thread ON checkpoints(thread_id, seq);
`

// Store keeps every checkpoint as a row. The latest checkpoint of a thread is
// the row with the highest sequence number.
type Store struct {
	db     *sql.DB
	retain int
}

// Open opens or creates the database at path. Compaction keeps the newest
// retain checkpoints of each thread.
func Open(path string, retain int) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint db: %w", err)
	}
	// one writer avoids SQLITE_BUSY under concurrent turns
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	if retain < 1 {
		retain = 1
	}
	return &Store{db: db, retain: retain}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Put(ctx context.Context, checkpoint *crew.Checkpoint) error {
	if checkpoint == nil || checkpoint.ThreadID == "" {
		return fmt.Errorf("checkpoint thread id required")
	}
	if checkpoint.ID == "" {
		checkpoint.ID = crew.NewCheckpointID()
	}
	data, err := json.Marshal(checkpoint)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (id, thread_id, data, checkpoint_at) VALUES (?, ?, ?, ?)`,
		checkpoint.ID, checkpoint.ThreadID, string(data), checkpoint.CheckpointAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert checkpoint: %w", err)
	}
	return nil
}

func (s *Store) GetLatest(ctx context.Context, threadID string) (*crew.Checkpoint, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM checkpoints WHERE thread_id = ? ORDER BY seq DESC LIMIT 1`,
		threadID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query checkpoint: %w", err)
	}
	var checkpoint crew.Checkpoint
	if err := json.Unmarshal([]byte(data), &checkpoint); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return &checkpoint, nil
}

func (s *Store) DeleteAll(ctx context.Context, threadID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE thread_id = ?`, threadID); err != nil {
		return fmt.Errorf("failed to delete checkpoints: %w", err)
	}
	return nil
}

// Compact drops superseded checkpoints and vacuums the database file.
func (s *Store) Compact(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM checkpoints WHERE seq IN (
			SELECT seq FROM (
				SELECT seq, ROW_NUMBER() OVER (PARTITION BY thread_id ORDER BY seq DESC) AS rn
				FROM checkpoints
			) ranked WHERE rn > ?
		)`, s.retain)
	if err != nil {
		return fmt.Errorf("failed to prune checkpoints: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `VACUUM`); err != nil {
		return fmt.Errorf("failed to vacuum: %w", err)
	}
	return nil
}

// Count returns how many checkpoint rows a thread has.
func (s *Store) Count(ctx context.Context, threadID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM checkpoints WHERE thread_id = ?`, threadID).Scan(&n)
	return n, err
}
