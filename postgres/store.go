// Package postgres provides a crew.CheckpointStore backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/deepnoodle-ai/crew"
	_ "github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS crew_checkpoints (
	seq BIGSERIAL PRIMARY KEY,
	id TEXT NOT NULL,
	thread_id TEXT NOT NULL,
	data JSONB NOT NULL,
	checkpoint_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_crew_checkpoints_thread ON crew_checkpoints(thread_id, seq DESC);
`

// Store keeps every checkpoint as a row. The latest checkpoint of a thread is
// the row with the highest sequence number.
type Store struct {
	db     *sql.DB
	retain int
}

// Open connects to dsn and creates the schema if needed. Compaction keeps the
// newest retain checkpoints of each thread.
func Open(ctx context.Context, dsn string, retain int) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
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
		`INSERT INTO crew_checkpoints (id, thread_id, data, checkpoint_at) VALUES ($1, $2, $3, $4)`,
		checkpoint.ID, checkpoint.ThreadID, string(data), checkpoint.CheckpointAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert checkpoint: %w", err)
	}
	return nil
}

func (s *Store) GetLatest(ctx context.Context, threadID string) (*crew.Checkpoint, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM crew_checkpoints WHERE thread_id = $1 ORDER BY seq DESC LIMIT 1`,
		threadID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query checkpoint: %w", err)
	}
	var checkpoint crew.Checkpoint
	if err := json.Unmarshal(data, &checkpoint); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return &checkpoint, nil
}

func (s *Store) DeleteAll(ctx context.Context, threadID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM crew_checkpoints WHERE thread_id = $1`, threadID); err != nil {
		return fmt.Errorf("failed to delete checkpoints: %w", err)
	}
	return nil
}

// Compact drops superseded checkpoints and vacuums the table.
func (s *Store) Compact(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM crew_checkpoints WHERE seq IN (
			SELECT seq FROM (
				SELECT seq, ROW_NUMBER() OVER (PARTITION BY thread_id ORDER BY seq DESC) AS rn
				FROM crew_checkpoints
			) ranked WHERE rn > $1
		)`, s.retain)
	if err != nil {
		return fmt.Errorf("failed to prune checkpoints: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `VACUUM crew_checkpoints`); err != nil {
		return fmt.Errorf("failed to vacuum: %w", err)
	}
	return nil
}

// Count returns how many checkpoint rows a thread has.
func (s *Store) Count(ctx context.Context, threadID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM crew_checkpoints WHERE thread_id = $1`, threadID).Scan(&n)
	return n, err
}

// Reset drops every checkpoint. Tests use it to share one database.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `TRUNCATE crew_checkpoints`)
	return err
}
