// Package pebblestore provides a crew.CheckpointStore backed by a Pebble
// key-value database.
package pebblestore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cockroachdb/pebble"
	"github.com/deepnoodle-ai/crew"
)

// Keys are "cp:" + thread id + 0x00 + big-endian sequence, so each thread's
// checkpoints are contiguous and ordered by write.
const keyPrefix = "cp:"

type Store struct {
	db     *pebble.DB
	retain int
	locks  crew.ThreadLocks
}

// Open opens or creates the database in dir. Compaction keeps the newest
// retain checkpoints of each thread.
func Open(dir string, retain int) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dir), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble: %w", err)
	}
	if retain < 1 {
		retain = 1
	}
	return &Store{db: db, retain: retain}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func threadLower(threadID string) []byte {
	return append([]byte(keyPrefix+threadID), 0x00)
}

func threadUpper(threadID string) []byte {
	return append([]byte(keyPrefix+threadID), 0x01)
}

func checkpointKey(threadID string, seq uint64) []byte {
	return binary.BigEndian.AppendUint64(threadLower(threadID), seq)
}

// last returns the newest key and value of a thread, or nil if it has none.
func (s *Store) last(threadID string) ([]byte, []byte, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: threadLower(threadID),
		UpperBound: threadUpper(threadID),
	})
	if err != nil {
		return nil, nil, err
	}
	defer iter.Close()
	if !iter.Last() {
		return nil, nil, iter.Error()
	}
	key := append([]byte(nil), iter.Key()...)
	value := append([]byte(nil), iter.Value()...)
	return key, value, nil
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

	defer s.locks.Lock(checkpoint.ThreadID)()

	key, _, err := s.last(checkpoint.ThreadID)
	if err != nil {
		return fmt.Errorf("failed to read latest checkpoint: %w", err)
	}
	var seq uint64
	if key != nil {
		seq = binary.BigEndian.Uint64(key[len(key)-8:])
	}
	if err := s.db.Set(checkpointKey(checkpoint.ThreadID, seq+1), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	return nil
}

func (s *Store) GetLatest(ctx context.Context, threadID string) (*crew.Checkpoint, error) {
	defer s.locks.RLock(threadID)()

	_, value, err := s.last(threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to read latest checkpoint: %w", err)
	}
	if value == nil {
		return nil, nil
	}
	var checkpoint crew.Checkpoint
	if err := json.Unmarshal(value, &checkpoint); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return &checkpoint, nil
}

func (s *Store) DeleteAll(ctx context.Context, threadID string) error {
	defer s.locks.Lock(threadID)()

	if err := s.db.DeleteRange(threadLower(threadID), threadUpper(threadID), pebble.Sync); err != nil {
		return fmt.Errorf("failed to delete checkpoints: %w", err)
	}
	return nil
}

// Compact deletes superseded checkpoints and compacts the keyspace so
// deleted ranges release disk space.
func (s *Store) Compact(ctx context.Context) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte("cp;"),
	})
	if err != nil {
		return fmt.Errorf("failed to scan checkpoints: %w", err)
	}
	// newest first, so the first retain keys seen per thread are kept
	counts := map[string]int{}
	batch := s.db.NewBatch()
	defer batch.Close()
	for ok := iter.Last(); ok; ok = iter.Prev() {
		key := iter.Key()
		thread := string(key[len(keyPrefix) : len(key)-9])
		counts[thread]++
		if counts[thread] > s.retain {
			if err := batch.Delete(append([]byte(nil), key...), nil); err != nil {
				iter.Close()
				return err
			}
		}
	}
	if err := iter.Close(); err != nil {
		return fmt.Errorf("failed to scan checkpoints: %w", err)
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to prune checkpoints: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.db.Compact([]byte(keyPrefix), []byte("cp;"), true); err != nil {
		return fmt.Errorf("failed to compact: %w", err)
	}
	return nil
}

// Count returns how many checkpoints a thread has.
func (s *Store) Count(threadID string) (int, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: threadLower(threadID),
		UpperBound: threadUpper(threadID),
	})
	if err != nil {
		return 0, err
	}
	defer iter.Close()
	n := 0
	for ok := iter.First(); ok; ok = iter.Next() {
		n++
	}
	return n, iter.Error()
}
