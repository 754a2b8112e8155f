package crew

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemoryCheckpointStore keeps checkpoints in process memory. Values are
// copied through JSON on the way in and out so callers never share state
// with the store.
type MemoryCheckpointStore struct {
	mu      sync.RWMutex
	locks   ThreadLocks
	threads map[string][][]byte
	retain  int
}

// NewMemoryCheckpointStore creates an in-memory store that keeps at most
// retain checkpoints per thread. Zero keeps only the latest.
func NewMemoryCheckpointStore(retain int) *MemoryCheckpointStore {
	if retain < 1 {
		retain = 1
	}
	return &MemoryCheckpointStore{
		threads: map[string][][]byte{},
		retain:  retain,
	}
}

func (s *MemoryCheckpointStore) GetLatest(ctx context.Context, threadID string) (*Checkpoint, error) {
	defer s.locks.RLock(threadID)()

	s.mu.RLock()
	history := s.threads[threadID]
	s.mu.RUnlock()
	if len(history) == 0 {
		return nil, nil
	}
	var checkpoint Checkpoint
	if err := json.Unmarshal(history[len(history)-1], &checkpoint); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return &checkpoint, nil
}

func (s *MemoryCheckpointStore) Put(ctx context.Context, checkpoint *Checkpoint) error {
	if checkpoint == nil || checkpoint.ThreadID == "" {
		return fmt.Errorf("checkpoint thread id required")
	}
	data, err := json.Marshal(checkpoint)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	defer s.locks.Lock(checkpoint.ThreadID)()

	s.mu.Lock()
	defer s.mu.Unlock()
	history := append(s.threads[checkpoint.ThreadID], data)
	if len(history) > s.retain {
		history = history[len(history)-s.retain:]
	}
	s.threads[checkpoint.ThreadID] = history
	return nil
}

func (s *MemoryCheckpointStore) DeleteAll(ctx context.Context, threadID string) error {
	defer s.locks.Lock(threadID)()

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.threads, threadID)
	return nil
}

// Count returns how many checkpoints are retained for a thread.
func (s *MemoryCheckpointStore) Count(threadID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.threads[threadID])
}
