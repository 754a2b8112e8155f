package crew

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileCheckpointStore persists checkpoints as JSON files, one directory per
// thread. Every put writes checkpoint-<id>.json and then atomically swaps
// latest.json to the same content.
type FileCheckpointStore struct {
	dataDir string
	retain  int
	locks   ThreadLocks
}

// NewFileCheckpointStore creates a file-based store rooted at dataDir.
// Compaction keeps the newest retain checkpoint files per thread.
func NewFileCheckpointStore(dataDir string, retain int) (*FileCheckpointStore, error) {
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		dataDir = filepath.Join(homeDir, ".crew", "checkpoints")
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dataDir, err)
	}
	if retain < 1 {
		retain = 1
	}
	return &FileCheckpointStore{dataDir: dataDir, retain: retain}, nil
}

func (s *FileCheckpointStore) threadDir(threadID string) string {
	return filepath.Join(s.dataDir, threadID)
}

// Put saves the checkpoint to disk and makes it the thread's latest.
func (s *FileCheckpointStore) Put(ctx context.Context, checkpoint *Checkpoint) error {
	if checkpoint == nil || checkpoint.ThreadID == "" {
		return fmt.Errorf("checkpoint thread id required")
	}
	if checkpoint.ID == "" {
		checkpoint.ID = NewCheckpointID()
	}
	data, err := json.MarshalIndent(checkpoint, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	defer s.locks.Lock(checkpoint.ThreadID)()

	threadDir := s.threadDir(checkpoint.ThreadID)
	if err := os.MkdirAll(threadDir, 0755); err != nil {
		return fmt.Errorf("failed to create thread directory: %w", err)
	}
	checkpointPath := filepath.Join(threadDir, fmt.Sprintf("checkpoint-%s.json", checkpoint.ID))
	if err := os.WriteFile(checkpointPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write checkpoint file: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(threadDir, "latest.json"), data); err != nil {
		return fmt.Errorf("failed to update latest checkpoint: %w", err)
	}
	return nil
}

// GetLatest loads the latest checkpoint for a thread.
func (s *FileCheckpointStore) GetLatest(ctx context.Context, threadID string) (*Checkpoint, error) {
	defer s.locks.RLock(threadID)()

	data, err := os.ReadFile(filepath.Join(s.threadDir(threadID), "latest.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint file: %w", err)
	}
	var checkpoint Checkpoint
	if err := json.Unmarshal(data, &checkpoint); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return &checkpoint, nil
}

// DeleteAll removes the thread's checkpoint directory.
func (s *FileCheckpointStore) DeleteAll(ctx context.Context, threadID string) error {
	defer s.locks.Lock(threadID)()

	if err := os.RemoveAll(s.threadDir(threadID)); err != nil {
		return fmt.Errorf("failed to delete thread directory: %w", err)
	}
	return nil
}

// Compact prunes superseded checkpoint files and leftover temp files.
func (s *FileCheckpointStore) Compact(ctx context.Context) error {
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		return fmt.Errorf("failed to read data directory: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.compactThread(entry.Name()); err != nil {
			return err
		}
	}
	return nil
}

func (s *FileCheckpointStore) compactThread(threadID string) error {
	defer s.locks.Lock(threadID)()

	dir := s.threadDir(threadID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read thread directory: %w", err)
	}
	var checkpoints []string
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case strings.HasPrefix(name, ".tmp-"):
			if err := os.Remove(filepath.Join(dir, name)); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("failed to remove temp file: %w", err)
			}
		case strings.HasPrefix(name, "checkpoint-") && strings.HasSuffix(name, ".json"):
			checkpoints = append(checkpoints, name)
		}
	}
	if len(checkpoints) <= s.retain {
		return nil
	}
	// typeid suffixes are time ordered, so lexical order is write order
	sort.Strings(checkpoints)
	for _, name := range checkpoints[:len(checkpoints)-s.retain] {
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove checkpoint file: %w", err)
		}
	}
	return nil
}

// writeFileAtomic writes data to a temp file in the target directory and
// renames it over path.
func writeFileAtomic(path string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
