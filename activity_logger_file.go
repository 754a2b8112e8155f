package crew

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileActivityLogger appends entries to one newline-delimited JSON file per
// thread.
type FileActivityLogger struct {
	directory string
	mu        sync.Mutex
}

func NewFileActivityLogger(directory string) *FileActivityLogger {
	return &FileActivityLogger{directory: directory}
}

func (l *FileActivityLogger) threadLogPath(threadID string) string {
	return filepath.Join(l.directory, fmt.Sprintf("%s.jsonl", threadID))
}

func (l *FileActivityLogger) GetActivityHistory(ctx context.Context, threadID string) ([]*ActivityLogEntry, error) {
	f, err := os.Open(l.threadLogPath(threadID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var entries []*ActivityLogEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry ActivityLogEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil, err
		}
		entries = append(entries, &entry)
	}
	return entries, scanner.Err()
}

func (l *FileActivityLogger) LogActivity(ctx context.Context, entry *ActivityLogEntry) error {
	if entry.ID == "" {
		entry.ID = NewActivityID()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	filePath := l.threadLogPath(entry.ThreadID)
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return err
	}
	return f.Sync()
}

// DeleteHistory removes the activity log of a thread.
func (l *FileActivityLogger) DeleteHistory(ctx context.Context, threadID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := os.Remove(l.threadLogPath(threadID)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
