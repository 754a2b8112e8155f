package crew

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"
)

// MaxAttachmentSize is the largest file accepted as an attachment.
const MaxAttachmentSize = 50 * 1024 * 1024

// FileRecord is a file attached to a thread.
type FileRecord struct {
	Path        string    `json:"path"`
	ContentHash string    `json:"content_hash"`
	DisplayName string    `json:"display_name"`
	AddedAt     time.Time `json:"added_at"`
}

// AttachmentStore copies uploaded files into a data directory and remembers
// which belong to each thread in an index file next to them. A file whose
// content is already attached to the thread is dropped.
type AttachmentStore struct {
	mu     sync.Mutex
	dir    string
	files  map[string][]FileRecord
	logger *slog.Logger
	now    func() time.Time
}

func NewAttachmentStore(dir string, logger *slog.Logger) (*AttachmentStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create attachment directory: %w", err)
	}
	if logger == nil {
		logger = discardLogger()
	}
	s := &AttachmentStore{
		dir:    dir,
		files:  map[string][]FileRecord{},
		logger: logger,
		now:    time.Now,
	}
	data, err := os.ReadFile(s.indexPath())
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to read attachment index: %w", err)
	default:
		if err := json.Unmarshal(data, &s.files); err != nil {
			return nil, fmt.Errorf("failed to unmarshal attachment index: %w", err)
		}
	}
	return s, nil
}

func (s *AttachmentStore) indexPath() string {
	return filepath.Join(s.dir, "attachments.json")
}

// saveIndex must be called with s.mu held.
func (s *AttachmentStore) saveIndex() error {
	data, err := json.MarshalIndent(s.files, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(s.indexPath(), data)
}

// Add copies r into the data directory and attaches it to the thread. It
// reports false when identical content was already attached, in which case
// the copy is removed and the existing record returned.
func (s *AttachmentStore) Add(threadID, name string, r io.Reader) (FileRecord, bool, error) {
	ext := filepath.Ext(name)
	base := sanitizeFilename(strings.TrimSuffix(filepath.Base(name), ext))
	if base == "" {
		base = "upload"
	}
	f, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return FileRecord{}, false, fmt.Errorf("failed to create attachment: %w", err)
	}
	tmp := f.Name()
	hasher := sha256.New()
	n, err := io.Copy(io.MultiWriter(f, hasher), io.LimitReader(r, MaxAttachmentSize+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && n > MaxAttachmentSize {
		err = fmt.Errorf("file size exceeds %d byte limit", MaxAttachmentSize)
	}
	if err != nil {
		os.Remove(tmp)
		return FileRecord{}, false, fmt.Errorf("failed to save attachment %q: %w", name, err)
	}
	hash := hex.EncodeToString(hasher.Sum(nil))
	dest := filepath.Join(s.dir, fmt.Sprintf("%s_%s_%s%s", base, s.now().Format("20060102_150405"), hash[:8], ext))

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.files[threadID] {
		if existing.ContentHash == hash {
			os.Remove(tmp)
			s.logger.Info("duplicate attachment ignored", "thread_id", threadID, "name", name)
			return existing, false, nil
		}
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return FileRecord{}, false, fmt.Errorf("failed to save attachment %q: %w", name, err)
	}
	record := FileRecord{
		Path:        dest,
		ContentHash: hash,
		DisplayName: filepath.Base(name),
		AddedAt:     s.now(),
	}
	s.files[threadID] = append(s.files[threadID], record)
	if err := s.saveIndex(); err != nil {
		s.logger.Error("failed to save attachment index", "error", err)
	}
	s.logger.Info("file attached", "thread_id", threadID, "path", dest, "size", n)
	return record, true, nil
}

// AddFile attaches a file from disk.
func (s *AttachmentStore) AddFile(threadID, path string) (FileRecord, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return FileRecord{}, false, err
	}
	defer f.Close()
	return s.Add(threadID, filepath.Base(path), f)
}

// Files returns the thread's attachments in the order they were added.
func (s *AttachmentStore) Files(threadID string) []FileRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	files := make([]FileRecord, len(s.files[threadID]))
	copy(files, s.files[threadID])
	return files
}

// Clear detaches every file from the thread. The copies stay on disk.
func (s *AttachmentStore) Clear(threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, threadID)
	return s.saveIndex()
}

// Paths returns the stored paths of records.
func Paths(records []FileRecord) []string {
	paths := make([]string, len(records))
	for i, record := range records {
		paths[i] = record.Path
	}
	return paths
}

// promptWithFiles appends the paths of attached files to a prompt.
func promptWithFiles(prompt string, paths []string) string {
	switch len(paths) {
	case 0:
		return prompt
	case 1:
		return prompt + "\n\nUploaded file: " + paths[0]
	}
	var sb strings.Builder
	sb.WriteString(prompt)
	sb.WriteString("\n\nUploaded files:")
	for _, path := range paths {
		sb.WriteString("\n- ")
		sb.WriteString(path)
	}
	return sb.String()
}

func sanitizeFilename(name string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '_' || r == '-' {
			return r
		}
		if r == ' ' {
			return '_'
		}
		return -1
	}, name)
}
