package crew

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.jetify.com/typeid"
	"golang.org/x/time/rate"
)

// Thread is a registered conversation.
type Thread struct {
	ID        string    `json:"thread_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// NewThreadID returns a new thread identifier.
func NewThreadID() string {
	id, err := typeid.WithPrefix("thread")
	if err != nil {
		panic(err)
	}
	return id.String()
}

// RegistryOptions configures a ThreadRegistry.
type RegistryOptions struct {
	// Path of the JSON registry file.
	Path string
	// Store is purged when a thread is deleted.
	Store CheckpointStore
	// CompactInterval is the minimum time between compactions triggered by
	// deletions. Zero compacts after every deletion.
	CompactInterval time.Duration
	Metrics         *Metrics
	Logger          *slog.Logger
	Now             func() time.Time
}

// ThreadRegistry is the durable list of threads. Every read-modify-write of
// the registry file happens under one lock.
type ThreadRegistry struct {
	mu      sync.Mutex
	path    string
	store   CheckpointStore
	limiter *rate.Limiter
	metrics *Metrics
	logger  *slog.Logger
	now     func() time.Time
}

func NewThreadRegistry(opts RegistryOptions) (*ThreadRegistry, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("registry path required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("checkpoint store required")
	}
	if opts.Logger == nil {
		opts.Logger = discardLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create registry directory: %w", err)
	}
	limit := rate.Inf
	if opts.CompactInterval > 0 {
		limit = rate.Every(opts.CompactInterval)
	}
	return &ThreadRegistry{
		path:    opts.Path,
		store:   opts.Store,
		limiter: rate.NewLimiter(limit, 1),
		metrics: opts.Metrics,
		logger:  opts.Logger,
		now:     opts.Now,
	}, nil
}

func (r *ThreadRegistry) load() ([]*Thread, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read registry: %w", err)
	}
	var threads []*Thread
	if err := json.Unmarshal(data, &threads); err != nil {
		return nil, fmt.Errorf("failed to unmarshal registry: %w", err)
	}
	return threads, nil
}

func (r *ThreadRegistry) save(threads []*Thread) error {
	if threads == nil {
		threads = []*Thread{}
	}
	data, err := json.MarshalIndent(threads, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}
	if err := writeFileAtomic(r.path, data); err != nil {
		return fmt.Errorf("failed to write registry: %w", err)
	}
	return nil
}

// Create registers a new thread. An empty title gets the default title.
func (r *ThreadRegistry) Create(ctx context.Context, title string) (*Thread, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	threads, err := r.load()
	if err != nil {
		return nil, wrapError(ErrorTypeStorageFailure, err, nil)
	}
	now := r.now()
	if title == "" {
		title = DefaultTitle(now)
	}
	thread := &Thread{
		ID:        NewThreadID(),
		Title:     title,
		CreatedAt: now.UTC().Truncate(time.Second),
	}
	if err := r.save(append(threads, thread)); err != nil {
		return nil, wrapError(ErrorTypeStorageFailure, err, nil)
	}
	r.logger.Info("thread created", "thread_id", thread.ID, "title", title)
	return thread, nil
}

// List returns every thread in creation order. Storage failures are logged
// and yield an empty list.
func (r *ThreadRegistry) List(ctx context.Context) []*Thread {
	r.mu.Lock()
	defer r.mu.Unlock()

	threads, err := r.load()
	if err != nil {
		r.logger.Error("failed to load thread registry", "error", err)
		return []*Thread{}
	}
	if threads == nil {
		return []*Thread{}
	}
	return threads
}

// Get returns a thread by id.
func (r *ThreadRegistry) Get(ctx context.Context, threadID string) (*Thread, error) {
	for _, thread := range r.List(ctx) {
		if thread.ID == threadID {
			return thread, nil
		}
	}
	return nil, ErrThreadNotFound
}

// Rename changes a thread's title.
func (r *ThreadRegistry) Rename(ctx context.Context, threadID, title string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	threads, err := r.load()
	if err != nil {
		return wrapError(ErrorTypeStorageFailure, err, nil)
	}
	found := false
	for _, thread := range threads {
		if thread.ID == threadID {
			thread.Title = title
			found = true
			break
		}
	}
	if !found {
		return ErrThreadNotFound
	}
	if err := r.save(threads); err != nil {
		return wrapError(ErrorTypeStorageFailure, err, nil)
	}
	return nil
}

// Delete removes a thread from the registry and purges its checkpoints. A
// failed purge or compaction is logged and does not undo the removal.
func (r *ThreadRegistry) Delete(ctx context.Context, threadID string) error {
	r.mu.Lock()
	threads, err := r.load()
	if err != nil {
		r.mu.Unlock()
		return wrapError(ErrorTypeStorageFailure, err, nil)
	}
	kept := make([]*Thread, 0, len(threads))
	for _, thread := range threads {
		if thread.ID != threadID {
			kept = append(kept, thread)
		}
	}
	err = r.save(kept)
	r.mu.Unlock()
	if err != nil {
		return wrapError(ErrorTypeStorageFailure, err, nil)
	}

	logger := r.logger.With("thread_id", threadID)
	if err := r.store.DeleteAll(ctx, threadID); err != nil {
		logger.Error("failed to delete thread checkpoints", "error", err)
		return nil
	}
	r.compact(ctx, logger)
	logger.Info("thread deleted")
	return nil
}

// compact reclaims storage when the store supports it and the limiter
// allows.
func (r *ThreadRegistry) compact(ctx context.Context, logger *slog.Logger) {
	compactor, ok := r.store.(Compactor)
	if !ok {
		return
	}
	if !r.limiter.Allow() {
		logger.Debug("compaction skipped by rate limit")
		return
	}
	err := compactor.Compact(ctx)
	r.metrics.Compaction(err)
	if err != nil {
		logger.Error("failed to compact checkpoint store", "error", err)
	}
}
