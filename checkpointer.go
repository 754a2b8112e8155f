package crew

import (
	"context"
	"sync"
)

// CheckpointStore persists the latest checkpoint of each thread.
type CheckpointStore interface {
	// GetLatest returns the most recent checkpoint for a thread, or nil if
	// the thread has none.
	GetLatest(ctx context.Context, threadID string) (*Checkpoint, error)

	// Put atomically replaces the latest checkpoint of checkpoint.ThreadID.
	Put(ctx context.Context, checkpoint *Checkpoint) error

	// DeleteAll removes every checkpoint stored for a thread.
	DeleteAll(ctx context.Context, threadID string) error
}

// Compactor is implemented by stores that can reclaim storage released by
// deletions.
type Compactor interface {
	Compact(ctx context.Context) error
}

// ThreadLocks hands out one RW lock per thread id so writers of different
// threads never contend. An entry lives only while some caller holds or waits
// on it. The zero value is ready to use.
type ThreadLocks struct {
	mu    sync.Mutex
	locks map[string]*threadLock
}

type threadLock struct {
	sync.RWMutex
	refs int
}

func (l *ThreadLocks) acquire(threadID string) *threadLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locks == nil {
		l.locks = map[string]*threadLock{}
	}
	lock, ok := l.locks[threadID]
	if !ok {
		lock = &threadLock{}
		l.locks[threadID] = lock
	}
	lock.refs++
	return lock
}

func (l *ThreadLocks) release(threadID string, lock *threadLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock.refs--
	if lock.refs == 0 {
		delete(l.locks, threadID)
	}
}

// Lock takes the exclusive lock of threadID and returns its unlock function.
func (l *ThreadLocks) Lock(threadID string) func() {
	lock := l.acquire(threadID)
	lock.Lock()
	return func() {
		lock.Unlock()
		l.release(threadID, lock)
	}
}

// RLock takes the shared lock of threadID and returns its unlock function.
func (l *ThreadLocks) RLock(threadID string) func() {
	lock := l.acquire(threadID)
	lock.RLock()
	return func() {
		lock.RUnlock()
		l.release(threadID, lock)
	}
}

// Len returns how many thread locks are held or awaited.
func (l *ThreadLocks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
