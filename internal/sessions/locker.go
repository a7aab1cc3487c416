package sessions

import (
	"context"
	"sync"
)

// Locker is a keyed mutual-exclusion registry. At most one agent run per
// conversation holds the lock at a time; a second inbound message for the
// same conversation blocks until the in-flight run completes. Locks are
// created lazily and never removed: the registry is bounded by the number
// of distinct conversations seen, which is acceptable for this workload.
//
// Thread Safety:
// Locker is safe for concurrent use.
type Locker struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

// NewLocker creates an empty lock registry.
func NewLocker() *Locker {
	return &Locker{locks: make(map[string]chan struct{})}
}

func (l *Locker) sem(conversationID string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	sem, ok := l.locks[conversationID]
	if !ok {
		sem = make(chan struct{}, 1)
		l.locks[conversationID] = sem
	}
	return sem
}

// Acquire blocks until the conversation's lock is free or the context is
// cancelled. On success it returns a release function that must be called
// exactly once when the run completes.
func (l *Locker) Acquire(ctx context.Context, conversationID string) (func(), error) {
	sem := l.sem(conversationID)
	select {
	case sem <- struct{}{}:
		return func() { l.release(conversationID) }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryAcquire acquires the lock without blocking. It returns false when the
// conversation already has a run in flight.
func (l *Locker) TryAcquire(conversationID string) (func(), bool) {
	sem := l.sem(conversationID)
	select {
	case sem <- struct{}{}:
		return func() { l.release(conversationID) }, true
	default:
		return nil, false
	}
}

// IsLocked reports whether the conversation currently has a run in flight.
func (l *Locker) IsLocked(conversationID string) bool {
	sem := l.sem(conversationID)
	return len(sem) > 0
}

// release frees the lock. Releasing a lock that is not held is a
// programming defect and aborts loudly rather than silently continuing.
func (l *Locker) release(conversationID string) {
	sem := l.sem(conversationID)
	select {
	case <-sem:
	default:
		panic("sessions: release of lock not held for conversation " + conversationID)
	}
}
