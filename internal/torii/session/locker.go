package session

import "sync"

// Locker hands out one mutex per session key. Transports lock the key for
// the duration of a turn so messages within a session are processed strictly
// in arrival order, while turns of different sessions proceed in parallel.
// Only the approval ledger is shared across sessions.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLocker creates an empty Locker.
func NewLocker() *Locker {
	return &Locker{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for the given session key, creating it on first
// use. The returned function releases it.
func (l *Locker) Lock(id string) (unlock func()) {
	l.mu.Lock()
	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
