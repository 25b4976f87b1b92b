package identity

import (
	"errors"
	"sync"
)

// ErrTransactionInProgress is returned when a subscriber already has a running transaction
var ErrTransactionInProgress = errors.New("transaction already in progress for subscriber")

// LockSet holds one exclusive lock per subscriber key
type LockSet struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLockSet creates an empty lock set
func NewLockSet() *LockSet {
	return &LockSet{held: make(map[string]struct{})}
}

// Acquire takes the lock for key or fails immediately.
// The returned release function is safe to call more than once.
func (l *LockSet) Acquire(key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[key]; busy {
		return nil, ErrTransactionInProgress
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}

// Held reports whether key is currently locked
func (l *LockSet) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[key]
	return ok
}
