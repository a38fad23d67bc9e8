package concurrency

import "sync"

// UserLocks hands out one exclusive critical section per user key, so the
// engine can serialise updates to a single user's model bundle while still
// processing unrelated users in parallel. Locks are created lazily and kept
// around for the process lifetime: entries are never removed, so the table
// grows by one mutex per distinct user seen. The engine's bundle map is not
// evicted either, so nothing else bounds that number.
type UserLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewUserLocks creates an empty lock table.
func NewUserLocks() *UserLocks {
	return &UserLocks{locks: make(map[string]*sync.Mutex)}
}

func (u *UserLocks) lockFor(userID string) *sync.Mutex {
	u.mu.Lock()
	l, ok := u.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		u.locks[userID] = l
	}
	u.mu.Unlock()
	return l
}

// Lock acquires the critical section for userID. Callers must call the
// returned unlock function exactly once.
func (u *UserLocks) Lock(userID string) (unlock func()) {
	l := u.lockFor(userID)
	l.Lock()
	return l.Unlock
}

// TryLock attempts to acquire the critical section without blocking. It
// returns (unlock, true) on success.
func (u *UserLocks) TryLock(userID string) (unlock func(), ok bool) {
	l := u.lockFor(userID)
	if !l.TryLock() {
		return nil, false
	}
	return l.Unlock, true
}
