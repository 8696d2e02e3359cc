package points

import "sync"

type pairKey struct {
	userID, streamerID int64
}

// keyLocks serializes work per (user, streamer) pair. Entries are reference
// counted and removed when no goroutine holds or waits on them.
type keyLocks struct {
	mu    sync.Mutex
	locks map[pairKey]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[pairKey]*keyLock)}
}

// Lock blocks until the pair is free and returns the matching unlock.
func (k *keyLocks) Lock(key pairKey) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyLocks) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
