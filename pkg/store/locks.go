package store

import "sync"

// Pebble has no multi-key transactions, so mutations of one logical record
// (a user, a conversation, a message) serialize through a per-key mutex.
// Entries are reference counted and removed when the last holder releases,
// so the map does not grow with the keyspace.

type keyLock struct {
	mu   sync.Mutex
	refs int
}

var (
	locksMu sync.Mutex
	locks   = map[string]*keyLock{}
)

// LockKey acquires the mutex for key and returns its release func.
func LockKey(key string) func() {
	locksMu.Lock()
	l, ok := locks[key]
	if !ok {
		l = &keyLock{}
		locks[key] = l
	}
	l.refs++
	locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(locks, key)
		}
		locksMu.Unlock()
	}
}
