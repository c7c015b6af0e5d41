package proximity

import "sync"

// lockEntry is one bucket's mutex plus a reference count so idle entries can
// be dropped from the map.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// KeyedMutex serializes operations per coordinate bucket. Add and refresh
// share a read-check-write sequence against the store; holding the bucket
// lock across it closes the window where two requests for the same city
// could both pass the duplicate check.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

// NewKeyedMutex returns an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*lockEntry)}
}

// Lock acquires the mutex for key and returns the matching unlock func.
func (km *KeyedMutex) Lock(key string) (unlock func()) {
	km.mu.Lock()
	entry, ok := km.locks[key]
	if !ok {
		entry = &lockEntry{}
		km.locks[key] = entry
	}
	entry.refs++
	km.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		km.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(km.locks, key)
		}
		km.mu.Unlock()
	}
}
