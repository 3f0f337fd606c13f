package service

import "sync"

// keyedMutex serializes work per payment id. Two reconciliation attempts for
// the same payment must never interleave; attempts on different payments run
// freely in parallel. Entries are reference counted so the map does not grow
// with the payment table.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[uint64]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: map[uint64]*lockEntry{}}
}

// Lock blocks until the per-key lock is held and returns the unlock func.
func (k *keyedMutex) Lock(key uint64) func() {
	k.mu.Lock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &lockEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
