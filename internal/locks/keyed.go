// Package locks provides a keyed mutex for serializing mutations scoped to
// a single entity, such as all vote and like writes against one poll.
package locks

import "sync"

// KeyedMutex hands out one mutex per key. Two goroutines locking the same
// key serialize; different keys proceed independently. Entries are created
// lazily and reference-counted so an idle key holds no memory.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedMutex creates a new keyed mutex
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{
		locks: make(map[string]*entry),
	}
}

// Lock acquires the mutex for the given key, blocking until it is free.
func (k *KeyedMutex) Lock(key string) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &entry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
}

// Unlock releases the mutex for the given key. The entry is dropped once
// no goroutine holds or waits on it.
func (k *KeyedMutex) Unlock(key string) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		k.mu.Unlock()
		panic("locks: unlock of unlocked key " + key)
	}
	e.refs--
	if e.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()

	e.mu.Unlock()
}

// Len returns the number of keys currently held or contended.
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
