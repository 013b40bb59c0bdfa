// Package lock provides per-key mutual exclusion. Each session is one
// key: operations on the same session serialise, operations on different
// sessions never contend.
package lock

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// Keyed hands out a mutex per key on demand and frees it once the last
// holder releases. The section is meant to cover only short in-memory
// transformations, so a plain mutex per key is enough.
type Keyed struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewKeyed constructs an empty keyed lock registry.
func NewKeyed() *Keyed {
	return &Keyed{entries: make(map[string]*entry)}
}

// Acquire blocks until the exclusive section for key is held and returns
// the release function.
func (k *Keyed) Acquire(key string) (release func()) {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &entry{}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()
			k.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(k.entries, key)
			}
			k.mu.Unlock()
		})
	}
}
