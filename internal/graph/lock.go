package graph

import (
	"sync"

	"github.com/roach88/d1lod/internal/ir"
)

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

// locker hands out one mutex per key. Entries are reference-counted and
// dropped once nobody holds or waits for them.
type locker struct {
	mu    sync.Mutex
	locks map[ir.IRI]*keyedLock
}

func newLocker() *locker {
	return &locker{locks: make(map[ir.IRI]*keyedLock)}
}

// lock blocks until key is free and returns its release function.
func (l *locker) lock(key ir.IRI) func() {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyedLock{}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	kl.mu.Lock()
	return func() {
		kl.mu.Unlock()
		l.mu.Lock()
		kl.refs--
		if kl.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}

// size returns the number of live keys.
func (l *locker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
