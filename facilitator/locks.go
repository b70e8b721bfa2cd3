package facilitator

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// paymentLocks serializes settlement per payment id. Two concurrent
// settle calls for the same payment must not both move funds; calls for
// different payments proceed in parallel. Entries are reference counted
// and removed once the last holder releases, so the map does not grow
// with payment history.
type paymentLocks struct {
	mu      sync.Mutex
	entries map[common.Hash]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newPaymentLocks() *paymentLocks {
	return &paymentLocks{entries: make(map[common.Hash]*lockEntry)}
}

// Lock acquires the mutex for the given payment id, blocking until any
// in-flight settlement of the same payment finishes. The returned
// function releases the lock.
func (l *paymentLocks) Lock(id common.Hash) func() {
	l.mu.Lock()
	entry, ok := l.entries[id]
	if !ok {
		entry = &lockEntry{}
		l.entries[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.entries, id)
		}
		l.mu.Unlock()
	}
}
