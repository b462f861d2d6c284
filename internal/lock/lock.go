// Package lock serializes syncs of the same remote ticket. The pipeline holds
// a ticket-scoped lock around the synchronizer call; syncs for different
// tickets run freely in parallel.
package lock

import (
	"context"
	"sync"
)

// TicketLocker is the scoped-acquisition contract. Acquire blocks until the
// per-ticket scope is held and returns its release function; callers must
// release on every exit path, including failures.
type TicketLocker interface {
	Acquire(ctx context.Context, ticketID int64) (release func(), err error)
}

// Nop performs no locking. It is the default; deployments that process events
// concurrently or across processes must configure a real strategy.
type Nop struct{}

func (Nop) Acquire(ctx context.Context, ticketID int64) (func(), error) {
	return func() {}, nil
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

// KeyedMutex serializes same-ticket syncs within a single process using one
// mutex per in-flight ticket id. Entries are dropped once the last holder
// releases, so the map stays bounded by concurrency, not by ticket count.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[int64]*keyedEntry
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[int64]*keyedEntry)}
}

func (k *KeyedMutex) Acquire(ctx context.Context, ticketID int64) (func(), error) {
	k.mu.Lock()
	e, ok := k.locks[ticketID]
	if !ok {
		e = &keyedEntry{}
		k.locks[ticketID] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()

	var once sync.Once
	release := func() {
		once.Do(func() {
			e.mu.Unlock()
			k.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(k.locks, ticketID)
			}
			k.mu.Unlock()
		})
	}
	return release, nil
}
