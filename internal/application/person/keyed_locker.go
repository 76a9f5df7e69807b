package person

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// KeyedLocker serializes work per person while letting different persons
// proceed in parallel. Entries are reference counted and dropped once no
// goroutine holds or waits for them.
type KeyedLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*keyedEntry
}

type keyedEntry struct {
	// sem is a one-slot channel so waiters can give up on ctx
	sem  chan struct{}
	refs int
}

// NewKeyedLocker creates an empty locker
func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{locks: make(map[uuid.UUID]*keyedEntry)}
}

// Lock blocks until id is free or ctx is done. The returned function
// releases the lock and must be called exactly once.
func (l *KeyedLocker) Lock(ctx context.Context, id uuid.UUID) (func(), error) {
	l.mu.Lock()
	e, ok := l.locks[id]
	if !ok {
		e = &keyedEntry{sem: make(chan struct{}, 1)}
		l.locks[id] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(id, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.sem
			l.release(id, e)
		})
	}, nil
}

func (l *KeyedLocker) release(id uuid.UUID, e *keyedEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, id)
	}
}

// Len returns the number of ids currently locked or awaited
func (l *KeyedLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
