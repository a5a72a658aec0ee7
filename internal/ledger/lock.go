package ledger

import (
	"context"
	"sort"
	"sync"
)

// Unlock releases every key acquired by a Lock call.
type Unlock func()

// Locker grants exclusive access to a set of keys for the duration of a
// read-modify-write sequence. Keys are deduplicated and acquired in lexical
// order so two callers locking overlapping sets cannot deadlock.
type Locker interface {
	Lock(ctx context.Context, keys ...string) (Unlock, error)
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

// MemoryLocker is an in-process keyed mutex. Entries are reference counted
// and dropped once no goroutine holds or waits on them.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

// NewMemoryLocker builds an in-process locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]*keyLock)}
}

// Lock acquires every key or none of them.
func (m *MemoryLocker) Lock(ctx context.Context, keys ...string) (Unlock, error) {
	ordered := orderKeys(keys)
	acquired := make([]string, 0, len(ordered))
	for _, key := range ordered {
		if err := m.acquire(ctx, key); err != nil {
			m.releaseAll(acquired)
			return nil, err
		}
		acquired = append(acquired, key)
	}
	var once sync.Once
	return func() { once.Do(func() { m.releaseAll(acquired) }) }, nil
}

func (m *MemoryLocker) acquire(ctx context.Context, key string) error {
	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &keyLock{ch: make(chan struct{}, 1)}
		m.locks[key] = l
	}
	l.refs++
	m.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		m.release(key, false)
		return ctx.Err()
	}
}

func (m *MemoryLocker) release(key string, held bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.locks[key]
	if held {
		<-l.ch
	}
	l.refs--
	if l.refs == 0 {
		delete(m.locks, key)
	}
}

func (m *MemoryLocker) releaseAll(keys []string) {
	for i := len(keys) - 1; i >= 0; i-- {
		m.release(keys[i], true)
	}
}

func orderKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
