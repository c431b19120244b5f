package runtime

import (
	"slices"
	"sync"

	"github.com/samber/lo"
)

// KeyedLocker serialises work per key, typically a username, so that the
// read-modify-replace cycles on a Ledger record never interleave.
// Entries are reference counted and dropped once nobody holds or waits on them.
type KeyedLocker struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{locks: make(map[string]*keyedLock)}
}

// Lock acquires every key and returns the function releasing them.
// Keys are deduplicated and taken in lexical order, two callers locking
// overlapping sets can't deadlock.
func (k *KeyedLocker) Lock(keys ...string) (unlock func()) {
	ordered := lo.Uniq(keys)
	slices.Sort(ordered)

	held := make([]*keyedLock, 0, len(ordered))
	for _, key := range ordered {
		l := k.acquire(key)
		l.mu.Lock()
		held = append(held, l)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
			k.release(ordered[i])
		}
	}
}

func (k *KeyedLocker) acquire(key string) *keyedLock {
	k.mu.Lock()
	defer k.mu.Unlock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	return l
}

func (k *KeyedLocker) release(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l, ok := k.locks[key]
	if !ok {
		return
	}
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
}

// Len returns the number of keys currently held or awaited.
func (k *KeyedLocker) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
