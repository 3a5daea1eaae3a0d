// Package locker provides per-key mutual exclusion for the ledger core.
// Balance mutations lock the account; settlement and weight mutations share
// the event key, so the check-then-pay sequence runs at most once and no
// weight can change once an event is settled.
package locker

import (
	"context"
	"sort"
	"sync"
)

// Locker serializes critical sections by string key. Acquire blocks until
// the key is held or ctx is done, then returns a release function.
type Locker interface {
	Acquire(ctx context.Context, key string) (func(), error)
}

// KeyedMutex is an in-process Locker. Locks are created on first use and
// dropped once no goroutine holds or waits on them.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyLock)}
}

func (k *KeyedMutex) Acquire(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{ch: make(chan struct{}, 1)}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		k.put(key, l)
		return nil, ctx.Err()
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			<-l.ch
			k.put(key, l)
		})
	}
	return release, nil
}

func (k *KeyedMutex) put(key string, l *keyLock) {
	k.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()
}

// AcquireAll acquires several keys in sorted order so that two callers
// locking overlapping key sets cannot deadlock. The returned release
// function unlocks everything.
func AcquireAll(ctx context.Context, l Locker, keys ...string) (func(), error) {
	sorted := make([]string, len(keys))
	copy(sorted, keys)
	sort.Strings(sorted)

	releases := make([]func(), 0, len(sorted))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for _, key := range sorted {
		release, err := l.Acquire(ctx, key)
		if err != nil {
			releaseAll()
			return nil, err
		}
		releases = append(releases, release)
	}
	return releaseAll, nil
}

// Key builders shared by the services.

func EventKey(eventID string) string { return "event:" + eventID }

func AccountKey(accountID string) string { return "account:" + accountID }
