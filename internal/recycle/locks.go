package recycle

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// lockTable hands out exclusive per-resource locks. Locks for one call are
// taken in ascending address order so overlapping disposals cannot deadlock.
type lockTable struct {
	mu    sync.Mutex
	locks map[common.Address]*resourceLock
}

type resourceLock struct {
	held chan struct{}
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[common.Address]*resourceLock)}
}

// acquire locks every resource in keys or none of them. It gives up when ctx
// is done.
func (t *lockTable) acquire(ctx context.Context, keys ...common.Address) (func(), error) {
	ordered := sortedUnique(keys)
	held := make([]common.Address, 0, len(ordered))

	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			t.unlock(held[i])
		}
	}

	for _, key := range ordered {
		lock := t.ref(key)
		select {
		case lock.held <- struct{}{}:
			held = append(held, key)
		case <-ctx.Done():
			t.unref(key)
			release()
			return nil, ctx.Err()
		}
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}

func (t *lockTable) ref(key common.Address) *resourceLock {
	t.mu.Lock()
	defer t.mu.Unlock()

	lock, ok := t.locks[key]
	if !ok {
		lock = &resourceLock{held: make(chan struct{}, 1)}
		t.locks[key] = lock
	}
	lock.refs++
	return lock
}

func (t *lockTable) unref(key common.Address) {
	t.mu.Lock()
	defer t.mu.Unlock()

	lock := t.locks[key]
	lock.refs--
	if lock.refs == 0 {
		delete(t.locks, key)
	}
}

func (t *lockTable) unlock(key common.Address) {
	t.mu.Lock()
	lock := t.locks[key]
	t.mu.Unlock()

	<-lock.held
	t.unref(key)
}

// size reports how many resources are locked or awaited
func (t *lockTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}

func sortedUnique(keys []common.Address) []common.Address {
	out := make([]common.Address, 0, len(keys))
	seen := make(map[common.Address]struct{}, len(keys))
	for _, k := range keys {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}
