// Package lock serializes mutations per ledger key. Local covers a single
// process; Redis covers several instances sharing one database.
package lock

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"distledger/internal/domain"
)

type Locker interface {
	// Lock acquires every key, in sorted order, and returns a func that
	// releases them. On error nothing is held.
	Lock(ctx context.Context, keys ...string) (func(), error)
}

func ProductKey(productID string) string {
	return "product:" + productID
}

func SaleKey(groupID string, date string) string {
	return fmt.Sprintf("sale:%s:%s", groupID, date)
}

func RemarkKey(remarkID string) string {
	return "remark:" + remarkID
}

func TakenKey(recordID string) string {
	return "taken:" + recordID
}

func GroupKey(groupID string) string {
	return "group:" + groupID
}

// normalize sorts and dedupes keys so overlapping multi-key callers always
// acquire in the same order.
func normalize(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok || k == "" {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type entry struct {
	ch   chan struct{}
	refs int
}

// Local is an in-process keyed mutex.
type Local struct {
	mu    sync.Mutex
	locks map[string]*entry
}

func NewLocal() *Local {
	return &Local{locks: make(map[string]*entry)}
}

func (l *Local) Lock(ctx context.Context, keys ...string) (func(), error) {
	keys = normalize(keys)
	held := make([]string, 0, len(keys))
	for _, key := range keys {
		if err := l.acquire(ctx, key); err != nil {
			l.release(held)
			return nil, err
		}
		held = append(held, key)
	}
	var once sync.Once
	return func() { once.Do(func() { l.release(held) }) }, nil
}

func (l *Local) acquire(ctx context.Context, key string) error {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
		return fmt.Errorf("%w: waiting for %s: %v", domain.ErrConflict, key, ctx.Err())
	}
}

func (l *Local) release(keys []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(keys) - 1; i >= 0; i-- {
		e, ok := l.locks[keys[i]]
		if !ok {
			continue
		}
		<-e.ch
		e.refs--
		if e.refs == 0 {
			delete(l.locks, keys[i])
		}
	}
}
