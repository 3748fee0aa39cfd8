package store

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// lockTable maps a result file to its lock.
//
// Each lock is a channel with capacity one: a send acquires, a receive
// releases. Waiters block on the channel (no spinning, no lost wakeups) and
// give up when their context ends. Locks are created on first reference and
// never removed while the Store lives.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
	wait  prometheus.Observer
}

func newLockTable(wait prometheus.Observer) *lockTable {
	return &lockTable{
		locks: make(map[string]chan struct{}),
		wait:  wait,
	}
}

func (t *lockTable) get(file string) chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()

	l, ok := t.locks[file]
	if !ok {
		l = make(chan struct{}, 1)
		t.locks[file] = l
	}
	return l
}

// acquire blocks until the file's lock is held or ctx ends. The returned
// release func is idempotent and must be called on every path.
func (t *lockTable) acquire(ctx context.Context, file string) (func(), error) {
	l := t.get(file)

	select {
	case l <- struct{}{}:
	default:
		start := time.Now()
		select {
		case l <- struct{}{}:
		case <-ctx.Done():
			return func() {}, ctx.Err()
		}
		if t.wait != nil {
			t.wait.Observe(time.Since(start).Seconds())
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() { <-l })
	}, nil
}

// held reports whether the file's lock is currently held. Used by tests.
func (t *lockTable) held(file string) bool {
	return len(t.get(file)) == 1
}

// size returns the number of distinct files seen.
func (t *lockTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}
