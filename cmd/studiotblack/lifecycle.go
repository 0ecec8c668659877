package main

import (
	"context"
	"sync"
)

// lifecycle owns the context handed to background workers. stop cancels it
// before waiting, so a worker blocked on the context always returns even
// when run exits early.
type lifecycle struct {
	cancel context.CancelFunc

	mu    sync.Mutex
	waits []func()
}

func newLifecycle(parent context.Context) (*lifecycle, context.Context) {
	ctx, cancel := context.WithCancel(parent)
	return &lifecycle{cancel: cancel}, ctx
}

// add registers a blocking shutdown step. Steps run in reverse order.
func (l *lifecycle) add(wait func()) {
	l.mu.Lock()
	l.waits = append(l.waits, wait)
	l.mu.Unlock()
}

func (l *lifecycle) stop() {
	l.cancel()

	l.mu.Lock()
	waits := l.waits
	l.waits = nil
	l.mu.Unlock()

	for i := len(waits) - 1; i >= 0; i-- {
		waits[i]()
	}
}
