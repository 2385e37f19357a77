package rsu

import (
	"context"
	"sync"
)

// barrier is a reusable (cyclic) rendezvous point for n goroutines,
// used to keep every RSU in a group on the same rotation phase. Wait is
// cancellable so a group shuts down cleanly even when its members are
// split across phases.
type barrier struct {
	mu      sync.Mutex
	n       int
	count   int
	release chan struct{}
}

// newBarrier returns a barrier that releases once n goroutines have
// called Wait.
func newBarrier(n int) *barrier {
	return &barrier{n: n, release: make(chan struct{})}
}

// Wait blocks until n goroutines have called Wait since the barrier
// last released, or ctx is done.
func (b *barrier) Wait(ctx context.Context) error {
	b.mu.Lock()
	rel := b.release
	b.count++
	if b.count == b.n {
		b.count = 0
		b.release = make(chan struct{})
		close(rel)
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	select {
	case <-rel:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
