package observer

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Updated once the observer has been closed and
// its queue drained.
var ErrClosed = errors.New("observer: closed")

// ConcurrentObserver adds a FIFO queue to the bare Observer interface:
// Update enqueues a datum, Updated blocks until one is available. The
// queue is a buffered channel, which already is a counting semaphore
// with storage, so no separate semaphore is needed.
type ConcurrentObserver[D any, C any] struct {
	queue chan D

	mu     sync.Mutex
	closed bool
	done   chan struct{}
	dropFn func(D)
}

// NewConcurrentObserver returns a ConcurrentObserver with the given
// queue depth.
func NewConcurrentObserver[D any, C any](depth int) *ConcurrentObserver[D, C] {
	if depth <= 0 {
		depth = 1
	}
	return &ConcurrentObserver[D, C]{
		queue: make(chan D, depth),
		done:  make(chan struct{}),
	}
}

// OnDrop installs fn to be called with each datum displaced from a full
// queue, so owners of pooled resources can release them.
func (c *ConcurrentObserver[D, C]) OnDrop(fn func(D)) {
	c.mu.Lock()
	c.dropFn = fn
	c.mu.Unlock()
}

// Update enqueues data for a future Updated call. It never blocks the
// notifying dispatcher: when the queue is full the oldest datum is
// dropped to make room.
func (c *ConcurrentObserver[D, C]) Update(_ C, data D) {
	select {
	case c.queue <- data:
		return
	default:
	}
	select {
	case old := <-c.queue:
		c.drop(old)
	default:
	}
	select {
	case c.queue <- data:
	default:
		c.drop(data)
	}
}

func (c *ConcurrentObserver[D, C]) drop(d D) {
	c.mu.Lock()
	fn := c.dropFn
	c.mu.Unlock()
	if fn != nil {
		fn(d)
	}
}

// Updated blocks until a datum is available, ctx is done, or the
// observer is closed with its queue empty.
func (c *ConcurrentObserver[D, C]) Updated(ctx context.Context) (D, error) {
	var zero D
	select {
	case d := <-c.queue:
		return d, nil
	default:
	}
	select {
	case d := <-c.queue:
		return d, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-c.done:
		// Closed while waiting; hand out anything enqueued before the close.
		select {
		case d := <-c.queue:
			return d, nil
		default:
			return zero, ErrClosed
		}
	}
}

// Drain returns every currently queued datum without blocking.
func (c *ConcurrentObserver[D, C]) Drain() []D {
	var out []D
	for {
		select {
		case d := <-c.queue:
			out = append(out, d)
		default:
			return out
		}
	}
}

// Close unblocks pending and future Updated calls with ErrClosed once
// the queue is drained. Closing twice is a no-op.
func (c *ConcurrentObserver[D, C]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}
