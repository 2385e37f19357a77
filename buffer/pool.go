package buffer

import (
	"sync"

	"github.com/v2xmesh/substrate/wire"
)

// Stats counts pool operations for the stats exporter.
type Stats struct {
	mu         sync.Mutex
	allocs     uint64
	frees      uint64
	exhausted  uint64
	doubleFree uint64
	foreign    uint64
}

// Snapshot is a point-in-time copy of Stats, safe to read without the lock.
type Snapshot struct {
	Allocs     uint64
	Frees      uint64
	InUse      uint64
	Exhausted  uint64
	DoubleFree uint64
	Foreign    uint64
}

func (s *Stats) snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Allocs:     s.allocs,
		Frees:      s.frees,
		InUse:      s.allocs - s.frees,
		Exhausted:  s.exhausted,
		DoubleFree: s.doubleFree,
		Foreign:    s.foreign,
	}
}

// Pool is a fixed-size free-list of Buffers. A single mutex keeps
// alloc/free mutually exclusive.
type Pool struct {
	mu      sync.Mutex
	buffers []*Buffer
	owner   map[*Buffer]bool
	stats   Stats
}

// NewPool allocates a pool of n fixed-capacity buffers.
func NewPool(n int) *Pool {
	p := &Pool{
		buffers: make([]*Buffer, n),
		owner:   make(map[*Buffer]bool, n),
	}
	for i := range p.buffers {
		b := &Buffer{}
		p.buffers[i] = b
		p.owner[b] = true
	}
	return p
}

// Alloc returns the first non-in-use buffer, marking it in use, zeroing
// its header fields, setting its source MAC and an initial size of
// header+payload clamped to the Ethernet minimum frame size. It fails
// (returns nil) when every buffer in the pool is in use; callers on the
// signal-delivery path must treat that as a drop, never block.
func (p *Pool) Alloc(src wire.PhysicalAddress, payloadSize int, headerSize int) *Buffer {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, b := range p.buffers {
		if b.inUse {
			continue
		}
		b.reset()
		b.inUse = true
		b.srcMAC = src
		total := headerSize + payloadSize
		if total < wire.MinFrameSize {
			total = wire.MinFrameSize
		}
		b.SetSize(total)
		p.stats.mu.Lock()
		p.stats.allocs++
		p.stats.mu.Unlock()
		return b
	}
	p.stats.mu.Lock()
	p.stats.exhausted++
	p.stats.mu.Unlock()
	return nil
}

// Free returns a buffer to the pool, zeroing its contents. Freeing a
// buffer that does not belong to this pool, or a buffer that is already
// free, is rejected (logged by the caller) rather than panicking, since
// both can occur during shutdown races.
func (p *Pool) Free(b *Buffer) error {
	if b == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.owner[b] {
		p.stats.mu.Lock()
		p.stats.foreign++
		p.stats.mu.Unlock()
		return errForeignBuffer
	}
	if !b.inUse {
		p.stats.mu.Lock()
		p.stats.doubleFree++
		p.stats.mu.Unlock()
		return errDoubleFree
	}
	b.reset()
	b.inUse = false
	p.stats.mu.Lock()
	p.stats.frees++
	p.stats.mu.Unlock()
	return nil
}

// Owns reports whether b belongs to this pool.
func (p *Pool) Owns(b *Buffer) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.owner[b]
}

// Stats returns a point-in-time snapshot of pool counters.
func (p *Pool) Stats() Snapshot {
	return p.stats.snapshot()
}

// Size returns the total number of buffers owned by the pool.
func (p *Pool) Size() int {
	return len(p.buffers)
}
