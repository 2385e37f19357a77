package nic

import (
	"sync"

	"github.com/OneOfOne/xxhash"
)

// selfLoopDepth bounds how many of this NIC's own recent sends are
// remembered for echo detection.
const selfLoopDepth = 64

// selfLoopFilter replaces the cooperative broadcast_already_sent flag
// with the fix the design notes call for: every outbound frame is
// tagged by the hash of its own bytes, and a frame this NIC sees arrive
// bearing a hash it just sent is an echo of its own broadcast, not a
// new message, and is dropped at this layer rather than passed up to
// the protocol dispatcher.
type selfLoopFilter struct {
	mu   sync.Mutex
	ring [selfLoopDepth]uint64
	seen map[uint64]struct{}
	next int
}

func newSelfLoopFilter() *selfLoopFilter {
	return &selfLoopFilter{seen: make(map[uint64]struct{}, selfLoopDepth)}
}

func (f *selfLoopFilter) recordSent(frame []byte) {
	h := xxhash.Checksum64(frame)
	f.mu.Lock()
	defer f.mu.Unlock()
	if old := f.ring[f.next]; old != 0 {
		delete(f.seen, old)
	}
	f.ring[f.next] = h
	f.seen[h] = struct{}{}
	f.next = (f.next + 1) % selfLoopDepth
}

// isEcho reports whether frame matches one of this NIC's own recent
// sends, and forgets it so a legitimate retransmission of identical
// bytes is not suppressed a second time.
func (f *selfLoopFilter) isEcho(frame []byte) bool {
	h := xxhash.Checksum64(frame)
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.seen[h]; !ok {
		return false
	}
	delete(f.seen, h)
	return true
}
