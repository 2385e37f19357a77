package rsu

import (
	"sync"

	"github.com/v2xmesh/substrate/mac"
)

// Matrix is the key table shared by every RSU in a group: one slot per
// RSU, written by that RSU alone, plus an epoch counter advanced by
// the single designated RSU.
type Matrix struct {
	mu    sync.Mutex
	keys  map[int32]mac.Key
	epoch uint32
}

// NewMatrix returns an empty, zero-epoch Matrix.
func NewMatrix() *Matrix {
	return &Matrix{keys: make(map[int32]mac.Key)}
}

// Epoch returns the current epoch counter.
func (m *Matrix) Epoch() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epoch
}

// writeIfFirstEpoch writes key into id's slot only while the epoch
// counter is zero, so a slot is renewed once per full epoch cycle.
func (m *Matrix) writeIfFirstEpoch(id int32, key mac.Key) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.epoch == 0 {
		m.keys[id] = key
	}
}

// advanceEpoch increments the epoch counter modulo renewInterval.
// Only the designated RSU calls this.
func (m *Matrix) advanceEpoch(renewInterval uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.epoch = (m.epoch + 1) % renewInterval
}

// entries returns the KeyEntry records present for the given ids, in id
// order, skipping ids with no key yet written.
func (m *Matrix) entries(ids []int32) []mac.KeyEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]mac.KeyEntry, 0, len(ids))
	for _, id := range ids {
		if k, ok := m.keys[id]; ok {
			out = append(out, mac.KeyEntry{ID: id, Bytes: k})
		}
	}
	return out
}
