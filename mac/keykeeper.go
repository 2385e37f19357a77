package mac

import "sync"

// KeyEntry is an RSU id paired with the 32-byte key currently assigned
// to that RSU's quadrant.
type KeyEntry struct {
	ID    int32
	Bytes [KeySize]byte
}

// Key returns the entry's key material.
func (e KeyEntry) Key() Key {
	return Key(e.Bytes)
}

// KeyKeeper is the per-vehicle store of current RSU keys, keyed by
// KeyEntry.ID.
type KeyKeeper struct {
	mu   sync.RWMutex
	keys map[int32]Key
}

// NewKeyKeeper returns an empty KeyKeeper.
func NewKeyKeeper() *KeyKeeper {
	return &KeyKeeper{keys: make(map[int32]Key)}
}

// SetKeys replaces the entire known key set with the freshly received
// batch.
func (k *KeyKeeper) SetKeys(entries []KeyEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.keys = make(map[int32]Key, len(entries))
	for _, e := range entries {
		k.keys[e.ID] = e.Key()
	}
}

// Key returns the key for rsuID and whether it is known.
func (k *KeyKeeper) Key(rsuID int32) (Key, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	key, ok := k.keys[rsuID]
	return key, ok
}
