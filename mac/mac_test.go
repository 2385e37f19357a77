package mac

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeVerifyRoundTrip(t *testing.T) {
	e := NewPoly1305Engine()
	key := e.GenKey()
	msg := []byte("a random payload exercised by the test")

	tag := e.Compute(key, msg)
	assert.True(t, e.Verify(key, msg, tag))
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	e := NewPoly1305Engine()
	key := e.GenKey()
	msg := []byte("original payload")
	tag := e.Compute(key, msg)

	tampered := append([]byte(nil), msg...)
	tampered[0] ^= 0x01
	assert.False(t, e.Verify(key, tampered, tag))
}

func TestVerifyRejectsTamperedTag(t *testing.T) {
	e := NewPoly1305Engine()
	key := e.GenKey()
	msg := []byte("original payload")
	tag := e.Compute(key, msg)
	tag[0] ^= 0x01

	assert.False(t, e.Verify(key, msg, tag))
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	e := NewPoly1305Engine()
	key := e.GenKey()
	other := e.GenKey()
	msg := []byte("payload")
	tag := e.Compute(key, msg)

	assert.False(t, e.Verify(other, msg, tag))
}

func TestKeyKeeperSetAndGet(t *testing.T) {
	kk := NewKeyKeeper()
	e := NewPoly1305Engine()
	k1, k2 := e.GenKey(), e.GenKey()

	kk.SetKeys([]KeyEntry{
		{ID: 1, Bytes: k1},
		{ID: 2, Bytes: k2},
	})

	got, ok := kk.Key(1)
	require.True(t, ok)
	assert.Equal(t, k1, got)

	_, ok = kk.Key(99)
	assert.False(t, ok)

	// A subsequent SetKeys fully replaces the known set.
	kk.SetKeys([]KeyEntry{{ID: 3, Bytes: k1}})
	_, ok = kk.Key(1)
	assert.False(t, ok)
	_, ok = kk.Key(3)
	assert.True(t, ok)
}
