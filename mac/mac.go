/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package mac implements the authenticated-publisher integrity layer:
// an Engine that computes and verifies message tags, the KeyKeeper that
// stores the rotating per-quadrant keys, and the quadrant lookup that
// picks the right key for a sender position.
package mac

import (
	"crypto/rand"
	"crypto/subtle"

	"golang.org/x/crypto/poly1305"

	"github.com/v2xmesh/substrate/wire"
)

// KeySize is the width of a raw MAC key in bytes.
const KeySize = 32

// Key is a raw symmetric key.
type Key [KeySize]byte

// Engine is the external MAC collaborator: compute a tag over a message
// under a key, verify a tag, and generate a fresh random key.
type Engine interface {
	Compute(key Key, message []byte) wire.MacTag
	Verify(key Key, message []byte, tag wire.MacTag) bool
	GenKey() Key
}

// Poly1305Engine computes tags with golang.org/x/crypto/poly1305. Keys
// are one-time 32-byte values, which is what the RSU rotation hands out
// per quadrant per epoch.
type Poly1305Engine struct{}

// NewPoly1305Engine returns the default MAC engine.
func NewPoly1305Engine() Poly1305Engine {
	return Poly1305Engine{}
}

// Compute returns the Poly1305 tag of message under key.
func (Poly1305Engine) Compute(key Key, message []byte) wire.MacTag {
	var out [poly1305.TagSize]byte
	poly1305.Sum(&out, message, (*[32]byte)(&key))
	return wire.MacTag(out)
}

// Verify reports whether tag is the correct Poly1305 tag of message
// under key, using a constant-time comparison.
func (e Poly1305Engine) Verify(key Key, message []byte, tag wire.MacTag) bool {
	want := e.Compute(key, message)
	return subtle.ConstantTimeCompare(want[:], tag[:]) == 1
}

// GenKey returns a fresh random 32-byte key.
func (Poly1305Engine) GenKey() Key {
	var k Key
	if _, err := rand.Read(k[:]); err != nil {
		panic("mac: failed to read random key material: " + err.Error())
	}
	return k
}
