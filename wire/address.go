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

// Package wire implements the on-the-wire header layout shared by the
// in-process and cross-vehicle transports: physical addresses, the
// protocol Address tuple, the Control byte and Condition matching rule,
// and the Lite/Full packet headers.
package wire

import (
	"bytes"
	"fmt"
)

// PhysicalAddressSize is the width of a link-layer address in bytes.
const PhysicalAddressSize = 6

// PhysicalAddress is a six-octet link identifier. Equality is
// byte-equality; ordering is lexicographic.
type PhysicalAddress [PhysicalAddressSize]byte

// BroadcastPhysicalAddress is the distinguished all-ones value.
var BroadcastPhysicalAddress = PhysicalAddress{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// String renders the address as colon-separated hex, like net.HardwareAddr.
func (p PhysicalAddress) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", p[0], p[1], p[2], p[3], p[4], p[5])
}

// Less reports whether p sorts before o lexicographically.
func (p PhysicalAddress) Less(o PhysicalAddress) bool {
	return bytes.Compare(p[:], o[:]) < 0
}

// IsBroadcast reports whether p is the all-ones broadcast address.
func (p PhysicalAddress) IsBroadcast() bool {
	return p == BroadcastPhysicalAddress
}

// SystemID is a process-lifetime-unique identifier for a vehicle. Zero
// denotes cross-vehicle broadcast.
type SystemID uint32

// BroadcastSystemID denotes cross-vehicle broadcast.
const BroadcastSystemID SystemID = 0

// Port is a 16-bit identifier of an in-vehicle component.
type Port uint16

// BroadcastPort denotes intra-vehicle broadcast.
const BroadcastPort Port = 0xFFFF

// Less orders ports numerically, the rank order used by the protocol's
// observer registry.
func (p Port) Less(o Port) bool {
	return p < o
}

// Matches reports whether a frame addressed to o should be delivered to
// an observer bound to p. Broadcast is resolved by enumeration before
// dispatch, so this is plain equality.
func (p Port) Matches(o Port) bool {
	return p == o
}

// Address is (PhysicalAddress, SystemID, Port), totally ordered by
// lexicographic composition.
type Address struct {
	Phys PhysicalAddress
	Sys  SystemID
	Port Port
}

// NewAddress builds an Address.
func NewAddress(phys PhysicalAddress, sys SystemID, port Port) Address {
	return Address{Phys: phys, Sys: sys, Port: port}
}

// Zero is the default, invalid Address.
var Zero = Address{}

// Equal compares physical address and port only; SystemID is not part
// of equality.
func (a Address) Equal(o Address) bool {
	return a.Phys == o.Phys && a.Port == o.Port
}

// Less gives the total order: PhysicalAddress, then SystemID, then Port.
func (a Address) Less(o Address) bool {
	if a.Phys != o.Phys {
		return a.Phys.Less(o.Phys)
	}
	if a.Sys != o.Sys {
		return a.Sys < o.Sys
	}
	return a.Port < o.Port
}

// Valid reports whether a has a concrete physical address and a nonzero
// port, the invariant required of a message's source Address.
func (a Address) Valid() bool {
	return a.Phys != PhysicalAddress{} && a.Port != 0
}

func (a Address) String() string {
	return fmt.Sprintf("%s/%d/%d", a.Phys, a.Sys, a.Port)
}
