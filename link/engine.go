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

// Package link implements the two send/receive endpoints a vehicle
// talks through: a raw-Ethernet Engine for cross-vehicle traffic and a
// SharedEngine mailbox for in-process traffic. Both implement the same
// Engine interface so the NIC layer above is oblivious to which
// transport it sits on.
package link

import (
	"errors"

	"github.com/v2xmesh/substrate/buffer"
	"github.com/v2xmesh/substrate/wire"
)

// ErrWouldBlock is returned by a send path that is momentarily unable to
// accept more data (the mailbox equivalent of EAGAIN/EWOULDBLOCK).
var ErrWouldBlock = errors.New("link: would block")

// Engine is the transport abstraction a NIC is built on. A receive
// returning (0, nil) means the transport is drained for now, mirroring
// the raw socket's EAGAIN/EWOULDBLOCK; it is not an error.
type Engine interface {
	// Address returns the physical address this engine's traffic is
	// addressed from/to.
	Address() wire.PhysicalAddress

	// Bind stores the trampoline the engine invokes every time a frame
	// becomes available to read. The binding is process-local and not
	// re-entrant: a second Bind call replaces the first.
	Bind(callback func())

	// Start begins the engine's dedicated reader goroutine.
	Start() error

	// Stop signals the reader goroutine to exit and waits for it.
	Stop() error

	// Send transmits the buffer's valid bytes. Partial sends are
	// reported as failures; a negative return with a non-nil error
	// indicates the caller should treat the send as failed.
	Send(b *buffer.Buffer) (int, error)

	// Receive drains one frame into dst if one is queued, returning the
	// number of bytes copied. It never blocks.
	Receive(dst *buffer.Buffer) (int, error)
}
