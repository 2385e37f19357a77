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

// Package nic binds a buffer.Pool to a link.Engine and turns the
// engine's frame-arrived callback into a drain-and-dispatch loop that
// feeds the protocol layer above.
package nic

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/v2xmesh/substrate/buffer"
	"github.com/v2xmesh/substrate/link"
	"github.com/v2xmesh/substrate/wire"
)

const headerOverhead = wire.FullHeaderSize

// Dispatcher is anything that wants first look at an inbound frame. It
// returns true if it consumed the buffer (and is responsible for
// eventually freeing it), false if the NIC should free it itself.
type Dispatcher interface {
	Dispatch(nic *NIC, b *buffer.Buffer) bool
}

// Counters tracks per-NIC send/receive/drop activity for the stats
// exporter, independent of the underlying Engine's own counters.
type Counters struct {
	Sent      uint64
	SendDrops uint64
	Received  uint64
	Dropped   uint64
	Echoed    uint64
}

// NIC couples a buffer pool to a transport Engine and a Dispatcher,
// replaying every arrived frame into the dispatcher and recycling
// buffers the dispatcher doesn't keep.
type NIC struct {
	engine     link.Engine
	pool       *buffer.Pool
	dispatcher Dispatcher

	countersMu sync.Mutex
	counters   Counters

	selfLoop *selfLoopFilter
}

// New builds a NIC over engine and pool. echoFilter enables suppression
// of this NIC's own frames arriving back off the medium; it belongs on
// the raw link, never on the in-process mailbox, whose deliveries are
// self-sends on purpose. The dispatcher is set later with Bind; frames
// that arrive before one is bound are dropped and freed.
func New(engine link.Engine, pool *buffer.Pool, echoFilter bool) *NIC {
	n := &NIC{engine: engine, pool: pool}
	if echoFilter {
		n.selfLoop = newSelfLoopFilter()
	}
	engine.Bind(n.onFrameArrived)
	return n
}

// Bind installs the dispatcher that receives every inbound frame.
func (n *NIC) Bind(d Dispatcher) {
	n.dispatcher = d
}

// Address returns the NIC's link-layer address.
func (n *NIC) Address() wire.PhysicalAddress {
	return n.engine.Address()
}

// Start starts the underlying engine's reader goroutine.
func (n *NIC) Start() error {
	return n.engine.Start()
}

// Stop stops the underlying engine's reader goroutine.
func (n *NIC) Stop() error {
	return n.engine.Stop()
}

// Pool exposes the backing buffer pool so callers can allocate outbound
// buffers sized for this NIC.
func (n *NIC) Pool() *buffer.Pool {
	return n.pool
}

// Alloc is a convenience wrapper around the pool allocation used for
// every outbound frame this NIC sends.
func (n *NIC) Alloc(payloadSize, headerSize int) *buffer.Buffer {
	return n.pool.Alloc(n.engine.Address(), payloadSize, headerSize)
}

// Send transmits b and frees it regardless of outcome, so callers never
// leak a buffer on a failed send.
func (n *NIC) Send(b *buffer.Buffer) error {
	defer n.pool.Free(b)
	if n.selfLoop != nil {
		n.selfLoop.recordSent(b.Data()[:b.Size()])
	}
	_, err := n.engine.Send(b)
	n.countersMu.Lock()
	if err != nil {
		n.counters.SendDrops++
	} else {
		n.counters.Sent++
	}
	n.countersMu.Unlock()
	return err
}

// Counters returns a point-in-time copy of this NIC's dispatch counters.
func (n *NIC) Counters() Counters {
	n.countersMu.Lock()
	defer n.countersMu.Unlock()
	return n.counters
}

// onFrameArrived drains every currently-queued frame from the engine,
// handing each to the dispatcher. A NIC with no bound dispatcher frees
// every frame it drains.
func (n *NIC) onFrameArrived() {
	for {
		b := n.pool.Alloc(n.engine.Address(), wire.MaxFrameSize-headerOverhead, headerOverhead)
		if b == nil {
			log.Warn("nic: pool exhausted while draining arrived frames")
			return
		}
		size, err := n.engine.Receive(b)
		if err != nil {
			n.pool.Free(b)
			log.Debugf("nic: receive error: %v", err)
			return
		}
		if size == 0 {
			n.pool.Free(b)
			return
		}
		if n.selfLoop != nil && n.selfLoop.isEcho(b.Data()[:size]) {
			n.countersMu.Lock()
			n.counters.Echoed++
			n.countersMu.Unlock()
			n.pool.Free(b)
			continue
		}

		n.countersMu.Lock()
		n.counters.Received++
		n.countersMu.Unlock()

		if n.dispatcher == nil || !n.dispatcher.Dispatch(n, b) {
			n.countersMu.Lock()
			n.counters.Dropped++
			n.countersMu.Unlock()
			n.pool.Free(b)
		}
	}
}
