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

// Package comm implements the blocking, port-addressed channel between
// user components and the protocol demultiplexer. A Communicator
// attaches to a Protocol's port registry at construction and detaches
// at Close, forwarding sends and buffering arrived frames for a single
// blocking consumer.
package comm

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/v2xmesh/substrate/buffer"
	"github.com/v2xmesh/substrate/observer"
	"github.com/v2xmesh/substrate/v2xproto"
	"github.com/v2xmesh/substrate/wire"
)

// defaultQueueDepth bounds how many undelivered frames a Communicator
// holds before it starts dropping the oldest.
const defaultQueueDepth = 64

// Protocol is the narrow surface Communicator needs: send a message,
// attach/detach this Communicator as the observer of one port, and
// release a delivered buffer back to its pool.
type Protocol interface {
	Send(dest wire.Address, ctrl wire.Control, payload []byte) error
	Attach(port wire.Port, o v2xproto.PortObserver)
	Detach(port wire.Port, o v2xproto.PortObserver)
	Free(b *buffer.Buffer)
}

// Message is the caller-facing, decoded view of a packet: source, dest,
// control byte, sender coordinates, timestamp, MAC tag and payload.
type Message struct {
	Source    wire.Address
	Dest      wire.Address
	Ctrl      wire.Control
	CoordX    float64
	CoordY    float64
	Timestamp uint64
	Tag       wire.MacTag
	Payload   []byte

	// OriginalSize is the payload size the sender declared, before any
	// truncation to the receive buffer's capacity, so a truncated
	// delivery is detectable rather than silent.
	OriginalSize int
}

// Communicator is a blocking, port-addressed channel over a Protocol.
// Its receive queue is a ConcurrentObserver: the protocol's dispatcher
// enqueues deliveries without blocking, the consumer blocks in Receive.
type Communicator struct {
	proto Protocol
	port  wire.Port
	queue *observer.ConcurrentObserver[v2xproto.Delivery, wire.Port]

	mu     sync.Mutex
	closed bool
}

// New builds a Communicator bound to port on proto and attaches it to
// proto's port registry immediately.
func New(proto Protocol, port wire.Port) *Communicator {
	c := &Communicator{
		proto: proto,
		port:  port,
		queue: observer.NewConcurrentObserver[v2xproto.Delivery, wire.Port](defaultQueueDepth),
	}
	c.queue.OnDrop(func(d v2xproto.Delivery) { proto.Free(d.Buf) })
	proto.Attach(port, c)
	return c
}

// Send forwards msg to the Protocol using msg's own dest address,
// control byte and payload.
func (c *Communicator) Send(msg Message) error {
	return c.proto.Send(msg.Dest, msg.Ctrl, msg.Payload)
}

// Update implements the port registry's observer boundary: the
// dispatcher hands over a Delivery, Update enqueues it for a future
// Receive.
func (c *Communicator) Update(port wire.Port, d v2xproto.Delivery) {
	c.queue.Update(port, d)
}

// Receive blocks until a frame arrives, ctx is cancelled, or Close is
// called. Close delivers io.EOF to any blocked or future Receive so a
// consumer drains and observes end-of-stream. The delivered buffer is
// released back to its pool before Receive returns; Message.Payload is
// the Communicator's own copy.
func (c *Communicator) Receive(ctx context.Context) (Message, error) {
	d, err := c.queue.Updated(ctx)
	if err != nil {
		if errors.Is(err, observer.ErrClosed) {
			return Message{}, io.EOF
		}
		return Message{}, err
	}
	msg, err := c.decode(d)
	c.proto.Free(d.Buf)
	return msg, err
}

func (c *Communicator) decode(d v2xproto.Delivery) (Message, error) {
	frame, err := wire.DecodeFrame(d.Buf.Data()[:d.Buf.Size()], d.Full)
	if err != nil {
		return Message{}, err
	}
	payload := make([]byte, len(frame.Payload))
	copy(payload, frame.Payload)
	return Message{
		Source:       frame.Origin,
		Dest:         frame.Dest,
		Ctrl:         frame.Ctrl,
		CoordX:       frame.CoordX,
		CoordY:       frame.CoordY,
		Timestamp:    frame.Timestamp,
		Tag:          frame.Tag,
		Payload:      payload,
		OriginalSize: int(frame.PayloadSize),
	}, nil
}

// Close detaches this Communicator from its Protocol, releases any
// still-queued buffers and unblocks any pending or future Receive with
// io.EOF. Closing twice is a no-op.
func (c *Communicator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.proto.Detach(c.port, c)
	for _, d := range c.queue.Drain() {
		c.proto.Free(d.Buf)
	}
	c.queue.Close()
}
