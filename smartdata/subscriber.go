package smartdata

import (
	"context"

	"github.com/v2xmesh/substrate/comm"
	"github.com/v2xmesh/substrate/wire"
)

// Subscriber is the consumer side: Subscribe broadcasts a SUBSCRIBE
// control message, then Receive blocks on the Communicator for the
// next matching publish.
type Subscriber struct {
	c    *comm.Communicator
	addr wire.Address
}

// NewSubscriber builds a Subscriber addressed as addr, receiving over c.
func NewSubscriber(c *comm.Communicator, addr wire.Address) *Subscriber {
	return &Subscriber{c: c, addr: addr}
}

// Subscribe registers interest in unit at the given period (in
// TickUnits) and emits the SUBSCRIBE control message addressed to
// broadcast.
func (s *Subscriber) Subscribe(unit, period uint32) error {
	dest := wire.NewAddress(wire.BroadcastPhysicalAddress, wire.BroadcastSystemID, wire.BroadcastPort)
	msg := comm.Message{
		Source:  s.addr,
		Dest:    dest,
		Ctrl:    wire.NewControl(wire.Subscribe),
		Payload: encodeSubscribe(unit, period),
	}
	return s.c.Send(msg)
}

// Receive blocks until the next PUBLISH message arrives on this
// Subscriber's port, skipping any other control traffic the port's
// broadcast fan-out delivers alongside it.
func (s *Subscriber) Receive(ctx context.Context) (comm.Message, error) {
	for {
		msg, err := s.c.Receive(ctx)
		if err != nil {
			return comm.Message{}, err
		}
		if msg.Ctrl.Type() == wire.Publish {
			return msg, nil
		}
	}
}
