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

// Package smartdata implements the periodic publisher/subscriber state
// machine layered on top of a comm.Communicator: a publisher serves a
// set of subscribers at the GCD of their periods, a subscriber blocks
// for matching publishes.
package smartdata

import (
	"context"
	"encoding/binary"
	"io"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/v2xmesh/substrate/comm"
	"github.com/v2xmesh/substrate/observer"
	"github.com/v2xmesh/substrate/wire"
)

// TickUnit scales a Condition's integral Period into wall-clock time:
// one period unit is one TickUnit of simulated time.
const TickUnit = time.Millisecond

// Transducer is the data source behind a publisher: a sensor or
// actuator reading encoded as raw bytes, SI-unit encoding already
// applied.
type Transducer interface {
	Read() []byte
}

// Publisher owns a Transducer and the periodic goroutine that serves
// its subscriber set. Subscribers are kept in an OrderedList ranked by
// their subscription condition, so the fastest period publishes first
// on each wake; the aggregate wake period is the GCD of every
// subscriber's period.
type Publisher struct {
	c          *comm.Communicator
	addr       wire.Address
	transducer Transducer
	cond       wire.Condition

	mu              sync.Mutex
	subs            *observer.OrderedList[wire.Address, wire.Condition]
	aggregatePeriod uint32
	haveSubscriber  bool
	step            uint32

	gate chan struct{}
}

// NewPublisher builds a Publisher addressed as addr, sending over c,
// backed by transducer and keyed by unit.
func NewPublisher(c *comm.Communicator, addr wire.Address, transducer Transducer, unit uint32) *Publisher {
	return &Publisher{
		c:          c,
		addr:       addr,
		transducer: transducer,
		cond:       wire.Condition{IsPub: true, Unit: unit},
		subs:       observer.NewOrderedList[wire.Address, wire.Condition](),
		gate:       make(chan struct{}, 1),
	}
}

// Run listens for SUBSCRIBE control messages and drives the periodic
// publish loop until ctx is cancelled or the Communicator is closed.
func (p *Publisher) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// listen returns once the Communicator is closed; stop the
		// publish loop with it.
		defer cancel()
		return p.listen(ctx)
	})
	g.Go(func() error { return p.publishLoop(ctx) })
	return g.Wait()
}

func (p *Publisher) listen(ctx context.Context) error {
	for {
		msg, err := p.c.Receive(ctx)
		if err != nil {
			if err == io.EOF || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if msg.Ctrl.Type() != wire.Subscribe {
			continue
		}
		unit, period, ok := decodeSubscribe(msg.Payload)
		if !ok {
			continue
		}
		sub := wire.Condition{IsPub: false, Unit: unit, Period: period}
		if !p.cond.Matches(sub) {
			// Unit mismatch: not our subscriber, drop without reply.
			continue
		}
		p.addSubscriber(msg.Source, sub)
	}
}

func (p *Publisher) addSubscriber(addr wire.Address, sub wire.Condition) {
	if sub.Period == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	first := !p.haveSubscriber
	p.subs.Insert(addr, sub)
	if first {
		p.aggregatePeriod = sub.Period
		p.haveSubscriber = true
		select {
		case p.gate <- struct{}{}:
		default:
		}
		return
	}
	p.aggregatePeriod = gcd(p.aggregatePeriod, sub.Period)
}

func (p *Publisher) publishLoop(ctx context.Context) error {
	// Gated until the first subscribe arrives.
	select {
	case <-p.gate:
	case <-ctx.Done():
		return nil
	}

	for {
		p.mu.Lock()
		period := p.aggregatePeriod
		p.mu.Unlock()
		if period == 0 {
			period = 1
		}

		select {
		case <-time.After(time.Duration(period) * TickUnit):
		case <-ctx.Done():
			return nil
		}

		p.mu.Lock()
		p.step += period
		step := p.step
		type target struct {
			addr   wire.Address
			period uint32
		}
		var due []target
		p.subs.Each(func(addr wire.Address, sub wire.Condition) {
			if step%sub.Period == 0 {
				due = append(due, target{addr: addr, period: sub.Period})
			}
		})
		p.mu.Unlock()

		if len(due) == 0 {
			continue
		}
		reading := p.transducer.Read()
		for _, s := range due {
			msg := comm.Message{
				Source:  p.addr,
				Dest:    s.addr,
				Ctrl:    wire.NewControl(wire.Publish),
				Payload: reading,
			}
			if err := p.c.Send(msg); err != nil {
				log.Debugf("smartdata: publish to %s failed: %v", s.addr, err)
			}
		}
	}
}

func decodeSubscribe(b []byte) (unit, period uint32, ok bool) {
	if len(b) < 8 {
		return 0, 0, false
	}
	return binary.LittleEndian.Uint32(b[0:4]), binary.LittleEndian.Uint32(b[4:8]), true
}

func encodeSubscribe(unit, period uint32) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint32(b[0:4], unit)
	binary.LittleEndian.PutUint32(b[4:8], period)
	return b
}

func gcd(a, b uint32) uint32 {
	for b != 0 {
		a, b = b, a%b
	}
	if a == 0 {
		return 1
	}
	return a
}
