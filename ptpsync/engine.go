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

package ptpsync

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/v2xmesh/substrate/wire"
)

// DefaultAnnouncePeriod is the simulated announce cadence.
const DefaultAnnouncePeriod = time.Second

// DefaultLeaderPeriod is the simulated leader sync cadence.
const DefaultLeaderPeriod = time.Second

// Sender is the narrow send surface SyncEngine needs from the protocol
// layer, kept separate to avoid an import cycle between ptpsync and
// v2xproto.
type Sender interface {
	Send(dest wire.Address, ctrl wire.Control, payload []byte) error
}

// Action is what the caller (the protocol layer) must do in response to
// a delivered PTP-family frame.
type Action int

// Actions a SyncEngine may request of its Sender after HandlePTP.
const (
	ActionNone Action = iota
	ActionSendDelayReq
	ActionSendDelayResp
)

// Engine is SyncEngine: it owns the SimulatedClock, runs the announce
// and leader goroutines, and runs the non-leader PTP state machine.
type Engine struct {
	sys            wire.SystemID
	clock          *SimulatedClock
	sender         Sender
	announcePeriod time.Duration
	leaderPeriod   time.Duration

	mu       sync.Mutex
	isLeader bool
	strata   map[wire.SystemID]struct{}
	st       state
	rnd      round

	leaderSig chan struct{}
}

// New builds a SyncEngine for sys, sending PTP-family frames through
// sender, and ticking on the given periods (use the Default* constants
// outside tests).
func New(sys wire.SystemID, sender Sender, announcePeriod, leaderPeriod time.Duration) *Engine {
	return &Engine{
		sys:            sys,
		clock:          NewSimulatedClock(),
		sender:         sender,
		announcePeriod: announcePeriod,
		leaderPeriod:   leaderPeriod,
		strata:         make(map[wire.SystemID]struct{}),
		leaderSig:      make(chan struct{}, 1),
	}
}

// Clock returns the engine's simulated clock.
func (e *Engine) Clock() *SimulatedClock {
	return e.clock
}

// Now satisfies v2xproto.SyncHandler.
func (e *Engine) Now() uint64 {
	return e.clock.Now()
}

// IsLeader reports whether this vehicle currently believes it is the
// stratum leader.
func (e *Engine) IsLeader() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isLeader
}

// Run launches the announce and leader goroutines and blocks until ctx
// is cancelled or either goroutine errors.
func (e *Engine) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.announceLoop(ctx) })
	g.Go(func() error { return e.leaderLoop(ctx) })
	return g.Wait()
}

func (e *Engine) announceLoop(ctx context.Context) error {
	ticker := time.NewTicker(e.announcePeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			dest := wire.NewAddress(wire.BroadcastPhysicalAddress, wire.BroadcastSystemID, wire.BroadcastPort)
			if err := e.sender.Send(dest, wire.NewControl(wire.Announce), nil); err != nil {
				log.Debugf("ptpsync: announce send: %v", err)
			}

			e.mu.Lock()
			min := e.sys
			for s := range e.strata {
				if s < min {
					min = s
				}
			}
			wasLeader := e.isLeader
			e.isLeader = min == e.sys
			e.strata = make(map[wire.SystemID]struct{})
			becameLeader := !wasLeader && e.isLeader
			e.mu.Unlock()

			if becameLeader {
				select {
				case e.leaderSig <- struct{}{}:
				default:
				}
			}
		}
	}
}

func (e *Engine) leaderLoop(ctx context.Context) error {
	ticker := time.NewTicker(e.leaderPeriod)
	defer ticker.Stop()
	for {
		if !e.IsLeader() {
			select {
			case <-ctx.Done():
				return nil
			case <-e.leaderSig:
			}
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !e.IsLeader() {
				continue
			}
			dest := wire.NewAddress(wire.BroadcastPhysicalAddress, wire.BroadcastSystemID, wire.BroadcastPort)
			if err := e.sender.Send(dest, wire.NewControl(wire.PTP), nil); err != nil {
				log.Debugf("ptpsync: leader sync send: %v", err)
			}
		}
	}
}

// HandlePTP runs the non-leader PTP state machine (and the leader's
// handling of an incoming delay request) for a delivered PTP-family
// frame.
func (e *Engine) HandlePTP(recvTS uint64, hdr wire.FullHeader) Action {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch hdr.Ctrl.Type() {
	case wire.Announce:
		e.strata[hdr.Origin.Sys] = struct{}{}
		return ActionNone

	case wire.PTP:
		if e.isLeader {
			return ActionSendDelayResp
		}
		if e.st == waitingSync || e.rnd.master != uint32(hdr.Origin.Sys) {
			e.rnd = round{
				master:     uint32(hdr.Origin.Sys),
				tSyncMsg:   hdr.Timestamp,
				tRecvdSync: recvTS,
			}
			e.st = waitingDelay
			return ActionSendDelayReq
		}
		e.rnd.tSyncMsg = hdr.Timestamp
		e.rnd.tRecvdSync = recvTS
		return ActionSendDelayReq

	case wire.DelayResp:
		if e.st != waitingDelay || uint32(hdr.Origin.Sys) != e.rnd.master {
			return ActionNone
		}
		tLeaderRecvdDelayReq := hdr.Timestamp
		delay := ((int64(tLeaderRecvdDelayReq) - int64(e.rnd.tRecvdSync)) + (int64(e.rnd.tRecvdSync) - int64(e.rnd.tSyncMsg))) / 2
		offset := (int64(e.rnd.tRecvdSync) - int64(e.rnd.tSyncMsg)) - delay
		e.clock.ApplyOffset(offset)
		e.st = waitingSync
		return ActionNone
	}
	return ActionNone
}
