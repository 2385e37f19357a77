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

// Package rsu implements the roadside-unit key-rotation loop: a
// designated RSU advances a shared epoch counter, every RSU writes a
// fresh key into its own slot once per epoch, and every RSU broadcasts
// the 3x3 neighbourhood of keys around its cell as a MAC control
// message for vehicles to install.
package rsu

import (
	"context"
	"encoding/binary"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/v2xmesh/substrate/mac"
	"github.com/v2xmesh/substrate/nav"
	"github.com/v2xmesh/substrate/wire"
)

// DefaultPeriod is the key-rotation cycle length.
const DefaultPeriod = time.Second

// Sender is the narrow broadcast surface an Engine needs from the
// protocol layer.
type Sender interface {
	Send(dest wire.Address, ctrl wire.Control, payload []byte) error
}

// Engine is one RSU's key-sender thread, cooperating with its sibling
// RSUs through a shared Group.
type Engine struct {
	id       int32
	col, row int
	topo     *nav.Topology
	group    *Group
	macE     mac.Engine
	sender   Sender
	period   time.Duration
}

// New builds an Engine for the RSU at grid cell (col, row), a member of
// group.
func New(col, row int, topo *nav.Topology, group *Group, macE mac.Engine, sender Sender, period time.Duration) *Engine {
	if period <= 0 {
		period = DefaultPeriod
	}
	return &Engine{
		id:     topo.RSUID(col, row),
		col:    col,
		row:    row,
		topo:   topo,
		group:  group,
		macE:   macE,
		sender: sender,
		period: period,
	}
}

// ID returns this RSU's assigned id.
func (e *Engine) ID() int32 {
	return e.id
}

// Run executes rotation cycles until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	for {
		if err := e.runCycle(ctx); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (e *Engine) runCycle(ctx context.Context) error {
	e.group.Matrix.writeIfFirstEpoch(e.id, e.macE.GenKey())

	if err := e.group.barrier1.Wait(ctx); err != nil {
		return err
	}

	if e.group.Designated(e.id) {
		e.group.Matrix.advanceEpoch(e.group.renewInterval)
	}

	select {
	case <-time.After(e.period):
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := e.group.barrier2.Wait(ctx); err != nil {
		return err
	}

	ids := e.topo.Neighborhood(e.col, e.row)
	entries := e.group.Matrix.entries(ids)
	if len(entries) > 9 {
		entries = entries[:9]
	}
	payload := packKeyEntries(entries)

	dest := wire.NewAddress(wire.BroadcastPhysicalAddress, wire.BroadcastSystemID, wire.BroadcastPort)
	if err := e.sender.Send(dest, wire.NewControl(wire.Mac), payload); err != nil {
		log.Warnf("rsu: key broadcast from RSU %d failed: %v", e.id, err)
	}
	return nil
}

func packKeyEntries(entries []mac.KeyEntry) []byte {
	const entrySize = 4 + mac.KeySize
	out := make([]byte, len(entries)*entrySize)
	for i, e := range entries {
		off := i * entrySize
		binary.LittleEndian.PutUint32(out[off:], uint32(e.ID))
		copy(out[off+4:], e.Bytes[:])
	}
	return out
}
