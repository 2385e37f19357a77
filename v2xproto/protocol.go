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

// Package v2xproto composes outbound frames and demultiplexes inbound
// ones across the raw and in-process NICs. It is named apart from a
// plain "protocol" so the import path says which protocol it is.
package v2xproto

import (
	"encoding/binary"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/v2xmesh/substrate/buffer"
	"github.com/v2xmesh/substrate/mac"
	"github.com/v2xmesh/substrate/nic"
	"github.com/v2xmesh/substrate/observer"
	"github.com/v2xmesh/substrate/ptpsync"
	"github.com/v2xmesh/substrate/wire"
)

// Navigator supplies this vehicle's current simulated map position.
type Navigator interface {
	Coordinates() (x, y float64)
}

// QuadrantKeyer resolves the MAC key that should authenticate traffic
// claiming to originate from a given sender position, implemented by
// the RSU key distribution consumer (mac.KeyKeeper plus a Topology
// lookup from quadrant to RSU id).
type QuadrantKeyer interface {
	KeyFor(x, y float64) (mac.Key, bool)
}

// SyncHandler receives every PTP-family control frame the protocol
// layer demultiplexes, and the receive timestamp it arrived with.
type SyncHandler interface {
	Now() uint64
	HandlePTP(recvTS uint64, hdr wire.FullHeader) ptpsync.Action
}

// Delivery is what the port registry dispatches: the arrived buffer and
// which header family it carries. Whoever receives a Delivery owns its
// buffer and must release it with Protocol.Free.
type Delivery struct {
	Buf  *buffer.Buffer
	Full bool
}

// PortObserver receives frames addressed to one in-vehicle port.
type PortObserver = observer.Observer[Delivery, wire.Port]

// Protocol is the single per-(interface, SystemID) demux point for this
// vehicle. It attaches to both NICs at construction and owns the
// port-keyed observer registry that fans inbound frames out to
// Communicators.
type Protocol struct {
	sys  wire.SystemID
	raw  *nic.NIC
	shrd *nic.NIC

	nav  Navigator
	sync SyncHandler
	macE mac.Engine
	keys QuadrantKeyer
	kk   *mac.KeyKeeper

	ports *observer.ConditionallyObserved[Delivery, wire.Port]

	mu      sync.Mutex
	dropped Counters
}

// Counters tallies silent drops by reason for the stats exporter.
type Counters struct {
	BadDestSystem   uint64
	BadDestPort     uint64
	MacVerifyFailed uint64
	CopyExhausted   uint64
}

// New builds a Protocol over the raw and in-process NICs for system
// sys, and attaches itself to both as their dispatcher.
func New(sys wire.SystemID, raw, shrd *nic.NIC, nav Navigator, sh SyncHandler, macE mac.Engine, keys QuadrantKeyer, kk *mac.KeyKeeper) *Protocol {
	p := &Protocol{
		sys:   sys,
		raw:   raw,
		shrd:  shrd,
		nav:   nav,
		sync:  sh,
		macE:  macE,
		keys:  keys,
		kk:    kk,
		ports: observer.NewConditionallyObserved[Delivery, wire.Port](),
	}
	raw.Bind(p)
	shrd.Bind(p)
	return p
}

// Attach registers o to receive frames addressed to port.
func (p *Protocol) Attach(port wire.Port, o PortObserver) {
	p.ports.Attach(o, port)
}

// Detach removes a previously attached observer.
func (p *Protocol) Detach(port wire.Port, o PortObserver) {
	p.ports.Detach(o, port)
}

// Counters returns a point-in-time copy of the drop counters.
func (p *Protocol) Counters() Counters {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

// Free returns a delivered buffer to whichever NIC pool it came from.
func (p *Protocol) Free(b *buffer.Buffer) {
	if b == nil {
		return
	}
	if p.raw.Pool().Owns(b) {
		if err := p.raw.Pool().Free(b); err != nil {
			log.Warnf("v2xproto: free: %v", err)
		}
		return
	}
	if err := p.shrd.Pool().Free(b); err != nil {
		log.Warnf("v2xproto: free: %v", err)
	}
}

// Send composes and transmits a message. Same-vehicle traffic travels
// the in-process transport only, with a lite header; cross-vehicle
// traffic travels the raw link with a full header. dest.Sys == 0 means
// cross-vehicle broadcast, emitted on both transports unless ctrl's
// type is raw-link-only (ANNOUNCE, DELAY_RESP, LATE_SYNC, MAC).
func (p *Protocol) Send(dest wire.Address, ctrl wire.Control, payload []byte) error {
	if isRawOnly(ctrl.Type()) {
		return p.sendOn(p.raw, dest, ctrl, payload, true)
	}
	switch dest.Sys {
	case p.sys:
		return p.sendOn(p.shrd, dest, ctrl, payload, false)
	case wire.BroadcastSystemID:
		if err := p.sendOn(p.raw, dest, ctrl, payload, true); err != nil {
			return err
		}
		return p.sendOn(p.shrd, dest, ctrl, payload, false)
	default:
		return p.sendOn(p.raw, dest, ctrl, payload, true)
	}
}

func isRawOnly(t wire.Type) bool {
	switch t {
	case wire.Announce, wire.DelayResp, wire.LateSync, wire.Mac:
		return true
	default:
		return false
	}
}

func (p *Protocol) sendOn(n *nic.NIC, dest wire.Address, ctrl wire.Control, payload []byte, full bool) error {
	origin := wire.NewAddress(n.Address(), p.sys, dest.Port)
	var raw []byte
	if full {
		x, y := p.nav.Coordinates()
		hdr := wire.FullHeader{
			LiteHeader: wire.LiteHeader{
				Origin:      origin,
				Dest:        dest,
				Ctrl:        ctrl,
				PayloadSize: uint32(len(payload)),
			},
			CoordX:    x,
			CoordY:    y,
			Timestamp: p.sync.Now(),
		}
		if key, ok := p.keys.KeyFor(x, y); ok {
			hdr.Tag = p.macE.Compute(key, payload)
		}
		raw, _ = hdr.MarshalBinary()
	} else {
		hdr := wire.LiteHeader{
			Origin:      origin,
			Dest:        dest,
			Ctrl:        ctrl,
			PayloadSize: uint32(len(payload)),
		}
		raw, _ = hdr.MarshalBinary()
	}
	return p.emit(n, dest.Phys, raw, payload)
}

func (p *Protocol) emit(n *nic.NIC, dst wire.PhysicalAddress, header, payload []byte) error {
	b := n.Alloc(len(payload), len(header))
	if b == nil {
		p.mu.Lock()
		p.dropped.CopyExhausted++
		p.mu.Unlock()
		return buffer.ErrExhausted
	}
	b.SetDstMAC(dst)
	buf := b.Data()
	copy(buf, header)
	copy(buf[len(header):], payload)
	b.SetSize(len(header) + len(payload))
	return n.Send(b)
}

// Dispatch implements nic.Dispatcher, receiving every frame either NIC
// drains off its transport.
func (p *Protocol) Dispatch(n *nic.NIC, b *buffer.Buffer) bool {
	recvTS := p.sync.Now()
	full := n == p.raw

	var (
		dest    wire.Address
		origin  wire.Address
		ctrl    wire.Control
		payload []byte
		hdr     wire.FullHeader
	)
	if full {
		if err := hdr.UnmarshalBinary(b.Data()[:b.Size()]); err != nil {
			log.Debugf("v2xproto: short full header: %v", err)
			return false
		}
		dest, origin, ctrl = hdr.Dest, hdr.Origin, hdr.Ctrl
		payload = b.Data()[wire.FullHeaderSize:b.Size()]
	} else {
		var lite wire.LiteHeader
		if err := lite.UnmarshalBinary(b.Data()[:b.Size()]); err != nil {
			log.Debugf("v2xproto: short lite header: %v", err)
			return false
		}
		dest, origin, ctrl = lite.Dest, lite.Origin, lite.Ctrl
		payload = b.Data()[wire.LiteHeaderSize:b.Size()]
	}

	if dest.Sys != p.sys && dest.Sys != wire.BroadcastSystemID {
		p.mu.Lock()
		p.dropped.BadDestSystem++
		p.mu.Unlock()
		return false
	}

	if full && origin.Sys != p.sys {
		switch ctrl.Type() {
		case wire.DelayResp, wire.LateSync:
			p.sync.HandlePTP(recvTS, hdr)
			return false
		case wire.Mac:
			p.installKeys(payload)
			return false
		case wire.Announce:
			p.sync.HandlePTP(recvTS, hdr)
			return false
		case wire.PTP:
			p.respondToPTP(recvTS, hdr, origin)
			return false
		case wire.Common, wire.Publish, wire.Subscribe:
			key, ok := p.keys.KeyFor(hdr.CoordX, hdr.CoordY)
			if !ok || !p.macE.Verify(key, payload, hdr.Tag) {
				p.mu.Lock()
				p.dropped.MacVerifyFailed++
				p.mu.Unlock()
				return false
			}
		}
	}

	return p.fanOutByPort(n, dest.Port, b, full)
}

// respondToPTP asks the sync engine how to react to a delivered PTP
// frame and emits the requested follow-up directly to the sender.
func (p *Protocol) respondToPTP(recvTS uint64, hdr wire.FullHeader, origin wire.Address) {
	action := p.sync.HandlePTP(recvTS, hdr)
	switch action {
	case ptpsync.ActionSendDelayReq:
		if err := p.Send(origin, wire.NewControl(wire.PTP), nil); err != nil {
			log.Debugf("v2xproto: delay req send: %v", err)
		}
	case ptpsync.ActionSendDelayResp:
		if err := p.Send(origin, wire.NewControl(wire.DelayResp), nil); err != nil {
			log.Debugf("v2xproto: delay resp send: %v", err)
		}
	}
}

// fanOutByPort routes b to the port registry. A broadcast port is
// resolved by enumerating every attached port and notifying each with a
// fresh pool copy; the dispatcher then frees the original. A unicast
// port hands the original buffer to its observers, whose owner must
// free it through Free.
func (p *Protocol) fanOutByPort(n *nic.NIC, port wire.Port, original *buffer.Buffer, full bool) bool {
	if port == wire.BroadcastPort {
		for _, target := range dedupePorts(p.ports.Conditions()) {
			cp := p.cloneInto(n, original)
			if cp == nil {
				continue
			}
			if !p.ports.Notify(target, Delivery{Buf: cp, Full: full}) {
				p.Free(cp)
			}
		}
		// The dispatcher keeps ownership of the original.
		return false
	}

	if p.ports.Notify(port, Delivery{Buf: original, Full: full}) {
		return true
	}
	p.mu.Lock()
	p.dropped.BadDestPort++
	p.mu.Unlock()
	return false
}

// cloneInto allocates a fresh buffer from n's pool and copies the
// original's valid bytes into it, so each broadcast target owns an
// independent copy.
func (p *Protocol) cloneInto(n *nic.NIC, src *buffer.Buffer) *buffer.Buffer {
	cp := n.Pool().Alloc(src.SrcMAC(), src.Size(), 0)
	if cp == nil {
		p.mu.Lock()
		p.dropped.CopyExhausted++
		p.mu.Unlock()
		return nil
	}
	n2 := copy(cp.Data(), src.Data()[:src.Size()])
	cp.SetSize(n2)
	cp.SetReceiveTime(src.ReceiveTime())
	return cp
}

func dedupePorts(all []wire.Port) []wire.Port {
	seen := make(map[wire.Port]struct{}, len(all))
	out := all[:0]
	for _, p := range all {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

func (p *Protocol) installKeys(payload []byte) {
	const entrySize = 4 + mac.KeySize
	n := len(payload) / entrySize
	if n > 9 {
		n = 9
	}
	entries := make([]mac.KeyEntry, 0, n)
	for i := 0; i < n; i++ {
		off := i * entrySize
		var e mac.KeyEntry
		e.ID = int32(binary.LittleEndian.Uint32(payload[off : off+4]))
		copy(e.Bytes[:], payload[off+4:off+entrySize])
		entries = append(entries, e)
	}
	p.kk.SetKeys(entries)
}
