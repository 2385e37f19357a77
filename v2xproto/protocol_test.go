package v2xproto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/v2xmesh/substrate/buffer"
	"github.com/v2xmesh/substrate/mac"
	"github.com/v2xmesh/substrate/nic"
	"github.com/v2xmesh/substrate/ptpsync"
	"github.com/v2xmesh/substrate/wire"
)

type stubEngine struct {
	addr     wire.PhysicalAddress
	callback func()
	sends    [][]byte
}

func (e *stubEngine) Address() wire.PhysicalAddress { return e.addr }
func (e *stubEngine) Bind(cb func())                { e.callback = cb }
func (e *stubEngine) Start() error                  { return nil }
func (e *stubEngine) Stop() error                   { return nil }

func (e *stubEngine) Send(b *buffer.Buffer) (int, error) {
	cp := make([]byte, b.Size())
	copy(cp, b.Data()[:b.Size()])
	e.sends = append(e.sends, cp)
	return len(cp), nil
}

func (e *stubEngine) Receive(*buffer.Buffer) (int, error) { return 0, nil }

type stubNav struct{ x, y float64 }

func (n stubNav) Coordinates() (float64, float64) { return n.x, n.y }

type stubSync struct {
	now     uint64
	handled []wire.Type
	action  ptpsync.Action
}

func (s *stubSync) Now() uint64 { return s.now }

func (s *stubSync) HandlePTP(_ uint64, hdr wire.FullHeader) ptpsync.Action {
	s.handled = append(s.handled, hdr.Ctrl.Type())
	return s.action
}

type stubKeyer struct {
	key mac.Key
	ok  bool
}

func (k stubKeyer) KeyFor(_, _ float64) (mac.Key, bool) { return k.key, k.ok }

type countingObserver struct {
	got []Delivery
}

func (o *countingObserver) Update(_ wire.Port, d Delivery) {
	o.got = append(o.got, d)
}

type fixture struct {
	proto   *Protocol
	rawEng  *stubEngine
	shrdEng *stubEngine
	rawNIC  *nic.NIC
	shrdNIC *nic.NIC
	sync    *stubSync
	kk      *mac.KeyKeeper
	key     mac.Key
	macE    mac.Poly1305Engine
}

func newFixture(t *testing.T, sys wire.SystemID) *fixture {
	t.Helper()
	f := &fixture{
		rawEng:  &stubEngine{addr: wire.PhysicalAddress{0xAA, 1, 2, 3, 4, 5}},
		shrdEng: &stubEngine{addr: wire.PhysicalAddress{0xAA, 1, 2, 3, 4, 5}},
		sync:    &stubSync{now: 1000},
		kk:      mac.NewKeyKeeper(),
		macE:    mac.NewPoly1305Engine(),
	}
	f.key = f.macE.GenKey()
	f.rawNIC = nic.New(f.rawEng, buffer.NewPool(8), true)
	f.shrdNIC = nic.New(f.shrdEng, buffer.NewPool(8), false)
	f.proto = New(sys, f.rawNIC, f.shrdNIC, stubNav{x: 10, y: 10}, f.sync,
		f.macE, stubKeyer{key: f.key, ok: true}, f.kk)
	return f
}

// frame builds a buffer in the pool of the NIC it will be dispatched
// from, so ownership transfer behaves exactly as in production.
func (f *fixture) frame(t *testing.T, n *nic.NIC, raw []byte) *buffer.Buffer {
	t.Helper()
	b := n.Pool().Alloc(f.rawEng.addr, len(raw), 0)
	require.NotNil(t, b)
	copy(b.Data(), raw)
	b.SetSize(len(raw))
	return b
}

func (f *fixture) fullFrame(t *testing.T, origin, dest wire.Address, typ wire.Type, payload []byte, tagged bool) []byte {
	t.Helper()
	hdr := wire.FullHeader{
		LiteHeader: wire.LiteHeader{
			Origin:      origin,
			Dest:        dest,
			Ctrl:        wire.NewControl(typ),
			PayloadSize: uint32(len(payload)),
		},
		CoordX: 10, CoordY: 10, Timestamp: 555,
	}
	if tagged {
		hdr.Tag = f.macE.Compute(f.key, payload)
	}
	raw, err := hdr.MarshalBinary()
	require.NoError(t, err)
	return append(raw, payload...)
}

func TestSendInVehicleUsesSharedTransportOnly(t *testing.T) {
	f := newFixture(t, 100)
	dest := wire.NewAddress(f.shrdEng.addr, 100, 11)

	require.NoError(t, f.proto.Send(dest, wire.NewControl(wire.Common), []byte("hi")))
	assert.Empty(t, f.rawEng.sends)
	require.Len(t, f.shrdEng.sends, 1)

	var hdr wire.LiteHeader
	require.NoError(t, hdr.UnmarshalBinary(f.shrdEng.sends[0]))
	assert.Equal(t, wire.SystemID(100), hdr.Origin.Sys)
	assert.Equal(t, dest, hdr.Dest)
}

func TestSendCrossVehicleBroadcastUsesBothTransports(t *testing.T) {
	f := newFixture(t, 100)
	dest := wire.NewAddress(wire.BroadcastPhysicalAddress, wire.BroadcastSystemID, wire.BroadcastPort)

	require.NoError(t, f.proto.Send(dest, wire.NewControl(wire.Publish), []byte("x")))
	assert.Len(t, f.rawEng.sends, 1)
	assert.Len(t, f.shrdEng.sends, 1)

	var hdr wire.FullHeader
	require.NoError(t, hdr.UnmarshalBinary(f.rawEng.sends[0]))
	assert.Equal(t, float64(10), hdr.CoordX)
	assert.Equal(t, uint64(1000), hdr.Timestamp)
	assert.NotEqual(t, wire.MacTag{}, hdr.Tag)
}

func TestSendAnnounceIsRawOnly(t *testing.T) {
	f := newFixture(t, 100)
	dest := wire.NewAddress(wire.BroadcastPhysicalAddress, wire.BroadcastSystemID, wire.BroadcastPort)

	require.NoError(t, f.proto.Send(dest, wire.NewControl(wire.Announce), nil))
	assert.Len(t, f.rawEng.sends, 1)
	assert.Empty(t, f.shrdEng.sends)
}

func TestDispatchFiltersWrongDestSystem(t *testing.T) {
	f := newFixture(t, 100)
	origin := wire.NewAddress(wire.PhysicalAddress{1}, 200, 10)
	dest := wire.NewAddress(wire.PhysicalAddress{2}, 300, 11)
	b := f.frame(t, f.rawNIC, f.fullFrame(t, origin, dest, wire.Publish, []byte("p"), true))

	assert.False(t, f.proto.Dispatch(f.rawNIC, b))
	assert.Equal(t, uint64(1), f.proto.Counters().BadDestSystem)
}

func TestDispatchVerifiesMacOnForeignPublish(t *testing.T) {
	f := newFixture(t, 100)
	o := &countingObserver{}
	f.proto.Attach(11, o)

	origin := wire.NewAddress(wire.PhysicalAddress{1}, 200, 10)
	dest := wire.NewAddress(f.rawEng.addr, 100, 11)

	good := f.frame(t, f.rawNIC, f.fullFrame(t, origin, dest, wire.Publish, []byte("pay"), true))
	assert.True(t, f.proto.Dispatch(f.rawNIC, good))
	require.Len(t, o.got, 1)
	f.proto.Free(o.got[0].Buf)

	bad := f.fullFrame(t, origin, dest, wire.Publish, []byte("pay"), true)
	bad[len(bad)-1] ^= 0x01 // corrupt the payload under the tag
	assert.False(t, f.proto.Dispatch(f.rawNIC, f.frame(t, f.rawNIC, bad)))
	assert.Len(t, o.got, 1)
	assert.Equal(t, uint64(1), f.proto.Counters().MacVerifyFailed)
}

func TestDispatchSkipsMacForInVehicleTraffic(t *testing.T) {
	f := newFixture(t, 100)
	o := &countingObserver{}
	f.proto.Attach(11, o)

	origin := wire.NewAddress(f.shrdEng.addr, 100, 10)
	dest := wire.NewAddress(f.shrdEng.addr, 100, 11)
	hdr := wire.LiteHeader{Origin: origin, Dest: dest, Ctrl: wire.NewControl(wire.Publish), PayloadSize: 3}
	raw, err := hdr.MarshalBinary()
	require.NoError(t, err)
	b := f.frame(t, f.shrdNIC, append(raw, []byte("pay")...))

	assert.True(t, f.proto.Dispatch(f.shrdNIC, b))
	require.Len(t, o.got, 1)
	assert.False(t, o.got[0].Full)
	assert.Equal(t, uint64(0), f.proto.Counters().MacVerifyFailed)
}

func TestDispatchRoutesPTPFamilyToSyncEngine(t *testing.T) {
	f := newFixture(t, 100)
	origin := wire.NewAddress(wire.PhysicalAddress{1}, 200, 10)
	dest := wire.NewAddress(wire.BroadcastPhysicalAddress, wire.BroadcastSystemID, wire.BroadcastPort)

	for _, typ := range []wire.Type{wire.Announce, wire.DelayResp, wire.LateSync} {
		b := f.frame(t, f.rawNIC, f.fullFrame(t, origin, dest, typ, nil, false))
		assert.False(t, f.proto.Dispatch(f.rawNIC, b))
	}
	assert.Equal(t, []wire.Type{wire.Announce, wire.DelayResp, wire.LateSync}, f.sync.handled)
}

func TestDispatchRespondsToLeaderSync(t *testing.T) {
	f := newFixture(t, 100)
	f.sync.action = ptpsync.ActionSendDelayReq

	origin := wire.NewAddress(wire.PhysicalAddress{1}, 1, 10)
	dest := wire.NewAddress(wire.BroadcastPhysicalAddress, wire.BroadcastSystemID, wire.BroadcastPort)
	b := f.frame(t, f.rawNIC, f.fullFrame(t, origin, dest, wire.PTP, nil, false))

	assert.False(t, f.proto.Dispatch(f.rawNIC, b))
	require.Len(t, f.rawEng.sends, 1)

	var hdr wire.FullHeader
	require.NoError(t, hdr.UnmarshalBinary(f.rawEng.sends[0]))
	assert.Equal(t, wire.PTP, hdr.Ctrl.Type())
	assert.Equal(t, origin.Sys, hdr.Dest.Sys)
}

func TestDispatchInstallsBroadcastKeys(t *testing.T) {
	f := newFixture(t, 100)
	origin := wire.NewAddress(wire.PhysicalAddress{1}, 999, 10)
	dest := wire.NewAddress(wire.BroadcastPhysicalAddress, wire.BroadcastSystemID, wire.BroadcastPort)

	entry := mac.KeyEntry{ID: 7}
	copy(entry.Bytes[:], []byte("0123456789abcdef0123456789abcdef"))
	payload := make([]byte, 4+mac.KeySize)
	payload[0] = 7
	copy(payload[4:], entry.Bytes[:])

	b := f.frame(t, f.rawNIC, f.fullFrame(t, origin, dest, wire.Mac, payload, false))
	assert.False(t, f.proto.Dispatch(f.rawNIC, b))

	got, ok := f.kk.Key(7)
	require.True(t, ok)
	assert.Equal(t, entry.Key(), got)
}

func TestBroadcastPortFansOutCopies(t *testing.T) {
	f := newFixture(t, 100)
	o1 := &countingObserver{}
	o2 := &countingObserver{}
	f.proto.Attach(10, o1)
	f.proto.Attach(11, o2)

	origin := wire.NewAddress(f.shrdEng.addr, 100, 10)
	dest := wire.NewAddress(f.shrdEng.addr, 100, wire.BroadcastPort)
	hdr := wire.LiteHeader{Origin: origin, Dest: dest, Ctrl: wire.NewControl(wire.Subscribe), PayloadSize: 2}
	raw, err := hdr.MarshalBinary()
	require.NoError(t, err)
	b := f.frame(t, f.shrdNIC, append(raw, []byte("su")...))

	// Dispatcher keeps the original; each observer owns a fresh copy.
	assert.False(t, f.proto.Dispatch(f.shrdNIC, b))
	require.Len(t, o1.got, 1)
	require.Len(t, o2.got, 1)
	assert.NotSame(t, o1.got[0].Buf, o2.got[0].Buf)
	assert.NotSame(t, b, o1.got[0].Buf)

	require.NoError(t, f.shrdNIC.Pool().Free(b))
	f.proto.Free(o1.got[0].Buf)
	f.proto.Free(o2.got[0].Buf)
	assert.Equal(t, uint64(0), f.shrdNIC.Pool().Stats().InUse)
}

func TestDispatchDropsUnboundPort(t *testing.T) {
	f := newFixture(t, 100)
	origin := wire.NewAddress(f.shrdEng.addr, 100, 10)
	dest := wire.NewAddress(f.shrdEng.addr, 100, 42)
	hdr := wire.LiteHeader{Origin: origin, Dest: dest, Ctrl: wire.NewControl(wire.Common), PayloadSize: 0}
	raw, err := hdr.MarshalBinary()
	require.NoError(t, err)
	b := f.frame(t, f.shrdNIC, raw)

	assert.False(t, f.proto.Dispatch(f.shrdNIC, b))
	assert.Equal(t, uint64(1), f.proto.Counters().BadDestPort)
}
