package link

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	log "github.com/sirupsen/logrus"

	"github.com/v2xmesh/substrate/buffer"
	"github.com/v2xmesh/substrate/wire"
)

// mailboxDepth bounds how many undrained frames an engine will hold
// before it starts dropping, so a slow NIC dispatch loop cannot make
// the reader goroutine's memory usage unbounded.
const mailboxDepth = 256

// rawFrame is one received frame with its Ethernet header already
// stripped.
type rawFrame struct {
	payload []byte
	src     wire.PhysicalAddress
	dst     wire.PhysicalAddress
}

// RawEngine is a raw-link Engine backed by libpcap. It owns the handle
// for one interface, installs a BPF classifier that accepts only this
// system's ethertype, and frames outbound payloads in Ethernet II.
// Handle creation, interface lookup and BPF attach all fail at
// construction; nothing is retried later.
type RawEngine struct {
	iface  string
	handle *pcap.Handle
	mac    wire.PhysicalAddress

	sendMu sync.Mutex

	callbackMu sync.Mutex
	callback   func()

	frames chan rawFrame
	stopCh chan struct{}
	wg     sync.WaitGroup

	stats EngineStats
}

// EngineStats counts send/receive outcomes for the NIC's statistics.
type EngineStats struct {
	mu          sync.Mutex
	sent        uint64
	sendErrors  uint64
	received    uint64
	drained     uint64
	mailboxDrop uint64
}

// Snapshot returns a point-in-time copy of the counters.
func (s *EngineStats) Snapshot() (sent, sendErrors, received, drained, mailboxDrop uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent, s.sendErrors, s.received, s.drained, s.mailboxDrop
}

// NewRawEngine opens a BPF-filtered raw link on iface, accepting only
// this system's fixed ethertype.
func NewRawEngine(iface string) (*RawEngine, error) {
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return nil, fmt.Errorf("link: interface lookup %q: %w", iface, err)
	}
	if len(ifi.HardwareAddr) != wire.PhysicalAddressSize {
		return nil, fmt.Errorf("link: interface %q has no ethernet hardware address", iface)
	}

	handle, err := pcap.OpenLive(iface, int32(wire.MaxFrameSize), true, 10*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("link: open raw socket on %q: %w", iface, err)
	}

	filter := fmt.Sprintf("ether proto 0x%x", wire.Ethertype)
	if err := handle.SetBPFFilter(filter); err != nil {
		handle.Close()
		return nil, fmt.Errorf("link: attach BPF filter %q: %w", filter, err)
	}

	var mac wire.PhysicalAddress
	copy(mac[:], ifi.HardwareAddr)

	return &RawEngine{
		iface:  iface,
		handle: handle,
		mac:    mac,
		frames: make(chan rawFrame, mailboxDepth),
	}, nil
}

// Address returns this engine's link-layer address.
func (e *RawEngine) Address() wire.PhysicalAddress {
	return e.mac
}

// Bind stores the per-wake trampoline.
func (e *RawEngine) Bind(callback func()) {
	e.callbackMu.Lock()
	defer e.callbackMu.Unlock()
	e.callback = callback
}

func (e *RawEngine) fire() {
	e.callbackMu.Lock()
	cb := e.callback
	e.callbackMu.Unlock()
	if cb != nil {
		cb()
	}
}

// Start launches the dedicated reader goroutine. A goroutine parked on
// a blocking pcap read costs nothing, so it stands where an OS signal
// handler plus semaphore otherwise would.
func (e *RawEngine) Start() error {
	e.stopCh = make(chan struct{})
	e.wg.Add(1)
	go e.readLoop()
	return nil
}

// Stop closes the pcap handle (unblocking the reader goroutine) and
// waits for it to exit.
func (e *RawEngine) Stop() error {
	close(e.stopCh)
	e.handle.Close()
	e.wg.Wait()
	return nil
}

func (e *RawEngine) readLoop() {
	defer e.wg.Done()
	for {
		select {
		case <-e.stopCh:
			return
		default:
		}

		data, _, err := e.handle.ZeroCopyReadPacketData()
		if err != nil {
			if errors.Is(err, pcap.NextErrorTimeoutExpired) {
				continue
			}
			select {
			case <-e.stopCh:
				return
			default:
				log.Debugf("link: raw read on %s: %v", e.iface, err)
				return
			}
		}

		frame, ok := e.deframe(data)
		if !ok {
			continue
		}

		select {
		case e.frames <- frame:
		default:
			e.stats.mu.Lock()
			e.stats.mailboxDrop++
			e.stats.mu.Unlock()
		}

		e.fire()
	}
}

// deframe validates and strips the Ethernet II header, keeping only
// frames carrying this system's ethertype (the BPF filter already
// guarantees this on a real handle; deframe re-checks so the engine is
// safe against promiscuous captures too).
func (e *RawEngine) deframe(data []byte) (rawFrame, bool) {
	pkt := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.NoCopy)
	ethLayer := pkt.Layer(layers.LayerTypeEthernet)
	if ethLayer == nil {
		return rawFrame{}, false
	}
	eth := ethLayer.(*layers.Ethernet)
	if uint16(eth.EthernetType) != wire.Ethertype {
		return rawFrame{}, false
	}

	var f rawFrame
	f.payload = make([]byte, len(eth.Payload))
	copy(f.payload, eth.Payload)
	copy(f.src[:], eth.SrcMAC)
	copy(f.dst[:], eth.DstMAC)
	return f, true
}

// Send frames b's valid bytes in Ethernet II, addressed to the buffer's
// destination MAC, and writes them to the raw link. The send-path mutex
// serializes writers against each other on the shared pcap handle.
func (e *RawEngine) Send(b *buffer.Buffer) (int, error) {
	e.sendMu.Lock()
	defer e.sendMu.Unlock()

	dst := b.DstMAC()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr(e.mac[:]),
		DstMAC:       net.HardwareAddr(dst[:]),
		EthernetType: layers.EthernetType(wire.Ethertype),
	}
	sbuf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(sbuf, gopacket.SerializeOptions{},
		eth, gopacket.Payload(b.Data()[:b.Size()])); err != nil {
		return -1, fmt.Errorf("link: frame: %w", err)
	}

	if err := e.handle.WritePacketData(sbuf.Bytes()); err != nil {
		e.stats.mu.Lock()
		e.stats.sendErrors++
		e.stats.mu.Unlock()
		return -1, fmt.Errorf("link: send: %w", err)
	}
	e.stats.mu.Lock()
	e.stats.sent++
	e.stats.mu.Unlock()
	return b.Size(), nil
}

// Receive drains one queued frame into dst without blocking. A return
// of (0, nil) means the mailbox is empty right now; it is not an error.
func (e *RawEngine) Receive(dst *buffer.Buffer) (int, error) {
	select {
	case f := <-e.frames:
		n := copy(dst.Data(), f.payload)
		dst.SetSize(n)
		dst.SetSrcMAC(f.src)
		dst.SetDstMAC(f.dst)
		dst.SetReceiveTime(time.Now())
		e.stats.mu.Lock()
		e.stats.received++
		e.stats.mu.Unlock()
		return n, nil
	default:
		e.stats.mu.Lock()
		e.stats.drained++
		e.stats.mu.Unlock()
		return 0, nil
	}
}

// Stats returns the engine's counters.
func (e *RawEngine) Stats() *EngineStats {
	return &e.stats
}
