package link

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/v2xmesh/substrate/buffer"
	"github.com/v2xmesh/substrate/wire"
)

// SharedEngine is the in-process counterpart to RawEngine: a bounded
// mailbox that mimics the Engine API for same-process traffic. Its
// interface name argument is only used to read the
// interface's MAC so that Addresses compare equal whether a message
// travelled the raw link or the mailbox.
type SharedEngine struct {
	mac wire.PhysicalAddress

	mailbox chan []byte
	notify  chan struct{}

	callbackMu sync.Mutex
	callback   func()

	stopCh chan struct{}
	wg     sync.WaitGroup

	stats EngineStats
}

// NewSharedEngine builds a SharedEngine with the given mailbox depth,
// deriving its address from iface exactly like RawEngine would, so the
// two transports agree on this vehicle's physical address.
func NewSharedEngine(iface string, depth int) (*SharedEngine, error) {
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return nil, fmt.Errorf("link: interface lookup %q: %w", iface, err)
	}
	if len(ifi.HardwareAddr) != wire.PhysicalAddressSize {
		return nil, fmt.Errorf("link: interface %q has no ethernet hardware address", iface)
	}
	if depth <= 0 {
		depth = mailboxDepth
	}

	var mac wire.PhysicalAddress
	copy(mac[:], ifi.HardwareAddr)

	return &SharedEngine{
		mac:     mac,
		mailbox: make(chan []byte, depth),
		notify:  make(chan struct{}, depth),
	}, nil
}

// Address returns this engine's link-layer address.
func (e *SharedEngine) Address() wire.PhysicalAddress {
	return e.mac
}

// Bind stores the per-wake trampoline.
func (e *SharedEngine) Bind(callback func()) {
	e.callbackMu.Lock()
	defer e.callbackMu.Unlock()
	e.callback = callback
}

// Start launches the goroutine that blocks on the notify channel and
// fires the bound callback once per queued frame.
func (e *SharedEngine) Start() error {
	e.stopCh = make(chan struct{})
	e.wg.Add(1)
	go e.waitLoop()
	return nil
}

// Stop signals the wait loop to exit and waits for it.
func (e *SharedEngine) Stop() error {
	close(e.stopCh)
	e.wg.Wait()
	return nil
}

func (e *SharedEngine) waitLoop() {
	defer e.wg.Done()
	for {
		select {
		case <-e.stopCh:
			return
		case <-e.notify:
			e.callbackMu.Lock()
			cb := e.callback
			e.callbackMu.Unlock()
			if cb != nil {
				cb()
			}
		}
	}
}

// Send copies b's valid bytes into a free mailbox slot. A full mailbox
// is reported as ErrWouldBlock, this transport's EAGAIN equivalent on
// the send side.
func (e *SharedEngine) Send(b *buffer.Buffer) (int, error) {
	payload := make([]byte, b.Size())
	copy(payload, b.Data()[:b.Size()])

	select {
	case e.mailbox <- payload:
		e.stats.mu.Lock()
		e.stats.sent++
		e.stats.mu.Unlock()
		select {
		case e.notify <- struct{}{}:
		default:
		}
		return len(payload), nil
	default:
		e.stats.mu.Lock()
		e.stats.sendErrors++
		e.stats.mu.Unlock()
		return -1, ErrWouldBlock
	}
}

// Receive pops into dst and stamps its receive time. A return of
// (0, nil) means the mailbox is empty right now.
func (e *SharedEngine) Receive(dst *buffer.Buffer) (int, error) {
	select {
	case data := <-e.mailbox:
		n := copy(dst.Data(), data)
		dst.SetSize(n)
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
func (e *SharedEngine) Stats() *EngineStats {
	return &e.stats
}
