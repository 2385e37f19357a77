package wire

// Ethertype is the single fixed ethertype used by this system on the raw
// link.
const Ethertype uint16 = 0x88B5

// MinFrameSize is the Ethernet minimum frame size floor applied by
// BufferPool.alloc.
const MinFrameSize = 60

// MaxFrameSize is the maximum Ethernet frame a Buffer must be able to hold.
const MaxFrameSize = 1514
