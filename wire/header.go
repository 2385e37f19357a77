package wire

import (
	"encoding/binary"
	"fmt"
)

// MacTagSize is the width of the authentication tag appended to
// cross-vehicle packets.
const MacTagSize = 16

// MacTag is a 16-byte message authentication code.
type MacTag [MacTagSize]byte

// LiteHeaderSize is the marshaled size of a LiteHeader.
const LiteHeaderSize = 2*addressSize + 1 + 4

const addressSize = PhysicalAddressSize + 4 + 2 // Phys + SystemID + Port

// FullHeaderSize is the marshaled size of a FullHeader.
const FullHeaderSize = LiteHeaderSize + 8 + 8 + 8 + MacTagSize

// LiteHeader precedes the payload on in-process frames: no link header is
// needed since the shared-memory transport carries no Ethernet framing.
type LiteHeader struct {
	Origin      Address
	Dest        Address
	Ctrl        Control
	PayloadSize uint32
}

// FullHeader extends LiteHeader with the fields needed once a packet
// leaves the vehicle: sender coordinates, a PTP-adjusted timestamp and a
// MAC tag.
type FullHeader struct {
	LiteHeader
	CoordX    float64
	CoordY    float64
	Timestamp uint64
	Tag       MacTag
}

func putAddress(b []byte, a Address) {
	copy(b[0:6], a.Phys[:])
	binary.LittleEndian.PutUint32(b[6:10], uint32(a.Sys))
	binary.LittleEndian.PutUint16(b[10:12], uint16(a.Port))
}

func getAddress(b []byte) Address {
	var a Address
	copy(a.Phys[:], b[0:6])
	a.Sys = SystemID(binary.LittleEndian.Uint32(b[6:10]))
	a.Port = Port(binary.LittleEndian.Uint16(b[10:12]))
	return a
}

// MarshalBinary encodes h in the fixed little-endian wire layout.
func (h LiteHeader) MarshalBinary() ([]byte, error) {
	b := make([]byte, LiteHeaderSize)
	putAddress(b[0:addressSize], h.Origin)
	putAddress(b[addressSize:2*addressSize], h.Dest)
	b[2*addressSize] = h.Ctrl.Value
	binary.LittleEndian.PutUint32(b[2*addressSize+1:], h.PayloadSize)
	return b, nil
}

// UnmarshalBinary decodes a LiteHeader previously produced by MarshalBinary.
func (h *LiteHeader) UnmarshalBinary(b []byte) error {
	if len(b) < LiteHeaderSize {
		return fmt.Errorf("wire: short lite header: have %d want %d", len(b), LiteHeaderSize)
	}
	h.Origin = getAddress(b[0:addressSize])
	h.Dest = getAddress(b[addressSize : 2*addressSize])
	h.Ctrl = Control{Value: b[2*addressSize]}
	h.PayloadSize = binary.LittleEndian.Uint32(b[2*addressSize+1:])
	return nil
}

// MarshalBinary encodes h in the fixed little-endian wire layout.
func (h FullHeader) MarshalBinary() ([]byte, error) {
	lite, _ := h.LiteHeader.MarshalBinary()
	b := make([]byte, FullHeaderSize)
	copy(b, lite)
	off := LiteHeaderSize
	binary.LittleEndian.PutUint64(b[off:], mathFloatBits(h.CoordX))
	off += 8
	binary.LittleEndian.PutUint64(b[off:], mathFloatBits(h.CoordY))
	off += 8
	binary.LittleEndian.PutUint64(b[off:], h.Timestamp)
	off += 8
	copy(b[off:], h.Tag[:])
	return b, nil
}

// UnmarshalBinary decodes a FullHeader previously produced by MarshalBinary.
func (h *FullHeader) UnmarshalBinary(b []byte) error {
	if len(b) < FullHeaderSize {
		return fmt.Errorf("wire: short full header: have %d want %d", len(b), FullHeaderSize)
	}
	if err := h.LiteHeader.UnmarshalBinary(b[:LiteHeaderSize]); err != nil {
		return err
	}
	off := LiteHeaderSize
	h.CoordX = mathFloatFromBits(binary.LittleEndian.Uint64(b[off:]))
	off += 8
	h.CoordY = mathFloatFromBits(binary.LittleEndian.Uint64(b[off:]))
	off += 8
	h.Timestamp = binary.LittleEndian.Uint64(b[off:])
	off += 8
	copy(h.Tag[:], b[off:off+MacTagSize])
	return nil
}
