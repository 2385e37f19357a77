package wire

// Frame is the transport-independent view of a received packet: the
// fields a FullHeader carries, with CoordX/CoordY/Timestamp/Tag left at
// their zero value when the packet arrived over the in-process
// transport (LiteHeader only).
type Frame struct {
	Origin      Address
	Dest        Address
	Ctrl        Control
	CoordX      float64
	CoordY      float64
	Timestamp   uint64
	Tag         MacTag
	Payload     []byte
	PayloadSize uint32
}

// DecodeFrame parses b according to which header it was prefixed with:
// full selects FullHeader (cross-vehicle transport), otherwise
// LiteHeader (in-process transport). It is the decode path a
// PortObserver (comm.Communicator) uses to recover the full set of
// header fields; the protocol demultiplexer unmarshals the headers
// directly instead.
func DecodeFrame(b []byte, full bool) (Frame, error) {
	if full {
		var hdr FullHeader
		if err := hdr.UnmarshalBinary(b); err != nil {
			return Frame{}, err
		}
		return Frame{
			Origin:      hdr.Origin,
			Dest:        hdr.Dest,
			Ctrl:        hdr.Ctrl,
			CoordX:      hdr.CoordX,
			CoordY:      hdr.CoordY,
			Timestamp:   hdr.Timestamp,
			Tag:         hdr.Tag,
			Payload:     b[FullHeaderSize:],
			PayloadSize: hdr.PayloadSize,
		}, nil
	}
	var hdr LiteHeader
	if err := hdr.UnmarshalBinary(b); err != nil {
		return Frame{}, err
	}
	return Frame{
		Origin:      hdr.Origin,
		Dest:        hdr.Dest,
		Ctrl:        hdr.Ctrl,
		Payload:     b[LiteHeaderSize:],
		PayloadSize: hdr.PayloadSize,
	}, nil
}
