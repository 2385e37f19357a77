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

// Package buffer implements the fixed-capacity frame storage and the
// per-NIC free-list pool every transport allocates frames from.
package buffer

import (
	"time"

	"github.com/v2xmesh/substrate/wire"
)

// MaxFrameSize is the capacity of every Buffer, large enough to hold a
// maximum Ethernet frame.
const MaxFrameSize = wire.MaxFrameSize

// Buffer owns a fixed-capacity byte array, a current size, an in-use
// flag for pool bookkeeping, and the timestamp it was received at.
type Buffer struct {
	raw       [MaxFrameSize]byte
	size      int
	inUse     bool
	recvTime  time.Time
	srcMAC    wire.PhysicalAddress
	dstMAC    wire.PhysicalAddress
}

// Data returns the full backing array as a slice, for codecs to read and
// write into directly.
func (b *Buffer) Data() []byte {
	return b.raw[:]
}

// Size returns the current number of valid bytes in the buffer.
func (b *Buffer) Size() int {
	return b.size
}

// SetSize sets the current number of valid bytes, clamped to capacity.
func (b *Buffer) SetSize(n int) {
	if n > MaxFrameSize {
		n = MaxFrameSize
	}
	if n < 0 {
		n = 0
	}
	b.size = n
}

// InUse reports whether the buffer is currently checked out of its pool.
func (b *Buffer) InUse() bool {
	return b.inUse
}

// ReceiveTime returns the timestamp recorded when the buffer was filled
// by a receive path.
func (b *Buffer) ReceiveTime() time.Time {
	return b.recvTime
}

// SetReceiveTime stamps the buffer with its receive time.
func (b *Buffer) SetReceiveTime(t time.Time) {
	b.recvTime = t
}

// SrcMAC returns the source MAC recorded in the buffer's Ethernet header
// (or the originating NIC's address for in-process frames).
func (b *Buffer) SrcMAC() wire.PhysicalAddress {
	return b.srcMAC
}

// SetSrcMAC sets the source MAC.
func (b *Buffer) SetSrcMAC(a wire.PhysicalAddress) {
	b.srcMAC = a
}

// DstMAC returns the destination MAC the buffer should be (or was) sent to.
func (b *Buffer) DstMAC() wire.PhysicalAddress {
	return b.dstMAC
}

// SetDstMAC sets the destination MAC.
func (b *Buffer) SetDstMAC(a wire.PhysicalAddress) {
	b.dstMAC = a
}

// reset zeroes the frame contents and clears the bookkeeping fields.
func (b *Buffer) reset() {
	for i := range b.raw {
		b.raw[i] = 0
	}
	b.size = 0
	b.srcMAC = wire.PhysicalAddress{}
	b.dstMAC = wire.PhysicalAddress{}
	b.recvTime = time.Time{}
}
