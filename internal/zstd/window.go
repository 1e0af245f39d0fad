// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package zstd

import "io"

// DecodeBuffer is the sliding window sequence execution writes into: it
// holds at least the last windowSize emitted bytes (so later sequences can
// reference them) plus whatever the caller has not yet drained. Bytes are
// only physically dropped from the front once they are both drained and
// fall outside the window.
//
// windowSize is a bound on addressable history, not an eager allocation:
// the backing slice grows with append as bytes are emitted, the same way
// the rest of this package favors lazily-grown slices over pre-sized
// ring buffers.
type DecodeBuffer struct {
	buf  []byte
	base uint64 // absolute index of buf[0]

	emitted  uint64 // absolute index of the next byte to be appended
	drainPos uint64 // absolute index of the next byte owed to the caller

	windowSize uint64
}

// NewDecodeBuffer returns an empty buffer that will retain up to windowSize
// bytes of addressable history.
func NewDecodeBuffer(windowSize uint64) *DecodeBuffer {
	return &DecodeBuffer{windowSize: windowSize}
}

// BytesEmitted reports the total number of bytes appended to the buffer
// across its lifetime (i.e. within the current frame).
func (b *DecodeBuffer) BytesEmitted() uint64 {
	return b.emitted
}

// AppendLiteral copies data to the end of the window.
func (b *DecodeBuffer) AppendLiteral(data []byte) {
	b.buf = append(b.buf, data...)
	b.emitted += uint64(len(data))
}

// AppendByte appends count copies of v, used for RLE blocks.
func (b *DecodeBuffer) AppendByte(v byte, count uint32) {
	start := len(b.buf)
	b.buf = append(b.buf, make([]byte, count)...)
	for i := start; i < len(b.buf); i++ {
		b.buf[i] = v
	}
	b.emitted += uint64(count)
}

// CopyMatch appends a match_length-byte copy from offset bytes behind the
// current end of the window. offset and length are validated against the
// window and the bytes emitted so far in the frame; when offset < length
// the source and destination regions overlap, which this copies
// byte-by-byte (a bulk copy would read bytes that haven't been written yet
// on the source side, or clobber them on the destination side).
func (b *DecodeBuffer) CopyMatch(offset uint64, length uint32) error {
	if offset == 0 {
		return newErr(CorruptedSequence, -1, "zero offset")
	}
	if offset > b.emitted {
		return newErr(CorruptedSequence, -1, "offset %d exceeds %d bytes emitted", offset, b.emitted)
	}
	if offset > b.windowSize {
		return newErr(CorruptedSequence, -1, "offset %d exceeds window size %d", offset, b.windowSize)
	}

	srcAbs := b.emitted - offset
	srcIdx := int(srcAbs - b.base)
	dstStart := len(b.buf)
	b.buf = append(b.buf, make([]byte, length)...)
	for i := 0; i < int(length); i++ {
		b.buf[dstStart+i] = b.buf[srcIdx+i]
	}
	b.emitted += uint64(length)
	return nil
}

// Drainable reports how many undrained bytes are currently available.
func (b *DecodeBuffer) Drainable() int {
	return int(b.emitted - b.drainPos)
}

// Drain copies up to len(p) undrained bytes into p and returns how many
// were copied, advancing past them and trimming any bytes that are now
// both drained and outside the window.
func (b *DecodeBuffer) Drain(p []byte) int {
	avail := b.Drainable()
	n := len(p)
	if n > avail {
		n = avail
	}
	if n == 0 {
		b.trim()
		return 0
	}
	start := int(b.drainPos - b.base)
	copy(p, b.buf[start:start+n])
	b.drainPos += uint64(n)
	b.trim()
	return n
}

// writeRangeTo writes the still-resident bytes in the absolute range
// [from, to) to w; it is used to feed a frame's checksum accumulator
// bytes as they are emitted, before the caller has necessarily drained
// them. Callers must only pass a range that has not yet been trimmed
// (i.e. from must be >= the base at the time of the corresponding
// append), which holds for the decoder's synchronous per-block feed.
func (b *DecodeBuffer) writeRangeTo(w io.Writer, from, to uint64) {
	start := int(from - b.base)
	end := int(to - b.base)
	w.Write(b.buf[start:end])
}

// trim drops bytes from the front of buf that are both drained and older
// than the window, keeping the backing slice from growing without bound
// across a long decode.
func (b *DecodeBuffer) trim() {
	var windowFloor uint64
	if b.emitted > b.windowSize {
		windowFloor = b.emitted - b.windowSize
	}
	cutoff := b.drainPos
	if windowFloor < cutoff {
		cutoff = windowFloor
	}
	if cutoff <= b.base {
		return
	}
	drop := cutoff - b.base
	b.buf = b.buf[drop:]
	b.base += drop
}
