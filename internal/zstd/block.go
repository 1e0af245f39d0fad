// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package zstd

// blockType is the 2-bit Block_Type field of a Block_Header.
type blockType uint8

const (
	blockRaw blockType = iota
	blockRLE
	blockCompressed
	blockReserved
)

// maxBlockSize bounds both a block's on-wire size and, per spec, the
// window size it may be compressed against; it is the same 128 KiB cap
// the teacher uses for its own block size (bzip2's blockSize is
// similarly capped by compression level, just computed differently).
const maxBlockSize = 128 << 10

// blockHeader is a parsed 3-byte Block_Header.
type blockHeader struct {
	last bool
	typ  blockType
	size uint32 // byte count for Raw/Compressed; repeat count for RLE
}

// parseBlockHeader reads a 3-byte, 24-bit little-endian packed header:
// bit 0 is Last_Block, bits 1-2 are Block_Type, and the remaining 21
// bits are Block_Size.
func parseBlockHeader(b [3]byte) (blockHeader, error) {
	v := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
	h := blockHeader{
		last: v&1 != 0,
		typ:  blockType((v >> 1) & 3),
		size: v >> 3,
	}
	if h.typ == blockReserved {
		return blockHeader{}, newErr(ReservedBit, -1, "reserved block type")
	}
	return h, nil
}

// decodeBlockBody decodes one block's payload (the bytes following its
// 3-byte header) into d.win, given the already-parsed header.
func (d *Decoder) decodeBlockBody(h blockHeader, payload []byte) error {
	switch h.typ {
	case blockRaw:
		d.win.AppendLiteral(payload)
		return nil

	case blockRLE:
		if len(payload) < 1 {
			return newErr(TruncatedInput, -1, "empty RLE block payload")
		}
		d.win.AppendByte(payload[0], h.size)
		return nil

	case blockCompressed:
		lit, consumed, err := d.parseLiterals(payload)
		if err != nil {
			return err
		}
		return d.decodeSequencesSection(payload[consumed:], lit)
	}
	return newErr(ReservedBit, -1, "reserved block type")
}

// blockPayloadSize returns how many bytes of wire data decodeBlockBody
// needs for h: the declared size for Raw/Compressed blocks (which is a
// literal byte count), but exactly 1 byte for RLE blocks (whose declared
// size is a repeat count, not a payload length).
func blockPayloadSize(h blockHeader) uint32 {
	if h.typ == blockRLE {
		return 1
	}
	return h.size
}
