// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package zstd

import "encoding/binary"

const frameMagic = 0xFD2FB528

// skippableMagicLo and skippableMagicHi bound the range of magic numbers
// reserved for skippable frames: 0x184D2A50 through 0x184D2A5F.
const (
	skippableMagicLo = 0x184D2A50
	skippableMagicHi = 0x184D2A5F
)

// frameHeader is a fully parsed Frame_Header.
type frameHeader struct {
	windowSize      uint64
	haveContentSize bool
	contentSize     uint64
	checksumFlag    bool
	singleSegment   bool
}

// parseFrameHeaderDescriptor decodes byte 0 of a Frame_Header: bits 7-6
// Dictionary_ID_flag, bit 5 Content_Checksum_flag, bit 4 Reserved
// (must be 0), bit 3 Unused, bit 2 Single_Segment_flag, bits 1-0
// Frame_Content_Size_flag.
type frameHeaderDescriptor struct {
	dictIDFlag    uint8
	checksumFlag  bool
	singleSegment bool
	fcsFlag       uint8
}

func parseFrameHeaderDescriptor(b byte) (frameHeaderDescriptor, error) {
	if b&(1<<4) != 0 {
		return frameHeaderDescriptor{}, newErr(ReservedBit, -1, "reserved bit set in frame header descriptor")
	}
	return frameHeaderDescriptor{
		dictIDFlag:    (b >> 6) & 3,
		checksumFlag:  b&(1<<5) != 0,
		singleSegment: b&(1<<2) != 0,
		fcsFlag:       b & 3,
	}, nil
}

// dictionaryIDSize maps a 2-bit Dictionary_ID_flag to the byte width of
// the Dictionary_ID field that follows the frame header descriptor (and,
// if present, the window descriptor).
func dictionaryIDSize(flag uint8) int {
	switch flag {
	case 0:
		return 0
	case 1:
		return 1
	case 2:
		return 2
	default:
		return 4
	}
}

// frameContentSizeFieldSize returns the byte width of the
// Frame_Content_Size field, which depends on both its own flag and
// Single_Segment_flag: flag 0 with single-segment set still carries a
// 1-byte size (it is otherwise the "unknown size, rely on window only"
// case).
func frameContentSizeFieldSize(fcsFlag uint8, singleSegment bool) int {
	switch fcsFlag {
	case 0:
		if singleSegment {
			return 1
		}
		return 0
	case 1:
		return 2
	case 2:
		return 4
	default:
		return 8
	}
}

// decodeFrameContentSize interprets the little-endian bytes of a
// Frame_Content_Size field; the 2-byte form stores (value - 256) on the
// wire.
func decodeFrameContentSize(b []byte) uint64 {
	switch len(b) {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(b)) + 256
	case 4:
		return uint64(binary.LittleEndian.Uint32(b))
	case 8:
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}

// windowSizeFromDescriptor decodes the 1-byte Window_Descriptor (bits
// 7-3 Exponent, bits 2-0 Mantissa) into a window size, per the format's
// base-plus-fractional-step formula.
func windowSizeFromDescriptor(b byte) uint64 {
	exponent := uint(b >> 3)
	mantissa := uint64(b & 7)
	base := uint64(1) << (10 + exponent)
	step := base / 8
	return base + step*mantissa
}
