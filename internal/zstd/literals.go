// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package zstd

import (
	"encoding/binary"

	"github.com/cosnicolaou/zstd/internal/bitstream"
)

// literalsBlockType is the 2-bit Literals_Block_Type field of a Literals
// Section header.
type literalsBlockType uint8

const (
	literalsRaw literalsBlockType = iota
	literalsRLE
	literalsCompressed
	literalsTreeless
)

// literalsHeader is a parsed Literals_Section_Header: how many header
// bytes it occupied, the block type, how many bytes the decoded literals
// stream should produce, and (for the compressed sub-types) how many
// bytes and streams the compressed payload itself carries.
type literalsHeader struct {
	kind       literalsBlockType
	headerSize int
	regenSize  int
	compSize   int // only meaningful for compressed/treeless
	streams    int // 1 or 4, only meaningful for compressed/treeless
}

// parseLiteralsHeader reads the Literals_Section_Header from the front of
// data, following the size-format table the zstd format specifies: Raw
// and RLE blocks pack a 5- or 12-bit Regenerated_Size into 1 or 2 header
// bytes, while Compressed and Treeless blocks pack Regenerated_Size and
// Compressed_Size together at one of three widths (10+10 in 3 bytes,
// 14+14 in 4, or 18+18 in 5), with Size_Format additionally selecting
// between a 1-stream and 4-stream compressed payload.
func parseLiteralsHeader(data []byte) (literalsHeader, error) {
	if len(data) == 0 {
		return literalsHeader{}, newErr(TruncatedInput, -1, "empty literals section")
	}
	kind := literalsBlockType(data[0] & 3)
	sizeFormat := (data[0] >> 2) & 3

	switch kind {
	case literalsRaw, literalsRLE:
		if sizeFormat&1 == 0 {
			return literalsHeader{kind: kind, headerSize: 1, regenSize: int(data[0] >> 3), streams: 1}, nil
		}
		if len(data) < 2 {
			return literalsHeader{}, newErr(TruncatedInput, -1, "truncated literals header")
		}
		regen := int(data[0])>>4 | int(data[1])<<4
		return literalsHeader{kind: kind, headerSize: 2, regenSize: regen, streams: 1}, nil

	case literalsCompressed, literalsTreeless:
		switch sizeFormat {
		case 0, 1:
			if len(data) < 3 {
				return literalsHeader{}, newErr(TruncatedInput, -1, "truncated literals header")
			}
			v := uint32(data[0]) | uint32(data[1])<<8 | uint32(data[2])<<16
			h := literalsHeader{
				kind:       kind,
				headerSize: 3,
				regenSize:  int((v >> 4) & 0x3FF),
				compSize:   int((v >> 14) & 0x3FF),
				streams:    1,
			}
			if sizeFormat == 1 {
				h.streams = 4
			}
			return h, nil
		case 2:
			if len(data) < 4 {
				return literalsHeader{}, newErr(TruncatedInput, -1, "truncated literals header")
			}
			v := binary.LittleEndian.Uint32(data[0:4])
			return literalsHeader{
				kind:       kind,
				headerSize: 4,
				regenSize:  int((v >> 4) & 0x3FFF),
				compSize:   int((v >> 18) & 0x3FFF),
				streams:    4,
			}, nil
		default: // 3
			if len(data) < 5 {
				return literalsHeader{}, newErr(TruncatedInput, -1, "truncated literals header")
			}
			v := uint64(data[0]) | uint64(data[1])<<8 | uint64(data[2])<<16 | uint64(data[3])<<24 | uint64(data[4])<<32
			return literalsHeader{
				kind:       kind,
				headerSize: 5,
				regenSize:  int((v >> 4) & 0x3FFFF),
				compSize:   int((v >> 22) & 0x3FFFF),
				streams:    4,
			}, nil
		}
	}
	return literalsHeader{}, newErr(ReservedBit, -1, "invalid literals block type")
}

// parseLiterals decodes the Literals section at the front of a
// Compressed block's payload, returning the regenerated literal bytes
// and the number of payload bytes consumed. The frame's current Huffman
// tree (d.huff) is read for Treeless reuse and replaced whenever a new
// tree is parsed; it is never touched for Raw/RLE sub-types.
func (d *Decoder) parseLiterals(payload []byte) ([]byte, int, error) {
	h, err := parseLiteralsHeader(payload)
	if err != nil {
		return nil, 0, err
	}

	switch h.kind {
	case literalsRaw:
		end := h.headerSize + h.regenSize
		if end > len(payload) {
			return nil, 0, newErr(TruncatedInput, -1, "truncated raw literals")
		}
		lit := make([]byte, h.regenSize)
		copy(lit, payload[h.headerSize:end])
		return lit, end, nil

	case literalsRLE:
		if h.headerSize+1 > len(payload) {
			return nil, 0, newErr(TruncatedInput, -1, "truncated RLE literals")
		}
		v := payload[h.headerSize]
		lit := make([]byte, h.regenSize)
		for i := range lit {
			lit[i] = v
		}
		return lit, h.headerSize + 1, nil

	case literalsCompressed, literalsTreeless:
		end := h.headerSize + h.compSize
		if end > len(payload) {
			return nil, 0, newErr(TruncatedInput, -1, "truncated compressed literals")
		}
		body := payload[h.headerSize:end]

		var table *huffmanDecodeTable
		streamStart := 0
		if h.kind == literalsCompressed {
			weights, n, err := parseHuffmanWeights(body)
			if err != nil {
				return nil, 0, err
			}
			table, err = buildHuffmanDecodeTable(weights)
			if err != nil {
				return nil, 0, err
			}
			d.huff = table
			streamStart = n
		} else {
			if d.huff == nil {
				return nil, 0, newErr(MissingPreviousTable, -1, "treeless literals with no previous Huffman tree")
			}
			table = d.huff
		}

		lit, err := decodeHuffmanLiterals(table, body[streamStart:], h.regenSize, h.streams)
		if err != nil {
			return nil, 0, err
		}
		return lit, end, nil
	}
	return nil, 0, newErr(ReservedBit, -1, "invalid literals block type")
}

// decodeHuffmanLiterals runs table over either a single reverse bit
// stream (streams==1) or four independently-initialized streams
// delimited by a 3-entry jump table (streams==4), per §4.3.
func decodeHuffmanLiterals(table *huffmanDecodeTable, data []byte, regenSize, streams int) ([]byte, error) {
	out := make([]byte, regenSize)
	if regenSize == 0 {
		return out, nil
	}

	if streams == 1 {
		rr, err := bitstream.NewReverseBitReader(data)
		if err != nil {
			return nil, newErr(TruncatedInput, -1, "Huffman literal stream: %v", err)
		}
		for i := 0; i < regenSize; i++ {
			sym, err := table.decode(rr)
			if err != nil {
				return nil, err
			}
			out[i] = sym
		}
		return out, nil
	}

	if len(data) < 6 {
		return nil, newErr(TruncatedInput, -1, "truncated Huffman jump table")
	}
	s1 := int(binary.LittleEndian.Uint16(data[0:2]))
	s2 := int(binary.LittleEndian.Uint16(data[2:4]))
	s3 := int(binary.LittleEndian.Uint16(data[4:6]))
	body := data[6:]
	if s1 < 0 || s2 < 0 || s3 < 0 || s1+s2+s3 > len(body) {
		return nil, newErr(TruncatedInput, -1, "Huffman jump table exceeds stream data")
	}

	segment := (regenSize + 3) / 4
	sizes := [4]int{segment, segment, segment, regenSize - 3*segment}
	if sizes[3] < 0 {
		return nil, newErr(CorruptedHuffmanTree, -1, "invalid 4-stream literals size split")
	}
	streamData := [4][]byte{body[:s1], body[s1 : s1+s2], body[s1+s2 : s1+s2+s3], body[s1+s2+s3:]}

	pos := 0
	for i := 0; i < 4; i++ {
		if sizes[i] == 0 {
			continue
		}
		rr, err := bitstream.NewReverseBitReader(streamData[i])
		if err != nil {
			return nil, newErr(TruncatedInput, -1, "Huffman literal stream %d: %v", i, err)
		}
		for j := 0; j < sizes[i]; j++ {
			sym, err := table.decode(rr)
			if err != nil {
				return nil, err
			}
			out[pos] = sym
			pos++
		}
	}
	return out, nil
}
