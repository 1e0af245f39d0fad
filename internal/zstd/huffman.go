// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package zstd

import (
	"math/bits"

	"github.com/cosnicolaou/zstd/internal/bitstream"
)

const (
	huffmanMaxSymbol    = 255
	huffmanMaxTableLog  = 11
	huffmanWeightAccLog = 6 // accuracy log used by the FSE table that compresses weights
)

// huffmanDecodeTable is a built canonical Huffman decoding table: a flat,
// 1<<tableLog array indexed by the next tableLog bits off the stream, each
// slot holding the symbol that prefix decodes to and how many of those bits
// actually belong to its code.
type huffmanDecodeTable struct {
	tableLog uint
	symbol   []uint8
	nbBits   []uint8
}

// huffmanEncodeEntry is one symbol's canonical Huffman code, MSB-first
// within the low nbBits of code.
type huffmanEncodeEntry struct {
	code   uint32
	nbBits uint8
}

// huffmanEncodeTable is a built canonical Huffman encoding table.
type huffmanEncodeTable struct {
	tableLog uint
	entries  [huffmanMaxSymbol + 1]huffmanEncodeEntry
}

// parseHuffmanWeights reads a Huffman_Tree_Description (spec section on
// literals), returning the transmitted weights, one per symbol up to but
// not including the last present symbol, and the number of bytes the
// description occupied. The implied last weight, which makes the sum of
// 2^(weight-1) a power of two, is not included: buildHuffmanDecodeTable
// derives and appends it.
func parseHuffmanWeights(data []byte) ([]uint8, int, error) {
	if len(data) == 0 {
		return nil, 0, newErr(TruncatedInput, -1, "empty Huffman tree description")
	}
	header := data[0]
	if header < 128 {
		// FSE-compressed weights: header is the compressed size in bytes.
		size := int(header)
		if size == 0 || 1+size > len(data) {
			return nil, 0, newErr(TruncatedInput, -1, "truncated FSE-compressed Huffman weights")
		}
		weights, err := decodeFSECompressedWeights(data[1 : 1+size])
		if err != nil {
			return nil, 0, err
		}
		return weights, 1 + size, nil
	}
	// Direct 4-bit weights: header-127 symbols are encoded, each in a nibble.
	numSymbols := int(header) - 127
	nibbleBytes := (numSymbols + 1) / 2
	if 1+nibbleBytes > len(data) {
		return nil, 0, newErr(TruncatedInput, -1, "truncated direct Huffman weights")
	}
	weights := make([]uint8, numSymbols)
	for i := 0; i < numSymbols; i++ {
		b := data[1+i/2]
		if i%2 == 0 {
			weights[i] = b >> 4
		} else {
			weights[i] = b & 0xF
		}
	}
	return weights, 1 + nibbleBytes, nil
}

// decodeFSECompressedWeights decodes a run of Huffman symbol weights that
// were themselves FSE-compressed with a single alphabet of size 12 (weights
// 0..11, since no tree deeper than tableLog 11 is legal).
func decodeFSECompressedWeights(data []byte) ([]uint8, error) {
	fr := bitstream.NewForwardBitReader(data)
	counts, accLog, err := parseFSENormalizedCounts(fr, 11, huffmanWeightAccLog)
	if err != nil {
		return nil, err
	}
	fr.AlignToByte()
	headerBytes := fr.BytePos()
	table, err := buildFSEDecodeTable(counts, accLog)
	if err != nil {
		return nil, err
	}

	rr, err := bitstream.NewReverseBitReader(data[headerBytes:])
	if err != nil {
		return nil, newErr(CorruptedHuffmanTree, -1, "Huffman weight stream: %v", err)
	}
	s1, err := newFSEState(table, rr)
	if err != nil {
		return nil, err
	}
	s2, err := newFSEState(table, rr)
	if err != nil {
		return nil, err
	}

	var weights []uint8
	for rr.Remaining() > 0 {
		weights = append(weights, s1.symbol())
		if err := s1.update(rr); err != nil {
			return nil, err
		}
		if rr.Remaining() <= 0 {
			weights = append(weights, s2.symbol())
			break
		}
		weights = append(weights, s2.symbol())
		if err := s2.update(rr); err != nil {
			return nil, err
		}
	}
	return weights, nil
}

// buildHuffmanDecodeTable turns per-symbol weights (as produced by
// parseHuffmanWeights, with the implied final weight appended) into a
// decode table, following the canonical rule: a symbol with weight w gets a
// code of length (maxBits - w + 1), and codes are assigned in increasing
// symbol order within each length class, numerically ascending.
func buildHuffmanDecodeTable(weights []uint8) (*huffmanDecodeTable, error) {
	if len(weights) == 0 {
		return nil, newErr(CorruptedHuffmanTree, -1, "no Huffman weights")
	}
	if len(weights) > huffmanMaxSymbol+1 {
		return nil, newErr(CorruptedHuffmanTree, -1, "too many Huffman symbols")
	}

	maxWeight := uint8(0)
	sumPow2 := uint32(0)
	for _, w := range weights {
		if w > maxWeight {
			maxWeight = w
		}
		if w > 0 {
			sumPow2 += uint32(1) << (w - 1)
		}
	}
	if maxWeight == 0 || maxWeight > huffmanMaxTableLog {
		return nil, newErr(CorruptedHuffmanTree, -1, "invalid max Huffman weight %d", maxWeight)
	}
	tableLog := uint(bits.Len32(sumPow2-1)) + 1
	if tableLog > huffmanMaxTableLog {
		return nil, newErr(CorruptedHuffmanTree, -1, "Huffman table log %d too large", tableLog)
	}
	total := uint32(1) << tableLog
	last := total - sumPow2
	if last == 0 || last&(last-1) != 0 {
		return nil, newErr(CorruptedHuffmanTree, -1, "implied last weight is not a power of two")
	}
	lastWeight := uint8(bits.Len32(last))

	allWeights := make([]uint8, len(weights)+1)
	copy(allWeights, weights)
	allWeights[len(weights)] = lastWeight

	return buildHuffmanDecodeTableDirect(allWeights, tableLog)
}

// buildHuffmanDecodeTableDirect assigns canonical codes to symbols ordered
// by (length ascending, symbol ascending) and spreads each code across the
// flat decode table.
func buildHuffmanDecodeTableDirect(allWeights []uint8, tableLog uint) (*huffmanDecodeTable, error) {
	type symLen struct {
		sym    uint8
		length uint8
	}
	var entries []symLen
	for sym, w := range allWeights {
		if w == 0 {
			continue
		}
		length := uint8(tableLog) - w + 1
		entries = append(entries, symLen{sym: uint8(sym), length: length})
	}
	// Stable sort by length then symbol: entries are already in ascending
	// symbol order from the loop above, so a stable sort by length alone
	// suffices to get (length, symbol) order.
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].length < entries[j-1].length; j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}

	total := uint32(1) << tableLog
	decodeSymbol := make([]uint8, total)
	decodeBits := make([]uint8, total)

	code := uint32(0)
	prevLen := uint8(0)
	for _, e := range entries {
		if e.length != prevLen {
			code <<= (e.length - prevLen)
			prevLen = e.length
		}
		// code is an MSB-first length-bit value; the decode table is
		// indexed by the next tableLog bits taken MSB-first off the
		// stream, so spread this code across all suffixes.
		shift := tableLog - uint(e.length)
		base := code << shift
		for suffix := uint32(0); suffix < uint32(1)<<shift; suffix++ {
			decodeSymbol[base+suffix] = e.sym
			decodeBits[base+suffix] = e.length
		}
		code++
	}

	return &huffmanDecodeTable{tableLog: tableLog, symbol: decodeSymbol, nbBits: decodeBits}, nil
}

// decode reads one symbol from r using t, MSB-first (Huffman streams, like
// FSE streams, are read via a ReverseBitReader).
func (t *huffmanDecodeTable) decode(r *bitstream.ReverseBitReader) (uint8, error) {
	n := t.tableLog
	if uint(r.Remaining()) < n {
		n = uint(r.Remaining())
	}
	peeked, err := r.PeekBits(n)
	if err != nil {
		return 0, newErr(TruncatedInput, -1, "Huffman decode: %v", err)
	}
	idx := peeked << (t.tableLog - n)
	sym := t.symbol[idx]
	nb := t.nbBits[idx]
	if uint(nb) > n {
		return 0, newErr(CorruptedHuffmanTree, -1, "Huffman code runs past end of stream")
	}
	if err := r.Advance(uint(nb)); err != nil {
		return 0, newErr(TruncatedInput, -1, "Huffman decode: %v", err)
	}
	return sym, nil
}

// buildHuffmanEncodeTable builds an encoder-side table from the same
// per-symbol weights used on decode, assigning canonical MSB-first codes.
func buildHuffmanEncodeTable(allWeights []uint8, tableLog uint) *huffmanEncodeTable {
	type symLen struct {
		sym    uint8
		length uint8
	}
	var entries []symLen
	for sym, w := range allWeights {
		if w == 0 {
			continue
		}
		length := uint8(tableLog) - w + 1
		entries = append(entries, symLen{sym: uint8(sym), length: length})
	}
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].length < entries[j-1].length; j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}

	t := &huffmanEncodeTable{tableLog: tableLog}
	code := uint32(0)
	prevLen := uint8(0)
	for _, e := range entries {
		if e.length != prevLen {
			code <<= (e.length - prevLen)
			prevLen = e.length
		}
		t.entries[e.sym] = huffmanEncodeEntry{code: code, nbBits: e.length}
		code++
	}
	return t
}

// encode pushes the symbol's canonical code onto w.
func (t *huffmanEncodeTable) encode(w *bitstream.BitWriter, symbol uint8) error {
	e := t.entries[symbol]
	if e.nbBits == 0 {
		return newErr(CorruptedHuffmanTree, -1, "symbol %d has no Huffman code", symbol)
	}
	// The code is pushed as-is: a ReverseBitReader's PeekBits returns an
	// AddBits value unchanged, with its most significant bit first in
	// stream order, which is exactly the MSB-first index decode looks up
	// in the table.
	w.AddBits(uint64(e.code), uint(e.nbBits))
	return nil
}

func reverseBits(v uint32, n uint) uint32 {
	var out uint32
	for i := uint(0); i < n; i++ {
		out = (out << 1) | (v & 1)
		v >>= 1
	}
	return out
}

// weightsForDirectEncode builds a complete canonical-code weight
// assignment for the baseline encoder's flat (frequency-blind) Huffman
// tree. The wire format always omits the highest-value present symbol's
// weight and reconstructs it from the others, which constrains the
// assignment: the other present symbols (call them the "rest") must
// have weights summing, as 2^(w-1), to exactly a power of two, and the
// omitted symbol's weight is then forced to be the table log itself
// (see buildHuffmanDecodeTable's derivation). This builds that shape
// directly: the rest get the standard near-balanced two-depth-level
// canonical lengths for their count, and the highest present symbol
// takes the remaining half of the code space on its own. The baseline
// encoder always emits the result directly as 4-bit nibbles (see
// DESIGN.md): building an FSE-compressed weight stream is decode-only
// functionality here.
func weightsForDirectEncode(freq [huffmanMaxSymbol + 1]int) ([]uint8, int) {
	var present []int
	for sym, f := range freq {
		if f > 0 {
			present = append(present, sym)
		}
	}
	if len(present) == 0 {
		return nil, 0
	}
	maxSym := present[len(present)-1]
	weights := make([]uint8, maxSym+1)
	if len(present) == 1 {
		weights[maxSym] = 1
		return weights, maxSym + 1
	}

	rest := present[:len(present)-1]
	n := len(rest)
	// t is the table log of a standalone complete tree over just rest;
	// numShort of them get the shorter-by-one length (weight 2), the
	// remainder get weight 1, so their weights sum to exactly 1<<t.
	t := uint(bits.Len32(uint32(n - 1)))
	numShort := (1 << t) - n
	for i, sym := range rest {
		if i < numShort {
			weights[sym] = 2
		} else {
			weights[sym] = 1
		}
	}
	weights[maxSym] = uint8(t + 1)
	return weights, maxSym + 1
}
