// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package zstd

import (
	"encoding/binary"
	"hash"

	"github.com/cosnicolaou/zstd/internal/bitstream"
)

// EncOption configures an Encoder.
type EncOption func(*Encoder)

// WithChecksum controls whether Encode appends a trailing XXH64 content
// checksum frame field.
func WithChecksum(v bool) EncOption {
	return func(e *Encoder) { e.checksum = v }
}

// WithEncodeHash overrides the checksum accumulator constructor, which
// defaults to defaultNewHash (xxhash.go).
func WithEncodeHash(newHash func() hash.Hash64) EncOption {
	return func(e *Encoder) { e.newHash = newHash }
}

// WithStoreOnly forces every block to be emitted as Raw (or as RLE when
// all its bytes are equal), skipping the match finder and entropy coders entirely. It backs the top-level
// Uncompressed level, which the package's Open Question resolution says
// must store rather than silently fall back to Fastest.
func WithStoreOnly(v bool) EncOption {
	return func(e *Encoder) { e.storeOnly = v }
}

// WithBlockSize caps the size of each emitted block. It is clamped to
// [1, maxBlockSize]; the default is maxBlockSize itself. Smaller blocks
// trade compression ratio (shorter match windows, more header overhead)
// for smaller per-block memory during encoding.
func WithBlockSize(n uint32) EncOption {
	return func(e *Encoder) {
		if n == 0 {
			n = maxBlockSize
		}
		if n > maxBlockSize {
			n = maxBlockSize
		}
		e.blockSize = n
	}
}

// WithWindowSize bounds how far back within a block the match finder
// looks for a repeat, mirroring (within a single block, since this
// baseline encoder never matches across block boundaries) the format's
// Window_Size concept. 0, the default, leaves the search unbounded
// within the block.
func WithWindowSize(n uint32) EncOption {
	return func(e *Encoder) { e.windowSize = n }
}

// Encoder is the baseline "fastest" zstd compressor: a single hash-chain
// match finder (matcher.go) feeding a greedy literal/sequence split,
// literals Huffman-coded when that shrinks the block and left raw
// otherwise, and sequences FSE-coded against the format's predefined
// distributions (see predefined.go and DESIGN.md) rather than tables
// rebuilt per block. Its correctness bar is that every frame it emits
// decodes, byte for byte, back to the input through Decoder.
type Encoder struct {
	checksum   bool
	storeOnly  bool
	newHash    func() hash.Hash64
	blockSize  uint32
	windowSize uint32
}

// NewEncoder returns an Encoder configured by opts.
func NewEncoder(opts ...EncOption) *Encoder {
	e := &Encoder{newHash: defaultNewHash, blockSize: maxBlockSize}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Encode compresses input as a single zstd frame and returns the result.
func (e *Encoder) Encode(input []byte) []byte {
	out := make([]byte, 0, len(input)/2+64)
	out = appendFrameHeader(out, uint64(len(input)), e.checksum)

	var hasher hash.Hash64
	if e.checksum {
		hasher = e.newHash()
	}

	repOffsets := [3]uint64{1, 4, 8}
	if len(input) == 0 {
		out = appendBlock(out, nil, true, &repOffsets, e.storeOnly, int(e.windowSize))
	}
	blockSize := int(e.blockSize)
	if blockSize <= 0 || blockSize > maxBlockSize {
		blockSize = maxBlockSize
	}
	for start := 0; start < len(input); {
		end := start + blockSize
		if end > len(input) {
			end = len(input)
		}
		block := input[start:end]
		if hasher != nil {
			hasher.Write(block)
		}
		out = appendBlock(out, block, end == len(input), &repOffsets, e.storeOnly, int(e.windowSize))
		start = end
	}

	if hasher != nil {
		var sum [4]byte
		binary.LittleEndian.PutUint32(sum[:], uint32(hasher.Sum64()))
		out = append(out, sum[:]...)
	}
	return out
}

// appendFrameHeader writes the magic number, a single-segment frame
// header descriptor, and a Frame_Content_Size field sized to
// contentSize, following the same flag/width rules frame.go parses.
func appendFrameHeader(out []byte, contentSize uint64, checksum bool) []byte {
	var magic [4]byte
	binary.LittleEndian.PutUint32(magic[:], uint32(frameMagic))
	out = append(out, magic[:]...)

	var fcsFlag uint8
	var fcsBytes int
	switch {
	case contentSize < 256:
		fcsFlag, fcsBytes = 0, 1
	case contentSize < 65536+256:
		fcsFlag, fcsBytes = 1, 2
	case contentSize <= 0xFFFFFFFF:
		fcsFlag, fcsBytes = 2, 4
	default:
		fcsFlag, fcsBytes = 3, 8
	}

	desc := fcsFlag | 1<<2 // Single_Segment_flag
	if checksum {
		desc |= 1 << 5
	}
	out = append(out, desc)

	switch fcsBytes {
	case 1:
		out = append(out, byte(contentSize))
	case 2:
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], uint16(contentSize-256))
		out = append(out, b[:]...)
	case 4:
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(contentSize))
		out = append(out, b[:]...)
	case 8:
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], contentSize)
		out = append(out, b[:]...)
	}
	return out
}

// appendBlock encodes one block of input (RLE, Raw, or Compressed,
// whichever is smallest) and appends its 3-byte header plus payload to
// out. hist is the frame's repeat-offset history, threaded through so a
// Compressed block's sequences can use repeat codes across block
// boundaries exactly as Decoder expects. storeOnly skips the match
// finder and entropy coders entirely, always emitting Raw (or RLE for a
// degenerate all-same-byte block, which is still a literal store rather
// than a sequence match).
func appendBlock(out []byte, block []byte, last bool, hist *[3]uint64, storeOnly bool, windowSize int) []byte {
	if len(block) == 0 {
		return appendBlockHeader(out, last, blockRaw, 0, nil)
	}
	if allSameByte(block) {
		return appendBlockHeader(out, last, blockRLE, uint32(len(block)), block[:1])
	}
	if storeOnly {
		return appendBlockHeader(out, last, blockRaw, uint32(len(block)), block)
	}

	savedHist := *hist
	compressed, ok := encodeCompressedBlock(block, hist, windowSize)
	if ok && len(compressed) < len(block) {
		return appendBlockHeader(out, last, blockCompressed, uint32(len(compressed)), compressed)
	}
	*hist = savedHist
	return appendBlockHeader(out, last, blockRaw, uint32(len(block)), block)
}

// appendBlockHeader writes a 3-byte Block_Header for a block of the
// given wire-level size (the byte count for Raw/Compressed, or the
// repeat count for RLE, matching blockPayloadSize's interpretation),
// followed by payload.
func appendBlockHeader(out []byte, last bool, typ blockType, size uint32, payload []byte) []byte {
	v := uint32(0)
	if last {
		v |= 1
	}
	v |= uint32(typ) << 1
	v |= size << 3
	out = append(out, byte(v), byte(v>>8), byte(v>>16))
	return append(out, payload...)
}

func allSameByte(b []byte) bool {
	for i := 1; i < len(b); i++ {
		if b[i] != b[0] {
			return false
		}
	}
	return true
}

// sequence is one literal-run-plus-match pair found by the matcher.
type sequence struct {
	litStart  int
	litLength uint32
	offset    uint64
	matchLen  uint32
}

// encodeCompressedBlock builds a Compressed block's literals and
// sequences sections for block, returning false if the block has no
// sequences worth compressing (the caller falls back to Raw). hist is
// updated in place to reflect every sequence chosen, so the next block
// in the frame continues from the right repeat-offset state.
func encodeCompressedBlock(block []byte, hist *[3]uint64, windowSize int) ([]byte, bool) {
	seqs := findSequences(block, windowSize)
	if len(seqs) == 0 {
		return nil, false
	}

	var litBuf []byte
	var freq [huffmanMaxSymbol + 1]int
	for _, s := range seqs {
		run := block[s.litStart : s.litStart+int(s.litLength)]
		litBuf = append(litBuf, run...)
		for _, b := range run {
			freq[b]++
		}
	}

	literalsSection := encodeLiteralsSection(litBuf, freq)
	sequencesSection := encodeSequencesSection(seqs, hist)

	payload := make([]byte, 0, len(literalsSection)+len(sequencesSection))
	payload = append(payload, literalsSection...)
	payload = append(payload, sequencesSection...)
	return payload, true
}

// findSequences runs the hash-chain matcher greedily over block,
// returning the literal-run/match decomposition that covers it exactly:
// every byte belongs either to some sequence's literal run or to the
// match it precedes, and the final sequence's match may be followed by
// a tail of literals with no match (represented as a zero-length,
// zero-offset "sequence" so the caller always finds the full literal
// bytes via the seqs slice).
func findSequences(block []byte, windowSize int) []sequence {
	m := newMatcher(block, windowSize)
	var seqs []sequence
	litStart := 0
	pos := 0
	for pos < len(block) {
		offset, length := m.findMatch(pos)
		if length == 0 {
			m.insert(pos)
			pos++
			continue
		}
		seqs = append(seqs, sequence{
			litStart:  litStart,
			litLength: uint32(pos - litStart),
			offset:    uint64(offset),
			matchLen:  uint32(length),
		})
		for i := 0; i < length && pos+i < len(block); i++ {
			m.insert(pos + i)
		}
		pos += length
		litStart = pos
	}
	if litStart < len(block) {
		if len(seqs) == 0 {
			return nil
		}
		// Fold the trailing unmatched bytes into one final zero-length
		// sequence so decodeSequencesSection's "append tail literals"
		// path, and the symmetric logic here, never need special-casing
		// for where a block's literal bytes end.
		seqs = append(seqs, sequence{litStart: litStart, litLength: uint32(len(block) - litStart)})
	}
	return seqs
}

// rawLiteralsSizeLimit is the largest regenerated size a Raw or RLE
// Literals_Section_Header can carry (parseLiteralsHeader's 2-byte,
// 12-bit form); a literal run at or above this must be Huffman-coded
// instead, whether or not that shrinks it, since the format has no
// larger Raw/RLE literals encoding.
const rawLiteralsSizeLimit = 4096

// encodeLiteralsSection builds the Literals_Section for lit: Huffman
// coding is skipped in favor of Raw only when lit is both small and
// Huffman would not shrink it; runs at or above rawLiteralsSizeLimit
// always go through Huffman, which can represent any byte distribution.
// The tree is always freshly built (never treeless/reused) and its
// weights are emitted directly as 4-bit nibbles, matching the baseline
// encoder's "no rebuilt-per-block FSE, but always-fresh Huffman" split
// recorded in DESIGN.md.
func encodeLiteralsSection(lit []byte, freq [huffmanMaxSymbol + 1]int) []byte {
	if len(lit) == 0 {
		return appendRawLiteralsHeader(nil, lit)
	}
	if allSameByte(lit) {
		if len(lit) < rawLiteralsSizeLimit {
			return appendRLELiteralsHeader(nil, lit)
		}
		// A literal run this long and this uniform does not arise from
		// findSequences in practice: four repeated bytes already form a
		// match against the 4-byte-hash chain (matcherMinMatch), so the
		// match finder turns any such stretch into a sequence long before
		// a literal run could grow past rawLiteralsSizeLimit. A single
		// distinct byte also has no valid Huffman tree in this package's
		// decoder (buildHuffmanDecodeTable rejects an all-zero transmitted
		// weight set), so this case is deliberately left unhandled rather
		// than built around.
	}

	weights, numSymbols := weightsForDirectEncode(freq)
	allWeights := weights[:numSymbols]
	tableLog := huffmanTableLogFor(allWeights)
	enc := buildHuffmanEncodeTable(allWeights, tableLog)
	treeDesc := encodeHuffmanWeightsDirect(allWeights)

	huffSection := buildHuffmanLiteralsSection(enc, treeDesc, lit)
	if len(lit) >= rawLiteralsSizeLimit || len(huffSection) < len(lit)+1 {
		return huffSection
	}
	return appendRawLiteralsHeader(nil, lit)
}

// singleStreamSizeLimit is the largest regenerated or compressed size
// the single-stream Compressed_Literals_Block header form (3 bytes,
// 10+10 bits) can carry; literals sections at or above this size must
// use the 4-stream form instead, per parseLiteralsHeader.
const singleStreamSizeLimit = 1 << 10

// buildHuffmanLiteralsSection Huffman-codes lit against enc, choosing
// between a single reverse-bit stream (small sections, matching
// parseLiteralsHeader's 3-byte header) and the 4-stream jump-table form
// (everything else), and sizes the header to whichever of the three
// width classes parseLiteralsHeader supports fits the result.
func buildHuffmanLiteralsSection(enc *huffmanEncodeTable, treeDesc []byte, lit []byte) []byte {
	regenSize := len(lit)
	if regenSize < singleStreamSizeLimit {
		body := encodeHuffmanBody(enc, lit)
		if len(treeDesc)+len(body) < singleStreamSizeLimit {
			return appendCompressedLiteralsHeader(treeDesc, body, regenSize, 1)
		}
	}

	segment := (regenSize + 3) / 4
	sizes := [4]int{segment, segment, segment, regenSize - 3*segment}
	var bodies [4][]byte
	start := 0
	for i, n := range sizes {
		bodies[i] = encodeHuffmanBody(enc, lit[start:start+n])
		start += n
	}

	var jump [6]byte
	binary.LittleEndian.PutUint16(jump[0:2], uint16(len(bodies[0])))
	binary.LittleEndian.PutUint16(jump[2:4], uint16(len(bodies[1])))
	binary.LittleEndian.PutUint16(jump[4:6], uint16(len(bodies[2])))
	body := make([]byte, 0, 6+len(bodies[0])+len(bodies[1])+len(bodies[2])+len(bodies[3]))
	body = append(body, jump[:]...)
	for _, b := range bodies {
		body = append(body, b...)
	}
	return appendCompressedLiteralsHeader(treeDesc, body, regenSize, 4)
}

// encodeHuffmanBody Huffman-codes seg in isolation, as one independent
// reverse bit stream, returning nil for an empty segment (a
// ReverseBitReader cannot represent zero bits, so decodeHuffmanLiterals
// never opens a stream for a zero-length segment either).
func encodeHuffmanBody(enc *huffmanEncodeTable, seg []byte) []byte {
	if len(seg) == 0 {
		return nil
	}
	bw := bitstream.NewBitWriter(len(seg))
	for i := len(seg) - 1; i >= 0; i-- {
		enc.encode(bw, seg[i])
	}
	return bw.Finish()
}

// huffmanTableLogFor returns the table log implied by allWeights (the
// same derivation buildHuffmanDecodeTable uses on the decode side, so
// the encoder's own weights round-trip through it unchanged).
func huffmanTableLogFor(allWeights []uint8) uint {
	maxWeight := uint8(0)
	for _, w := range allWeights {
		if w > maxWeight {
			maxWeight = w
		}
	}
	return uint(maxWeight)
}

// appendRawLiteralsHeader writes a Raw_Literals_Block header (1 or 2
// byte Size_Format, per regenerated size) followed by lit itself.
func appendRawLiteralsHeader(out []byte, lit []byte) []byte {
	return appendLiteralsHeaderSmall(out, literalsRaw, lit, lit)
}

// appendRLELiteralsHeader writes an RLE_Literals_Block header for lit
// (whose bytes are all equal) followed by its single repeated byte.
func appendRLELiteralsHeader(out []byte, lit []byte) []byte {
	return appendLiteralsHeaderSmall(out, literalsRLE, lit, lit[:1])
}

// appendLiteralsHeaderSmall emits the 1- or 2-byte small-size-format
// header Raw/RLE literals blocks use for a section whose regenerated
// size is len(regen), then appends payload. Callers must keep
// len(regen) below rawLiteralsSizeLimit, the largest size this header
// form (parseLiteralsHeader's 12-bit path) can carry.
func appendLiteralsHeaderSmall(out []byte, kind literalsBlockType, regen []byte, payload []byte) []byte {
	n := len(regen)
	if n < 32 {
		out = append(out, byte(kind)|byte(n)<<3)
	} else {
		v := uint16(kind) | 1<<2 | uint16(n)<<4
		out = append(out, byte(v), byte(v>>8))
	}
	return append(out, payload...)
}

// appendCompressedLiteralsHeader emits a Compressed_Literals_Block
// (new Huffman tree) header sized to whichever of parseLiteralsHeader's
// three width classes fits regenSize and compSize=len(treeDesc)+len(body),
// for a stream count of 1 or 4, followed by treeDesc and body.
func appendCompressedLiteralsHeader(treeDesc, body []byte, regenSize, streams int) []byte {
	compSize := len(treeDesc) + len(body)
	var out []byte
	switch {
	case streams == 1 && regenSize < 1<<10 && compSize < 1<<10:
		v := uint32(literalsCompressed) | uint32(regenSize)<<4 | uint32(compSize)<<14
		out = append(out, byte(v), byte(v>>8), byte(v>>16))
	case regenSize < 1<<14 && compSize < 1<<14:
		// Size_Format == 2 (bit pattern 10) selects the 4-byte,
		// 14+14-bit header; parseLiteralsHeader hardcodes streams=4 for
		// this form, matching the 4-stream body built above.
		v := uint32(literalsCompressed) | 2<<2 | uint32(regenSize)<<4 | uint32(compSize)<<18
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], v)
		out = append(out, b[:]...)
	default:
		v := uint64(literalsCompressed) | 3<<2 | uint64(regenSize)<<4 | uint64(compSize)<<22
		var b [5]byte
		for i := range b {
			b[i] = byte(v >> (8 * uint(i)))
		}
		out = append(out, b[:]...)
	}
	out = append(out, treeDesc...)
	return append(out, body...)
}

// encodeHuffmanWeightsDirect emits a Huffman_Tree_Description using the
// direct (uncompressed) 4-bit-nibble form: a header byte of
// 127+numSymbols followed by ceil(numSymbols/2) nibble-packed bytes. The
// implied last weight is never transmitted, matching parseHuffmanWeights.
func encodeHuffmanWeightsDirect(allWeights []uint8) []byte {
	transmitted := allWeights[:len(allWeights)-1]
	out := make([]byte, 0, 1+(len(transmitted)+1)/2)
	out = append(out, byte(127+len(transmitted)))
	for i := 0; i < len(transmitted); i += 2 {
		hi := transmitted[i]
		lo := uint8(0)
		if i+1 < len(transmitted) {
			lo = transmitted[i+1]
		}
		out = append(out, hi<<4|lo)
	}
	return out
}

// extraBitsTuple is a (value, width) pair ready to push onto a
// BitWriter: value's low width bits are the sequence's extra bits for
// one of literal length, match length, or offset.
type extraBitsTuple struct {
	value uint64
	width uint
}

// encodeSequencesSection builds a Sequences_Section for seqs entirely
// in terms of the format's predefined LL/OF/ML distributions, updating
// hist (the frame's repeat-offset history) exactly as a decoder replaying
// these sequences through updateOffsetHistory would.
func encodeSequencesSection(seqs []sequence, hist *[3]uint64) []byte {
	nbSeq := len(seqs)
	llCodes := make([]uint8, nbSeq)
	mlCodes := make([]uint8, nbSeq)
	ofCodes := make([]uint8, nbSeq)
	llExtra := make([]extraBitsTuple, nbSeq)
	mlExtra := make([]extraBitsTuple, nbSeq)
	ofExtra := make([]extraBitsTuple, nbSeq)

	for i, s := range seqs {
		llCodes[i], llExtra[i] = findLengthCode(llBaseline, llExtraBits, s.litLength)
		if s.matchLen == 0 {
			// The folded trailing-literals pseudo-sequence carries no
			// match; it is only ever the last entry and is handled
			// specially below.
			continue
		}
		mlCodes[i], mlExtra[i] = findLengthCode(mlBaseline, mlExtraBits, s.matchLen)

		rawOffset := chooseOffsetCode(*hist, s.offset, s.litLength)
		actual := updateOffsetHistory(hist, rawOffset, s.litLength)
		_ = actual // equal to s.offset by chooseOffsetCode's construction
		code, width := offsetCode(uint32(rawOffset))
		ofCodes[i] = code
		ofExtra[i] = extraBitsTuple{value: rawOffset - (uint64(1) << code), width: width}
	}

	// The trailing pseudo-sequence (zero match length) does not belong
	// on the wire: its literal bytes are already included in the
	// literals section, but zstd sequences always carry a real match.
	// Drop it from the wire-level count, folding its literal length into
	// the preceding real sequence's run would change the encode's
	// internal bookkeeping, so instead: if present, merge it by simply
	// excluding it here and emitting it as additional literals handled
	// by decodeSequencesSection's tail-literal path (it receives exactly
	// len(lit)-consumed bytes already).
	realCount := nbSeq
	if nbSeq > 0 && seqs[nbSeq-1].matchLen == 0 {
		realCount = nbSeq - 1
	}

	header := appendSequencesHeader(nil, realCount)
	if realCount == 0 {
		return header
	}
	// All three alphabets use Predefined mode (00), so the
	// Symbol_Compression_Modes byte is simply 0.
	header = append(header, 0)

	bw := bitstream.NewBitWriter(realCount * 4)

	llState := initFSEEncodeState(llPredefinedEncodeTable, llCodes[realCount-1])
	ofState := initFSEEncodeState(ofPredefinedEncodeTable, ofCodes[realCount-1])
	mlState := initFSEEncodeState(mlPredefinedEncodeTable, mlCodes[realCount-1])

	for i := realCount - 1; i >= 0; i-- {
		if i != realCount-1 {
			ofState = encodeStep(ofState, ofCodes[i], bw)
			mlState = encodeStep(mlState, mlCodes[i], bw)
			llState = encodeStep(llState, llCodes[i], bw)
		}
		bw.AddBits(llExtra[i].value, llExtra[i].width)
		bw.AddBits(mlExtra[i].value, mlExtra[i].width)
		bw.AddBits(ofExtra[i].value, ofExtra[i].width)
	}
	mlState.flush(bw)
	ofState.flush(bw)
	llState.flush(bw)

	return append(header, bw.Finish()...)
}

// appendSequencesHeader writes the Number_of_Sequences varint, using the
// same three-width encoding parseSequencesHeader reads.
func appendSequencesHeader(out []byte, nbSeq int) []byte {
	switch {
	case nbSeq == 0:
		return append(out, 0)
	case nbSeq < 128:
		return append(out, byte(nbSeq))
	case nbSeq < 0x7F00:
		return append(out, byte((nbSeq>>8)+128), byte(nbSeq))
	default:
		v := nbSeq - 0x7F00
		return append(out, 255, byte(v), byte(v>>8))
	}
}

// findLengthCode returns the largest code whose baseline does not
// exceed value, and value's remainder above that baseline as an extra
// bits tuple, inverting llBaseline/extraBits or mlBaseline/extraBits.
func findLengthCode(baseline []uint32, extraBits []uint, value uint32) (uint8, extraBitsTuple) {
	code := 0
	for i := 1; i < len(baseline) && baseline[i] <= value; i++ {
		code = i
	}
	return uint8(code), extraBitsTuple{value: uint64(value - baseline[code]), width: extraBits[code]}
}
