// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package zstd

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

// decodeAll is a small test helper mirroring the public package's
// DecodeAll, built directly against this package's Decoder so these
// tests do not depend on the outer facade.
func decodeAll(t *testing.T, input []byte, opts ...Option) []byte {
	t.Helper()
	dec := NewDecoder(bytes.NewReader(input), opts...)
	out, err := io.ReadAll(dec)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

// TestEmptyFrame covers spec.md §8 scenario 1: magic plus a zero-byte
// Raw last block decodes to nothing. Descriptor 0x00 is not
// single-segment, so a window descriptor byte (0x00) precedes the block.
func TestEmptyFrame(t *testing.T) {
	frame := []byte{0x28, 0xB5, 0x2F, 0xFD, 0x00, 0x00, 0x01, 0x00, 0x00}
	out := decodeAll(t, frame)
	if len(out) != 0 {
		t.Errorf("got %q, want empty", out)
	}
}

// TestRawBlockRoundTrip covers scenario 2: a single Raw block with a
// declared frame content size.
func TestRawBlockRoundTrip(t *testing.T) {
	payload := []byte("hello")
	var frame []byte
	frame = appendFrameHeader(frame, uint64(len(payload)), false)
	frame = appendBlockHeader(frame, true, blockRaw, uint32(len(payload)), payload)

	out := decodeAll(t, frame)
	if string(out) != "hello" {
		t.Errorf("got %q, want %q", out, "hello")
	}
}

// TestRLEBlock covers scenario 3: a single RLE block.
func TestRLEBlock(t *testing.T) {
	var frame []byte
	frame = appendFrameHeader(frame, 1000, false)
	frame = appendBlockHeader(frame, true, blockRLE, 1000, []byte{0x41})

	out := decodeAll(t, frame)
	if len(out) != 1000 {
		t.Fatalf("got %d bytes, want 1000", len(out))
	}
	for i, b := range out {
		if b != 0x41 {
			t.Fatalf("byte %d = %#x, want 0x41", i, b)
		}
	}
}

// TestOverlapCopy covers scenario 5: a single literal byte followed by a
// sequence whose offset is smaller than its match length, exercising the
// overlapping-copy rule directly against DecodeBuffer.
func TestOverlapCopy(t *testing.T) {
	win := NewDecodeBuffer(1 << 10)
	win.AppendLiteral([]byte("a"))
	if err := win.CopyMatch(1, 9); err != nil {
		t.Fatal(err)
	}
	got := make([]byte, win.Drainable())
	win.Drain(got)
	if want := bytes.Repeat([]byte("a"), 10); !bytes.Equal(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

// TestWindowOverflow covers scenario 7: a sequence whose offset exceeds
// the window size is rejected rather than silently producing output.
func TestWindowOverflow(t *testing.T) {
	win := NewDecodeBuffer(16)
	win.AppendLiteral(bytes.Repeat([]byte("x"), 16))
	err := win.CopyMatch(17, 3)
	var zerr *Error
	if !errors.As(err, &zerr) || zerr.Kind != CorruptedSequence {
		t.Fatalf("got %v, want CorruptedSequence", err)
	}
}

// TestConcatenatedFrames covers scenario 8: two independent frames back
// to back decode as the concatenation of their outputs.
func TestConcatenatedFrames(t *testing.T) {
	var a []byte
	a = appendFrameHeader(a, 5, false)
	a = appendBlockHeader(a, true, blockRaw, 5, []byte("hello"))

	var b []byte
	b = appendFrameHeader(b, 1000, false)
	b = appendBlockHeader(b, true, blockRLE, 1000, []byte{0x41})

	out := decodeAll(t, append(a, b...))
	want := append([]byte("hello"), bytes.Repeat([]byte{0x41}, 1000)...)
	if !bytes.Equal(out, want) {
		t.Errorf("got %d bytes, want %d", len(out), len(want))
	}
}

// TestChecksumMismatch covers scenario 6: flipping a byte of a present
// content checksum is detected.
func TestChecksumMismatch(t *testing.T) {
	payload := []byte("hello")
	var frame []byte
	frame = appendFrameHeader(frame, uint64(len(payload)), true)
	frame = appendBlockHeader(frame, true, blockRaw, uint32(len(payload)), payload)

	h := defaultNewHash()
	h.Write(payload)
	var sum [4]byte
	sum[0] = byte(h.Sum64())
	sum[1] = byte(h.Sum64() >> 8)
	sum[2] = byte(h.Sum64() >> 16)
	sum[3] = byte(h.Sum64() >> 24)
	sum[0] ^= 0xFF // flip a byte
	frame = append(frame, sum[:]...)

	dec := NewDecoder(bytes.NewReader(frame))
	_, err := io.ReadAll(dec)
	var zerr *Error
	if !errors.As(err, &zerr) || zerr.Kind != ChecksumMismatch {
		t.Fatalf("got %v, want ChecksumMismatch", err)
	}
}

// TestBadMagic exercises the decoder's first guard.
func TestBadMagic(t *testing.T) {
	dec := NewDecoder(bytes.NewReader([]byte{0, 1, 2, 3}))
	_, err := io.ReadAll(dec)
	var zerr *Error
	if !errors.As(err, &zerr) || zerr.Kind != BadMagic {
		t.Fatalf("got %v, want BadMagic", err)
	}
}

// TestTruncatedInput exercises a frame cut off mid-header.
func TestTruncatedInput(t *testing.T) {
	dec := NewDecoder(bytes.NewReader([]byte{0x28, 0xB5, 0x2F, 0xFD}))
	_, err := io.ReadAll(dec)
	var zerr *Error
	if !errors.As(err, &zerr) || zerr.Kind != TruncatedInput {
		t.Fatalf("got %v, want TruncatedInput", err)
	}
}

// TestSkippableFrame checks that a skippable frame between two real
// frames is silently consumed by default.
func TestSkippableFrame(t *testing.T) {
	var skip []byte
	skip = append(skip, 0x50, 0x2A, 0x4D, 0x18) // skippable magic
	skip = append(skip, 4, 0, 0, 0)             // payload size
	skip = append(skip, 0xDE, 0xAD, 0xBE, 0xEF) // payload

	var frame []byte
	frame = appendFrameHeader(frame, 5, false)
	frame = appendBlockHeader(frame, true, blockRaw, 5, []byte("hello"))

	out := decodeAll(t, append(skip, frame...))
	if string(out) != "hello" {
		t.Errorf("got %q, want %q", out, "hello")
	}
}

// TestSkippableFrameSurfaced checks that with WithIgnoreSkippableFrames
// disabled, a skippable frame is reported as an informational,
// non-poisoning SkippableFrame error rather than being consumed
// silently, and that decoding resumes normally afterwards.
func TestSkippableFrameSurfaced(t *testing.T) {
	var skip []byte
	skip = append(skip, 0x50, 0x2A, 0x4D, 0x18) // skippable magic
	skip = append(skip, 4, 0, 0, 0)             // payload size
	skip = append(skip, 0xDE, 0xAD, 0xBE, 0xEF) // payload

	var frame []byte
	frame = appendFrameHeader(frame, 5, false)
	frame = appendBlockHeader(frame, true, blockRaw, 5, []byte("hello"))

	dec := NewDecoder(bytes.NewReader(append(skip, frame...)), WithIgnoreSkippableFrames(false))

	buf := make([]byte, 16)
	_, err := dec.Read(buf)
	var zerr *Error
	if !errors.As(err, &zerr) || zerr.Kind != SkippableFrame {
		t.Fatalf("got %v, want SkippableFrame", err)
	}

	// The decoder must not be poisoned: the next Read resumes right
	// after the skippable frame and decodes the real one.
	out, err := io.ReadAll(dec)
	if err != nil {
		t.Fatalf("decode after skippable frame: %v", err)
	}
	if string(out) != "hello" {
		t.Errorf("got %q, want %q", out, "hello")
	}
}

// TestWindowTooLarge checks the configured cap is enforced before any
// window allocation.
func TestWindowTooLarge(t *testing.T) {
	var frame []byte
	frame = append(frame, 0x28, 0xB5, 0x2F, 0xFD)
	frame = append(frame, 0x00) // descriptor: no single-segment, no checksum
	frame = append(frame, 0xFF) // window descriptor: very large window

	dec := NewDecoder(bytes.NewReader(frame), WithMaxWindowSize(1<<20))
	_, err := io.ReadAll(dec)
	var zerr *Error
	if !errors.As(err, &zerr) || zerr.Kind != WindowTooLarge {
		t.Fatalf("got %v, want WindowTooLarge", err)
	}
}

// fuzzLikeInputs returns a handful of inputs covering empty, tiny,
// repetitive, and byte-diverse content, used by the round-trip tests
// below to exercise Raw/RLE/Compressed block selection and both 1- and
// 4-stream Huffman literal coding.
func fuzzLikeInputs() map[string][]byte {
	var diverse []byte
	for i := 0; i < 5000; i++ {
		diverse = append(diverse, byte(i*37+i/7))
	}
	return map[string][]byte{
		"empty":      {},
		"single":     []byte("x"),
		"short":      []byte("hello, world"),
		"repeat":     bytes.Repeat([]byte("abc"), 2000),
		"allSame":    bytes.Repeat([]byte{0x7A}, 300000),
		"diverse":    diverse,
		"diverseBig": bytes.Repeat(diverse, 30),
	}
}

// TestEncodeDecodeRoundTrip is the universal property from spec.md §8:
// decode(encode(x)) == x, across a range of inputs chosen to exercise
// every block-type and literal-coding path the baseline encoder has.
func TestEncodeDecodeRoundTrip(t *testing.T) {
	for name, input := range fuzzLikeInputs() {
		t.Run(name, func(t *testing.T) {
			enc := NewEncoder()
			compressed := enc.Encode(input)
			out := decodeAll(t, compressed)
			if !bytes.Equal(out, input) {
				t.Fatalf("round trip mismatch: got %d bytes, want %d bytes", len(out), len(input))
			}
		})
	}
}

// TestEncodeDecodeRoundTripChecksum exercises the encoder's checksum
// path end to end against the decoder's verification.
func TestEncodeDecodeRoundTripChecksum(t *testing.T) {
	input := []byte("the quick brown fox jumps over the lazy dog, the quick brown fox jumps again")
	enc := NewEncoder(WithChecksum(true))
	compressed := enc.Encode(input)
	out := decodeAll(t, compressed)
	if !bytes.Equal(out, input) {
		t.Fatalf("round trip mismatch with checksum enabled")
	}
}

// TestEncodeStoreOnly exercises the Uncompressed level's store-only
// path, which must still decode correctly despite skipping the match
// finder and entropy coders.
func TestEncodeStoreOnly(t *testing.T) {
	input := bytes.Repeat([]byte("abcabcabc"), 100)
	enc := NewEncoder(WithStoreOnly(true))
	compressed := enc.Encode(input)
	out := decodeAll(t, compressed)
	if !bytes.Equal(out, input) {
		t.Fatalf("round trip mismatch in store-only mode")
	}
}

// TestRepeatOffset covers scenario 4: compressing "abcabcabc" should
// produce at least one sequence and decode back correctly; the repeat-
// offset history is exercised internally by encodeSequencesSection and
// verified indirectly via the round trip (chooseOffsetCode/
// updateOffsetHistory agreement is exact, or this would fail).
func TestRepeatOffset(t *testing.T) {
	input := []byte("abcabcabc")
	seqs := findSequences(input, 0)
	if len(seqs) == 0 {
		t.Skip("matcher found no sequences for this tiny input; nothing to exercise")
	}
	var hasRealMatch bool
	for _, s := range seqs {
		if s.matchLen > 0 {
			hasRealMatch = true
		}
	}
	if !hasRealMatch {
		t.Skip("no real match in this tiny input")
	}

	enc := NewEncoder()
	compressed := enc.Encode(input)
	out := decodeAll(t, compressed)
	if string(out) != string(input) {
		t.Fatalf("got %q, want %q", out, input)
	}
}

// TestOffsetHistoryRule is a small table-driven property test against the
// spec's repeat-offset update rules, checked directly rather than through
// a full encode/decode cycle.
func TestOffsetHistoryRule(t *testing.T) {
	cases := []struct {
		name      string
		hist      [3]uint64
		raw       uint64
		litLength uint32
		wantHist  [3]uint64
		wantOff   uint64
	}{
		{"repeat1-litnonzero", [3]uint64{10, 20, 30}, 1, 5, [3]uint64{10, 20, 30}, 10},
		{"repeat2-litnonzero", [3]uint64{10, 20, 30}, 2, 5, [3]uint64{20, 10, 30}, 20},
		{"repeat3-litnonzero", [3]uint64{10, 20, 30}, 3, 5, [3]uint64{30, 10, 20}, 30},
		{"repeat1-litzero-shifts-to-slot2", [3]uint64{10, 20, 30}, 1, 0, [3]uint64{20, 10, 30}, 20},
		{"repeat2-litzero-shifts-to-slot3", [3]uint64{10, 20, 30}, 2, 0, [3]uint64{30, 10, 20}, 30},
		{"repeat3-litzero-decrement", [3]uint64{10, 20, 30}, 3, 0, [3]uint64{9, 10, 20}, 9},
		{"literal-offset", [3]uint64{10, 20, 30}, 8, 5, [3]uint64{5, 10, 20}, 5},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			hist := c.hist
			got := updateOffsetHistory(&hist, c.raw, c.litLength)
			if got != c.wantOff {
				t.Errorf("offset = %d, want %d", got, c.wantOff)
			}
			if hist != c.wantHist {
				t.Errorf("history = %v, want %v", hist, c.wantHist)
			}
		})
	}
}

// TestChooseOffsetCodeRoundTrip checks that chooseOffsetCode followed by
// updateOffsetHistory always reconstructs the requested offset, for a
// mix of fresh and repeat offsets.
func TestChooseOffsetCodeRoundTrip(t *testing.T) {
	hist := [3]uint64{5, 50, 500}
	cases := []struct {
		offset    uint64
		litLength uint32
	}{
		{5, 1}, {50, 1}, {500, 1}, {5, 0}, {50, 0}, {4, 0}, {1234, 1}, {1, 7},
	}
	for _, c := range cases {
		code := chooseOffsetCode(hist, c.offset, c.litLength)
		got := updateOffsetHistory(&hist, code, c.litLength)
		if got != c.offset {
			t.Fatalf("offset %d litLength %d: chooseOffsetCode/updateOffsetHistory round trip got %d", c.offset, c.litLength, got)
		}
	}
}

// TestMissingPreviousTable exercises the Repeat sequence compression
// mode used with no prior table in the frame.
func TestMissingPreviousTable(t *testing.T) {
	var persisted *fseDecodeTable
	_, _, err := resolveSeqTable(seqRepeat, nil, llAlphabet, &persisted)
	var zerr *Error
	if !errors.As(err, &zerr) || zerr.Kind != MissingPreviousTable {
		t.Fatalf("got %v, want MissingPreviousTable", err)
	}
}

// TestHuffmanWeightsRoundTrip exercises weightsForDirectEncode paired
// with buildHuffmanDecodeTable and buildHuffmanEncodeTable, the way
// encodeLiteralsSection drives them, across a few symbol-frequency
// shapes.
func TestHuffmanWeightsRoundTrip(t *testing.T) {
	var freq [huffmanMaxSymbol + 1]int
	for i, c := range []byte("the quick brown fox jumps over the lazy dog") {
		freq[c] += i + 1
	}
	weights, n := weightsForDirectEncode(freq)
	allWeights := weights[:n]

	decTable, err := buildHuffmanDecodeTable(allWeights[:len(allWeights)-1])
	if err != nil {
		t.Fatalf("buildHuffmanDecodeTable: %v", err)
	}
	tableLog := huffmanTableLogFor(allWeights)
	encTable := buildHuffmanEncodeTable(allWeights, tableLog)
	if decTable.tableLog != tableLog {
		t.Fatalf("decode tableLog %d != encode tableLog %d", decTable.tableLog, tableLog)
	}

	// Every present symbol must have an encode entry.
	for sym, w := range allWeights {
		if w == 0 {
			continue
		}
		e := encTable.entries[sym]
		if e.nbBits == 0 {
			t.Fatalf("symbol %d has weight %d but no encode entry", sym, w)
		}
	}
}

// TestFSEPredefinedTablesBuilt is a sanity check that package init
// succeeded in building the predefined tables (a build failure would
// have panicked already, but this documents the invariant by checking
// each of the three decode tables has 1<<accuracyLog entries).
func TestFSEPredefinedTablesBuilt(t *testing.T) {
	for _, tbl := range []*fseDecodeTable{llPredefinedDecodeTable, ofPredefinedDecodeTable, mlPredefinedDecodeTable} {
		if len(tbl.entries) != 1<<tbl.accuracyLog {
			t.Errorf("table has %d entries, want %d", len(tbl.entries), 1<<tbl.accuracyLog)
		}
	}
}

// TestBlockSizeExceeded checks a Compressed block's declared size beyond
// the 128 KiB cap is rejected without being read as a payload.
func TestBlockSizeExceeded(t *testing.T) {
	var frame []byte
	frame = appendFrameHeader(frame, 0, false)
	frame = appendBlockHeader(frame, true, blockCompressed, maxBlockSize+1, nil)

	dec := NewDecoder(bytes.NewReader(frame))
	_, err := io.ReadAll(dec)
	var zerr *Error
	if !errors.As(err, &zerr) || zerr.Kind != BlockSizeExceeded {
		t.Fatalf("got %v, want BlockSizeExceeded", err)
	}
}

// TestRLEBlockSizeExceeded checks an RLE block's declared repeat count
// beyond the 128 KiB cap is rejected: RLE's declared size is a repeat
// count rather than an on-wire payload length, but the format's 128 KiB
// decompressed-block cap still applies to it, the same as Raw and
// Compressed.
func TestRLEBlockSizeExceeded(t *testing.T) {
	var frame []byte
	frame = appendFrameHeader(frame, 0, false)
	frame = appendBlockHeader(frame, true, blockRLE, maxBlockSize+1, []byte{0x41})

	dec := NewDecoder(bytes.NewReader(frame))
	_, err := io.ReadAll(dec)
	var zerr *Error
	if !errors.As(err, &zerr) || zerr.Kind != BlockSizeExceeded {
		t.Fatalf("got %v, want BlockSizeExceeded", err)
	}
}

// TestBlockSizeExceedsWindow checks a Raw block whose declared size fits
// under the 128 KiB cap but still exceeds the frame's own (smaller)
// window size is rejected, rather than being admitted as valid window
// content.
func TestBlockSizeExceedsWindow(t *testing.T) {
	var frame []byte
	frame = append(frame, 0x28, 0xB5, 0x2F, 0xFD) // magic
	frame = append(frame, 0x00)                   // descriptor: no single-segment, no checksum
	frame = append(frame, 0x00)                   // window descriptor: smallest window (1 KiB)
	frame = appendBlockHeader(frame, true, blockRaw, 2048, bytes.Repeat([]byte{0x41}, 2048))

	dec := NewDecoder(bytes.NewReader(frame))
	_, err := io.ReadAll(dec)
	var zerr *Error
	if !errors.As(err, &zerr) || zerr.Kind != BlockSizeExceeded {
		t.Fatalf("got %v, want BlockSizeExceeded", err)
	}
}

// TestDecodeMatchLengthCode42Fixture decodes a hand-assembled frame whose
// bytes were derived independently of this package's own FSE/encode
// tables, by working out the wire encoding directly from the format's
// canonical Match_Length_Code table (RFC 8878 section 3.1.1.3.2.1.1):
// code 42 carries 5 extra bits on a baseline of 99, so a raw extra value
// of 1 decodes to a 100-byte match. Round-tripping through this
// package's own encoder would not catch a transcription bug shared by
// encoder and decoder (both would agree on the same wrong baseline);
// this fixture's bytes were chosen by hand against the published table
// instead, so it catches exactly that class of bug.
//
// The block uses RLE-mode sequence tables (Literal_Length_Code 18,
// Offset_Code 3, Match_Length_Code 42, each a single fixed symbol with
// no FSE state machine involved) so the fixture's bitstream reduces to
// three fixed-width extra-bits fields with no table-encoding arithmetic
// to get wrong: Offset_Code 3 with extra value 5 gives a raw offset_value
// of 13, i.e. an actual offset of 10; Literal_Length_Code 18 with extra
// value 0 gives a literal run of 20 bytes.
func TestDecodeMatchLengthCode42Fixture(t *testing.T) {
	frame := []byte{
		0x28, 0xB5, 0x2F, 0xFD, // magic
		0x04, // frame header descriptor: single segment, no checksum
		0x78, // frame content size (single-segment, 1-byte field): 120

		0xE5, 0x00, 0x00, // block header: last block, Compressed, size 28

		// Literals section: Raw_Literals_Block, regenerated size 20.
		0xA0,
	}
	frame = append(frame, bytes.Repeat([]byte{0x41}, 20)...)

	// Sequences section: one sequence, RLE mode for all three alphabets.
	frame = append(frame,
		0x01,       // Number_of_Sequences = 1
		0x54,       // Compression_Modes: LL=RLE, OF=RLE, ML=RLE
		0x12,       // LL RLE symbol: code 18 (baseline 20, 1 extra bit)
		0x03,       // OF RLE symbol: code 3 (baseline 8, 3 extra bits)
		0x2A,       // ML RLE symbol: code 42 (baseline 99, 5 extra bits)
		0x42, 0x03, // bitstream: llExtra=0, mlExtra=1, ofExtra=5, sentinel
	)

	out := decodeAll(t, frame)
	if len(out) != 120 {
		t.Fatalf("got %d decoded bytes, want 120", len(out))
	}
	wantLiterals := bytes.Repeat([]byte{0x41}, 20)
	if !bytes.Equal(out[:20], wantLiterals) {
		t.Fatalf("literal run mismatch: got %q", out[:20])
	}
	// The match copies 100 bytes from offset 10 within a buffer whose
	// last 10 bytes are all 0x41, so the match output is 0x41 repeated
	// 100 times too.
	wantMatch := bytes.Repeat([]byte{0x41}, 100)
	if !bytes.Equal(out[20:], wantMatch) {
		t.Fatalf("match output mismatch: got %d bytes, first differs at content %q", len(out)-20, out[20:])
	}
}

// TestReservedBlockType checks the Reserved block type is rejected at
// the header-parse stage.
func TestReservedBlockType(t *testing.T) {
	_, err := parseBlockHeader([3]byte{0b0000_0111, 0, 0})
	var zerr *Error
	if !errors.As(err, &zerr) || zerr.Kind != ReservedBit {
		t.Fatalf("got %v, want ReservedBit", err)
	}
}

// TestPartialReads exercises the pull interface's contract that short
// reads are not errors: draining a decoder byte by byte must still
// reconstruct the whole output.
func TestPartialReads(t *testing.T) {
	input := bytes.Repeat([]byte("the quick brown fox "), 500)
	enc := NewEncoder()
	compressed := enc.Encode(input)

	dec := NewDecoder(bytes.NewReader(compressed))
	var out []byte
	buf := make([]byte, 1)
	for {
		n, err := dec.Read(buf)
		out = append(out, buf[:n]...)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if !bytes.Equal(out, input) {
		t.Fatalf("byte-at-a-time drain mismatch: got %d bytes, want %d", len(out), len(input))
	}
}
