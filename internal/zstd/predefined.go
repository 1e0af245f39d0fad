// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package zstd

import "math/bits"

// This file carries the fixed constants the zstd format mandates:
// predefined FSE probability distributions for the three sequence
// alphabets (literal lengths, offsets, match lengths), and the
// baseline/extra-bits tables that turn a literal- or match-length code
// into an actual length. These must match the reference specification
// byte-for-byte for the distributions and bit widths; the cumulative
// baseline values for the codes beyond the directly-coded range are
// derived programmatically from the documented doubling rule (each
// code's baseline is the previous baseline plus 2^extraBits) rather than
// hand-copied, so they stay internally consistent with whatever extra-bit
// widths are transcribed above them.

const (
	llPredefinedAccuracyLog = 6
	mlPredefinedAccuracyLog = 6
	ofPredefinedAccuracyLog = 5

	llMaxSymbol = 35
	mlMaxSymbol = 52
	ofMaxSymbol = 31 // predefined table only defines 0..28; higher codes are legal with a new/repeat table
)

// llPredefinedNorm is the predefined normalized count table for literal
// length codes, accuracy log 6.
var llPredefinedNorm = []int16{
	4, 3, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 1, 1, 1,
	2, 2, 2, 2, 2, 2, 2, 2, 2, 3, 2, 1, 1, 1, 1, 1,
	-1, -1, -1, -1,
}

// mlPredefinedNorm is the predefined normalized count table for match
// length codes, accuracy log 6.
var mlPredefinedNorm = []int16{
	1, 4, 3, 2, 2, 2, 2, 2, 2, 1, 1, 1, 1, 1, 1, 1,
	1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1,
	1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, -1, -1,
	-1, -1, -1, -1, -1,
}

// ofPredefinedNorm is the predefined normalized count table for offset
// codes, accuracy log 5.
var ofPredefinedNorm = []int16{
	1, 1, 1, 1, 1, 1, 2, 2, 2, 1, 1, 1, 1, 1, 1, 1,
	1, 1, 1, 1, 1, 1, 1, 1, -1, -1, -1, -1, -1,
}

// llExtraBits is the number of extra bits literal-length code c carries,
// for c in [0, llMaxSymbol].
var llExtraBits = buildExtraBitsTable(
	[]int{16, 4, 2, 2}, // run lengths of bits 0,1,2,3
	[]uint{4, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
)

// mlExtraBits is the number of extra bits match-length code c carries, for
// c in [0, mlMaxSymbol]. Match length codes start at baseline 3 (the
// minimum match length) rather than 0.
var mlExtraBits = buildExtraBitsTable(
	[]int{32, 4, 2, 2},
	[]uint{4, 4, 5, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
)

// buildExtraBitsTable expands a run-length-encoded prefix (runs[i] entries
// at extra-bit width i) followed by a tail of singleton widths into a flat
// per-code extra-bits table.
func buildExtraBitsTable(runs []int, tail []uint) []uint {
	var out []uint
	for width, count := range runs {
		for i := 0; i < count; i++ {
			out = append(out, uint(width))
		}
	}
	out = append(out, tail...)
	return out
}

// llBaseline and mlBaseline hold, per code, the smallest length that code
// can represent; code c covers [baseline[c], baseline[c]+2^extraBits[c]).
var llBaseline = buildBaselineTable(0, llExtraBits)
var mlBaseline = buildBaselineTable(3, mlExtraBits)

func buildBaselineTable(start uint32, extraBits []uint) []uint32 {
	out := make([]uint32, len(extraBits))
	v := start
	for i, bits := range extraBits {
		out[i] = v
		v += uint32(1) << bits
	}
	return out
}

// offsetCode returns the FSE symbol and extra-bit width for a raw offset
// value v (v >= 1): symbol N means the value lies in [1<<N, 1<<(N+1)-1]
// and is represented as N extra bits holding v - 1<<N.
func offsetCode(v uint32) (code uint8, extraBits uint) {
	n := uint(bits.Len32(v)) - 1
	return uint8(n), n
}

// offsetBaseline returns 1<<code, the smallest raw offset value that FSE
// symbol code can represent.
func offsetBaseline(code uint8) uint64 {
	return uint64(1) << code
}

// Decoding and encoding tables for the three predefined distributions,
// built once at package init: every frame that uses the Predefined
// compression mode for an alphabet shares these rather than rebuilding
// them per block.
var (
	llPredefinedDecodeTable = mustFSEDecodeTable(llPredefinedNorm, llPredefinedAccuracyLog)
	mlPredefinedDecodeTable = mustFSEDecodeTable(mlPredefinedNorm, mlPredefinedAccuracyLog)
	ofPredefinedDecodeTable = mustFSEDecodeTable(ofPredefinedNorm, ofPredefinedAccuracyLog)

	llPredefinedEncodeTable = mustFSEEncodeTable(llPredefinedNorm, llPredefinedAccuracyLog)
	mlPredefinedEncodeTable = mustFSEEncodeTable(mlPredefinedNorm, mlPredefinedAccuracyLog)
	ofPredefinedEncodeTable = mustFSEEncodeTable(ofPredefinedNorm, ofPredefinedAccuracyLog)
)

// mustFSEDecodeTable builds a decode table from a fixed, known-good
// constant; a failure here means one of the predefined distributions
// above was transcribed wrong, which is a programmer error, not a
// decode-time condition.
func mustFSEDecodeTable(counts []int16, accuracyLog uint) *fseDecodeTable {
	t, err := buildFSEDecodeTable(counts, accuracyLog)
	if err != nil {
		panic("zstd: invalid predefined FSE distribution: " + err.Error())
	}
	return t
}

func mustFSEEncodeTable(counts []int16, accuracyLog uint) *fseEncodeTable {
	t, err := buildFSEEncodeTable(counts, accuracyLog)
	if err != nil {
		panic("zstd: invalid predefined FSE distribution: " + err.Error())
	}
	return t
}
