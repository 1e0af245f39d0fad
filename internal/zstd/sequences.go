// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package zstd

import "github.com/cosnicolaou/zstd/internal/bitstream"

// seqCompressionMode is the 2-bit Symbol_Compression_Mode field each of
// the three sequence alphabets (literal lengths, offsets, match lengths)
// carries in a Compressed block's Sequences_Section_Header.
type seqCompressionMode uint8

const (
	seqPredefined seqCompressionMode = iota
	seqRLE
	seqFSECompressed
	seqRepeat
)

// seqAlphabet bundles the per-alphabet constants needed to resolve a
// compression mode into an *fseDecodeTable: the symbol-count and
// accuracy-log limits a freshly parsed FSE table must respect, and the
// predefined distribution to fall back to. The frame-scoped slot a
// "repeat"/newly-parsed table is read from or written to is passed to
// resolveSeqTable separately.
type seqAlphabet struct {
	name           string
	maxSymbol      int
	maxAccuracyLog uint
	predefined     *fseDecodeTable
}

var (
	llAlphabet = seqAlphabet{name: "literal lengths", maxSymbol: llMaxSymbol, maxAccuracyLog: 9, predefined: llPredefinedDecodeTable}
	ofAlphabet = seqAlphabet{name: "offsets", maxSymbol: ofMaxSymbol, maxAccuracyLog: 8, predefined: ofPredefinedDecodeTable}
	mlAlphabet = seqAlphabet{name: "match lengths", maxSymbol: mlMaxSymbol, maxAccuracyLog: 9, predefined: mlPredefinedDecodeTable}
)

// resolveSeqTable turns one alphabet's compression mode into a decode
// table, consuming however many bytes of data that required, and
// updating *persisted (the frame-scoped table for this alphabet) when a
// new table is parsed so a later block's Repeat mode can find it.
func resolveSeqTable(mode seqCompressionMode, data []byte, alphabet seqAlphabet, persisted **fseDecodeTable) (*fseDecodeTable, int, error) {
	switch mode {
	case seqPredefined:
		return alphabet.predefined, 0, nil

	case seqRLE:
		if len(data) < 1 {
			return nil, 0, newErr(TruncatedInput, -1, "truncated RLE symbol for %s", alphabet.name)
		}
		return rleFSETable(data[0]), 1, nil

	case seqFSECompressed:
		fr := bitstream.NewForwardBitReader(data)
		counts, accLog, err := parseFSENormalizedCounts(fr, alphabet.maxSymbol, alphabet.maxAccuracyLog)
		if err != nil {
			return nil, 0, err
		}
		fr.AlignToByte()
		table, err := buildFSEDecodeTable(counts, accLog)
		if err != nil {
			return nil, 0, err
		}
		*persisted = table
		return table, fr.BytePos(), nil

	case seqRepeat:
		if *persisted == nil {
			return nil, 0, newErr(MissingPreviousTable, -1, "repeat mode for %s with no previous table", alphabet.name)
		}
		return *persisted, 0, nil
	}
	return nil, 0, newErr(ReservedBit, -1, "invalid sequence compression mode")
}

// parseSequencesHeader reads the Number_of_Sequences varint from the
// front of data, per the zstd format's three-width encoding, returning
// the count and how many bytes it occupied.
func parseSequencesHeader(data []byte) (nbSeq int, consumed int, err error) {
	if len(data) < 1 {
		return 0, 0, newErr(TruncatedInput, -1, "truncated sequences header")
	}
	b0 := data[0]
	switch {
	case b0 == 0:
		return 0, 1, nil
	case b0 < 128:
		return int(b0), 1, nil
	case b0 < 255:
		if len(data) < 2 {
			return 0, 0, newErr(TruncatedInput, -1, "truncated sequences header")
		}
		return (int(b0-128) << 8) + int(data[1]), 2, nil
	default:
		if len(data) < 3 {
			return 0, 0, newErr(TruncatedInput, -1, "truncated sequences header")
		}
		return int(data[1]) + (int(data[2]) << 8) + 0x7F00, 3, nil
	}
}

// decodeSequencesSection parses and executes the Sequences section that
// follows a Compressed block's literals, appending the resulting bytes
// (literal runs interleaved with match copies) directly into d.win. It
// consumes literals from the front of lit as each sequence's literal run
// is emitted, and appends whatever is left over as the block's tail
// literals once all sequences have executed.
func (d *Decoder) decodeSequencesSection(payload []byte, lit []byte) error {
	nbSeq, pos, err := parseSequencesHeader(payload)
	if err != nil {
		return err
	}
	if nbSeq == 0 {
		d.win.AppendLiteral(lit)
		return nil
	}
	if pos >= len(payload) {
		return newErr(TruncatedInput, -1, "missing sequence compression modes byte")
	}
	modeByte := payload[pos]
	pos++
	llMode := seqCompressionMode((modeByte >> 6) & 3)
	ofMode := seqCompressionMode((modeByte >> 4) & 3)
	mlMode := seqCompressionMode((modeByte >> 2) & 3)
	if modeByte&3 != 0 {
		return newErr(ReservedBit, -1, "reserved bits set in sequence compression modes")
	}

	llTable, n, err := resolveSeqTable(llMode, payload[pos:], llAlphabet, &d.llTable)
	if err != nil {
		return err
	}
	pos += n
	ofTable, n, err := resolveSeqTable(ofMode, payload[pos:], ofAlphabet, &d.ofTable)
	if err != nil {
		return err
	}
	pos += n
	mlTable, n, err := resolveSeqTable(mlMode, payload[pos:], mlAlphabet, &d.mlTable)
	if err != nil {
		return err
	}
	pos += n

	if pos > len(payload) {
		return newErr(TruncatedInput, -1, "sequence tables run past block end")
	}
	rr, err := bitstream.NewReverseBitReader(payload[pos:])
	if err != nil {
		return newErr(TruncatedInput, -1, "sequence bitstream: %v", err)
	}

	llState, err := newFSEState(llTable, rr)
	if err != nil {
		return err
	}
	ofState, err := newFSEState(ofTable, rr)
	if err != nil {
		return err
	}
	mlState, err := newFSEState(mlTable, rr)
	if err != nil {
		return err
	}

	litCursor := 0
	for i := 0; i < nbSeq; i++ {
		ofCode := ofState.symbol()
		mlCode := mlState.symbol()
		llCode := llState.symbol()

		if int(ofCode) >= 32 {
			return newErr(CorruptedSequence, -1, "offset code %d out of range", ofCode)
		}
		ofExtra, err := rr.GetBits(uint(ofCode))
		if err != nil {
			return newErr(TruncatedInput, -1, "offset extra bits: %v", err)
		}
		rawOffset := offsetBaseline(ofCode) + ofExtra

		if int(mlCode) >= len(mlExtraBits) {
			return newErr(CorruptedSequence, -1, "match length code %d out of range", mlCode)
		}
		mlExtra, err := rr.GetBits(mlExtraBits[mlCode])
		if err != nil {
			return newErr(TruncatedInput, -1, "match length extra bits: %v", err)
		}
		matchLength := mlBaseline[mlCode] + uint32(mlExtra)

		if int(llCode) >= len(llExtraBits) {
			return newErr(CorruptedSequence, -1, "literal length code %d out of range", llCode)
		}
		llExtra, err := rr.GetBits(llExtraBits[llCode])
		if err != nil {
			return newErr(TruncatedInput, -1, "literal length extra bits: %v", err)
		}
		litLength := llBaseline[llCode] + uint32(llExtra)

		if i != nbSeq-1 {
			if err := llState.update(rr); err != nil {
				return err
			}
			if err := mlState.update(rr); err != nil {
				return err
			}
			if err := ofState.update(rr); err != nil {
				return err
			}
		}

		if litCursor+int(litLength) > len(lit) {
			return newErr(CorruptedSequence, -1, "literal length exceeds available literals")
		}
		d.win.AppendLiteral(lit[litCursor : litCursor+int(litLength)])
		litCursor += int(litLength)

		actualOffset := d.resolveOffset(rawOffset, litLength)
		if err := d.win.CopyMatch(actualOffset, matchLength); err != nil {
			return err
		}
	}

	if rr.Remaining() != 0 {
		return newErr(ExtraBits, -1, "sequence bitstream not exactly drained")
	}

	if litCursor < len(lit) {
		d.win.AppendLiteral(lit[litCursor:])
	}
	return nil
}

// resolveOffset maps a raw decoded offset_value through the decoder's
// repeat-offset history, updating it in place, and returns the final
// addressable offset.
func (d *Decoder) resolveOffset(rawOffset uint64, litLength uint32) uint64 {
	return updateOffsetHistory(&d.repOffsets, rawOffset, litLength)
}

// updateOffsetHistory implements the format's repeat-offset rule: a raw
// offset_value of 1..3 reuses one of the three most-recently-used
// offsets (with a special decrement-and-reuse case for code 3 when
// litLength is 0), and any other value is a literal offset of
// rawOffset-3. hist is updated in place so the mapping is ready for the
// following sequence, and the resulting addressable offset is returned.
// The encoder (encoder.go) drives this same function in reverse, via
// chooseOffsetCode, so encode and decode can never disagree about the
// history's evolution.
func updateOffsetHistory(hist *[3]uint64, rawOffset uint64, litLength uint32) uint64 {
	if rawOffset > 3 {
		actual := rawOffset - 3
		hist[2] = hist[1]
		hist[1] = hist[0]
		hist[0] = actual
		return actual
	}

	idx := int(rawOffset) - 1
	if litLength == 0 {
		idx++
	}

	var actual uint64
	switch idx {
	case 0:
		actual = hist[0]
	case 1:
		actual = hist[1]
		hist[1] = hist[0]
		hist[0] = actual
	case 2:
		actual = hist[2]
		hist[2] = hist[1]
		hist[1] = hist[0]
		hist[0] = actual
	default: // idx == 3: litLength == 0, rawOffset == 3
		actual = hist[0] - 1
		hist[2] = hist[1]
		hist[1] = hist[0]
		hist[0] = actual
	}
	return actual
}

// chooseOffsetCode picks the cheapest raw offset_value that makes
// updateOffsetHistory(hist, ..., litLength) reconstruct actualOffset: a
// repeat code (1..3) when the history already holds actualOffset in the
// slot that code addresses for this litLength parity, or a literal
// offset_value of actualOffset+3 otherwise. It does not itself mutate
// hist; the caller still calls updateOffsetHistory with the result so
// encode and decode share one state-update implementation.
func chooseOffsetCode(hist [3]uint64, actualOffset uint64, litLength uint32) uint64 {
	if litLength != 0 {
		switch actualOffset {
		case hist[0]:
			return 1
		case hist[1]:
			return 2
		case hist[2]:
			return 3
		}
	} else {
		switch actualOffset {
		case hist[1]:
			return 1
		case hist[2]:
			return 2
		}
		if actualOffset+1 == hist[0] {
			return 3
		}
	}
	return actualOffset + 3
}
