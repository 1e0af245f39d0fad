// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package zstd

import (
	"math/bits"

	"github.com/cosnicolaou/zstd/internal/bitstream"
)

// fseTableStep is zstd's fixed spreading stride: it walks every slot of an
// FSE table exactly once, in an order that keeps a symbol's occurrences
// roughly evenly spaced.
func fseTableStep(size uint32) uint32 {
	return (size >> 1) + (size >> 3) + 3
}

// fseDecodeEntry is one slot of a built decoding table.
type fseDecodeEntry struct {
	symbol  uint8
	nbBits  uint8
	baseline uint32
}

// fseDecodeTable is a built FSE decoding table, sized 1<<accuracyLog.
type fseDecodeTable struct {
	accuracyLog uint
	entries     []fseDecodeEntry
}

// parseFSENormalizedCounts reads an accuracy-log-prefixed run of normalized
// counts from a forward bit reader, per zstd's variable-width encoding:
// each count is read with just enough bits to cover the remaining
// probability mass, -1 marks a "less probable" symbol occupying exactly
// one table slot, and runs of zero-count symbols are RLE-encoded via a
// chainable 2-bit repeat flag.
func parseFSENormalizedCounts(r *bitstream.ForwardBitReader, maxSymbol int, maxAccuracyLog uint) ([]int16, uint, error) {
	rawLog, err := r.GetBits(4)
	if err != nil {
		return nil, 0, newErr(TruncatedInput, -1, "reading FSE accuracy log: %v", err)
	}
	accuracyLog := uint(rawLog) + 5
	if accuracyLog > maxAccuracyLog {
		return nil, 0, newErr(CorruptedFseTable, -1, "accuracy log %d exceeds limit %d", accuracyLog, maxAccuracyLog)
	}
	if accuracyLog < 5 {
		return nil, 0, newErr(CorruptedFseTable, -1, "accuracy log %d below minimum", accuracyLog)
	}

	counts := make([]int16, 0, maxSymbol+1)
	remaining := int32(1) << accuracyLog
	remaining++ // counted down from tableSize+1; reading stops once 1 is left

	for len(counts) <= maxSymbol && remaining > 1 {
		maxBits := uint(bits.Len32(uint32(remaining)))
		small := (uint32(1) << maxBits) - uint32(remaining) - 1
		lowBits, err := r.GetBits(maxBits - 1)
		if err != nil {
			return nil, 0, newErr(TruncatedInput, -1, "reading FSE count: %v", err)
		}
		var value uint32
		if uint32(lowBits) < small {
			value = uint32(lowBits)
		} else {
			extra, err := r.GetBits(1)
			if err != nil {
				return nil, 0, newErr(TruncatedInput, -1, "reading FSE count tiebreak bit: %v", err)
			}
			value = uint32(lowBits) + uint32(extra)<<(maxBits-1)
			if value >= uint32(1)<<(maxBits-1) {
				value -= small
			}
		}
		count := int16(value) - 1
		if count == -1 {
			counts = append(counts, -1)
			remaining--
		} else {
			counts = append(counts, count)
			remaining -= int32(count)
		}
		if count == 0 {
			for {
				repeat, err := r.GetBits(2)
				if err != nil {
					return nil, 0, newErr(TruncatedInput, -1, "reading FSE zero-run repeat: %v", err)
				}
				for i := uint64(0); i < repeat; i++ {
					if len(counts) > maxSymbol {
						return nil, 0, newErr(CorruptedFseTable, -1, "too many symbols in zero run")
					}
					counts = append(counts, 0)
				}
				if repeat != 3 {
					break
				}
			}
		}
	}
	if remaining != 1 {
		return nil, 0, newErr(CorruptedFseTable, -1, "normalized counts did not sum to table size")
	}
	return counts, accuracyLog, nil
}

// buildFSEDecodeTable constructs a decoding table from normalized counts,
// following zstd's canonical spread-then-assign procedure: symbols with a
// normal (positive) count are scattered across the table at stride
// fseTableStep; symbols marked -1 ("less probable") are packed from the
// high end of the table downward, occupying exactly one slot apiece. Once
// every slot has a symbol, (nbBits, baseline) are derived per-slot so that
// reading nbBits more bits from the stream and adding to baseline always
// lands in [0, tableSize).
func buildFSEDecodeTable(counts []int16, accuracyLog uint) (*fseDecodeTable, error) {
	tableSize := uint32(1) << accuracyLog
	if tableSize == 0 {
		return nil, newErr(CorruptedFseTable, -1, "zero-size FSE table")
	}
	symbolSlots := make([]uint8, tableSize)
	highThreshold := tableSize - 1

	for sym, count := range counts {
		if count == -1 {
			symbolSlots[highThreshold] = uint8(sym)
			highThreshold--
		}
	}

	step := fseTableStep(tableSize)
	mask := tableSize - 1
	pos := uint32(0)
	for sym, count := range counts {
		for i := int16(0); i < count; i++ {
			symbolSlots[pos] = uint8(sym)
			pos = (pos + step) & mask
			for pos > highThreshold {
				pos = (pos + step) & mask
			}
		}
	}
	if pos != 0 {
		return nil, newErr(CorruptedFseTable, -1, "FSE table spread did not return to origin")
	}

	// Now walk the table slot by slot, tracking each symbol's running
	// "next state" cursor to derive (nbBits, baseline) per slot.
	next := make([]uint32, len(counts))
	for sym, count := range counts {
		if count == -1 {
			next[sym] = 1
		} else {
			next[sym] = uint32(count)
		}
	}

	entries := make([]fseDecodeEntry, tableSize)
	for slot := uint32(0); slot < tableSize; slot++ {
		sym := symbolSlots[slot]
		n := next[sym]
		next[sym]++
		nbBits := uint8(accuracyLog) - uint8(bits.Len32(n)-1)
		// n is never 0 here: every symbol referenced has at least one
		// slot, so its cursor starts at 1 or more.
		baseline := (n << nbBits) - tableSize
		entries[slot] = fseDecodeEntry{symbol: sym, nbBits: nbBits, baseline: baseline}
	}

	return &fseDecodeTable{accuracyLog: accuracyLog, entries: entries}, nil
}

// fseState is a single FSE decoder cursor into a table.
type fseState struct {
	table *fseDecodeTable
	state uint32
}

func newFSEState(table *fseDecodeTable, r *bitstream.ReverseBitReader) (fseState, error) {
	v, err := r.GetBits(table.accuracyLog)
	if err != nil {
		return fseState{}, newErr(TruncatedInput, -1, "initializing FSE state: %v", err)
	}
	return fseState{table: table, state: uint32(v)}, nil
}

// symbol returns the symbol at the state's current slot without consuming
// any bits.
func (s *fseState) symbol() uint8 {
	return s.table.entries[s.state].symbol
}

// update advances the state by reading the slot's bit width from r and
// recomputing the next state from its baseline.
func (s *fseState) update(r *bitstream.ReverseBitReader) error {
	e := s.table.entries[s.state]
	bits, err := r.GetBits(uint(e.nbBits))
	if err != nil {
		return newErr(TruncatedInput, -1, "updating FSE state: %v", err)
	}
	s.state = e.baseline + uint32(bits)
	return nil
}

// rleFSETable builds a degenerate one-slot decode table that always
// yields symbol and never advances: RLE sequence compression mode is
// modeled this way so the three-state sequence decoder loop in
// sequences.go can treat Predefined/RLE/FSE_Compressed/Repeat uniformly
// as "an fseDecodeTable", rather than special-casing RLE.
func rleFSETable(symbol uint8) *fseDecodeTable {
	return &fseDecodeTable{
		accuracyLog: 0,
		entries:     []fseDecodeEntry{{symbol: symbol, nbBits: 0, baseline: 0}},
	}
}

// --- Encoder side -----------------------------------------------------
//
// The baseline encoder only ever emits the predefined LL/OF/ML
// distributions (see predefined.go and DESIGN.md for why), so the CTable
// built here is always built once, at package init, from those fixed
// tables; it never needs to be rebuilt from per-block observed
// frequencies.

// fseEncodeSymbol holds the per-symbol constants needed to push a symbol
// through an FSE encode transition, following the reference
// deltaNbBits/deltaFindState formulation.
type fseEncodeSymbol struct {
	deltaNbBits   uint32 // packed: (nbBits<<16) - minStatePlus
	deltaFindState int32
}

// fseEncodeTable is a built FSE encoding table.
type fseEncodeTable struct {
	accuracyLog uint
	stateTable  []uint32 // stateTable[u] for u in [0, tableSize)
	symbols     []fseEncodeSymbol
}

// buildFSEEncodeTable mirrors buildFSEDecodeTable's symbol spread (the two
// must agree on which table slot holds which symbol) but additionally
// records, per symbol, the constants used by the encode-direction state
// transition.
func buildFSEEncodeTable(counts []int16, accuracyLog uint) (*fseEncodeTable, error) {
	tableSize := uint32(1) << accuracyLog
	symbolSlots := make([]uint8, tableSize)
	highThreshold := tableSize - 1

	for sym, count := range counts {
		if count == -1 {
			symbolSlots[highThreshold] = uint8(sym)
			highThreshold--
		}
	}
	step := fseTableStep(tableSize)
	mask := tableSize - 1
	pos := uint32(0)
	for sym, count := range counts {
		for i := int16(0); i < count; i++ {
			symbolSlots[pos] = uint8(sym)
			pos = (pos + step) & mask
			for pos > highThreshold {
				pos = (pos + step) & mask
			}
		}
	}

	// cumulative[sym] starts at the sum of the slot counts of all lower
	// symbols and tracks the next unused stateTable index within symbol
	// sym's run as we scan the table low to high; deltaFindState below
	// points each symbol at the start of that run.
	cumulative := make([]uint32, len(counts))
	start := uint32(0)
	for sym, count := range counts {
		cumulative[sym] = start
		if count == -1 {
			start++
		} else {
			start += uint32(count)
		}
	}
	stateTable := make([]uint32, tableSize)
	for slot := uint32(0); slot < tableSize; slot++ {
		sym := symbolSlots[slot]
		stateTable[cumulative[sym]] = tableSize + slot
		cumulative[sym]++
	}

	symbols := make([]fseEncodeSymbol, len(counts))
	total := int32(0)
	for sym, count := range counts {
		switch count {
		case 0:
			symbols[sym] = fseEncodeSymbol{
				deltaNbBits: (uint32(accuracyLog)+1)<<16 - tableSize,
			}
		case -1, 1:
			symbols[sym] = fseEncodeSymbol{
				deltaNbBits:    uint32(accuracyLog)<<16 - tableSize,
				deltaFindState: total - 1,
			}
			total++
		default:
			maxBitsOut := uint32(accuracyLog) - uint32(bits.Len32(uint32(count-1))) + 1
			minStatePlus := uint32(count) << maxBitsOut
			symbols[sym] = fseEncodeSymbol{
				deltaNbBits:    maxBitsOut<<16 - minStatePlus,
				deltaFindState: total - int32(count),
			}
			total += int32(count)
		}
	}

	return &fseEncodeTable{accuracyLog: accuracyLog, stateTable: stateTable, symbols: symbols}, nil
}

// fseEncodeState is an encoder-side cursor; symbols are pushed onto it in
// the reverse of their logical order (see sequences.go), matching the
// reverse bit reader's pop order.
type fseEncodeState struct {
	table *fseEncodeTable
	state uint32
}

// initFSEEncodeState seeds the state from the first symbol pushed (which
// is the *last* symbol in logical order): no bits are written for this
// seed, it is recovered by the decoder's newFSEState call instead.
func initFSEEncodeState(table *fseEncodeTable, symbol uint8) fseEncodeState {
	// The initial state is simply the smallest state for which this
	// symbol's range begins, i.e. stateTable's first slot for it: feed
	// the smallest seed that spills nbBitsOut bits through one encode
	// step to land there.
	sym := table.symbols[symbol]
	nbBitsOut := (sym.deltaNbBits + 1<<15) >> 16
	seed := nbBitsOut<<16 - sym.deltaNbBits
	return encodeStep(fseEncodeState{table: table, state: seed}, symbol, nil)
}

// encodeStep performs one FSE encode transition for symbol, writing the
// spilled low bits of the current state to w (if w is non-nil; nil is used
// once, by initFSEEncodeState, to derive the seed state without emitting
// bits), and returns the updated state.
func encodeStep(s fseEncodeState, symbol uint8, w *bitstream.BitWriter) fseEncodeState {
	sym := s.table.symbols[symbol]
	nbBitsOut := uint32(int64(uint32(s.state))+int64(int32(sym.deltaNbBits))) >> 16
	if w != nil {
		w.AddBits(uint64(s.state), uint(nbBitsOut))
	}
	next := s.table.stateTable[int32(s.state>>nbBitsOut)+sym.deltaFindState]
	return fseEncodeState{table: s.table, state: next}
}

// flush writes the state's final value (accuracyLog bits), to be read back
// by the decoder's newFSEState.
func (s fseEncodeState) flush(w *bitstream.BitWriter) {
	w.AddBits(uint64(s.state), s.table.accuracyLog)
}
