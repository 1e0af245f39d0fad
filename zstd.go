// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package zstd implements a pure, dependency-free (for its entropy and
// window core) decoder and baseline encoder for the Zstandard (zstd)
// compressed data format: frame/block parsing, FSE and Huffman entropy
// coding, and LZ77-style sequence execution over a sliding window.
//
// Decoding is exposed as a pull-driven io.Reader (StreamingDecoder) plus
// a DecodeAll convenience function; encoding is exposed as Compress and
// a streaming Writer, both built from the same bit-reversal entropy
// machinery the decoder uses.
package zstd

import (
	"bytes"
	"io"

	izstd "github.com/cosnicolaou/zstd/internal/zstd"
)

// Kind discriminates the error taxonomy a caller can branch on; see
// *Error's Kind field.
type Kind = izstd.Kind

// Error kinds, re-exported from the internal codec's error taxonomy.
const (
	BadMagic             = izstd.BadMagic
	ReservedBit          = izstd.ReservedBit
	WindowTooLarge       = izstd.WindowTooLarge
	TruncatedInput       = izstd.TruncatedInput
	CorruptedFseTable    = izstd.CorruptedFseTable
	CorruptedHuffmanTree = izstd.CorruptedHuffmanTree
	MissingPreviousTable = izstd.MissingPreviousTable
	CorruptedSequence    = izstd.CorruptedSequence
	ExtraBits            = izstd.ExtraBits
	NotEnoughBits        = izstd.NotEnoughBits
	ChecksumMismatch     = izstd.ChecksumMismatch
	BlockSizeExceeded    = izstd.BlockSizeExceeded
	UnsupportedLevel     = izstd.UnsupportedLevel
	SkippableFrame       = izstd.SkippableFrame
)

// Error is the single diagnostic type this package returns: a Kind plus
// a human-readable detail and a best-effort byte offset into the stream.
type Error = izstd.Error

// ErrKind returns a sentinel *Error usable with errors.Is to test a
// returned error's Kind: errors.Is(err, zstd.ErrKind(zstd.BadMagic)).
func ErrKind(k Kind) error { return izstd.ErrKind(k) }

// Level selects an encoder's compression/effort tradeoff. Only
// Uncompressed and Fastest are implemented by this baseline encoder;
// see WithLevel.
type Level int

const (
	Uncompressed Level = iota
	Fastest
)

// DecodeAll decompresses a complete zstd stream (one or more
// concatenated frames, with any interleaved skippable frames silently
// skipped by default, see IgnoreSkippableFrames) held entirely in
// memory, returning the decompressed bytes or the first error
// encountered.
func DecodeAll(input []byte, opts ...DOption) ([]byte, error) {
	dec := NewStreamingDecoder(bytes.NewReader(input), opts...)
	out, err := io.ReadAll(dec)
	if err != nil {
		return nil, err
	}
	return out, nil
}
