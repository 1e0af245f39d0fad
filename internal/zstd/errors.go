// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package zstd implements the zstd frame format: a streaming decoder and a
// baseline "fastest" encoder built from a shared bit-reversal entropy
// codec (FSE and Huffman) and a sliding-window match executor.
package zstd

import "fmt"

// Kind discriminates the error taxonomy a caller can usefully branch on.
type Kind int

// The error kinds a Decoder or Encoder can report. Each has a stable
// discriminant so callers can compare with errors.Is against a sentinel
// *Error carrying only a Kind (see Is).
const (
	_ Kind = iota
	BadMagic
	ReservedBit
	WindowTooLarge
	TruncatedInput
	CorruptedFseTable
	CorruptedHuffmanTree
	MissingPreviousTable
	CorruptedSequence
	ExtraBits
	NotEnoughBits
	ChecksumMismatch
	BlockSizeExceeded
	UnsupportedLevel
	SkippableFrame
)

var kindNames = map[Kind]string{
	BadMagic:             "bad magic",
	ReservedBit:          "reserved bit set",
	WindowTooLarge:       "window size too large",
	TruncatedInput:       "truncated input",
	CorruptedFseTable:    "corrupted FSE table",
	CorruptedHuffmanTree: "corrupted Huffman tree",
	MissingPreviousTable: "missing previous table",
	CorruptedSequence:    "corrupted sequence",
	ExtraBits:            "extra bits left in entropy stream",
	NotEnoughBits:        "not enough bits",
	ChecksumMismatch:     "checksum mismatch",
	BlockSizeExceeded:    "block size exceeded",
	UnsupportedLevel:     "unsupported compression level",
	SkippableFrame:       "skippable frame encountered",
}

// IsInformational reports whether k marks a condition that a Decoder
// surfaces to the caller without poisoning itself (see SkippableFrame):
// the caller's next Read resumes parsing right after the reported frame
// rather than reusing the same error forever.
func (k Kind) IsInformational() bool {
	return k == SkippableFrame
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown error"
}

// Error is the single diagnostic type this package returns: a Kind plus a
// human-readable detail and a best-effort byte offset into the stream where
// the problem was found. It mirrors the teacher's StructuralError in
// spirit (a flat "kind of bad data" value) but carries enough to satisfy
// spec's requirement of a stable discriminant and an offset.
type Error struct {
	Kind   Kind
	Detail string
	Offset int64 // best-effort; -1 if unknown
}

func (e *Error) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("zstd: %s: %s (offset %d)", e.Kind, e.Detail, e.Offset)
	}
	return fmt.Sprintf("zstd: %s: %s", e.Kind, e.Detail)
}

// Is lets callers write errors.Is(err, zstd.ErrKind(zstd.BadMagic)) style
// checks, or more idiomatically compare the Kind field directly after an
// errors.As.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

func newErr(k Kind, offset int64, format string, args ...interface{}) *Error {
	return &Error{Kind: k, Detail: fmt.Sprintf(format, args...), Offset: offset}
}

// ErrKind returns a sentinel *Error usable with errors.Is to test a
// returned error's Kind, e.g. errors.Is(err, zstd.ErrKind(zstd.BadMagic)).
func ErrKind(k Kind) error {
	return &Error{Kind: k, Offset: -1}
}
