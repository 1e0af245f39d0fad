// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package zstd

import (
	"hash"

	izstd "github.com/cosnicolaou/zstd/internal/zstd"
)

// DOption configures a StreamingDecoder, following the same
// functional-option shape the teacher's DecompressorOption/ReaderOption
// pair uses.
type DOption func(*decoderOpts)

type decoderOpts struct {
	inner []izstd.Option
}

// MaxWindowSize caps the window size a frame may declare; frames
// requesting more fail with a WindowTooLarge error before any window is
// allocated. Defaults to 8 MiB.
func MaxWindowSize(n uint64) DOption {
	return func(o *decoderOpts) { o.inner = append(o.inner, izstd.WithMaxWindowSize(n)) }
}

// VerifyChecksum controls whether a frame's trailing XXH64 content
// checksum, when present, is checked against the decompressed output.
// Defaults to true.
func VerifyChecksum(v bool) DOption {
	return func(o *decoderOpts) { o.inner = append(o.inner, izstd.WithVerifyChecksum(v)) }
}

// AllowConcatenatedFrames controls whether the decoder looks for another
// frame after the first completes, rather than treating the first
// frame's end as end of stream. Defaults to true.
func AllowConcatenatedFrames(v bool) DOption {
	return func(o *decoderOpts) { o.inner = append(o.inner, izstd.WithAllowConcatenatedFrames(v)) }
}

// IgnoreSkippableFrames controls whether skippable frames are silently
// consumed (the default) or surfaced to the caller as an
// ErrKind(SkippableFrame) read: that single Read call returns (0, err)
// without poisoning the decoder, and the next Read resumes right after
// the skippable frame. Defaults to true.
func IgnoreSkippableFrames(v bool) DOption {
	return func(o *decoderOpts) { o.inner = append(o.inner, izstd.WithIgnoreSkippableFrames(v)) }
}

// withHash overrides the checksum accumulator constructor; unexported
// because the public contract only promises XXH64.
func withHash(newHash func() hash.Hash64) DOption {
	return func(o *decoderOpts) { o.inner = append(o.inner, izstd.WithHash(newHash)) }
}

// EOption configures Compress/NewWriter.
type EOption func(*encoderOpts)

type encoderOpts struct {
	level      Level
	checksum   bool
	blockSize  uint32
	windowSize uint32
}

// WithLevel selects the compression level. Only Uncompressed and Fastest
// are implemented; any other value is rejected by Compress/NewWriter
// with ErrKind(UnsupportedLevel) rather than silently downgraded (see
// DESIGN.md's Open Question resolution).
func WithLevel(l Level) EOption {
	return func(o *encoderOpts) { o.level = l }
}

// WithChecksum controls whether the encoder emits a trailing XXH64
// content checksum. Defaults to false.
func WithChecksum(v bool) EOption {
	return func(o *encoderOpts) { o.checksum = v }
}

// WithBlockSize caps the size of each emitted block, clamped to
// [1, 128 KiB]. Defaults to 128 KiB, the format's maximum.
func WithBlockSize(n uint32) EOption {
	return func(o *encoderOpts) { o.blockSize = n }
}

// WithWindowSize bounds how far back within a block the match finder
// looks for a repeat. 0, the default, leaves the search unbounded
// within each block (this baseline encoder never matches across block
// boundaries, so this cannot exceed WithBlockSize's value in effect).
func WithWindowSize(n uint32) EOption {
	return func(o *encoderOpts) { o.windowSize = n }
}
