// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package zstd

import (
	"io"

	izstd "github.com/cosnicolaou/zstd/internal/zstd"
)

// StreamingDecoder is a pull-style io.Reader over a zstd byte stream. It
// is built directly on the internal frame/block state machine; this
// type exists to give that machine a small, stable public surface (Read
// plus a couple of diagnostic accessors) the way the teacher's top-level
// reader wraps its internal Decompressor.
//
// A StreamingDecoder is poisoned by any error except io.EOF and the
// informational ErrKind(SkippableFrame) report (see
// IgnoreSkippableFrames): once Read returns any other non-nil error,
// every subsequent Read returns that same error without attempting
// further parsing.
type StreamingDecoder struct {
	dec *izstd.Decoder
}

// NewStreamingDecoder returns a StreamingDecoder pulling from r.
func NewStreamingDecoder(r io.Reader, opts ...DOption) *StreamingDecoder {
	o := &decoderOpts{}
	for _, fn := range opts {
		fn(o)
	}
	return &StreamingDecoder{dec: izstd.NewDecoder(r, o.inner...)}
}

// Read implements io.Reader: it returns whatever decompressed bytes are
// immediately available, blocking on the underlying reader only as
// needed to produce at least one byte (or to discover end of stream).
func (s *StreamingDecoder) Read(p []byte) (int, error) {
	return s.dec.Read(p)
}

// FrameCount reports how many complete frames have been decoded so far.
func (s *StreamingDecoder) FrameCount() uint64 { return s.dec.FrameCount() }

// BytesRead reports the total number of compressed input bytes consumed
// so far.
func (s *StreamingDecoder) BytesRead() uint64 { return s.dec.BytesRead() }
