// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package zstd

import (
	"bytes"
	"io"

	izstd "github.com/cosnicolaou/zstd/internal/zstd"
)

func resolveEncoderOpts(opts []EOption) (*encoderOpts, error) {
	o := &encoderOpts{level: Fastest}
	for _, fn := range opts {
		fn(o)
	}
	if o.level != Uncompressed && o.level != Fastest {
		return nil, ErrKind(UnsupportedLevel)
	}
	return o, nil
}

func (o *encoderOpts) innerOpts() []izstd.EncOption {
	inner := []izstd.EncOption{izstd.WithChecksum(o.checksum)}
	if o.level == Uncompressed {
		inner = append(inner, izstd.WithStoreOnly(true))
	}
	if o.blockSize != 0 {
		inner = append(inner, izstd.WithBlockSize(o.blockSize))
	}
	if o.windowSize != 0 {
		inner = append(inner, izstd.WithWindowSize(o.windowSize))
	}
	return inner
}

// Compress returns input encoded as a single zstd frame.
func Compress(input []byte, opts ...EOption) ([]byte, error) {
	o, err := resolveEncoderOpts(opts)
	if err != nil {
		return nil, err
	}
	enc := izstd.NewEncoder(o.innerOpts()...)
	return enc.Encode(input), nil
}

// Writer is a streaming zstd compressor: every Write call's bytes are
// buffered and emitted as one frame when Close is called. There is no
// incremental frame flushing: nothing is encoded or written before
// Close. Use Compress directly when the input is already in memory.
type Writer struct {
	w    io.Writer
	opts *encoderOpts
	buf  bytes.Buffer
	done bool
}

// NewWriter returns a Writer that compresses everything written to it
// into a single zstd frame written to w when Close is called.
func NewWriter(w io.Writer, opts ...EOption) (*Writer, error) {
	o, err := resolveEncoderOpts(opts)
	if err != nil {
		return nil, err
	}
	return &Writer{w: w, opts: o}, nil
}

// Write buffers p for later encoding; it never fails on its own account.
func (w *Writer) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

// Close encodes everything written so far as a single zstd frame and
// writes it to the underlying writer. It is a no-op on a second call.
func (w *Writer) Close() error {
	if w.done {
		return nil
	}
	w.done = true
	enc := izstd.NewEncoder(w.opts.innerOpts()...)
	_, err := w.w.Write(enc.Encode(w.buf.Bytes()))
	return err
}
