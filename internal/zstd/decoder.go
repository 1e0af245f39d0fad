// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package zstd

import (
	"bufio"
	"encoding/binary"
	"hash"
	"io"
)

const defaultMaxWindowSize = 8 << 20 // 8 MiB, per §5

// Option configures a Decoder; see WithMaxWindowSize and friends.
type Option func(*Decoder)

// WithMaxWindowSize caps the window size a frame is allowed to declare;
// frames requesting more fail with WindowTooLarge before any allocation
// happens.
func WithMaxWindowSize(n uint64) Option {
	return func(d *Decoder) { d.maxWindowSize = n }
}

// WithVerifyChecksum controls whether a frame's trailing XXH64 content
// checksum (when present) is checked against the decompressed output.
func WithVerifyChecksum(v bool) Option {
	return func(d *Decoder) { d.verifyChecksum = v }
}

// WithAllowConcatenatedFrames controls whether the decoder continues
// past one frame's end to look for another, rather than treating the
// first frame's completion as end of stream.
func WithAllowConcatenatedFrames(v bool) Option {
	return func(d *Decoder) { d.allowConcatenated = v }
}

// WithIgnoreSkippableFrames controls whether skippable frames are
// silently consumed (true, the default) or surfaced to the caller as a
// distinguished, non-poisoning ErrKind(SkippableFrame) read.
func WithIgnoreSkippableFrames(v bool) Option {
	return func(d *Decoder) { d.ignoreSkippable = v }
}

// WithHash overrides the checksum accumulator constructor, which
// defaults to defaultNewHash (xxhash.go).
func WithHash(newHash func() hash.Hash64) Option {
	return func(d *Decoder) { d.newHash = newHash }
}

// Decoder drives the pull-style frame/block state machine described in
// §4.6: a single logical Read advances blocks until some bytes are
// drainable or the underlying reader is exhausted. All state (window,
// entropy tables, offset history, checksum) lives on the Decoder value
// and is freed when it is; there is no background goroutine.
type Decoder struct {
	r  io.Reader
	br *bufio.Reader

	maxWindowSize     uint64
	verifyChecksum    bool
	allowConcatenated bool
	ignoreSkippable   bool
	newHash           func() hash.Hash64

	poisoned error

	inFrame    bool
	windowSize uint64
	win        *DecodeBuffer
	repOffsets [3]uint64
	huff       *huffmanDecodeTable
	llTable    *fseDecodeTable
	ofTable    *fseDecodeTable
	mlTable    *fseDecodeTable
	checksumOn bool
	hasher     hash.Hash64

	haveContentSize bool
	contentSize     uint64
	emittedInFrame  uint64

	frameCount uint64
	bytesRead  uint64

	sawAnyFrame bool
}

// NewDecoder returns a Decoder pulling zstd-framed data from r.
func NewDecoder(r io.Reader, opts ...Option) *Decoder {
	d := &Decoder{
		r:             r,
		br:            bufio.NewReader(r),
		maxWindowSize: defaultMaxWindowSize,
		verifyChecksum: true,
		allowConcatenated: true,
		ignoreSkippable:   true,
	}
	for _, fn := range opts {
		fn(d)
	}
	return d
}

// FrameCount reports how many complete frames have been decoded so far.
func (d *Decoder) FrameCount() uint64 { return d.frameCount }

// BytesRead reports the total number of compressed input bytes consumed
// so far, for use in the best-effort offsets *Error carries.
func (d *Decoder) BytesRead() uint64 { return d.bytesRead }

// Read implements a pull-driven pass over the underlying stream: it
// decodes blocks until the window has drainable bytes or the stream is
// exhausted, then copies into p. A short read (n < len(p)) is never an
// error by itself; only a true end of stream yields (0, io.EOF).
func (d *Decoder) Read(p []byte) (int, error) {
	if d.poisoned != nil {
		return 0, d.poisoned
	}
	if len(p) == 0 {
		return 0, nil
	}
	for {
		if d.win != nil && d.win.Drainable() > 0 {
			return d.win.Drain(p), nil
		}
		done, err := d.advance()
		if err != nil {
			if ze, ok := err.(*Error); ok && ze.Kind.IsInformational() {
				return 0, err
			}
			d.poisoned = err
			return 0, err
		}
		if done {
			return 0, io.EOF
		}
	}
}

// advance performs one unit of state-machine progress: if not currently
// inside a frame, it looks for the next frame (skipping skippable ones,
// per options); if inside a frame, it decodes the next block. It returns
// done=true at end of stream: when no input is left, or when a frame has
// completed and concatenated frames are not allowed.
func (d *Decoder) advance() (done bool, err error) {
	if !d.inFrame {
		return d.beginNextFrame()
	}
	return false, d.decodeNextBlock()
}

// readFull reads exactly len(buf) bytes, translating a clean io.EOF (zero
// bytes read) into the caller-visible "true end of stream" signal via a
// boolean, and any other shortfall into TruncatedInput.
func (d *Decoder) readFull(buf []byte) (cleanEOF bool, err error) {
	n, err := io.ReadFull(d.br, buf)
	d.bytesRead += uint64(n)
	if err == nil {
		return false, nil
	}
	if err == io.EOF && n == 0 {
		return true, nil
	}
	return false, newErr(TruncatedInput, int64(d.bytesRead), "unexpected end of input: %v", err)
}

// beginNextFrame consumes magic numbers until it finds a real zstd
// frame: skippable frames are read and discarded (or surfaced, per
// options) in a loop, since the format permits any number of them
// between real frames.
func (d *Decoder) beginNextFrame() (done bool, err error) {
	for {
		var magicBuf [4]byte
		eof, err := d.readFull(magicBuf[:])
		if err != nil {
			return false, err
		}
		if eof {
			return true, nil
		}
		magic := binary.LittleEndian.Uint32(magicBuf[:])

		if magic >= skippableMagicLo && magic <= skippableMagicHi {
			size, err := d.skipFrame()
			if err != nil {
				return false, err
			}
			if !d.ignoreSkippable {
				return false, newErr(SkippableFrame, int64(d.bytesRead), "skippable frame %#08x, %d byte payload", magic, size)
			}
			continue
		}
		if magic != frameMagic {
			return false, newErr(BadMagic, int64(d.bytesRead)-4, "not a zstd frame (magic %#08x)", magic)
		}
		if d.sawAnyFrame && !d.allowConcatenated {
			return true, nil
		}
		if err := d.readFrameHeader(); err != nil {
			return false, err
		}
		d.sawAnyFrame = true
		return false, nil
	}
}

// skipFrame reads a skippable frame's 4-byte little-endian size and
// discards that many payload bytes, returning the payload size so the
// caller can report it (see SkippableFrame).
func (d *Decoder) skipFrame() (uint32, error) {
	var sizeBuf [4]byte
	eof, err := d.readFull(sizeBuf[:])
	if err != nil {
		return 0, err
	}
	if eof {
		return 0, newErr(TruncatedInput, int64(d.bytesRead), "truncated skippable frame size")
	}
	size := binary.LittleEndian.Uint32(sizeBuf[:])
	if _, err := io.CopyN(io.Discard, d.br, int64(size)); err != nil {
		return 0, newErr(TruncatedInput, int64(d.bytesRead), "truncated skippable frame payload: %v", err)
	}
	d.bytesRead += uint64(size)
	return size, nil
}

// readFrameHeader parses the Frame_Header following a matched magic
// number and resets all per-frame state (window, entropy tables, offset
// history, checksum accumulator), per §3's lifecycle rule that these
// never survive a frame boundary.
func (d *Decoder) readFrameHeader() error {
	var descByte [1]byte
	if eof, err := d.readFull(descByte[:]); err != nil || eof {
		if eof {
			return newErr(TruncatedInput, int64(d.bytesRead), "truncated frame header")
		}
		return err
	}
	desc, err := parseFrameHeaderDescriptor(descByte[0])
	if err != nil {
		return err
	}

	var windowSize uint64
	if !desc.singleSegment {
		var wd [1]byte
		if eof, err := d.readFull(wd[:]); err != nil || eof {
			if eof {
				return newErr(TruncatedInput, int64(d.bytesRead), "truncated window descriptor")
			}
			return err
		}
		windowSize = windowSizeFromDescriptor(wd[0])
	}

	if n := dictionaryIDSize(desc.dictIDFlag); n > 0 {
		dictBuf := make([]byte, n)
		if eof, err := d.readFull(dictBuf); err != nil || eof {
			if eof {
				return newErr(TruncatedInput, int64(d.bytesRead), "truncated dictionary id")
			}
			return err
		}
		// Dictionary support is a not-yet-implemented option (§1); a
		// frame naming one is still structurally valid to parse, it
		// just cannot be decoded against that dictionary.
	}

	var haveContentSize bool
	var contentSize uint64
	if n := frameContentSizeFieldSize(desc.fcsFlag, desc.singleSegment); n > 0 {
		fcsBuf := make([]byte, n)
		if eof, err := d.readFull(fcsBuf); err != nil || eof {
			if eof {
				return newErr(TruncatedInput, int64(d.bytesRead), "truncated frame content size")
			}
			return err
		}
		contentSize = decodeFrameContentSize(fcsBuf)
		haveContentSize = true
	}

	if desc.singleSegment {
		if !haveContentSize {
			return newErr(TruncatedInput, int64(d.bytesRead), "single-segment frame missing content size")
		}
		windowSize = contentSize
	}
	if windowSize > d.maxWindowSize {
		return newErr(WindowTooLarge, int64(d.bytesRead), "window size %d exceeds cap %d", windowSize, d.maxWindowSize)
	}

	d.inFrame = true
	d.windowSize = windowSize
	d.win = NewDecodeBuffer(windowSize)
	d.repOffsets = [3]uint64{1, 4, 8}
	d.huff = nil
	d.llTable = nil
	d.ofTable = nil
	d.mlTable = nil
	d.haveContentSize = haveContentSize
	d.contentSize = contentSize
	d.emittedInFrame = 0
	d.checksumOn = desc.checksumFlag
	if d.checksumOn {
		newHash := d.newHash
		if newHash == nil {
			newHash = defaultNewHash
		}
		d.hasher = newHash()
	} else {
		d.hasher = nil
	}
	return nil
}

// decodeNextBlock reads and decodes one block, feeding its emitted bytes
// into the frame checksum, and finalizes the frame (checksum
// verification, state reset) once the Last_Block has been processed.
func (d *Decoder) decodeNextBlock() error {
	var hdrBuf [3]byte
	if eof, err := d.readFull(hdrBuf[:]); err != nil || eof {
		if eof {
			return newErr(TruncatedInput, int64(d.bytesRead), "truncated block header")
		}
		return err
	}
	h, err := parseBlockHeader(hdrBuf)
	if err != nil {
		return err
	}
	if h.size > maxBlockSize {
		return newErr(BlockSizeExceeded, int64(d.bytesRead), "block size %d exceeds %d", h.size, maxBlockSize)
	}
	if h.typ != blockCompressed && uint64(h.size) > d.windowSize {
		return newErr(BlockSizeExceeded, int64(d.bytesRead), "block size %d exceeds window size %d", h.size, d.windowSize)
	}

	payloadSize := blockPayloadSize(h)
	payload := make([]byte, payloadSize)
	if eof, err := d.readFull(payload); err != nil || eof {
		if eof {
			return newErr(TruncatedInput, int64(d.bytesRead), "truncated block payload")
		}
		return err
	}

	before := d.win.BytesEmitted()
	if err := d.decodeBlockBody(h, payload); err != nil {
		return err
	}
	emitted := d.win.BytesEmitted() - before
	d.emittedInFrame += emitted
	if d.haveContentSize && d.emittedInFrame > d.contentSize {
		return newErr(CorruptedSequence, int64(d.bytesRead), "block output exceeds declared frame content size")
	}
	if d.hasher != nil {
		d.feedChecksum(before, d.win.BytesEmitted())
	}

	if h.last {
		return d.finishFrame()
	}
	return nil
}

// feedChecksum writes the bytes emitted in [from, to) (absolute window
// positions) into the running checksum. Because DecodeBuffer may have
// trimmed bytes that are both drained and outside the window, this reads
// straight from the window's still-resident tail, which always covers
// at least the most recent block (no frame emits more than maxBlockSize
// bytes without the caller having a chance to drain in between, and the
// checksum is fed synchronously right after each block decodes).
func (d *Decoder) feedChecksum(from, to uint64) {
	d.win.writeRangeTo(d.hasher, from, to)
}

// finishFrame verifies the optional content checksum and declared
// content size, then tears down per-frame state so the next advance()
// call looks for a new frame.
func (d *Decoder) finishFrame() error {
	if d.haveContentSize && d.emittedInFrame != d.contentSize {
		return newErr(CorruptedSequence, int64(d.bytesRead), "decoded size %d does not match declared content size %d", d.emittedInFrame, d.contentSize)
	}
	if d.checksumOn {
		var sumBuf [4]byte
		if eof, err := d.readFull(sumBuf[:]); err != nil || eof {
			if eof {
				return newErr(TruncatedInput, int64(d.bytesRead), "truncated checksum")
			}
			return err
		}
		if d.verifyChecksum {
			want := binary.LittleEndian.Uint32(sumBuf[:])
			got := uint32(d.hasher.Sum64())
			if want != got {
				return newErr(ChecksumMismatch, int64(d.bytesRead), "checksum mismatch: frame says %#08x, computed %#08x", want, got)
			}
		}
	}
	d.frameCount++
	d.inFrame = false
	return nil
}
