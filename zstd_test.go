// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package zstd_test

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/cosnicolaou/zstd"
)

func ExampleDecodeAll() {
	// Frame: magic, single-segment header declaring 5 bytes, one last
	// Raw block carrying "hello".
	frame := []byte{
		0x28, 0xB5, 0x2F, 0xFD, // magic
		0x04,             // frame header descriptor: single-segment
		0x05,             // frame content size: 5
		0x29, 0x00, 0x00, // block header: last=1, Raw, size=5
		'h', 'e', 'l', 'l', 'o',
	}
	out, err := zstd.DecodeAll(frame)
	if err != nil {
		panic(err)
	}
	fmt.Println(string(out))
	// Output:
	// hello
}

func TestCompressDecodeAllRoundTrip(t *testing.T) {
	inputs := [][]byte{
		nil,
		[]byte("a"),
		[]byte("hello, world"),
		bytes.Repeat([]byte("mississippi"), 500),
		bytes.Repeat([]byte{0x2A}, 50000),
	}
	for _, in := range inputs {
		compressed, err := zstd.Compress(in)
		if err != nil {
			t.Fatalf("Compress: %v", err)
		}
		out, err := zstd.DecodeAll(compressed)
		if err != nil {
			t.Fatalf("DecodeAll: %v", err)
		}
		if !bytes.Equal(out, in) {
			t.Fatalf("round trip mismatch: got %d bytes, want %d", len(out), len(in))
		}
	}
}

func TestWriterStreamingDecoderRoundTrip(t *testing.T) {
	input := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog\n"), 200)

	var buf bytes.Buffer
	w, err := zstd.NewWriter(&buf, zstd.WithChecksum(true))
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if _, err := w.Write(input); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// Close must be idempotent.
	if err := w.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	dec := zstd.NewStreamingDecoder(bytes.NewReader(buf.Bytes()))
	out, err := io.ReadAll(dec)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(out, input) {
		t.Fatalf("round trip mismatch via Writer/StreamingDecoder")
	}
	if got := dec.FrameCount(); got != 1 {
		t.Errorf("FrameCount = %d, want 1", got)
	}
}

func TestUnsupportedLevelRejected(t *testing.T) {
	_, err := zstd.Compress([]byte("x"), zstd.WithLevel(zstd.Level(99)))
	if !errors.Is(err, zstd.ErrKind(zstd.UnsupportedLevel)) {
		t.Fatalf("got %v, want UnsupportedLevel", err)
	}
	_, err = zstd.NewWriter(io.Discard, zstd.WithLevel(zstd.Level(99)))
	if !errors.Is(err, zstd.ErrKind(zstd.UnsupportedLevel)) {
		t.Fatalf("got %v, want UnsupportedLevel", err)
	}
}

func TestUncompressedLevelStoresOnly(t *testing.T) {
	input := bytes.Repeat([]byte("aaaaaaaaaa"), 1000)
	compressed, err := zstd.Compress(input, zstd.WithLevel(zstd.Uncompressed))
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	out, err := zstd.DecodeAll(compressed)
	if err != nil {
		t.Fatalf("DecodeAll: %v", err)
	}
	if !bytes.Equal(out, input) {
		t.Fatalf("round trip mismatch at Uncompressed level")
	}
}

func TestCompressWithBlockSize(t *testing.T) {
	input := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog, "), 2000)
	compressed, err := zstd.Compress(input, zstd.WithBlockSize(4096), zstd.WithWindowSize(1024))
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	out, err := zstd.DecodeAll(compressed)
	if err != nil {
		t.Fatalf("DecodeAll: %v", err)
	}
	if !bytes.Equal(out, input) {
		t.Fatalf("round trip mismatch with a small block/window size")
	}
}

func TestDecodeAllBadMagic(t *testing.T) {
	_, err := zstd.DecodeAll([]byte("not a zstd frame"))
	if !errors.Is(err, zstd.ErrKind(zstd.BadMagic)) {
		t.Fatalf("got %v, want BadMagic", err)
	}
}

func TestDecodeAllWindowTooLarge(t *testing.T) {
	compressed, err := zstd.Compress(bytes.Repeat([]byte("x"), 1<<20))
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	_, err = zstd.DecodeAll(compressed, zstd.MaxWindowSize(1<<10))
	if !errors.Is(err, zstd.ErrKind(zstd.WindowTooLarge)) {
		t.Fatalf("got %v, want WindowTooLarge", err)
	}
}

func TestStreamingDecoderPoisoned(t *testing.T) {
	dec := zstd.NewStreamingDecoder(bytes.NewReader([]byte("garbage")))
	_, err1 := io.ReadAll(dec)
	if err1 == nil {
		t.Fatal("expected an error on garbage input")
	}
	_, err2 := dec.Read(make([]byte, 1))
	if !errors.Is(err2, err1) {
		t.Fatalf("decoder did not stay poisoned: first %v, second %v", err1, err2)
	}
}
