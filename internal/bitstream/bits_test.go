// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.
package bitstream

import "testing"

func TestForwardBitReader(t *testing.T) {
	// 0xB5 = 1011_0101, LSB first: 1,0,1,0,1,1,0,1
	r := NewForwardBitReader([]byte{0xB5})
	for i, want := range []uint64{1, 0, 1, 0, 1, 1, 0, 1} {
		got, err := r.GetBits(1)
		if err != nil {
			t.Fatalf("bit %d: %v", i, err)
		}
		if got != want {
			t.Errorf("bit %d: got %d, want %d", i, got, want)
		}
	}
	if _, err := r.GetBits(1); err != ErrNotEnoughBits {
		t.Errorf("got %v, want ErrNotEnoughBits", err)
	}
}

func TestForwardBitReaderMultiBit(t *testing.T) {
	r := NewForwardBitReader([]byte{0x3C, 0x01})
	got, err := r.GetBits(10)
	if err != nil {
		t.Fatal(err)
	}
	if want := uint64(0x13C); got != want {
		t.Errorf("got %#x, want %#x", got, want)
	}
}

func TestBitWriterReverseBitReaderRoundTrip(t *testing.T) {
	w := NewBitWriter(4)
	pushes := []struct {
		v uint64
		n uint
	}{
		{0x3, 2},
		{0x15, 5},
		{0x1, 1},
		{0x2A, 6},
		{0x0, 3},
		{0x3FF, 10},
	}
	for _, p := range pushes {
		w.AddBits(p.v, p.n)
	}
	data := w.Finish()

	r, err := NewReverseBitReader(data)
	if err != nil {
		t.Fatal(err)
	}
	// Bits are pushed onto a stack: the last push is read back first.
	for i := len(pushes) - 1; i >= 0; i-- {
		p := pushes[i]
		got, err := r.GetBits(p.n)
		if err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
		if got != p.v {
			t.Errorf("push %d: got %#x, want %#x", i, got, p.v)
		}
	}
	if r.Remaining() != 0 {
		t.Errorf("remaining = %d, want 0", r.Remaining())
	}
}

func TestReverseBitReaderMissingSentinel(t *testing.T) {
	if _, err := NewReverseBitReader([]byte{0x00}); err != ErrMissingSentinel {
		t.Errorf("got %v, want ErrMissingSentinel", err)
	}
	if _, err := NewReverseBitReader(nil); err != ErrNotEnoughBits {
		t.Errorf("got %v, want ErrNotEnoughBits", err)
	}
}

func TestReverseBitReaderWideRead(t *testing.T) {
	w := NewBitWriter(8)
	w.AddBits(0x00FFFFFFFFFFFFFF, 56)
	data := w.Finish()
	r, err := NewReverseBitReader(data)
	if err != nil {
		t.Fatal(err)
	}
	got, err := r.GetBits(56)
	if err != nil {
		t.Fatal(err)
	}
	if want := uint64(0x00FFFFFFFFFFFFFF); got != want {
		t.Errorf("got %#x, want %#x", got, want)
	}
}
