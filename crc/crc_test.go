// Copyright 2026 The xpdi Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package crc

import "testing"

func TestBlockEmpty(t *testing.T) {
	if got := Block(nil); got != 0 {
		t.Errorf("Block(nil) = %#x, want 0", got)
	}
}

func TestBlockDeterministic(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03, 0x04, 0x05}
	a := Block(data)
	b := Block(data)
	if a != b {
		t.Errorf("Block is not deterministic: %#x != %#x", a, b)
	}
	if a == 0 {
		t.Error("Block of non-trivial data should not be zero")
	}
	if a > 0xffffff {
		t.Errorf("Block result %#x exceeds 24 bits", a)
	}
}

func TestBlockOddTrailingByte(t *testing.T) {
	// A trailing odd byte is padded with a zero high byte; make sure it
	// participates (result differs from the even-length prefix).
	even := Block([]byte{0xaa, 0xbb})
	odd := Block([]byte{0xaa, 0xbb, 0xcc})
	if even == odd {
		t.Error("trailing odd byte had no effect on the checksum")
	}
}

func TestUpdateGatesOnPreShiftBit(t *testing.T) {
	// crc=0x800000, word=0: bit 23 is set before the shift, so the
	// polynomial must be folded in even though the shifted value's
	// bit 23 is already clear.
	if got := update(0, 0x800000); got != 0x80001b {
		t.Errorf("update(0, 0x800000) = %#06x, want 0x80001b", got)
	}
}

func TestBlockSensitiveToOrder(t *testing.T) {
	a := Block([]byte{0x12, 0x34})
	b := Block([]byte{0x34, 0x12})
	if a == b {
		t.Error("swapping byte order within a word should change the checksum")
	}
}
