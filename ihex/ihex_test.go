// Copyright 2026 The xpdi Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ihex

import (
	"bytes"
	"strings"
	"testing"
)

func TestWriteReadRoundTrip(t *testing.T) {
	image := []byte{0x01, 0x02, 0x03, 0x04, 0xde, 0xad, 0xbe, 0xef}

	var buf bytes.Buffer
	if err := Write(&buf, 0, image); err != nil {
		t.Fatal(err)
	}

	base, got, maxAddr, err := Read(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if base != 0 {
		t.Errorf("base = %#x, want 0", base)
	}
	if !bytes.Equal(got, image) {
		t.Errorf("got %x, want %x", got, image)
	}
	if maxAddr != uint32(len(image)) {
		t.Errorf("maxAddr = %d, want %d", maxAddr, len(image))
	}
}

func TestReadTracksMaxAddressPastTrailingFF(t *testing.T) {
	image := make([]byte, 260)
	for i := range image {
		if i < 256 {
			image[i] = 0x01 // any non-0xff filler
		} else {
			image[i] = 0xff
		}
	}

	var buf bytes.Buffer
	if err := Write(&buf, 0, image); err != nil {
		t.Fatal(err)
	}

	base, got, maxAddr, err := Read(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if base != 0 {
		t.Errorf("base = %#x, want 0", base)
	}
	if maxAddr != 256 {
		t.Errorf("maxAddr = %d, want 256", maxAddr)
	}
	for i := 0; i < 256; i++ {
		if got[i] != 0x01 {
			t.Fatalf("byte %d = %#02x, want 0x01", i, got[i])
		}
	}
	for i := 256; i < len(got); i++ {
		if got[i] != 0xff {
			t.Errorf("byte %d = %#02x, want 0xff", i, got[i])
		}
	}
}

func TestWriteSkipsTrailingFF(t *testing.T) {
	image := append([]byte{0x01, 0x02}, bytes.Repeat([]byte{0xff}, 64)...)

	var buf bytes.Buffer
	if err := Write(&buf, 0, image); err != nil {
		t.Fatal(err)
	}

	// The written file should be no larger than the image it skipped.
	if buf.Len() > len(image) {
		t.Errorf("written hex (%d bytes) did not benefit from 0xff skip (image %d bytes)", buf.Len(), len(image))
	}
}

func TestReadIgnoresType3And5(t *testing.T) {
	text := ":0400000300000000F9\n:10000000000102030405060708090A0B0C0D0E0F78\n:0400000500000000F7\n:00000001FF\n"
	// A start-segment-address record (type 3) before the data and a
	// start-linear-address record (type 5) after it.
	base, img, _, err := Read(strings.NewReader(text))
	if err != nil {
		t.Fatal(err)
	}
	if base != 0 {
		t.Errorf("base = %#x, want 0", base)
	}
	if len(img) != 16 {
		t.Errorf("len(img) = %d, want 16", len(img))
	}
}

func TestReadRejectsType4(t *testing.T) {
	text := ":020000040000FA\n:10000000000102030405060708090A0B0C0D0E0F78\n"
	if _, _, _, err := Read(strings.NewReader(text)); err == nil {
		t.Fatal("expected error reading an extended linear address record")
	}
}

func TestReadRejectsMalformedRecord(t *testing.T) {
	if _, _, _, err := Read(strings.NewReader("not a hex record\n")); err == nil {
		t.Fatal("expected error for malformed record")
	}
}

func TestReadEmpty(t *testing.T) {
	base, img, maxAddr, err := Read(strings.NewReader(":00000001FF\n"))
	if err != nil {
		t.Fatal(err)
	}
	if base != 0 || img != nil || maxAddr != 0 {
		t.Errorf("base=%d img=%v maxAddr=%d, want 0, nil, 0", base, img, maxAddr)
	}
}
