// Copyright 2026 The xpdi Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package nvm

import (
	"errors"
	"testing"
)

// scriptedLink replies to Recv with pre-queued byte slices and records
// every Send for later inspection. Send never fails unless failAfter is
// reached, and Recv fails once the queue is exhausted, letting tests
// exercise the retry wrapper.
type scriptedLink struct {
	sends     [][]byte
	recvQueue [][]byte
	opens     int
	failAfter int
	calls     int
}

func (s *scriptedLink) Send(buf []byte) error {
	s.calls++
	cp := append([]byte(nil), buf...)
	s.sends = append(s.sends, cp)
	if s.failAfter > 0 && s.calls >= s.failAfter {
		return errors.New("scripted failure")
	}
	return nil
}

func (s *scriptedLink) Recv(buf []byte) error {
	if len(s.recvQueue) == 0 {
		return errors.New("scriptedLink: recv queue exhausted")
	}
	next := s.recvQueue[0]
	s.recvQueue = s.recvQueue[1:]
	copy(buf, next)
	return nil
}

func (s *scriptedLink) Open() error {
	s.opens++
	return nil
}

func TestStoreByteEncoding(t *testing.T) {
	s := &scriptedLink{}
	if err := storeByte(s, 0x010001cb, 0x01); err != nil {
		t.Fatal(err)
	}
	got := s.sends[0]
	want := []byte{cmdSTS(3, 0), 0xcb, 0x01, 0x00, 0x01, 0x01}
	if string(got) != string(want) {
		t.Errorf("got %x, want %x", got, want)
	}
}

func TestWaitBusyNotBusyImmediately(t *testing.T) {
	s := &scriptedLink{recvQueue: [][]byte{{0x00}}}
	if err := waitBusy(s); err != nil {
		t.Fatal(err)
	}
	if len(s.sends) != 2 { // store address + one LD poll
		t.Errorf("sends = %d, want 2", len(s.sends))
	}
}

func TestReadDeviceIDSuccess(t *testing.T) {
	// is_enabled -> LDCS status bit set; wait_busy -> not busy;
	// nvmCommand, storeAddress, storeRepeat, LD; device id bytes.
	s := &scriptedLink{recvQueue: [][]byte{
		{pdiNVMEnBit}, // ldcs for isEnabled
		{0x00},        // waitBusy poll
		{0x1e, 0x98, 0x42},
	}}
	c := New(nil)
	c.link = s

	id, ok := c.ReadDeviceID()
	if !ok {
		t.Fatal("ReadDeviceID reported failure")
	}
	if id != 0x1e9842 {
		t.Errorf("id = %#x, want 0x1e9842", id)
	}
}

func TestReadDeviceIDFailureSentinel(t *testing.T) {
	s := &scriptedLink{recvQueue: nil} // every Recv fails immediately
	c := New(nil)
	c.link = s

	id, ok := c.ReadDeviceID()
	if ok {
		t.Fatal("expected failure")
	}
	if id != 0 {
		t.Errorf("id = %#x on failure, want 0", id)
	}
	if s.opens == 0 {
		t.Error("expected withRetry to reopen the link after a failure")
	}
}

func TestWithRetryGivesUpAfterMaxRetry(t *testing.T) {
	s := &scriptedLink{}
	attempts := 0
	err := withRetry(s, func() error {
		attempts++
		return errors.New("always fails")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != maxRetry {
		t.Errorf("attempts = %d, want %d", attempts, maxRetry)
	}
	if s.opens != maxRetry {
		t.Errorf("opens = %d, want %d", s.opens, maxRetry)
	}
}

func TestWritePageRejectsNonPageableType(t *testing.T) {
	s := &scriptedLink{}
	c := New(nil)
	c.link = s

	if err := c.WritePage(TypeFuse, 0, []byte{0}); err == nil {
		t.Fatal("expected error writing a page to the fuse region")
	}
}
