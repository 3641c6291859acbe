// Copyright 2026 The xpdi Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package pdi implements the Program-and-Debug-Interface wire protocol:
// a bit-banged, half-duplex, single-threaded serial link over two GPIO
// pins. It frames bytes with a start bit, 8 data bits LSB-first, even
// parity and two stop bits, and implements the PDI open/close/break
// sequences.
//
// Be mindful of clock gaps in Send/Recv: no logging, no allocation, no
// blocking syscalls between clock edges.
package pdi

import (
	"errors"
	"fmt"
	"sync/atomic"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"

	"xpdi/soc"
)

// PDITimeout is the idle-tick budget before Recv gives up waiting for a
// start bit, expressed in PDI clock cycles.
const PDITimeout = 200000

// resetPulse is the minimum reset pulse width the xmega256a3 datasheet
// calls for: 90ns-1us. physic.Duration lets this be expressed the way
// the rest of the conn/periph ecosystem expresses time instead of a bare
// integer.
const resetPulse = physic.MicroSecond

// PDI control/status register numbers (LDCS/STCS).
const (
	RegStatus  = 0
	RegReset   = 1
	RegControl = 2
)

const (
	controlGuard  = 0x07 // two guard/idle bits
	resetAssert   = 0x59
	resetDeassert = 0x00
)

// nvmKey is the 8-byte NVM unlock key sent after KEY during pdi_open.
var nvmKey = [8]byte{0xff, 0x88, 0xd8, 0xcd, 0x45, 0xab, 0x89, 0x12}

// ioDevice is the subset of *soc.IO that the link layer drives. It
// exists so tests can exercise the framing state machine against a
// fake pin pair instead of real memory-mapped GPIO.
type ioDevice interface {
	SetDirection(pin int, in bool)
	Set(pin int)
	Clear(pin int)
	Get(pin int) gpio.Level
	Sleep(us uint64)
	Close() error
}

// Link owns one PDI session: the two GPIO pins, the current direction,
// the shared cancellation flag and the transient per-transfer frame
// state. Exactly one Link should be open at a time — the target chip is
// held in reset from Open to Close.
type Link struct {
	io   ioDevice
	clk  int
	data int
	dir  Direction
	stop *atomic.Bool
}

// ErrCancelled is returned by Send/Recv when the shared stop flag was
// set during the transfer.
var ErrCancelled = errors.New("pdi: transfer cancelled")

// ErrTimeout is returned by Recv when no start bit arrives within
// PDITimeout idle clocks.
var ErrTimeout = errors.New("pdi: receive timeout")

// ErrFraming is returned by Recv on a parity or stop-bit mismatch.
var ErrFraming = errors.New("pdi: framing error")

// NewLink opens the SoC GPIO mapping, requests real-time scheduling and
// returns a Link ready for Open. clk and data must be distinct pin
// numbers.
func NewLink(clk, data int, stop *atomic.Bool) (*Link, error) {
	if clk == data {
		return nil, fmt.Errorf("pdi: clock and data pins must differ (both %d)", clk)
	}

	io, err := soc.Open()
	if err != nil {
		return nil, fmt.Errorf("pdi: %w", err)
	}

	l := &Link{io: io, clk: clk, data: data, dir: DirIn, stop: stop}

	requestRealtime()

	io.Clear(data)
	io.Clear(clk)
	io.SetDirection(clk, false)
	io.SetDirection(data, false)

	return l, nil
}

// Stop requests cancellation of any in-progress or future transfer.
// Safe to call from a signal handler.
func (l *Link) Stop() {
	l.stop.Store(true)
}

// Open runs the PDI open sequence: break, enter PDI mode, guard the
// control register, assert reset and unlock the NVM controller.
func (l *Link) Open() error {
	l.Break()

	l.io.Set(l.data)
	l.io.Sleep(uint64(resetPulse / physic.MicroSecond)) // 90-1000ns reset pulse width
	l.blindClock(16)

	buf := make([]byte, 0, 13)
	buf = append(buf, cmdSTCS|RegControl, controlGuard)
	buf = append(buf, cmdSTCS|RegReset, resetAssert)
	buf = append(buf, cmdKEY)
	buf = append(buf, nvmKey[:]...)

	return l.Send(buf)
}

// clearReset releases the target from reset and polls until the reset
// register reads back zero.
func (l *Link) clearReset() error {
	req := []byte{cmdSTCS | RegReset, resetDeassert, cmdLDCS | RegReset}
	status := make([]byte, 1)

	for {
		if err := l.Send(req); err != nil {
			return err
		}
		if err := l.Recv(status); err != nil {
			return err
		}
		if status[0] == 0 {
			return nil
		}
	}
}

// Close re-opens the link, releases the target from reset, sends a
// break and returns both pins to input, restoring normal process
// scheduling.
func (l *Link) Close() error {
	if err := l.Open(); err != nil {
		return err
	}
	if err := l.clearReset(); err != nil {
		return err
	}
	l.Break()

	l.io.SetDirection(l.clk, true)
	l.io.SetDirection(l.data, true)

	restoreScheduling()

	return l.io.Close()
}

// Break sends 24 consecutive idle clocks with the data line released as
// input, resetting the target's PDI state machine.
func (l *Link) Break() {
	l.io.SetDirection(l.data, true)
	l.blindClock(12)
	l.blindClock(12)
}

func (l *Link) blindClock(n int) {
	for ; n > 0; n-- {
		l.io.Clear(l.clk)
		l.io.Set(l.clk)
	}
}

// Send emits len(buf) bytes onto the wire. It fails only on
// cancellation; there is no send timeout.
func (l *Link) Send(buf []byte) error {
	return l.run(buf, DirOut)
}

// Recv receives len(buf) bytes from the wire. It fails on cancellation,
// a parity/stop-bit mismatch, or receive timeout.
func (l *Link) Recv(buf []byte) error {
	return l.run(buf, DirIn)
}
