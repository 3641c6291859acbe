// Copyright 2026 The xpdi Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package pdi

import "periph.io/x/conn/v3/gpio"

// transfer holds the state of one in-progress Send or Recv call. run
// allocates one per call, before the first clock edge; nothing is
// allocated per byte.
type transfer struct {
	buf   []byte
	dir   Direction
	offs  int
	pos   Position
	byte  byte
	ticks uint64
	done  bool
	fail  bool
}

// run drives buf through the wire in direction dir to completion,
// failure, timeout or cancellation.
func (l *Link) run(buf []byte, dir Direction) error {
	if len(buf) == 0 {
		return nil
	}

	t := &transfer{buf: buf, dir: dir, pos: PosStart}
	if dir == DirOut {
		t.byte = buf[0]
	}

	if dir != l.dir {
		if dir == DirOut {
			l.io.Set(l.data)
			l.io.SetDirection(l.data, false)
			l.blindClock(2) // at least one clock in the new direction
		} else {
			// A variable number of idle clocks is required before the
			// start bit; clockIn handles this by counting idle ticks.
			l.io.SetDirection(l.data, true)
		}
		l.dir = dir
	}

	for !t.done && !t.fail {
		if l.stop.Load() {
			return ErrCancelled
		}
		if dir == DirIn && t.ticks >= PDITimeout {
			return ErrTimeout
		}
		if dir == DirOut {
			l.clockOut(t)
		} else {
			l.clockIn(t)
		}
	}

	if t.fail {
		return ErrFraming
	}
	return nil
}

// nextByte commits the byte just finished (on receive) and advances to
// the next byte boundary, resetting the idle-tick timeout.
func (t *transfer) nextByte() {
	t.ticks = 0

	if t.dir == DirIn {
		t.buf[t.offs] = t.byte
	}

	t.offs++
	if t.offs >= len(t.buf) {
		t.done = true
		t.offs = 0
	}

	t.pos = PosStart
	if !t.done && t.dir == DirOut {
		t.byte = t.buf[t.offs]
	} else {
		t.byte = 0
	}
}

// clockOut drives one clock cycle while sending.
func (l *Link) clockOut(t *transfer) {
	l.io.Clear(l.clk)

	if t.done {
		l.io.Set(l.data) // idle
	} else {
		bit := false
		pos := t.pos
		t.pos++

		switch {
		case pos == PosStart:
			bit = false
		case pos == PosParity:
			bit = parity(t.byte)
		case pos == PosStop0:
			bit = true
		case pos == PosStop1:
			bit = true
			t.nextByte()
		default:
			if n, ok := pos.dataBit(); ok {
				bit = (t.byte>>uint(n))&1 != 0
			}
		}

		if bit {
			l.io.Set(l.data)
		} else {
			l.io.Clear(l.data)
		}
	}

	l.io.Set(l.clk)
}

// clockIn drives and samples one clock cycle while receiving.
func (l *Link) clockIn(t *transfer) {
	l.io.Clear(l.clk)
	l.io.Set(l.clk)

	if t.done {
		return
	}

	bit := l.io.Get(l.data) == gpio.High

	switch {
	case t.pos == PosStart:
		if bit {
			t.ticks++ // idle: target hasn't started a byte yet
		} else {
			t.pos++
		}
	case t.pos == PosParity:
		if bit != parity(t.byte) {
			t.fail = true
		}
		t.pos++
	case t.pos == PosStop0:
		if !bit {
			t.fail = true
		}
		t.pos++
	case t.pos == PosStop1:
		if !bit {
			t.fail = true
		}
		t.nextByte()
	default:
		if n, ok := t.pos.dataBit(); ok {
			if bit {
				t.byte |= 1 << uint(n)
			}
			t.pos++
		}
	}
}
