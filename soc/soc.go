// Copyright 2026 The xpdi Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package soc maps the host SoC's GPIO and system-timer register blocks
// into the process and exposes the few primitives the PDI link needs:
// pin direction, set, clear, read and a microsecond busy-wait sleep.
//
// The peripheral base address is discovered at Open time by reading the
// device tree ranges file; everything below that is a raw volatile
// 32-bit word access into the mmap'd region. There is no support for any
// SoC beyond the one whose MMIO layout is hardcoded here.
package soc

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"

	"periph.io/x/conn/v3/gpio"
)

const (
	rangesPath = "/proc/device-tree/soc/ranges"
	devMemPath = "/dev/mem"

	gpioOffset = 0x200000
	stOffset   = 0x3000

	gpfsel0 = 0x00
	gpset0  = 0x1c
	gpclr0  = 0x28
	gplev0  = 0x34

	fselInput  = 0
	fselOutput = 1
	fselMask   = 7

	stCLO = 4
	stCHI = 8
)

// IO is an open mapping of the SoC's GPIO and system-timer registers.
//
// It is a process-wide resource: only one should be open at a time, for
// the duration of a single PDI session.
type IO struct {
	mem      []byte
	gpioBase unsafe.Pointer
	stBase   unsafe.Pointer
}

// Open discovers the peripheral base address and mmaps /dev/mem.
func Open() (*IO, error) {
	base, size, err := peripheralRange(rangesPath)
	if err != nil {
		return nil, fmt.Errorf("soc: %w", err)
	}

	f, err := os.OpenFile(devMemPath, os.O_RDWR|unix.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("soc: open %s: %w", devMemPath, err)
	}
	defer f.Close()

	mem, err := unix.Mmap(int(f.Fd()), int64(base), int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("soc: mmap %s: %w", devMemPath, err)
	}

	io := &IO{mem: mem}
	io.gpioBase = unsafe.Pointer(&mem[gpioOffset])
	io.stBase = unsafe.Pointer(&mem[stOffset])
	return io, nil
}

// Close unmaps the peripheral region.
func (io *IO) Close() error {
	if io.mem == nil {
		return nil
	}
	err := unix.Munmap(io.mem)
	io.mem = nil
	io.gpioBase = nil
	io.stBase = nil
	return err
}

// peek performs a volatile 32-bit word load at byte offset off from
// base. Never cache the result across register accesses that may
// observe hardware-driven changes.
func peek(base unsafe.Pointer, off uintptr) uint32 {
	return atomic.LoadUint32((*uint32)(unsafe.Pointer(uintptr(base) + off)))
}

// poke performs a volatile 32-bit word store at byte offset off from
// base.
func poke(base unsafe.Pointer, off uintptr, v uint32) {
	atomic.StoreUint32((*uint32)(unsafe.Pointer(uintptr(base)+off)), v)
}

// SetDirection configures pin as an input or output.
//
// Function-select fields are packed 10 pins to a 32-bit word, 3 bits
// per pin.
func (io *IO) SetDirection(pin int, in bool) {
	mode := uint32(fselOutput)
	if in {
		mode = fselInput
	}
	off := uintptr(gpfsel0 + (pin/10)*4)
	shift := uint(pin%10) * 3
	mask := uint32(fselMask) << shift
	cur := peek(io.gpioBase, off)
	poke(io.gpioBase, off, (cur&^mask)|((mode<<shift)&mask))
}

// Set drives pin high.
func (io *IO) Set(pin int) {
	poke(io.gpioBase, uintptr(gpset0+(pin/32)*4), 1<<uint(pin%32))
}

// Clear drives pin low.
func (io *IO) Clear(pin int) {
	poke(io.gpioBase, uintptr(gpclr0+(pin/32)*4), 1<<uint(pin%32))
}

// Get reads the current level of pin, using the conn/periph ecosystem's
// Level vocabulary rather than a bespoke bool.
func (io *IO) Get(pin int) gpio.Level {
	return gpio.Level(peek(io.gpioBase, uintptr(gplev0+(pin/32)*4))&(1<<uint(pin%32)) != 0)
}

// Sleep busy-waits until at least us microseconds have elapsed, as
// measured by the SoC's free-running system timer.
func (io *IO) Sleep(us uint64) {
	start := io.readTimer()
	for io.readTimer() < start+us {
	}
}

// readTimer reads the 64-bit system timer counter, re-reading the low
// half if the high half changed between the two reads.
func (io *IO) readTimer() uint64 {
	hi := peek(io.stBase, stCHI)
	lo := peek(io.stBase, stCLO)
	hi2 := peek(io.stBase, stCHI)
	if hi2 != hi {
		lo = peek(io.stBase, stCLO)
		hi = hi2
	}
	return uint64(hi)<<32 | uint64(lo)
}

// peripheralRange parses the device tree ranges file: for each range
// entry, a child address, a parent (physical) address and a length, all
// big-endian 32-bit words. Only the first entry is consulted. If the
// parent-address field at offset 4 is zero, the mapping is re-parsed
// from the next 32-bit word (a newer SoC revision places it there).
func peripheralRange(path string) (base, size uint64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("open device tree: %w", err)
	}
	defer f.Close()

	var buf [16]byte
	n, err := f.Read(buf[:])
	if err != nil || n < 12 {
		return 0, 0, fmt.Errorf("read device tree ranges: %w", err)
	}

	base = uint64(binary.BigEndian.Uint32(buf[4:8]))
	size = uint64(binary.BigEndian.Uint32(buf[8:12]))

	if base == 0 {
		if n < 16 {
			return 0, 0, fmt.Errorf("device tree ranges record too short for newer layout")
		}
		base = uint64(binary.BigEndian.Uint32(buf[8:12]))
		size = uint64(binary.BigEndian.Uint32(buf[12:16]))
	}

	return base, size, nil
}
