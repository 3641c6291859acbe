// Copyright 2026 The xpdi Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package pdi

// PDI command bytes: the top bits select the instruction, the low bits
// (per instruction) select operand size or register number.
const (
	cmdLDS    = 0x00 // low bits: addr-size<<2 | data-size
	cmdSTS    = 0x40 // "
	cmdLD     = 0x20 // low bits: ptr-mode | data-size
	cmdST     = 0x60 // "
	cmdLDCS   = 0x80 // low 2 bits: register number
	cmdSTCS   = 0xc0 // "
	cmdKEY    = 0xe0 // followed by 8 key bytes
	cmdREPEAT = 0xa0 // low bits: count-size
)

// Operand size encoding shared by LDS/STS/LD/ST/REPEAT.
const (
	Size1 = 0
	Size2 = 1
	Size3 = 2
	Size4 = 3
)

// Pointer addressing modes for LD/ST, shifted into bits <<2.
const (
	PtrIndirect        = 0 << 2 // *ptr
	PtrIndirectPostInc = 1 << 2 // *ptr++
	PtrDirect          = 2 << 2 // ptr
	PtrDirectPostInc   = 3 << 2 // ptr++
)
