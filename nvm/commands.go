// Copyright 2026 The xpdi Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package nvm

// NVM controller command opcodes, sent to the NVM_REG_CMD register
// before triggering CMDEX (for cmdex commands) or before a PDI
// LD/ST transfer (for pdi read/write commands).
const (
	cmdNOP          = 0x00
	cmdChipErase    = 0x40 // cmdex
	cmdRead         = 0x43 // pdi read

	cmdLoadPageBuf  = 0x23 // pdi write
	cmdErasePageBuf = 0x26 // cmdex

	cmdEraseFlashPage      = 0x2b // pdi write
	cmdWriteFlashPage      = 0x2e // pdi write
	cmdEraseWriteFlashPage = 0x2f // pdi write
	cmdFlashCRC            = 0x78 // cmdex

	cmdEraseAppSection           = 0x20 // pdi write
	cmdEraseAppSectionPage       = 0x22 // pdi write
	cmdWriteAppSectionPage       = 0x24 // pdi write
	cmdEraseWriteAppSectionPage  = 0x25 // pdi write

	cmdEraseBootSection           = 0x68 // pdi write
	cmdEraseBootSectionPage       = 0x2a // pdi write
	cmdWriteBootSectionPage       = 0x2c // pdi write
	cmdEraseWriteBootSectionPage  = 0x2d // pdi write

	cmdReadUserSigRow  = 0x03 // pdi read
	cmdEraseUserSigRow = 0x18 // pdi write
	cmdWriteUserSigRow = 0x1a // pdi write

	cmdReadFuse       = 0x07 // pdi read
	cmdWriteFuse      = 0x4c // pdi write
	cmdWriteLockBits  = 0x08 // cmdex

	cmdLoadEEPROMPageBuf  = 0x33 // pdi write
	cmdEraseEEPROMPageBuf = 0x36 // cmdex

	cmdEraseEEPROM          = 0x30 // cmdex
	cmdEraseEEPROMPage      = 0x32 // pdi write
	cmdWriteEEPROMPage      = 0x34 // pdi write
	cmdEraseWriteEEPROMPage = 0x35 // pdi write
	cmdReadEEPROM           = 0x06 // pdi read
)

// NVM controller register layout, mapped into the PDI data-space
// address range reserved for the NVM controller.
const (
	regBase      = 0x010001c0
	regAddrOffs  = 0x00
	regDataOffs  = 0x04
	regCmdOffs   = 0x0a
	regCtrlAOffs = 0x0b
	regStatus    = 0x0f

	ctrlACmdex = 0x01 // bit 0
	statusBusy = 0x80 // bit 7

	pdiNVMEnBit = 0x02

	deviceIDAddr = 0x1000090

	waitAttempts = 20000
	maxRetry     = 10
)

// Type names the NVM command family to use for a write or erase,
// corresponding to the region being addressed.
type Type int

const (
	TypeNone Type = iota
	TypeFlash
	TypeApplication
	TypeBoot
	TypeUserSignature
	TypeFuse
	TypeEEPROM
)
