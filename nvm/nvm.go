// Copyright 2026 The xpdi Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package nvm drives the XMEGA's non-volatile memory controller over a
// PDI link: reading, page programming, page erase, chip erase, fuse
// write and the on-chip flash CRC engine.
package nvm

import (
	"fmt"

	"xpdi/pdi"
)

// link is the subset of *pdi.Link the controller needs, so tests can
// supply a fake wire instead of real hardware.
type link interface {
	Send(buf []byte) error
	Recv(buf []byte) error
	Open() error
}

// Controller drives the NVM command sequences over an open PDI Link.
type Controller struct {
	link link
}

// New wraps an open PDI link in a Controller.
func New(l *pdi.Link) *Controller {
	return &Controller{link: l}
}

func storeByte(l link, addr uint32, value byte) error {
	buf := []byte{cmdSTS(pdi.Size4, pdi.Size1), byte(addr), byte(addr >> 8), byte(addr >> 16), byte(addr >> 24), value}
	return l.Send(buf)
}

func loadU24(l link, addr uint32) (uint32, error) {
	buf := []byte{cmdLDS(pdi.Size4, pdi.Size3), byte(addr), byte(addr >> 8), byte(addr >> 16), byte(addr >> 24)}
	if err := l.Send(buf); err != nil {
		return 0, err
	}
	val := make([]byte, 3)
	if err := l.Recv(val); err != nil {
		return 0, err
	}
	return uint32(val[0]) | uint32(val[1])<<8 | uint32(val[2])<<16, nil
}

func ldcs(l link, reg byte) (byte, error) {
	if err := l.Send([]byte{cmdLDCS(reg)}); err != nil {
		return 0, err
	}
	val := make([]byte, 1)
	err := l.Recv(val)
	return val[0], err
}

func storeAddress(l link, addr uint32) error {
	buf := []byte{cmdST(pdi.PtrDirect, pdi.Size4), byte(addr), byte(addr >> 8), byte(addr >> 16), byte(addr >> 24)}
	return l.Send(buf)
}

func storeRepeat(l link, count uint32) error {
	buf := []byte{cmdREPEAT(pdi.Size4), byte(count), byte(count >> 8), byte(count >> 16), byte(count >> 24)}
	return l.Send(buf)
}

// cmdSTS/cmdLDS/cmdST/cmdLDCS/cmdREPEAT pack the PDI command byte for
// each instruction, matching the opcode layout in commands.go in the
// pdi package.
func cmdSTS(addrSize, dataSize int) byte { return 0x40 | byte(addrSize<<2) | byte(dataSize) }
func cmdLDS(addrSize, dataSize int) byte { return 0x00 | byte(addrSize<<2) | byte(dataSize) }
func cmdST(ptrMode, dataSize int) byte { return 0x60 | byte(ptrMode) | byte(dataSize) }
func cmdLD(ptrMode, dataSize int) byte { return 0x20 | byte(ptrMode) | byte(dataSize) }
func cmdLDCS(reg byte) byte            { return 0x80 | reg }
func cmdREPEAT(size int) byte          { return 0xa0 | byte(size) }

func nvmExecute(l link) error {
	return storeByte(l, regBase+regCtrlAOffs, ctrlACmdex)
}

func nvmCommand(l link, cmd byte) error {
	return storeByte(l, regBase+regCmdOffs, cmd)
}

// waitBusy polls the NVM status register until the busy bit clears.
// The status pointer is only set up once, matching the original
// implementation: each retry re-reads through the same indirect
// pointer rather than re-arming it, since the pointer's post-increment
// mode is never used here.
func waitBusy(l link) error {
	if err := storeAddress(l, regBase+regStatus); err != nil {
		return err
	}

	cmd := []byte{cmdLD(pdi.PtrIndirect, pdi.Size1)}
	status := make([]byte, 1)

	for i := 0; i < waitAttempts; i++ {
		if err := l.Send(cmd); err != nil {
			return err
		}
		if err := l.Recv(status); err != nil {
			return err
		}
		if status[0]&statusBusy == 0 {
			return nil
		}
	}
	return fmt.Errorf("nvm: timed out waiting for controller to go idle")
}

func isEnabled(l link) (bool, error) {
	status, err := ldcs(l, pdi.RegStatus)
	if err != nil {
		return false, err
	}
	return status&pdiNVMEnBit != 0, nil
}

func waitEnabled(l link) error {
	for i := 0; i < waitAttempts; i++ {
		ok, err := isEnabled(l)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return fmt.Errorf("nvm: controller never signalled ready")
}

func exec(l link, cmd byte) error {
	if err := waitEnabled(l); err != nil {
		return err
	}
	if err := waitBusy(l); err != nil {
		return err
	}
	if err := nvmCommand(l, cmd); err != nil {
		return err
	}
	if err := nvmExecute(l); err != nil {
		return err
	}
	if err := waitEnabled(l); err != nil {
		return err
	}
	return waitBusy(l)
}

func read(l link, addr uint32, buf []byte) error {
	if err := waitEnabled(l); err != nil {
		return err
	}
	if err := waitBusy(l); err != nil {
		return err
	}
	if err := nvmCommand(l, cmdRead); err != nil {
		return err
	}
	if err := storeAddress(l, addr); err != nil {
		return err
	}
	if err := storeRepeat(l, uint32(len(buf)-1)); err != nil {
		return err
	}
	cmd := []byte{cmdLD(pdi.PtrIndirectPostInc, pdi.Size1)}
	if err := l.Send(cmd); err != nil {
		return err
	}
	return l.Recv(buf)
}

// withRetry runs op up to maxRetry times in all, re-opening the link
// after each failed attempt (including the last one), the same recovery
// strategy the bit-bang session uses against any
// transient PDI glitch.
func withRetry(l link, op func() error) error {
	var err error
	for i := 0; i < maxRetry; i++ {
		if err = op(); err == nil {
			return nil
		}
		if reopenErr := l.Open(); reopenErr != nil {
			return fmt.Errorf("nvm: reopening link after %w: %v", err, reopenErr)
		}
	}
	return fmt.Errorf("nvm: giving up after %d attempts: %w", maxRetry, err)
}

// Read reads len(buf) bytes from addr in the NVM controller's PDI
// address space.
func (c *Controller) Read(addr uint32, buf []byte) error {
	return withRetry(c.link, func() error { return read(c.link, addr, buf) })
}

// ReadDeviceID reads the chip's 3-byte JTAG/PDI device identifier. It
// returns ok=false if the read could not be completed after retries,
// matching the -1 sentinel the tool this was modeled on returns.
func (c *Controller) ReadDeviceID() (id uint32, ok bool) {
	buf := make([]byte, 3)
	if err := c.Read(deviceIDAddr, buf); err != nil {
		return 0, false
	}
	return uint32(buf[0])<<16 | uint32(buf[1])<<8 | uint32(buf[2]), true
}

func writePage(l link, eraseBufCmd, loadBufCmd, writeEraseCmd byte, addr uint32, buf []byte) error {
	if err := exec(l, eraseBufCmd); err != nil {
		return err
	}
	if err := nvmCommand(l, loadBufCmd); err != nil {
		return err
	}
	if err := storeAddress(l, addr); err != nil {
		return err
	}
	if err := storeRepeat(l, uint32(len(buf)-1)); err != nil {
		return err
	}
	if err := l.Send([]byte{cmdST(pdi.PtrIndirectPostInc, pdi.Size1)}); err != nil {
		return err
	}
	if err := l.Send(buf); err != nil {
		return err
	}
	if err := nvmCommand(l, writeEraseCmd); err != nil {
		return err
	}
	if err := storeAddress(l, addr); err != nil {
		return err
	}
	if err := l.Send([]byte{cmdST(pdi.PtrIndirectPostInc, pdi.Size1), 0}); err != nil { // trigger erase+program
		return err
	}
	return waitBusy(l)
}

func writeEEPROMPage(l link, addr uint32, buf []byte) error {
	return writePage(l, cmdEraseEEPROMPageBuf, cmdLoadEEPROMPageBuf, cmdEraseWriteEEPROMPage, addr, buf)
}

func writeFlashFamilyPage(l link, writeEraseCmd byte, addr uint32, buf []byte) error {
	return writePage(l, cmdErasePageBuf, cmdLoadPageBuf, writeEraseCmd, addr, buf)
}

// WritePage erases and programs one page of the region named by typ at
// addr. EEPROM pages use their own buffer-load/erase commands and so
// take their own return path rather than falling through flash's, per
// an explicit two-path split of what the reference implementation
// expressed as a switch with a fallthrough.
func (c *Controller) WritePage(typ Type, addr uint32, buf []byte) error {
	if typ == TypeEEPROM {
		return withRetry(c.link, func() error { return writeEEPROMPage(c.link, addr, buf) })
	}

	if typ == TypeUserSignature {
		if err := c.ErasePage(typ, addr); err != nil {
			return err
		}
		return withRetry(c.link, func() error { return writeFlashFamilyPage(c.link, cmdWriteUserSigRow, addr, buf) })
	}

	cmd, err := writeCommandFor(typ)
	if err != nil {
		return err
	}
	return withRetry(c.link, func() error { return writeFlashFamilyPage(c.link, cmd, addr, buf) })
}

func writeCommandFor(typ Type) (byte, error) {
	switch typ {
	case TypeFlash:
		return cmdEraseWriteFlashPage, nil
	case TypeApplication:
		return cmdEraseWriteAppSectionPage, nil
	case TypeBoot:
		return cmdEraseWriteBootSectionPage, nil
	default:
		return 0, fmt.Errorf("nvm: region does not support page write")
	}
}

func erasePage(l link, cmd byte, addr uint32) error {
	if err := waitEnabled(l); err != nil {
		return err
	}
	if err := waitBusy(l); err != nil {
		return err
	}
	if err := nvmCommand(l, cmd); err != nil {
		return err
	}
	if err := storeAddress(l, addr); err != nil {
		return err
	}
	if err := l.Send([]byte{cmdST(pdi.PtrIndirectPostInc, pdi.Size1), 0}); err != nil {
		return err
	}
	return waitBusy(l)
}

// ErasePage erases one page of the region named by typ at addr.
func (c *Controller) ErasePage(typ Type, addr uint32) error {
	var cmd byte
	switch typ {
	case TypeFlash:
		cmd = cmdEraseFlashPage
	case TypeApplication:
		cmd = cmdEraseAppSectionPage
	case TypeBoot:
		cmd = cmdEraseBootSectionPage
	case TypeEEPROM:
		cmd = cmdEraseEEPROMPage
	case TypeUserSignature:
		cmd = cmdEraseUserSigRow
	default:
		return fmt.Errorf("nvm: region does not support page erase")
	}

	return withRetry(c.link, func() error { return erasePage(c.link, cmd, addr) })
}

// ChipErase erases the entire flash array, EEPROM, lock bits and
// application section in one NVM command.
func (c *Controller) ChipErase() error {
	return withRetry(c.link, func() error { return exec(c.link, cmdChipErase) })
}

func writeFuse(l link, fuseBase uint32, num byte, value byte) error {
	if err := waitEnabled(l); err != nil {
		return err
	}
	if err := waitBusy(l); err != nil {
		return err
	}
	if err := nvmCommand(l, cmdWriteFuse); err != nil {
		return err
	}
	if err := storeByte(l, fuseBase+uint32(num), value); err != nil {
		return err
	}
	return waitBusy(l)
}

// WriteFuse writes value to fuse number num, where fuseBase is the
// region's base address.
func (c *Controller) WriteFuse(fuseBase uint32, num byte, value byte) error {
	return withRetry(c.link, func() error { return writeFuse(c.link, fuseBase, num, value) })
}

func flashCRC(l link) (uint32, error) {
	if err := waitEnabled(l); err != nil {
		return 0, err
	}
	if err := waitBusy(l); err != nil {
		return 0, err
	}
	if err := nvmCommand(l, cmdFlashCRC); err != nil {
		return 0, err
	}
	if err := nvmExecute(l); err != nil {
		return 0, err
	}
	if err := waitEnabled(l); err != nil {
		return 0, err
	}
	if err := waitBusy(l); err != nil {
		return 0, err
	}
	return loadU24(l, regBase+regDataOffs)
}

// FlashCRC reads back the flash array's CRC as computed by the NVM
// controller's hardware CRC engine. The equivalent CRCs scoped to the
// application or boot section alone are not used here: they were found
// to return inconsistent values on at least one tested part, so only
// the full flash CRC command is wired up, matching the reference tool
// this was modeled on.
func (c *Controller) FlashCRC() (uint32, error) {
	var crc uint32
	err := withRetry(c.link, func() error {
		v, err := flashCRC(c.link)
		if err != nil {
			return err
		}
		crc = v
		return nil
	})
	return crc, err
}
