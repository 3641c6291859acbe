// Copyright 2026 The xpdi Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package session implements the end-to-end programming flow: open the
// PDI link, identify the target, read, dump, verify, erase, program
// and write fuses, in the order a single command invocation needs them
// done.
package session

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"xpdi/crc"
	"xpdi/device"
	"xpdi/ihex"
	"xpdi/memmap"
	"xpdi/nvm"
	"xpdi/pdi"
)

// Fuse is one -f NUM=VALUE assignment.
type Fuse struct {
	Num   uint8
	Value uint8
}

// Options captures everything a single run needs, gathered from the
// command line by cmd/xpdi.
type Options struct {
	ClkPin, DataPin int

	DeviceName string
	MemName    memmap.Name
	Address    uint32 // 0 means "use the region's natural address"
	Size       uint32 // 0 means "use the region's natural size"

	Dump       bool
	Read       string // path to write an Intel HEX dump to
	Write      string // path to an Intel HEX file to program
	ChipErase  bool
	Erase      bool
	CRCCheck   bool
	Verbose    bool
	Fuses      []Fuse

	Out io.Writer
}

// Run executes one programming session against the target wired to
// clk/data, per opts. stop lets a signal handler abort an in-progress
// transfer; Run installs no signal handlers of its own.
func Run(opts Options, stop *atomic.Bool) error {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	link, err := pdi.NewLink(opts.ClkPin, opts.DataPin, stop)
	if err != nil {
		return fmt.Errorf("init pdi: %w", err)
	}
	if err := link.Open(); err != nil {
		return fmt.Errorf("open pdi link: %w", err)
	}
	ctrl := nvm.New(link)

	dev, region, err := identify(ctrl, opts, out)
	if err != nil {
		return err
	}

	addr := opts.Address
	if addr == 0 {
		addr = region.Addr
	}
	size := opts.Size
	if size == 0 {
		size = region.Size
	}

	buf := make([]byte, size)
	read := false
	if opts.Dump || opts.Read != "" {
		if err := ctrl.Read(addr, buf); err != nil {
			return fmt.Errorf("read %d bytes at %#08x: %w", size, addr, err)
		}
		read = true
	}

	if opts.Dump {
		dumpData(out, addr, buf)
	}

	var chipCRC uint32
	haveChipCRC := false
	if opts.CRCCheck {
		chipCRC, haveChipCRC, err = chipCRCFor(ctrl, region, addr, buf, &read)
		if err != nil {
			return err
		}
		if opts.Verbose {
			fmt.Fprintf(out, "CRC 0x%06x for %s\n", chipCRC, region.Name)
		}
	}

	if opts.Read != "" {
		f, err := os.Create(opts.Read)
		if err != nil {
			return fmt.Errorf("open %s: %w", opts.Read, err)
		}
		werr := ihex.Write(f, addr, buf)
		cerr := f.Close()
		if werr != nil {
			return fmt.Errorf("write %s: %w", opts.Read, werr)
		}
		if cerr != nil {
			return fmt.Errorf("close %s: %w", opts.Read, cerr)
		}
		if opts.Verbose {
			fmt.Fprintf(out, "Wrote %d bytes to %s from %s\n", size, opts.Read, region.Name)
		}
	}

	pages, pageSize, err := computePages(region, opts, size)
	if err != nil {
		return err
	}

	var image []byte
	var pageFill []uint32
	var computedCRC uint32
	if opts.Write != "" {
		image, pageFill, computedCRC, err = loadWriteFile(opts.Write, addr, size, pageSize, pages)
		if err != nil {
			return err
		}

		if opts.CRCCheck && haveChipCRC && computedCRC == chipCRC {
			if opts.Verbose {
				fmt.Fprintln(out, "CRCs match, nothing to do")
			}
			return link.Close()
		}
		if opts.CRCCheck && opts.Verbose {
			fmt.Fprintln(out, "CRCs do not match, proceeding")
		}
	}

	if opts.ChipErase {
		if err := ctrl.ChipErase(); err != nil {
			return fmt.Errorf("chip erase: %w", err)
		}
		if opts.Verbose {
			fmt.Fprintln(out, "Chip erased")
		}
	}

	if opts.Erase {
		for i := uint32(0); i < pages; i++ {
			pageAddr := addr + i*pageSize
			if err := ctrl.ErasePage(nvmType(region.Name), pageAddr); err != nil {
				return fmt.Errorf("erase page at %#08x: %w", pageAddr, err)
			}
		}
		if opts.Verbose {
			fmt.Fprintf(out, "Erased %d %s pages\n", pages, region.Name)
		}
	}

	for _, fuse := range opts.Fuses {
		if uint32(dev.FuseSize)+uint32(dev.LockSize) <= uint32(fuse.Num) {
			return fmt.Errorf("invalid fuse %d for device %s", fuse.Num, dev.Name)
		}
		if err := ctrl.WriteFuse(fuseBase, fuse.Num, fuse.Value); err != nil {
			return fmt.Errorf("write fuse %d: %w", fuse.Num, err)
		}
		if opts.Verbose {
			fmt.Fprintf(out, "Wrote %#02x to fuse %d\n", fuse.Value, fuse.Num)
		}
	}

	if opts.Write != "" {
		empty := uint32(0)
		for i := uint32(0); i < pages; i++ {
			pageAddr := addr + i*pageSize
			offset := i * pageSize
			if pageFill[i] == 0 {
				if err := ctrl.ErasePage(nvmType(region.Name), pageAddr); err != nil {
					return fmt.Errorf("erase page at %#08x: %w", pageAddr, err)
				}
				empty++
				continue
			}
			if err := ctrl.WritePage(nvmType(region.Name), pageAddr, image[offset:offset+pageFill[i]]); err != nil {
				return fmt.Errorf("write page at %#08x: %w", pageAddr, err)
			}
		}
		if opts.Verbose {
			fmt.Fprintf(out, "Wrote %d pages to %s\n", pages-empty, region.Name)
		}

		if opts.CRCCheck {
			verifyCRC, _, err := chipCRCFor(ctrl, region, addr, buf, nil)
			if err != nil {
				return err
			}
			if computedCRC != verifyCRC {
				return fmt.Errorf("computed CRC %#06x does not match chip CRC %#06x for %s", computedCRC, verifyCRC, region.Name)
			}
			if opts.Verbose {
				fmt.Fprintln(out, "CRC correct")
			}
		}
	}

	return link.Close()
}

// fuseBase is the PDI address of fuse 0; individual fuses are
// addressed by offset from it.
const fuseBase = 0x08f0020

func nvmType(name memmap.Name) nvm.Type {
	switch name {
	case memmap.Flash:
		return nvm.TypeFlash
	case memmap.App:
		return nvm.TypeApplication
	case memmap.Boot:
		return nvm.TypeBoot
	case memmap.EEPROM:
		return nvm.TypeEEPROM
	case memmap.User:
		return nvm.TypeUserSignature
	default:
		return nvm.TypeNone
	}
}

// identify reads the chip's device ID, reconciles it against an
// explicitly named device if one was given, and resolves the memory
// region the rest of the run operates on.
func identify(ctrl *nvm.Controller, opts Options, out io.Writer) (device.Device, memmap.Region, error) {
	id, ok := ctrl.ReadDeviceID()

	dev, explicit := device.Device{}, false
	if opts.DeviceName != "" {
		d, found := device.Lookup(opts.DeviceName)
		if !found {
			return device.Device{}, memmap.Region{}, fmt.Errorf("unrecognized device %s", opts.DeviceName)
		}
		dev, explicit = d, true
	} else if ok {
		d, found := device.LookupBySignature(id)
		if !found {
			return device.Device{}, memmap.Region{}, fmt.Errorf("unsupported device ID %#06x", id)
		}
		dev = d
	} else {
		return device.Device{}, memmap.Region{}, fmt.Errorf("device not detected, please specify a device with -i")
	}

	if opts.Verbose {
		fmt.Fprintf(out, "%s: signature %#06x, flash %d, eeprom %d, sram %d\n",
			dev.Name, dev.Signature, dev.AppSize+dev.BootSize, dev.EEPROMSize, dev.SRAMSize)
	}

	if explicit {
		detected := id
		if !ok {
			detected = 0xffffff // unreadable device ID, reported the way the -1 sentinel prints
		}
		if dev.Signature != detected {
			fmt.Fprintf(out, "WARNING detected device ID %#06x does not match specified device %s with ID %#06x\n",
				detected, dev.Name, dev.Signature)
		}
	}

	name := opts.MemName
	if name == "" {
		name = memmap.Flash
	}
	region, err := memmap.Resolve(dev, name)
	if err != nil {
		return device.Device{}, memmap.Region{}, err
	}

	return dev, region, nil
}

// chipCRCFor returns the region's CRC, preferring the on-chip hardware
// CRC engine for the flash region and falling back to a software CRC
// over buf (reading it first if it hasn't been read yet) for every
// other region, or if the hardware engine reports failure.
func chipCRCFor(ctrl *nvm.Controller, region memmap.Region, addr uint32, buf []byte, read *bool) (uint32, bool, error) {
	if region.Name == memmap.Flash {
		if v, err := ctrl.FlashCRC(); err == nil {
			return v, true, nil
		}
	}

	if read == nil || !*read {
		if err := ctrl.Read(addr, buf); err != nil {
			return 0, false, fmt.Errorf("read %d bytes at %#08x: %w", len(buf), addr, err)
		}
		if read != nil {
			*read = true
		}
	}

	return crc.Block(buf), true, nil
}

func computePages(region memmap.Region, opts Options, size uint32) (pages, pageSize uint32, err error) {
	pageSize = region.PageSize
	if pageSize == 0 {
		if opts.Write != "" {
			return 0, 0, fmt.Errorf("cannot write to %s", region.Name)
		}
		if opts.Erase {
			return 0, 0, fmt.Errorf("cannot erase %s", region.Name)
		}
		return 0, 0, nil
	}

	pages = size / pageSize
	if size%pageSize != 0 {
		pages++
	}
	return pages, pageSize, nil
}

// loadWriteFile reads an Intel HEX file into a page-aligned image
// buffer sized size, trims trailing 0xff bytes from the tail of each
// page so they are skipped rather than rewritten, and returns the
// software CRC of the whole image.
func loadWriteFile(path string, addr, size, pageSize, pages uint32) (image []byte, pageFill []uint32, computedCRC uint32, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	base, hexImage, maxAddr, err := ihex.Read(f)
	if err != nil || maxAddr == 0 {
		return nil, nil, 0, fmt.Errorf("failed to read HEX file %s", path)
	}

	image = make([]byte, size)
	for i := range image {
		image[i] = 0xff
	}
	if base >= addr && base-addr < size {
		copy(image[base-addr:], hexImage)
	} else {
		copy(image, hexImage)
	}

	pageFill = make([]uint32, pages)
	for i := uint32(0); i < pages; i++ {
		offset := i * pageSize
		fill := pageSize
		for j := pageSize; j > 0; j-- {
			if offset+j-1 < size && image[offset+j-1] != 0xff {
				break
			}
			fill--
		}
		if size < offset+fill {
			fill = size % pageSize
		}
		pageFill[i] = fill
	}

	computedCRC = crc.Block(image)
	return image, pageFill, computedCRC, nil
}

// dumpData prints a 16-bytes-per-line hex+ASCII dump of data based at
// address, collapsing consecutive all-0xff lines into a single skip
// marker.
func dumpData(out io.Writer, address uint32, data []byte) {
	var skipped uint32

	flush := func() {
		if skipped > 0 {
			fmt.Fprintf(out, "* skipped %08x bytes of 'ff'\n", skipped)
			skipped = 0
		}
	}

	for i := 0; i < len(data); i += 16 {
		end := i + 16
		if end > len(data) {
			end = len(data)
		}
		row := data[i:end]

		empty := true
		for _, b := range row {
			if b != 0xff {
				empty = false
				break
			}
		}
		if empty {
			skipped += uint32(len(row))
			continue
		}
		flush()

		fmt.Fprintf(out, "%08x  ", address+uint32(i))
		for j, b := range row {
			if j == 8 {
				fmt.Fprint(out, " ")
			}
			fmt.Fprintf(out, " %02x", b)
		}
		for j := len(row); j < 16; j++ {
			if j == 8 {
				fmt.Fprint(out, " ")
			}
			fmt.Fprint(out, "   ")
		}

		fmt.Fprint(out, "  |")
		for _, b := range row {
			if b >= 0x20 && b < 0x7f {
				fmt.Fprintf(out, "%c", b)
			} else {
				fmt.Fprint(out, ".")
			}
		}
		fmt.Fprint(out, "|\n")
	}

	flush()
	fmt.Fprintln(out)
}
