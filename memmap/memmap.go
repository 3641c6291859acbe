// Copyright 2026 The xpdi Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package memmap names the address regions of an XMEGA's PDI-visible
// memory space and derives their size and base address from a device's
// geometry.
package memmap

import (
	"fmt"

	"xpdi/device"
)

// Name identifies one of the PDI-addressable memory regions.
type Name string

const (
	Flash  Name = "flash"
	App    Name = "application"
	Boot   Name = "boot"
	EEPROM Name = "eeprom"
	Prod   Name = "production signature"
	User   Name = "user signature"
	Fuse   Name = "fuse"
	Lock   Name = "lock bits"
	IO     Name = "io"
	SRAM   Name = "sram"
)

// Base addresses in the XMEGA PDI address space. These are constant
// across the device family; only the sizes vary per part.
const (
	flashBase  = 0x0800000
	eepromBase = 0x08c0000
	prodBase   = 0x08e0200
	userBase   = 0x08e0400
	fuseBase   = 0x08f0020
	lockBase   = 0x08f0027
	ioBase     = 0x1000000
	sramBase   = 0x1002000

	ioSize = 0x1000

	defaultEEPROMPage = 32
	defaultFlashPage  = 512
)

// Region describes one named memory region of dev: whether it can be
// paged (erased/programmed a page at a time) and its address, size and
// page size.
type Region struct {
	Name     Name
	Addr     uint32
	Size     uint32
	PageSize uint32 // 0 for regions that cannot be paged
}

// pageable reports whether region name supports page erase/program, as
// opposed to byte-at-a-time access (production signature, fuses, lock
// bits, io).
func pageable(name Name) bool {
	switch name {
	case Flash, App, Boot, EEPROM, User:
		return true
	default:
		return false
	}
}

// Resolve returns the Region named by name for dev, or an error if dev
// has no such region (e.g. a part without a boot section).
func Resolve(dev device.Device, name Name) (Region, error) {
	switch name {
	case Flash:
		return Region{Name: Flash, Addr: flashBase, Size: dev.AppSize + dev.BootSize, PageSize: pageSizeOr(dev.PageSize, defaultFlashPage)}, nil
	case App:
		if dev.AppSize == 0 {
			return Region{}, fmt.Errorf("memmap: %s has no application section", dev.Name)
		}
		return Region{Name: App, Addr: flashBase, Size: dev.AppSize, PageSize: pageSizeOr(dev.PageSize, defaultFlashPage)}, nil
	case Boot:
		if dev.BootSize == 0 {
			return Region{}, fmt.Errorf("memmap: %s has no boot section", dev.Name)
		}
		return Region{Name: Boot, Addr: flashBase + dev.AppSize, Size: dev.BootSize, PageSize: pageSizeOr(dev.PageSize, defaultFlashPage)}, nil
	case EEPROM:
		if dev.EEPROMSize == 0 {
			return Region{}, fmt.Errorf("memmap: %s has no eeprom", dev.Name)
		}
		return Region{Name: EEPROM, Addr: eepromBase, Size: dev.EEPROMSize, PageSize: pageSizeOr(dev.EEPROMPage, defaultEEPROMPage)}, nil
	case Prod:
		return Region{Name: Prod, Addr: prodBase, Size: dev.ProdSize}, nil
	case User:
		if dev.UserSize == 0 {
			return Region{}, fmt.Errorf("memmap: %s has no user signature row", dev.Name)
		}
		return Region{Name: User, Addr: userBase, Size: dev.UserSize, PageSize: pageSizeOr(dev.PageSize, defaultFlashPage)}, nil
	case Fuse:
		return Region{Name: Fuse, Addr: fuseBase, Size: dev.FuseSize}, nil
	case Lock:
		return Region{Name: Lock, Addr: lockBase, Size: dev.LockSize}, nil
	case IO:
		return Region{Name: IO, Addr: ioBase, Size: ioSize}, nil
	case SRAM:
		return Region{Name: SRAM, Addr: sramBase, Size: dev.SRAMSize}, nil
	default:
		return Region{}, fmt.Errorf("memmap: unknown region %q", name)
	}
}

// ParseName translates the short region token accepted on the command
// line (flash/app/boot/eeprom/user/prod/fuse/lock/io) into the internal
// Name value Resolve expects.
func ParseName(token string) (Name, error) {
	switch token {
	case "flash":
		return Flash, nil
	case "app":
		return App, nil
	case "boot":
		return Boot, nil
	case "eeprom":
		return EEPROM, nil
	case "user":
		return User, nil
	case "prod":
		return Prod, nil
	case "fuse":
		return Fuse, nil
	case "lock":
		return Lock, nil
	case "io":
		return IO, nil
	default:
		return "", fmt.Errorf("memmap: unknown region %q", token)
	}
}

// Pageable reports whether r supports page-oriented erase and program.
// Writing to a non-pageable region (production signature, fuses, lock
// bits, io)
// must go through a byte-at-a-time NVM command instead.
func (r Region) Pageable() bool {
	return pageable(r.Name)
}

func pageSizeOr(v, fallback uint32) uint32 {
	if v != 0 {
		return v
	}
	return fallback
}

// All returns every region name in catalog order, the order the -h
// help text lists them in.
func All() []Name {
	return []Name{Flash, App, Boot, EEPROM, Prod, User, Fuse, Lock, IO, SRAM}
}
