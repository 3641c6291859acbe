// Copyright 2026 The xpdi Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package device holds the static catalog of supported XMEGA parts:
// their PDI signature and memory geometry, needed to size and address
// every region a session might read, write or erase.
package device

import (
	_ "embed"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
)

//go:embed devices.csv
var catalogCSV string

// Device describes one supported part's PDI signature and memory
// geometry, in bytes.
type Device struct {
	Name       string
	Signature  uint32 // 3-byte JTAG/PDI device ID, e.g. 0x1e9842
	PageSize   uint32 // flash/app/boot/user page size
	SRAMSize   uint32
	EEPROMSize uint32
	EEPROMPage uint32
	AppSize    uint32
	BootSize   uint32
	FuseSize   uint32
	LockSize   uint32
	UserSize   uint32
	ProdSize   uint32
}

var catalog = mustParseCatalog(catalogCSV)

func mustParseCatalog(data string) []Device {
	devs, err := parseCatalog(data)
	if err != nil {
		panic("device: embedded catalog: " + err.Error())
	}
	return devs
}

func parseCatalog(data string) ([]Device, error) {
	r := csv.NewReader(strings.NewReader(data))
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("empty catalog")
	}

	devs := make([]Device, 0, len(records)-1)
	for _, row := range records[1:] { // skip header
		d, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("row %v: %w", row, err)
		}
		devs = append(devs, d)
	}
	return devs, nil
}

func parseRow(row []string) (Device, error) {
	if len(row) != 12 {
		return Device{}, fmt.Errorf("expected 12 columns, got %d", len(row))
	}
	sig, err := strconv.ParseUint(row[1], 16, 32)
	if err != nil {
		return Device{}, err
	}
	fields := make([]uint32, 10)
	for i, col := range row[2:] {
		v, err := strconv.ParseUint(col, 10, 32)
		if err != nil {
			return Device{}, err
		}
		fields[i] = uint32(v)
	}
	return Device{
		Name:       row[0],
		Signature:  uint32(sig),
		PageSize:   fields[0],
		SRAMSize:   fields[1],
		EEPROMSize: fields[2],
		EEPROMPage: fields[3],
		AppSize:    fields[4],
		BootSize:   fields[5],
		FuseSize:   fields[6],
		LockSize:   fields[7],
		UserSize:   fields[8],
		ProdSize:   fields[9],
	}, nil
}

// Lookup finds a device by name, case-insensitively.
func Lookup(name string) (Device, bool) {
	name = strings.ToLower(name)
	for _, d := range catalog {
		if d.Name == name {
			return d, true
		}
	}
	return Device{}, false
}

// LookupBySignature finds a device by its exact 3-byte PDI signature.
func LookupBySignature(sig uint32) (Device, bool) {
	for _, d := range catalog {
		if d.Signature == sig {
			return d, true
		}
	}
	return Device{}, false
}

// All returns the full device catalog in file order.
func All() []Device {
	return catalog
}
