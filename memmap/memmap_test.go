// Copyright 2026 The xpdi Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package memmap

import (
	"testing"

	"xpdi/device"
)

func testDevice(t *testing.T) device.Device {
	t.Helper()
	d, ok := device.Lookup("atxmega256a3")
	if !ok {
		t.Fatal("test device not found in catalog")
	}
	return d
}

func TestResolveBootFollowsApp(t *testing.T) {
	d := testDevice(t)
	boot, err := Resolve(d, Boot)
	if err != nil {
		t.Fatal(err)
	}
	if boot.Addr != flashBase+d.AppSize {
		t.Errorf("boot addr = %#x, want %#x", boot.Addr, flashBase+d.AppSize)
	}
	if boot.Size != d.BootSize {
		t.Errorf("boot size = %d, want %d", boot.Size, d.BootSize)
	}
}

func TestResolveFlashSpansAppAndBoot(t *testing.T) {
	d := testDevice(t)
	flash, err := Resolve(d, Flash)
	if err != nil {
		t.Fatal(err)
	}
	if flash.Size != d.AppSize+d.BootSize {
		t.Errorf("flash size = %d, want %d", flash.Size, d.AppSize+d.BootSize)
	}
}

func TestResolveEEPROMPageSize(t *testing.T) {
	d := testDevice(t)
	ee, err := Resolve(d, EEPROM)
	if err != nil {
		t.Fatal(err)
	}
	if ee.PageSize != d.EEPROMPage {
		t.Errorf("eeprom page size = %d, want %d", ee.PageSize, d.EEPROMPage)
	}
}

func TestResolveUnknownRegion(t *testing.T) {
	d := testDevice(t)
	if _, err := Resolve(d, Name("bogus")); err == nil {
		t.Error("expected error for unknown region name")
	}
}

func TestParseNameCoversEveryCLIToken(t *testing.T) {
	cases := map[string]Name{
		"flash":  Flash,
		"app":    App,
		"boot":   Boot,
		"eeprom": EEPROM,
		"user":   User,
		"prod":   Prod,
		"fuse":   Fuse,
		"lock":   Lock,
		"io":     IO,
	}
	for token, want := range cases {
		got, err := ParseName(token)
		if err != nil {
			t.Errorf("ParseName(%q): %v", token, err)
			continue
		}
		if got != want {
			t.Errorf("ParseName(%q) = %s, want %s", token, got, want)
		}
	}
}

func TestParseNameRejectsUnknown(t *testing.T) {
	if _, err := ParseName("bogus"); err == nil {
		t.Error("expected error for unknown CLI token")
	}
}

func TestPageableRegions(t *testing.T) {
	d := testDevice(t)
	for _, name := range []Name{Flash, App, Boot, EEPROM} {
		r, err := Resolve(d, name)
		if err != nil {
			t.Fatal(err)
		}
		if !r.Pageable() {
			t.Errorf("%s should be pageable", name)
		}
	}
	for _, name := range []Name{Prod, Fuse, Lock, IO} {
		r, err := Resolve(d, name)
		if err != nil {
			t.Fatal(err)
		}
		if r.Pageable() {
			t.Errorf("%s should not be pageable", name)
		}
	}
}
