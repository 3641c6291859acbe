// Copyright 2026 The xpdi Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Command xpdi reads, writes and erases the flash, EEPROM and
// signature/fuse memories of an XMEGA microcontroller over a
// bit-banged PDI link driven from two host GPIO pins.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"

	"xpdi/device"
	"xpdi/memmap"
	"xpdi/session"
)

type fuseFlag []session.Fuse

func (f *fuseFlag) String() string {
	if f == nil {
		return ""
	}
	parts := make([]string, len(*f))
	for i, fu := range *f {
		parts[i] = fmt.Sprintf("%d=%d", fu.Num, fu.Value)
	}
	return strings.Join(parts, ",")
}

func (f *fuseFlag) Set(s string) error {
	num, value, ok := strings.Cut(s, "=")
	if !ok {
		return fmt.Errorf("invalid fuse format: %s", s)
	}
	n, err := strconv.ParseUint(num, 0, 8)
	if err != nil {
		return fmt.Errorf("invalid fuse setting: %s", s)
	}
	v, err := strconv.ParseUint(value, 0, 8)
	if err != nil {
		return fmt.Errorf("invalid fuse setting: %s", s)
	}
	*f = append(*f, session.Fuse{Num: uint8(n), Value: uint8(v)})
	return nil
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stdout, "ERROR: %s\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("xpdi", flag.ContinueOnError)
	fs.Usage = func() { usage(fs) }

	var (
		address  = fs.Uint64("a", 0, "Manually set base address")
		size     = fs.Uint64("s", 0, "Manually set memory size")
		memArg   = fs.String("m", "flash", "Set memory type, base address and size by name")
		deviceID = fs.String("i", "", "Manually select device")
		clkPin   = fs.Int("c", -1, "GPIO pin to use as PDI_CLK")
		dataPin  = fs.Int("d", -1, "GPIO pin to use as PDI_DATA")
		dump     = fs.Bool("D", false, "Dump memory")
		erase    = fs.Bool("e", false, "Erase the selected memory one page at a time")
		chip     = fs.Bool("E", false, "Erase entire chip, except for the user signature row")
		write    = fs.String("w", "", "Write Intel HEX file to memory")
		read     = fs.String("r", "", "Read Intel HEX file from memory")
		crcCheck = fs.Bool("x", false, "Make no changes if chip and HEX file CRCs match")
		quiet    = fs.Bool("q", false, "Print less information")
	)
	var fuses fuseFlag
	fs.Var(&fuses, "f", "Write a fuse or lock bit, FUSE=VALUE")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	if *clkPin < 0 || *dataPin < 0 || *clkPin == *dataPin {
		return fmt.Errorf("set clock and data pins to the correct GPIO lines using the -c and -d options")
	}

	memName, err := memmap.ParseName(*memArg)
	if err != nil {
		return err
	}

	opts := session.Options{
		ClkPin:     *clkPin,
		DataPin:    *dataPin,
		DeviceName: *deviceID,
		MemName:    memName,
		Address:    uint32(*address),
		Size:       uint32(*size),
		Dump:       *dump,
		Read:       *read,
		Write:      *write,
		ChipErase:  *chip,
		Erase:      *erase,
		CRCCheck:   *crcCheck,
		Verbose:    !*quiet,
		Fuses:      []session.Fuse(fuses),
		Out:        os.Stdout,
	}

	var stop atomic.Bool
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		<-sig
		stop.Store(true)
	}()

	return session.Run(opts, &stop)
}

func usage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: %s [OPTIONS]\n\nOPTIONS:\n", fs.Name())
	fs.PrintDefaults()

	fmt.Fprint(fs.Output(), "\nMEMORY:\n")
	for _, name := range memmap.All() {
		fmt.Fprintf(fs.Output(), "  %s\n", name)
	}

	fmt.Fprint(fs.Output(), "\nDEVICE:\n  ")
	for i, d := range device.All() {
		fmt.Fprintf(fs.Output(), "%-15s", d.Name)
		if (i+1)%5 == 0 {
			fmt.Fprint(fs.Output(), "\n  ")
		}
	}
	fmt.Fprintln(fs.Output())
}
