//go:build linux

// Copyright 2017 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bcm283x

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// sparseFile creates a file of size bytes in dir.
func sparseFile(t *testing.T, dir, name string, size int64) string {
	p := filepath.Join(dir, name)
	f, err := os.Create(p)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := f.Truncate(size); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestOpenMemory_gpiomem(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{GPIOMem: sparseFile(t, dir, "gpiomem", mapSize), root: dir}.withDefaults()
	m, dev, err := openMemory(boardPi3, &cfg)
	if err != nil {
		t.Fatal(err)
	}
	if dev != cfg.GPIOMem {
		t.Fatalf("mapped %s", dev)
	}
	m.Store(7, 0x40000)
	if got := m.Load(7); got != 0x40000 {
		t.Fatalf("got %#x", got)
	}
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(cfg.GPIOMem)
	if err != nil {
		t.Fatal(err)
	}
	if v := binary.LittleEndian.Uint32(b[28:]); v != 0x40000 {
		t.Fatalf("shared mapping not written back: %#x", v)
	}
}

func TestOpenMemory_memFallback(t *testing.T) {
	dir := t.TempDir()
	b := Board{SoC: BCM2835, PinCount: 54}
	off := int64(BCM2835.PeripheralBase() + gpioOffset)
	cfg := Config{
		GPIOMem: filepath.Join(dir, "missing"),
		Mem:     sparseFile(t, dir, "mem", off+mapSize),
		root:    dir,
	}.withDefaults()
	m, dev, err := openMemory(b, &cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()
	if dev != cfg.Mem {
		t.Fatalf("mapped %s", dev)
	}
	regs := NewRegisterMap(m, b.SoC)
	if err := regs.setMode(4, Output); err != nil {
		t.Fatal(err)
	}
	if got := regs.mode(4); got != Output {
		t.Fatalf("got %s", got)
	}
}

func TestOpenMemory_missing(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		GPIOMem: filepath.Join(dir, "gpiomem"),
		Mem:     filepath.Join(dir, "mem"),
		root:    dir,
	}.withDefaults()
	if _, _, err := openMemory(boardPi4, &cfg); !errors.Is(err, ErrIO) {
		t.Fatalf("got %v", err)
	}
	if _, _, err := openMemory(Board{SoC: SoCUnknown}, &cfg); !errors.Is(err, ErrUnsupportedHardware) {
		t.Fatalf("got %v", err)
	}
}
