//go:build linux

// Copyright 2017 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bcm283x

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Memory is a window of 32 bits registers.
//
// Offsets are in words, not bytes. The hardware implementation is a memory
// mapping of the GPIO block; bcm283xtest provides a fake.
type Memory interface {
	Load(off int) uint32
	Store(off int, v uint32)
	Close() error
}

// mapSize is the size of the GPIO register block mapping.
const mapSize = 4096

// gpioOffset is the offset of the GPIO block from the peripheral base.
const gpioOffset = 0x200000

// mmapMemory is a shared mapping of /dev/gpiomem or /dev/mem.
type mmapMemory struct {
	raw   []byte
	words []uint32
}

// Load reads a register. The atomic load keeps the compiler from caching or
// eliding the access.
func (m *mmapMemory) Load(off int) uint32 {
	return atomic.LoadUint32(&m.words[off])
}

func (m *mmapMemory) Store(off int, v uint32) {
	atomic.StoreUint32(&m.words[off], v)
}

func (m *mmapMemory) Close() error {
	if m.raw == nil {
		return nil
	}
	err := unix.Munmap(m.raw)
	m.raw = nil
	m.words = nil
	return err
}

// openMemory maps the GPIO registers.
//
// /dev/gpiomem exposes only the GPIO block at offset 0 and does not require
// root. /dev/mem is used as a fallback at the physical address of the block.
// It returns the path of the device mapped.
func openMemory(b Board, cfg *Config) (Memory, string, error) {
	m, err := mmapFile(cfg.GPIOMem, 0)
	if err == nil {
		return m, cfg.GPIOMem, nil
	}
	denied := os.IsPermission(err)
	if !os.IsNotExist(err) && !denied {
		return nil, "", fmt.Errorf("%w: %s: %v", ErrIO, cfg.GPIOMem, err)
	}
	base := peripheralBase(cfg.root, b.SoC)
	if base == 0 {
		return nil, "", fmt.Errorf("%w: unknown peripheral base for %s", ErrUnsupportedHardware, b.SoC)
	}
	m, err = mmapFile(cfg.Mem, int64(base+gpioOffset))
	if err == nil {
		return m, cfg.Mem, nil
	}
	if os.IsPermission(err) || errors.Is(err, unix.EPERM) || denied {
		return nil, "", fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	return nil, "", fmt.Errorf("%w: %s: %v", ErrIO, cfg.Mem, err)
}

func mmapFile(path string, offset int64) (*mmapMemory, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, err
	}
	// The mapping stays valid once the descriptor is closed.
	defer f.Close()
	raw, err := unix.Mmap(int(f.Fd()), offset, mapSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, &os.PathError{Op: "mmap", Path: path, Err: err}
	}
	words := unsafe.Slice((*uint32)(unsafe.Pointer(&raw[0])), len(raw)/4)
	return &mmapMemory{raw: raw, words: words}, nil
}
