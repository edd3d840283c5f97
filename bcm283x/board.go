// Copyright 2017 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bcm283x

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"periph.io/x/rpigpio/distro"
)

// SoC is the Broadcom processor of the board.
type SoC int

const (
	SoCUnknown SoC = iota
	BCM2835
	BCM2836
	BCM2837
	BCM2711
	// BCM2712 is the Raspberry Pi 5 processor. Its GPIOs live behind the
	// RP1 south bridge and are not supported.
	BCM2712
)

func (s SoC) String() string {
	switch s {
	case BCM2835:
		return "BCM2835"
	case BCM2836:
		return "BCM2836"
	case BCM2837:
		return "BCM2837"
	case BCM2711:
		return "BCM2711"
	case BCM2712:
		return "BCM2712"
	default:
		return "unknown"
	}
}

// PinCount returns the number of GPIOs of the controller.
func (s SoC) PinCount() int {
	if s == BCM2711 {
		return 58
	}
	return 54
}

// PeripheralBase returns the physical address of the peripheral block as seen
// by the ARM core, or 0 when unknown.
func (s SoC) PeripheralBase() uint64 {
	switch s {
	case BCM2835:
		return 0x20000000
	case BCM2836, BCM2837:
		return 0x3F000000
	case BCM2711:
		return 0xFE000000
	default:
		return 0
	}
}

// hasPullRegisters is true when the pull of each pin can be read and written
// directly instead of through the GPPUD clock strobe.
func (s SoC) hasPullRegisters() bool {
	return s == BCM2711
}

// Board describes the host.
type Board struct {
	// Model is the human readable name, e.g. "Raspberry Pi 4 Model B".
	Model    string
	Revision uint32
	SoC      SoC
	PinCount int
}

func (b Board) String() string {
	return fmt.Sprintf("%s (%s, rev %#06x, %d GPIOs)", b.Model, b.SoC, b.Revision, b.PinCount)
}

// Detect reads the board revision of the host and decodes it.
//
// It returns ErrUnsupportedHardware when the host is not a supported
// Raspberry Pi.
func Detect() (Board, error) {
	rev, err := distro.Revision()
	if err != nil {
		return Board{}, fmt.Errorf("%w: %v", ErrUnsupportedHardware, err)
	}
	b, err := DecodeRevision(rev)
	if err != nil {
		return b, err
	}
	if m := distro.DTModel(); m != "" {
		b.Model = m
	}
	return b, nil
}

// DecodeRevision decodes a Raspberry Pi revision code.
//
// New style codes have bit 23 set and encode the processor in bits 12-15
// and the board type in bits 4-11. Old style codes are only used by BCM2835
// boards.
//
// https://www.raspberrypi.com/documentation/computers/raspberry-pi.html#raspberry-pi-revision-codes
func DecodeRevision(rev uint32) (Board, error) {
	b := Board{Revision: rev}
	if rev&(1<<23) == 0 {
		// Bit 24 is set when the board was overvolted, which is ignored.
		b.Revision = rev & 0xFFFFFF
		b.SoC = BCM2835
		b.Model = oldStyleModel(b.Revision)
	} else {
		switch (rev >> 12) & 0xF {
		case 0:
			b.SoC = BCM2835
		case 1:
			b.SoC = BCM2836
		case 2:
			b.SoC = BCM2837
		case 3:
			b.SoC = BCM2711
		case 4:
			b.SoC = BCM2712
		}
		b.Model = boardTypes[(rev>>4)&0xFF]
	}
	if b.Model == "" {
		b.Model = "Raspberry Pi"
	}
	if b.SoC == SoCUnknown || b.SoC == BCM2712 {
		return b, fmt.Errorf("%w: %s revision %#x", ErrUnsupportedHardware, b.SoC, rev)
	}
	b.PinCount = b.SoC.PinCount()
	return b, nil
}

var boardTypes = map[uint32]string{
	0x00: "Raspberry Pi Model A",
	0x01: "Raspberry Pi Model B",
	0x02: "Raspberry Pi Model A+",
	0x03: "Raspberry Pi Model B+",
	0x04: "Raspberry Pi 2 Model B",
	0x06: "Raspberry Pi Compute Module 1",
	0x08: "Raspberry Pi 3 Model B",
	0x09: "Raspberry Pi Zero",
	0x0a: "Raspberry Pi Compute Module 3",
	0x0c: "Raspberry Pi Zero W",
	0x0d: "Raspberry Pi 3 Model B+",
	0x0e: "Raspberry Pi 3 Model A+",
	0x10: "Raspberry Pi Compute Module 3+",
	0x11: "Raspberry Pi 4 Model B",
	0x12: "Raspberry Pi Zero 2 W",
	0x13: "Raspberry Pi 400",
	0x14: "Raspberry Pi Compute Module 4",
	0x15: "Raspberry Pi Compute Module 4S",
	0x17: "Raspberry Pi 5",
}

func oldStyleModel(rev uint32) string {
	switch {
	case rev >= 0x2 && rev <= 0x6, rev >= 0xd && rev <= 0xf:
		return "Raspberry Pi Model B"
	case rev >= 0x7 && rev <= 0x9:
		return "Raspberry Pi Model A"
	case rev == 0x10 || rev == 0x13:
		return "Raspberry Pi Model B+"
	case rev == 0x11 || rev == 0x14:
		return "Raspberry Pi Compute Module 1"
	case rev == 0x12 || rev == 0x15:
		return "Raspberry Pi Model A+"
	}
	return ""
}

// peripheralBase returns the ARM physical base of the peripherals.
//
// /proc/device-tree/soc/ranges is preferred when present; the first entry
// maps the bus address 0x7E000000 to the ARM physical address. On BCM2711
// the parent address uses two cells.
func peripheralBase(root string, s SoC) uint64 {
	b, err := os.ReadFile(filepath.Join(root, "proc/device-tree/soc/ranges"))
	if err == nil && len(b) >= 8 {
		if v := binary.BigEndian.Uint32(b[4:]); v != 0 {
			return uint64(v)
		}
		if len(b) >= 12 {
			if v := binary.BigEndian.Uint32(b[8:]); v != 0 {
				return uint64(v)
			}
		}
	}
	return s.PeripheralBase()
}
