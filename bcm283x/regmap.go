//go:build linux

// Copyright 2017 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bcm283x

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"
	"periph.io/x/conn/v3/gpio"
)

// Register word offsets in the GPIO block.
//
// Page 90 of the BCM2835 datasheet and page 66 of the BCM2711 one.
const (
	regFunctionSelect = 0  // GPFSEL0..5; 3 bits per pin
	regOutputSet      = 7  // GPSET0..1; write 1 to set
	regOutputClear    = 10 // GPCLR0..1; write 1 to clear
	regLevel          = 13 // GPLEV0..1
	regPull           = 37 // GPPUD, BCM2835..7 only
	regPullClock      = 38 // GPPUDCLK0..1, BCM2835..7 only
	regPullControl    = 57 // GPIO_PUP_PDN_CNTRL_REG0..3, BCM2711 only; 2 bits per pin
)

// pullStrobeDelay is the setup and hold time of the GPPUD strobe. The
// datasheet asks for 150 cycles, this is well above on every board.
const pullStrobeDelay = time.Microsecond

// RegisterMap is the only path to the GPIO registers.
//
// Read-modify-write of packed fields is serialized by a single lock. Level
// changes use the set and clear registers and need no lock.
type RegisterMap struct {
	mem Memory
	soc SoC

	mu     sync.Mutex
	closed atomic.Bool
}

// NewRegisterMap returns a register map over mem for soc.
func NewRegisterMap(mem Memory, soc SoC) *RegisterMap {
	return &RegisterMap{mem: mem, soc: soc}
}

// fieldAddr returns the word and the shift of the field of pin in the packed
// registers starting at reg.
func fieldAddr(reg, pin, width int) (int, uint) {
	perWord := 32 / width
	return reg + pin/perWord, uint((pin % perWord) * width)
}

// ReadField returns the width bits field of pin in the registers starting at
// reg.
func (r *RegisterMap) ReadField(reg, pin, width int) uint32 {
	if r.closed.Load() {
		return 0
	}
	w, shift := fieldAddr(reg, pin, width)
	return (r.mem.Load(w) >> shift) & (1<<uint(width) - 1)
}

// WriteField replaces the width bits field of pin in the registers starting
// at reg with v.
func (r *RegisterMap) WriteField(reg, pin, width int, v uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writeFieldLocked(reg, pin, width, v)
}

func (r *RegisterMap) writeFieldLocked(reg, pin, width int, v uint32) error {
	if r.closed.Load() {
		return ErrIO
	}
	w, shift := fieldAddr(reg, pin, width)
	mask := uint32(1<<uint(width)-1) << shift
	old := r.mem.Load(w)
	r.mem.Store(w, (old&^mask)|((v<<shift)&mask))
	return nil
}

func (r *RegisterMap) mode(pin int) Mode {
	return Mode(r.ReadField(regFunctionSelect, pin, 3))
}

func (r *RegisterMap) setMode(pin int, m Mode) error {
	return r.WriteField(regFunctionSelect, pin, 3, uint32(m))
}

func (r *RegisterMap) level(pin int) gpio.Level {
	if r.closed.Load() {
		return gpio.Low
	}
	return r.mem.Load(regLevel+pin/32)&(1<<uint(pin%32)) != 0
}

func (r *RegisterMap) setLevel(pin int, l gpio.Level) error {
	if r.closed.Load() {
		return ErrIO
	}
	reg := regOutputClear
	if l {
		reg = regOutputSet
	}
	r.mem.Store(reg+pin/32, 1<<uint(pin%32))
	return nil
}

// setPull changes the pull resistor of pin. gpio.PullNoChange is a no-op.
func (r *RegisterMap) setPull(pin int, p gpio.Pull) error {
	if p == gpio.PullNoChange {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.soc.hasPullRegisters() {
		// 0 is no resistor, 1 pull up, 2 pull down.
		v := uint32(0)
		switch p {
		case gpio.PullUp:
			v = 1
		case gpio.PullDown:
			v = 2
		}
		return r.writeFieldLocked(regPullControl, pin, 2, v)
	}
	if r.closed.Load() {
		return ErrIO
	}
	// 0 is off, 1 pull down, 2 pull up.
	v := uint32(0)
	switch p {
	case gpio.PullDown:
		v = 1
	case gpio.PullUp:
		v = 2
	}
	clk := regPullClock + pin/32
	r.mem.Store(regPull, v)
	spin(pullStrobeDelay)
	r.mem.Store(clk, 1<<uint(pin%32))
	spin(pullStrobeDelay)
	r.mem.Store(regPull, 0)
	r.mem.Store(clk, 0)
	return nil
}

// pull returns the pull of pin when the SoC can read it back.
func (r *RegisterMap) pull(pin int) (gpio.Pull, bool) {
	if !r.soc.hasPullRegisters() {
		return gpio.PullNoChange, false
	}
	switch r.ReadField(regPullControl, pin, 2) {
	case 0:
		return gpio.Float, true
	case 1:
		return gpio.PullUp, true
	case 2:
		return gpio.PullDown, true
	}
	return gpio.PullNoChange, true
}

// Close unmaps the registers. Writes afterward fail with ErrIO.
func (r *RegisterMap) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed.Swap(true) {
		return nil
	}
	if err := r.mem.Close(); err != nil {
		return fmt.Errorf("%w: unmap: %v", ErrIO, err)
	}
	return nil
}

// spin busy waits for d.
func spin(d time.Duration) {
	for start := time.Now(); time.Since(start) < d; {
	}
}
