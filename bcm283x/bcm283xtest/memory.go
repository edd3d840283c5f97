// Copyright 2017 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package bcm283xtest is meant to be used to test code using the bcm283x
// package without hardware.
//
// Memory emulates the GPIO register block: the set and clear registers
// update the level register and the legacy pull clock strobe latches the
// pull of the pins. Every store is recorded.
package bcm283xtest

import (
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// Register word offsets, as found in the datasheet.
const (
	GPFSEL0   = 0
	GPSET0    = 7
	GPCLR0    = 10
	GPLEV0    = 13
	GPPUD     = 37
	GPPUDCLK0 = 38
	// GPPUPPDN0 is GPIO_PUP_PDN_CNTRL_REG0, BCM2711 only.
	GPPUPPDN0 = 57
)

// Write is one store into the fake register block.
type Write struct {
	Offset int
	Value  uint32
	At     time.Time
}

// Memory is a fake register block. The zero value is ready to use.
type Memory struct {
	mu     sync.Mutex
	words  [1024]uint32
	pulls  map[int]gpio.Pull
	writes []Write
	closed bool
}

// Load implements bcm283x.Memory.
func (m *Memory) Load(off int) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.words[off]
}

// Store implements bcm283x.Memory.
func (m *Memory) Store(off int, v uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = append(m.writes, Write{Offset: off, Value: v, At: time.Now()})
	switch off {
	case GPSET0, GPSET0 + 1:
		m.words[GPLEV0+off-GPSET0] |= v
	case GPCLR0, GPCLR0 + 1:
		m.words[GPLEV0+off-GPCLR0] &^= v
	case GPPUDCLK0, GPPUDCLK0 + 1:
		m.words[off] = v
		if v == 0 {
			return
		}
		if m.pulls == nil {
			m.pulls = map[int]gpio.Pull{}
		}
		p := gpio.Float
		switch m.words[GPPUD] & 3 {
		case 1:
			p = gpio.PullDown
		case 2:
			p = gpio.PullUp
		}
		for i := 0; i < 32; i++ {
			if v&(1<<uint(i)) != 0 {
				m.pulls[32*(off-GPPUDCLK0)+i] = p
			}
		}
	default:
		m.words[off] = v
	}
}

// Close implements bcm283x.Memory.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed returns true once Close was called.
func (m *Memory) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Writes returns a copy of the stores done so far.
func (m *Memory) Writes() []Write {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Write(nil), m.writes...)
}

// WriteCount returns the number of stores done so far.
func (m *Memory) WriteCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.writes)
}

// ResetWrites forgets the stores recorded so far.
func (m *Memory) ResetWrites() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = nil
}

// SetLevel sets the level of a pin as if driven from outside.
func (m *Memory) SetLevel(pin int, l gpio.Level) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bit := uint32(1) << uint(pin%32)
	if l {
		m.words[GPLEV0+pin/32] |= bit
	} else {
		m.words[GPLEV0+pin/32] &^= bit
	}
}

// Level returns the level of a pin.
func (m *Memory) Level(pin int) gpio.Level {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.words[GPLEV0+pin/32]&(1<<uint(pin%32)) != 0
}

// Fsel returns the function select field of a pin.
func (m *Memory) Fsel(pin int) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (m.words[GPFSEL0+pin/10] >> uint(3*(pin%10))) & 7
}

// SetFsel sets the function select field of a pin, e.g. to emulate the
// state left by a previous process.
func (m *Memory) SetFsel(pin int, v uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w := GPFSEL0 + pin/10
	shift := uint(3 * (pin % 10))
	m.words[w] = m.words[w]&^(7<<shift) | (v&7)<<shift
}

// Pull returns the pull latched by the GPPUD clock strobe for a pin, or
// gpio.PullNoChange if it was never strobed.
func (m *Memory) Pull(pin int) gpio.Pull {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.pulls[pin]; ok {
		return p
	}
	return gpio.PullNoChange
}

// Toggles returns the level transitions written to a pin through the set
// and clear registers, in order.
func (m *Memory) Toggles(pin int) []Toggle {
	m.mu.Lock()
	defer m.mu.Unlock()
	bit := uint32(1) << uint(pin%32)
	var out []Toggle
	for _, w := range m.writes {
		switch w.Offset {
		case GPSET0 + pin/32:
			if w.Value&bit != 0 {
				out = append(out, Toggle{Level: gpio.High, At: w.At})
			}
		case GPCLR0 + pin/32:
			if w.Value&bit != 0 {
				out = append(out, Toggle{Level: gpio.Low, At: w.At})
			}
		}
	}
	return out
}

// Toggle is a level written to a pin.
type Toggle struct {
	Level gpio.Level
	At    time.Time
}
