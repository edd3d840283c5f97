// Copyright 2022 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Raspberry Pi pin out.

package rpi

import (
	"fmt"
	"strconv"
	"strings"

	"periph.io/x/conn/v3/pin"
)

// HeaderPin is a header position wired to a GPIO of the SoC.
type HeaderPin struct {
	Position int // 1 based position on the header
	GPIO     int // BCM GPIO number
}

// String implements conn.Resource.
func (h *HeaderPin) String() string {
	return fmt.Sprintf("P1_%d(GPIO%d)", h.Position, h.GPIO)
}

// Halt implements conn.Resource. It is a no-op, pins are driven through
// bcm283x.
func (h *HeaderPin) Halt() error {
	return nil
}

// Name implements pin.Pin.
func (h *HeaderPin) Name() string {
	return "GPIO" + strconv.Itoa(h.GPIO)
}

// Number implements pin.Pin and returns the BCM GPIO number.
func (h *HeaderPin) Number() int {
	return h.GPIO
}

// Function implements pin.Pin.
//
// Deprecated: the function is only known by the controller, use
// bcm283x.Pin.Func.
func (h *HeaderPin) Function() string {
	return ""
}

func gp(position, gpio int) *HeaderPin {
	return &HeaderPin{Position: position, GPIO: gpio}
}

// P1 is the 40 pins header found on every board since the Model B+.
var P1 = [40]pin.Pin{
	pin.V3_3, pin.V5,
	gp(3, 2), pin.V5,
	gp(5, 3), pin.GROUND,
	gp(7, 4), gp(8, 14),
	pin.GROUND, gp(10, 15),
	gp(11, 17), gp(12, 18),
	gp(13, 27), pin.GROUND,
	gp(15, 22), gp(16, 23),
	pin.V3_3, gp(18, 24),
	gp(19, 10), pin.GROUND,
	gp(21, 9), gp(22, 25),
	gp(23, 11), gp(24, 8),
	pin.GROUND, gp(26, 7),
	gp(27, 0), gp(28, 1), // ID EEPROM
	gp(29, 5), pin.GROUND,
	gp(31, 6), gp(32, 12),
	gp(33, 13), pin.GROUND,
	gp(35, 19), gp(36, 16),
	gp(37, 26), gp(38, 20),
	pin.GROUND, gp(40, 21),
}

// p1Rev1 is the 26 pins header of the first Model B. Positions 3, 5 and 13
// were later rewired to GPIO2, GPIO3 and GPIO27.
var p1Rev1 = func() []pin.Pin {
	h := append([]pin.Pin(nil), P1[:26]...)
	h[2] = gp(3, 0)
	h[4] = gp(5, 1)
	h[12] = gp(13, 21)
	return h
}()

// Header returns the P1 header of the board with revision code rev.
//
// Boards with an old style revision code below 0x10 have a 26 pins header.
func Header(rev uint32) []pin.Pin {
	if rev&(1<<23) == 0 {
		switch r := rev & 0xFFFFFF; {
		case r <= 3:
			return p1Rev1
		case r < 0x10:
			return P1[:26]
		}
	}
	return P1[:]
}

// rows returns the header the way pinreg.Register wants it: two columns.
func rows(h []pin.Pin) [][]pin.Pin {
	out := make([][]pin.Pin, 0, len(h)/2)
	for i := 0; i+1 < len(h); i += 2 {
		out = append(out, []pin.Pin{h[i], h[i+1]})
	}
	return out
}

// ByName returns the BCM GPIO number of a pin of header h.
//
// It accepts a header position ("P1_12" or "PIN12"), a GPIO name ("GPIO18" or
// "BCM18") or a plain GPIO number ("18"). Power and ground positions are
// rejected.
func ByName(h []pin.Pin, name string) (int, error) {
	s := strings.ToUpper(strings.TrimSpace(name))
	for _, prefix := range []string{"P1_", "PIN"} {
		if rest, ok := strings.CutPrefix(s, prefix); ok {
			pos, err := strconv.Atoi(rest)
			if err != nil || pos < 1 || pos > len(h) {
				return -1, fmt.Errorf("rpi: invalid header position %q", name)
			}
			hp, ok := h[pos-1].(*HeaderPin)
			if !ok {
				return -1, fmt.Errorf("rpi: %s is %s, not a GPIO", name, h[pos-1])
			}
			return hp.GPIO, nil
		}
	}
	for _, prefix := range []string{"GPIO", "BCM"} {
		if rest, ok := strings.CutPrefix(s, prefix); ok {
			s = rest
			break
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return -1, fmt.Errorf("rpi: unknown pin %q", name)
	}
	return n, nil
}

// Position returns the header position of GPIO n, or 0 if it is not on
// header h.
func Position(h []pin.Pin, n int) int {
	for i, p := range h {
		if hp, ok := p.(*HeaderPin); ok && hp.GPIO == n {
			return i + 1
		}
	}
	return 0
}

var _ pin.Pin = &HeaderPin{}
