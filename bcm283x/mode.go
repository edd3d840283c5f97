//go:build linux

// Copyright 2017 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bcm283x

import (
	"strconv"
	"strings"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/pin"
)

// Mode is the function selected for a pin.
//
// The values are the GPFSELn encodings, which is why the alternate
// functions are not in order.
type Mode uint8

const (
	Input  Mode = 0
	Output Mode = 1
	Alt0   Mode = 4
	Alt1   Mode = 5
	Alt2   Mode = 6
	Alt3   Mode = 7
	Alt4   Mode = 3
	Alt5   Mode = 2
)

func (m Mode) String() string {
	switch m {
	case Input:
		return "In"
	case Output:
		return "Out"
	case Alt0:
		return "Alt0"
	case Alt1:
		return "Alt1"
	case Alt2:
		return "Alt2"
	case Alt3:
		return "Alt3"
	case Alt4:
		return "Alt4"
	case Alt5:
		return "Alt5"
	}
	return "Mode(" + strconv.Itoa(int(m)) + ")"
}

// ParseMode converts "in", "out" or "alt0".."alt5" to a Mode.
func ParseMode(s string) (Mode, bool) {
	for m := Mode(0); m < 8; m++ {
		if strings.EqualFold(m.String(), s) {
			return m, true
		}
	}
	return 0, false
}

// fn returns the periph function of the mode.
func (m Mode) fn(l gpio.Level) pin.Func {
	switch m {
	case Input:
		if l {
			return gpio.IN_HIGH
		}
		return gpio.IN_LOW
	case Output:
		if l {
			return gpio.OUT_HIGH
		}
		return gpio.OUT_LOW
	}
	return pin.Func("ALT" + m.String()[3:])
}

var altModes = [...]Mode{Alt0, Alt1, Alt2, Alt3, Alt4, Alt5}
