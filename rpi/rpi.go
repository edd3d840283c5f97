//go:build linux

// Copyright 2022 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package rpi

import (
	"errors"

	"periph.io/x/conn/v3/driver/driverreg"
	"periph.io/x/conn/v3/pin/pinreg"
	"periph.io/x/rpigpio/bcm283x"
)

// Present returns true if a supported Raspberry Pi board is detected.
func Present() bool {
	return bcm283x.Present()
}

// driver implements periph.Driver.
type driver struct {
}

// String is the text representation of the board.
func (d *driver) String() string {
	return "rpi"
}

// Prerequisites load drivers before the actual driver is loaded. For
// these boards, we do not need any prerequisites.
func (d *driver) Prerequisites() []string {
	return nil
}

// After returns the drivers to initialize before this one.
func (d *driver) After() []string {
	return []string{"bcm283x-gpio"}
}

// Init registers the P1 header of the board.
func (d *driver) Init() (bool, error) {
	b, err := bcm283x.Detect()
	if err != nil {
		if errors.Is(err, bcm283x.ErrUnsupportedHardware) {
			return false, err
		}
		return true, err
	}
	return true, pinreg.Register("P1", rows(Header(b.Revision)))
}

// init register the driver.
func init() {
	driverreg.MustRegister(&drv)
}

var drv driver
