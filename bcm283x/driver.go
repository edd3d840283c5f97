//go:build linux

// Copyright 2017 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bcm283x

import (
	"errors"
	"os"
	"sync"

	"periph.io/x/conn/v3/driver/driverreg"
)

// Present returns true if running on a supported Raspberry Pi.
func Present() bool {
	_, err := detectOnce()
	return err == nil
}

var (
	detectMu    sync.Mutex
	detected    *Board
	detectedErr error
)

func detectOnce() (Board, error) {
	detectMu.Lock()
	defer detectMu.Unlock()
	if detected == nil && detectedErr == nil {
		b, err := Detect()
		if err != nil {
			detectedErr = err
		} else {
			detected = &b
		}
	}
	if detectedErr != nil {
		return Board{}, detectedErr
	}
	return *detected, nil
}

// driverGPIO implements periph.Driver.
type driverGPIO struct {
}

func (d *driverGPIO) String() string {
	return "bcm283x-gpio"
}

func (d *driverGPIO) Prerequisites() []string {
	return nil
}

func (d *driverGPIO) After() []string {
	return nil
}

// Init checks that the host is a supported Raspberry Pi and that one of the
// memory devices is there. The registers are only mapped by Open.
func (d *driverGPIO) Init() (bool, error) {
	if _, err := detectOnce(); err != nil {
		return false, err
	}
	if _, err := os.Stat("/dev/gpiomem"); err == nil {
		return true, nil
	}
	if _, err := os.Stat("/dev/mem"); err == nil {
		return true, nil
	}
	return true, errors.New("bcm283x-gpio: neither /dev/gpiomem nor /dev/mem is present")
}

func init() {
	driverreg.MustRegister(&drvGPIO)
}

var drvGPIO driverGPIO
