// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package rpigpio drives the GPIO of the Raspberry Pi boards.
//
// The driver lives in package bcm283x and the header pin out in package rpi.
// Importing this package registers both with periph's driverreg.
package rpigpio

import "periph.io/x/conn/v3/driver/driverreg"

// Init calls driverreg.Init() and returns it as-is.
//
// The only difference is that by calling rpigpio.Init(), you are guaranteed
// to have the bcm283x and rpi drivers implicitly loaded.
func Init() (*driverreg.State, error) {
	return driverreg.Init()
}
