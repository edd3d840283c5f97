// Copyright 2022 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package rpi contains the Raspberry Pi header pin out.
//
// The header is registered in pinreg as "P1" once the bcm283x-gpio driver
// found a supported board. ByName translates the names users know a pin by
// into the BCM GPIO number used by bcm283x.Controller.Acquire.
//
// # Physical
//
// https://www.raspberrypi.com/documentation/computers/raspberry-pi.html#gpio-and-the-40-pin-header
package rpi
