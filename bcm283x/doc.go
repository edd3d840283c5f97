// Copyright 2017 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package bcm283x exposes the GPIO controller of the Broadcom SoCs used on
// the Raspberry Pi boards up to the Pi 4 (BCM2835, BCM2836, BCM2837 and
// BCM2711).
//
// The controller registers are memory mapped, so mode, level and pull changes
// cost a few nanoseconds. Edge interrupts are delivered through the Linux
// GPIO character device, either synchronously with Controller.Poll or to a
// handler invoked by a single background dispatcher. Any output pin can
// generate a software PWM signal.
//
// Only Linux is supported.
//
// # Datasheet
//
// https://datasheets.raspberrypi.com/bcm2835/bcm2835-peripherals.pdf
//
// https://datasheets.raspberrypi.com/bcm2711/bcm2711-peripherals.pdf
package bcm283x
