// Copyright 2017 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bcm283x

import "errors"

var (
	// ErrPermissionDenied is returned when neither /dev/gpiomem nor /dev/mem
	// can be opened by the process.
	ErrPermissionDenied = errors.New("bcm283x-gpio: permission denied, try as root or add the user to the gpio group")
	// ErrUnsupportedHardware is returned on a host that is not a known
	// Raspberry Pi SoC.
	ErrUnsupportedHardware = errors.New("bcm283x-gpio: unsupported hardware")
	ErrPinInUse            = errors.New("bcm283x-gpio: pin in use")
	ErrInvalidPin          = errors.New("bcm283x-gpio: invalid pin")
	// ErrModeMismatch is returned when the operation is not valid in the
	// current mode of the pin.
	ErrModeMismatch = errors.New("bcm283x-gpio: mode mismatch")
	// ErrInterruptSourceClosed is returned once the kernel event source of a
	// watched pin is gone. The pin must be watched again.
	ErrInterruptSourceClosed = errors.New("bcm283x-gpio: interrupt source closed")
	// ErrEventOverrun is returned when the kernel dropped edge events because
	// they were not consumed fast enough.
	ErrEventOverrun = errors.New("bcm283x-gpio: event overrun")
	ErrIO           = errors.New("bcm283x-gpio: i/o error")
)
