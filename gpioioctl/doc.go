// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.
//
// Package gpioioctl provides access to Linux GPIO edge events using the
// character device ioctl interface.
//
// https://docs.kernel.org/userspace-api/gpio/index.html
//
// It is used by the bcm283x driver as the interrupt source. Line levels and
// modes are driven through the memory mapped registers instead, so only
// edge event requests and line information are exposed here.
package gpioioctl
