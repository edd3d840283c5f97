//go:build linux

// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"fmt"
	"strings"

	"periph.io/x/conn/v3/gpio"
)

func parseLevel(s string) (gpio.Level, error) {
	switch strings.ToLower(s) {
	case "1", "high", "h", "true":
		return gpio.High, nil
	case "0", "low", "l", "false":
		return gpio.Low, nil
	}
	return gpio.Low, fmt.Errorf("invalid level %q", s)
}

func parsePull(s string) (gpio.Pull, error) {
	switch strings.ToLower(s) {
	case "up":
		return gpio.PullUp, nil
	case "down":
		return gpio.PullDown, nil
	case "off", "none", "float":
		return gpio.Float, nil
	}
	return gpio.PullNoChange, fmt.Errorf("invalid pull %q", s)
}

func parseEdge(s string) (gpio.Edge, error) {
	switch strings.ToLower(s) {
	case "rising":
		return gpio.RisingEdge, nil
	case "falling":
		return gpio.FallingEdge, nil
	case "both":
		return gpio.BothEdges, nil
	}
	return gpio.NoEdge, fmt.Errorf("invalid edge %q", s)
}
