//go:build linux

// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"testing"

	"periph.io/x/conn/v3/gpio"
)

func TestParseLevel(t *testing.T) {
	for s, want := range map[string]gpio.Level{"1": gpio.High, "HIGH": gpio.High, "0": gpio.Low, "low": gpio.Low} {
		if l, err := parseLevel(s); err != nil || l != want {
			t.Errorf("%s: got %s, %v", s, l, err)
		}
	}
	if _, err := parseLevel("2"); err == nil {
		t.Fatal("expected error")
	}
}

func TestParsePull(t *testing.T) {
	for s, want := range map[string]gpio.Pull{"up": gpio.PullUp, "Down": gpio.PullDown, "off": gpio.Float, "float": gpio.Float} {
		if p, err := parsePull(s); err != nil || p != want {
			t.Errorf("%s: got %s, %v", s, p, err)
		}
	}
	if _, err := parsePull("sideways"); err == nil {
		t.Fatal("expected error")
	}
}

func TestParseEdge(t *testing.T) {
	for s, want := range map[string]gpio.Edge{"rising": gpio.RisingEdge, "FALLING": gpio.FallingEdge, "both": gpio.BothEdges} {
		if e, err := parseEdge(s); err != nil || e != want {
			t.Errorf("%s: got %s, %v", s, e, err)
		}
	}
	if _, err := parseEdge("none"); err == nil {
		t.Fatal("expected error")
	}
}
