// Copyright 2022 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package rpi

import (
	"testing"

	"periph.io/x/conn/v3/pin"
)

func TestHeader(t *testing.T) {
	data := []struct {
		rev  uint32
		size int
		pin3 int
	}{
		{0x0002, 26, 0},
		{0x1000003, 26, 0},
		{0x000e, 26, 2},
		{0x0010, 40, 2},
		{0xa02082, 40, 2},
		{0xc03114, 40, 2},
	}
	for i, line := range data {
		h := Header(line.rev)
		if len(h) != line.size {
			t.Fatalf("#%d: got %d pins", i, len(h))
		}
		if n := h[2].Number(); n != line.pin3 {
			t.Fatalf("#%d: P1_3 is GPIO%d", i, n)
		}
	}
}

func TestP1(t *testing.T) {
	seen := map[int]bool{}
	for i, p := range P1 {
		hp, ok := p.(*HeaderPin)
		if !ok {
			continue
		}
		if hp.Position != i+1 {
			t.Errorf("P1_%d has position %d", i+1, hp.Position)
		}
		if seen[hp.GPIO] {
			t.Errorf("GPIO%d twice", hp.GPIO)
		}
		seen[hp.GPIO] = true
	}
	if len(seen) != 28 {
		t.Fatalf("got %d GPIOs", len(seen))
	}
	if P1[5] != pin.GROUND || P1[0] != pin.V3_3 || P1[1] != pin.V5 {
		t.Fatal("power pins")
	}
	if r := rows(P1[:]); len(r) != 20 || r[5][1] != P1[11] {
		t.Fatal("rows")
	}
}

func TestByName(t *testing.T) {
	data := []struct {
		name string
		want int
	}{
		{"P1_12", 18},
		{"p1_3", 2},
		{"PIN40", 21},
		{"GPIO18", 18},
		{"gpio4", 4},
		{"BCM27", 27},
		{"18", 18},
		{" 53 ", 53},
	}
	for _, line := range data {
		n, err := ByName(P1[:], line.name)
		if err != nil {
			t.Fatalf("%s: %v", line.name, err)
		}
		if n != line.want {
			t.Fatalf("%s: got %d, want %d", line.name, n, line.want)
		}
	}
	for _, name := range []string{"P1_1", "P1_6", "P1_41", "P1_0", "P1_x", "GPIO", "-1", "foo"} {
		if n, err := ByName(P1[:], name); err == nil {
			t.Fatalf("%s: got %d", name, n)
		}
	}
	if n, err := ByName(Header(2), "P1_13"); err != nil || n != 21 {
		t.Fatalf("got %d, %v", n, err)
	}
	if _, err := ByName(Header(2), "P1_27"); err == nil {
		t.Fatal("26 pins header")
	}
}

func TestPosition(t *testing.T) {
	if p := Position(P1[:], 18); p != 12 {
		t.Fatalf("got %d", p)
	}
	if p := Position(P1[:], 45); p != 0 {
		t.Fatalf("got %d", p)
	}
	hp := P1[11].(*HeaderPin)
	if hp.String() != "P1_12(GPIO18)" || hp.Name() != "GPIO18" || hp.Halt() != nil {
		t.Fatal(hp)
	}
}
