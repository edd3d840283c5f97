//go:build linux

// Copyright 2017 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bcm283x

import (
	"errors"
	"testing"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/pin"
)

func TestAcquire(t *testing.T) {
	c, _, _ := newTestController(t, boardPi3)
	p := acquire(t, c, 17)
	if p.Name() != "GPIO17" || p.Number() != 17 || p.String() != "GPIO17" {
		t.Fatalf("got %s %d", p.Name(), p.Number())
	}
	if _, err := c.Acquire(17); !errors.Is(err, ErrPinInUse) {
		t.Fatalf("got %v", err)
	}
	if _, err := c.Acquire(54); !errors.Is(err, ErrInvalidPin) {
		t.Fatalf("got %v", err)
	}
	if _, err := c.Acquire(-1); !errors.Is(err, ErrInvalidPin) {
		t.Fatalf("got %v", err)
	}
	if err := p.Release(); err != nil {
		t.Fatal(err)
	}
	if err := p.Release(); err != nil {
		t.Fatalf("second release: %v", err)
	}
	if err := p.SetMode(Output); !errors.Is(err, ErrInvalidPin) {
		t.Fatalf("released handle: %v", err)
	}
	p2 := acquire(t, c, 17)
	if p2 == p {
		t.Fatal("expected a new handle")
	}
}

func TestAcquire_bcm2711(t *testing.T) {
	c, _, _ := newTestController(t, boardPi4)
	acquire(t, c, 57)
	if _, err := c.Acquire(58); !errors.Is(err, ErrInvalidPin) {
		t.Fatalf("got %v", err)
	}
}

func TestLevelReadback(t *testing.T) {
	c, mem, _ := newTestController(t, boardPi3)
	p := acquire(t, c, 17)
	if err := p.SetMode(Output); err != nil {
		t.Fatal(err)
	}
	if mem.Fsel(17) != 1 {
		t.Fatalf("fsel %d", mem.Fsel(17))
	}
	for _, l := range []gpio.Level{gpio.High, gpio.Low, gpio.High} {
		if err := p.SetLevel(l); err != nil {
			t.Fatal(err)
		}
		got, err := p.ReadLevel()
		if err != nil {
			t.Fatal(err)
		}
		if got != l {
			t.Fatalf("got %s, want %s", got, l)
		}
	}
}

func TestSetLevel_inputMismatch(t *testing.T) {
	c, mem, _ := newTestController(t, boardPi3)
	p := acquire(t, c, 4)
	if err := p.SetMode(Input); err != nil {
		t.Fatal(err)
	}
	before := mem.WriteCount()
	if err := p.SetLevel(gpio.High); !errors.Is(err, ErrModeMismatch) {
		t.Fatalf("got %v", err)
	}
	if n := mem.WriteCount() - before; n != 0 {
		t.Fatalf("%d register writes", n)
	}
	mem.SetLevel(4, gpio.High)
	if l, err := p.ReadLevel(); err != nil || l != gpio.High {
		t.Fatalf("input read: %s, %v", l, err)
	}
}

func TestSetPull(t *testing.T) {
	c, mem, _ := newTestController(t, boardPi3)
	p := acquire(t, c, 22)
	if p.Pull() != gpio.PullNoChange {
		t.Fatalf("unknown pull, got %s", p.Pull())
	}
	for _, pull := range []gpio.Pull{gpio.Float, gpio.PullUp, gpio.PullDown, gpio.Float} {
		if err := p.SetPull(pull); err != nil {
			t.Fatal(err)
		}
		if got := mem.Pull(22); got != pull {
			t.Fatalf("latched %s, want %s", got, pull)
		}
		if got := p.Pull(); got != pull {
			t.Fatalf("Pull() %s, want %s", got, pull)
		}
	}
	if err := p.SetPull(gpio.Pull(42)); err == nil {
		t.Fatal("expected error")
	}
	if p.DefaultPull() != gpio.PullDown {
		t.Fatal("GPIO22 defaults to pull down")
	}
}

func TestSetPull_bcm2711(t *testing.T) {
	c, _, _ := newTestController(t, boardPi4)
	p := acquire(t, c, 2)
	for _, pull := range []gpio.Pull{gpio.PullUp, gpio.PullDown, gpio.Float} {
		if err := p.SetPull(pull); err != nil {
			t.Fatal(err)
		}
		if got := p.Pull(); got != pull {
			t.Fatalf("got %s, want %s", got, pull)
		}
	}
	if p.DefaultPull() != gpio.PullUp {
		t.Fatal("GPIO2 defaults to pull up")
	}
}

func TestRestoreOnRelease(t *testing.T) {
	c, mem, _ := newTestController(t, boardPi3)
	mem.SetFsel(5, uint32(Alt0))
	p := acquire(t, c, 5)
	if p.Mode() != Alt0 {
		t.Fatalf("got %s", p.Mode())
	}
	if err := p.SetMode(Output); err != nil {
		t.Fatal(err)
	}
	if err := p.Release(); err != nil {
		t.Fatal(err)
	}
	if Mode(mem.Fsel(5)) != Alt0 {
		t.Fatalf("restored %s", Mode(mem.Fsel(5)))
	}

	p = acquire(t, c, 5)
	if p.Mode() != Alt0 {
		t.Fatalf("re-acquired as %s", p.Mode())
	}
	p.SetRestoreOnRelease(false)
	if err := p.SetMode(Output); err != nil {
		t.Fatal(err)
	}
	if err := p.Release(); err != nil {
		t.Fatal(err)
	}
	if Mode(mem.Fsel(5)) != Output {
		t.Fatalf("got %s", Mode(mem.Fsel(5)))
	}
}

func TestWithPin(t *testing.T) {
	c, mem, _ := newTestController(t, boardPi3)
	boom := errors.New("boom")
	err := c.WithPin(6, func(p *Pin) error {
		if err := p.Out(gpio.High); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("got %v", err)
	}
	if Mode(mem.Fsel(6)) != Input {
		t.Fatal("mode not restored")
	}
	if !mem.Level(6) {
		t.Fatal("level not driven")
	}
	// Released, so it can be acquired again.
	acquire(t, c, 6)
}

func TestControllerRefcount(t *testing.T) {
	c, mem, _ := newTestController(t, boardPi3)
	p, err := c.Acquire(3)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if mem.Closed() {
		t.Fatal("unmapped while a pin is held")
	}
	if err := p.Out(gpio.High); err != nil {
		t.Fatal(err)
	}
	if err := p.Release(); err != nil {
		t.Fatal(err)
	}
	if !mem.Closed() {
		t.Fatal("expected unmap once the last reference dropped")
	}
	if _, err := c.Acquire(3); !errors.Is(err, ErrIO) {
		t.Fatalf("got %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestPinIO(t *testing.T) {
	c, mem, _ := newTestController(t, boardPi3)
	p := acquire(t, c, 12)
	if err := p.Out(gpio.High); err != nil {
		t.Fatal(err)
	}
	if p.Func() != gpio.OUT_HIGH || p.Function() != string(gpio.OUT_HIGH) {
		t.Fatalf("got %s", p.Func())
	}
	if err := p.In(gpio.PullUp, gpio.NoEdge); err != nil {
		t.Fatal(err)
	}
	if mem.Pull(12) != gpio.PullUp || p.Mode() != Input {
		t.Fatal("In")
	}
	mem.SetLevel(12, gpio.Low)
	if p.Read() != gpio.Low || p.Func() != gpio.IN_LOW {
		t.Fatalf("got %s", p.Func())
	}
	if err := p.SetFunc(pin.Func("ALT5")); err != nil {
		t.Fatal(err)
	}
	if p.Mode() != Alt5 || p.Func() != pin.Func("ALT5") {
		t.Fatalf("got %s", p.Func())
	}
	if err := p.SetFunc(pin.Func("I2C1_SDA")); err == nil {
		t.Fatal("expected error")
	}
	if len(p.SupportedFuncs()) != 9 {
		t.Fatalf("got %v", p.SupportedFuncs())
	}
	if err := p.Halt(); err != nil {
		t.Fatal(err)
	}
}
