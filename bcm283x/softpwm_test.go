//go:build linux

// Copyright 2017 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bcm283x

import (
	"errors"
	"math"
	"sort"
	"testing"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/rpigpio/bcm283x/bcm283xtest"
)

func TestNewSchedule(t *testing.T) {
	s, err := newSchedule(physic.KiloHertz, 0.25)
	if err != nil {
		t.Fatal(err)
	}
	if s.period != time.Millisecond || s.high != 250*time.Microsecond || s.slack != 12500*time.Nanosecond {
		t.Fatalf("got %+v", s)
	}
	s, err = newSchedule(50*physic.Hertz, 1)
	if err != nil || s.high != s.period || s.period != 20*time.Millisecond {
		t.Fatalf("got %+v, %v", s, err)
	}
	for _, d := range []float64{-0.1, 1.1, math.NaN()} {
		if _, err := newSchedule(physic.KiloHertz, d); err == nil {
			t.Errorf("duty %g: expected error", d)
		}
	}
	if _, err := newSchedule(0, 0.5); err == nil {
		t.Fatal("expected error")
	}
}

// dutyOf returns the measured active fraction between the first and the last
// toggle.
func dutyOf(toggles []bcm283xtest.Toggle, active gpio.Level) (float64, int) {
	var on, total time.Duration
	periods := 0
	for i := 1; i < len(toggles); i++ {
		d := toggles[i].At.Sub(toggles[i-1].At)
		total += d
		if toggles[i-1].Level == active {
			on += d
			periods++
		}
	}
	if total == 0 {
		return 0, 0
	}
	return float64(on) / float64(total), periods
}

// phases returns the durations of the active and idle phases from the first
// active level on. Repeated writes of the same level are merged and the last
// phase, which may be cut short by StopPWM, is left out.
func phases(toggles []bcm283xtest.Toggle, active gpio.Level) (on, off []time.Duration) {
	var changes []bcm283xtest.Toggle
	for _, tg := range toggles {
		if len(changes) == 0 && tg.Level != active {
			continue
		}
		if len(changes) != 0 && changes[len(changes)-1].Level == tg.Level {
			continue
		}
		changes = append(changes, tg)
	}
	for i := 1; i < len(changes)-1; i++ {
		d := changes[i].At.Sub(changes[i-1].At)
		if changes[i-1].Level == active {
			on = append(on, d)
		} else {
			off = append(off, d)
		}
	}
	return on, off
}

// checkPhases verifies that the 10th, 50th and 90th percentiles of d are
// within 10% of want.
func checkPhases(t *testing.T, name string, d []time.Duration, want time.Duration) {
	if len(d) < 100 {
		t.Fatalf("%s: only %d phases", name, len(d))
	}
	sort.Slice(d, func(i, j int) bool { return d[i] < d[j] })
	lo, hi := want*9/10, want*11/10
	for _, pc := range []int{10, 50, 90} {
		if v := d[len(d)*pc/100]; v < lo || v > hi {
			t.Errorf("%s: p%d is %s, want %s ±10%%; shortest %s, longest %s", name, pc, v, want, d[0], d[len(d)-1])
		}
	}
}

func TestSoftwarePWM(t *testing.T) {
	if testing.Short() {
		t.Skip("timing sensitive")
	}
	mem := &bcm283xtest.Memory{}
	// Spin through every wait, timer wake-ups are too coarse for 500µs.
	c := NewController(mem, boardPi3, Config{SpinThreshold: 2 * time.Millisecond})
	t.Cleanup(func() {
		_ = c.Close()
	})
	p := acquire(t, c, 18)
	if err := p.StartPWM(physic.KiloHertz, 0.5, Normal); err != nil {
		t.Fatal(err)
	}
	if p.Mode() != Output {
		t.Fatal("expected output")
	}
	time.Sleep(150 * time.Millisecond)
	if err := p.StopPWM(); err != nil {
		t.Fatal(err)
	}
	toggles := mem.Toggles(18)
	duty, periods := dutyOf(toggles, gpio.High)
	if periods < 100 {
		t.Fatalf("only %d periods", periods)
	}
	if duty < 0.45 || duty > 0.55 {
		t.Fatalf("measured duty %.3f", duty)
	}
	on, off := phases(toggles, gpio.High)
	checkPhases(t, "high", on, 500*time.Microsecond)
	checkPhases(t, "low", off, 500*time.Microsecond)
	if mem.Level(18) != gpio.Low {
		t.Fatal("idle level must be driven on stop")
	}
}

func TestSoftwarePWM_stopThenInput(t *testing.T) {
	c, mem, _ := newTestController(t, boardPi3)
	p := acquire(t, c, 18)
	if err := p.StartPWM(2*physic.KiloHertz, 0.3, Normal); err != nil {
		t.Fatal(err)
	}
	time.Sleep(10 * time.Millisecond)
	if err := p.StopPWM(); err != nil {
		t.Fatal(err)
	}
	if err := p.SetMode(Input); err != nil {
		t.Fatal(err)
	}
	n := mem.WriteCount()
	time.Sleep(10 * time.Millisecond)
	if got := mem.WriteCount(); got != n {
		t.Fatalf("%d writes after stop", got-n)
	}
	if _, _, _, running := p.PWMState(); running {
		t.Fatal("still running")
	}
	if err := p.StopPWM(); err != nil {
		t.Fatal(err)
	}
}

func TestSoftwarePWM_modeChangeStops(t *testing.T) {
	c, mem, _ := newTestController(t, boardPi3)
	p := acquire(t, c, 18)
	if err := p.StartPWM(physic.KiloHertz, 0.5, Normal); err != nil {
		t.Fatal(err)
	}
	if err := p.SetLevel(gpio.High); !errors.Is(err, ErrModeMismatch) {
		t.Fatalf("got %v", err)
	}
	if err := p.SetMode(Alt5); err != nil {
		t.Fatal(err)
	}
	n := mem.WriteCount()
	time.Sleep(5 * time.Millisecond)
	if got := mem.WriteCount(); got != n {
		t.Fatalf("%d writes after mode change", got-n)
	}
}

func TestSoftwarePWM_update(t *testing.T) {
	c, _, _ := newTestController(t, boardPi3)
	p := acquire(t, c, 18)
	if err := p.UpdatePWM(physic.KiloHertz, 0.5); !errors.Is(err, ErrModeMismatch) {
		t.Fatalf("got %v", err)
	}
	if err := p.StartPWM(physic.KiloHertz, 0.5, Normal); err != nil {
		t.Fatal(err)
	}
	if err := p.UpdatePWM(500*physic.Hertz, 0.2); err != nil {
		t.Fatal(err)
	}
	f, d, pol, running := p.PWMState()
	if f != 500*physic.Hertz || d != 0.2 || pol != Normal || !running {
		t.Fatalf("got %s %g %s %t", f, d, pol, running)
	}
	if err := p.UpdatePWM(500*physic.Hertz, 2); err == nil {
		t.Fatal("expected error")
	}
	if err := p.PWM(gpio.DutyMax/4, physic.KiloHertz); err != nil {
		t.Fatal(err)
	}
	if _, d, _, _ = p.PWMState(); d != 0.25 {
		t.Fatalf("got %g", d)
	}
	if p.Func() != gpio.PWM {
		t.Fatalf("got %s", p.Func())
	}
}

func TestSoftwarePWM_constant(t *testing.T) {
	data := []struct {
		duty float64
		pol  Polarity
		want gpio.Level
	}{
		{0, Normal, gpio.Low},
		{1, Normal, gpio.High},
		{0, Inverted, gpio.High},
		{1, Inverted, gpio.Low},
	}
	for i, line := range data {
		c, mem, _ := newTestController(t, boardPi3)
		p := acquire(t, c, 18)
		if err := p.StartPWM(physic.KiloHertz, line.duty, line.pol); err != nil {
			t.Fatal(err)
		}
		time.Sleep(5 * time.Millisecond)
		// The first write primes the idle level before the pin is an output.
		for _, tg := range mem.Toggles(18)[1:] {
			if tg.Level != line.want {
				t.Fatalf("#%d: wrote %s", i, tg.Level)
			}
		}
		if err := p.Halt(); err != nil {
			t.Fatal(err)
		}
		_, idle := line.pol.levels()
		if mem.Level(18) != idle {
			t.Fatalf("#%d: idle level %s", i, mem.Level(18))
		}
	}
}

func TestSoftwarePWM_restart(t *testing.T) {
	c, _, _ := newTestController(t, boardPi3)
	p := acquire(t, c, 18)
	for i := 0; i < 3; i++ {
		if err := p.StartPWM(physic.KiloHertz, 0.5, Polarity(i%2)); err != nil {
			t.Fatal(err)
		}
	}
	if _, _, pol, running := p.PWMState(); !running || pol != Normal {
		t.Fatal("expected the last engine to run")
	}
	if err := p.Release(); err != nil {
		t.Fatal(err)
	}
}

func TestSoftwarePWM_failure(t *testing.T) {
	mem := &bcm283xtest.Memory{}
	c := NewController(mem, boardPi3, Config{})
	t.Cleanup(func() {
		_ = c.Close()
	})
	p, err := c.Acquire(18)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.StartPWM(physic.KiloHertz, 0.5, Normal); err != nil {
		t.Fatal(err)
	}
	// Simulates the registers going away under the engine.
	if err := c.regs.Close(); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(time.Second)
	for p.UpdatePWM(physic.KiloHertz, 0.5) == nil {
		if time.Now().After(deadline) {
			t.Fatal("engine failure not reported")
		}
		time.Sleep(time.Millisecond)
	}
	if err := p.StopPWM(); !errors.Is(err, ErrIO) {
		t.Fatalf("got %v", err)
	}
}
