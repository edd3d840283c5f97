//go:build linux

// Copyright 2017 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bcm283x

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/pin"
)

// Pin is the exclusive handle of one GPIO, returned by Controller.Acquire.
//
// A Pin is safe for concurrent use but is meant to have a single owner.
type Pin struct {
	c      *Controller
	number int
	name   string

	mu       sync.Mutex
	mode     Mode      // Cache of the last mode set
	orig     Mode      // Mode at acquisition
	pull     gpio.Pull // Last pull written
	restore  bool
	released bool
	watch    *watch
	pwm      *pwmEngine
}

// String implements conn.Resource.
func (p *Pin) String() string {
	return p.name
}

// Name implements pin.Pin.
func (p *Pin) Name() string {
	return p.name
}

// Number implements pin.Pin.
func (p *Pin) Number() int {
	return p.number
}

// Mode returns the current mode of the pin.
func (p *Pin) Mode() Mode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mode
}

// SetMode changes the mode of the pin.
//
// Edge detection and software PWM on the pin are stopped first.
func (p *Pin) SetMode(m Mode) error {
	if m > 7 {
		return p.wrap(fmt.Errorf("invalid mode %s", m))
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.live(); err != nil {
		return err
	}
	if err := p.teardownLocked(); err != nil {
		return p.wrap(err)
	}
	if err := p.setModeLocked(m); err != nil {
		return p.wrap(err)
	}
	return nil
}

func (p *Pin) setModeLocked(m Mode) error {
	if err := p.c.regs.setMode(p.number, m); err != nil {
		return err
	}
	p.mode = m
	return nil
}

// ReadLevel returns the level of the pad. It is valid in every mode.
func (p *Pin) ReadLevel() (gpio.Level, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.live(); err != nil {
		return gpio.Low, err
	}
	return p.c.regs.level(p.number), nil
}

// SetLevel drives the pin.
//
// The pin must be an Output not running software PWM, otherwise
// ErrModeMismatch is returned and nothing is written.
func (p *Pin) SetLevel(l gpio.Level) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.live(); err != nil {
		return err
	}
	if p.mode != Output || p.pwm != nil {
		return p.wrap(fmt.Errorf("%w: cannot drive a pin in mode %s", ErrModeMismatch, p.modeLocked()))
	}
	if err := p.c.regs.setLevel(p.number, l); err != nil {
		return p.wrap(err)
	}
	return nil
}

// SetPull changes the pull resistor. gpio.PullNoChange is a no-op.
func (p *Pin) SetPull(pull gpio.Pull) error {
	switch pull {
	case gpio.Float, gpio.PullDown, gpio.PullUp, gpio.PullNoChange:
	default:
		return p.wrap(fmt.Errorf("invalid pull %s", pull))
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.live(); err != nil {
		return err
	}
	if err := p.c.regs.setPull(p.number, pull); err != nil {
		return p.wrap(err)
	}
	if pull != gpio.PullNoChange {
		p.pull = pull
	}
	return nil
}

// Pull implements gpio.PinIn.
//
// On BCM2711 the value is read back from the hardware. Older SoCs can't read
// the pull, the last value set through this handle is returned, or
// gpio.PullNoChange if none.
func (p *Pin) Pull() gpio.Pull {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v, ok := p.c.regs.pull(p.number); ok && !p.released {
		return v
	}
	return p.pull
}

// DefaultPull implements gpio.PinIn.
//
// The pull at reset is up for GPIO0 to GPIO8 and down for GPIO9 to GPIO27.
func (p *Pin) DefaultPull() gpio.Pull {
	switch {
	case p.number <= 8:
		return gpio.PullUp
	case p.number <= 27:
		return gpio.PullDown
	default:
		return gpio.PullNoChange
	}
}

// SetRestoreOnRelease controls whether Release puts back the mode the pin
// had when it was acquired. It is enabled by default.
func (p *Pin) SetRestoreOnRelease(restore bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.restore = restore
}

// Release stops edge detection and software PWM, restores the original mode
// if requested and gives the pin back to the Controller.
//
// Release is idempotent. The handle is unusable afterward.
func (p *Pin) Release() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return nil
	}
	err := p.teardownLocked()
	if p.restore && p.mode != p.orig {
		if rerr := p.setModeLocked(p.orig); rerr != nil {
			p.c.log.Warn("failed to restore gpio mode", zap.String("pin", p.name), zap.Stringer("mode", p.orig), zap.Error(rerr))
			err = multierr.Append(err, rerr)
		}
	}
	p.released = true
	err = multierr.Append(err, p.c.releasePin(p))
	if err != nil {
		return p.wrap(err)
	}
	return nil
}

// teardownLocked stops the software PWM and the edge detection of the pin.
func (p *Pin) teardownLocked() error {
	return multierr.Append(p.stopPWMLocked(), p.unwatchLocked())
}

func (p *Pin) live() error {
	if p.released {
		return p.wrap(fmt.Errorf("%w: handle released", ErrInvalidPin))
	}
	return nil
}

// modeLocked returns the mode as seen by the user: software PWM and edge
// detection are reported as well.
func (p *Pin) modeLocked() string {
	switch {
	case p.pwm != nil:
		return "PWM"
	case p.watch != nil:
		return p.mode.String() + "/" + p.watch.edge.String()
	}
	return p.mode.String()
}

func (p *Pin) wrap(err error) error {
	return fmt.Errorf("bcm283x-gpio (%s): %w", p, err)
}

// periph interfaces.

// Halt implements conn.Resource.
//
// It stops edge detection and software PWM.
func (p *Pin) Halt() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.teardownLocked(); err != nil {
		return p.wrap(err)
	}
	return nil
}

// Function implements pin.Pin.
func (p *Pin) Function() string {
	return string(p.Func())
}

// Func implements pin.PinFunc.
func (p *Pin) Func() pin.Func {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return pin.FuncNone
	}
	if p.pwm != nil {
		return gpio.PWM
	}
	return p.mode.fn(p.c.regs.level(p.number))
}

// SupportedFuncs implements pin.PinFunc.
func (p *Pin) SupportedFuncs() []pin.Func {
	f := []pin.Func{gpio.IN, gpio.OUT, gpio.PWM}
	for _, m := range altModes {
		f = append(f, m.fn(gpio.Low))
	}
	return f
}

// SetFunc implements pin.PinFunc.
func (p *Pin) SetFunc(f pin.Func) error {
	switch f {
	case gpio.IN, gpio.IN_LOW, gpio.IN_HIGH:
		return p.In(gpio.PullNoChange, gpio.NoEdge)
	case gpio.OUT_HIGH:
		return p.Out(gpio.High)
	case gpio.OUT, gpio.OUT_LOW:
		return p.Out(gpio.Low)
	case gpio.PWM:
		return p.PWM(gpio.DutyHalf, physic.KiloHertz)
	}
	for _, m := range altModes {
		if f == m.fn(gpio.Low) {
			return p.SetMode(m)
		}
	}
	return p.wrap(errors.New("unsupported function"))
}

// In implements gpio.PinIn.
//
// It sets the pin as input, changes the pull and starts edge detection when
// edge is not gpio.NoEdge. Edges are then read with WaitForEdge.
func (p *Pin) In(pull gpio.Pull, edge gpio.Edge) error {
	if edge != gpio.NoEdge {
		if err := p.Watch(edge, nil); err != nil {
			return err
		}
	} else if err := p.SetMode(Input); err != nil {
		return err
	}
	return p.SetPull(pull)
}

// Read implements gpio.PinIn.
func (p *Pin) Read() gpio.Level {
	l, _ := p.ReadLevel()
	return l
}

// WaitForEdge implements gpio.PinIn.
//
// It returns true when an edge was detected before timeout. A negative
// timeout waits forever. In must have been called with an edge.
func (p *Pin) WaitForEdge(timeout time.Duration) bool {
	evs, err := p.c.Poll(timeout, p)
	if err != nil && len(evs) == 0 {
		p.c.log.Debug("gpio wait for edge", zap.String("pin", p.name), zap.Error(err))
	}
	return len(evs) != 0
}

// Out implements gpio.PinOut.
//
// It sets the pin as output, if needed, then drives it.
func (p *Pin) Out(l gpio.Level) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.live(); err != nil {
		return err
	}
	if p.mode != Output || p.pwm != nil || p.watch != nil {
		if err := p.teardownLocked(); err != nil {
			return p.wrap(err)
		}
		// Set the level first to not glitch the pad.
		if err := p.c.regs.setLevel(p.number, l); err != nil {
			return p.wrap(err)
		}
		if err := p.setModeLocked(Output); err != nil {
			return p.wrap(err)
		}
		return nil
	}
	if err := p.c.regs.setLevel(p.number, l); err != nil {
		return p.wrap(err)
	}
	return nil
}

// PWM implements gpio.PinOut with the software PWM engine.
//
// A running engine is updated in place.
func (p *Pin) PWM(duty gpio.Duty, f physic.Frequency) error {
	if duty < 0 || duty > gpio.DutyMax {
		return p.wrap(fmt.Errorf("invalid duty %d", duty))
	}
	d := float64(duty) / float64(gpio.DutyMax)
	p.mu.Lock()
	running := p.pwm != nil
	p.mu.Unlock()
	if running {
		return p.UpdatePWM(f, d)
	}
	return p.StartPWM(f, d, Normal)
}

var _ conn.Resource = &Pin{}
var _ gpio.PinIn = &Pin{}
var _ gpio.PinOut = &Pin{}
var _ gpio.PinIO = &Pin{}
var _ pin.PinFunc = &Pin{}
