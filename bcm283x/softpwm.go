//go:build linux

// Copyright 2017 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bcm283x

import (
	"fmt"
	"math"
	"runtime"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// Polarity is the level driven during the active part of a PWM period.
type Polarity int

const (
	// Normal is high then low.
	Normal Polarity = iota
	// Inverted is low then high.
	Inverted
)

func (p Polarity) String() string {
	if p == Inverted {
		return "Inverted"
	}
	return "Normal"
}

func (p Polarity) levels() (active, idle gpio.Level) {
	if p == Inverted {
		return gpio.Low, gpio.High
	}
	return gpio.High, gpio.Low
}

// pwmSchedule is immutable once published.
type pwmSchedule struct {
	freq   physic.Frequency
	duty   float64
	period time.Duration
	high   time.Duration
	// slack is how late a phase may start before the schedule is moved
	// forward instead of shortening it.
	slack time.Duration
}

func newSchedule(freq physic.Frequency, duty float64) (*pwmSchedule, error) {
	if freq <= 0 {
		return nil, fmt.Errorf("invalid frequency %s", freq)
	}
	if math.IsNaN(duty) || duty < 0 || duty > 1 {
		return nil, fmt.Errorf("invalid duty %g, must be between 0 and 1", duty)
	}
	period := freq.Period()
	if period <= 0 {
		return nil, fmt.Errorf("frequency %s is too high", freq)
	}
	high := time.Duration(float64(period)*duty + 0.5)
	if high > period {
		high = period
	}
	shortest := period
	if high > 0 && high < shortest {
		shortest = high
	}
	if low := period - high; low > 0 && low < shortest {
		shortest = low
	}
	return &pwmSchedule{freq: freq, duty: duty, period: period, high: high, slack: shortest / 20}, nil
}

// pwmEngine toggles one pin from a dedicated goroutine.
type pwmEngine struct {
	regs      *RegisterMap
	pin       int
	pol       Polarity
	threshold time.Duration
	log       *zap.Logger

	sched atomic.Pointer[pwmSchedule]
	err   atomic.Error
	stop  chan struct{}
	done  chan struct{}
}

func startEngine(regs *RegisterMap, pin int, s *pwmSchedule, pol Polarity, threshold time.Duration, log *zap.Logger) *pwmEngine {
	e := &pwmEngine{
		regs:      regs,
		pin:       pin,
		pol:       pol,
		threshold: threshold,
		log:       log,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	e.sched.Store(s)
	go e.run()
	return e
}

func (e *pwmEngine) run() {
	defer close(e.done)
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	active, idle := e.pol.levels()
	t := time.NewTimer(time.Hour)
	if !t.Stop() {
		<-t.C
	}
	next := time.Now()
	for {
		select {
		case <-e.stop:
			return
		default:
		}
		// The schedule is only loaded at a period boundary.
		s := e.sched.Load()
		if now := time.Now(); now.Sub(next) > s.slack {
			// Too late to keep the period, start it from now.
			next = now
		}
		start := next
		next = start.Add(s.period)
		if s.high > 0 {
			if !e.write(active) || !e.wait(t, start.Add(s.high)) {
				return
			}
			if now := time.Now(); now.Sub(start.Add(s.high)) > s.slack {
				// Keep the idle phase whole rather than emit a runt.
				next = now.Add(s.period - s.high)
			}
		}
		if s.high < s.period {
			if !e.write(idle) || !e.wait(t, next) {
				return
			}
		}
	}
}

func (e *pwmEngine) write(l gpio.Level) bool {
	if err := e.regs.setLevel(e.pin, l); err != nil {
		e.err.Store(fmt.Errorf("software pwm: %w", err))
		e.log.Error("software pwm stopped", zap.Int("pin", e.pin), zap.Error(err))
		return false
	}
	return true
}

// wait returns at deadline, or false as soon as the engine is asked to stop
// while sleeping. The last threshold before deadline is spent spinning.
func (e *pwmEngine) wait(t *time.Timer, deadline time.Time) bool {
	if d := time.Until(deadline) - e.threshold; d > 0 {
		t.Reset(d)
		select {
		case <-e.stop:
			if !t.Stop() {
				<-t.C
			}
			return false
		case <-t.C:
		}
	}
	for time.Now().Before(deadline) {
	}
	return true
}

// halt stops the goroutine and waits for it to exit. It returns the error
// that stopped the engine early, if any.
func (e *pwmEngine) halt() error {
	close(e.stop)
	<-e.done
	return e.err.Load()
}

// StartPWM drives a software PWM signal on the pin.
//
// The pin is set as output. duty is the active fraction of the period,
// between 0 and 1. 0 and 1 hold the idle and active level.
//
// The signal is generated by a goroutine locked to its own OS thread, which
// keeps a CPU busy for the spin part of each wait. Precision depends on the
// system load; a few kHz is realistic.
func (p *Pin) StartPWM(freq physic.Frequency, duty float64, pol Polarity) error {
	s, err := newSchedule(freq, duty)
	if err != nil {
		return p.wrap(err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.live(); err != nil {
		return err
	}
	if err := p.teardownLocked(); err != nil {
		return p.wrap(err)
	}
	_, idle := pol.levels()
	if err := p.c.regs.setLevel(p.number, idle); err != nil {
		return p.wrap(err)
	}
	if err := p.setModeLocked(Output); err != nil {
		return p.wrap(err)
	}
	p.pwm = startEngine(p.c.regs, p.number, s, pol, p.c.cfg.SpinThreshold, p.c.log)
	return nil
}

// UpdatePWM changes the frequency and duty of the running signal. The new
// values take effect at the next period boundary.
//
// If the engine stopped on a failure, the failure is returned.
func (p *Pin) UpdatePWM(freq physic.Frequency, duty float64) error {
	s, err := newSchedule(freq, duty)
	if err != nil {
		return p.wrap(err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.live(); err != nil {
		return err
	}
	if p.pwm == nil {
		return p.wrap(fmt.Errorf("%w: software pwm is not running", ErrModeMismatch))
	}
	if err := p.pwm.err.Load(); err != nil {
		return p.wrap(err)
	}
	p.pwm.sched.Store(s)
	return nil
}

// StopPWM stops the signal and drives the idle level. It blocks until the
// engine goroutine exited. The pin stays an output.
func (p *Pin) StopPWM() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.stopPWMLocked(); err != nil {
		return p.wrap(err)
	}
	return nil
}

func (p *Pin) stopPWMLocked() error {
	e := p.pwm
	if e == nil {
		return nil
	}
	p.pwm = nil
	err := e.halt()
	_, idle := e.pol.levels()
	if werr := p.c.regs.setLevel(p.number, idle); werr != nil && err == nil {
		err = werr
	}
	return err
}

// PWMState returns the schedule of the running software PWM.
func (p *Pin) PWMState() (freq physic.Frequency, duty float64, pol Polarity, running bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pwm == nil {
		return 0, 0, Normal, false
	}
	s := p.pwm.sched.Load()
	return s.freq, s.duty, p.pwm.pol, true
}
