//go:build linux

// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/rpigpio/bcm283x"
	"periph.io/x/rpigpio/gpioioctl"
	"periph.io/x/rpigpio/rpi"
)

// runner holds what the Before hook sets up for the commands.
type runner struct {
	log *zap.Logger
}

func (r *runner) open(c *cli.Context) (*bcm283x.Controller, error) {
	return bcm283x.OpenConfig(bcm283x.Config{
		GPIOMem:         c.String(flagGPIOMem),
		Mem:             c.String(flagMem),
		SpinThreshold:   c.Duration(flagSpinThreshold),
		EventBufferSize: c.Int(flagEventBuffer),
		Logger:          r.log,
	})
}

// withPin runs fn on the pin named by the first argument.
func (r *runner) withPin(c *cli.Context, fn func(p *bcm283x.Pin) error) (err error) {
	if c.NArg() == 0 {
		return errors.New("missing pin")
	}
	ctrl, err := r.open(c)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := ctrl.Close(); err == nil {
			err = cerr
		}
	}()
	n, err := rpi.ByName(rpi.Header(ctrl.Board().Revision), c.Args().First())
	if err != nil {
		return err
	}
	return ctrl.WithPin(n, fn)
}

func (r *runner) info(c *cli.Context) error {
	ctrl, err := r.open(c)
	if err != nil {
		return err
	}
	defer ctrl.Close()
	w := c.App.Writer
	b := ctrl.Board()
	fmt.Fprintln(w, b)
	h := rpi.Header(b.Revision)
	for n := 0; n < b.PinCount; n++ {
		err := ctrl.WithPin(n, func(p *bcm283x.Pin) error {
			l, err := p.ReadLevel()
			if err != nil {
				return err
			}
			pos := ""
			if i := rpi.Position(h, n); i != 0 {
				pos = fmt.Sprintf("P1_%d", i)
			}
			fmt.Fprintf(w, "%-7s %-6s %-5s %s\n", p, pos, p.Mode(), l)
			return nil
		})
		if err != nil {
			return err
		}
	}
	if !c.Bool(flagLines) {
		return nil
	}
	chip, err := gpioioctl.FindChip("pinctrl-bcm")
	if err != nil {
		return err
	}
	defer chip.Close()
	fmt.Fprintf(w, "%s (%s): %d lines\n", chip.Name(), chip.Label(), chip.LineCount())
	for i := 0; i < chip.LineCount(); i++ {
		li, err := chip.LineInfo(i)
		if err != nil {
			return err
		}
		dir := "output"
		if li.Input {
			dir = "input"
		}
		fmt.Fprintf(w, "%3d %-16s %-6s %-12s %-12s %s\n", li.Offset, li.Name, dir, li.Pull, li.Edges, li.Consumer)
	}
	return nil
}

func (r *runner) mode(c *cli.Context) error {
	return r.withPin(c, func(p *bcm283x.Pin) error {
		if c.NArg() < 2 {
			fmt.Fprintln(c.App.Writer, p.Mode())
			return nil
		}
		m, ok := bcm283x.ParseMode(c.Args().Get(1))
		if !ok {
			return fmt.Errorf("unknown mode %q", c.Args().Get(1))
		}
		p.SetRestoreOnRelease(!c.Bool(flagKeep))
		return p.SetMode(m)
	})
}

func (r *runner) read(c *cli.Context) error {
	return r.withPin(c, func(p *bcm283x.Pin) error {
		l, err := p.ReadLevel()
		if err != nil {
			return err
		}
		if l {
			fmt.Fprintln(c.App.Writer, 1)
		} else {
			fmt.Fprintln(c.App.Writer, 0)
		}
		return nil
	})
}

func (r *runner) write(c *cli.Context) error {
	if c.NArg() != 2 {
		return errors.New("expected a pin and a level")
	}
	l, err := parseLevel(c.Args().Get(1))
	if err != nil {
		return err
	}
	return r.withPin(c, func(p *bcm283x.Pin) error {
		p.SetRestoreOnRelease(!c.Bool(flagKeep))
		return p.Out(l)
	})
}

func (r *runner) pull(c *cli.Context) error {
	if c.NArg() != 2 {
		return errors.New("expected a pin and a pull")
	}
	pull, err := parsePull(c.Args().Get(1))
	if err != nil {
		return err
	}
	return r.withPin(c, func(p *bcm283x.Pin) error {
		p.SetRestoreOnRelease(false)
		return p.SetPull(pull)
	})
}

func (r *runner) watch(c *cli.Context) (err error) {
	if c.NArg() == 0 {
		return errors.New("missing pin")
	}
	edge, err := parseEdge(c.String(flagEdge))
	if err != nil {
		return err
	}
	pull := gpio.PullNoChange
	if s := c.String(flagPull); s != "" {
		if pull, err = parsePull(s); err != nil {
			return err
		}
	}
	ctrl, err := r.open(c)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := ctrl.Close(); err == nil {
			err = cerr
		}
	}()
	h := rpi.Header(ctrl.Board().Revision)
	var pins []*bcm283x.Pin
	defer func() {
		for _, p := range pins {
			_ = p.Release()
		}
	}()
	quit := make(chan struct{})
	defer close(quit)
	evs := make(chan bcm283x.Event, 64)
	errs := make(chan error, 1)
	async := func(ev bcm283x.Event, err error) {
		if err != nil {
			r.log.Warn("edge", zap.Int("pin", ev.Pin), zap.Error(err))
			if errors.Is(err, bcm283x.ErrInterruptSourceClosed) {
				select {
				case errs <- err:
				default:
				}
				return
			}
		}
		select {
		case evs <- ev:
		case <-quit:
		}
	}
	for _, name := range c.Args().Slice() {
		n, err := rpi.ByName(h, name)
		if err != nil {
			return err
		}
		p, err := ctrl.Acquire(n)
		if err != nil {
			return err
		}
		pins = append(pins, p)
		if err := p.SetPull(pull); err != nil {
			return err
		}
		var handler bcm283x.Handler
		if c.Bool(flagAsync) {
			handler = async
		}
		if err := p.Watch(edge, handler); err != nil {
			return err
		}
	}

	count := c.Int(flagCount)
	timeout := c.Duration(flagTimeout)
	if timeout <= 0 {
		timeout = -1
	}
	seen := 0
	show := func(ev bcm283x.Event) bool {
		fmt.Fprintf(c.App.Writer, "%12s GPIO%-2d %s #%d\n", ev.Timestamp, ev.Pin, ev.Edge, ev.Seqno)
		seen++
		return count > 0 && seen >= count
	}
	if c.Bool(flagAsync) {
		var expired <-chan time.Time
		if timeout > 0 {
			t := time.NewTimer(timeout)
			defer t.Stop()
			expired = t.C
		}
		for {
			select {
			case ev := <-evs:
				if show(ev) {
					return nil
				}
			case err := <-errs:
				return err
			case <-expired:
				return nil
			case <-c.Done():
				return nil
			}
		}
	}
	for c.Err() == nil {
		// Wake up regularly to notice the interruption.
		wait := timeout
		if wait < 0 || wait > 200*time.Millisecond {
			wait = 200 * time.Millisecond
		}
		start := time.Now()
		got, err := ctrl.Poll(wait, pins...)
		for _, ev := range got {
			if show(ev) {
				return nil
			}
		}
		if err != nil && !errors.Is(err, bcm283x.ErrEventOverrun) {
			return err
		}
		if err != nil {
			r.log.Warn("edge", zap.Error(err))
		}
		if len(got) != 0 {
			continue
		}
		if timeout > 0 {
			if timeout -= time.Since(start); timeout <= 0 {
				return nil
			}
		}
	}
	return nil
}

func (r *runner) pwm(c *cli.Context) error {
	var freq physic.Frequency
	if err := freq.Set(c.String(flagFreq)); err != nil {
		return err
	}
	pol := bcm283x.Normal
	if c.Bool(flagInverted) {
		pol = bcm283x.Inverted
	}
	return r.withPin(c, func(p *bcm283x.Pin) error {
		if err := p.StartPWM(freq, c.Float64(flagDuty), pol); err != nil {
			return err
		}
		r.log.Info("software pwm started", zap.Stringer("pin", p), zap.Stringer("freq", freq), zap.Float64("duty", c.Float64(flagDuty)))
		var expired <-chan time.Time
		if d := c.Duration(flagDuration); d > 0 {
			t := time.NewTimer(d)
			defer t.Stop()
			expired = t.C
		}
		select {
		case <-expired:
		case <-c.Done():
		}
		return p.StopPWM()
	})
}
