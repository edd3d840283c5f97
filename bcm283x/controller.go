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
	"golang.org/x/sys/unix"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/rpigpio/gpioioctl"
)

// Config is the configuration of a Controller. The zero value is valid.
type Config struct {
	// GPIOMem is the GPIO only memory device. Defaults to /dev/gpiomem.
	GPIOMem string
	// Mem is the physical memory device used when GPIOMem does not exist.
	// Defaults to /dev/mem.
	Mem string
	// EventBufferSize is the number of edge events the kernel queues per
	// watched pin. 0 lets the kernel decide.
	EventBufferSize int
	// SpinThreshold is the part of a software PWM wait spent busy looping
	// instead of sleeping. Defaults to 250µs.
	SpinThreshold time.Duration
	// Logger defaults to a no-op logger.
	Logger *zap.Logger
	// OpenEvents returns the edge event source for a pin. Defaults to a line
	// request on the pinctrl-bcm GPIO character device.
	OpenEvents func(pin int, edge gpio.Edge) (EventSource, error)

	root string
}

// DefaultSpinThreshold is the default Config.SpinThreshold.
const DefaultSpinThreshold = 250 * time.Microsecond

func (c Config) withDefaults() Config {
	if c.GPIOMem == "" {
		c.GPIOMem = "/dev/gpiomem"
	}
	if c.Mem == "" {
		c.Mem = "/dev/mem"
	}
	if c.SpinThreshold <= 0 {
		c.SpinThreshold = DefaultSpinThreshold
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.EventBufferSize < 0 {
		c.EventBufferSize = 0
	}
	if c.root == "" {
		c.root = "/"
	}
	return c
}

// Controller is the GPIO controller of the host.
//
// It is reference counted: Open and every acquired Pin hold one reference.
// The registers are unmapped once Close was called and every Pin released.
type Controller struct {
	regs  *RegisterMap
	board Board
	cfg   Config
	log   *zap.Logger

	mu   sync.Mutex
	refs int
	pins map[int]*Pin
	chip *gpioioctl.GPIOChip
	disp *dispatcher

	pollMu  sync.Mutex
	pollers map[int]struct{} // eventfds of the Poll calls in progress
}

var (
	sharedMu sync.Mutex
	shared   *Controller
)

// Open returns the process wide Controller, mapping the registers on first
// use.
//
// Every successful call must be matched by a call to Close.
func Open() (*Controller, error) {
	return OpenConfig(Config{})
}

// OpenConfig is Open with a configuration. cfg is ignored when the
// Controller is already open.
func OpenConfig(cfg Config) (*Controller, error) {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if shared != nil {
		shared.mu.Lock()
		shared.refs++
		shared.mu.Unlock()
		return shared, nil
	}
	b, err := Detect()
	if err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	mem, dev, err := openMemory(b, &cfg)
	if err != nil {
		return nil, err
	}
	c := newController(mem, b, cfg)
	c.log.Debug("mapped gpio registers", zap.String("device", dev), zap.Stringer("board", b))
	shared = c
	return c, nil
}

// NewController returns a private Controller over mem.
//
// It is meant for tests and fixtures, use Open on real hardware.
func NewController(mem Memory, b Board, cfg Config) *Controller {
	if b.PinCount == 0 {
		b.PinCount = b.SoC.PinCount()
	}
	return newController(mem, b, cfg.withDefaults())
}

func newController(mem Memory, b Board, cfg Config) *Controller {
	return &Controller{
		regs:    NewRegisterMap(mem, b.SoC),
		board:   b,
		cfg:     cfg,
		log:     cfg.Logger,
		refs:    1,
		pins:    map[int]*Pin{},
		pollers: map[int]struct{}{},
	}
}

// Board returns the board the controller drives.
func (c *Controller) Board() Board {
	return c.board
}

// Acquire returns the exclusive handle of GPIO n.
//
// The current mode of the pin is recorded and restored on release.
func (c *Controller) Acquire(n int) (*Pin, error) {
	if n < 0 || n >= c.board.PinCount {
		return nil, fmt.Errorf("%w: GPIO%d", ErrInvalidPin, n)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.refs == 0 {
		return nil, fmt.Errorf("%w: controller closed", ErrIO)
	}
	if _, ok := c.pins[n]; ok {
		return nil, fmt.Errorf("%w: GPIO%d", ErrPinInUse, n)
	}
	m := c.regs.mode(n)
	p := &Pin{
		c:       c,
		number:  n,
		name:    fmt.Sprintf("GPIO%d", n),
		mode:    m,
		orig:    m,
		pull:    gpio.PullNoChange,
		restore: true,
	}
	c.pins[n] = p
	c.refs++
	return p, nil
}

// WithPin acquires GPIO n, runs fn and releases the pin, whatever fn
// returns.
func (c *Controller) WithPin(n int, fn func(p *Pin) error) (err error) {
	p, err := c.Acquire(n)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, p.Release())
	}()
	return fn(p)
}

// StopDispatch stops the background dispatcher and closes every watch that
// has a handler. Pins watched this way are back to plain inputs.
//
// Called from a handler, it returns without waiting for the dispatcher to
// exit; no handler is called after the running one returns.
func (c *Controller) StopDispatch() error {
	c.mu.Lock()
	d := c.disp
	c.disp = nil
	c.mu.Unlock()
	if d == nil {
		return nil
	}
	return d.stop()
}

// Close drops the reference taken by Open or NewController.
func (c *Controller) Close() error {
	return c.unref()
}

// dispatcher returns the dispatcher, starting it on first use.
func (c *Controller) dispatcher() (*dispatcher, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disp != nil {
		return c.disp, nil
	}
	d, err := newDispatcher(c.log)
	if err != nil {
		return nil, err
	}
	c.disp = d
	return d, nil
}

// openEvents returns a new edge event source for pin.
func (c *Controller) openEvents(pin int, edge gpio.Edge) (EventSource, error) {
	if c.cfg.OpenEvents != nil {
		return c.cfg.OpenEvents(pin, edge)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.chip == nil {
		chip, err := gpioioctl.FindChip("pinctrl-bcm")
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrIO, err)
		}
		c.log.Debug("opened gpio chip", zap.String("path", chip.Path()), zap.String("label", chip.Label()))
		c.chip = chip
	}
	src, err := c.chip.RequestEvents(pin, edge, c.cfg.EventBufferSize)
	switch {
	case err == nil:
		return src, nil
	case errors.Is(err, unix.EBUSY):
		return nil, fmt.Errorf("%w: line held by another consumer: %v", ErrPinInUse, err)
	case errors.Is(err, unix.EACCES), errors.Is(err, unix.EPERM):
		return nil, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	default:
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
}

// addPoller returns an eventfd that is signaled whenever a watch without
// handler is closed.
func (c *Controller) addPoller() (int, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return -1, fmt.Errorf("%w: eventfd: %v", ErrIO, err)
	}
	c.pollMu.Lock()
	c.pollers[fd] = struct{}{}
	c.pollMu.Unlock()
	return fd, nil
}

func (c *Controller) removePoller(fd int) {
	c.pollMu.Lock()
	delete(c.pollers, fd)
	c.pollMu.Unlock()
	_ = unix.Close(fd)
}

// wakePollers interrupts every Poll in progress.
func (c *Controller) wakePollers() {
	c.pollMu.Lock()
	defer c.pollMu.Unlock()
	for fd := range c.pollers {
		if err := wakeUp(fd); err != nil {
			c.log.Warn("failed to wake up gpio poll", zap.Error(err))
		}
	}
}

// releasePin is called by Pin.Release.
func (c *Controller) releasePin(p *Pin) error {
	c.mu.Lock()
	if c.pins[p.number] == p {
		delete(c.pins, p.number)
	}
	c.mu.Unlock()
	return c.unref()
}

func (c *Controller) unref() error {
	sharedMu.Lock()
	c.mu.Lock()
	if c.refs == 0 {
		c.mu.Unlock()
		sharedMu.Unlock()
		return nil
	}
	c.refs--
	last := c.refs == 0
	var d *dispatcher
	var chip *gpioioctl.GPIOChip
	if last {
		d, c.disp = c.disp, nil
		chip, c.chip = c.chip, nil
		if shared == c {
			shared = nil
		}
	}
	c.mu.Unlock()
	sharedMu.Unlock()
	if !last {
		return nil
	}
	var err error
	if d != nil {
		err = multierr.Append(err, d.stop())
	}
	if chip != nil {
		err = multierr.Append(err, chip.Close())
	}
	err = multierr.Append(err, c.regs.Close())
	c.log.Debug("gpio controller closed", zap.Error(err))
	return err
}
