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

	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"golang.org/x/sys/unix"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/rpigpio/gpioioctl"
)

// Event is an edge detected on a watched pin.
type Event struct {
	Pin  int
	Edge gpio.Edge
	// Timestamp is the kernel CLOCK_MONOTONIC time of the edge.
	Timestamp time.Duration
	// Seqno is the sequence number of the event for this pin, starting at 1.
	Seqno uint32
	// Missed is the number of events the kernel dropped right before this
	// one.
	Missed uint32
}

// Handler is called by the dispatcher for every event of a watched pin.
//
// err wraps ErrEventOverrun when events were lost before ev, or
// ErrInterruptSourceClosed when the source is gone. In the latter case it is
// the last call for the watch and only ev.Pin is set.
//
// Handlers run on the dispatcher goroutine and delay every other watch while
// they run.
type Handler func(ev Event, err error)

// EventSource is a kernel edge event queue of one pin.
//
// *gpioioctl.LineEvents implements it.
type EventSource interface {
	// Fd is readable when events are pending.
	Fd() int
	// ReadEvents reads pending events without blocking. It returns 0, nil
	// when none is pending and io.EOF when the source is closed.
	ReadEvents(buf []gpioioctl.LineEvent) (int, error)
	Close() error
}

// eventBatch is the number of events read per system call.
const eventBatch = 16

// watch is the edge registration of a pin.
type watch struct {
	pin     int
	edge    gpio.Edge
	src     EventSource
	handler Handler
	d       *dispatcher // Set when handler is not nil

	closed atomic.Bool

	mu      sync.Mutex // Serializes read and close of src
	lastSeq uint32
	failed  bool
	buf     [eventBatch]gpioioctl.LineEvent
}

func newWatch(pin int, edge gpio.Edge, src EventSource, h Handler) *watch {
	return &watch{pin: pin, edge: edge, src: src, handler: h}
}

// live returns true while the watch can still deliver events.
func (w *watch) live() bool {
	if w.closed.Load() {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return !w.failed
}

// read drains the pending events of the source.
//
// hangup is set when the descriptor reported an error or a hang up. Events
// queued before the hang up are still returned.
func (w *watch) read(hangup bool) ([]Event, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed.Load() || w.failed {
		return nil, w.sourceClosed()
	}
	var out []Event
	var err error
	for {
		n, rerr := w.src.ReadEvents(w.buf[:])
		if rerr != nil {
			w.failed = true
			return out, multierr.Append(err, w.sourceClosed())
		}
		for i := 0; i < n; i++ {
			le := &w.buf[i]
			ev := Event{
				Pin:       w.pin,
				Edge:      le.Edge(),
				Timestamp: le.Timestamp,
				Seqno:     le.LineSeqno,
			}
			if le.LineSeqno > w.lastSeq+1 {
				ev.Missed = le.LineSeqno - w.lastSeq - 1
				err = multierr.Append(err, fmt.Errorf("GPIO%d: %w: %d events lost before #%d", w.pin, ErrEventOverrun, ev.Missed, le.LineSeqno))
			}
			w.lastSeq = le.LineSeqno
			out = append(out, ev)
		}
		if n < len(w.buf) {
			break
		}
	}
	if hangup && len(out) == 0 {
		w.failed = true
		err = multierr.Append(err, w.sourceClosed())
	}
	return out, err
}

func (w *watch) sourceClosed() error {
	return fmt.Errorf("GPIO%d: %w", w.pin, ErrInterruptSourceClosed)
}

// close releases the source. It is idempotent.
func (w *watch) close() error {
	if w.closed.Swap(true) {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.src.Close()
}

// Watch switches the pin to input and starts edge detection.
//
// With a nil handler, events are consumed with Controller.Poll or
// WaitForEdge. Otherwise h is called from the dispatcher goroutine, which is
// started on first use.
//
// A previous watch or software PWM on the pin is stopped first.
func (p *Pin) Watch(edge gpio.Edge, h Handler) error {
	if edge == gpio.NoEdge {
		return p.wrap(errors.New("edge detection requires an edge"))
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.live(); err != nil {
		return err
	}
	if err := p.teardownLocked(); err != nil {
		return p.wrap(err)
	}
	if err := p.setModeLocked(Input); err != nil {
		return p.wrap(err)
	}
	src, err := p.c.openEvents(p.number, edge)
	if err != nil {
		return p.wrap(err)
	}
	w := newWatch(p.number, edge, src, h)
	if h != nil {
		d, err := p.c.dispatcher()
		if err == nil {
			err = d.add(w)
		}
		if err != nil {
			return p.wrap(multierr.Append(err, w.close()))
		}
		w.d = d
	}
	p.watch = w
	return nil
}

// Unwatch stops edge detection. The pin stays an input.
func (p *Pin) Unwatch() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.unwatchLocked(); err != nil {
		return p.wrap(err)
	}
	return nil
}

func (p *Pin) unwatchLocked() error {
	w := p.watch
	if w == nil {
		return nil
	}
	p.watch = nil
	if w.d != nil {
		w.d.remove(w)
		return w.close()
	}
	err := w.close()
	p.c.wakePollers()
	return err
}

// Poll waits until at least one of the pins watched without handler has
// pending events, or timeout expires, and returns the pending events.
//
// A negative timeout waits forever. On timeout, Poll returns no event and a
// nil error.
//
// The events of each pin are in kernel order. Lost events are reported as
// ErrEventOverrun and the events that follow the gap are still returned. A
// source that is gone is reported as ErrInterruptSourceClosed without
// waiting. A pin unwatched, released or switched to another mode while Poll
// waits ends the wait with ErrInterruptSourceClosed as well.
//
// ErrModeMismatch is returned when none of pins is watched without handler.
func (c *Controller) Poll(timeout time.Duration, pins ...*Pin) ([]Event, error) {
	var watches []*watch
	var err error
	for _, p := range pins {
		if p == nil || p.c != c {
			continue
		}
		p.mu.Lock()
		w := p.watch
		p.mu.Unlock()
		if w == nil || w.handler != nil || w.closed.Load() {
			continue
		}
		if !w.live() {
			err = multierr.Append(err, w.sourceClosed())
			continue
		}
		watches = append(watches, w)
	}
	if err != nil {
		return nil, err
	}
	if len(watches) == 0 {
		return nil, fmt.Errorf("%w: no pin watched for polling", ErrModeMismatch)
	}

	wake, err := c.addPoller()
	if err != nil {
		return nil, err
	}
	defer c.removePoller(wake)
	// A watch closed before the poller was registered did not wake it up.
	if err := closedWatches(watches); err != nil {
		return nil, err
	}

	fds := make([]unix.PollFd, len(watches)+1)
	for i, w := range watches {
		fds[i] = unix.PollFd{Fd: int32(w.src.Fd()), Events: unix.POLLIN}
	}
	fds[len(watches)] = unix.PollFd{Fd: int32(wake), Events: unix.POLLIN}
	var deadline time.Time
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		ms := -1
		if timeout >= 0 {
			left := time.Until(deadline)
			if left < 0 {
				left = 0
			}
			ms = int((left + time.Millisecond - 1) / time.Millisecond)
		}
		n, perr := unix.Poll(fds, ms)
		if perr != nil {
			if errors.Is(perr, unix.EINTR) {
				continue
			}
			return nil, fmt.Errorf("%w: poll: %v", ErrIO, perr)
		}
		if n == 0 {
			return nil, nil
		}
		if fds[len(watches)].Revents == 0 {
			break
		}
		// Another watch of the controller may have been closed; drain and
		// check ours.
		var buf [8]byte
		_, _ = unix.Read(wake, buf[:])
		if err := closedWatches(watches); err != nil {
			return nil, err
		}
		if n > 1 {
			break
		}
	}

	var out []Event
	for i, w := range watches {
		re := fds[i].Revents
		if re == 0 {
			continue
		}
		hangup := re&(unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0
		evs, rerr := w.read(hangup)
		out = append(out, evs...)
		err = multierr.Append(err, rerr)
	}
	return out, err
}

// closedWatches returns ErrInterruptSourceClosed for every watch closed by
// its pin.
func closedWatches(watches []*watch) error {
	var err error
	for _, w := range watches {
		if w.closed.Load() {
			err = multierr.Append(err, w.sourceClosed())
		}
	}
	return err
}
