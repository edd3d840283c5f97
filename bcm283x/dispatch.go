//go:build linux

// Copyright 2017 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bcm283x

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// dispatcher is the single goroutine delivering events to handlers.
//
// Every source with a handler is registered in one epoll instance. An
// eventfd in the same set wakes the loop up for shutdown. The loop closes
// the registrations and its descriptors on exit.
type dispatcher struct {
	log    *zap.Logger
	epfd   int
	wakefd int
	done   chan struct{}
	err    error // Set by the loop before done is closed

	stopped    atomic.Bool
	delivering atomic.Bool // A handler is running

	mu      sync.Mutex // Held while reading sources, never while calling handlers
	watches map[int32]*watch
}

func newDispatcher(log *zap.Logger) (*dispatcher, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("%w: epoll_create1: %v", ErrIO, err)
	}
	wakefd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, fmt.Errorf("%w: eventfd: %v", ErrIO, err)
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakefd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakefd, &ev); err != nil {
		_ = unix.Close(wakefd)
		_ = unix.Close(epfd)
		return nil, fmt.Errorf("%w: epoll_ctl: %v", ErrIO, err)
	}
	d := &dispatcher{
		log:     log,
		epfd:    epfd,
		wakefd:  wakefd,
		done:    make(chan struct{}),
		watches: map[int32]*watch{},
	}
	go d.run()
	log.Debug("gpio dispatcher started")
	return d, nil
}

func (d *dispatcher) add(w *watch) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped.Load() {
		return fmt.Errorf("%w: dispatcher stopped", ErrIO)
	}
	fd := int32(w.src.Fd())
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: fd}
	if err := unix.EpollCtl(d.epfd, unix.EPOLL_CTL_ADD, int(fd), &ev); err != nil {
		return fmt.Errorf("%w: epoll_ctl: %v", ErrIO, err)
	}
	d.watches[fd] = w
	return nil
}

// remove unregisters w. Once it returns, no read of w is in flight.
func (d *dispatcher) remove(w *watch) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.removeLocked(w)
}

func (d *dispatcher) removeLocked(w *watch) {
	fd := int32(w.src.Fd())
	if d.watches[fd] != w {
		return
	}
	delete(d.watches, fd)
	if !d.stopped.Load() {
		// The source may already be gone; EBADF and ENOENT are fine.
		_ = unix.EpollCtl(d.epfd, unix.EPOLL_CTL_DEL, int(fd), nil)
	}
}

// stop wakes the loop up and waits for it to exit and close every
// registration.
//
// When called while a handler runs, e.g. from the handler itself, it returns
// right away and the loop shuts down once the handler returned.
func (d *dispatcher) stop() error {
	d.mu.Lock()
	if d.stopped.Swap(true) {
		d.mu.Unlock()
		return d.wait()
	}
	err := wakeUp(d.wakefd)
	d.mu.Unlock()
	if err != nil {
		return err
	}
	return d.wait()
}

func (d *dispatcher) wait() error {
	if d.delivering.Load() {
		return nil
	}
	<-d.done
	return d.err
}

// wakeUp adds one to the eventfd fd, making it readable.
func wakeUp(fd int) error {
	var one [8]byte
	binary.LittleEndian.PutUint64(one[:], 1)
	if _, err := unix.Write(fd, one[:]); err != nil {
		return fmt.Errorf("%w: eventfd write: %v", ErrIO, err)
	}
	return nil
}

// shutdown is the exit path of the loop.
func (d *dispatcher) shutdown() {
	d.mu.Lock()
	d.stopped.Store(true)
	var err error
	for fd, w := range d.watches {
		delete(d.watches, fd)
		err = multierr.Append(err, w.close())
	}
	err = multierr.Append(err, unix.Close(d.epfd))
	err = multierr.Append(err, unix.Close(d.wakefd))
	d.err = err
	d.mu.Unlock()
	d.log.Debug("gpio dispatcher stopped", zap.Error(err))
	close(d.done)
}

type delivery struct {
	w   *watch
	evs []Event
	err error
}

func (d *dispatcher) run() {
	defer d.shutdown()
	events := make([]unix.EpollEvent, eventBatch)
	for !d.stopped.Load() {
		n, err := unix.EpollWait(d.epfd, events, -1)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			d.log.Error("gpio dispatcher wait failed", zap.Error(err))
			return
		}
		var out []delivery
		d.mu.Lock()
		for i := 0; i < n; i++ {
			fd := events[i].Fd
			if fd == int32(d.wakefd) {
				d.mu.Unlock()
				return
			}
			w := d.watches[fd]
			if w == nil {
				continue
			}
			hangup := events[i].Events&(unix.EPOLLHUP|unix.EPOLLERR) != 0
			evs, rerr := w.read(hangup)
			if errors.Is(rerr, ErrInterruptSourceClosed) {
				// Level triggered: a hung up source would wake the loop forever.
				d.removeLocked(w)
			}
			out = append(out, delivery{w: w, evs: evs, err: rerr})
		}
		d.mu.Unlock()
		d.delivering.Store(true)
		for _, dl := range out {
			d.deliver(dl)
		}
		d.delivering.Store(false)
	}
}

// deliver calls the handler of a watch. Overrun errors are attached to the
// event that follows the gap; a closed source gets one final call.
func (d *dispatcher) deliver(dl delivery) {
	closed := errors.Is(dl.err, ErrInterruptSourceClosed)
	for _, ev := range dl.evs {
		if dl.w.closed.Load() || d.stopped.Load() {
			return
		}
		var err error
		if ev.Missed != 0 {
			err = fmt.Errorf("GPIO%d: %w: %d events lost before #%d", ev.Pin, ErrEventOverrun, ev.Missed, ev.Seqno)
		}
		dl.w.handler(ev, err)
	}
	if closed && !dl.w.closed.Load() && !d.stopped.Load() {
		d.log.Warn("gpio interrupt source closed", zap.Int("pin", dl.w.pin))
		dl.w.handler(Event{Pin: dl.w.pin}, dl.w.sourceClosed())
	}
}
