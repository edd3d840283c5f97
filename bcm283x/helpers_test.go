//go:build linux

// Copyright 2017 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bcm283x

import (
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/sys/unix"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/rpigpio/bcm283x/bcm283xtest"
	"periph.io/x/rpigpio/gpioioctl"
)

var boardPi3 = Board{Model: "Raspberry Pi 3 Model B", Revision: 0xa02082, SoC: BCM2837, PinCount: 54}
var boardPi4 = Board{Model: "Raspberry Pi 4 Model B", Revision: 0xc03114, SoC: BCM2711, PinCount: 58}

// pipeSource is an EventSource backed by a pipe. The test writes kernel
// formatted events on the other end.
type pipeSource struct {
	r, w int
	mu   sync.Mutex
}

func (s *pipeSource) Fd() int {
	return s.r
}

func (s *pipeSource) ReadEvents(buf []gpioioctl.LineEvent) (int, error) {
	return gpioioctl.ReadLineEvents(s.r, buf)
}

func (s *pipeSource) Close() error {
	return unix.Close(s.r)
}

// send writes events with line sequence numbers seqs.
func (s *pipeSource) send(t *testing.T, id uint32, seqs ...uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, seq := range seqs {
		e := gpioioctl.LineEvent{ID: id, LineSeqno: seq, Seqno: seq, Timestamp: time.Duration(seq) * time.Millisecond}
		// EPIPE means the watch already let go of the source.
		if _, err := unix.Write(s.w, gpioioctl.EncodeLineEvent(e)); err != nil && !errors.Is(err, unix.EPIPE) {
			t.Error(err)
		}
	}
}

// hangup closes the write end, which the reader sees as a closed source.
func (s *pipeSource) hangup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w >= 0 {
		_ = unix.Close(s.w)
		s.w = -1
	}
}

// sources hands out pipe sources and remembers the last one of each pin.
type sources struct {
	t  *testing.T
	mu sync.Mutex
	m  map[int]*pipeSource
}

func (s *sources) open(pin int, edge gpio.Edge) (EventSource, error) {
	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return nil, err
	}
	src := &pipeSource{r: p[0], w: p[1]}
	s.t.Cleanup(src.hangup)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[pin] = src
	return src, nil
}

func (s *sources) get(pin int) *pipeSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	src := s.m[pin]
	if src == nil {
		s.t.Fatalf("no source for GPIO%d", pin)
	}
	return src
}

func newTestController(t *testing.T, b Board) (*Controller, *bcm283xtest.Memory, *sources) {
	mem := &bcm283xtest.Memory{}
	src := &sources{t: t, m: map[int]*pipeSource{}}
	c := NewController(mem, b, Config{OpenEvents: src.open})
	t.Cleanup(func() {
		_ = c.Close()
	})
	return c, mem, src
}

func acquire(t *testing.T, c *Controller, n int) *Pin {
	p, err := c.Acquire(n)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = p.Release()
	})
	return p
}
