//go:build linux

package gpioioctl

// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/sys/unix"
	"periph.io/x/conn/v3/gpio"
)

// LineEventSize is the size in bytes of struct gpio_v2_line_event.
const LineEventSize = 48

// LineEvent is one edge event as reported by the kernel.
type LineEvent struct {
	// Timestamp is CLOCK_MONOTONIC at the time the edge was detected.
	Timestamp time.Duration
	// ID is the edge type. 1 is rising and 2 is falling.
	ID     uint32
	Offset uint32
	// Seqno is the sequence number of the event across every line of the
	// request, LineSeqno the one of the line alone. Both start at 1.
	Seqno     uint32
	LineSeqno uint32
}

// Edge returns the edge that triggered the event.
func (e *LineEvent) Edge() gpio.Edge {
	switch e.ID {
	case _GPIO_V2_LINE_EVENT_RISING_EDGE:
		return gpio.RisingEdge
	case _GPIO_V2_LINE_EVENT_FALLING_EDGE:
		return gpio.FallingEdge
	}
	return gpio.NoEdge
}

// DecodeLineEvent decodes one kernel event from b, which must be at least
// LineEventSize long.
func DecodeLineEvent(b []byte) LineEvent {
	return LineEvent{
		Timestamp: time.Duration(binary.LittleEndian.Uint64(b[0:])),
		ID:        binary.LittleEndian.Uint32(b[8:]),
		Offset:    binary.LittleEndian.Uint32(b[12:]),
		Seqno:     binary.LittleEndian.Uint32(b[16:]),
		LineSeqno: binary.LittleEndian.Uint32(b[20:]),
	}
}

// EncodeLineEvent is the inverse of DecodeLineEvent. It is used by fakes
// standing in for the kernel.
func EncodeLineEvent(e LineEvent) []byte {
	b := make([]byte, LineEventSize)
	binary.LittleEndian.PutUint64(b[0:], uint64(e.Timestamp))
	binary.LittleEndian.PutUint32(b[8:], e.ID)
	binary.LittleEndian.PutUint32(b[12:], e.Offset)
	binary.LittleEndian.PutUint32(b[16:], e.Seqno)
	binary.LittleEndian.PutUint32(b[20:], e.LineSeqno)
	return b
}

// ReadLineEvents reads as many whole events as fit in buf from the non
// blocking descriptor fd.
//
// It returns 0, nil when no event is pending and io.EOF when the other end
// is gone.
func ReadLineEvents(fd int, buf []LineEvent) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	raw := make([]byte, len(buf)*LineEventSize)
	for {
		n, err := unix.Read(fd, raw)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			if errors.Is(err, unix.EAGAIN) {
				return 0, nil
			}
			return 0, err
		}
		if n == 0 {
			return 0, io.EOF
		}
		if n%LineEventSize != 0 {
			return 0, fmt.Errorf("gpioioctl: short event read of %d bytes", n)
		}
		count := n / LineEventSize
		for i := 0; i < count; i++ {
			buf[i] = DecodeLineEvent(raw[i*LineEventSize:])
		}
		return count, nil
	}
}

// LineEvents is an edge event request on a single line.
type LineEvents struct {
	fd int
}

// RequestEvents requests the line at offset as an input and asks the
// kernel to report edge events for it. The kernel queues up to bufferSize
// events. 0 lets the kernel pick.
//
// The returned descriptor is non blocking.
func (chip *GPIOChip) RequestEvents(offset int, edge gpio.Edge, bufferSize int) (*LineEvents, error) {
	if chip.file == nil {
		return nil, errors.New("gpio chip is closed")
	}
	if offset < 0 || offset >= chip.lineCount {
		return nil, fmt.Errorf("line %d out of range for %s", offset, chip.name)
	}
	if edge == gpio.NoEdge {
		return nil, errors.New("gpioioctl: no edge to detect")
	}
	var req gpio_v2_line_request
	req.setLineNumber(0, uint32(offset))
	req.num_lines = 1
	req.event_buffer_size = uint32(bufferSize)
	copy(req.consumer[:], consumer)
	req.config.flags = getFlags(edge)
	if err := ioctl_gpio_v2_line_request(chip.file.Fd(), &req); err != nil {
		return nil, fmt.Errorf("line_request ioctl: %w", err)
	}
	fd := int(req.fd)
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("line_request nonblock: %w", err)
	}
	return &LineEvents{fd: fd}, nil
}

// Fd returns the descriptor that becomes readable when events are pending.
func (l *LineEvents) Fd() int {
	return l.fd
}

// ReadEvents reads the pending events into buf. See ReadLineEvents.
func (l *LineEvents) ReadEvents(buf []LineEvent) (int, error) {
	if l.fd < 0 {
		return 0, io.EOF
	}
	return ReadLineEvents(l.fd, buf)
}

// Close releases the line back to the kernel.
func (l *LineEvents) Close() error {
	if l.fd < 0 {
		return nil
	}
	err := unix.Close(l.fd)
	l.fd = -1
	return err
}

// getFlags returns the request flags for an input line watching edge.
func getFlags(edge gpio.Edge) uint64 {
	flags := _GPIO_V2_LINE_FLAG_INPUT
	if edge == gpio.RisingEdge {
		flags |= _GPIO_V2_LINE_FLAG_EDGE_RISING
	} else if edge == gpio.FallingEdge {
		flags |= _GPIO_V2_LINE_FLAG_EDGE_FALLING
	} else if edge == gpio.BothEdges {
		flags |= _GPIO_V2_LINE_FLAG_EDGE_RISING | _GPIO_V2_LINE_FLAG_EDGE_FALLING
	}
	return flags
}
