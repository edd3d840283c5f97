//go:build linux

package gpioioctl

// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// The consumer name to use for line requests. Initialized in init()
var consumer []byte

// Label is a human readable name for a line attribute.
type Label string

var pullLabels = []Label{"PullNoChange", "Float", "PullDown", "PullUp"}
var edgeLabels = []Label{"NoEdge", "RisingEdge", "FallingEdge", "BothEdges"}

// A representation of a Linux GPIO Chip. A computer may have
// more than one GPIOChip.
type GPIOChip struct {
	// The name of the device as reported by the kernel.
	name string
	// Path represents the path to the /dev/gpiochip* character
	// device used for ioctl() calls.
	path  string
	label string
	// The number of lines this device supports.
	lineCount int
	// File associated with the chip. It is kept open for as long as the
	// chip is in use since line requests are issued against it.
	file *os.File
}

func (chip *GPIOChip) Name() string {
	return chip.name
}

func (chip *GPIOChip) Path() string {
	return chip.path
}

func (chip *GPIOChip) Label() string {
	return chip.label
}

func (chip *GPIOChip) LineCount() int {
	return chip.lineCount
}

// OpenChip opens the /dev/gpiochip* path specified and uses Kernel ioctl()
// calls to read information about the chip.
func OpenChip(path string) (*GPIOChip, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0400)
	if err != nil {
		return nil, fmt.Errorf("opening gpio chip %s failed. error: %w", path, err)
	}
	chip := GPIOChip{path: path, file: f}
	var info gpiochip_info
	if err = ioctl_gpiochip_info(f.Fd(), &info); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("gpiochip info %s: %w", path, err)
	}
	chip.name = strings.Trim(string(info.name[:]), "\x00")
	chip.label = strings.Trim(string(info.label[:]), "\x00")
	if len(chip.label) == 0 {
		chip.label = chip.name
	}
	chip.lineCount = int(info.lines)
	return &chip, nil
}

// Close closes the file descriptor associated with the chip. Line event
// requests made on the chip have their own descriptors and stay valid.
func (chip *GPIOChip) Close() error {
	if chip.file == nil {
		return nil
	}
	err := chip.file.Close()
	chip.file = nil
	return err
}

// LineInfo describes the kernel view of one line of a chip.
type LineInfo struct {
	Offset   int
	Name     string
	Consumer string
	Used     bool
	Input    bool
	Pull     Label
	Edges    Label
}

// LineInfo returns the kernel's description of the line at offset.
func (chip *GPIOChip) LineInfo(offset int) (LineInfo, error) {
	if chip.file == nil {
		return LineInfo{}, errors.New("gpio chip is closed")
	}
	if offset < 0 || offset >= chip.lineCount {
		return LineInfo{}, fmt.Errorf("line %d out of range for %s", offset, chip.name)
	}
	var li gpio_v2_line_info
	li.offset = uint32(offset)
	if err := ioctl_gpio_v2_line_info(chip.file.Fd(), &li); err != nil {
		return LineInfo{}, fmt.Errorf("reading line info: %w", err)
	}
	info := LineInfo{
		Offset:   offset,
		Name:     strings.Trim(string(li.name[:]), "\x00"),
		Consumer: strings.Trim(string(li.consumer[:]), "\x00"),
		Used:     li.flags&_GPIO_V2_LINE_FLAG_USED != 0,
		Input:    li.flags&_GPIO_V2_LINE_FLAG_INPUT != 0,
	}
	info.Pull, info.Edges = flagLabels(li.flags)
	return info, nil
}

// flagLabels names the bias and edge detection set in the line flags.
func flagLabels(flags uint64) (pull, edges Label) {
	pull, edges = pullLabels[0], edgeLabels[0]
	switch {
	case flags&_GPIO_V2_LINE_FLAG_BIAS_PULL_UP != 0:
		pull = pullLabels[3]
	case flags&_GPIO_V2_LINE_FLAG_BIAS_PULL_DOWN != 0:
		pull = pullLabels[2]
	case flags&_GPIO_V2_LINE_FLAG_BIAS_DISABLED != 0:
		pull = pullLabels[1]
	}
	rising := flags&_GPIO_V2_LINE_FLAG_EDGE_RISING != 0
	falling := flags&_GPIO_V2_LINE_FLAG_EDGE_FALLING != 0
	switch {
	case rising && falling:
		edges = edgeLabels[3]
	case rising:
		edges = edgeLabels[1]
	case falling:
		edges = edgeLabels[2]
	}
	return pull, edges
}

// FindChip opens every /dev/gpiochip* device and returns the first one
// whose label starts with one of prefixes. The other chips are closed.
//
// Chips labeled with pinctrl- (a Pi kernel standard) are considered first,
// then the rest by label, which protects against random changes in chip
// naming/ordering.
func FindChip(prefixes ...string) (*GPIOChip, error) {
	return findChip("/dev", prefixes...)
}

func findChip(dev string, prefixes ...string) (*GPIOChip, error) {
	items, err := filepath.Glob(path.Join(dev, "gpiochip*"))
	if err != nil {
		return nil, fmt.Errorf("gpioioctl: %w", err)
	}
	if len(items) == 0 {
		return nil, errors.New("no GPIO chips found")
	}
	var chips []*GPIOChip
	for _, item := range items {
		if chip, err := OpenChip(item); err == nil {
			chips = append(chips, chip)
		}
	}
	sortChips(chips)
	var found *GPIOChip
	for _, chip := range chips {
		if found == nil && matchLabel(chip.Label(), prefixes) {
			found = chip
			continue
		}
		_ = chip.Close()
	}
	if found == nil {
		return nil, fmt.Errorf("no GPIO chip labeled %s", strings.Join(prefixes, " or "))
	}
	return found, nil
}

func matchLabel(label string, prefixes []string) bool {
	if len(prefixes) == 0 {
		return true
	}
	for _, p := range prefixes {
		if strings.HasPrefix(label, p) {
			return true
		}
	}
	return false
}

func sortChips(chips []*GPIOChip) {
	sort.SliceStable(chips, func(i, j int) bool {
		I := chips[i]
		J := chips[j]
		if strings.HasPrefix(I.Label(), "pinctrl-") {
			if strings.HasPrefix(J.Label(), "pinctrl-") {
				return I.Label() < J.Label()
			}
			return true
		} else if strings.HasPrefix(J.Label(), "pinctrl-") {
			return false
		}
		return I.Label() < J.Label()
	})
}

func init() {
	// Init our consumer name. It's used when a line is requested, and
	// allows utility programs like gpioinfo to find out who has a line
	// open.
	fname := path.Base(os.Args[0])
	s := fmt.Sprintf("%s@%d", fname, os.Getpid())
	charBytes := []byte(s)
	if len(charBytes) >= _GPIO_MAX_NAME_SIZE {
		charBytes = charBytes[:_GPIO_MAX_NAME_SIZE-1]
	}
	consumer = charBytes
}
