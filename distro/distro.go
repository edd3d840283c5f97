// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package distro reports information about the board and the Linux
// distribution it is running.
//
// It reads the device tree exported under /proc/device-tree and
// /proc/cpuinfo. Results are cached for the lifetime of the process.
package distro

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// DTModel returns the device tree model, e.g. "Raspberry Pi 4 Model B Rev
// 1.4".
//
// Returns "" if the host doesn't expose a device tree.
func DTModel() string {
	mu.Lock()
	defer mu.Unlock()
	if dtModel == nil {
		m := readDTModel(root)
		dtModel = &m
	}
	return *dtModel
}

// CPUInfo returns parsed data from /proc/cpuinfo.
//
// Only the keys of the first block that carries them are kept, which on ARM
// boards includes "Hardware", "Revision", "Serial" and "Model".
func CPUInfo() map[string]string {
	mu.Lock()
	defer mu.Unlock()
	if cpuInfo == nil {
		cpuInfo = readCPUInfo(root)
	}
	return cpuInfo
}

// Revision returns the board revision code.
//
// It is read from the device tree "linux,revision" property first, then from
// the "Revision" line of /proc/cpuinfo.
func Revision() (uint32, error) {
	mu.Lock()
	defer mu.Unlock()
	if revision == nil {
		r, err := readRevision(root)
		if err != nil {
			return 0, err
		}
		revision = &r
	}
	return *revision, nil
}

// ErrNoRevision is returned by Revision when neither the device tree nor
// /proc/cpuinfo expose a revision code.
var ErrNoRevision = errors.New("distro: board revision not found")

var (
	mu       sync.Mutex
	root     = "/"
	dtModel  *string
	cpuInfo  map[string]string
	revision *uint32
)

func readDTModel(root string) string {
	b, err := os.ReadFile(filepath.Join(root, "proc/device-tree/model"))
	if err != nil {
		return ""
	}
	return strings.TrimRight(string(b), "\x00\n")
}

func readCPUInfo(root string) map[string]string {
	out := map[string]string{}
	f, err := os.Open(filepath.Join(root, "proc/cpuinfo"))
	if err != nil {
		return out
	}
	defer f.Close()
	return parseCPUInfo(f)
}

func parseCPUInfo(r io.Reader) map[string]string {
	out := map[string]string{}
	s := bufio.NewScanner(r)
	for s.Scan() {
		parts := strings.SplitN(s.Text(), ":", 2)
		if len(parts) != 2 {
			continue
		}
		k := strings.TrimSpace(parts[0])
		if _, ok := out[k]; ok {
			continue
		}
		out[k] = strings.TrimSpace(parts[1])
	}
	return out
}

func readRevision(root string) (uint32, error) {
	// The property is a single big endian cell.
	if b, err := os.ReadFile(filepath.Join(root, "proc/device-tree/system/linux,revision")); err == nil && len(b) == 4 {
		return binary.BigEndian.Uint32(b), nil
	}
	v, ok := readCPUInfo(root)["Revision"]
	if !ok {
		return 0, ErrNoRevision
	}
	r, err := strconv.ParseUint(v, 16, 32)
	if err != nil {
		return 0, errors.New("distro: invalid revision " + strconv.Quote(v))
	}
	return uint32(r), nil
}
