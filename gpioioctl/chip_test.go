//go:build linux

package gpioioctl

// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

import "testing"

func TestFlagLabels(t *testing.T) {
	data := []struct {
		flags uint64
		pull  Label
		edges Label
	}{
		{0, "PullNoChange", "NoEdge"},
		{_GPIO_V2_LINE_FLAG_BIAS_DISABLED, "Float", "NoEdge"},
		{_GPIO_V2_LINE_FLAG_BIAS_PULL_DOWN | _GPIO_V2_LINE_FLAG_EDGE_RISING, "PullDown", "RisingEdge"},
		{_GPIO_V2_LINE_FLAG_BIAS_PULL_UP | _GPIO_V2_LINE_FLAG_EDGE_FALLING, "PullUp", "FallingEdge"},
		{_GPIO_V2_LINE_FLAG_EDGE_RISING | _GPIO_V2_LINE_FLAG_EDGE_FALLING, "PullNoChange", "BothEdges"},
	}
	for i, line := range data {
		pull, edges := flagLabels(line.flags)
		if pull != line.pull || edges != line.edges {
			t.Fatalf("#%d: got %s/%s, want %s/%s", i, pull, edges, line.pull, line.edges)
		}
	}
}
