//go:build linux

// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// gpio reads and drives the GPIO of a Raspberry Pi.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

const (
	// Flags.
	flagGPIOMem       = "gpiomem"
	flagMem           = "mem"
	flagSpinThreshold = "spin-threshold"
	flagEventBuffer   = "event-buffer"
	flagDebug         = "debug"
	flagKeep          = "keep"
	flagLines         = "lines"
	flagEdge          = "edge"
	flagPull          = "pull"
	flagCount         = "count"
	flagTimeout       = "timeout"
	flagAsync         = "async"
	flagFreq          = "freq"
	flagDuty          = "duty"
	flagInverted      = "inverted"
	flagDuration      = "duration"
)

func main() {
	r := &runner{}
	app := &cli.App{
		Name:  "gpio",
		Usage: "read and drive the GPIO of a Raspberry Pi",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagGPIOMem,
				Usage:   "GPIO only memory `DEVICE`",
				EnvVars: []string{"RPIGPIO_GPIOMEM"},
			},
			&cli.StringFlag{
				Name:    flagMem,
				Usage:   "physical memory `DEVICE`, used when the GPIO one is missing",
				EnvVars: []string{"RPIGPIO_MEM"},
			},
			&cli.DurationFlag{
				Name:    flagSpinThreshold,
				Usage:   "part of each software PWM wait spent busy looping",
				EnvVars: []string{"RPIGPIO_SPIN_THRESHOLD"},
			},
			&cli.IntFlag{
				Name:    flagEventBuffer,
				Usage:   "number of edge events queued by the kernel per pin",
				EnvVars: []string{"RPIGPIO_EVENT_BUFFER"},
			},
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			var err error
			if c.Bool(flagDebug) {
				r.log, err = zap.NewDevelopment()
			} else {
				r.log, err = zap.NewProduction()
			}
			return err
		},
		After: func(c *cli.Context) error {
			if r.log != nil {
				_ = r.log.Sync()
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "info",
				Usage: "print the board and the state of every GPIO",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  flagLines,
						Usage: "also print the kernel view of the lines",
					},
				},
				Action: r.info,
			},
			{
				Name:      "mode",
				Usage:     "print or change the mode of a pin",
				ArgsUsage: "<pin> [IN|OUT|ALT0..ALT5]",
				Flags:     []cli.Flag{keepFlag()},
				Action:    r.mode,
			},
			{
				Name:      "read",
				Usage:     "print the level of a pin",
				ArgsUsage: "<pin>",
				Action:    r.read,
			},
			{
				Name:      "write",
				Usage:     "set a pin as output and drive it",
				ArgsUsage: "<pin> <0|1>",
				Flags:     []cli.Flag{keepFlag()},
				Action:    r.write,
			},
			{
				Name:      "pull",
				Usage:     "change the pull resistor of a pin",
				ArgsUsage: "<pin> <up|down|off>",
				Action:    r.pull,
			},
			{
				Name:      "watch",
				Usage:     "print the edges detected on pins",
				ArgsUsage: "<pin>...",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  flagEdge,
						Value: "both",
						Usage: "rising, falling or both",
					},
					&cli.StringFlag{
						Name:  flagPull,
						Usage: "pull to set before watching",
					},
					&cli.IntFlag{
						Name:  flagCount,
						Usage: "exit after `N` events, 0 waits forever",
					},
					&cli.DurationFlag{
						Name:  flagTimeout,
						Usage: "exit when no edge is detected for this long",
					},
					&cli.BoolFlag{
						Name:  flagAsync,
						Usage: "deliver the edges through the background dispatcher",
					},
				},
				Action: r.watch,
			},
			{
				Name:      "pwm",
				Usage:     "generate a software PWM signal on a pin",
				ArgsUsage: "<pin>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  flagFreq,
						Value: "1kHz",
						Usage: "signal frequency",
					},
					&cli.Float64Flag{
						Name:  flagDuty,
						Value: 0.5,
						Usage: "active fraction of the period, between 0 and 1",
					},
					&cli.BoolFlag{
						Name:  flagInverted,
						Usage: "drive low during the active part",
					},
					&cli.DurationFlag{
						Name:  flagDuration,
						Usage: "stop after this long, 0 runs until interrupted",
					},
				},
				Action: r.pwm,
			},
		},
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "gpio: %v\n", err)
		os.Exit(1)
	}
}

func keepFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  flagKeep,
		Value: true,
		Usage: "leave the pin in its new state on exit",
	}
}
