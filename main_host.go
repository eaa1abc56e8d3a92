//go:build !tinygo

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"nucleus/app"
	"nucleus/hal"
	"nucleus/internal/buildinfo"
)

func main() {
	var hcfg hal.HeadlessConfig
	var scfg hal.StepperConfig
	var stepMode, version bool
	acfg := app.DefaultConfig()

	flag.BoolVar(&hcfg.Enabled, "headless", false, "Run without a window.")
	flag.IntVar(&hcfg.Hz, "hz", 60, "Frame rate in headless mode.")
	flag.Uint64Var(&hcfg.Ticks, "ticks", 0, "Stop after N frames in headless mode (0 = run forever).")
	flag.BoolVar(&stepMode, "step", false, "Single-step frames from the terminal.")
	flag.Uint64Var(&scfg.TicksPerStep, "step-ticks", 1, "Host ticks charged per single step.")
	flag.UintVar(&acfg.LapTime, "lap", acfg.LapTime, "Scheduler quantum in kernel ticks.")
	flag.IntVar(&acfg.StepsPerFrame, "steps", acfg.StepsPerFrame, "Kernel steps per frame.")
	flag.BoolVar(&acfg.Trace, "trace", false, "Log kernel trace lines.")
	flag.BoolVar(&acfg.PanicDemo, "panic-demo", false, "Spawn a thread that crashes the kernel.")
	flag.BoolVar(&version, "version", false, "Print the build identifier and exit.")
	flag.Parse()

	if version {
		fmt.Println(buildinfo.String())
		return
	}

	newApp := func(h hal.HAL) hal.StepFunc {
		return app.NewWithConfig(h, acfg)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var err error
	switch {
	case stepMode:
		err = hal.RunStepper(ctx, newApp, scfg)
	case hcfg.Enabled:
		err = hal.RunHeadless(ctx, newApp, hcfg)
	default:
		err = hal.RunWindow(newApp)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
