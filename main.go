package main

import (
	"binaural/cmd"
	"binaural/internal/log"
	"binaural/pkg/build"
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"
)

var logger = log.New("Main")

// main is the entry point for the binaural renderer.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase (Cold Path):
//   - Initialize build information
//   - Configure runtime settings
//   - Parse command line arguments and load the configuration
//
// 2. Concurrent Phase (Hot Path):
//   - Load the HRTF dataset and start the streaming pipeline
//   - Serve direction control and publish telemetry
//   - Record the rendered output if enabled
//
// 3. Shutdown Phase (Cold Path):
//   - Handle termination signals
//   - Drain and close the stream
//   - Finalize the recording
//
// One-off commands (list, devices, resolve, render, play) run in the
// startup phase and exit.
func main() {
	// ==================== STARTUP PHASE (Cold Path) ====================

	// Build information is injected with -ldflags; development builds run
	// without it.
	if err := build.Initialize(); err != nil {
		logger.Debugf("build info: %v", err)
	}

	// One thread for the render loop, one for the device callback and one
	// for control, telemetry and I/O.
	runtime.GOMAXPROCS(3)

	opts, err := cmd.ParseArgs(os.Args[1:])
	if err != nil {
		logger.Fatalf("%v", err)
	}
	if opts == nil || opts.Config == nil {
		// --help or --version
		return
	}

	// ==================== CONCURRENT PHASE (Hot Path) ====================

	// Cancelled on SIGINT/SIGTERM, which begins the shutdown phase.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ==================== SHUTDOWN PHASE (Cold Path) ====================

	// Run blocks until the command completes or ctx is cancelled, and
	// releases the stream, the endpoints and the recording on the way out.
	if err := cmd.Run(ctx, opts, os.Stdout); err != nil {
		stop()
		logger.Fatalf("%v", err)
	}
}
