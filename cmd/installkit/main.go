// Package main is the entry point for the installkit CLI.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/relicta-tech/installkit/internal/cli"
)

// Version information set by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// shutdownTimeout is the maximum time to wait for graceful shutdown.
const shutdownTimeout = 30 * time.Second

func main() {
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	cli.SetVersionInfo(version, commit, date)
	os.Exit(run(context.Background(), sigChan, cli.ExecuteContext, cli.Cleanup, os.Stderr, os.Exit))
}

// run executes the CLI and returns the process exit code. The first signal
// cancels the context; a second one, or a shutdown that outlasts
// shutdownTimeout, calls exit(1).
func run(parent context.Context, sigChan <-chan os.Signal, execute func(context.Context) error, cleanup func(), stderr io.Writer, exit func(int)) int {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	done := make(chan struct{})
	var wg sync.WaitGroup
	if sigChan != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			handleSignals(sigChan, cancel, done, stderr, exit)
		}()
	}

	var exitCode int
	if err := execute(ctx); err != nil {
		if ctx.Err() != nil {
			fmt.Fprintln(stderr, "Operation canceled")
			exitCode = 130 // Standard exit code for SIGINT
		} else {
			// Print the error since SilenceErrors is enabled in cobra
			fmt.Fprintf(stderr, "Error: %v\n", err)
			exitCode = 1
		}
	}

	close(done)
	wg.Wait()
	cancel()
	cleanup()
	return exitCode
}

func handleSignals(sigChan <-chan os.Signal, cancel context.CancelFunc, done <-chan struct{}, stderr io.Writer, exit func(int)) {
	var sig os.Signal
	select {
	case sig = <-sigChan:
	case <-done:
		return
	}
	fmt.Fprintf(stderr, "\nReceived signal %v, initiating graceful shutdown...\n", sig)
	cancel()

	shutdownTimer := time.NewTimer(shutdownTimeout)
	defer shutdownTimer.Stop()

	select {
	case sig = <-sigChan:
	case <-done:
		// A second signal may have raced with completion.
		select {
		case sig = <-sigChan:
		default:
			return
		}
	case <-shutdownTimer.C:
		fmt.Fprintf(stderr, "\nShutdown timeout (%v) exceeded, forcing exit\n", shutdownTimeout)
		exit(1)
		return
	}
	fmt.Fprintf(stderr, "\nReceived second signal %v, forcing exit\n", sig)
	exit(1)
}
