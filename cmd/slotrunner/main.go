// File: cmd/slotrunner/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/xkilldash9x/slotrunner/cmd"
	"github.com/xkilldash9x/slotrunner/internal/observability"
)

const panicLogFile = "panic.log"

// Function variables so tests can observe exits and panic logging.
var (
	osWriteFile = os.WriteFile
	osExit      = os.Exit
	execute     = cmd.Execute
)

func main() {
	defer handlePanic()
	osExit(run())
}

// run executes the command tree and unregisters the signal handler before the
// process exits.
func run() int {
	// SIGINT/SIGTERM cancel every session; pages are still released on the way out.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return exitCode(execute(ctx))
}

// exitCode maps the command result onto the process status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		return 130
	default:
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
}

// handlePanic writes the stack to panic.log and exits non-zero.
func handlePanic() {
	r := recover()
	if r == nil {
		return
	}
	observability.Sync()

	msg := fmt.Sprintf("panic: %v\n\n%s", r, debug.Stack())
	if err := osWriteFile(panicLogFile, []byte(msg), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL: Failed to write panic log: %v\n", err)
		fmt.Fprintf(os.Stderr, "Panic details:\n%s\n", msg)
	} else {
		fmt.Fprintf(os.Stderr, "slotrunner crashed. Details logged to %s\n", panicLogFile)
	}
	osExit(2)
}
