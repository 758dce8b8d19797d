// Command stepflow runs and validates flow files.
//
//	stepflow run flows.yaml --flow triage --var ticket="disk full on db-3"
//	stepflow validate flows.yaml
//	stepflow models
//
// Settings come from flags, STEPFLOW_* environment variables, an optional
// --config file, and the settings section of the flow file, in that order.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCmd()
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
