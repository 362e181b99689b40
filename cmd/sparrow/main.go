// ============================================================================
// Sparrow - Main Entry Point
// ============================================================================
//
// File: cmd/sparrow/main.go
// Purpose: Application entry point and CLI initialization, renamed from
// _examples/ChuLiYu-raft-recovery/cmd/queue/main.go but keeping its
// version-injection and panic-recovery idiom verbatim in spirit.
//
// Version Injection:
//   go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
//
// Usage:
//   ./sparrow simulate                 # Run the discrete-event harness
//   ./sparrow simulate --mode all      # Compare batch/late/latepro
//   ./sparrow worker --listen :7000    # Start a live worker node
//   ./sparrow scheduler                # Issue jobs against configured workers
//   ./sparrow status                   # View last captured report
//
// ============================================================================

package main

import (
	"fmt"
	"os"

	"github.com/ChuLiYu/sparrow/internal/cli"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "Fatal error: %v\n", r)
			os.Exit(1)
		}
	}()

	rootCmd := cli.BuildCLI()
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
