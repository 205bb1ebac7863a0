// Package main is the entry point for the xttsdeploy CLI.
//
// xttsdeploy provisions spot GPU capacity, builds the XTTS inference
// image through a tiered fallback chain, activates it on the target
// host, and gates success on the inference endpoint answering.
//
// Commands: deploy, status, cleanup, version.
//
// For detailed usage information, run:
//
//	xttsdeploy --help
package main

import (
	"fmt"
	"os"

	"github.com/voicekit/xttsdeploy/cmd/xttsdeploy/commands"
)

// Version information set by goreleaser at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)
	if err := commands.Root().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
