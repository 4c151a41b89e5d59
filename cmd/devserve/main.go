// Package main is the entry point for the devserve CLI.
//
// This binary serves the current directory over HTTP on a free port and
// publishes the port and PID for other tooling. It delegates all
// functionality to the internal/cli package, which defines the cobra
// commands.
//
// Build-time variables (version, commit, date) are injected via ldflags
// during the release process. During development, they default to "dev",
// "none", and "unknown" respectively.
package main

import (
	"github.com/shinji-kodama/devserve/internal/cli"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cli.Version = version
	cli.Commit = commit
	cli.Date = date

	rootCmd := cli.NewRootCommand()
	cli.Execute(rootCmd)
}
