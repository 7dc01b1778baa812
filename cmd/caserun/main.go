// Package main is the entry point for the caserun CLI.
//
// caserun runs solver tutorial workflows: the sequence of meshing,
// initialization, decomposition, solver and post-processing utilities
// that each tutorial case needs. It delegates all functionality to the
// internal/cli package, which defines cobra commands.
//
// Build-time variables (version, commit, date) are injected with
// -ldflags "-X main.version=...".
package main

import (
	"github.com/shinji-kodama/caserun/internal/cli"
)

// version, commit, and date default to development values.
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
