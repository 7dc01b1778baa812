// Package model defines the domain types and value objects for the
// caserun CLI.
//
// This package contains pure data structures with no external dependencies.
// A Workflow is an ordered list of Steps; running it produces a RunSummary
// made of StepResults. Nothing here is persisted by caserun itself; all
// durable state lives in the case directory and is owned by the solver.
//
// The package also defines exit codes (ExitCode) and a custom error type
// (CLIError) that carries exit codes for proper OS process exit handling.
package model
