// Package solver encodes the command-line contract of the external CFD
// solver suite and runs its utilities as child processes.
//
// Every utility (mesh generator, decomposer, solver, reconstructor,
// field-setting utility) is reached through a single launcher executable:
//
//	<launcher> [log flag] <utility> [-force] [-parallel] [-latestTime] [args...]
//
// The package does not interpret what the utilities do. It only builds the
// argument vector, launches the process with the case directory as the
// working directory, waits for it, and reports the exit code together with
// the tail of stderr for diagnostics.
//
// Process execution is hidden behind the Runner interface so that the same
// workflow can run on the host (ExecRunner) or inside a container (see the
// docker package).
package solver
