// Package pipeline executes workflow steps against a case directory.
//
// The Executor is a plain sequential task runner. Each step is awaited
// before the next one starts. The first failed required step stops the
// run and every remaining step is reported as skipped. Steps marked
// `required: false` may fail without stopping the run; they are reported
// as ignored. Cancelling the context kills the running utility and skips
// the rest.
//
// Besides external utilities, three built-in actions operate on the case
// directory: RemoveIfExists, CopyFile and TouchFile. All of them refuse
// paths outside the case.
package pipeline
