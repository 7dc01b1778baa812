// Package docker runs solver steps inside containers.
//
// Many users do not have the solver suite installed natively. The docker
// runtime starts one short-lived container per run step from an image
// that ships the suite, bind-mounts the case directory at /case, streams
// the output back and removes the container once the step has exited.
//
// This package handles:
//   - Docker client initialization with automatic socket detection
//     (Linux, macOS, Windows)
//   - ContainerRunner, an implementation of solver.Runner
//   - caserun.* labels recording the run, case and step on each container
//   - listing and removing containers left over by interrupted runs
//
// The package uses github.com/docker/docker/client as the underlying
// Docker SDK, with version negotiation enabled for broad compatibility.
package docker
