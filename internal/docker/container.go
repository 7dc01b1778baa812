package docker

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/pkg/stdcopy"
	"go.uber.org/zap"

	"github.com/shinji-kodama/caserun/internal/model"
	"github.com/shinji-kodama/caserun/internal/solver"
)

// CaseMountPath is where the case directory appears inside the container.
const CaseMountPath = "/case"

// removeTimeout bounds the cleanup of a step container. Cleanup runs on a
// fresh context because the run context may already be cancelled.
const removeTimeout = 30 * time.Second

// stderrTailSize matches the local runner's diagnostic window.
const stderrTailSize = 4096

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9_.]+`)

// ContainerRunner implements solver.Runner by running each invocation in
// a fresh container of Image with the case directory bind-mounted at
// CaseMountPath.
type ContainerRunner struct {
	// Client is the Docker client.
	Client *Client

	// Image has the solver suite installed.
	Image string

	// Pull pulls Image before the first step.
	Pull bool

	// RunID, Workflow are recorded in the container labels.
	RunID    string
	Workflow string

	// Logger receives container lifecycle records. Defaults to a no-op.
	Logger *zap.Logger

	mu      sync.Mutex
	pulled  bool
	counter int
}

// Run creates, starts and waits for one step container, then removes it.
// The invocation directory must be the host case directory.
func (r *ContainerRunner) Run(ctx context.Context, inv solver.Invocation) (*solver.Result, error) {
	start := time.Now()
	result := &solver.Result{ExitCode: -1}
	log := r.logger()

	if err := r.ensureImage(ctx); err != nil {
		result.Duration = time.Since(start)
		return result, err
	}

	hostDir, err := filepath.Abs(inv.Dir)
	if err != nil {
		result.Duration = time.Since(start)
		return result, fmt.Errorf("failed to resolve case directory %s: %w", inv.Dir, err)
	}

	cfg := &container.Config{
		Image:        r.Image,
		Cmd:          append([]string{inv.Name}, inv.Args...),
		WorkingDir:   CaseMountPath,
		Env:          inv.Env,
		User:         hostUser(),
		AttachStdout: true,
		AttachStderr: true,
		Labels: BuildLabels(RunLabels{
			RunID:     r.RunID,
			CaseDir:   hostDir,
			Workflow:  r.Workflow,
			Step:      inv.Step,
			CreatedAt: time.Now(),
		}),
	}
	hostCfg := &container.HostConfig{
		Mounts: []mount.Mount{{
			Type:   mount.TypeBind,
			Source: hostDir,
			Target: CaseMountPath,
		}},
	}

	name := r.nextName(inv.Step)
	created, err := r.Client.inner.ContainerCreate(ctx, cfg, hostCfg, nil, nil, name)
	if err != nil {
		result.Duration = time.Since(start)
		return result, model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to create container for %s", inv.Name),
			err,
		)
	}
	log = log.With(zap.String("container", name), zap.String("containerId", shortID(created.ID)))
	log.Debug("container created", zap.Strings("cmd", cfg.Cmd))

	defer func() {
		rmCtx, cancel := context.WithTimeout(context.Background(), removeTimeout)
		defer cancel()
		if err := r.Client.inner.ContainerRemove(rmCtx, created.ID, container.RemoveOptions{Force: true}); err != nil {
			log.Warn("failed to remove container", zap.Error(err))
			return
		}
		log.Debug("container removed")
	}()

	if err := r.Client.inner.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		result.Duration = time.Since(start)
		if strings.Contains(err.Error(), "executable file not found") {
			result.ExitCode = solver.ExitCodeNotFound
			return result, fmt.Errorf("%s not found in image %s: %w", inv.Name, r.Image, err)
		}
		return result, fmt.Errorf("failed to start container for %s: %w", inv.Name, err)
	}

	tail := solver.NewTailBuffer(stderrTailSize)
	logsDone := make(chan error, 1)
	logs, err := r.Client.inner.ContainerLogs(ctx, created.ID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		logsDone <- err
	} else {
		go func() {
			defer func() { _ = logs.Close() }()
			_, copyErr := stdcopy.StdCopy(
				writerOrDiscard(inv.Stdout),
				io.MultiWriter(writerOrDiscard(inv.Stderr), tail),
				logs,
			)
			logsDone <- copyErr
		}()
	}

	statusCh, errCh := r.Client.inner.ContainerWait(ctx, created.ID, container.WaitConditionNotRunning)

	var status container.WaitResponse
	var waitErr error
	select {
	case status = <-statusCh:
	case waitErr = <-errCh:
	case <-ctx.Done():
		waitErr = ctx.Err()
	}

	// Log streaming ends when the container stops or ctx is cancelled.
	if logErr := <-logsDone; logErr != nil && ctx.Err() == nil {
		log.Debug("log streaming ended with error", zap.Error(logErr))
	}

	result.StderrTail = tail.String()
	result.Duration = time.Since(start)

	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, fmt.Errorf("%s interrupted: %w", inv.Name, ctxErr)
	}
	if waitErr != nil {
		return result, fmt.Errorf("failed waiting for container of %s: %w", inv.Name, waitErr)
	}
	if status.Error != nil && status.Error.Message != "" {
		return result, fmt.Errorf("container of %s failed: %s", inv.Name, status.Error.Message)
	}

	result.ExitCode = int(status.StatusCode)
	if result.ExitCode != 0 {
		return result, fmt.Errorf("%s exited with code %d", inv.Name, result.ExitCode)
	}
	return result, nil
}

// ensureImage pulls the image once per runner when Pull is set.
func (r *ContainerRunner) ensureImage(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.Pull || r.pulled {
		return nil
	}

	r.logger().Info("pulling image", zap.String("image", r.Image))
	rc, err := r.Client.inner.ImagePull(ctx, r.Image, image.PullOptions{})
	if err != nil {
		return model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to pull image %s", r.Image),
			err,
		)
	}
	defer func() { _ = rc.Close() }()

	// The pull only completes once the progress stream is drained.
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return fmt.Errorf("failed to pull image %s: %w", r.Image, err)
	}
	r.pulled = true
	return nil
}

// nextName returns a unique, Docker-safe container name for a step.
func (r *ContainerRunner) nextName(step string) string {
	r.mu.Lock()
	r.counter++
	n := r.counter
	r.mu.Unlock()

	slug := strings.Trim(unsafeNameChars.ReplaceAllString(step, "-"), "-.")
	if slug == "" {
		slug = "step"
	}
	return fmt.Sprintf("caserun-%s-%02d-%s", shortID(r.RunID), n, slug)
}

func (r *ContainerRunner) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

// hostUser returns "uid:gid" on Unix hosts so files written into the
// bind-mounted case stay owned by the invoking user.
func hostUser() string {
	if runtime.GOOS == "windows" {
		return ""
	}
	uid, gid := os.Getuid(), os.Getgid()
	if uid < 0 || gid < 0 {
		return ""
	}
	return fmt.Sprintf("%d:%d", uid, gid)
}

func shortID(id string) string {
	id = strings.ReplaceAll(id, "-", "")
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func writerOrDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}

// ListManagedContainers returns every container (running or not) that
// carries the caserun management label. Leftovers appear here when a
// run was killed before it could remove its step container.
func ListManagedContainers(ctx context.Context, cli *Client) ([]model.ContainerInfo, error) {
	filterArgs := filters.NewArgs()
	for k, v := range FilterLabels() {
		filterArgs.Add("label", k+"="+v)
	}

	containers, err := cli.inner.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filterArgs,
	})
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitDockerNotRunning,
			"failed to list Docker containers",
			err,
		)
	}

	result := make([]model.ContainerInfo, 0, len(containers))
	for _, c := range containers {
		result = append(result, containerToInfo(c))
	}
	return result, nil
}

// containerToInfo converts a Docker API summary to model.ContainerInfo.
// Labels that fail to parse leave the run fields empty instead of hiding
// the container.
func containerToInfo(c container.Summary) model.ContainerInfo {
	name := ""
	if len(c.Names) > 0 {
		name = strings.TrimPrefix(c.Names[0], "/")
	}

	info := model.ContainerInfo{
		ContainerID:   c.ID,
		ContainerName: name,
		Image:         c.Image,
		Status:        string(c.State),
		CreatedAt:     time.Unix(c.Created, 0).UTC(),
		Labels:        c.Labels,
	}
	if rl, err := ParseLabels(c.Labels); err == nil {
		info.RunID = rl.RunID
		info.CaseDir = rl.CaseDir
		info.Step = rl.Step
		info.CreatedAt = rl.CreatedAt
	}
	return info
}

// RemoveContainer removes a container by its ID. A running container is
// only removed when force is true.
func RemoveContainer(ctx context.Context, cli *Client, containerID string, force bool) error {
	err := cli.inner.ContainerRemove(ctx, containerID, container.RemoveOptions{
		Force: force,
	})
	if err != nil {
		return model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to remove container %q", containerID),
			err,
		)
	}
	return nil
}
