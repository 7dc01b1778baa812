package docker

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/shinji-kodama/caserun/internal/model"
	"github.com/shinji-kodama/caserun/internal/solver"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type createCall struct {
	config  *container.Config
	host    *container.HostConfig
	name    string
	created string
}

// fakeEngine is an in-memory Docker engine. Every container prints
// stdout/stderr and exits with exitCode unless block is set, in which case
// it runs until the context is cancelled.
type fakeEngine struct {
	mu sync.Mutex

	stdout   string
	stderr   string
	exitCode int64
	block    bool

	pingErr   error
	createErr error
	startErr  error
	listed    []container.Summary

	creates  []createCall
	removed  []container.RemoveOptions
	rmIDs    []string
	pulls    []string
	listOpts container.ListOptions
	closed   bool
}

func (f *fakeEngine) Ping(ctx context.Context) (types.Ping, error) {
	return types.Ping{}, f.pingErr
}

func (f *fakeEngine) ImagePull(ctx context.Context, ref string, options image.PullOptions) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pulls = append(f.pulls, ref)
	return io.NopCloser(bytes.NewBufferString(`{"status":"Pull complete"}`)), nil
}

func (f *fakeEngine) ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig,
	networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return container.CreateResponse{}, f.createErr
	}
	id := "c0ffee" + containerName
	f.creates = append(f.creates, createCall{config: config, host: hostConfig, name: containerName, created: id})
	return container.CreateResponse{ID: id}, nil
}

func (f *fakeEngine) ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error {
	return f.startErr
}

func (f *fakeEngine) ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error) {
	statusCh := make(chan container.WaitResponse, 1)
	errCh := make(chan error, 1)
	if f.block {
		go func() {
			<-ctx.Done()
			errCh <- ctx.Err()
		}()
		return statusCh, errCh
	}
	statusCh <- container.WaitResponse{StatusCode: f.exitCode}
	return statusCh, errCh
}

func (f *fakeEngine) ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error) {
	if f.block {
		pr, pw := io.Pipe()
		go func() {
			<-ctx.Done()
			_ = pw.CloseWithError(ctx.Err())
		}()
		return pr, nil
	}

	var buf bytes.Buffer
	if f.stdout != "" {
		_, _ = stdcopy.NewStdWriter(&buf, stdcopy.Stdout).Write([]byte(f.stdout))
	}
	if f.stderr != "" {
		_, _ = stdcopy.NewStdWriter(&buf, stdcopy.Stderr).Write([]byte(f.stderr))
	}
	return io.NopCloser(&buf), nil
}

func (f *fakeEngine) ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listOpts = options
	return f.listed, nil
}

func (f *fakeEngine) ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rmIDs = append(f.rmIDs, containerID)
	f.removed = append(f.removed, options)
	return nil
}

func (f *fakeEngine) Close() error {
	f.closed = true
	return nil
}

// newTestRunner wires a ContainerRunner to a fake engine.
func newTestRunner(f *fakeEngine) *ContainerRunner {
	return &ContainerRunner{
		Client:   &Client{inner: f},
		Image:    "caelus/caelus:9.04",
		RunID:    "6f1c2b1e-93a4-4c0e-9d55-0d1e5f7b8a90",
		Workflow: "damBreak",
	}
}

// TestContainerRunner_Success checks the container config and output demux.
func TestContainerRunner_Success(t *testing.T) {
	f := &fakeEngine{stdout: "Mesh OK\n", stderr: "warning: non-orthogonal faces\n"}
	r := newTestRunner(f)
	caseDir := t.TempDir()

	var stdout, stderr bytes.Buffer
	res, err := r.Run(context.Background(), solver.Invocation{
		Dir:    caseDir,
		Name:   "caelus.py",
		Args:   []string{"-l", "blockMesh"},
		Env:    []string{"OMP_NUM_THREADS=1"},
		Stdout: &stdout,
		Stderr: &stderr,
		Step:   "mesh",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "Mesh OK\n", stdout.String())
	assert.Equal(t, "warning: non-orthogonal faces\n", stderr.String())
	assert.Contains(t, res.StderrTail, "non-orthogonal")

	require.Len(t, f.creates, 1)
	call := f.creates[0]
	assert.Equal(t, "caelus/caelus:9.04", call.config.Image)
	assert.Equal(t, []string{"caelus.py", "-l", "blockMesh"}, []string(call.config.Cmd))
	assert.Equal(t, CaseMountPath, call.config.WorkingDir)
	assert.Equal(t, []string{"OMP_NUM_THREADS=1"}, call.config.Env)
	assert.Equal(t, "caserun-6f1c2b1e93a4-01-mesh", call.name)

	require.Len(t, call.host.Mounts, 1)
	assert.Equal(t, caseDir, call.host.Mounts[0].Source)
	assert.Equal(t, CaseMountPath, call.host.Mounts[0].Target)

	labels := call.config.Labels
	assert.Equal(t, ManagedByValue, labels[LabelManagedBy])
	assert.Equal(t, "6f1c2b1e-93a4-4c0e-9d55-0d1e5f7b8a90", labels[LabelRunID])
	assert.Equal(t, caseDir, labels[LabelCase])
	assert.Equal(t, "mesh", labels[LabelStep])
	assert.Equal(t, "damBreak", labels[LabelWorkflow])

	// The step container is always removed.
	assert.Equal(t, []string{call.created}, f.rmIDs)
	assert.True(t, f.removed[0].Force)
	assert.Empty(t, f.pulls)
}

// TestContainerRunner_NonZeroExit reports the container exit code.
func TestContainerRunner_NonZeroExit(t *testing.T) {
	f := &fakeEngine{stderr: "FOAM FATAL ERROR: cannot find decomposeParDict\n", exitCode: 1}
	r := newTestRunner(f)

	res, err := r.Run(context.Background(), solver.Invocation{Dir: t.TempDir(), Name: "caelus.py", Step: "decompose"})
	require.Error(t, err)
	assert.Equal(t, 1, res.ExitCode)
	assert.Contains(t, res.StderrTail, "decomposeParDict")
	assert.Contains(t, err.Error(), "exited with code 1")
	assert.Len(t, f.rmIDs, 1)
}

// TestContainerRunner_ExecutableMissing maps a start failure to 127.
func TestContainerRunner_ExecutableMissing(t *testing.T) {
	f := &fakeEngine{startErr: errors.New(`exec: "caelus.py": executable file not found in $PATH`)}
	r := newTestRunner(f)

	res, err := r.Run(context.Background(), solver.Invocation{Dir: t.TempDir(), Name: "caelus.py"})
	require.Error(t, err)
	assert.Equal(t, solver.ExitCodeNotFound, res.ExitCode)
	assert.Len(t, f.rmIDs, 1, "created container must still be removed")
}

// TestContainerRunner_CreateFails returns a docker CLIError.
func TestContainerRunner_CreateFails(t *testing.T) {
	f := &fakeEngine{createErr: errors.New("No such image: caelus/caelus:9.04")}
	r := newTestRunner(f)

	res, err := r.Run(context.Background(), solver.Invocation{Dir: t.TempDir(), Name: "caelus.py"})
	require.Error(t, err)
	assert.Equal(t, -1, res.ExitCode)

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitDockerNotRunning, cliErr.Code)
	assert.Empty(t, f.rmIDs)
}

// TestContainerRunner_Cancel stops waiting and removes the container.
func TestContainerRunner_Cancel(t *testing.T) {
	f := &fakeEngine{block: true}
	r := newTestRunner(f)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	res, err := r.Run(ctx, solver.Invocation{Dir: t.TempDir(), Name: "caelus.py", Step: "solve"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, -1, res.ExitCode)
	assert.Len(t, f.rmIDs, 1)
}

// TestContainerRunner_PullOnce pulls the image before the first step only.
func TestContainerRunner_PullOnce(t *testing.T) {
	f := &fakeEngine{}
	r := newTestRunner(f)
	r.Pull = true

	for i := 0; i < 3; i++ {
		_, err := r.Run(context.Background(), solver.Invocation{Dir: t.TempDir(), Name: "caelus.py"})
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"caelus/caelus:9.04"}, f.pulls)
	assert.Len(t, f.creates, 3)
}

// TestNextName produces unique, Docker-safe names.
func TestNextName(t *testing.T) {
	r := newTestRunner(&fakeEngine{})

	assert.Equal(t, "caserun-6f1c2b1e93a4-01-restore-alpha1", r.nextName("restore alpha1"))
	assert.Equal(t, "caserun-6f1c2b1e93a4-02-rm-rf-processor", r.nextName("rm -rf processor*"))
	assert.Equal(t, "caserun-6f1c2b1e93a4-03-step", r.nextName("***"))
}

// TestListManagedContainers filters by label and maps summaries.
func TestListManagedContainers(t *testing.T) {
	labels := BuildLabels(testLabels())
	f := &fakeEngine{listed: []container.Summary{
		{
			ID:      "abc123",
			Names:   []string{"/caserun-6f1c2b1e93a4-05-decompose"},
			Image:   "caelus/caelus:9.04",
			State:   "exited",
			Created: 1772272800,
			Labels:  labels,
		},
		{
			ID:      "def456",
			Names:   []string{"/half-labelled"},
			State:   "running",
			Created: 1772272800,
			Labels:  map[string]string{LabelManagedBy: ManagedByValue},
		},
	}}

	infos, err := ListManagedContainers(context.Background(), &Client{inner: f})
	require.NoError(t, err)
	require.Len(t, infos, 2)

	assert.True(t, f.listOpts.All)
	assert.Equal(t, []string{"caserun.managed-by=caserun"}, f.listOpts.Filters.Get("label"))

	assert.Equal(t, "abc123", infos[0].ContainerID)
	assert.Equal(t, "caserun-6f1c2b1e93a4-05-decompose", infos[0].ContainerName)
	assert.Equal(t, "exited", infos[0].Status)
	assert.Equal(t, "/home/user/run/damBreak", infos[0].CaseDir)
	assert.Equal(t, "decompose", infos[0].Step)
	assert.Equal(t, "6f1c2b1e-93a4-4c0e-9d55-0d1e5f7b8a90", infos[0].RunID)

	assert.Equal(t, "half-labelled", infos[1].ContainerName)
	assert.Empty(t, infos[1].RunID)
	assert.Equal(t, time.Unix(1772272800, 0).UTC(), infos[1].CreatedAt)
}

// TestRemoveContainer passes the force flag through.
func TestRemoveContainer(t *testing.T) {
	f := &fakeEngine{}
	require.NoError(t, RemoveContainer(context.Background(), &Client{inner: f}, "abc123", true))
	assert.Equal(t, []string{"abc123"}, f.rmIDs)
	assert.True(t, f.removed[0].Force)
}

// TestClient_Ping maps daemon errors to ExitDockerNotRunning.
func TestClient_Ping(t *testing.T) {
	c := &Client{inner: &fakeEngine{}}
	assert.NoError(t, c.Ping(context.Background()))

	c = &Client{inner: &fakeEngine{pingErr: errors.New("connection refused")}}
	err := c.Ping(context.Background())
	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitDockerNotRunning, cliErr.Code)
}

// TestClient_Close is safe on an empty client.
func TestClient_Close(t *testing.T) {
	assert.NoError(t, (&Client{}).Close())

	f := &fakeEngine{}
	require.NoError(t, (&Client{inner: f}).Close())
	assert.True(t, f.closed)
}

// TestDetectUnixSocket returns the first existing path.
func TestDetectUnixSocket(t *testing.T) {
	dir := t.TempDir()
	sock := filepath.Join(dir, "docker.sock")
	require.NoError(t, os.WriteFile(sock, nil, 0o600))

	host, err := detectUnixSocket([]string{filepath.Join(dir, "missing.sock"), sock})
	require.NoError(t, err)
	assert.Equal(t, "unix://"+sock, host)

	_, err = detectUnixSocket([]string{filepath.Join(dir, "missing.sock")})
	assert.Error(t, err)
}
