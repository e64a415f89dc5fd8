package docker

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// stderrLimit bounds how much of a failing command's stderr is kept for the error message.
const stderrLimit = 4096

// Client implements Runtime using the Docker Engine API.
type Client struct {
	api *client.Client
}

var _ Runtime = (*Client)(nil)

// Option customises the Docker API client.
type Option func(*[]client.Opt)

// WithHost points the client at a specific daemon address instead of DOCKER_HOST.
func WithHost(host string) Option {
	return func(opts *[]client.Opt) {
		if host != "" {
			*opts = append(*opts, client.WithHost(host))
		}
	}
}

// WithVersion pins the API version and skips negotiation.
func WithVersion(version string) Option {
	return func(opts *[]client.Opt) {
		if version != "" {
			*opts = append(*opts, client.WithVersion(version))
		}
	}
}

// NewClient creates a Docker client configured from the environment.
func NewClient(opts ...Option) (*Client, error) {
	clientOpts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	for _, opt := range opts {
		opt(&clientOpts)
	}
	api, err := client.NewClientWithOpts(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &Client{api: api}, nil
}

// Close releases the underlying transport.
func (c *Client) Close() error {
	return c.api.Close()
}

// ListContainers returns every container known to the daemon, running or not.
func (c *Client) ListContainers(ctx context.Context) ([]Container, error) {
	list, err := c.api.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	result := make([]Container, 0, len(list))
	for _, ct := range list {
		name := ""
		if len(ct.Names) > 0 {
			name = strings.TrimPrefix(ct.Names[0], "/")
		}
		result = append(result, Container{
			ID:     ct.ID,
			Name:   name,
			Image:  ct.Image,
			Status: MapStatus(string(ct.State)),
		})
	}
	return result, nil
}

// Env returns the environment the container was started with.
func (c *Client) Env(ctx context.Context, id string) (map[string]string, error) {
	info, err := c.api.ContainerInspect(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("inspect container %s: %w", id, err)
	}
	if info.Config == nil {
		return map[string]string{}, nil
	}
	return ParseEnv(info.Config.Env), nil
}

// Exec runs a command inside a running container. stdout receives the
// demultiplexed standard output. A non-zero exit is reported as *ExitError
// carrying the tail of standard error.
func (c *Client) Exec(
	ctx context.Context,
	id string,
	req ExecRequest,
	stdout io.Writer,
) (int, error) {
	created, err := c.api.ContainerExecCreate(ctx, id, container.ExecOptions{
		User:         req.User,
		Env:          req.Env,
		Cmd:          req.Cmd,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return -1, fmt.Errorf("%w: create exec in %s: %v", ErrExec, id, err)
	}

	resp, err := c.api.ContainerExecAttach(ctx, created.ID, container.ExecStartOptions{})
	if err != nil {
		return -1, fmt.Errorf("%w: attach exec in %s: %v", ErrExec, id, err)
	}
	defer resp.Close()

	// The hijacked connection ignores ctx, so close it on cancellation to
	// unblock the copy below.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			resp.Close()
		case <-done:
		}
	}()

	stderr := &tailBuffer{limit: stderrLimit}
	if _, err := stdcopy.StdCopy(stdout, stderr, resp.Reader); err != nil {
		if ctxErr := context.Cause(ctx); ctxErr != nil {
			return -1, fmt.Errorf("%w: stream exec output: %w", ErrExec, ctxErr)
		}
		return -1, fmt.Errorf("%w: stream exec output: %v", ErrExec, err)
	}
	if ctxErr := context.Cause(ctx); ctxErr != nil {
		return -1, fmt.Errorf("%w: %w", ErrExec, ctxErr)
	}

	code, err := c.exitCode(ctx, created.ID)
	if err != nil {
		return -1, err
	}
	if code != 0 {
		return code, &ExitError{Code: code, Stderr: strings.TrimSpace(stderr.String())}
	}
	return code, nil
}

// exitCode waits for the exec process to be reported as finished.
func (c *Client) exitCode(ctx context.Context, execID string) (int, error) {
	for {
		inspect, err := c.api.ContainerExecInspect(ctx, execID)
		if err != nil {
			return -1, fmt.Errorf("%w: inspect exec %s: %v", ErrExec, execID, err)
		}
		if !inspect.Running {
			return inspect.ExitCode, nil
		}
		select {
		case <-ctx.Done():
			return -1, fmt.Errorf("%w: %w", ErrExec, context.Cause(ctx))
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// ExitError reports a command that ran but exited non-zero.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("exit code %d", e.Code)
	}
	return fmt.Sprintf("exit code %d: %s", e.Code, e.Stderr)
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	limit int
	buf   []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string { return string(t.buf) }
