package docker

import (
	"context"
	"errors"
	"io"
	"strings"
)

// ErrExec indicates that a command could not be started or streamed inside a container.
var ErrExec = errors.New("container exec failed")

// Status is the coarse runtime state of a container.
type Status string

const (
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
	StatusExited  Status = "exited"
	StatusOther   Status = "other"
)

// Container is a read-only snapshot of one container taken at the start of a run.
type Container struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Image  string `json:"image"`
	Status Status `json:"status"`
}

// Running reports whether the container is running.
func (c Container) Running() bool { return c.Status == StatusRunning }

// ExecRequest describes a command to run inside a container.
type ExecRequest struct {
	Cmd  []string
	Env  []string
	User string
}

// Runtime is the part of the container runtime the backup pipeline needs.
type Runtime interface {
	ListContainers(ctx context.Context) ([]Container, error)
	// Env returns the container's configured environment variables.
	Env(ctx context.Context, id string) (map[string]string, error)
	// Exec runs req inside the container, streaming its stdout into stdout,
	// and returns the command's exit code. A non-zero exit is also reported
	// as *ExitError.
	Exec(ctx context.Context, id string, req ExecRequest, stdout io.Writer) (int, error)
}

// HasCommand reports whether name resolves to an executable inside the container.
func HasCommand(ctx context.Context, rt Runtime, id, name string) (bool, error) {
	code, err := rt.Exec(ctx, id, ExecRequest{
		Cmd: []string{"sh", "-c", "command -v " + name},
	}, io.Discard)
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return code == 0, nil
}

// MapStatus converts a Docker state string to a Status.
func MapStatus(state string) Status {
	switch strings.ToLower(state) {
	case "running":
		return StatusRunning
	case "exited", "dead":
		return StatusExited
	case "created", "paused":
		return StatusStopped
	default:
		return StatusOther
	}
}

// ParseEnv turns KEY=VALUE pairs into a map. Later entries win.
func ParseEnv(pairs []string) map[string]string {
	env := make(map[string]string, len(pairs))
	for _, kv := range pairs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		env[k] = v
	}
	return env
}
