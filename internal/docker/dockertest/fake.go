// Package dockertest provides an in-memory docker.Runtime for tests.
package dockertest

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/kebairia/dockdump/internal/docker"
)

// Output is what a dump command writes and how it exits.
type Output struct {
	Data     []byte
	ExitCode int
	Stderr   string
	// Err is returned as a transport failure after Data is written.
	Err error
	// Block makes the command wait for ctx cancellation after writing Data.
	Block bool
}

// Fake is a scripted docker.Runtime.
type Fake struct {
	Containers []docker.Container
	// Envs is keyed by container ID.
	Envs map[string]map[string]string
	// Binaries lists the executables present per container ID.
	Binaries map[string][]string
	// Outputs is keyed by container ID and used for every command except binary lookups.
	Outputs map[string]Output
	ListErr error

	mu    sync.Mutex
	calls []Call
}

// Call records one Exec invocation.
type Call struct {
	ContainerID string
	Request     docker.ExecRequest
}

var _ docker.Runtime = (*Fake)(nil)

func (f *Fake) ListContainers(context.Context) ([]docker.Container, error) {
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	return append([]docker.Container(nil), f.Containers...), nil
}

func (f *Fake) Env(_ context.Context, id string) (map[string]string, error) {
	env := map[string]string{}
	for k, v := range f.Envs[id] {
		env[k] = v
	}
	return env, nil
}

func (f *Fake) Exec(ctx context.Context, id string, req docker.ExecRequest, stdout io.Writer) (int, error) {
	f.mu.Lock()
	f.calls = append(f.calls, Call{ContainerID: id, Request: req})
	f.mu.Unlock()

	if len(req.Cmd) == 3 && req.Cmd[0] == "sh" && strings.HasPrefix(req.Cmd[2], "command -v ") {
		name := strings.TrimPrefix(req.Cmd[2], "command -v ")
		for _, b := range f.Binaries[id] {
			if b == name {
				return 0, nil
			}
		}
		return 1, &docker.ExitError{Code: 1}
	}

	out := f.Outputs[id]
	if len(out.Data) > 0 {
		if _, err := stdout.Write(out.Data); err != nil {
			return -1, err
		}
	}
	if out.Block {
		<-ctx.Done()
		return -1, context.Cause(ctx)
	}
	if out.Err != nil {
		return -1, out.Err
	}
	if out.ExitCode != 0 {
		return out.ExitCode, &docker.ExitError{Code: out.ExitCode, Stderr: out.Stderr}
	}
	return 0, nil
}

// Calls returns the recorded Exec invocations.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// DumpCalls returns the recorded invocations that were not binary lookups.
func (f *Fake) DumpCalls() []Call {
	var dumps []Call
	for _, c := range f.Calls() {
		if len(c.Request.Cmd) > 0 && c.Request.Cmd[0] == "sh" {
			continue
		}
		dumps = append(dumps, c)
	}
	return dumps
}
