package docker_test

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kebairia/dockdump/internal/docker"
	"github.com/kebairia/dockdump/internal/docker/dockertest"
)

func TestHasCommand(t *testing.T) {
	rt := &dockertest.Fake{Binaries: map[string][]string{"a1": {"pg_dumpall"}}}
	ctx := context.Background()

	ok, err := docker.HasCommand(ctx, rt, "a1", "pg_dumpall")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = docker.HasCommand(ctx, rt, "a1", "mysqldump")
	require.NoError(t, err)
	assert.False(t, ok)
}

// unreachable fails every exec before the command starts.
type unreachable struct{ dockertest.Fake }

func (*unreachable) Exec(context.Context, string, docker.ExecRequest, io.Writer) (int, error) {
	return -1, docker.ErrExec
}

func TestHasCommandTransportError(t *testing.T) {
	ok, err := docker.HasCommand(context.Background(), &unreachable{}, "a1", "pg_dumpall")
	require.ErrorIs(t, err, docker.ErrExec)
	assert.False(t, ok)
}

func TestContainerRunning(t *testing.T) {
	assert.True(t, docker.Container{Status: docker.StatusRunning}.Running())
	assert.False(t, docker.Container{Status: docker.StatusExited}.Running())
}
