package selection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kebairia/dockdump/internal/config"
	"github.com/kebairia/dockdump/internal/docker"
	"github.com/kebairia/dockdump/internal/logger"
)

func ct(name, image string, status docker.Status) docker.Container {
	return docker.Container{ID: name + "-id", Name: name, Image: image, Status: status}
}

func names(cs []docker.Container) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.Name)
	}
	return out
}

func TestIsDatabaseImage(t *testing.T) {
	for _, img := range []string{"postgres:16", "library/mysql:8", "mariadb:11", "bitnami/postgresql", "ghcr.io/x/MariaDB"} {
		assert.True(t, IsDatabaseImage(img), img)
	}
	for _, img := range []string{"redis:7", "nginx", "mongo:7", ""} {
		assert.False(t, IsDatabaseImage(img), img)
	}
}

func TestSelect(t *testing.T) {
	inventory := []docker.Container{
		ct("web", "nginx:1.27", docker.StatusRunning),
		ct("db10", "postgres:16", docker.StatusRunning),
		ct("db1", "postgres:16", docker.StatusRunning),
		ct("db2", "mariadb:11", docker.StatusExited),
		ct("legacy", "mysql:5.7", docker.StatusRunning),
		ct("scratch", "postgres:15", docker.StatusRunning),
	}

	core, logs := observer.New(zapcore.DebugLevel)
	res := Select(inventory, config.ContainersConfig{
		Required: []string{"db10", "db1", "db2", "missing", "web"},
		Skip:     []string{"scratch"},
	}, logger.New(zap.New(core)))

	assert.Equal(t, []string{"db10", "db1"}, names(res.Work))
	// db2 exited, missing absent, web is not a database image
	assert.Equal(t, 3, res.Errors)

	warns := logs.FilterLevelExact(zapcore.WarnLevel).All()
	require.Len(t, warns, 1)
	assert.Equal(t, "legacy", warns[0].ContextMap()["container"])

	errs := logs.FilterLevelExact(zapcore.ErrorLevel).All()
	require.Len(t, errs, 3)
	assert.Equal(t, "required container not running", errs[0].Message)
	assert.Equal(t, "db2", errs[0].ContextMap()["container"])
	assert.Equal(t, "required container not found", errs[1].Message)
	assert.Equal(t, "missing", errs[1].ContextMap()["container"])
	assert.Equal(t, "required container image not supported", errs[2].Message)
	assert.Equal(t, "web", errs[2].ContextMap()["container"])
	assert.Equal(t, "nginx:1.27", errs[2].ContextMap()["image"])
}

func TestSelectNonDatabaseNeverSelected(t *testing.T) {
	inventory := []docker.Container{
		ct("cache", "redis:7", docker.StatusRunning),
		ct("queue", "rabbitmq:3", docker.StatusRunning),
	}
	core, logs := observer.New(zapcore.DebugLevel)
	res := Select(inventory, config.ContainersConfig{Required: []string{"cache", "queue"}}, logger.New(zap.New(core)))
	assert.Empty(t, res.Work)
	assert.Equal(t, 2, res.Errors)

	unsupported := logs.FilterMessage("required container image not supported").All()
	require.Len(t, unsupported, 2)
	assert.Equal(t, "redis:7", unsupported[0].ContextMap()["image"])
	assert.Equal(t, "rabbitmq:3", unsupported[1].ContextMap()["image"])
	assert.Zero(t, logs.FilterMessage("required container not found").Len())
}

func TestSelectExactNames(t *testing.T) {
	inventory := []docker.Container{ct("db10", "postgres:16", docker.StatusRunning)}
	res := Select(inventory, config.ContainersConfig{Required: []string{"db1"}}, logger.Nop())
	assert.Empty(t, res.Work)
	assert.Equal(t, 1, res.Errors)
}

func TestSelectSkipWinsWithoutWarning(t *testing.T) {
	inventory := []docker.Container{ct("db1", "postgres:16", docker.StatusRunning)}
	core, logs := observer.New(zapcore.InfoLevel)
	res := Select(inventory, config.ContainersConfig{Skip: []string{"db1"}}, logger.New(zap.New(core)))
	assert.Empty(t, res.Work)
	assert.Zero(t, res.Errors)
	assert.Zero(t, logs.Len())
}
