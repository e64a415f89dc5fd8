package database

import (
	"errors"

	"github.com/kebairia/dockdump/internal/docker"
)

var (
	ErrTimeout = errors.New("operation timed out")
	// ErrDetection means no supported dump utility was found in the container.
	ErrDetection = errors.New("unsupported or undetected database engine")
	// ErrCredentials means the container environment lacks the variables the engine needs.
	ErrCredentials = errors.New("missing database credentials")
	// ErrDumpExecution means the dump utility failed to run or exited non-zero.
	ErrDumpExecution = errors.New("dump execution failed")
	// ErrEmptyDump means the dump utility succeeded but wrote nothing.
	ErrEmptyDump = errors.New("dump produced no output")
)

// Strategy knows how to recognise and dump one database engine.
type Strategy interface {
	// Engine is the engine name used in logs and reports.
	Engine() string
	// Binary is the dump utility whose presence identifies the engine.
	Binary() string
	// Command builds the dump invocation from the container's environment.
	Command(env map[string]string) (docker.ExecRequest, error)
}

// DefaultStrategies is the detection order: MariaDB, MySQL, PostgreSQL.
func DefaultStrategies() []Strategy {
	return []Strategy{MariaDB{}, MySQL{}, Postgres{}}
}
