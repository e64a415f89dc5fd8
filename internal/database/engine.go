package database

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/kebairia/dockdump/internal/docker"
	"github.com/kebairia/dockdump/internal/logger"
)

// EngineOption lets you override default settings on an Engine.
type EngineOption func(*Engine)

// Engine detects the database engine inside a container and streams its dump.
type Engine struct {
	Runtime    docker.Runtime
	Strategies []Strategy
	Timeout    time.Duration
	Logger     logger.Logger
}

// NewEngine returns an Engine using the default detection order.
func NewEngine(rt docker.Runtime, opts ...EngineOption) *Engine {
	e := &Engine{
		Runtime:    rt,
		Strategies: DefaultStrategies(),
		Logger:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WithStrategies overrides the detection order.
func WithStrategies(strategies ...Strategy) EngineOption {
	return func(e *Engine) {
		if len(strategies) > 0 {
			e.Strategies = strategies
		}
	}
}

// WithTimeout bounds each dump. Zero means no limit.
func WithTimeout(timeout time.Duration) EngineOption {
	return func(e *Engine) {
		if timeout > 0 {
			e.Timeout = timeout
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log logger.Logger) EngineOption {
	return func(e *Engine) {
		if log != nil {
			e.Logger = log
		}
	}
}

// Result describes a completed dump.
type Result struct {
	Engine   string
	Bytes    int64
	Duration time.Duration
}

// Detect returns the first strategy whose dump utility exists in the container.
func (e *Engine) Detect(ctx context.Context, c docker.Container) (Strategy, error) {
	for _, s := range e.Strategies {
		ok, err := docker.HasCommand(ctx, e.Runtime, c.ID, s.Binary())
		if err != nil {
			return nil, fmt.Errorf("%w: look up %s: %v", ErrDetection, s.Binary(), err)
		}
		if ok {
			return s, nil
		}
	}
	return nil, ErrDetection
}

// Dump writes the SQL dump of container c into w. It never panics; every
// failure is returned wrapped around one of the package sentinels.
func (e *Engine) Dump(ctx context.Context, c docker.Container, w io.Writer) (Result, error) {
	log := e.Logger.With("container", c.Name)

	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, e.Timeout, ErrTimeout)
		defer cancel()
	}

	strategy, err := e.Detect(ctx, c)
	if err != nil {
		return Result{}, err
	}
	res := Result{Engine: strategy.Engine()}

	env, err := e.Runtime.Env(ctx, c.ID)
	if err != nil {
		return res, fmt.Errorf("%w: read environment: %v", ErrDumpExecution, err)
	}
	req, err := strategy.Command(env)
	if err != nil {
		return res, err
	}

	log.Info("dump started", "engine", res.Engine, "command", req.Cmd[0])

	counter := &countingWriter{w: w}
	start := time.Now()
	_, err = e.Runtime.Exec(ctx, c.ID, req, counter)
	res.Duration = time.Since(start)
	res.Bytes = counter.n

	var exitErr *docker.ExitError
	switch {
	case errors.As(err, &exitErr):
		return res, fmt.Errorf("%w: %s: %v", ErrDumpExecution, req.Cmd[0], exitErr)
	case err != nil:
		if cause := context.Cause(ctx); cause != nil {
			return res, fmt.Errorf("%w: %s: %w", ErrDumpExecution, req.Cmd[0], cause)
		}
		return res, fmt.Errorf("%w: %s: %w", ErrDumpExecution, req.Cmd[0], err)
	case res.Bytes == 0:
		return res, fmt.Errorf("%w: %s", ErrEmptyDump, req.Cmd[0])
	}

	log.Info("dump completed",
		"engine", res.Engine,
		"size", humanize.Bytes(uint64(res.Bytes)),
		"duration", res.Duration.String(),
	)
	return res, nil
}

// countingWriter counts bytes that reach the underlying writer.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
