// Package operations drives a backup run: inventory, selection, one
// dump-commit-prune task per container, then heartbeats and the run report.
package operations

import (
	"context"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/kebairia/dockdump/internal/archive"
	"github.com/kebairia/dockdump/internal/config"
	"github.com/kebairia/dockdump/internal/database"
	"github.com/kebairia/dockdump/internal/docker"
	"github.com/kebairia/dockdump/internal/heartbeat"
	"github.com/kebairia/dockdump/internal/logger"
	"github.com/kebairia/dockdump/internal/retention"
	"github.com/kebairia/dockdump/internal/selection"
	"github.com/kebairia/dockdump/internal/vault"
)

// HeartbeatSource supplies heartbeat URLs kept outside the config file.
type HeartbeatSource interface {
	GetHeartbeats(ctx context.Context, path string) (vault.Heartbeats, error)
}

// Option lets you override default settings on an OperationManager.
type Option func(*OperationManager)

// OperationManager owns the components of a run. It holds no state between
// runs; every Run starts from a fresh inventory.
type OperationManager struct {
	cfg     config.Config
	runtime docker.Runtime
	engine  *database.Engine
	writer  *archive.Writer
	pruner  *retention.Pruner
	log     logger.Logger

	secrets      HeartbeatSource
	notifierOpts []heartbeat.Option
	strategies   []database.Strategy
	now          func() time.Time
	newRunID     func() string
}

// WithLogger sets the logger used by every component.
func WithLogger(log logger.Logger) Option {
	return func(om *OperationManager) {
		if log != nil {
			om.log = log
		}
	}
}

// WithClock overrides the time source used for task timestamps.
func WithClock(now func() time.Time) Option {
	return func(om *OperationManager) { om.now = now }
}

// WithHeartbeatSource replaces the Vault client built from the configuration.
func WithHeartbeatSource(src HeartbeatSource) Option {
	return func(om *OperationManager) { om.secrets = src }
}

// WithNotifierOptions is passed through to heartbeat.New.
func WithNotifierOptions(opts ...heartbeat.Option) Option {
	return func(om *OperationManager) { om.notifierOpts = append(om.notifierOpts, opts...) }
}

// WithStrategies overrides the engine detection order.
func WithStrategies(strategies ...database.Strategy) Option {
	return func(om *OperationManager) { om.strategies = strategies }
}

// NewOperationManager wires the pipeline for cfg. cfg is expected to be
// validated; an unknown compressor name is the only error reported here.
func NewOperationManager(cfg config.Config, rt docker.Runtime, opts ...Option) (*OperationManager, error) {
	om := &OperationManager{
		cfg:      cfg,
		runtime:  rt,
		log:      logger.Nop(),
		now:      time.Now,
		newRunID: func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(om)
	}

	compressor, err := archive.Select(cfg.Backup.Compressors)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrValidateConfig, err)
	}

	om.engine = database.NewEngine(rt,
		database.WithStrategies(om.strategies...),
		database.WithTimeout(cfg.Backup.Timeout),
		database.WithLogger(om.log),
	)
	om.writer = archive.NewWriter(compressor, om.log)
	om.pruner = retention.New(cfg.Backup.Directory, cfg.Retention.Keep, om.log)
	return om, nil
}

// Run performs one backup run. It never returns early on a per-container
// failure; the outcome records everything that happened.
func (om *OperationManager) Run(ctx context.Context) RunOutcome {
	out := RunOutcome{RunID: om.newRunID(), StartedAt: om.now()}
	log := om.log.With("run_id", out.RunID)
	log.Info("backup run started",
		"containers", len(om.cfg.Containers.Required),
		"directory", om.cfg.Backup.Directory,
		"compressor", om.writer.Compressor.Name(),
	)

	inventory, err := om.runtime.ListContainers(ctx)
	if err != nil {
		// Every required container is then reported as missing.
		log.Error("container inventory failed", "error", err.Error())
	}

	sel := selection.Select(inventory, om.cfg.Containers, log)
	out.SelectionErrors = sel.Errors

	for _, c := range sel.Work {
		if cause := context.Cause(ctx); cause != nil {
			task := om.newTask(c)
			task.fail(fmt.Errorf("run interrupted: %w", cause))
			log.Error("backup skipped", "container", c.Name, "error", task.Error)
			out.Tasks = append(out.Tasks, task)
			continue
		}
		out.Tasks = append(out.Tasks, om.BackupContainer(ctx, c, log))
	}

	// Heartbeats still go out after an interrupt.
	notifyCtx := context.WithoutCancel(ctx)
	if err := om.notify(notifyCtx, out.Succeeded(), log); err != nil {
		out.NotifyFailed = true
	}
	out.FinishedAt = om.now()

	if om.cfg.Backup.Report {
		path, err := WriteReport(om.cfg.Backup.Directory, out)
		if err != nil {
			log.Error("run report not written", "error", err.Error())
		} else {
			log.Debug("run report written", "path", path)
		}
	}

	log.Info("backup run finished",
		"succeeded", len(out.Tasks)-out.Failed(),
		"failed", out.Failed(),
		"selection_errors", out.SelectionErrors,
		"notify_failed", out.NotifyFailed,
		"exit_code", out.ExitCode(),
	)
	return out
}

// BackupContainer dumps c into a new archive and applies retention to its
// directory. Retention runs whether or not the dump succeeded.
func (om *OperationManager) BackupContainer(ctx context.Context, c docker.Container, log logger.Logger) BackupTask {
	log = log.With("container", c.Name)
	task := om.newTask(c)

	var res database.Result
	start := time.Now()
	arc, err := om.writer.Commit(ctx, task.target, func(ctx context.Context, w io.Writer) error {
		var err error
		res, err = om.engine.Dump(ctx, c, w)
		return err
	})
	task.Engine = res.Engine
	task.DumpBytes = res.Bytes
	task.Duration = time.Since(start)

	if err != nil {
		task.fail(err)
		log.Error("backup failed", "engine", task.Engine, "error", task.Error)
	} else {
		task.succeed(arc)
		log.Info("backup succeeded",
			"engine", task.Engine,
			"path", arc.Path,
			"size", humanize.Bytes(uint64(arc.Size)),
			"duration", task.Duration.String(),
		)
	}

	report, err := om.pruner.Prune(c.Name)
	task.Retention = &report
	if err != nil {
		log.Warn("retention incomplete", "error", err.Error())
	}
	if n := len(report.Removed); n > 0 {
		log.Info("old archives removed", "count", n, "kept", len(report.Kept))
	}
	return task
}

// PruneAll runs a retention pass for every required container without
// dumping anything. It returns the number of passes that reported errors.
func (om *OperationManager) PruneAll() int {
	failed := 0
	for _, name := range om.cfg.Containers.Required {
		report, err := om.pruner.Prune(name)
		if err != nil {
			om.log.Error("retention failed", "container", name, "error", err.Error())
			failed++
			continue
		}
		om.log.Info("retention applied",
			"container", name,
			"kept", len(report.Kept),
			"removed", len(report.Removed),
			"parts_removed", len(report.PartsRemoved),
		)
	}
	return failed
}

func (om *OperationManager) newTask(c docker.Container) BackupTask {
	ts := om.now()
	target := TargetPath(om.cfg.Backup.Directory, c.Name, ts)
	return BackupTask{
		Container: c.Name,
		Timestamp: ts,
		Path:      om.writer.FinalPath(target),
		target:    target,
	}
}

// notify pings the heartbeat endpoints for the outcome. A failure to fetch
// URLs from Vault counts as a delivery failure; the configured URLs are
// still attempted.
func (om *OperationManager) notify(ctx context.Context, success bool, log logger.Logger) error {
	hb, srcErr := om.heartbeats(ctx)
	if srcErr != nil {
		log.Error("heartbeat urls unavailable", "error", srcErr.Error())
	}
	notifier := heartbeat.New(hb, log, om.notifierOpts...)
	if err := notifier.Notify(ctx, success); err != nil {
		return err
	}
	return srcErr
}

// heartbeats returns the configured heartbeat endpoints merged with those
// stored in Vault, if a path is configured.
func (om *OperationManager) heartbeats(ctx context.Context) (config.HeartbeatConfig, error) {
	hb := om.cfg.Heartbeat
	if om.cfg.Vault.HeartbeatPath == "" {
		return hb, nil
	}

	src := om.secrets
	if src == nil {
		client, err := vault.NewClient(ctx,
			vault.WithAddress(om.cfg.Vault.Address),
			vault.WithAppRole(om.cfg.Vault.RoleID, om.cfg.Vault.RoleName),
		)
		if err != nil {
			return hb, err
		}
		src = client
	}

	extra, err := src.GetHeartbeats(ctx, om.cfg.Vault.HeartbeatPath)
	if err != nil {
		return hb, err
	}
	hb.Success = append(slices.Clone(hb.Success), extra.Success...)
	hb.Failure = append(slices.Clone(hb.Failure), extra.Failure...)
	hb.Always = append(slices.Clone(hb.Always), extra.Always...)
	return hb, nil
}
