package operations

import (
	"path/filepath"
	"time"

	"github.com/kebairia/dockdump/internal/archive"
	"github.com/kebairia/dockdump/internal/retention"
)

const (
	dateLayout      = "2006-01-02"
	timestampLayout = "2006-01-02T15:04:05"
)

// Status is the terminal state of a BackupTask.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// BackupTask records one container's backup within a run. It is filled in
// once and not modified afterwards.
type BackupTask struct {
	Container string            `json:"container"`
	Engine    string            `json:"engine,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Path      string            `json:"path"`
	Status    Status            `json:"status"`
	Error     string            `json:"error,omitempty"`
	DumpBytes int64             `json:"dump_bytes"`
	Duration  time.Duration     `json:"duration_ns"`
	Archive   *archive.Archive  `json:"archive,omitempty"`
	Retention *retention.Report `json:"retention,omitempty"`

	target string
	err    error
}

// Err returns the failure cause, or nil for a succeeded task.
func (t BackupTask) Err() error { return t.err }

func (t *BackupTask) fail(err error) {
	t.Status = StatusFailed
	t.err = err
	t.Error = err.Error()
}

func (t *BackupTask) succeed(a archive.Archive) {
	t.Status = StatusSucceeded
	t.Path = a.Path
	t.Archive = &a
}

// TargetPath returns the uncompressed archive path for a container at ts:
// {root}/{name}/{YYYY-MM-DD}/{name}-{YYYY-MM-DDTHH:MM:SS}.sql. Names sort in
// creation order for a fixed container.
func TargetPath(root, container string, ts time.Time) string {
	return filepath.Join(
		root,
		container,
		ts.Format(dateLayout),
		container+"-"+ts.Format(timestampLayout)+".sql",
	)
}
