package operations

import "time"

// Process exit codes.
const (
	ExitOK           = 0
	ExitBackupFailed = 1
	ExitSelection    = 2
	ExitNotify       = 120
	ExitUsage        = 127
)

// RunOutcome aggregates every task of a run plus the run-level errors.
type RunOutcome struct {
	RunID           string       `json:"run_id"`
	StartedAt       time.Time    `json:"started_at"`
	FinishedAt      time.Time    `json:"finished_at"`
	SelectionErrors int          `json:"selection_errors"`
	Tasks           []BackupTask `json:"tasks"`
	NotifyFailed    bool         `json:"notify_failed"`
}

// Failed returns the number of failed tasks.
func (o RunOutcome) Failed() int {
	n := 0
	for _, t := range o.Tasks {
		if t.Status != StatusSucceeded {
			n++
		}
	}
	return n
}

// Succeeded reports whether every required container was backed up.
// Heartbeat delivery is not considered.
func (o RunOutcome) Succeeded() bool {
	return o.SelectionErrors == 0 && o.Failed() == 0
}

// ExitCode maps the outcome onto the process exit status. Selection errors
// outrank task failures; a heartbeat failure only shows when the backups
// themselves succeeded.
func (o RunOutcome) ExitCode() int {
	switch {
	case o.SelectionErrors > 0:
		return ExitSelection
	case o.Failed() > 0:
		return ExitBackupFailed
	case o.NotifyFailed:
		return ExitNotify
	default:
		return ExitOK
	}
}
