package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/kebairia/dockdump/internal/config"
	"github.com/kebairia/dockdump/internal/operations"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Summarise the last run and exit with its exit code",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := operations.LoadReport(cfg.Backup.Directory)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "run %s finished %s, exit code %d\n",
			report.RunID, humanize.Time(report.FinishedAt), report.ExitCode)
		if report.SelectionErrors > 0 {
			fmt.Fprintf(w, "  %d required container(s) missing or not running\n", report.SelectionErrors)
		}
		for _, t := range report.Tasks {
			if t.Status == operations.StatusSucceeded && t.Archive != nil {
				fmt.Fprintf(w, "  %-20s %-9s %8s  %s\n",
					t.Container, t.Status, humanize.Bytes(uint64(t.Archive.Size)), t.Path)
				continue
			}
			fmt.Fprintf(w, "  %-20s %-9s %s\n", t.Container, t.Status, t.Error)
		}
		if report.NotifyFailed {
			fmt.Fprintln(w, "  heartbeat delivery failed")
		}

		if report.ExitCode != operations.ExitOK {
			return exitCodeError{code: report.ExitCode}
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().String("dir", config.DefaultBackupDirectory, "backup root directory")
}
