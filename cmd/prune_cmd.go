package cmd

import (
	"github.com/spf13/cobra"

	"github.com/kebairia/dockdump/internal/operations"
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Apply retention to the required containers without dumping",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		// Pruning never touches the container runtime.
		om, err := operations.NewOperationManager(cfg, nil, operations.WithLogger(log))
		if err != nil {
			return err
		}
		if failed := om.PruneAll(); failed > 0 {
			return exitCodeError{code: operations.ExitBackupFailed}
		}
		return nil
	},
}

func init() {
	addSelectionFlags(pruneCmd.Flags())
}
