package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/kebairia/dockdump/internal/config"
	"github.com/kebairia/dockdump/internal/docker"
	"github.com/kebairia/dockdump/internal/operations"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Dump every required database container",
	Example: `  dockdump backup --container db1 --container db2 --keep 7
  dockdump backup -c /etc/dockdump.yaml --hc-success https://hc-ping.com/<uuid>`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		rt, err := docker.NewClient(docker.WithHost(cfg.Docker.Host))
		if err != nil {
			return err
		}
		defer rt.Close()

		om, err := operations.NewOperationManager(cfg, rt, operations.WithLogger(log))
		if err != nil {
			return err
		}
		out := om.Run(cmd.Context())
		if code := out.ExitCode(); code != operations.ExitOK {
			return exitCodeError{code: code}
		}
		return nil
	},
}

// addSelectionFlags registers the flags shared by commands that work on
// the configured containers.
func addSelectionFlags(flags *pflag.FlagSet) {
	flags.StringSlice("container", nil, "container that must be backed up (repeatable)")
	flags.StringSlice("skip", nil, "database container to ignore without warning (repeatable)")
	flags.String("dir", config.DefaultBackupDirectory, "backup root directory")
	flags.Int("keep", config.DefaultKeep, "archives to keep per container (0 disables pruning)")
}

func init() {
	flags := backupCmd.Flags()
	addSelectionFlags(flags)
	flags.Duration("timeout", 0, "per-container dump timeout (0 means none)")
	flags.StringSlice("compressor", config.DefaultCompressors, "compressor preference: zstd, gzip, zip or none")
	flags.StringSlice("hc-success", nil, "URL to ping when every backup succeeded (repeatable)")
	flags.StringSlice("hc-failure", nil, "URL to ping when anything failed (repeatable)")
	flags.StringSlice("hc-always", nil, "URL to ping after every run (repeatable)")
}
