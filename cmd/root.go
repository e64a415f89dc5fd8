package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kebairia/dockdump/internal/config"
	"github.com/kebairia/dockdump/internal/logger"
	"github.com/kebairia/dockdump/internal/operations"
)

var (
	// ConfigFile is the path to the optional YAML configuration.
	ConfigFile string

	// cfg and log are set by the root pre-run hook for every subcommand.
	cfg config.Config
	log logger.Logger

	// rootCmd is the base command for dockdump.
	rootCmd = &cobra.Command{
		Use:   "dockdump",
		Short: "Back up database containers running on a Docker host",
		Long: `dockdump finds the MariaDB, MySQL and PostgreSQL containers you list,
streams a full SQL dump out of each one into a compressed archive and
keeps only the newest archives per container.

Exit codes: 0 success, 1 a backup failed, 2 a required container is
missing or not running, 120 heartbeat delivery failed, 127 invalid
invocation.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
	}
)

// exitCodeError carries a run outcome that was already reported.
type exitCodeError struct{ code int }

func (e exitCodeError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// Execute runs the root command and returns the process exit code.
// SIGINT and SIGTERM cancel the running command.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer logger.Sync()

	return run(ctx, os.Args[1:])
}

func run(ctx context.Context, args []string) int {
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return operations.ExitOK
	}
	var ec exitCodeError
	if errors.As(err, &ec) {
		return ec.code
	}
	if log == nil {
		// setup failed before the configured logger existed.
		l, lerr := logger.Init(false)
		if lerr != nil {
			fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
			return operations.ExitUsage
		}
		log = l
	}
	log.Error("invalid invocation", "error", err.Error())
	return operations.ExitUsage
}

// setup loads the configuration and initialises the logger.
func setup(cmd *cobra.Command, _ []string) error {
	loaded, err := config.Load(ConfigFile, cmd.Flags())
	if err != nil {
		return err
	}
	l, err := logger.Init(loaded.Verbose)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	cfg, log = loaded, l
	return nil
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&ConfigFile, "config", "c", "", "path to YAML config file")
	flags.BoolP("verbose", "v", false, "enable debug logging")
	flags.String("docker-host", "", "Docker daemon address (defaults to DOCKER_HOST)")

	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(statusCmd)
}
