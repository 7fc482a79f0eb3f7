package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := buildRoot().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the root command with every subcommand attached.
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	root := createRootCommand(globalFlags)
	root.AddCommand(
		createLocksCommand(globalFlags),
		createServeCommand(globalFlags, &ServeFlags{}),
		createAuthCommand(globalFlags, &AuthFlags{}),
	)
	return root
}

// createRootCommand creates the launching root command.
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "foxy [flags] [--] command [args...]",
		Short: "Run a command unless the same command line is still running",
		Long: `Foxy launches a command unless a previous launch of the exact same
command line is still alive. It is meant to be called from cron: overlapping
runs are skipped and logged, and foxy itself always exits 0.

Everything after the first non-flag argument belongs to the command. Use --
when the command's name collides with a foxy subcommand (locks, serve, auth).

Examples:
  foxy rsync -av /src /dst
  foxy --lock-dir /var/run/foxy -- sh -c 'backup.sh "$HOME"'
  foxy id -u                       # runs id(1)
  foxy -- locks                    # runs a program named "locks"
  foxy locks list                  # shows lock records`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			runLaunch(cmd, flags, args)
			return nil
		},
	}
	// flags after the command name belong to the command
	root.Flags().SetInterspersed(false)
	root.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		if c.HasParent() {
			return err
		}
		// the launch path never fails
		_, _ = fmt.Fprintf(c.ErrOrStderr(), "foxy: %v; command not run\n", err)
		return nil
	})
	root.CompletionOptions.DisableDefaultCmd = true

	pf := root.PersistentFlags()
	pf.StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	pf.StringVar(&flags.LockDir, "lock-dir", "", "directory holding lock records (default /tmp/foxy)")
	pf.StringVar(&flags.LogFile, "log-file", "", "log file, empty string to disable (default /tmp/foxy.log)")
	pf.StringVar(&flags.LogLevel, "log-level", "", "debug, info, warning, error or critical (default info)")
	pf.BoolVar(&flags.Console, "console", false, "also log to stderr")
	pf.BoolVar(&flags.Exclusive, "exclusive", false, "claim lock records with an atomic exclusive create")
	pf.BoolVar(&flags.ReuseCheck, "reuse-check", false, "treat an owner that started after its record was written as a recycled pid")
	pf.StringVar(&flags.HistoryDSN, "history-dsn", "", "export run history (sqlite, postgres, clickhouse or opensearch DSN)")
	pf.StringVar(&flags.Textfile, "textfile", "", "write Prometheus metrics to this file after each launch ({id} is replaced)")
	root.Flags().StringArrayVar(&flags.Env, "env", nil, "KEY=VALUE added to the command's environment (repeatable, ${VAR} expands)")
	return root
}
