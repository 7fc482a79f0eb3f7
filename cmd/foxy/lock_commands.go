package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/loykin/foxy/internal/config"
	"github.com/loykin/foxy/internal/lock"
)

// createLocksCommand groups the lock record helpers. They live under one
// parent so that common program names (id, list) still reach the launcher.
func createLocksCommand(globalFlags *GlobalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "locks",
		Short: "Inspect and clean lock records",
		Args:  cobra.NoArgs,
	}
	cmd.AddCommand(
		createListCommand(globalFlags, &ListFlags{}),
		createCleanCommand(globalFlags, &CleanFlags{}),
		createIDCommand(globalFlags),
	)
	return cmd
}

// createListCommand creates the list subcommand
func createListCommand(globalFlags *GlobalFlags, flags *ListFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show lock records and whether their owners are alive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var entries []lock.Entry
			if flags.APIUrl != "" {
				remote, err := remoteList(cmd.Context(), flags.APIFlags, flags.AliveOnly)
				if err != nil {
					return err
				}
				entries = remote
			} else {
				cfg, err := config.Load(globalFlags.ConfigPath, cmd.Flags())
				if err != nil {
					return err
				}
				local, err := lock.List(cfg.LockDir, lock.PIDFile)
				if err != nil {
					return err
				}
				entries = local
			}
			if flags.AliveOnly {
				entries = filterAlive(entries)
			}
			if flags.JSON {
				return printJSON(cmd.OutOrStdout(), entries)
			}
			return printEntries(cmd.OutOrStdout(), entries)
		},
	}
	cmd.Flags().BoolVar(&flags.JSON, "json", false, "print JSON instead of a table")
	cmd.Flags().BoolVar(&flags.AliveOnly, "alive", false, "only show records whose owner is running")
	addAPIFlags(cmd, &flags.APIFlags)
	return cmd
}

// createCleanCommand creates the clean subcommand
func createCleanCommand(globalFlags *GlobalFlags, flags *CleanFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove lock records whose owner is no longer running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if flags.APIUrl != "" {
				return remoteClean(cmd.Context(), out, flags.APIFlags, flags.DryRun)
			}
			cfg, err := config.Load(globalFlags.ConfigPath, cmd.Flags())
			if err != nil {
				return err
			}
			if flags.DryRun {
				entries, err := lock.List(cfg.LockDir, lock.PIDFile)
				if err != nil {
					return err
				}
				for _, e := range entries {
					if !e.Alive {
						_, _ = fmt.Fprintf(out, "would remove %s\n", e.Path)
					}
				}
				return nil
			}
			removed, err := lock.RemoveStale(cfg.LockDir, lock.PIDFile)
			for _, e := range removed {
				_, _ = fmt.Fprintf(out, "removed %s\n", e.Path)
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&flags.DryRun, "dry-run", false, "print what would be removed")
	addAPIFlags(cmd, &flags.APIFlags)
	return cmd
}

// createIDCommand creates the id subcommand
func createIDCommand(globalFlags *GlobalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "id [--] command [args...]",
		Short: "Print the identifier and lock record path of a command line",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(globalFlags.ConfigPath, cmd.Flags())
			if err != nil {
				return err
			}
			commandLine := strings.Join(args, " ")
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", lock.ID(commandLine), lock.Path(cfg.LockDir, commandLine))
			return nil
		},
	}
	cmd.Flags().SetInterspersed(false)
	return cmd
}

func filterAlive(entries []lock.Entry) []lock.Entry {
	out := entries[:0]
	for _, e := range entries {
		if e.Alive {
			out = append(out, e)
		}
	}
	return out
}

func printJSON(w io.Writer, entries []lock.Entry) error {
	if entries == nil {
		entries = []lock.Entry{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(entries)
}

func printEntries(w io.Writer, entries []lock.Entry) error {
	if len(entries) == 0 {
		_, _ = fmt.Fprintln(w, "No lock records")
		return nil
	}
	table := tablewriter.NewWriter(w)
	table.Header("ID", "PID", "Status", "Modified", "Error")
	for _, e := range entries {
		pid := "-"
		if e.PID > 0 {
			pid = strconv.Itoa(e.PID)
		}
		if err := table.Append(
			shortID(e.ID),
			pid,
			status(e),
			e.ModTime.Format(time.DateTime),
			e.Err,
		); err != nil {
			return err
		}
	}
	return table.Render()
}

func status(e lock.Entry) string {
	switch {
	case e.Alive:
		return "running"
	case e.Err != "":
		return "invalid"
	default:
		return "stale"
	}
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
