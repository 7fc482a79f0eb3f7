package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/foxy/internal/auth"
	"github.com/loykin/foxy/internal/config"
)

// AuthFlags holds flags for the auth subcommands
type AuthFlags struct {
	Subject string
	TTL     time.Duration
}

// createAuthCommand creates the auth command group
func createAuthCommand(globalFlags *GlobalFlags, flags *AuthFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage credentials for the status server",
	}

	hash := &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print a bcrypt hash for [serve.auth.users]",
		Long: `Print a bcrypt hash for the [serve.auth.users] table.
The password is read from the first line of stdin when not given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password := ""
			if len(args) == 1 {
				password = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return errors.New("no password given")
				}
				password = strings.TrimRight(line, "\r\n")
			}
			h, err := auth.HashPassword(password)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), h)
			return nil
		},
	}

	token := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token signed with serve.auth.jwt_secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(globalFlags.ConfigPath, cmd.Flags())
			if err != nil {
				return err
			}
			a := cfg.Serve.Auth
			a.Enabled = true
			svc, err := auth.NewService(a)
			if err != nil {
				return err
			}
			tok, exp, err := svc.IssueToken(flags.Subject, flags.TTL)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), tok)
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", exp.Format(time.RFC3339))
			return nil
		},
	}
	token.Flags().StringVar(&flags.Subject, "subject", "foxy", "token subject")
	token.Flags().DurationVar(&flags.TTL, "ttl", 0, "token lifetime (default serve.auth.token_ttl)")

	cmd.AddCommand(hash, token)
	return cmd
}
