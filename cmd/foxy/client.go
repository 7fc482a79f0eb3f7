package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/foxy/internal/lock"
	"github.com/loykin/foxy/pkg/client"
)

func addAPIFlags(cmd *cobra.Command, f *APIFlags) {
	cmd.Flags().StringVar(&f.APIUrl, "api-url", "", "query a foxy status server instead of the local lock dir (e.g. http://host:9105)")
	cmd.Flags().StringVar(&f.APIToken, "api-token", "", "bearer token for --api-url (env FOXY_API_TOKEN)")
	cmd.Flags().DurationVar(&f.APITimeout, "api-timeout", 10*time.Second, "request timeout for --api-url")
}

func newAPIClient(f APIFlags) (*client.Client, error) {
	return client.New(client.Config{
		BaseURL: f.APIUrl,
		Timeout: f.APITimeout,
		Token:   envOr(f.APIToken, "FOXY_API_TOKEN"),
	})
}

func remoteList(ctx context.Context, f APIFlags, aliveOnly bool) ([]lock.Entry, error) {
	c, err := newAPIClient(f)
	if err != nil {
		return nil, err
	}
	remote, err := c.ListLocks(ctx, aliveOnly)
	if err != nil {
		return nil, err
	}
	out := make([]lock.Entry, 0, len(remote))
	for _, e := range remote {
		out = append(out, lock.Entry(e))
	}
	return out, nil
}

func remoteClean(ctx context.Context, w io.Writer, f APIFlags, dryRun bool) error {
	c, err := newAPIClient(f)
	if err != nil {
		return err
	}
	entries, err := c.ListLocks(ctx, false)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Alive {
			continue
		}
		if dryRun {
			_, _ = fmt.Fprintf(w, "would remove %s\n", e.Path)
			continue
		}
		if _, err := c.DeleteLock(ctx, e.ID); err != nil {
			if errors.Is(err, client.ErrAlive) || errors.Is(err, client.ErrNotFound) {
				continue
			}
			return err
		}
		_, _ = fmt.Fprintf(w, "removed %s\n", e.Path)
	}
	return nil
}
