package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/geopol/geopol-go/internal/status"
)

func newStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check backend liveness",
		Long: `Check backend liveness once and print the result.

Exits with a non-zero status when the backend is unreachable.

Examples:
  geopol status
  geopol status --server http://geo.local:5000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(opts, nil)
			if err != nil {
				return err
			}
			defer env.Close()
			ctx, cancel := commandContext(cmd, env)
			defer cancel()

			mon := status.New(env.client, status.WithLogger(env.log.With().Str("component", "status").Logger()))
			snap := mon.Check(ctx)

			out := cmd.OutOrStdout()
			if !snap.Online {
				fmt.Fprintf(out, "○ OFFLINE  %s  %v\n", env.cfg.Connection.ServerURL, snap.Err)
				return errReported
			}
			fmt.Fprintf(out, "◉ ONLINE   %s  cache entries: %d\n", env.cfg.Connection.ServerURL, snap.CacheSize)
			return nil
		},
	}
}
