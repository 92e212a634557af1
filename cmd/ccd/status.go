package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tohutohu/discord-claude-code-sub003/internal/config"
	"github.com/tohutohu/discord-claude-code-sub003/pkg/protocol"
	"github.com/tohutohu/discord-claude-code-sub003/pkg/store"
)

// newStatusCmd creates the "ccd status" subcommand.
func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show thread counts and message backlogs",
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := config.ResolvePaths()
			if err != nil {
				return err
			}
			st, err := store.Open(paths.StateDBPath, nil)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			ctx := cmd.Context()
			active, err := st.ListThreadsByStatus(ctx, protocol.ThreadActive)
			if err != nil {
				return err
			}
			archived, err := st.ListThreadsByStatus(ctx, protocol.ThreadArchived)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "threads: %d active, %d archived\n", len(active), len(archived))

			rateLimited := 0
			for _, rec := range active {
				if rec.RateLimited() {
					rateLimited++
				}
			}
			if rateLimited > 0 {
				fmt.Fprintf(out, "rate limited: %d\n", rateLimited)
			}

			depths, err := st.QueueDepths(ctx)
			if err != nil {
				return err
			}
			if len(depths) == 0 {
				fmt.Fprintln(out, "backlog: empty")
				return nil
			}
			fmt.Fprintln(out, "backlog:")
			for _, d := range depths {
				fmt.Fprintf(out, "  %s: %d\n", d.ThreadID, d.Depth)
			}
			return nil
		},
	}
}
