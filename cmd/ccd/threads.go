package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tohutohu/discord-claude-code-sub003/internal/config"
	"github.com/tohutohu/discord-claude-code-sub003/pkg/protocol"
	"github.com/tohutohu/discord-claude-code-sub003/pkg/store"
)

// newThreadsCmd creates the "ccd threads" subcommand.
func newThreadsCmd() *cobra.Command {
	var includeArchived bool

	cmd := &cobra.Command{
		Use:   "threads",
		Short: "List thread records",
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
			statuses := []string{protocol.ThreadActive}
			if includeArchived {
				statuses = append(statuses, protocol.ThreadArchived)
			}

			out := cmd.OutOrStdout()
			for _, status := range statuses {
				recs, err := st.ListThreadsByStatus(ctx, status)
				if err != nil {
					return err
				}
				for _, rec := range recs {
					repo := "-"
					if rec.Repository != nil {
						repo = rec.Repository.FullName()
					}
					state := rec.Status
					if rec.RateLimited() {
						state += " (rate limited)"
					}
					fmt.Fprintf(out, "%s\t%s\t%s\tlast active %s\n",
						rec.ThreadID, state, repo,
						rec.LastActiveAt.Format("2006-01-02 15:04"))
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&includeArchived, "all", "a", false, "include archived threads")
	return cmd
}
