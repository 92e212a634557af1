package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tohutohu/discord-claude-code-sub003/internal/config"
	"github.com/tohutohu/discord-claude-code-sub003/pkg/store"
)

// newSweepCmd creates the "ccd sweep" subcommand.
func newSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run the retention sweep once",
		Long:  "Deletes audit entries and transcripts older than the configured\nretention windows, then exits.",
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := config.ResolvePaths()
			if err != nil {
				return err
			}
			loader, err := config.Load(paths.ConfigPath, nil)
			if err != nil {
				return err
			}
			cfg := loader.Current()

			st, err := store.Open(paths.StateDBPath, nil)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			audits, err := st.SweepAudit(cmd.Context(), cfg.AuditRetentionDays)
			if err != nil {
				return err
			}
			transcripts, err := store.NewTranscriptWriter(paths.TranscriptsDir).Sweep(cfg.TranscriptRetentionDays)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d audit entries, %d transcripts\n", audits, transcripts)
			return nil
		},
	}
	return cmd
}
