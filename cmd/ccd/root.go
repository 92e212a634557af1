package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tohutohu/discord-claude-code-sub003/internal/version"
)

// newRootCmd creates the root ccd command with all subcommands attached.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "ccd",
		Short:         "Thread orchestrator for coding-assistant sessions",
		Long:          "ccd runs one long-lived coding-assistant subprocess per conversation\nthread, each against its own isolated git worktree.",
		Version:       fmt.Sprintf("ccd %s", version.String()),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("{{.Version}}\n")

	cmd.AddCommand(
		newServeCmd(),
		newStatusCmd(),
		newThreadsCmd(),
		newSweepCmd(),
	)

	return cmd
}
