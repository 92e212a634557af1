package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tohutohu/discord-claude-code-sub003/internal/config"
	"github.com/tohutohu/discord-claude-code-sub003/internal/logging"
	"github.com/tohutohu/discord-claude-code-sub003/pkg/execute"
	"github.com/tohutohu/discord-claude-code-sub003/pkg/orchestrator"
	"github.com/tohutohu/discord-claude-code-sub003/pkg/sandbox"
	"github.com/tohutohu/discord-claude-code-sub003/pkg/store"
	"github.com/tohutohu/discord-claude-code-sub003/pkg/workspace"
)

// sweepInterval is how often the daemon runs the retention sweep.
const sweepInterval = 24 * time.Hour

// newServeCmd creates the "ccd serve" subcommand.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the orchestration daemon",
		Long:  "Opens the state database, restores active threads and their\nrate-limit timers, and serves until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	paths, err := config.ResolvePaths()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(paths.CcdHome, 0o700); err != nil {
		return fmt.Errorf("create ccd home: %w", err)
	}

	loader, err := config.Load(paths.ConfigPath, nil)
	if err != nil {
		return err
	}
	cfg := loader.Current()

	log := logging.New(cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	st, err := store.Open(paths.StateDBPath, log)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	runner := execute.NewExecRunner()
	workspaces := workspace.NewGitManager(paths.CcdHome, runner, log)
	sandboxes := sandbox.NewDevcontainerProvider(runner, log)
	transcripts := store.NewTranscriptWriter(paths.TranscriptsDir)

	orc := orchestrator.New(st, workspaces, sandboxes, runner, transcripts, cfg.RateLimitCooldown, log)
	orc.Credentials = store.NewCredentialStore(paths.CredentialsPath)

	restored, err := orc.RestoreActiveThreads(ctx)
	if err != nil {
		return fmt.Errorf("restore threads: %w", err)
	}
	armed := orc.RestoreRateLimitTimers(ctx)
	log.Info("daemon ready",
		zap.Int("threads_restored", restored),
		zap.Int("timers_armed", armed),
		zap.String("db", paths.StateDBPath))

	loader.Watch(func(next config.Config) {
		log.Info("tunables updated",
			zap.Duration("rate_limit_cooldown", next.RateLimitCooldown),
			zap.Int("audit_retention_days", next.AuditRetentionDays))
	})

	sweep := time.NewTicker(sweepInterval)
	defer sweep.Stop()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-sweep.C:
			runSweepOnce(ctx, st, transcripts, loader.Current(), log)
		case sig := <-sigs:
			log.Info("shutting down", zap.String("signal", sig.String()))
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// runSweepOnce applies audit and transcript retention. Failures are logged,
// never fatal to the daemon.
func runSweepOnce(ctx context.Context, st *store.Store, transcripts *store.TranscriptWriter, cfg config.Config, log *zap.Logger) {
	if n, err := st.SweepAudit(ctx, cfg.AuditRetentionDays); err != nil {
		log.Warn("audit sweep", zap.Error(err))
	} else if n > 0 {
		log.Info("audit sweep", zap.Int64("deleted", n))
	}
	if n, err := transcripts.Sweep(cfg.TranscriptRetentionDays); err != nil {
		log.Warn("transcript sweep", zap.Error(err))
	} else if n > 0 {
		log.Info("transcript sweep", zap.Int("deleted", n))
	}
}
