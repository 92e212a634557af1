// Package workspace provides isolated git working copies for threads: a
// shared clone per repository and a disposable worktree per thread. Callers
// depend only on the Manager contract, not on git mechanics.
package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/tohutohu/discord-claude-code-sub003/pkg/execute"
	"github.com/tohutohu/discord-claude-code-sub003/pkg/protocol"
)

// Manager creates and removes isolated working copies.
type Manager interface {
	// Ensure clones the repository under the ccd home if needed and
	// returns the local clone path.
	Ensure(ctx context.Context, repo protocol.Repository) (string, error)

	// CreateIsolatedCopy adds a worktree for ownerName off the repository's
	// default branch and returns its path.
	CreateIsolatedCopy(ctx context.Context, repoPath, ownerName string) (string, error)

	// Remove deletes an isolated copy and its git bookkeeping.
	Remove(ctx context.Context, repoPath, isolatedPath string) error

	// IsRegistered reports whether isolatedPath is still a worktree known
	// to the repository. Used to validate records during restore.
	IsRegistered(ctx context.Context, repoPath, isolatedPath string) bool
}

// GitManager is the production Manager that shells out to git.
type GitManager struct {
	home   string // ccd home directory; clones live under home/repos
	runner execute.Runner
	log    *zap.Logger
}

// NewGitManager returns a Manager backed by real git commands.
func NewGitManager(home string, runner execute.Runner, log *zap.Logger) *GitManager {
	if log == nil {
		log = zap.NewNop()
	}
	return &GitManager{home: home, runner: runner, log: log}
}

// Ensure clones the repository to <home>/repos/<org>/<name> on first use and
// fetches on subsequent calls. Fetch failures are non-fatal; a stale clone
// is still a usable base for worktrees.
func (g *GitManager) Ensure(ctx context.Context, repo protocol.Repository) (string, error) {
	if repo.Org == "" || repo.Name == "" {
		return "", fmt.Errorf("repository org/name is empty")
	}
	path := filepath.Join(g.home, protocol.ReposDir, repo.Org, repo.Name)

	if _, err := os.Stat(filepath.Join(path, ".git")); err == nil {
		if _, err := g.runner.Run(ctx, execute.Spec{
			Name: "git", Args: []string{"-C", path, "fetch", "--prune"},
		}); err != nil {
			g.log.Warn("fetch failed, using existing clone", zap.String("repo", repo.FullName()), zap.Error(err))
		}
		return path, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", fmt.Errorf("create repos dir: %w", err)
	}
	url := fmt.Sprintf("https://github.com/%s.git", repo.FullName())
	if _, err := g.runner.Run(ctx, execute.Spec{
		Name: "git", Args: []string{"clone", url, path},
	}); err != nil {
		return "", fmt.Errorf("clone %s: %w", repo.FullName(), err)
	}
	return path, nil
}

// CreateIsolatedCopy runs `git worktree add <path> -b ccd/<owner> <branch>`
// and returns the worktree path. The owner name is validated before any
// filepath use to prevent directory traversal.
func (g *GitManager) CreateIsolatedCopy(ctx context.Context, repoPath, ownerName string) (string, error) {
	if err := protocol.ValidateThreadID(ownerName); err != nil {
		return "", fmt.Errorf("invalid owner name: %w", err)
	}

	settings := LoadRepoSettings(repoPath, g.log)
	path := filepath.Join(repoPath, protocol.WorktreesDir, ownerName)
	branch := protocol.BranchPrefix + ownerName

	if _, err := g.runner.Run(ctx, execute.Spec{
		Name: "git", Args: []string{"-C", repoPath, "worktree", "add", path, "-b", branch, settings.DefaultBranch},
	}); err != nil {
		return "", fmt.Errorf("worktree add %s: %w", ownerName, err)
	}
	return path, nil
}

// Remove runs `git worktree remove <path> --force`, falling back to plain
// directory removal plus a prune when git refuses (e.g. the clone itself was
// deleted out from under us).
func (g *GitManager) Remove(ctx context.Context, repoPath, isolatedPath string) error {
	if isolatedPath == "" {
		return nil
	}
	if _, err := g.runner.Run(ctx, execute.Spec{
		Name: "git", Args: []string{"-C", repoPath, "worktree", "remove", isolatedPath, "--force"},
	}); err != nil {
		g.log.Warn("worktree remove failed, removing directory", zap.String("path", isolatedPath), zap.Error(err))
		if rmErr := os.RemoveAll(isolatedPath); rmErr != nil {
			return fmt.Errorf("remove worktree dir %s: %w", isolatedPath, rmErr)
		}
		_, _ = g.runner.Run(ctx, execute.Spec{
			Name: "git", Args: []string{"-C", repoPath, "worktree", "prune"},
		})
	}
	return nil
}

// IsRegistered checks `git worktree list --porcelain` for isolatedPath.
func (g *GitManager) IsRegistered(ctx context.Context, repoPath, isolatedPath string) bool {
	res, err := g.runner.Run(ctx, execute.Spec{
		Name: "git", Args: []string{"-C", repoPath, "worktree", "list", "--porcelain"},
	})
	if err != nil {
		return false
	}
	for _, line := range strings.Split(res.Output, "\n") {
		if strings.HasPrefix(line, "worktree ") && strings.TrimPrefix(line, "worktree ") == isolatedPath {
			return true
		}
	}
	return false
}
