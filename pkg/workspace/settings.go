package workspace

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"

	"github.com/tohutohu/discord-claude-code-sub003/pkg/protocol"
)

// RepoSettings is the optional per-repository settings file (.ccd.toml in
// the repository root).
type RepoSettings struct {
	DefaultBranch string            `toml:"default_branch"`
	Env           map[string]string `toml:"env"`
}

// DefaultRepoSettings is used when no settings file exists.
var DefaultRepoSettings = RepoSettings{DefaultBranch: "main"}

// LoadRepoSettings reads .ccd.toml from the repository root. A missing file
// yields the defaults; a malformed file is logged and also yields the
// defaults, so a broken settings file never blocks thread creation.
func LoadRepoSettings(repoPath string, log *zap.Logger) RepoSettings {
	data, err := os.ReadFile(filepath.Join(repoPath, protocol.RepoSettingsFile)) //nolint:gosec // path is constructed internally
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) && log != nil {
			log.Warn("read repo settings", zap.String("repo", repoPath), zap.Error(err))
		}
		return DefaultRepoSettings
	}

	settings := DefaultRepoSettings
	if err := toml.Unmarshal(data, &settings); err != nil {
		if log != nil {
			log.Warn("parse repo settings", zap.String("repo", repoPath), zap.Error(err))
		}
		return DefaultRepoSettings
	}
	if settings.DefaultBranch == "" {
		settings.DefaultBranch = DefaultRepoSettings.DefaultBranch
	}
	return settings
}
