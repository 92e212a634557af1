package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/tohutohu/discord-claude-code-sub003/pkg/protocol"
)

// Paths holds all resolved ccd state file paths.
// Use ResolvePaths() to populate this struct with defaults + env overrides.
type Paths struct {
	CcdHome         string // ~/.ccd or CCD_HOME
	StateDBPath     string // state.db or CCD_DB_PATH
	ConfigPath      string // config.yaml or CCD_CONFIG_PATH
	CredentialsPath string // credentials.yaml or CCD_CREDENTIALS_PATH
	TranscriptsDir  string // transcripts/ (respects CCD_HOME)
}

// ResolvePaths returns all ccd paths, respecting env var overrides.
// Environment variables:
//   - CCD_HOME: base directory for all ccd state (default: ~/.ccd)
//   - CCD_DB_PATH: state database (default: $CCD_HOME/state.db)
//   - CCD_CONFIG_PATH: config file (default: $CCD_HOME/config.yaml)
//   - CCD_CREDENTIALS_PATH: credentials file (default: $CCD_HOME/credentials.yaml)
//
// If CCD_HOME is set, it becomes the base for all default paths. Specific
// env vars override both the default and the CCD_HOME base.
func ResolvePaths() (*Paths, error) {
	ccdHome, err := resolveCcdHome()
	if err != nil {
		return nil, err
	}

	return &Paths{
		CcdHome:         ccdHome,
		StateDBPath:     resolvePathWithEnv("CCD_DB_PATH", ccdHome, "state.db"),
		ConfigPath:      resolvePathWithEnv("CCD_CONFIG_PATH", ccdHome, "config.yaml"),
		CredentialsPath: resolvePathWithEnv("CCD_CREDENTIALS_PATH", ccdHome, "credentials.yaml"),
		TranscriptsDir:  filepath.Join(ccdHome, protocol.TranscriptsDir),
	}, nil
}

// resolveCcdHome returns the ccd home directory from CCD_HOME or ~/.ccd.
func resolveCcdHome() (string, error) {
	if v := os.Getenv("CCD_HOME"); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, protocol.CcdDir), nil
}

// resolvePathWithEnv returns the path from envKey if set, otherwise joins base + suffix.
func resolvePathWithEnv(envKey, base, suffix string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	return filepath.Join(base, suffix)
}
