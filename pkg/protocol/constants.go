package protocol

import "time"

// Directory and path constants used throughout ccd.
const (
	// CcdDir is the user-level state directory (e.g., ~/.ccd).
	CcdDir = ".ccd"

	// ReposDir is the directory under the ccd home where repositories are cloned.
	ReposDir = "repos"

	// WorktreesDir is the directory (relative to a repository clone) where
	// per-thread isolated worktrees are created.
	WorktreesDir = ".worktrees"

	// TranscriptsDir is the directory under the ccd home where per-thread
	// session transcripts are appended.
	TranscriptsDir = "transcripts"

	// BranchPrefix is the git branch prefix for per-thread worktrees.
	BranchPrefix = "ccd/"

	// RepoSettingsFile is the optional per-repository settings file, read
	// from the repository root.
	RepoSettingsFile = ".ccd.toml"
)

// RateLimitMarker is the fixed prefix the assistant CLI embeds in its final
// result text when the provider refuses further requests. The full signal is
// "<marker>|<epoch seconds>".
const RateLimitMarker = "Claude AI usage limit reached"

// DefaultRateLimitCooldown is how long after the reported rate-limit
// timestamp a thread waits before auto-resuming. Overridable via config.
const DefaultRateLimitCooldown = 5 * time.Minute

// Thread status values as persisted in the threads table.
const (
	ThreadActive   = "active"
	ThreadArchived = "archived"
)
