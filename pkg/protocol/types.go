// Package protocol defines the persisted data model shared by the store, the
// worker, and the orchestrator: thread records, audit entries, queued
// messages, the SQLite schema, and the typed errors callers branch on.
package protocol

import (
	"fmt"
	"regexp"
	"time"
)

// Repository identifies a remote repository by org/name pair.
type Repository struct {
	Org  string `json:"org"`
	Name string `json:"name"`
}

// FullName returns "org/name".
func (r Repository) FullName() string {
	return r.Org + "/" + r.Name
}

// SandboxConfig captures the isolated-environment settings of a thread.
// Persisted as part of the thread record so a restored worker runs in the
// same environment as before the restart.
type SandboxConfig struct {
	Enabled          bool   `json:"enabled"`
	SkipPermissions  bool   `json:"skip_permissions"`
	HasConfigFile    bool   `json:"has_config_file"`
	HasClaudeFeature bool   `json:"has_claude_feature"`
	ContainerID      string `json:"container_id,omitempty"`
	Started          bool   `json:"started"`
}

// ThreadRecord is the durable state of one conversation thread.
//
// Invariant: AutoResume is only meaningful while RateLimitTimestamp is set;
// the store clears or sets them together.
type ThreadRecord struct {
	ThreadID           string
	Repository         *Repository
	RepositoryPath     string
	IsolatedCopyPath   string // empty until a worktree is created
	Status             string // ThreadActive or ThreadArchived
	CreatedAt          time.Time
	LastActiveAt       time.Time
	Sandbox            *SandboxConfig
	SessionID          string // resumable subprocess session handle
	RateLimitTimestamp int64  // epoch seconds; 0 = not rate limited
	AutoResume         *bool  // nil unless the user has chosen
}

// RateLimited reports whether the record carries a pending rate-limit signal.
func (t *ThreadRecord) RateLimited() bool {
	return t.RateLimitTimestamp > 0
}

// AuditEntry is one immutable row of the append-only audit trail.
type AuditEntry struct {
	ID        int64
	Timestamp time.Time
	ThreadID  string
	Action    string
	Details   map[string]string
}

// QueuedMessage is one inbound message buffered for a thread while no worker
// can consume it.
type QueuedMessage struct {
	MessageID string
	ThreadID  string
	Content   string
	AuthorID  string
	Timestamp time.Time
}

// QueueDepth pairs a thread with its current backlog length, for bulk listing.
type QueueDepth struct {
	ThreadID string
	Depth    int
}

// threadIDPattern restricts thread ids to characters safe for filepath and
// branch-name use.
var threadIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ValidateThreadID rejects ids that could escape the worktree directory or
// produce invalid git branch names.
func ValidateThreadID(id string) error {
	if id == "" {
		return fmt.Errorf("thread id is empty")
	}
	if !threadIDPattern.MatchString(id) {
		return fmt.Errorf("thread id %q contains invalid characters", id)
	}
	return nil
}
