package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tohutohu/discord-claude-code-sub003/pkg/protocol"
)

// TranscriptWriter appends raw subprocess stream events to per-thread JSONL
// files under <home>/transcripts/<thread_id>.jsonl. One line per event,
// exactly as received, so a session can be replayed or debugged offline.
type TranscriptWriter struct {
	mu  sync.Mutex
	dir string
}

// NewTranscriptWriter stores transcripts under dir.
func NewTranscriptWriter(dir string) *TranscriptWriter {
	return &TranscriptWriter{dir: dir}
}

// Append writes one raw event line to the thread's transcript. The line is
// stored verbatim; callers pass the unparsed stream-json text.
func (t *TranscriptWriter) Append(threadID, rawLine string) error {
	if err := protocol.ValidateThreadID(threadID); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		return fmt.Errorf("create transcript dir: %w", err)
	}
	path := filepath.Join(t.dir, threadID+".jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec // thread id is validated
	if err != nil {
		return fmt.Errorf("open transcript %s: %w", path, err)
	}
	if _, err := f.WriteString(rawLine + "\n"); err != nil {
		_ = f.Close()
		return fmt.Errorf("append transcript %s: %w", path, err)
	}
	return f.Close()
}

// Sweep removes transcript files whose last modification is older than
// retentionDays and returns how many were deleted.
func (t *TranscriptWriter) Sweep(retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, fmt.Errorf("retention days must be positive, got %d", retentionDays)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	entries, err := os.ReadDir(t.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read transcript dir: %w", err)
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".jsonl" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(t.dir, entry.Name())); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}
