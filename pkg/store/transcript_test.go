package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestTranscriptAppend(t *testing.T) {
	dir := t.TempDir()
	w := NewTranscriptWriter(dir)

	lines := []string{
		`{"type":"assistant","message":{}}`,
		`{"type":"result","result":"done"}`,
	}
	for _, line := range lines {
		if err := w.Append("thread-1", line); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, "thread-1.jsonl"))
	if err != nil {
		t.Fatalf("read transcript: %v", err)
	}
	want := lines[0] + "\n" + lines[1] + "\n"
	if string(data) != want {
		t.Errorf("transcript = %q, want %q", data, want)
	}
}

func TestTranscriptAppendRejectsBadThreadID(t *testing.T) {
	w := NewTranscriptWriter(t.TempDir())
	if err := w.Append("../escape", "{}"); err == nil {
		t.Error("traversal thread id must be rejected")
	}
}

func TestTranscriptSweep(t *testing.T) {
	dir := t.TempDir()
	w := NewTranscriptWriter(dir)

	if err := w.Append("old", "{}"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := w.Append("fresh", "{}"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	stale := time.Now().AddDate(0, 0, -60)
	if err := os.Chtimes(filepath.Join(dir, "old.jsonl"), stale, stale); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	n, err := w.Sweep(30)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 1 {
		t.Errorf("swept %d, want 1", n)
	}
	if _, err := os.Stat(filepath.Join(dir, "old.jsonl")); !os.IsNotExist(err) {
		t.Error("old transcript should be gone")
	}
	if _, err := os.Stat(filepath.Join(dir, "fresh.jsonl")); err != nil {
		t.Error("fresh transcript should remain")
	}
}
