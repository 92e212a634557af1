package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/tohutohu/discord-claude-code-sub003/pkg/protocol"
)

func seedThread(t *testing.T, st *memStore, ws *fakeWorkspace, threadID string, makeDir, register bool) string {
	t.Helper()
	repoPath := filepath.Join(ws.base, "repos", "a", "b")
	isolated := filepath.Join(repoPath, ".worktrees", threadID)
	if makeDir {
		if err := os.MkdirAll(isolated, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if register {
		ws.mu.Lock()
		ws.registered[isolated] = true
		ws.mu.Unlock()
	}
	now := time.Now()
	err := st.CreateThread(context.Background(), &protocol.ThreadRecord{
		ThreadID:         threadID,
		Repository:       &protocol.Repository{Org: "a", Name: "b"},
		RepositoryPath:   repoPath,
		IsolatedCopyPath: isolated,
		Status:           protocol.ThreadActive,
		CreatedAt:        now,
		LastActiveAt:     now,
	})
	if err != nil {
		t.Fatal(err)
	}
	return isolated
}

func TestRestoreActiveThreads(t *testing.T) {
	st := newMemStore()
	orc, ws := newTestOrchestrator(t, st, &scriptRunner{})
	ctx := context.Background()

	seedThread(t, st, ws, "healthy", true, true)
	seedThread(t, st, ws, "dir-missing", false, true)
	seedThread(t, st, ws, "unregistered", true, false)

	restored, err := orc.RestoreActiveThreads(ctx)
	if err != nil {
		t.Fatalf("RestoreActiveThreads: %v", err)
	}
	if restored != 1 {
		t.Errorf("restored = %d, want 1", restored)
	}
	if orc.getWorker("healthy") == nil {
		t.Error("healthy thread must have a worker")
	}

	for _, stale := range []string{"dir-missing", "unregistered"} {
		if orc.getWorker(stale) != nil {
			t.Errorf("%s must not be resurrected", stale)
		}
		rec, err := st.GetThread(ctx, stale)
		if err != nil {
			t.Fatalf("GetThread %s: %v", stale, err)
		}
		if rec.Status != protocol.ThreadArchived {
			t.Errorf("%s status = %q, want archived", stale, rec.Status)
		}
		if !st.audited(stale, "thread_archived_on_restore") {
			t.Errorf("%s archive must be audited", stale)
		}
	}
}

func TestRestoreIsIdempotent(t *testing.T) {
	st := newMemStore()
	orc, ws := newTestOrchestrator(t, st, &scriptRunner{})
	ctx := context.Background()

	seedThread(t, st, ws, "t1", true, true)
	if _, err := orc.RestoreActiveThreads(ctx); err != nil {
		t.Fatal(err)
	}
	w := orc.getWorker("t1")

	restored, err := orc.RestoreActiveThreads(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if restored != 0 {
		t.Errorf("second restore = %d, want 0", restored)
	}
	if orc.getWorker("t1") != w {
		t.Error("existing worker must be kept")
	}
}

func TestRestoreRateLimitTimersImmediate(t *testing.T) {
	st := newMemStore()
	orc, ws := newTestOrchestrator(t, st, &scriptRunner{})
	ctx := context.Background()

	seedThread(t, st, ws, "limited", true, true)

	rec, _ := st.GetThread(ctx, "limited")
	choice := true
	rec.RateLimitTimestamp = time.Now().Add(-time.Hour).Unix()
	rec.AutoResume = &choice
	if err := st.UpdateThread(ctx, rec); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var resumed []string
	orc.OnAutoResume = func(threadID, continuation string) {
		mu.Lock()
		resumed = append(resumed, threadID)
		mu.Unlock()
	}

	if _, err := orc.RestoreActiveThreads(ctx); err != nil {
		t.Fatal(err)
	}
	armed := orc.RestoreRateLimitTimers(ctx)
	if armed != 1 {
		t.Errorf("armed = %d, want 1", armed)
	}

	// Past deadline resumes synchronously.
	mu.Lock()
	got := len(resumed)
	mu.Unlock()
	if got != 1 {
		t.Fatalf("resumed %d threads, want 1 immediately", got)
	}

	rec, _ = st.GetThread(ctx, "limited")
	if rec.RateLimitTimestamp != 0 || rec.AutoResume != nil {
		t.Errorf("rate limit fields must clear together: %+v", rec)
	}
	if !st.audited("limited", "auto_resumed") {
		t.Error("resume must be audited")
	}
}

func TestRestoreRateLimitTimersFuture(t *testing.T) {
	st := newMemStore()
	orc, ws := newTestOrchestrator(t, st, &scriptRunner{})
	ctx := context.Background()

	seedThread(t, st, ws, "waiting", true, true)
	rec, _ := st.GetThread(ctx, "waiting")
	choice := true
	rec.RateLimitTimestamp = time.Now().Add(time.Hour).Unix()
	rec.AutoResume = &choice
	if err := st.UpdateThread(ctx, rec); err != nil {
		t.Fatal(err)
	}

	if _, err := orc.RestoreActiveThreads(ctx); err != nil {
		t.Fatal(err)
	}
	if armed := orc.RestoreRateLimitTimers(ctx); armed != 1 {
		t.Errorf("armed = %d, want 1", armed)
	}

	// A future deadline arms a timer instead of firing.
	rec, _ = st.GetThread(ctx, "waiting")
	if rec.RateLimitTimestamp == 0 {
		t.Error("future deadline must not clear state yet")
	}
	if !orc.CancelAutoResume("waiting") {
		t.Error("a timer should be armed and cancellable")
	}
}

func TestRestoreRateLimitTimersNoChoice(t *testing.T) {
	st := newMemStore()
	orc, ws := newTestOrchestrator(t, st, &scriptRunner{})
	ctx := context.Background()

	seedThread(t, st, ws, "undecided", true, true)
	rec, _ := st.GetThread(ctx, "undecided")
	rec.RateLimitTimestamp = time.Now().Add(-time.Hour).Unix()
	if err := st.UpdateThread(ctx, rec); err != nil {
		t.Fatal(err)
	}

	if _, err := orc.RestoreActiveThreads(ctx); err != nil {
		t.Fatal(err)
	}
	if armed := orc.RestoreRateLimitTimers(ctx); armed != 0 {
		t.Errorf("armed = %d, want 0 without a user choice", armed)
	}
	rec, _ = st.GetThread(ctx, "undecided")
	if rec.RateLimitTimestamp == 0 {
		t.Error("state must be preserved until the user chooses")
	}
}
