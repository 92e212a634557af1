package orchestrator

import (
	"context"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/tohutohu/discord-claude-code-sub003/pkg/protocol"
)

// RestoreActiveThreads rebuilds the worker registry from persisted active
// records after a restart. Each thread restores independently: a failure for
// one is logged and skipped. A record whose isolated working copy no longer
// exists on disk, or is no longer a registered worktree, is archived with a
// reason instead of being resurrected half-broken.
func (o *Orchestrator) RestoreActiveThreads(ctx context.Context) (int, error) {
	recs, err := o.store.ListThreadsByStatus(ctx, protocol.ThreadActive)
	if err != nil {
		return 0, err
	}

	restored := 0
	for _, rec := range recs {
		if o.getWorker(rec.ThreadID) != nil {
			continue
		}

		if rec.IsolatedCopyPath != "" {
			reason := ""
			if _, statErr := os.Stat(rec.IsolatedCopyPath); statErr != nil {
				reason = "isolated copy missing on disk"
			} else if !o.workspaces.IsRegistered(ctx, rec.RepositoryPath, rec.IsolatedCopyPath) {
				reason = "isolated copy no longer a registered worktree"
			}
			if reason != "" {
				o.archiveStale(ctx, rec.ThreadID, reason)
				continue
			}
		}

		w := o.newWorker(*rec)
		o.register(w)
		restored++
		o.log.Info("restored thread", zap.String("thread", rec.ThreadID), zap.String("worker", w.Name()))
	}
	o.store.AppendAudit(ctx, "", "threads_restored", map[string]string{
		"count": strconv.Itoa(restored),
	})
	return restored, nil
}

// archiveStale marks a no-longer-restorable record archived. Failures here
// are logged, not fatal; the record is retried on the next restart.
func (o *Orchestrator) archiveStale(ctx context.Context, threadID, reason string) {
	rec, err := o.store.GetThread(ctx, threadID)
	if err != nil {
		o.log.Warn("load stale thread", zap.String("thread", threadID), zap.Error(err))
		return
	}
	rec.Status = protocol.ThreadArchived
	rec.RateLimitTimestamp = 0
	rec.AutoResume = nil
	if err := o.store.UpdateThread(ctx, rec); err != nil {
		o.log.Warn("archive stale thread", zap.String("thread", threadID), zap.Error(err))
		return
	}
	o.store.AppendAudit(ctx, threadID, "thread_archived_on_restore", map[string]string{
		"reason": reason,
	})
	o.log.Warn("archived stale thread", zap.String("thread", threadID), zap.String("reason", reason))
}

// RestoreRateLimitTimers re-arms auto-resume for restored threads that were
// rate limited before the restart. The deadline is recomputed from the
// persisted timestamp against the current wall clock: a deadline already in
// the past resumes immediately and synchronously; a future one gets an armed
// timer. Threads whose user never chose auto-resume stay rate limited until
// they do.
func (o *Orchestrator) RestoreRateLimitTimers(ctx context.Context) int {
	o.mu.Lock()
	threadIDs := make([]string, 0, len(o.workers))
	for id := range o.workers {
		threadIDs = append(threadIDs, id)
	}
	o.mu.Unlock()

	armed := 0
	for _, threadID := range threadIDs {
		w := o.getWorker(threadID)
		if w == nil {
			continue
		}
		rec := w.Record()
		if !rec.RateLimited() {
			continue
		}
		if rec.AutoResume == nil || !*rec.AutoResume {
			o.log.Info("rate-limited thread awaiting user choice", zap.String("thread", threadID))
			continue
		}

		deadline := time.Unix(rec.RateLimitTimestamp, 0).Add(o.cooldown)
		if !deadline.After(time.Now()) {
			o.autoResume(threadID)
		} else {
			o.ScheduleAutoResume(threadID, rec.RateLimitTimestamp)
		}
		armed++
	}
	return armed
}
