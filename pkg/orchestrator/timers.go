package orchestrator

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// resumeContinuation is the message routed to a thread when its rate-limit
// timer fires.
const resumeContinuation = "Please continue where you left off."

// ScheduleAutoResume arms (or re-arms) the thread's auto-resume timer for
// the given provider reset timestamp plus the configured cooldown. At most
// one timer exists per thread; scheduling replaces any prior timer.
func (o *Orchestrator) ScheduleAutoResume(threadID string, resetTimestamp int64) {
	deadline := time.Unix(resetTimestamp, 0).Add(o.cooldown)
	delay := time.Until(deadline)
	if delay < 0 {
		delay = 0
	}

	o.mu.Lock()
	if prior, ok := o.timers[threadID]; ok {
		prior.Stop()
	}
	o.timers[threadID] = time.AfterFunc(delay, func() {
		o.autoResume(threadID)
	})
	o.mu.Unlock()

	o.log.Info("auto-resume scheduled",
		zap.String("thread", threadID), zap.Time("deadline", deadline))
}

// CancelAutoResume stops the thread's pending timer, if any, and reports
// whether one was armed.
func (o *Orchestrator) CancelAutoResume(threadID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	t, ok := o.timers[threadID]
	if !ok {
		return false
	}
	t.Stop()
	delete(o.timers, threadID)
	return true
}

// autoResume fires when a thread's cooldown expires: it clears both
// persisted rate-limit fields together and hands the continuation to the
// resume callback. With no callback configured the state is still cleared,
// so the thread accepts new messages either way.
func (o *Orchestrator) autoResume(threadID string) {
	o.mu.Lock()
	delete(o.timers, threadID)
	o.mu.Unlock()

	lock := o.threadLock(threadID)
	lock.Lock()
	defer lock.Unlock()

	w := o.getWorker(threadID)
	if w == nil {
		o.log.Warn("auto-resume fired for unregistered thread", zap.String("thread", threadID))
		return
	}

	ctx := context.Background()
	if err := w.ClearRateLimit(ctx); err != nil {
		o.log.Error("clear rate limit", zap.String("thread", threadID), zap.Error(err))
		return
	}
	o.store.AppendAudit(ctx, threadID, "auto_resumed", nil)

	if o.OnAutoResume == nil {
		o.log.Info("auto-resume fired with no callback; state cleared",
			zap.String("thread", threadID))
		return
	}
	o.OnAutoResume(threadID, resumeContinuation)
}
