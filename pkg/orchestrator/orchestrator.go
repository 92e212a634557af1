// Package orchestrator owns the worker registry: one worker per thread,
// created on demand, restored after restarts, resumed after rate limits, and
// torn down when a thread ends. Thread operations serialize on per-thread
// locks, never on one process-wide lock.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tohutohu/discord-claude-code-sub003/pkg/execute"
	"github.com/tohutohu/discord-claude-code-sub003/pkg/protocol"
	"github.com/tohutohu/discord-claude-code-sub003/pkg/sandbox"
	"github.com/tohutohu/discord-claude-code-sub003/pkg/store"
	"github.com/tohutohu/discord-claude-code-sub003/pkg/worker"
	"github.com/tohutohu/discord-claude-code-sub003/pkg/workspace"
)

// Store is the persistence surface the orchestrator needs. Satisfied by
// *store.Store.
type Store interface {
	CreateThread(ctx context.Context, rec *protocol.ThreadRecord) error
	GetThread(ctx context.Context, threadID string) (*protocol.ThreadRecord, error)
	UpdateThread(ctx context.Context, rec *protocol.ThreadRecord) error
	ListThreadsByStatus(ctx context.Context, status string) ([]*protocol.ThreadRecord, error)
	Enqueue(ctx context.Context, msg protocol.QueuedMessage) error
	Drain(ctx context.Context, threadID string) ([]protocol.QueuedMessage, error)
	AppendAudit(ctx context.Context, threadID, action string, details map[string]string)
}

// RateLimitNotice is the payload Route returns when a submission ended in a
// provider rate limit: enough for the caller to prompt the user about
// auto-resume.
type RateLimitNotice struct {
	Timestamp int64     // epoch seconds from the provider signal
	ResumeAt  time.Time // timestamp plus the configured cooldown
}

// DrainedAnswer is the final answer of one backlog message submitted during
// a post-success drain.
type DrainedAnswer struct {
	MessageID string
	FinalText string
}

// RouteResult is the outcome of routing one message to a thread.
type RouteResult struct {
	// Queued is set when the worker was busy and the message went to the
	// persistent backlog instead.
	Queued bool

	FinalText string
	RateLimit *RateLimitNotice // non-nil when the submission hit a rate limit

	// Drained holds answers for backlog messages delivered after this
	// submission succeeded, in queue order.
	Drained []DrainedAnswer
}

// Orchestrator routes messages to per-thread workers.
type Orchestrator struct {
	mu      sync.Mutex
	workers map[string]*worker.Worker
	locks   map[string]*sync.Mutex
	timers  map[string]*time.Timer

	store       Store
	workspaces  workspace.Manager
	sandboxes   sandbox.Provider
	runner      execute.Runner
	transcripts worker.TranscriptAppender
	cooldown    time.Duration
	log         *zap.Logger

	// OnAutoResume is invoked when a rate-limited thread's timer fires, with
	// the continuation message that should be routed to the thread. Optional;
	// when unset, auto-resume clears the rate limit state and logs.
	OnAutoResume func(threadID, continuation string)

	// Credentials resolves repository tokens handed to sandbox starts.
	// Optional; set before the first worker is created.
	Credentials worker.CredentialSource
}

// New wires an orchestrator. cooldown is the extra delay applied after a
// provider rate-limit reset before resuming; zero means resume exactly at
// the reset time.
func New(st Store, ws workspace.Manager, sb sandbox.Provider, runner execute.Runner, transcripts worker.TranscriptAppender, cooldown time.Duration, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		workers:     make(map[string]*worker.Worker),
		locks:       make(map[string]*sync.Mutex),
		timers:      make(map[string]*time.Timer),
		store:       st,
		workspaces:  ws,
		sandboxes:   sb,
		runner:      runner,
		transcripts: transcripts,
		cooldown:    cooldown,
		log:         log,
	}
}

// threadLock returns the mutex serializing operations on one thread.
func (o *Orchestrator) threadLock(threadID string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	l, ok := o.locks[threadID]
	if !ok {
		l = &sync.Mutex{}
		o.locks[threadID] = l
	}
	return l
}

func (o *Orchestrator) getWorker(threadID string) *worker.Worker {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.workers[threadID]
}

func (o *Orchestrator) register(w *worker.Worker) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.workers[w.ThreadID()] = w
}

func (o *Orchestrator) deregister(threadID string) *worker.Worker {
	o.mu.Lock()
	defer o.mu.Unlock()
	w := o.workers[threadID]
	delete(o.workers, threadID)
	return w
}

// WorkerCount returns the number of registered workers.
func (o *Orchestrator) WorkerCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.workers)
}

// CreateOrGetWorker returns the thread's worker, creating and persisting a
// fresh record on first call. Idempotent: repeat calls return the same
// worker.
func (o *Orchestrator) CreateOrGetWorker(ctx context.Context, threadID string) (*worker.Worker, error) {
	if err := protocol.ValidateThreadID(threadID); err != nil {
		return nil, err
	}

	lock := o.threadLock(threadID)
	lock.Lock()
	defer lock.Unlock()

	if w := o.getWorker(threadID); w != nil {
		return w, nil
	}

	rec, err := o.store.GetThread(ctx, threadID)
	switch {
	case errors.Is(err, store.ErrThreadNotFound):
		now := time.Now()
		rec = &protocol.ThreadRecord{
			ThreadID:     threadID,
			Status:       protocol.ThreadActive,
			CreatedAt:    now,
			LastActiveAt: now,
		}
		if err := o.store.CreateThread(ctx, rec); err != nil {
			return nil, err
		}
		o.store.AppendAudit(ctx, threadID, "thread_created", nil)
	case err != nil:
		return nil, err
	case rec.Status == protocol.ThreadArchived:
		return nil, &protocol.ThreadNotFoundError{ThreadID: threadID}
	}

	w := o.newWorker(*rec)
	o.register(w)
	return w, nil
}

// newWorker builds a worker around a record with the orchestrator's shared
// providers.
func (o *Orchestrator) newWorker(rec protocol.ThreadRecord) *worker.Worker {
	w := worker.New(worker.GenerateName(), rec, o.runner, o.sandboxes, o.store, o.transcripts, o.log)
	if o.Credentials != nil {
		w.SetCredentials(o.Credentials)
	}
	return w
}

// AttachRepository binds a thread to a repository: ensures the local clone,
// carves out the thread's isolated working copy, inspects the sandbox
// configuration, and persists the result.
func (o *Orchestrator) AttachRepository(ctx context.Context, threadID string, repo protocol.Repository, skipPermissions bool) error {
	w, err := o.CreateOrGetWorker(ctx, threadID)
	if err != nil {
		return err
	}

	lock := o.threadLock(threadID)
	lock.Lock()
	defer lock.Unlock()

	repoPath, err := o.workspaces.Ensure(ctx, repo)
	if err != nil {
		return fmt.Errorf("ensure repository %s: %w", repo.FullName(), err)
	}
	isolatedPath, err := o.workspaces.CreateIsolatedCopy(ctx, repoPath, threadID)
	if err != nil {
		return fmt.Errorf("create isolated copy for thread %s: %w", threadID, err)
	}

	sb := &protocol.SandboxConfig{SkipPermissions: skipPermissions}
	if cfg, cfgErr := o.sandboxes.CheckConfig(isolatedPath); cfgErr == nil {
		sb.HasConfigFile = cfg.Exists
		sb.HasClaudeFeature = cfg.HasClaudeFeature
		sb.Enabled = cfg.Exists && cfg.HasClaudeFeature && o.sandboxes.CheckRuntimeAvailable()
	} else {
		o.log.Warn("check sandbox config", zap.String("thread", threadID), zap.Error(cfgErr))
	}

	if err := w.Configure(ctx, &repo, repoPath, isolatedPath, sb); err != nil {
		return err
	}
	o.store.AppendAudit(ctx, threadID, "repository_attached", map[string]string{
		"repository": repo.FullName(),
		"sandbox":    fmt.Sprintf("%t", sb.Enabled),
	})
	return nil
}

// Route delivers one message to a thread's worker. A busy worker queues the
// message instead of dropping it; after a successful submission the backlog
// is drained atomically and delivered in order.
func (o *Orchestrator) Route(ctx context.Context, threadID, content string, onProgress func(string)) (RouteResult, error) {
	w := o.getWorker(threadID)
	if w == nil {
		return RouteResult{}, &protocol.ThreadNotFoundError{ThreadID: threadID}
	}

	res, err := w.Submit(ctx, content, onProgress)
	if err != nil {
		var busy *protocol.BusyError
		if errors.As(err, &busy) {
			qErr := o.store.Enqueue(ctx, protocol.QueuedMessage{
				MessageID: uuid.NewString(),
				ThreadID:  threadID,
				Content:   content,
				Timestamp: time.Now(),
			})
			if qErr != nil {
				return RouteResult{}, qErr
			}
			o.store.AppendAudit(ctx, threadID, "message_queued", nil)
			return RouteResult{Queued: true}, nil
		}
		return RouteResult{}, err
	}

	var out RouteResult
	if res.RateLimited {
		// The caller gets the structured prompt payload, never the raw
		// provider signal text.
		out.RateLimit = &RateLimitNotice{
			Timestamp: res.RateLimitTimestamp,
			ResumeAt:  time.Unix(res.RateLimitTimestamp, 0).Add(o.cooldown),
		}
		o.store.AppendAudit(ctx, threadID, "rate_limited", map[string]string{
			"resume_at": out.RateLimit.ResumeAt.Format(time.RFC3339),
		})
		// The backlog stays queued until the thread resumes.
		return out, nil
	}

	out.FinalText = res.FinalText
	out.Drained = o.drainBacklog(ctx, w, onProgress)
	return out, nil
}

// drainBacklog removes the thread's queued messages in one transaction and
// submits them in order. A failure mid-drain re-queues the unprocessed tail
// so nothing is lost.
func (o *Orchestrator) drainBacklog(ctx context.Context, w *worker.Worker, onProgress func(string)) []DrainedAnswer {
	threadID := w.ThreadID()
	msgs, err := o.store.Drain(ctx, threadID)
	if err != nil {
		o.log.Warn("drain backlog", zap.String("thread", threadID), zap.Error(err))
		return nil
	}
	if len(msgs) == 0 {
		return nil
	}

	var answers []DrainedAnswer
	for i, msg := range msgs {
		res, err := w.Submit(ctx, msg.Content, onProgress)
		if err != nil || res.RateLimited {
			if err != nil {
				o.log.Warn("submit queued message", zap.String("thread", threadID), zap.Error(err))
			}
			for _, rest := range msgs[i:] {
				if qErr := o.store.Enqueue(ctx, rest); qErr != nil {
					o.log.Error("requeue after failed drain", zap.String("thread", threadID), zap.Error(qErr))
				}
			}
			break
		}
		answers = append(answers, DrainedAnswer{MessageID: msg.MessageID, FinalText: res.FinalText})
	}
	o.store.AppendAudit(ctx, threadID, "backlog_drained", map[string]string{
		"delivered": fmt.Sprintf("%d", len(answers)),
	})
	return answers
}

// StopThread cancels the thread's running submission, if any, and reports
// whether there was one to stop.
func (o *Orchestrator) StopThread(ctx context.Context, threadID string) (bool, error) {
	w := o.getWorker(threadID)
	if w == nil {
		return false, &protocol.ThreadNotFoundError{ThreadID: threadID}
	}
	stopped := w.Stop()
	if stopped {
		o.store.AppendAudit(ctx, threadID, "execution_stopped", nil)
	}
	return stopped, nil
}

// TerminateThread ends a thread for good: cancel its timer, deregister the
// worker, remove the isolated working copy, archive the record, and audit —
// in that order. Terminating an already-terminated thread is a no-op.
func (o *Orchestrator) TerminateThread(ctx context.Context, threadID string) error {
	lock := o.threadLock(threadID)
	lock.Lock()
	defer lock.Unlock()

	o.CancelAutoResume(threadID)

	w := o.deregister(threadID)
	if w != nil {
		w.Stop()
	}

	rec, err := o.store.GetThread(ctx, threadID)
	if errors.Is(err, store.ErrThreadNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if rec.Status == protocol.ThreadArchived {
		return nil
	}

	if rec.IsolatedCopyPath != "" {
		if err := o.workspaces.Remove(ctx, rec.RepositoryPath, rec.IsolatedCopyPath); err != nil {
			o.log.Warn("remove isolated copy", zap.String("thread", threadID), zap.Error(err))
		}
		rec.IsolatedCopyPath = ""
	}

	rec.Status = protocol.ThreadArchived
	rec.RateLimitTimestamp = 0
	rec.AutoResume = nil
	if err := o.store.UpdateThread(ctx, rec); err != nil {
		return err
	}
	o.store.AppendAudit(ctx, threadID, "thread_terminated", nil)
	return nil
}
