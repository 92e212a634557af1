// Package worker implements the per-thread state machine that drives one
// assistant CLI subprocess against an isolated working copy. A worker is
// idle, executing, or rate limited; at most one submission runs at a time.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tohutohu/discord-claude-code-sub003/pkg/execute"
	"github.com/tohutohu/discord-claude-code-sub003/pkg/protocol"
	"github.com/tohutohu/discord-claude-code-sub003/pkg/sandbox"
	"github.com/tohutohu/discord-claude-code-sub003/pkg/stream"
)

// RecordStore persists thread record changes. Satisfied by *store.Store.
type RecordStore interface {
	UpdateThread(ctx context.Context, rec *protocol.ThreadRecord) error
}

// TranscriptAppender records raw stream lines. Satisfied by
// *store.TranscriptWriter. Optional; nil disables transcripts.
type TranscriptAppender interface {
	Append(threadID, rawLine string) error
}

// CredentialSource resolves per-repository access tokens. Satisfied by
// *store.CredentialStore. Optional; nil means the sandbox starts without
// repository credentials.
type CredentialSource interface {
	Get(fullName string) (string, error)
}

// SubmitResult is the outcome of one completed submission.
type SubmitResult struct {
	FinalText          string
	SessionID          string
	RateLimited        bool
	RateLimitTimestamp int64 // epoch seconds; set when RateLimited
}

// Worker drives the assistant subprocess for one thread.
type Worker struct {
	name string

	mu        sync.Mutex
	rec       protocol.ThreadRecord
	executing bool
	cancel    context.CancelFunc

	runner      execute.Runner
	sandboxes   sandbox.Provider
	store       RecordStore
	transcripts TranscriptAppender
	creds       CredentialSource
	log         *zap.Logger
}

// New returns a worker for the given thread record. The record is copied;
// the worker owns its state from here on.
func New(name string, rec protocol.ThreadRecord, runner execute.Runner, sandboxes sandbox.Provider, st RecordStore, transcripts TranscriptAppender, log *zap.Logger) *Worker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Worker{
		name:        name,
		rec:         rec,
		runner:      runner,
		sandboxes:   sandboxes,
		store:       st,
		transcripts: transcripts,
		log:         log.With(zap.String("thread", rec.ThreadID), zap.String("worker", name)),
	}
}

// SetCredentials installs the token source consulted when the sandbox
// starts. Safe to leave unset.
func (w *Worker) SetCredentials(creds CredentialSource) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.creds = creds
}

// Name returns the worker's generated human-memorable name.
func (w *Worker) Name() string { return w.name }

// ThreadID returns the thread this worker serves.
func (w *Worker) ThreadID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rec.ThreadID
}

// Record returns a snapshot of the thread record.
func (w *Worker) Record() protocol.ThreadRecord {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rec
}

// Busy reports whether a submission is currently executing.
func (w *Worker) Busy() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.executing
}

// Configure attaches a repository and isolated working copy to the worker and
// persists the change. Called by the orchestrator after workspace setup.
func (w *Worker) Configure(ctx context.Context, repo *protocol.Repository, repoPath, isolatedPath string, sb *protocol.SandboxConfig) error {
	w.mu.Lock()
	w.rec.Repository = repo
	w.rec.RepositoryPath = repoPath
	w.rec.IsolatedCopyPath = isolatedPath
	w.rec.Sandbox = sb
	rec := w.rec
	w.mu.Unlock()
	return w.store.UpdateThread(ctx, &rec)
}

// ClearRateLimit resets both rate-limit fields together and persists.
func (w *Worker) ClearRateLimit(ctx context.Context) error {
	w.mu.Lock()
	w.rec.RateLimitTimestamp = 0
	w.rec.AutoResume = nil
	rec := w.rec
	w.mu.Unlock()
	return w.store.UpdateThread(ctx, &rec)
}

// SetAutoResume records the user's auto-resume choice alongside the pending
// rate-limit timestamp and persists.
func (w *Worker) SetAutoResume(ctx context.Context, choice bool) error {
	w.mu.Lock()
	w.rec.AutoResume = &choice
	rec := w.rec
	w.mu.Unlock()
	return w.store.UpdateThread(ctx, &rec)
}

// Submit runs one message through the assistant subprocess. Progress lines
// are delivered to onProgress in stream order; the final answer is only in
// the returned result, after every progress line. A busy worker refuses with
// BusyError before any subprocess I/O; an unconfigured worker refuses with
// ConfigurationError.
func (w *Worker) Submit(ctx context.Context, message string, onProgress func(string)) (SubmitResult, error) {
	w.mu.Lock()
	if w.executing {
		threadID := w.rec.ThreadID
		w.mu.Unlock()
		return SubmitResult{}, &protocol.BusyError{ThreadID: threadID}
	}
	if w.rec.Repository == nil || w.rec.RepositoryPath == "" {
		threadID := w.rec.ThreadID
		w.mu.Unlock()
		return SubmitResult{}, &protocol.ConfigurationError{ThreadID: threadID, Missing: "repository"}
	}
	if w.rec.IsolatedCopyPath == "" {
		threadID := w.rec.ThreadID
		w.mu.Unlock()
		return SubmitResult{}, &protocol.ConfigurationError{ThreadID: threadID, Missing: "isolated working copy"}
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.executing = true
	w.cancel = cancel
	rec := w.rec
	w.mu.Unlock()

	defer func() {
		cancel()
		w.mu.Lock()
		w.executing = false
		w.cancel = nil
		w.mu.Unlock()
	}()

	if rec.Sandbox != nil && rec.Sandbox.Enabled && !rec.Sandbox.Started {
		if err := w.startSandbox(runCtx, &rec, onProgress); err != nil {
			return SubmitResult{}, err
		}
	}

	res, err := w.run(runCtx, rec, message, onProgress)
	if err != nil {
		return res, err
	}

	w.mu.Lock()
	w.rec.SessionID = res.SessionID
	w.rec.LastActiveAt = time.Now()
	if res.RateLimited {
		w.rec.RateLimitTimestamp = res.RateLimitTimestamp
	}
	persisted := w.rec
	w.mu.Unlock()

	if err := w.store.UpdateThread(ctx, &persisted); err != nil {
		w.log.Warn("persist thread after submission", zap.Error(err))
	}
	return res, nil
}

// startSandbox performs the lazy one-time environment start and persists the
// container handle so a restart does not start a second container.
func (w *Worker) startSandbox(ctx context.Context, rec *protocol.ThreadRecord, onProgress func(string)) error {
	handle, err := w.sandboxes.Start(ctx, rec.IsolatedCopyPath, w.credentialEnv(rec), onProgress)
	if err != nil {
		return fmt.Errorf("start sandbox for thread %s: %w", rec.ThreadID, err)
	}
	w.mu.Lock()
	w.rec.Sandbox.ContainerID = handle.ContainerID
	w.rec.Sandbox.Started = true
	*rec = w.rec
	w.mu.Unlock()
	if err := w.store.UpdateThread(ctx, rec); err != nil {
		w.log.Warn("persist sandbox start", zap.Error(err))
	}
	return nil
}

// credentialEnv resolves the repository token into the environment handed to
// the sandbox so the assistant can reach private remotes. A lookup failure
// only costs the token, never the submission.
func (w *Worker) credentialEnv(rec *protocol.ThreadRecord) map[string]string {
	w.mu.Lock()
	creds := w.creds
	w.mu.Unlock()
	if creds == nil || rec.Repository == nil {
		return nil
	}
	token, err := creds.Get(rec.Repository.FullName())
	if err != nil {
		w.log.Warn("resolve repository credentials", zap.Error(err))
		return nil
	}
	if token == "" {
		return nil
	}
	return map[string]string{"GITHUB_TOKEN": token}
}

// run launches the assistant subprocess and classifies its stream output.
func (w *Worker) run(ctx context.Context, rec protocol.ThreadRecord, message string, onProgress func(string)) (SubmitResult, error) {
	spec := w.buildSpec(rec, message)
	classifier := stream.NewClassifier()

	var out SubmitResult
	res, err := w.runner.Stream(ctx, spec, func(line string) {
		if w.transcripts != nil {
			if terr := w.transcripts.Append(rec.ThreadID, line); terr != nil {
				w.log.Warn("append transcript", zap.Error(terr))
			}
		}
		ev, perr := stream.ParseEvent(line)
		if perr != nil {
			w.log.Debug("skipping malformed stream line", zap.Error(perr))
			return
		}
		if ev.SessionID != "" {
			out.SessionID = ev.SessionID
		}
		display, kind := classifier.Classify(ev)
		if kind == stream.KindFinalResult {
			out.FinalText = ev.Result
			return
		}
		if display != "" && onProgress != nil {
			onProgress(display)
		}
	})
	if err != nil {
		return out, &protocol.TransportError{
			ThreadID: rec.ThreadID,
			ExitCode: res.ExitCode,
			Stderr:   res.Stderr,
			Err:      err,
		}
	}

	if ts, ok := stream.ParseRateLimit(out.FinalText); ok {
		out.RateLimited = true
		out.RateLimitTimestamp = ts
		w.log.Info("rate limit signaled", zap.Int64("resume_at", ts))
	}
	return out, nil
}

// buildSpec assembles the assistant CLI invocation, wrapped in
// `devcontainer exec` when the thread runs sandboxed.
func (w *Worker) buildSpec(rec protocol.ThreadRecord, message string) execute.Spec {
	args := []string{"-p", message, "--output-format", "stream-json", "--verbose"}
	if rec.SessionID != "" {
		args = append(args, "--resume", rec.SessionID)
	}
	if rec.Sandbox != nil && rec.Sandbox.SkipPermissions {
		args = append(args, "--dangerously-skip-permissions")
	}

	if rec.Sandbox != nil && rec.Sandbox.Enabled && rec.Sandbox.Started {
		return execute.Spec{
			Name: "devcontainer",
			Args: append([]string{"exec", "--workspace-folder", rec.IsolatedCopyPath, "claude"}, args...),
		}
	}
	return execute.Spec{Name: "claude", Args: args, Dir: rec.IsolatedCopyPath}
}

// Stop cancels the running submission, if any, and reports whether there was
// one. The executing flag is cleared by Submit's deferred path once the
// subprocess group is gone, so Stop never leaves a stale flag behind.
func (w *Worker) Stop() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.executing || w.cancel == nil {
		return false
	}
	w.cancel()
	return true
}
