package protocol

import "fmt"

// ConfigurationError reports a submission attempted before the thread had a
// repository or isolated working copy configured. Always recoverable by the
// caller supplying configuration; no subprocess is launched.
type ConfigurationError struct {
	ThreadID string
	Missing  string // what was missing, e.g. "repository"
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("thread %s is not configured: missing %s", e.ThreadID, e.Missing)
}

// BusyError reports a submission while the worker was already executing.
// Not retried automatically; the message is queued by the orchestrator.
type BusyError struct {
	ThreadID string
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("worker for thread %s is already executing", e.ThreadID)
}

// TransportError reports a subprocess failure: non-zero exit or an unreadable
// stream. Stderr is captured so the failure is never silently swallowed.
type TransportError struct {
	ThreadID string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("subprocess failed for thread %s (exit %d): %v", e.ThreadID, e.ExitCode, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ThreadNotFoundError reports a routing attempt for a thread with no
// registered worker.
type ThreadNotFoundError struct {
	ThreadID string
}

func (e *ThreadNotFoundError) Error() string {
	return fmt.Sprintf("no worker registered for thread %s", e.ThreadID)
}

// PersistenceError reports an I/O failure reading or writing a record.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
