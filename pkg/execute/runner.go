// Package execute runs external commands for the rest of the system. It
// supports both wait-for-full-output and stream-while-running modes, and
// kills the whole process group on cancellation so subprocess trees
// (assistant CLI, node, shells) do not outlive their parent.
package execute

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

// Spec describes one command invocation.
type Spec struct {
	Name string
	Args []string
	Dir  string
	Env  []string // appended to the parent environment; nil = inherit only
}

// Result carries the outcome of a finished command.
type Result struct {
	Output   string // combined stdout+stderr in Stream mode, stdout in Run mode
	Stderr   string
	ExitCode int
}

// Runner abstracts command execution for testing.
type Runner interface {
	// Run executes the command and waits for it to finish.
	Run(ctx context.Context, spec Spec) (Result, error)

	// Stream executes the command, invoking onLine for every line of
	// combined output as it arrives, in order, then waits for exit.
	// onLine must not be called after Stream returns.
	Stream(ctx context.Context, spec Spec, onLine func(string)) (Result, error)
}

// killGracePeriod is how long Stream waits after SIGTERM before SIGKILL.
const killGracePeriod = 3 * time.Second

// maxLineBytes bounds a single output line; the assistant's stream-json
// events can carry large tool results.
const maxLineBytes = 10 * 1024 * 1024

// ExecRunner is the production Runner backed by os/exec.
type ExecRunner struct{}

// NewExecRunner returns a Runner backed by real processes.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run executes the command and returns its stdout, with stderr captured
// separately.
func (r *ExecRunner) Run(ctx context.Context, spec Spec) (Result, error) {
	cmd := exec.CommandContext(ctx, spec.Name, spec.Args...) //nolint:gosec // command comes from internal wiring, not user input
	cmd.Dir = spec.Dir
	cmd.Env = mergedEnv(spec.Env)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	res := Result{
		Output:   string(out),
		Stderr:   stderr.String(),
		ExitCode: exitCode(cmd, err),
	}
	if err != nil {
		return res, fmt.Errorf("%s %s: %w", spec.Name, strings.Join(spec.Args, " "), err)
	}
	return res, nil
}

// Stream executes the command and feeds every line of combined output to
// onLine as it is read. The subprocess gets its own process group so that
// cancellation terminates descendants too.
func (r *ExecRunner) Stream(ctx context.Context, spec Spec, onLine func(string)) (Result, error) {
	cmd := exec.Command(spec.Name, spec.Args...) //nolint:gosec // command comes from internal wiring, not user input
	cmd.Dir = spec.Dir
	cmd.Env = mergedEnv(spec.Env)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{ExitCode: -1}, fmt.Errorf("stdout pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return Result{ExitCode: -1}, fmt.Errorf("start %s: %w", spec.Name, err)
	}

	// Kill the process group when ctx is cancelled. The done channel stops
	// the watcher once the command has exited on its own.
	done := make(chan struct{})
	var watch sync.WaitGroup
	watch.Add(1)
	go func() {
		defer watch.Done()
		select {
		case <-ctx.Done():
			killGroup(cmd)
		case <-done:
		}
	}()

	var buf strings.Builder
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Text()
		buf.WriteString(line)
		buf.WriteByte('\n')
		if onLine != nil {
			onLine(line)
		}
	}
	scanErr := scanner.Err()

	waitErr := cmd.Wait()
	close(done)
	watch.Wait()

	res := Result{
		Output:   buf.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode(cmd, waitErr),
	}
	if ctx.Err() != nil {
		return res, fmt.Errorf("%s: %w", spec.Name, ctx.Err())
	}
	if scanErr != nil {
		return res, fmt.Errorf("read %s output: %w", spec.Name, scanErr)
	}
	if waitErr != nil {
		return res, fmt.Errorf("%s %s: %w", spec.Name, strings.Join(spec.Args, " "), waitErr)
	}
	return res, nil
}

// killGroup sends SIGTERM to the command's process group, waits a grace
// period, then SIGKILLs stragglers.
func killGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	pgid := cmd.Process.Pid
	if err := syscall.Kill(-pgid, syscall.SIGTERM); err != nil {
		_ = cmd.Process.Kill()
		return
	}
	time.AfterFunc(killGracePeriod, func() {
		_ = syscall.Kill(-pgid, syscall.SIGKILL)
	})
}

// exitCode extracts the command's exit status. -1 when it never ran or was
// killed by a signal.
func exitCode(cmd *exec.Cmd, err error) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

func mergedEnv(extra []string) []string {
	if len(extra) == 0 {
		return nil // inherit parent environment
	}
	return append(os.Environ(), extra...)
}
