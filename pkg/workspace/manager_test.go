package workspace

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tohutohu/discord-claude-code-sub003/pkg/execute"
	"github.com/tohutohu/discord-claude-code-sub003/pkg/protocol"
)

// fakeRunner records git invocations and serves scripted outputs keyed by a
// substring of the joined command line.
type fakeRunner struct {
	calls   []string
	outputs map[string]execute.Result
	failOn  string
}

func (f *fakeRunner) Run(ctx context.Context, spec execute.Spec) (execute.Result, error) {
	cmdline := spec.Name + " " + strings.Join(spec.Args, " ")
	f.calls = append(f.calls, cmdline)
	if f.failOn != "" && strings.Contains(cmdline, f.failOn) {
		return execute.Result{ExitCode: 1, Stderr: "fatal: scripted failure"}, os.ErrInvalid
	}
	for key, res := range f.outputs {
		if strings.Contains(cmdline, key) {
			return res, nil
		}
	}
	return execute.Result{}, nil
}

func (f *fakeRunner) Stream(ctx context.Context, spec execute.Spec, onLine func(string)) (execute.Result, error) {
	return f.Run(ctx, spec)
}

func (f *fakeRunner) called(substr string) bool {
	for _, c := range f.calls {
		if strings.Contains(c, substr) {
			return true
		}
	}
	return false
}

func TestEnsureClonesOnFirstUse(t *testing.T) {
	home := t.TempDir()
	runner := &fakeRunner{}
	m := NewGitManager(home, runner, nil)

	path, err := m.Ensure(context.Background(), protocol.Repository{Org: "acme", Name: "widget"})
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	want := filepath.Join(home, "repos", "acme", "widget")
	if path != want {
		t.Errorf("path = %q, want %q", path, want)
	}
	if !runner.called("clone https://github.com/acme/widget.git") {
		t.Errorf("expected clone, calls: %v", runner.calls)
	}
}

func TestEnsureFetchesExistingClone(t *testing.T) {
	home := t.TempDir()
	repoPath := filepath.Join(home, "repos", "acme", "widget")
	if err := os.MkdirAll(filepath.Join(repoPath, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}

	runner := &fakeRunner{}
	m := NewGitManager(home, runner, nil)
	path, err := m.Ensure(context.Background(), protocol.Repository{Org: "acme", Name: "widget"})
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if path != repoPath {
		t.Errorf("path = %q", path)
	}
	if runner.called("clone") {
		t.Error("must not re-clone an existing repository")
	}
	if !runner.called("fetch --prune") {
		t.Errorf("expected fetch, calls: %v", runner.calls)
	}
}

func TestEnsureSurvivesFetchFailure(t *testing.T) {
	home := t.TempDir()
	repoPath := filepath.Join(home, "repos", "acme", "widget")
	if err := os.MkdirAll(filepath.Join(repoPath, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}

	runner := &fakeRunner{failOn: "fetch"}
	m := NewGitManager(home, runner, nil)
	if _, err := m.Ensure(context.Background(), protocol.Repository{Org: "acme", Name: "widget"}); err != nil {
		t.Errorf("fetch failure must not fail Ensure: %v", err)
	}
}

func TestCreateIsolatedCopy(t *testing.T) {
	repoPath := t.TempDir()
	runner := &fakeRunner{}
	m := NewGitManager(t.TempDir(), runner, nil)

	path, err := m.CreateIsolatedCopy(context.Background(), repoPath, "thread-7")
	if err != nil {
		t.Fatalf("CreateIsolatedCopy: %v", err)
	}
	want := filepath.Join(repoPath, ".worktrees", "thread-7")
	if path != want {
		t.Errorf("path = %q, want %q", path, want)
	}
	if !runner.called("worktree add " + want + " -b ccd/thread-7 main") {
		t.Errorf("unexpected git calls: %v", runner.calls)
	}
}

func TestCreateIsolatedCopyHonorsSettingsFile(t *testing.T) {
	repoPath := t.TempDir()
	settings := []byte("default_branch = \"develop\"\n")
	if err := os.WriteFile(filepath.Join(repoPath, ".ccd.toml"), settings, 0o644); err != nil {
		t.Fatal(err)
	}

	runner := &fakeRunner{}
	m := NewGitManager(t.TempDir(), runner, nil)
	if _, err := m.CreateIsolatedCopy(context.Background(), repoPath, "thread-8"); err != nil {
		t.Fatalf("CreateIsolatedCopy: %v", err)
	}
	if !runner.called("-b ccd/thread-8 develop") {
		t.Errorf("settings branch not used: %v", runner.calls)
	}
}

func TestCreateIsolatedCopyRejectsBadOwner(t *testing.T) {
	m := NewGitManager(t.TempDir(), &fakeRunner{}, nil)
	if _, err := m.CreateIsolatedCopy(context.Background(), t.TempDir(), "../escape"); err == nil {
		t.Error("traversal owner name must be rejected")
	}
}

func TestRemoveFallsBackWhenGitRefuses(t *testing.T) {
	repoPath := t.TempDir()
	isolated := filepath.Join(repoPath, ".worktrees", "gone")
	if err := os.MkdirAll(isolated, 0o755); err != nil {
		t.Fatal(err)
	}

	runner := &fakeRunner{failOn: "worktree remove"}
	m := NewGitManager(t.TempDir(), runner, nil)
	if err := m.Remove(context.Background(), repoPath, isolated); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(isolated); !os.IsNotExist(err) {
		t.Error("directory should be removed by the fallback")
	}
	if !runner.called("worktree prune") {
		t.Errorf("expected prune after fallback: %v", runner.calls)
	}
}

func TestIsRegistered(t *testing.T) {
	repoPath := "/repo"
	porcelain := "worktree /repo\nHEAD aaaa\n\nworktree /repo/.worktrees/t1\nHEAD bbbb\nbranch refs/heads/ccd/t1\n"
	runner := &fakeRunner{outputs: map[string]execute.Result{
		"worktree list --porcelain": {Output: porcelain},
	}}
	m := NewGitManager(t.TempDir(), runner, nil)

	if !m.IsRegistered(context.Background(), repoPath, "/repo/.worktrees/t1") {
		t.Error("registered worktree not recognized")
	}
	if m.IsRegistered(context.Background(), repoPath, "/repo/.worktrees/t2") {
		t.Error("unknown worktree reported as registered")
	}
}
