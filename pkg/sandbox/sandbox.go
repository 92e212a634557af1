// Package sandbox starts and executes into isolated devcontainer
// environments through the `devcontainer` CLI. The core depends only on the
// Provider contract; image build and startup mechanics stay behind the CLI.
package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/tohutohu/discord-claude-code-sub003/pkg/execute"
)

// configRelPath is where a workspace declares its devcontainer.
const configRelPath = ".devcontainer/devcontainer.json"

// requiredFeature is the devcontainer feature that provisions the assistant
// CLI inside the container.
const requiredFeature = "anthropics/devcontainer-features/claude-code"

// Config describes a workspace's devcontainer configuration.
type Config struct {
	Exists           bool
	HasClaudeFeature bool
}

// Handle identifies a started environment.
type Handle struct {
	ContainerID string
}

// Provider is the isolated-environment contract consumed by workers.
type Provider interface {
	CheckConfig(path string) (Config, error)
	CheckRuntimeAvailable() bool
	Start(ctx context.Context, path string, env map[string]string, onProgress func(string)) (Handle, error)
	ExecIn(ctx context.Context, path string, argv []string, env map[string]string) (string, error)
}

// DevcontainerProvider is the production Provider backed by the devcontainer
// CLI and docker.
type DevcontainerProvider struct {
	runner execute.Runner
	log    *zap.Logger
}

// NewDevcontainerProvider returns a Provider that shells out to the
// devcontainer CLI.
func NewDevcontainerProvider(runner execute.Runner, log *zap.Logger) *DevcontainerProvider {
	if log == nil {
		log = zap.NewNop()
	}
	return &DevcontainerProvider{runner: runner, log: log}
}

// devcontainerJSON is the subset of devcontainer.json we inspect.
type devcontainerJSON struct {
	Features map[string]json.RawMessage `json:"features"`
}

// CheckConfig reports whether the workspace carries a devcontainer config
// and whether it declares the assistant-CLI feature.
func (p *DevcontainerProvider) CheckConfig(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Join(path, configRelPath)) //nolint:gosec // path is constructed internally
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("read devcontainer config: %w", err)
	}

	cfg := Config{Exists: true}
	var parsed devcontainerJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		// A config that exists but fails to parse still counts as present;
		// the feature check just cannot succeed.
		p.log.Warn("parse devcontainer config", zap.String("path", path), zap.Error(err))
		return cfg, nil
	}
	for feature := range parsed.Features {
		if strings.Contains(feature, requiredFeature) {
			cfg.HasClaudeFeature = true
			break
		}
	}
	return cfg, nil
}

// CheckRuntimeAvailable reports whether both docker and the devcontainer CLI
// are on PATH.
func (p *DevcontainerProvider) CheckRuntimeAvailable() bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	if _, err := exec.LookPath("devcontainer"); err != nil {
		return false
	}
	return true
}

// upResult is the JSON the devcontainer CLI prints on the final line of
// `devcontainer up`.
type upResult struct {
	Outcome     string `json:"outcome"`
	ContainerID string `json:"containerId"`
	Message     string `json:"message"`
}

// Start runs `devcontainer up`, streaming build/startup progress lines to
// onProgress, and returns the container handle from the CLI's result line.
func (p *DevcontainerProvider) Start(ctx context.Context, path string, env map[string]string, onProgress func(string)) (Handle, error) {
	var lastJSON string
	res, err := p.runner.Stream(ctx, execute.Spec{
		Name: "devcontainer",
		Args: []string{"up", "--workspace-folder", path},
		Env:  envSlice(env),
	}, func(line string) {
		if strings.HasPrefix(line, "{") {
			lastJSON = line
			return
		}
		if onProgress != nil && strings.TrimSpace(line) != "" {
			onProgress(line)
		}
	})
	if err != nil {
		return Handle{}, fmt.Errorf("devcontainer up %s: %w (%s)", path, err, strings.TrimSpace(res.Stderr))
	}

	var out upResult
	if lastJSON == "" || json.Unmarshal([]byte(lastJSON), &out) != nil {
		return Handle{}, fmt.Errorf("devcontainer up %s: no result line in output", path)
	}
	if out.Outcome != "success" {
		return Handle{}, fmt.Errorf("devcontainer up %s: %s", path, out.Message)
	}
	p.log.Info("devcontainer started", zap.String("path", path), zap.String("container", out.ContainerID))
	return Handle{ContainerID: out.ContainerID}, nil
}

// ExecIn runs argv inside the workspace's running container via
// `devcontainer exec` and returns its output.
func (p *DevcontainerProvider) ExecIn(ctx context.Context, path string, argv []string, env map[string]string) (string, error) {
	args := append([]string{"exec", "--workspace-folder", path}, argv...)
	res, err := p.runner.Run(ctx, execute.Spec{
		Name: "devcontainer",
		Args: args,
		Env:  envSlice(env),
	})
	if err != nil {
		return res.Output, fmt.Errorf("devcontainer exec %s: %w (%s)", path, err, strings.TrimSpace(res.Stderr))
	}
	return res.Output, nil
}

func envSlice(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}
