package workspace

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadRepoSettings(t *testing.T) {
	tests := []struct {
		name       string
		contents   string
		write      bool
		wantBranch string
		wantEnv    string
	}{
		{
			name:       "missing file yields defaults",
			wantBranch: "main",
		},
		{
			name:       "full settings",
			write:      true,
			contents:   "default_branch = \"develop\"\n\n[env]\nNODE_ENV = \"test\"\n",
			wantBranch: "develop",
			wantEnv:    "test",
		},
		{
			name:       "empty branch falls back",
			write:      true,
			contents:   "default_branch = \"\"\n",
			wantBranch: "main",
		},
		{
			name:       "malformed file yields defaults",
			write:      true,
			contents:   "default_branch = [broken",
			wantBranch: "main",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if tt.write {
				if err := os.WriteFile(filepath.Join(dir, ".ccd.toml"), []byte(tt.contents), 0o644); err != nil {
					t.Fatal(err)
				}
			}
			got := LoadRepoSettings(dir, nil)
			if got.DefaultBranch != tt.wantBranch {
				t.Errorf("DefaultBranch = %q, want %q", got.DefaultBranch, tt.wantBranch)
			}
			if tt.wantEnv != "" && got.Env["NODE_ENV"] != tt.wantEnv {
				t.Errorf("Env = %v", got.Env)
			}
		})
	}
}
