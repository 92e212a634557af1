package store

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCredentialStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.yaml")
	c := NewCredentialStore(path)

	if got, err := c.Get("acme/widget"); err != nil || got != "" {
		t.Fatalf("Get on missing file = (%q, %v), want empty", got, err)
	}

	if err := c.Set("acme/widget", "token-1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := c.Set("acme/gadget", "token-2"); err != nil {
		t.Fatalf("Set second: %v", err)
	}

	got, err := c.Get("acme/widget")
	if err != nil || got != "token-1" {
		t.Errorf("Get = (%q, %v), want token-1", got, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("credentials file mode = %o, want 600", perm)
	}

	if err := c.Delete("acme/widget"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got, _ := c.Get("acme/widget"); got != "" {
		t.Errorf("deleted entry still present: %q", got)
	}
	if got, _ := c.Get("acme/gadget"); got != "token-2" {
		t.Errorf("unrelated entry lost: %q", got)
	}

	// Deleting a missing entry is fine.
	if err := c.Delete("acme/nothing"); err != nil {
		t.Errorf("Delete missing: %v", err)
	}
}
