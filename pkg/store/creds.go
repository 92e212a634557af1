package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// CredentialStore holds per-repository access tokens in a YAML file keyed by
// "org/name". The file is rewritten atomically on every change and kept at
// mode 0600 because it contains secrets.
type CredentialStore struct {
	mu   sync.Mutex
	path string
}

// NewCredentialStore manages credentials at path (typically
// <home>/credentials.yaml).
func NewCredentialStore(path string) *CredentialStore {
	return &CredentialStore{path: path}
}

type credentialsFile struct {
	Repositories map[string]string `yaml:"repositories"`
}

// Get returns the token stored for a repository full name, or "" when none
// is recorded.
func (c *CredentialStore) Get(fullName string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	creds, err := c.load()
	if err != nil {
		return "", err
	}
	return creds.Repositories[fullName], nil
}

// Set records (or replaces) the token for a repository full name.
func (c *CredentialStore) Set(fullName, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	creds, err := c.load()
	if err != nil {
		return err
	}
	if creds.Repositories == nil {
		creds.Repositories = make(map[string]string)
	}
	creds.Repositories[fullName] = token
	return c.save(creds)
}

// Delete removes the token for a repository full name. Removing a missing
// entry is not an error.
func (c *CredentialStore) Delete(fullName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	creds, err := c.load()
	if err != nil {
		return err
	}
	if _, ok := creds.Repositories[fullName]; !ok {
		return nil
	}
	delete(creds.Repositories, fullName)
	return c.save(creds)
}

func (c *CredentialStore) load() (credentialsFile, error) {
	var creds credentialsFile
	data, err := os.ReadFile(c.path) //nolint:gosec // path is constructed internally
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return creds, nil
		}
		return creds, fmt.Errorf("read credentials: %w", err)
	}
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return creds, fmt.Errorf("parse credentials: %w", err)
	}
	return creds, nil
}

// save writes to a temp file in the same directory, then renames into place,
// so a crash mid-write never leaves a truncated credentials file.
func (c *CredentialStore) save(creds credentialsFile) error {
	data, err := yaml.Marshal(creds)
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create credentials dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".credentials-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp credentials: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write credentials: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("chmod credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close credentials: %w", err)
	}
	if err := os.Rename(tmpName, c.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace credentials: %w", err)
	}
	return nil
}
