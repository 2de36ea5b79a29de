// Package tokenfile handles reading and writing the credential file. The file
// stores the long-lived device token and the short-lived user token in YAML
// with field names byte-compatible with the wider rmapi ecosystem
// (devicetoken/usertoken). This is a leaf package: rmcloud loads and persists
// through it, and the CLI resolves the default location from it.
package tokenfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FilePerms restricts the credential file to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the credential file's directory.
const DirPerms = 0o700

// Default credential file locations.
const (
	// EnvConfig names the environment variable holding an explicit path.
	EnvConfig = "RMAPI_CONFIG"

	homeFileName = ".rmapi"
	xdgRelPath   = "rmapi/rmapi.conf"
)

// Credentials is the on-disk format for the credential file. DeviceToken is
// durable once obtained; UserToken is disposable and rewritten on every
// refresh.
type Credentials struct {
	DeviceToken string `yaml:"devicetoken"`
	UserToken   string `yaml:"usertoken"`
}

// DefaultPath determines the credential file path.
//
// Resolution order:
//  1. RMAPI_CONFIG environment variable (wins unconditionally when set)
//  2. ~/.rmapi, if it exists
//  3. $XDG_CONFIG_HOME/rmapi/rmapi.conf (default ~/.config/...), if it exists
//
// When none exists, ~/.rmapi is returned as the target for first-time writes.
func DefaultPath() string {
	if envPath := os.Getenv(EnvConfig); envPath != "" {
		return envPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return homeFileName
	}

	homePath := filepath.Join(home, homeFileName)
	if _, statErr := os.Stat(homePath); statErr == nil {
		return homePath
	}

	xdg := os.Getenv("XDG_CONFIG_HOME")
	if xdg == "" {
		xdg = filepath.Join(home, ".config")
	}

	xdgPath := filepath.Join(xdg, xdgRelPath)
	if _, statErr := os.Stat(xdgPath); statErr == nil {
		return xdgPath
	}

	return homePath
}

// Load reads the credential file from disk. Returns (nil, nil) if the file
// does not exist; the caller distinguishes "never registered" from a broken
// file.
func Load(path string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("tokenfile: reading %s: %w", path, err)
	}

	var creds Credentials
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("tokenfile: decoding %s: %w", path, err)
	}

	if creds.DeviceToken == "" && creds.UserToken == "" {
		return nil, nil //nolint:nilnil // empty file is treated as absent
	}

	return &creds, nil
}

// Save writes the credential file to disk atomically (write-to-temp + rename)
// with 0600 permissions. Never logs token values.
func Save(path string, creds *Credentials) error {
	if creds == nil {
		return fmt.Errorf("tokenfile: nothing to save")
	}

	data, err := yaml.Marshal(creds)
	if err != nil {
		return fmt.Errorf("tokenfile: encoding: %w", err)
	}

	dir := filepath.Dir(path)
	if mkErr := os.MkdirAll(dir, DirPerms); mkErr != nil {
		return fmt.Errorf("tokenfile: creating directory %s: %w", dir, mkErr)
	}

	// Atomic write: temp file in the same directory, then rename.
	// Same directory guarantees same filesystem for rename(2).
	tmp, err := os.CreateTemp(dir, ".rmapi-*.tmp")
	if err != nil {
		return fmt.Errorf("tokenfile: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	// Clean up temp file on any error path.
	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: writing: %w", err)
	}

	// Flush to stable storage before rename so a power loss between close and
	// rename cannot leave an empty or partial credential file at the final path.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("tokenfile: closing: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("tokenfile: renaming: %w", err)
	}

	success = true

	return nil
}
