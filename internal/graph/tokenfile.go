package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
)

// Token file permissions: owner-only.
const (
	tokenFilePerms = 0o600
	tokenDirPerms  = 0o700
)

// tokenFile is the on-disk format for saved credentials.
type tokenFile struct {
	Token *oauth2.Token `json:"token"`
}

// loadToken reads a saved token. Returns (nil, nil) if the file does not exist.
func loadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("graph: reading token file %s: %w", path, err)
	}

	var tf tokenFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("graph: decoding token file %s: %w", path, err)
	}

	if tf.Token == nil {
		return nil, fmt.Errorf("graph: token file %s has no token (re-login required)", path)
	}

	return tf.Token, nil
}

// saveToken writes a token file atomically (write-to-temp + rename) with
// 0600 permissions. Never logs token values.
func saveToken(path string, tok *oauth2.Token) error {
	data, err := json.MarshalIndent(tokenFile{Token: tok}, "", "  ")
	if err != nil {
		return fmt.Errorf("graph: encoding token: %w", err)
	}

	dir := filepath.Dir(path)
	if mkErr := os.MkdirAll(dir, tokenDirPerms); mkErr != nil {
		return fmt.Errorf("graph: creating token directory %s: %w", dir, mkErr)
	}

	// Same directory guarantees same filesystem for rename(2).
	tmp, err := os.CreateTemp(dir, ".token-*.tmp")
	if err != nil {
		return fmt.Errorf("graph: creating temp token file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, tokenFilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("graph: setting token file permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("graph: writing token file: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("graph: syncing token file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("graph: closing token file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("graph: renaming token file: %w", err)
	}

	success = true

	return nil
}
