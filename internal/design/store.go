package design

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// TokenStore persists the operator-approved design token.
type TokenStore struct {
	path string
}

// NewTokenStore creates a store rooted at the workspace dotdir.
func NewTokenStore(workspace string) *TokenStore {
	return &TokenStore{
		path: filepath.Join(workspace, ".stitcher", "design_tokens.json"),
	}
}

// Save persists the selected token synchronously.
func (ts *TokenStore) Save(token Token) error {
	if err := os.MkdirAll(filepath.Dir(ts.path), 0755); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize token: %w", err)
	}

	tmp := ts.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	if err := os.Rename(tmp, ts.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to persist token file: %w", err)
	}
	return nil
}

// Load returns the cached token, or the documented default (fallback slot 0)
// when no approved token exists. The second return reports whether a cached
// token was actually found.
func (ts *TokenStore) Load() (Token, bool) {
	data, err := os.ReadFile(ts.path)
	if err != nil {
		return FallbackToken(0), false
	}
	var token Token
	if err := json.Unmarshal(data, &token); err != nil {
		return FallbackToken(0), false
	}
	return token, true
}
