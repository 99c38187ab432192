package adapters

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// VisitorCodeStore persists the visitor code of this installation in a file named
// after the tracking code, so reinstalling with another tracking code yields a new
// visitor.
type VisitorCodeStore struct {
	path string

	mu   sync.Mutex
	code string
}

// NewVisitorCodeStore keeps the installation file in dir.
func NewVisitorCodeStore(dir, trackingCode string) *VisitorCodeStore {
	return &VisitorCodeStore{path: filepath.Join(dir, "INSTALLATION-"+trackingCode)}
}

// Code returns the stored visitor code, creating it on first use.
func (v *VisitorCodeStore) Code(_ context.Context) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.code != "" {
		return v.code, nil
	}

	data, err := os.ReadFile(v.path)
	switch {
	case err == nil && strings.TrimSpace(string(data)) != "":
		v.code = strings.TrimSpace(string(data))
		return v.code, nil
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		return "", fmt.Errorf("failed to read installation file: %w", err)
	}

	code := uuid.NewString()
	if err := os.MkdirAll(filepath.Dir(v.path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create installation dir: %w", err)
	}
	if err := os.WriteFile(v.path, []byte(code), 0o600); err != nil {
		return "", fmt.Errorf("failed to write installation file: %w", err)
	}
	v.code = code
	return code, nil
}
