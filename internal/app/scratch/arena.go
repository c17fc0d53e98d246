// Package scratch owns the per-operation temporary directory.
package scratch

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Arena is a private directory for one pipeline operation. Every temporary
// file an operation creates lives under Dir or is registered with Track, and
// all of it is removed by Release.
type Arena struct {
	dir    string
	logger *zap.Logger

	mu       sync.Mutex
	tracked  []string
	released bool
}

// New creates <root>/<uuid> and returns the arena owning it.
func New(root string, logger *zap.Logger) (*Arena, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dir := filepath.Join(root, uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	return &Arena{dir: dir, logger: logger}, nil
}

// Dir returns the arena directory.
func (a *Arena) Dir() string {
	return a.dir
}

// Path joins elem onto the arena directory.
func (a *Arena) Path(elem ...string) string {
	return filepath.Join(append([]string{a.dir}, elem...)...)
}

// Mkdir creates a sub-directory inside the arena.
func (a *Arena) Mkdir(name string) (string, error) {
	path := a.Path(name)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", fmt.Errorf("failed to create scratch sub-directory: %w", err)
	}
	return path, nil
}

// Track registers a path outside the arena directory for removal on Release.
func (a *Arena) Track(path string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tracked = append(a.tracked, path)
}

// Release removes every tracked path and the arena directory. It is safe to
// call more than once; removal errors are logged, never returned.
func (a *Arena) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.released {
		return
	}
	a.released = true

	for _, path := range a.tracked {
		if err := os.RemoveAll(path); err != nil {
			a.logger.Warn("failed to remove scratch file", zap.String("path", path), zap.Error(err))
		}
	}
	if err := os.RemoveAll(a.dir); err != nil {
		a.logger.Warn("failed to remove scratch directory", zap.String("dir", a.dir), zap.Error(err))
	}
}

// FileSize returns the size of a file in bytes
func FileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat file: %w", err)
	}
	return info.Size(), nil
}

// FileHash calculates the SHA256 of a file as lowercase hex.
func FileHash(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
