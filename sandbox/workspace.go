package sandbox

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/xid"
	"go.uber.org/zap"
)

// Workspace is the private directory of one execution.
type Workspace struct {
	ID  string
	Dir string

	fs       FileSystem
	released bool
}

// Path returns the absolute path of name inside the workspace.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.Dir, name)
}

// WriteFile writes data to name inside the workspace and returns its path.
func (w *Workspace) WriteFile(name string, data []byte) (string, error) {
	if err := validateEntryName(name); err != nil {
		return "", err
	}
	path := w.Path(name)
	if err := w.fs.WriteFile(path, data, FilePermission); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	return path, nil
}

// Mkdir creates a subdirectory of the workspace and returns its path.
func (w *Workspace) Mkdir(name string) (string, error) {
	if err := validateEntryName(name); err != nil {
		return "", err
	}
	path := w.Path(name)
	if err := w.fs.Mkdir(path, WorkspacePermission); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", name, err)
	}
	return path, nil
}

// Rename moves oldName to newName inside the workspace and returns the new path.
func (w *Workspace) Rename(oldName, newName string) (string, error) {
	for _, name := range []string{oldName, newName} {
		if err := validateEntryName(name); err != nil {
			return "", err
		}
	}
	newPath := w.Path(newName)
	if err := w.fs.Rename(w.Path(oldName), newPath); err != nil {
		return "", fmt.Errorf("failed to rename %s to %s: %w", oldName, newName, err)
	}
	return newPath, nil
}

func validateEntryName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid workspace entry name: %q", name)
	}
	return nil
}

// WorkspaceManager allocates and destroys execution workspaces under a shared
// scratch root. Directory names carry a fresh xid, so concurrent executions
// never coordinate.
type WorkspaceManager struct {
	logger *zap.Logger
	root   string
	prefix string
	fs     FileSystem
	now    func() time.Time
}

// WorkspaceOption defines a functional option for WorkspaceManager
type WorkspaceOption func(*WorkspaceManager)

// WithWorkspaceFileSystem sets the FileSystem for WorkspaceManager
func WithWorkspaceFileSystem(fs FileSystem) WorkspaceOption {
	return func(m *WorkspaceManager) {
		m.fs = fs
	}
}

// WithWorkspaceClock sets the clock used by Sweep
func WithWorkspaceClock(now func() time.Time) WorkspaceOption {
	return func(m *WorkspaceManager) {
		m.now = now
	}
}

// NewWorkspaceManager creates a WorkspaceManager rooted at root.
func NewWorkspaceManager(logger *zap.Logger, root, prefix string, opts ...WorkspaceOption) *WorkspaceManager {
	m := &WorkspaceManager{
		logger: logger,
		root:   root,
		prefix: prefix,
		fs:     RealFileSystem{},
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Root returns the scratch root directory.
func (m *WorkspaceManager) Root() string {
	return m.root
}

// Acquire creates a new, empty workspace owned exclusively by the caller.
func (m *WorkspaceManager) Acquire() (*Workspace, error) {
	if err := m.fs.MkdirAll(m.root, RootPermission); err != nil {
		return nil, fmt.Errorf("failed to create scratch root: %w", err)
	}

	id := xid.New().String()
	dir := filepath.Join(m.root, m.prefix+id)
	// Mkdir, not MkdirAll: an existing directory must never be reused.
	if err := m.fs.Mkdir(dir, WorkspacePermission); err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}

	m.logger.Debug("workspace acquired", zap.String("workspace_id", id), zap.String("dir", dir))

	return &Workspace{ID: id, Dir: dir, fs: m.fs}, nil
}

// Release removes the workspace tree. It is safe to call more than once and
// with a nil workspace; failures are logged, never returned.
func (m *WorkspaceManager) Release(ws *Workspace) {
	if ws == nil || ws.released {
		return
	}
	ws.released = true

	if err := m.removeTree(ws.Dir); err != nil {
		m.logger.Warn("failed to remove workspace",
			zap.String("workspace_id", ws.ID),
			zap.String("dir", ws.Dir),
			zap.Error(err))
		return
	}

	m.logger.Debug("workspace released", zap.String("workspace_id", ws.ID))
}

// Sweep removes workspaces left behind by a previous process whose xid
// timestamp is older than olderThan. Entries without the prefix or with an
// unparsable token are left alone.
func (m *WorkspaceManager) Sweep(olderThan time.Duration) (int, error) {
	entries, err := m.fs.ReadDir(m.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to list scratch root: %w", err)
	}

	cutoff := m.now().Add(-olderThan)
	removed := 0
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() || !strings.HasPrefix(name, m.prefix) {
			continue
		}

		id, err := xid.FromString(strings.TrimPrefix(name, m.prefix))
		if err != nil || !id.Time().Before(cutoff) {
			continue
		}

		if err := m.removeTree(filepath.Join(m.root, name)); err != nil {
			m.logger.Warn("failed to remove stale workspace", zap.String("dir", name), zap.Error(err))
			continue
		}
		removed++
	}

	if removed > 0 {
		m.logger.Info("removed stale workspaces", zap.Int("count", removed))
	}

	return removed, nil
}

// removeTree deletes dir. Programs can strip permissions from directories
// they created, which makes a plain RemoveAll fail for a non-root owner, so
// on failure owner access is restored on every directory and removal retried.
func (m *WorkspaceManager) removeTree(dir string) error {
	if err := m.fs.RemoveAll(dir); err == nil {
		return nil
	}

	// WalkDir visits a directory before reading it, so a chmod here makes
	// a locked directory readable in time for its own listing.
	_ = m.fs.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err == nil && d.IsDir() {
			if chmodErr := m.fs.Chmod(path, WorkspacePermission); chmodErr != nil {
				m.logger.Debug("failed to restore directory permissions", zap.String("path", path), zap.Error(chmodErr))
			}
		}
		return nil
	})

	return m.fs.RemoveAll(dir)
}
