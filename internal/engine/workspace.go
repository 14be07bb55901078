package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

const workspacePrefix = "ctxmeta-"

// Workspace is the scratch directory for a single engine invocation:
//
//	<root>/ctxmeta-<uuid>/
//	  config.yaml
//	  input/<source>.json
//	  output/<lang>.json
type Workspace struct {
	dir         string
	releaseOnce sync.Once
	releaseErr  error
}

// Acquire creates a fresh workspace under root, or under the system temp
// directory when root is empty. The caller owns it until Release.
func Acquire(root string) (*Workspace, error) {
	if root == "" {
		root = os.TempDir()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}

	dir := filepath.Join(root, workspacePrefix+uuid.NewString())
	if err := os.Mkdir(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	ws := &Workspace{dir: dir}
	for _, sub := range []string{ws.InputDir(), ws.OutputDir()} {
		if err := os.Mkdir(sub, 0o700); err != nil {
			_ = ws.Release()
			return nil, fmt.Errorf("create workspace: %w", err)
		}
	}
	return ws, nil
}

func (w *Workspace) Dir() string {
	return w.dir
}

func (w *Workspace) ConfigPath() string {
	return filepath.Join(w.dir, "config.yaml")
}

func (w *Workspace) InputDir() string {
	return filepath.Join(w.dir, "input")
}

func (w *Workspace) OutputDir() string {
	return filepath.Join(w.dir, "output")
}

// InputPath is where the source-language content is staged.
func (w *Workspace) InputPath(source string) string {
	return filepath.Join(w.InputDir(), source+".json")
}

// OutputPath is where the engine is expected to write lang's result.
func (w *Workspace) OutputPath(lang string) string {
	return filepath.Join(w.OutputDir(), lang+".json")
}

// Release removes the workspace. Safe to call more than once.
func (w *Workspace) Release() error {
	w.releaseOnce.Do(func() {
		w.releaseErr = os.RemoveAll(w.dir)
	})
	return w.releaseErr
}
