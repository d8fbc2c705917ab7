package staging

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"mediaprep/internal/faults"
)

var (
	unsafeName  = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
	workDirName = regexp.MustCompile(`^(.+)-[0-9]+$`)
)

// WorkDir is a scoped scratch directory for one item.
type WorkDir struct {
	path string
}

// NewWorkDir creates a fresh directory under stagingDir whose name starts with
// a sanitized form of the item name.
func NewWorkDir(stagingDir, item string) (*WorkDir, error) {
	stagingDir = strings.TrimSpace(stagingDir)
	if stagingDir == "" {
		return nil, faults.Wrap(faults.ErrStorage, "staging", "create", "staging dir not configured", nil)
	}
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return nil, faults.Wrap(faults.ErrStorage, "staging", "create", stagingDir, err)
	}
	prefix := strings.Trim(unsafeName.ReplaceAllString(item, "_"), "_.")
	if prefix == "" {
		prefix = "item"
	}
	dir, err := os.MkdirTemp(stagingDir, prefix+"-")
	if err != nil {
		return nil, faults.Wrap(faults.ErrStorage, "staging", "create", fmt.Sprintf("work dir for %q", item), err)
	}
	return &WorkDir{path: dir}, nil
}

// ItemFromWorkDir returns the sanitized item prefix of a directory name made
// by NewWorkDir, and false for any other name.
func ItemFromWorkDir(name string) (string, bool) {
	m := workDirName.FindStringSubmatch(name)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Path returns the directory path.
func (w *WorkDir) Path() string {
	return w.path
}

// File returns a path inside the work dir.
func (w *WorkDir) File(name string) string {
	return filepath.Join(w.path, name)
}

// Remove deletes the directory and everything in it. It is safe to call more
// than once.
func (w *WorkDir) Remove() error {
	if w == nil || w.path == "" {
		return nil
	}
	if err := os.RemoveAll(w.path); err != nil {
		return fmt.Errorf("remove work dir %s: %w", w.path, err)
	}
	return nil
}
