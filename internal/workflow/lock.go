package workflow

import (
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
)

// AcquireLock takes the batch lock in metaDir without blocking. It returns
// ErrBusy when another process holds it. Commands that rewrite sidecars or
// delete artifacts hold the same lock as a batch.
func AcquireLock(metaDir string) (*flock.Flock, error) {
	lock := flock.New(filepath.Join(metaDir, LockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire batch lock: %w", err)
	}
	if !locked {
		return nil, ErrBusy
	}
	return lock, nil
}
