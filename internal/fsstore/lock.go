package fsstore

import (
	"context"
	"fmt"
	"path/filepath"
	"time"
)

const lockRetryWait = 25 * time.Millisecond

// WithLock runs fn while holding an exclusive lock on lockPath. The lock
// guards against other processes; in-process callers still need their own
// mutex.
func WithLock(ctx context.Context, lockPath string, fn func() error) error {
	normalized, err := normalizePath(lockPath)
	if err != nil {
		return err
	}
	if fn == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := EnsureDir(filepath.Dir(normalized)); err != nil {
		return err
	}
	return withLockFile(ctx, normalized, fn)
}

func waitForLockRetry(ctx context.Context, lockPath string) error {
	timer := time.NewTimer(lockRetryWait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %s: %v", ErrLockUnavailable, lockPath, ctx.Err())
	case <-timer.C:
		return nil
	}
}
