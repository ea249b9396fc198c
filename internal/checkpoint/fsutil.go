package checkpoint

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	cadenceerrors "github.com/mrz1836/cadence/internal/errors"
	"github.com/mrz1836/cadence/internal/flock"
)

// lockRetryInterval is how often lock acquisition is retried while waiting.
const lockRetryInterval = 10 * time.Millisecond

// atomicWrite writes data to path atomically: write to a temp file in the
// same directory, fsync, then rename over the target. Readers see either the
// old content or the new content, never a torn write.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return cadenceerrors.Wrap(err, "failed to create temp file")
	}
	tmpName := tmp.Name()

	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	if _, err = tmp.Write(data); err != nil {
		cleanup()
		return cadenceerrors.Wrap(err, "failed to write temp file")
	}
	if err = tmp.Sync(); err != nil {
		cleanup()
		return cadenceerrors.Wrap(err, "failed to sync temp file")
	}
	if err = tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return cadenceerrors.Wrap(err, "failed to close temp file")
	}

	if err = os.Chmod(tmpName, filePerm); err != nil {
		_ = os.Remove(tmpName)
		return cadenceerrors.Wrap(err, "failed to set file permissions")
	}

	if err = os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return cadenceerrors.Wrap(err, "failed to rename temp file")
	}
	return nil
}

// acquireLock obtains an exclusive advisory lock on the store's lock file,
// retrying until LockTimeout elapses or the context is canceled.
func (s *FileStore) acquireLock(ctx context.Context) (*os.File, error) {
	lockPath := s.lockFilePath()

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, filePerm) //#nosec G304 -- path is constructed internally
	if err != nil {
		return nil, cadenceerrors.Wrap(err, "failed to open lock file")
	}

	deadline := time.Now().Add(LockTimeout)
	for {
		if err = flock.Exclusive(f.Fd()); err == nil {
			return f, nil
		}

		if time.Now().After(deadline) {
			_ = f.Close()
			return nil, fmt.Errorf("%w: store lock held for more than %s", cadenceerrors.ErrLockTimeout, LockTimeout)
		}

		select {
		case <-ctx.Done():
			_ = f.Close()
			return nil, ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}
}

// releaseLock unlocks and closes the lock file.
func (s *FileStore) releaseLock(f *os.File) error {
	if f == nil {
		return nil
	}
	unlockErr := flock.Unlock(f.Fd())
	closeErr := f.Close()
	if unlockErr != nil {
		return cadenceerrors.Wrap(unlockErr, "failed to release lock")
	}
	if closeErr != nil {
		return cadenceerrors.Wrap(closeErr, "failed to close lock file")
	}
	return nil
}
