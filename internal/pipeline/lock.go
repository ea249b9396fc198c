package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/mrz1836/cadence/internal/clock"
	"github.com/mrz1836/cadence/internal/constants"
	cadenceerrors "github.com/mrz1836/cadence/internal/errors"
)

// lockInfo is the JSON body of the run lock file. The timestamp drives
// stale-lock detection: a crashed run must not block the checkpoint target
// forever.
type lockInfo struct {
	PID        int       `json:"pid"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// runLock is an advisory lock on a checkpoint target. Exactly one pipeline
// run may hold it; a second concurrent run fails fast with ErrConcurrentRun.
type runLock struct {
	path string
}

// acquireRunLock takes the advisory lock for the state directory. A lock
// file older than staleAfter is treated as abandoned and broken with a
// warning.
func acquireRunLock(ctx context.Context, stateDir string, staleAfter time.Duration, clk clock.Clock) (*runLock, error) {
	if err := os.MkdirAll(stateDir, 0o750); err != nil {
		return nil, cadenceerrors.Wrap(err, "failed to create state directory")
	}

	path := filepath.Join(stateDir, constants.RunLockFileName)

	for tries := 0; tries < 2; tries++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600) //#nosec G304 -- path is constructed internally
		if err == nil {
			info := lockInfo{PID: os.Getpid(), AcquiredAt: clk.Now().UTC()}
			data, marshalErr := json.Marshal(info)
			if marshalErr == nil {
				_, marshalErr = f.Write(data)
			}
			closeErr := f.Close()
			if marshalErr != nil || closeErr != nil {
				_ = os.Remove(path)
				return nil, cadenceerrors.Wrap(firstErr(marshalErr, closeErr), "failed to write run lock")
			}
			return &runLock{path: path}, nil
		}
		if !os.IsExist(err) {
			return nil, cadenceerrors.Wrap(err, "failed to create run lock")
		}

		holder, readErr := readLockInfo(path)
		if readErr == nil && clk.Now().UTC().Sub(holder.AcquiredAt) <= staleAfter {
			return nil, fmt.Errorf("%w: pipeline already running (pid %d since %s)",
				cadenceerrors.ErrConcurrentRun, holder.PID, holder.AcquiredAt.Format(time.RFC3339))
		}

		// Unreadable or expired lock: the holder is gone. Break it and take
		// the lock on the next pass.
		zerolog.Ctx(ctx).Warn().
			Str("lock", path).
			Dur("stale_after", staleAfter).
			Msg("breaking stale run lock")
		if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
			return nil, cadenceerrors.Wrap(removeErr, "failed to break stale run lock")
		}
	}

	return nil, fmt.Errorf("%w: lock contention persisted after breaking stale lock", cadenceerrors.ErrConcurrentRun)
}

// release removes the lock file.
func (l *runLock) release() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return cadenceerrors.Wrap(err, "failed to release run lock")
	}
	return nil
}

func readLockInfo(path string) (*lockInfo, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- path is constructed internally
	if err != nil {
		return nil, err
	}
	var info lockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
