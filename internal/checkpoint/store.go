// Package checkpoint provides durable persistence of pipeline state.
//
// The store keeps one current checkpoint (a single structured record at a
// fixed path, last-write-wins) plus an append-only history with one record
// per timestamp, named for lexical sortability. Raw command output lives in
// a separate artifact area keyed by run ID so checkpoints stay small.
//
// Writes use write-then-rename with fsync for atomicity and are guarded by
// an exclusive file lock. The store assumes single-writer discipline,
// enforced by the pipeline controller's run lock.
package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mrz1836/cadence/internal/clock"
	"github.com/mrz1836/cadence/internal/constants"
	"github.com/mrz1836/cadence/internal/ctxutil"
	"github.com/mrz1836/cadence/internal/domain"
	cadenceerrors "github.com/mrz1836/cadence/internal/errors"
)

// LockTimeout is the maximum duration to wait for acquiring the write lock.
const LockTimeout = 5 * time.Second

// Directory and file permission constants.
const (
	dirPerm  = 0o750 // Secure directory permissions
	filePerm = 0o600 // Secure file permissions
)

// maxArtifactVersions bounds the versioned-artifact search loop.
const maxArtifactVersions = 10000

// Store defines the interface for checkpoint persistence operations.
type Store interface {
	// WriteCheckpoint durably records a phase attempt: it appends the
	// checkpoint to history and then swaps the current pointer. The pair is
	// effectively atomic for readers: current never points at a checkpoint
	// absent from history.
	WriteCheckpoint(ctx context.Context, cp *domain.Checkpoint) error

	// ReadCurrent returns the current checkpoint.
	// Returns ErrCheckpointNotFound when no checkpoint has been written.
	ReadCurrent(ctx context.Context) (*domain.Checkpoint, error)

	// ReadHistory returns checkpoints ordered by timestamp ascending.
	// A zero since returns the full history.
	ReadHistory(ctx context.Context, since time.Time) ([]*domain.Checkpoint, error)

	// SaveRun persists the pipeline run summary under the run's directory.
	SaveRun(ctx context.Context, run *domain.PipelineRun) error

	// GetRun retrieves a persisted run summary.
	// Returns ErrRunNotFound if the run doesn't exist.
	GetRun(ctx context.Context, runID string) (*domain.PipelineRun, error)

	// SaveVersionedArtifact saves raw command output with an automatic
	// version suffix (e.g. green-unit.1.log). Returns the filename used.
	SaveVersionedArtifact(ctx context.Context, runID, baseName string, data []byte) (string, error)

	// GetArtifact retrieves an artifact file for a run.
	GetArtifact(ctx context.Context, runID, filename string) ([]byte, error)

	// ListArtifacts lists all artifact files for a run, sorted.
	ListArtifacts(ctx context.Context, runID string) ([]string, error)
}

// FileStore implements Store using the local filesystem.
type FileStore struct {
	stateDir   string
	clk        clock.Clock
	maxHistory int
}

// Option configures a FileStore.
type Option func(*FileStore)

// WithClock sets the clock used for checkpoint timestamps.
func WithClock(c clock.Clock) Option {
	return func(s *FileStore) {
		s.clk = c
	}
}

// WithMaxHistory sets the retention policy: when n > 0, the oldest history
// records beyond n are trimmed on write. Default 0 keeps history unlimited.
func WithMaxHistory(n int) Option {
	return func(s *FileStore) {
		s.maxHistory = n
	}
}

// NewFileStore creates a FileStore rooted at the given state directory.
func NewFileStore(stateDir string, opts ...Option) (*FileStore, error) {
	if stateDir == "" {
		return nil, fmt.Errorf("failed to create checkpoint store: state directory %w", cadenceerrors.ErrEmptyValue)
	}

	s := &FileStore{
		stateDir: stateDir,
		clk:      clock.RealClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// WriteCheckpoint appends the checkpoint to history, then swaps current.
func (s *FileStore) WriteCheckpoint(ctx context.Context, cp *domain.Checkpoint) error {
	if err := ctxutil.Canceled(ctx); err != nil {
		return err
	}
	if cp == nil {
		return fmt.Errorf("failed to write checkpoint: checkpoint %w", cadenceerrors.ErrEmptyValue)
	}
	if !constants.IsValidPhase(cp.Phase) {
		return fmt.Errorf("failed to write checkpoint: invalid phase %q", cp.Phase)
	}

	if err := os.MkdirAll(s.historyDir(), dirPerm); err != nil {
		return fmt.Errorf("%w: failed to create history directory: %v", cadenceerrors.ErrPersistence, err)
	}

	lockFile, err := s.acquireLock(ctx)
	if err != nil {
		return cadenceerrors.Wrap(err, "failed to write checkpoint")
	}
	defer func() { _ = s.releaseLock(lockFile) }()

	if cp.Timestamp.IsZero() {
		cp.Timestamp = s.clk.Now().UTC()
	} else {
		cp.Timestamp = cp.Timestamp.UTC()
	}

	// Nanosecond-bump on a filename collision keeps history keys unique
	// while preserving lexical ordering.
	for {
		if _, statErr := os.Stat(s.historyFilePath(cp.Timestamp)); os.IsNotExist(statErr) {
			break
		}
		cp.Timestamp = cp.Timestamp.Add(time.Nanosecond)
	}

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: failed to marshal checkpoint: %v", cadenceerrors.ErrPersistence, err)
	}

	// History first, current second: a reader must never observe a current
	// pointing to a checkpoint absent from history.
	if err := atomicWrite(s.historyFilePath(cp.Timestamp), data); err != nil {
		return fmt.Errorf("%w: failed to append history: %v", cadenceerrors.ErrPersistence, err)
	}
	if err := atomicWrite(s.currentFilePath(), data); err != nil {
		return fmt.Errorf("%w: failed to write current checkpoint: %v", cadenceerrors.ErrPersistence, err)
	}

	if s.maxHistory > 0 {
		if err := s.trimHistory(); err != nil {
			return fmt.Errorf("%w: failed to trim history: %v", cadenceerrors.ErrPersistence, err)
		}
	}

	return nil
}

// ReadCurrent returns the current checkpoint snapshot.
func (s *FileStore) ReadCurrent(ctx context.Context) (*domain.Checkpoint, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.currentFilePath()) //#nosec G304 -- path is constructed internally
	if err != nil {
		if os.IsNotExist(err) {
			return nil, cadenceerrors.ErrCheckpointNotFound
		}
		return nil, cadenceerrors.Wrap(err, "failed to read current checkpoint")
	}

	var cp domain.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, cadenceerrors.Wrap(err, "corrupted current checkpoint")
	}
	return &cp, nil
}

// ReadHistory returns history entries at or after since, ascending.
func (s *FileStore) ReadHistory(ctx context.Context, since time.Time) ([]*domain.Checkpoint, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.historyDir())
	if err != nil {
		if os.IsNotExist(err) {
			return []*domain.Checkpoint{}, nil
		}
		return nil, cadenceerrors.Wrap(err, "failed to read history directory")
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		names = append(names, entry.Name())
	}
	// History file names are basic ISO-8601 timestamps, so lexical order is
	// chronological order.
	sort.Strings(names)

	checkpoints := make([]*domain.Checkpoint, 0, len(names))
	for _, name := range names {
		if err := ctxutil.Canceled(ctx); err != nil {
			return nil, err
		}

		data, readErr := os.ReadFile(filepath.Join(s.historyDir(), name)) //#nosec G304 -- listed from internal dir
		if readErr != nil {
			return nil, cadenceerrors.Wrapf(readErr, "failed to read history entry %s", name)
		}

		var cp domain.Checkpoint
		if err := json.Unmarshal(data, &cp); err != nil {
			return nil, cadenceerrors.Wrapf(err, "corrupted history entry %s", name)
		}
		if !since.IsZero() && cp.Timestamp.Before(since) {
			continue
		}
		checkpoints = append(checkpoints, &cp)
	}

	return checkpoints, nil
}

// SaveRun persists the run summary as runs/<id>/run.json.
func (s *FileStore) SaveRun(ctx context.Context, run *domain.PipelineRun) error {
	if err := ctxutil.Canceled(ctx); err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("failed to save run: run %w", cadenceerrors.ErrEmptyValue)
	}
	if run.ID == "" {
		return fmt.Errorf("failed to save run: run ID %w", cadenceerrors.ErrEmptyValue)
	}

	runDir := s.runDir(run.ID)
	if err := os.MkdirAll(runDir, dirPerm); err != nil {
		return fmt.Errorf("%w: failed to create run directory: %v", cadenceerrors.ErrPersistence, err)
	}

	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: failed to marshal run: %v", cadenceerrors.ErrPersistence, err)
	}

	if err := atomicWrite(filepath.Join(runDir, constants.RunFileName), data); err != nil {
		return fmt.Errorf("%w: failed to write run: %v", cadenceerrors.ErrPersistence, err)
	}
	return nil
}

// GetRun retrieves a persisted run summary.
func (s *FileStore) GetRun(ctx context.Context, runID string) (*domain.PipelineRun, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}
	if runID == "" {
		return nil, fmt.Errorf("failed to get run: run ID %w", cadenceerrors.ErrEmptyValue)
	}

	data, err := os.ReadFile(filepath.Join(s.runDir(runID), constants.RunFileName)) //#nosec G304 -- path is constructed internally
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("run '%s': %w", runID, cadenceerrors.ErrRunNotFound)
		}
		return nil, cadenceerrors.Wrapf(err, "failed to read run '%s'", runID)
	}

	var run domain.PipelineRun
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, cadenceerrors.Wrapf(err, "corrupted run record '%s'", runID)
	}
	return &run, nil
}

// SaveVersionedArtifact saves raw output with automatic version numbering.
// For example, if "green-unit.log" is requested twice the files are
// "green-unit.1.log" and "green-unit.2.log".
func (s *FileStore) SaveVersionedArtifact(ctx context.Context, runID, baseName string, data []byte) (string, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return "", err
	}
	if runID == "" {
		return "", fmt.Errorf("failed to save artifact: run ID %w", cadenceerrors.ErrEmptyValue)
	}
	if baseName == "" {
		return "", fmt.Errorf("failed to save artifact: base name %w", cadenceerrors.ErrEmptyValue)
	}
	if err := validateFilename(baseName); err != nil {
		return "", cadenceerrors.Wrap(err, "failed to save artifact")
	}

	artifactDir := s.artifactsDir(runID)
	if err := os.MkdirAll(artifactDir, dirPerm); err != nil {
		return "", fmt.Errorf("%w: failed to create artifacts directory: %v", cadenceerrors.ErrPersistence, err)
	}

	ext := filepath.Ext(baseName)
	nameWithoutExt := strings.TrimSuffix(baseName, ext)

	for version := 1; version <= maxArtifactVersions; version++ {
		filename := fmt.Sprintf("%s.%d%s", nameWithoutExt, version, ext)
		fullPath := filepath.Join(artifactDir, filename)
		if _, err := os.Stat(fullPath); os.IsNotExist(err) {
			if err := atomicWrite(fullPath, data); err != nil {
				return "", fmt.Errorf("%w: failed to save artifact: %v", cadenceerrors.ErrPersistence, err)
			}
			return filename, nil
		}
	}
	return "", fmt.Errorf("failed to save artifact: %w", cadenceerrors.ErrTooManyVersions)
}

// GetArtifact retrieves an artifact file for a run.
func (s *FileStore) GetArtifact(ctx context.Context, runID, filename string) ([]byte, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}
	if runID == "" || filename == "" {
		return nil, fmt.Errorf("failed to get artifact: %w", cadenceerrors.ErrEmptyValue)
	}
	if err := validateFilename(filename); err != nil {
		return nil, cadenceerrors.Wrap(err, "failed to get artifact")
	}

	data, err := os.ReadFile(filepath.Join(s.artifactsDir(runID), filename)) //#nosec G304 -- path is validated
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("artifact '%s': %w", filename, cadenceerrors.ErrArtifactNotFound)
		}
		return nil, cadenceerrors.Wrapf(err, "failed to read artifact '%s'", filename)
	}
	return data, nil
}

// ListArtifacts lists all artifact files for a run.
func (s *FileStore) ListArtifacts(ctx context.Context, runID string) ([]string, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}
	if runID == "" {
		return nil, fmt.Errorf("failed to list artifacts: run ID %w", cadenceerrors.ErrEmptyValue)
	}

	entries, err := os.ReadDir(s.artifactsDir(runID))
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, cadenceerrors.Wrap(err, "failed to list artifacts")
	}

	filenames := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			filenames = append(filenames, entry.Name())
		}
	}
	sort.Strings(filenames)
	return filenames, nil
}

// trimHistory removes the oldest history entries beyond the retention limit.
// Caller must hold the write lock.
func (s *FileStore) trimHistory() error {
	entries, err := os.ReadDir(s.historyDir())
	if err != nil {
		return err
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".json") {
			names = append(names, entry.Name())
		}
	}
	if len(names) <= s.maxHistory {
		return nil
	}

	sort.Strings(names)
	for _, name := range names[:len(names)-s.maxHistory] {
		if err := os.Remove(filepath.Join(s.historyDir(), name)); err != nil {
			return err
		}
	}
	return nil
}

// Helper methods for path construction

func (s *FileStore) checkpointsDir() string {
	return filepath.Join(s.stateDir, constants.CheckpointsDir)
}

func (s *FileStore) historyDir() string {
	return filepath.Join(s.checkpointsDir(), constants.HistoryDir)
}

func (s *FileStore) currentFilePath() string {
	return filepath.Join(s.checkpointsDir(), constants.CurrentCheckpointFileName)
}

func (s *FileStore) historyFilePath(ts time.Time) string {
	return filepath.Join(s.historyDir(), ts.UTC().Format(constants.HistoryTimestampFormat)+".json")
}

func (s *FileStore) runDir(runID string) string {
	return filepath.Join(s.stateDir, constants.RunsDir, runID)
}

func (s *FileStore) artifactsDir(runID string) string {
	return filepath.Join(s.runDir(runID), constants.ArtifactsDir)
}

func (s *FileStore) lockFilePath() string {
	return filepath.Join(s.checkpointsDir(), constants.CurrentCheckpointFileName+".lock")
}

// validateFilename rejects names that could escape the artifact directory.
func validateFilename(name string) error {
	if strings.Contains(name, "..") || strings.Contains(name, "/") || strings.Contains(name, "\\") {
		return cadenceerrors.ErrPathTraversal
	}
	return nil
}
