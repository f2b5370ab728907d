package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/ramonehamilton/duelmeta/internal/meta"
)

// ErrNoCheckpoint is returned by Store.Load when nothing has been persisted.
var ErrNoCheckpoint = errors.New("no checkpoint")

// BatchState is the resumable state of one run.
type BatchState struct {
	RunID     string                     `json:"run_id"`
	Source    string                     `json:"source"`
	StartedAt string                     `json:"started_at"` // RFC 3339
	Queue     []meta.TournamentReference `json:"queue"`
	Results   []meta.DeckRecord          `json:"results"`
	Logs      []string                   `json:"logs"`
	Total     int                        `json:"total"`
}

// Clone returns a copy whose slices do not alias s.
func (s BatchState) Clone() BatchState {
	c := s
	c.Queue = slices.Clone(s.Queue)
	c.Results = slices.Clone(s.Results)
	c.Logs = slices.Clone(s.Logs)
	return c
}

// Processed returns the number of consumed units.
func (s BatchState) Processed() int {
	n := s.Total - len(s.Queue)
	if n < 0 {
		return 0
	}
	return n
}

// Progress returns the consumed fraction in [0, 1].
func (s BatchState) Progress() float64 {
	if s.Total <= 0 {
		return 0
	}
	return float64(s.Processed()) / float64(s.Total)
}

// Empty reports whether the state holds no run.
func (s BatchState) Empty() bool {
	return s.RunID == "" && s.Total == 0 && len(s.Queue) == 0 && len(s.Results) == 0
}

// Store persists a BatchState as a single whole value.
type Store interface {
	// Load returns ErrNoCheckpoint when no state is stored.
	Load(ctx context.Context) (BatchState, error)
	Save(ctx context.Context, state BatchState) error
	// RunID returns the run id of the stored state, or ErrNoCheckpoint.
	RunID(ctx context.Context) (string, error)
	// Delete succeeds when nothing is stored.
	Delete(ctx context.Context) error
}

// FileStore keeps the checkpoint in a JSON file. Saves replace the whole
// file through a rename, so readers never see a partial write.
type FileStore struct {
	path string
}

// NewFileStore creates a file store at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the checkpoint file path.
func (f *FileStore) Path() string {
	return f.path
}

// Load reads the checkpoint file.
func (f *FileStore) Load(ctx context.Context) (BatchState, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return BatchState{}, ErrNoCheckpoint
	}
	if err != nil {
		return BatchState{}, fmt.Errorf("read checkpoint: %w", err)
	}

	var state BatchState
	if err := json.Unmarshal(data, &state); err != nil {
		return BatchState{}, fmt.Errorf("decode checkpoint %s: %w", f.path, err)
	}
	return state, nil
}

// storedRun is the part of a stored state needed to identify its run.
type storedRun struct {
	RunID string `json:"run_id"`
}

// RunID reads the run id of the checkpoint file.
func (f *FileStore) RunID(ctx context.Context) (string, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNoCheckpoint
	}
	if err != nil {
		return "", fmt.Errorf("read checkpoint: %w", err)
	}

	var run storedRun
	if err := json.Unmarshal(data, &run); err != nil {
		return "", fmt.Errorf("decode checkpoint %s: %w", f.path, err)
	}
	return run.RunID, nil
}

// Save writes the checkpoint to a temp file and renames it over the target.
func (f *FileStore) Save(ctx context.Context, state BatchState) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create checkpoint directory: %w", err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	return nil
}

// Delete removes the checkpoint file.
func (f *FileStore) Delete(ctx context.Context) error {
	err := os.Remove(f.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}
