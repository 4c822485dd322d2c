package report

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"
)

// ErrNoSnapshot is returned by Load when nothing has been saved yet.
var ErrNoSnapshot = errors.New("report: no snapshot saved")

// SnapshotStore keeps the last loaded report for redisplay without querying upstream.
// It is a display copy, separate from the fetch cache.
type SnapshotStore interface {
	Save(rep *Report) error
	Load() (*Report, error)
}

// FileSnapshots stores the snapshot as one JSON file.
type FileSnapshots struct {
	path string
	mu   sync.Mutex
}

// NewFileSnapshots creates a snapshot store writing to path.
func NewFileSnapshots(path string) *FileSnapshots {
	return &FileSnapshots{path: path}
}

// Path returns the snapshot file location.
func (s *FileSnapshots) Path() string {
	return s.path
}

// Save atomically replaces the snapshot with rep.
func (s *FileSnapshots) Save(rep *Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".snapshot-*.tmp")
	if err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// Load reads the saved snapshot.
func (s *FileSnapshots) Load() (*Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var rep Report
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &rep, nil
}
