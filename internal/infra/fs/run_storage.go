package fs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const lastRunFile = "last_run.json"

type AccountSnapshot struct {
	Name         string `json:"name"`
	OK           bool   `json:"ok"`
	Message      string `json:"message"`
	PushPlusSent bool   `json:"pushplusSent"`
}

// RunSnapshot is the JSON record of the most recent batch.
type RunSnapshot struct {
	RunID       string            `json:"runId"`
	StartedAt   time.Time         `json:"startedAt"`
	DurationMs  int64             `json:"durationMs"`
	Failed      bool              `json:"failed"`
	ConfigError string            `json:"configError,omitempty"`
	Accounts    []AccountSnapshot `json:"accounts,omitempty"`
	Lines       []string          `json:"lines"`
}

// RunStore writes snapshots under one directory. An empty dir disables it.
type RunStore struct {
	dir string
}

func NewRunStore(dir string) *RunStore {
	return &RunStore{dir: dir}
}

// Save overwrites last_run.json atomically and returns its path.
func (s *RunStore) Save(snapshot RunSnapshot) (string, error) {
	if s.dir == "" {
		return "", nil
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal run snapshot: %w", err)
	}

	fullPath := filepath.Join(s.dir, lastRunFile)
	tmp, err := os.CreateTemp(s.dir, lastRunFile+".*")
	if err != nil {
		return "", fmt.Errorf("failed to save run snapshot: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to save run snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to save run snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to save run snapshot: %w", err)
	}
	return fullPath, nil
}

// Load reads last_run.json. A missing file is reported with os.ErrNotExist.
func (s *RunStore) Load() (*RunSnapshot, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, lastRunFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read run snapshot: %w", err)
	}
	var snapshot RunSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to parse run snapshot: %w", err)
	}
	return &snapshot, nil
}
