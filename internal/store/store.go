// Package store provides persistent storage for scheduler jobs.
// Jobs are kept as a JSON mapping from job ID to job record in a single
// file. Saves are atomic: the full mapping is written to a temporary file
// which then replaces the real one, so a crash never leaves a partially
// written file visible under the final name.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aatumaykin/tickd/internal/job"
	"github.com/aatumaykin/tickd/internal/logger"
)

// ErrCorrupt is returned when the store file exists but cannot be parsed.
// The caller decides whether to abort startup or fall back to empty;
// the store never silently discards data.
var ErrCorrupt = errors.New("job store corrupt")

// Store persists the job mapping to a single backing file
type Store struct {
	filePath string
	logger   *logger.Logger
}

// New creates a Store backed by the given file path
func New(filePath string, log *logger.Logger) *Store {
	return &Store{
		filePath: filePath,
		logger:   log,
	}
}

// Path returns the backing file path
func (s *Store) Path() string {
	return s.filePath
}

// Load reads the job mapping from the backing file.
// A missing file is a first run and returns an empty mapping.
func (s *Store) Load() (map[string]job.Job, error) {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]job.Job), nil
		}
		s.logger.Error("failed to read store file", err,
			logger.Field{Key: "file", Value: s.filePath})
		return nil, fmt.Errorf("failed to read store file: %w", err)
	}

	var jobs map[string]job.Job
	if err := json.Unmarshal(data, &jobs); err != nil {
		s.logger.Error("failed to parse store file", err,
			logger.Field{Key: "file", Value: s.filePath})
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.filePath, err)
	}

	if jobs == nil {
		jobs = make(map[string]job.Job)
	}

	// Records written by older versions may omit state fields.
	for id, j := range jobs {
		if j.LastStatus == "" {
			j.LastStatus = job.StatusNeverRun
			jobs[id] = j
		}
	}

	return jobs, nil
}

// Save writes the full job mapping to the backing file using atomic replace
func (s *Store) Save(jobs map[string]job.Job) error {
	if err := os.MkdirAll(filepath.Dir(s.filePath), 0755); err != nil {
		s.logger.Error("failed to create store directory", err,
			logger.Field{Key: "dir", Value: filepath.Dir(s.filePath)})
		return err
	}

	data, err := json.MarshalIndent(jobs, "", "  ")
	if err != nil {
		s.logger.Error("failed to marshal jobs", err)
		return err
	}

	tmpPath := s.filePath + ".tmp"

	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		s.logger.Error("failed to create temporary store file", err,
			logger.Field{Key: "file", Value: tmpPath})
		return err
	}

	if _, err := file.Write(append(data, '\n')); err != nil {
		file.Close()
		s.logger.Error("failed to write temporary store file", err,
			logger.Field{Key: "file", Value: tmpPath})
		return err
	}

	// Flush to disk before the rename makes the new contents visible.
	if err := file.Sync(); err != nil {
		file.Close()
		s.logger.Error("failed to sync temporary store file", err,
			logger.Field{Key: "file", Value: tmpPath})
		return err
	}

	if err := file.Close(); err != nil {
		s.logger.Error("failed to close temporary store file", err,
			logger.Field{Key: "file", Value: tmpPath})
		return err
	}

	if err := os.Rename(tmpPath, s.filePath); err != nil {
		s.logger.Error("failed to rename temporary store file", err,
			logger.Field{Key: "from", Value: tmpPath},
			logger.Field{Key: "to", Value: s.filePath})
		return err
	}

	s.logger.Debug("jobs saved to store",
		logger.Field{Key: "count", Value: len(jobs)},
		logger.Field{Key: "file", Value: s.filePath})

	return nil
}
