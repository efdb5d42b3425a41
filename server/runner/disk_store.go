package runner

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// DiskStore persists run history to disk as JSON files.
type DiskStore struct {
	dir       string
	logger    *slog.Logger
	maxCount  int
	summaries []RunSummary                // protected by mu
	stages    map[string][]StageExecution // protected by mu
	files     map[string]string           // run ID -> path, protected by mu
	mu        sync.Mutex
}

// NewDiskStore creates a new disk-backed store.
// The directory is created if it doesn't exist, and existing runs are loaded.
func NewDiskStore(dir string, maxCount int, logger *slog.Logger) (*DiskStore, error) {
	s := &DiskStore{
		dir:       dir,
		logger:    logger,
		maxCount:  maxCount,
		summaries: make([]RunSummary, 0),
		stages:    make(map[string][]StageExecution),
		files:     make(map[string]string),
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	if err := s.Reload(); err != nil {
		// Continue without existing data
		logger.Warn("failed to load existing runs", "error", err)
	}

	return s, nil
}

// History returns all runs as summaries.
func (s *DiskStore) History() []RunSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]RunSummary, len(s.summaries))
	copy(result, s.summaries)
	return result
}

// Logs returns the stage executions for a specific run.
func (s *DiskStore) Logs(id string) ([]StageExecution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stages, ok := s.stages[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	result := make([]StageExecution, len(stages))
	copy(result, stages)
	return result, nil
}

// Save persists a run to disk and updates the in-memory representation.
// Runs beyond maxCount are removed from memory and from disk.
func (s *DiskStore) Save(run RunStatus) error {
	if run.StartedAt == nil {
		return fmt.Errorf("cannot save run without start time")
	}
	if run.ID == "" {
		return fmt.Errorf("cannot save run without id")
	}

	record := runRecord{
		RunSummary: run.RunSummary,
		Stages:     run.Stages,
		Result:     run.Result,
	}

	// 2006-01-02T15-04-05-<id>.json keeps files ordered by start time.
	filename := run.StartedAt.Format("2006-01-02T15-04-05") + "-" + run.ID + ".json"
	path := filepath.Join(s.dir, filename)

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write run file: %w", err)
	}

	s.summaries = append([]RunSummary{run.RunSummary}, s.summaries...)
	s.stages[run.ID] = run.Stages
	s.files[run.ID] = path

	for s.maxCount > 0 && len(s.summaries) > s.maxCount {
		oldest := s.summaries[len(s.summaries)-1]
		if p, ok := s.files[oldest.ID]; ok {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				s.logger.Warn("failed to remove old run file", "file", p, "error", err)
			}
		}
		delete(s.stages, oldest.ID)
		delete(s.files, oldest.ID)
		s.summaries = s.summaries[:len(s.summaries)-1]
	}

	s.logger.Debug("saved run to disk", "path", path)
	return nil
}

// Reload re-loads all runs from disk.
func (s *DiskStore) Reload() error {
	records, files, err := s.load()
	if err != nil {
		return err
	}

	summaries := make([]RunSummary, len(records))
	stages := make(map[string][]StageExecution, len(records))
	for i, rec := range records {
		summaries[i] = rec.RunSummary
		stages[rec.ID] = rec.Stages
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries = summaries
	s.stages = stages
	s.files = files

	s.logger.Info("loaded run history from disk", "count", len(summaries))
	return nil
}

// load reads every run file in the state directory, most recent first.
func (s *DiskStore) load() ([]runRecord, map[string]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read state directory: %w", err)
	}

	records := make([]runRecord, 0, len(entries))
	files := make(map[string]string, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		path := filepath.Join(s.dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn("failed to read run file", "file", path, "error", err)
			continue
		}

		var rec runRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			s.logger.Warn("failed to parse run file", "file", path, "error", err)
			continue
		}
		if rec.ID == "" || rec.StartedAt == nil {
			s.logger.Warn("skipping run file without id or start time", "file", path)
			continue
		}

		records = append(records, rec)
		files[rec.ID] = path
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].StartedAt.After(*records[j].StartedAt)
	})

	if s.maxCount > 0 && len(records) > s.maxCount {
		for _, rec := range records[s.maxCount:] {
			delete(files, rec.ID)
		}
		records = records[:s.maxCount]
	}

	return records, files, nil
}
