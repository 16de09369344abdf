package db

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"lie-detector/models"
	"lie-detector/utils"
)

// JSONFileStore keeps all checkpoint reports in one JSON array on disk. It
// suits single-process tools such as the replay and capture commands.
type JSONFileStore struct {
	path string
	mu   sync.RWMutex
}

func NewJSONFileStore(path string) *JSONFileStore {
	return &JSONFileStore{path: filepath.Clean(path)}
}

// load reads all reports; callers hold the lock.
func (s *JSONFileStore) load() ([]models.CheckpointReport, error) {
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return []models.CheckpointReport{}, nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("error reading reports file: %v", err)
	}
	if len(data) == 0 {
		return []models.CheckpointReport{}, nil
	}

	var reports []models.CheckpointReport
	if err := json.Unmarshal(data, &reports); err != nil {
		return nil, fmt.Errorf("error unmarshaling reports: %v", err)
	}
	return reports, nil
}

func (s *JSONFileStore) StoreCheckpoint(_ context.Context, report *models.CheckpointReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	reports, err := s.load()
	if err != nil {
		return err
	}

	if report.ID == 0 {
		report.ID = time.Now().UnixNano()
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now().UTC()
	}
	reports = append(reports, *report)

	if dir := filepath.Dir(s.path); dir != "." && dir != "" {
		if err := utils.CreateFolder(dir); err != nil {
			return fmt.Errorf("error creating directory: %v", err)
		}
	}

	data, err := json.MarshalIndent(reports, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshaling reports: %v", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("error writing reports file: %v", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("error replacing reports file: %v", err)
	}
	return nil
}

func (s *JSONFileStore) SessionCheckpoints(_ context.Context, sessionID string) ([]models.CheckpointReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reports, err := s.load()
	if err != nil {
		return nil, err
	}

	out := []models.CheckpointReport{}
	for _, r := range reports {
		if r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Question < out[j].Question })
	return out, nil
}

func (s *JSONFileStore) RecentCheckpoints(_ context.Context, limit int) ([]models.CheckpointReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reports, err := s.load()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	// newest last on disk
	out := make([]models.CheckpointReport, 0, min(limit, len(reports)))
	for i := len(reports) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, reports[i])
	}
	return out, nil
}

func (s *JSONFileStore) Close() error { return nil }
