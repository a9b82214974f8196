package daemon

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oseligman/claude-autoyes/internal/config"
)

// ActivityFileName sits next to the config and liveness record.
const ActivityFileName = "activity.json"

// Activity maps a target to the time its last prompt was answered. The
// daemon writes it; status and the TUI read it. Best-effort only, a lost
// write costs nothing but a blank column.
type Activity map[string]time.Time

// ActivityStore persists dispatch timestamps across the process boundary
// between the daemon and its frontends.
type ActivityStore struct {
	path string
	mu   sync.Mutex
}

// NewActivityStore returns a store at the given path.
func NewActivityStore(path string) *ActivityStore {
	return &ActivityStore{path: path}
}

// DefaultActivityStore places the file under ~/.claude-autoyes.
func DefaultActivityStore() (*ActivityStore, error) {
	dir, err := config.AppDir()
	if err != nil {
		return nil, err
	}
	return NewActivityStore(filepath.Join(dir, ActivityFileName)), nil
}

// Load reads the activity map. A missing file is an empty map.
func (s *ActivityStore) Load() (Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *ActivityStore) loadLocked() (Activity, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Activity{}, nil
		}
		return nil, err
	}
	var activity Activity
	if err := json.Unmarshal(data, &activity); err != nil {
		// Unreadable activity is disposable, start over.
		return Activity{}, nil
	}
	return activity, nil
}

// Record stores the dispatch time for a target.
func (s *ActivityStore) Record(target string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	activity, err := s.loadLocked()
	if err != nil {
		return err
	}
	activity[target] = at
	return s.saveLocked(activity)
}

// Prune drops entries whose target no longer exists. Writes only when
// something actually changed.
func (s *ActivityStore) Prune(active map[string]bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	activity, err := s.loadLocked()
	if err != nil {
		return err
	}
	changed := false
	for target := range activity {
		if !active[target] {
			delete(activity, target)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.saveLocked(activity)
}

func (s *ActivityStore) saveLocked(activity Activity) error {
	data, err := json.MarshalIndent(activity, "", "  ")
	if err != nil {
		return err
	}
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write activity file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to finalize activity file: %w", err)
	}
	return nil
}
