package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"stitcher/internal/design"
)

// State is the persisted record of what a run in this workspace has already
// produced. It is operator-owned: nothing deletes it automatically.
type State struct {
	RunID            string            `json:"run_id,omitempty"`
	CompletedSteps   []string          `json:"completed_steps"`
	CachedPlan       LayoutPlan        `json:"cached_plan"`
	CachedVariantSet design.VariantSet `json:"cached_variant_set"`
}

func newState() *State {
	return &State{CompletedSteps: []string{}}
}

// StateStore persists pipeline state under .stitcher/pipeline_state.json.
// Writes are synchronous and last-writer-wins; one writer per run.
type StateStore struct {
	mu    sync.Mutex
	path  string
	state *State
}

func NewStateStore(workspace string) *StateStore {
	return &StateStore{
		path: filepath.Join(workspace, ".stitcher", "pipeline_state.json"),
	}
}

// Load reads the state file, defaulting to an empty state when the file is
// missing. A corrupt file also defaults, with the parse error surfaced so
// the caller can log it; the run is never blocked on recoverable state.
func (s *StateStore) Load() (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *StateStore) loadLocked() (*State, error) {
	if s.state != nil {
		return s.state, nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		s.state = newState()
		return s.state, nil
	}

	var loaded State
	if err := json.Unmarshal(data, &loaded); err != nil {
		s.state = newState()
		return s.state, fmt.Errorf("state file corrupt, starting fresh: %w", err)
	}
	if loaded.CompletedSteps == nil {
		loaded.CompletedSteps = []string{}
	}
	s.state = &loaded
	return s.state, nil
}

// MarkComplete records a stage as done, caches its payload, and persists
// before returning. Payload routing follows type: a LayoutPlan lands in
// cached_plan, a VariantSet in cached_variant_set, nil caches nothing.
func (s *StateStore) MarkComplete(stage string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, _ := s.loadLocked()

	switch p := payload.(type) {
	case nil:
	case LayoutPlan:
		state.CachedPlan = p
	case []string:
		state.CachedPlan = LayoutPlan(p)
	case design.VariantSet:
		state.CachedVariantSet = p
	default:
		return fmt.Errorf("uncacheable payload type %T for stage %s", payload, stage)
	}

	if !containsStep(state.CompletedSteps, stage) {
		state.CompletedSteps = append(state.CompletedSteps, stage)
	}
	return s.saveLocked()
}

// SetRunID stamps the current run into the persisted state.
func (s *StateStore) SetRunID(runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, _ := s.loadLocked()
	state.RunID = runID
	return s.saveLocked()
}

// IsComplete reports whether a stage committed in a previous (or this) run.
func (s *StateStore) IsComplete(stage string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, _ := s.loadLocked()
	return containsStep(state.CompletedSteps, stage)
}

func (s *StateStore) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}
	return os.Rename(tmp, s.path)
}

func containsStep(steps []string, stage string) bool {
	for _, s := range steps {
		if s == stage {
			return true
		}
	}
	return false
}
