// Package session persists which guardrail skills have already fired in a
// session, so a guardrail blocks at most once per session.
package session

import (
	"context"
	"sort"
	"sync"
)

// State is the per-session record.
type State struct {
	SkillsUsed []string `json:"skills_used"`
	// FilesVerified is carried for forward compatibility; matching ignores it.
	FilesVerified []string `json:"files_verified"`
}

// HasSkill reports whether name has already been surfaced this session.
func (s *State) HasSkill(name string) bool {
	if s == nil {
		return false
	}
	for _, n := range s.SkillsUsed {
		if n == name {
			return true
		}
	}
	return false
}

// AddSkill records name, keeping SkillsUsed sorted and unique. It reports
// whether the state changed.
func (s *State) AddSkill(name string) bool {
	i := sort.SearchStrings(s.SkillsUsed, name)
	if i < len(s.SkillsUsed) && s.SkillsUsed[i] == name {
		return false
	}
	s.SkillsUsed = append(s.SkillsUsed, "")
	copy(s.SkillsUsed[i+1:], s.SkillsUsed[i:])
	s.SkillsUsed[i] = name
	return true
}

func (s *State) normalize() {
	if s.SkillsUsed == nil {
		s.SkillsUsed = []string{}
	}
	if s.FilesVerified == nil {
		s.FilesVerified = []string{}
	}
	sort.Strings(s.SkillsUsed)
}

// Store reads and writes session state by session id. Get returns an empty
// state, not an error, for an unknown session.
type Store interface {
	Get(ctx context.Context, sessionID string) (*State, error)
	Save(ctx context.Context, sessionID string, state *State) error
}

// MemoryStore is a thread-safe in-memory Store, used for dry runs and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]State
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]State)}
}

func (m *MemoryStore) Get(ctx context.Context, sessionID string) (*State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.states[sessionID]
	if !ok {
		empty := &State{}
		empty.normalize()
		return empty, nil
	}
	return cloneState(st), nil
}

func (m *MemoryStore) Save(ctx context.Context, sessionID string, state *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.states[sessionID] = *cloneState(*state)
	return nil
}

func cloneState(s State) *State {
	c := &State{
		SkillsUsed:    append([]string{}, s.SkillsUsed...),
		FilesVerified: append([]string{}, s.FilesVerified...),
	}
	c.normalize()
	return c
}
