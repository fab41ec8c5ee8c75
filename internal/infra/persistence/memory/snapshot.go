package memory

import "sort"

// Snapshot is the portable serialization of the whole store: a flat, sorted
// listing of every scope's resources and progress records. Durable backends
// persist exactly this shape, so reconstruction never replays past actions.
type Snapshot struct {
	Resources []Resource `json:"resources"`
	Progress  []Progress `json:"progress"`
}

// ExportState captures the committed state of every scope in stable order.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var snapshot Snapshot
	keys := make([]string, 0, len(s.scopes))
	for k := range s.scopes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		state := s.scopes[k]
		snapshot.Resources = append(snapshot.Resources, listAll(state)...)
		if state.progress != nil {
			snapshot.Progress = append(snapshot.Progress, state.progress.Clone())
		}
	}
	return snapshot
}

// ImportState replaces the store contents with the snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.scopes = make(map[string]*scopeState)
	for _, r := range snapshot.Resources {
		state := s.scopeFor(r.Scope)
		bucket, ok := state.resources[r.Type]
		if !ok {
			bucket = make(map[string]Resource)
			state.resources[r.Type] = bucket
		}
		bucket[r.Key()] = r.Clone()
	}
	for _, p := range snapshot.Progress {
		cp := p.Clone()
		s.scopeFor(p.Scope).progress = &cp
	}
}

func (s *Store) scopeFor(scope Scope) *scopeState {
	state, ok := s.scopes[scope.Key()]
	if !ok {
		state = newScopeState()
		s.scopes[scope.Key()] = state
	}
	return state
}
