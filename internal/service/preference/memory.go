package preference

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore implements Store in memory. CreateHook, when set, runs before
// each create and its error is returned instead of storing.
type MemoryStore struct {
	mu    sync.RWMutex
	prefs map[string]ServicePreference
	order []string

	CreateHook func(p ServicePreference) error
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{prefs: make(map[string]ServicePreference)}
}

// Create stores p unless its id exists.
func (m *MemoryStore) Create(_ context.Context, p ServicePreference) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CreateHook != nil {
		if err := m.CreateHook(p); err != nil {
			return err
		}
	}
	id := p.ID()
	if _, ok := m.prefs[id]; ok {
		return ErrAlreadyExists
	}
	m.prefs[id] = p
	m.order = append(m.order, id)
	return nil
}

// Get returns one preference.
func (m *MemoryStore) Get(_ context.Context, fiscalCode, serviceID string, settingsVersion int) (*ServicePreference, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.prefs[DocumentID(fiscalCode, serviceID, settingsVersion)]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

// All returns every stored preference sorted by id.
func (m *MemoryStore) All() []ServicePreference {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.prefs))
	for id := range m.prefs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]ServicePreference, len(ids))
	for i, id := range ids {
		out[i] = m.prefs[id]
	}
	return out
}

// CreationOrder returns ids in the order they were created.
func (m *MemoryStore) CreationOrder() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...)
}

// Compile-time interface check
var _ Store = (*MemoryStore)(nil)
