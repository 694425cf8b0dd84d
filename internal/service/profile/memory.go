package profile

import (
	"context"
	"sync"
)

// MemoryStore implements Store and Feed in memory for tests and local runs.
// CreateErr and FindErr, when set, are returned by the matching calls.
type MemoryStore struct {
	mu          sync.RWMutex
	versions    map[string]map[int]Profile
	latest      map[string]int
	subscribers []subscriber

	CreateErr error
	FindErr   error
}

type subscriber struct {
	ch   chan Profile
	done <-chan struct{}
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		versions: make(map[string]map[int]Profile),
		latest:   make(map[string]int),
	}
}

// FindLatest returns the highest stored version.
func (m *MemoryStore) FindLatest(_ context.Context, fiscalCode string) (*Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.FindErr != nil {
		return nil, m.FindErr
	}
	v, ok := m.latest[fiscalCode]
	if !ok {
		return nil, ErrNotFound
	}
	p := m.versions[fiscalCode][v].clone()
	return &p, nil
}

// FindVersion returns one stored version.
func (m *MemoryStore) FindVersion(_ context.Context, fiscalCode string, version int) (*Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.FindErr != nil {
		return nil, m.FindErr
	}
	p, ok := m.versions[fiscalCode][version]
	if !ok {
		return nil, ErrNotFound
	}
	out := p.clone()
	return &out, nil
}

// CreateVersion stores p unless its version already exists.
func (m *MemoryStore) CreateVersion(_ context.Context, p Profile) (*Profile, error) {
	m.mu.Lock()
	if m.CreateErr != nil {
		m.mu.Unlock()
		return nil, m.CreateErr
	}
	byVersion, ok := m.versions[p.FiscalCode]
	if !ok {
		byVersion = make(map[int]Profile)
		m.versions[p.FiscalCode] = byVersion
	}
	if _, exists := byVersion[p.Version]; exists {
		m.mu.Unlock()
		return nil, ErrAlreadyExists
	}
	stored := p.clone()
	byVersion[p.Version] = stored
	if cur, ok := m.latest[p.FiscalCode]; !ok || p.Version > cur {
		m.latest[p.FiscalCode] = p.Version
	}
	subs := append([]subscriber(nil), m.subscribers...)
	m.mu.Unlock()

	for _, s := range subs {
		select {
		case s.ch <- stored.clone():
		case <-s.done:
		}
	}
	out := stored.clone()
	return &out, nil
}

// ListVersions walks down from before-1, or from the latest version when
// before is negative.
func (m *MemoryStore) ListVersions(_ context.Context, fiscalCode string, before, limit int) ([]Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.FindErr != nil {
		return nil, m.FindErr
	}
	latest, ok := m.latest[fiscalCode]
	if !ok {
		return nil, nil
	}
	start := latest
	if before >= 0 && before-1 < start {
		start = before - 1
	}
	var out []Profile
	for v := start; v >= 0 && len(out) < limit; v-- {
		if p, ok := m.versions[fiscalCode][v]; ok {
			out = append(out, p.clone())
		}
	}
	return out, nil
}

// Versions returns how many versions are stored for fiscalCode.
func (m *MemoryStore) Versions(fiscalCode string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.versions[fiscalCode])
}

// Subscribe delivers every version created after the call, one per batch.
func (m *MemoryStore) Subscribe(ctx context.Context, fn func(ctx context.Context, batch []Profile)) error {
	s := subscriber{ch: make(chan Profile, 64), done: ctx.Done()}
	m.mu.Lock()
	m.subscribers = append(m.subscribers, s)
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, cur := range m.subscribers {
			if cur.ch == s.ch {
				m.subscribers = append(m.subscribers[:i], m.subscribers[i+1:]...)
				break
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case p := <-s.ch:
			fn(ctx, []Profile{p})
		}
	}
}

// Compile-time interface checks
var (
	_ Store = (*MemoryStore)(nil)
	_ Feed  = (*MemoryStore)(nil)
)
