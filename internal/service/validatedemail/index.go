// Package validatedemail keeps an index of the email each citizen has
// validated, reconciled from newly written profile versions.
package validatedemail

import (
	"context"
	"sort"
	"sync"
)

// Index records which fiscal codes have validated an email. Insert and
// Delete are idempotent.
type Index interface {
	Insert(ctx context.Context, fiscalCode, email string) error
	Delete(ctx context.Context, fiscalCode, email string) error
	Lookup(ctx context.Context, email string) ([]string, error)
}

// MemoryIndex implements Index in memory.
type MemoryIndex struct {
	mu      sync.RWMutex
	byEmail map[string]map[string]struct{}

	// Err, when set, is returned by Insert and Delete.
	Err error
}

// NewMemoryIndex creates an empty index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{byEmail: make(map[string]map[string]struct{})}
}

// Insert records that fiscalCode validated email.
func (m *MemoryIndex) Insert(_ context.Context, fiscalCode, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	codes, ok := m.byEmail[email]
	if !ok {
		codes = make(map[string]struct{})
		m.byEmail[email] = codes
	}
	codes[fiscalCode] = struct{}{}
	return nil
}

// Delete removes the record for fiscalCode and email.
func (m *MemoryIndex) Delete(_ context.Context, fiscalCode, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	delete(m.byEmail[email], fiscalCode)
	if len(m.byEmail[email]) == 0 {
		delete(m.byEmail, email)
	}
	return nil
}

// Lookup returns the fiscal codes that validated email, sorted.
func (m *MemoryIndex) Lookup(_ context.Context, email string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.byEmail[email]))
	for fc := range m.byEmail[email] {
		out = append(out, fc)
	}
	sort.Strings(out)
	return out, nil
}

// Compile-time interface check
var _ Index = (*MemoryIndex)(nil)
