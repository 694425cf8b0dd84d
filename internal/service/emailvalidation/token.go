// Package emailvalidation runs the email verification saga: it creates a
// single-use validation token and mails a link carrying it, then consumes
// the token when the citizen follows the link.
package emailvalidation

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"
)

// Token errors
var (
	ErrInvalidToken  = errors.New("invalid validation token")
	ErrTokenExpired  = errors.New("validation token expired")
	ErrTokenNotFound = errors.New("validation token not found")
)

// Record is a stored validation token. Only the hash of the validator is kept.
type Record struct {
	ID            string
	FiscalCode    string
	Email         string
	ValidatorHash string
	ExpiresAt     time.Time
}

// TokenStore persists validation tokens. Delete reports whether this call
// removed the record, so only one of several concurrent deletes wins.
type TokenStore interface {
	Save(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (*Record, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// FormatToken joins a token id and its validator as sent to the citizen.
func FormatToken(id, validator string) string {
	return id + ":" + validator
}

// ParseToken splits "<tokenId>:<validator>".
func ParseToken(token string) (id, validator string, err error) {
	id, validator, ok := strings.Cut(strings.TrimSpace(token), ":")
	if !ok || id == "" || validator == "" {
		return "", "", ErrInvalidToken
	}
	return id, validator, nil
}

func newValidator() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func hashValidator(validator string) string {
	sum := sha256.Sum256([]byte(validator))
	return hex.EncodeToString(sum[:])
}

func validatorMatches(rec *Record, validator string) bool {
	return subtle.ConstantTimeCompare([]byte(rec.ValidatorHash), []byte(hashValidator(validator))) == 1
}

// MemoryTokenStore is an in-process TokenStore for tests and local runs.
type MemoryTokenStore struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemoryTokenStore creates an empty store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{records: make(map[string]Record)}
}

// Save stores rec, replacing any record with the same id.
func (s *MemoryTokenStore) Save(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec
	return nil
}

// Get returns the record or ErrTokenNotFound.
func (s *MemoryTokenStore) Get(_ context.Context, id string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, ErrTokenNotFound
	}
	return &rec, nil
}

// Delete removes the record and reports whether it was present.
func (s *MemoryTokenStore) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return false, nil
	}
	delete(s.records, id)
	return true, nil
}

// Len returns the number of stored tokens.
func (s *MemoryTokenStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Compile-time interface check
var _ TokenStore = (*MemoryTokenStore)(nil)
