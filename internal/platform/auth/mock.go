package auth

import (
	"context"
	"sync"
)

// MockVerifier returns a fixed caller or error and counts calls.
type MockVerifier struct {
	User  *FirebaseUser
	Error error

	mu     sync.Mutex
	tokens []string
}

// Verify returns the configured user or error.
func (m *MockVerifier) Verify(_ context.Context, token string) (*FirebaseUser, error) {
	m.mu.Lock()
	m.tokens = append(m.tokens, token)
	m.mu.Unlock()
	if m.Error != nil {
		return nil, m.Error
	}
	return m.User, nil
}

// Tokens returns the tokens passed to Verify, in call order.
func (m *MockVerifier) Tokens() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.tokens...)
}

// TestUser returns a service account caller, allowed on every profile.
func TestUser() *FirebaseUser {
	return &FirebaseUser{
		UID:           "test-user-123",
		Email:         "test@example.com",
		EmailVerified: true,
	}
}

// TestCitizen returns a citizen caller bound to fiscalCode.
func TestCitizen(fiscalCode string) *FirebaseUser {
	return &FirebaseUser{
		UID:           "citizen-" + fiscalCode,
		Email:         "citizen@example.com",
		EmailVerified: true,
		FiscalCode:    fiscalCode,
	}
}

// Compile-time interface check
var _ Verifier = (*MockVerifier)(nil)
