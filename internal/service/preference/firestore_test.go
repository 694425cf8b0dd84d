package preference

import (
	"context"
	"errors"
	"testing"

	"github.com/janisto/citizen-profiles/internal/service/profile"
	"github.com/janisto/citizen-profiles/internal/testutil"
)

func setupFirestoreTest(t *testing.T) *FirestoreStore {
	t.Helper()
	return NewFirestoreStore(testutil.NewFirestoreClient(t))
}

func TestFirestoreStore_CreateAndGet(t *testing.T) {
	store := setupFirestoreTest(t)
	ctx := context.Background()

	p := ServicePreference{
		FiscalCode:       testFiscalCode,
		ServiceID:        "svc1",
		SettingsVersion:  1,
		IsInboxEnabled:   true,
		IsWebhookEnabled: true,
	}
	if err := store.Create(ctx, p); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := store.Get(ctx, testFiscalCode, "svc1", 1)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if *got != p {
		t.Errorf("expected %+v, got %+v", p, *got)
	}

	if err := store.Create(ctx, p); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}
	if _, err := store.Get(ctx, testFiscalCode, "svc1", 2); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFirestoreStore_MigrationRerun(t *testing.T) {
	store := setupFirestoreTest(t)

	m := NewMigrator(store)
	in := migrationInput(1, profile.BlockedChannels{"svc1": {profile.ChannelEmail}})
	for i := 0; i < 2; i++ {
		if err := m.Migrate(context.Background(), in); err != nil {
			t.Fatalf("Migrate run %d failed: %v", i+1, err)
		}
	}
}
