package profile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/janisto/citizen-profiles/internal/testutil"
)

func setupFirestoreTest(t *testing.T) *FirestoreStore {
	t.Helper()
	return NewFirestoreStore(testutil.NewFirestoreClient(t))
}

func sampleProfile(version int) Profile {
	tos := 2
	return Profile{
		FiscalCode:         "AAAAAA00A00A000A",
		Version:            version,
		Email:              "citizen@example.com",
		IsEmailEnabled:     true,
		IsInboxEnabled:     true,
		IsWebhookEnabled:   true,
		AcceptedTosVersion: &tos,
		BlockedInboxOrChannels: BlockedChannels{
			"svc1": {ChannelEmail},
		},
		PreferredLanguages: []string{"it_IT"},
		Settings:           Settings{Mode: ModeManual, Version: 1},
		UpdatedAt:          time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestFirestoreStore_CreateAndFind(t *testing.T) {
	store := setupFirestoreTest(t)
	ctx := context.Background()

	for v := 0; v <= 2; v++ {
		if _, err := store.CreateVersion(ctx, sampleProfile(v)); err != nil {
			t.Fatalf("CreateVersion(%d) failed: %v", v, err)
		}
	}

	latest, err := store.FindLatest(ctx, "AAAAAA00A00A000A")
	if err != nil {
		t.Fatalf("FindLatest failed: %v", err)
	}
	if latest.Version != 2 {
		t.Errorf("expected latest version 2, got %d", latest.Version)
	}
	if latest.Settings.Mode != ModeManual || latest.Settings.Version != 1 {
		t.Errorf("unexpected settings: %+v", latest.Settings)
	}
	if latest.AcceptedTosVersion == nil || *latest.AcceptedTosVersion != 2 {
		t.Errorf("expected accepted ToS 2, got %v", latest.AcceptedTosVersion)
	}
	if !latest.BlockedInboxOrChannels.Blocks("svc1", ChannelEmail) {
		t.Error("expected svc1 EMAIL to be blocked")
	}

	v1, err := store.FindVersion(ctx, "AAAAAA00A00A000A", 1)
	if err != nil {
		t.Fatalf("FindVersion failed: %v", err)
	}
	if v1.Version != 1 {
		t.Errorf("expected version 1, got %d", v1.Version)
	}
}

func TestFirestoreStore_CreateVersionAlreadyExists(t *testing.T) {
	store := setupFirestoreTest(t)
	ctx := context.Background()

	if _, err := store.CreateVersion(ctx, sampleProfile(0)); err != nil {
		t.Fatalf("CreateVersion failed: %v", err)
	}
	_, err := store.CreateVersion(ctx, sampleProfile(0))
	if !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestFirestoreStore_ListVersions(t *testing.T) {
	store := setupFirestoreTest(t)
	ctx := context.Background()

	for v := 0; v <= 3; v++ {
		if _, err := store.CreateVersion(ctx, sampleProfile(v)); err != nil {
			t.Fatalf("CreateVersion(%d) failed: %v", v, err)
		}
	}

	first, err := store.ListVersions(ctx, "AAAAAA00A00A000A", -1, 2)
	if err != nil {
		t.Fatalf("ListVersions failed: %v", err)
	}
	if len(first) != 2 || first[0].Version != 3 || first[1].Version != 2 {
		t.Fatalf("unexpected first page: %+v", first)
	}

	rest, err := store.ListVersions(ctx, "AAAAAA00A00A000A", first[1].Version, 10)
	if err != nil {
		t.Fatalf("ListVersions failed: %v", err)
	}
	if len(rest) != 2 || rest[0].Version != 1 || rest[1].Version != 0 {
		t.Fatalf("unexpected second page: %+v", rest)
	}
}

func TestFirestoreStore_NotFound(t *testing.T) {
	store := setupFirestoreTest(t)
	ctx := context.Background()

	if _, err := store.FindLatest(ctx, "BBBBBB00B00B000B"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindLatest: expected ErrNotFound, got %v", err)
	}
	if _, err := store.FindVersion(ctx, "BBBBBB00B00B000B", 3); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindVersion: expected ErrNotFound, got %v", err)
	}
}

func TestFirestoreStore_NilAcceptedTos(t *testing.T) {
	store := setupFirestoreTest(t)
	ctx := context.Background()

	p := sampleProfile(0)
	p.AcceptedTosVersion = nil
	p.BlockedInboxOrChannels = nil
	if _, err := store.CreateVersion(ctx, p); err != nil {
		t.Fatalf("CreateVersion failed: %v", err)
	}

	got, err := store.FindLatest(ctx, p.FiscalCode)
	if err != nil {
		t.Fatalf("FindLatest failed: %v", err)
	}
	if got.AcceptedTosVersion != nil {
		t.Errorf("expected nil accepted ToS, got %d", *got.AcceptedTosVersion)
	}
	if len(got.BlockedInboxOrChannels) != 0 {
		t.Errorf("expected no blocked channels, got %v", got.BlockedInboxOrChannels)
	}
}

func TestVersionDocIDSortsByVersion(t *testing.T) {
	if versionDocID(9) >= versionDocID(10) {
		t.Errorf("expected %q < %q", versionDocID(9), versionDocID(10))
	}
	if got := versionDocID(42); got != "0000000000000042" {
		t.Errorf("unexpected doc id %q", got)
	}
}
