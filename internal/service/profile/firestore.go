package profile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	applog "github.com/janisto/citizen-profiles/internal/platform/logging"
)

const (
	profilesCollection = "profiles"
	versionsCollection = "versions"
)

// firestoreProfile maps to the Firestore document of one profile version,
// stored at profiles/{fiscalCode}/versions/{zero-padded version}.
type firestoreProfile struct {
	FiscalCode             string              `firestore:"fiscal_code"`
	Version                int64               `firestore:"version"`
	Email                  string              `firestore:"email,omitempty"`
	IsEmailEnabled         bool                `firestore:"is_email_enabled"`
	IsEmailValidated       bool                `firestore:"is_email_validated"`
	IsInboxEnabled         bool                `firestore:"is_inbox_enabled"`
	IsWebhookEnabled       bool                `firestore:"is_webhook_enabled"`
	AcceptedTosVersion     *int64              `firestore:"accepted_tos_version"`
	BlockedInboxOrChannels map[string][]string `firestore:"blocked_inbox_or_channels,omitempty"`
	PreferredLanguages     []string            `firestore:"preferred_languages,omitempty"`
	Mode                   string              `firestore:"service_preferences_mode"`
	SettingsVersion        int64               `firestore:"service_preferences_version"`
	UpdatedAt              time.Time           `firestore:"updated_at"`
}

func toFirestoreProfile(p Profile) firestoreProfile {
	fp := firestoreProfile{
		FiscalCode:         p.FiscalCode,
		Version:            int64(p.Version),
		Email:              p.Email,
		IsEmailEnabled:     p.IsEmailEnabled,
		IsEmailValidated:   p.IsEmailValidated,
		IsInboxEnabled:     p.IsInboxEnabled,
		IsWebhookEnabled:   p.IsWebhookEnabled,
		PreferredLanguages: p.PreferredLanguages,
		Mode:               string(p.Settings.Mode),
		SettingsVersion:    int64(p.Settings.Version),
		UpdatedAt:          p.UpdatedAt,
	}
	if p.AcceptedTosVersion != nil {
		v := int64(*p.AcceptedTosVersion)
		fp.AcceptedTosVersion = &v
	}
	if len(p.BlockedInboxOrChannels) > 0 {
		fp.BlockedInboxOrChannels = make(map[string][]string, len(p.BlockedInboxOrChannels))
		for svc, channels := range p.BlockedInboxOrChannels {
			out := make([]string, len(channels))
			for i, c := range channels {
				out[i] = string(c)
			}
			fp.BlockedInboxOrChannels[svc] = out
		}
	}
	return fp
}

func (fp firestoreProfile) toProfile() Profile {
	p := Profile{
		FiscalCode:         fp.FiscalCode,
		Version:            int(fp.Version),
		Email:              fp.Email,
		IsEmailEnabled:     fp.IsEmailEnabled,
		IsEmailValidated:   fp.IsEmailValidated,
		IsInboxEnabled:     fp.IsInboxEnabled,
		IsWebhookEnabled:   fp.IsWebhookEnabled,
		PreferredLanguages: fp.PreferredLanguages,
		Settings:           Settings{Mode: Mode(fp.Mode), Version: int(fp.SettingsVersion)},
		UpdatedAt:          fp.UpdatedAt,
	}
	if fp.AcceptedTosVersion != nil {
		v := int(*fp.AcceptedTosVersion)
		p.AcceptedTosVersion = &v
	}
	if len(fp.BlockedInboxOrChannels) > 0 {
		p.BlockedInboxOrChannels = make(BlockedChannels, len(fp.BlockedInboxOrChannels))
		for svc, channels := range fp.BlockedInboxOrChannels {
			out := make([]ChannelKind, len(channels))
			for i, c := range channels {
				out[i] = ChannelKind(c)
			}
			p.BlockedInboxOrChannels[svc] = out
		}
	}
	return p
}

// versionDocID pads versions so document ids sort in version order.
func versionDocID(version int) string {
	return fmt.Sprintf("%016d", version)
}

// FirestoreStore implements Store and Feed using Firestore.
type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore creates a new Firestore-backed store.
func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

func (s *FirestoreStore) versions(fiscalCode string) *firestore.CollectionRef {
	return s.client.Collection(profilesCollection).Doc(fiscalCode).Collection(versionsCollection)
}

// FindLatest returns the highest stored version.
func (s *FirestoreStore) FindLatest(ctx context.Context, fiscalCode string) (*Profile, error) {
	it := s.versions(fiscalCode).OrderBy("version", firestore.Desc).Limit(1).Documents(ctx)
	defer it.Stop()

	doc, err := it.Next()
	if errors.Is(err, iterator.Done) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeProfile(doc)
}

// FindVersion returns one stored version.
func (s *FirestoreStore) FindVersion(ctx context.Context, fiscalCode string, version int) (*Profile, error) {
	doc, err := s.versions(fiscalCode).Doc(versionDocID(version)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return decodeProfile(doc)
}

// CreateVersion writes p with a create-only precondition, so two writers
// racing for the same version produce exactly one winner.
func (s *FirestoreStore) CreateVersion(ctx context.Context, p Profile) (*Profile, error) {
	docRef := s.versions(p.FiscalCode).Doc(versionDocID(p.Version))
	if _, err := docRef.Create(ctx, toFirestoreProfile(p)); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return nil, ErrAlreadyExists
		}
		return nil, err
	}
	out := p.clone()
	return &out, nil
}

// ListVersions pages the versions subcollection in descending version order.
func (s *FirestoreStore) ListVersions(ctx context.Context, fiscalCode string, before, limit int) ([]Profile, error) {
	q := s.versions(fiscalCode).OrderBy("version", firestore.Desc)
	if before >= 0 {
		q = q.Where("version", "<", before)
	}
	it := q.Limit(limit).Documents(ctx)
	defer it.Stop()

	var out []Profile
	for {
		doc, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		p, err := decodeProfile(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
}

// Subscribe listens to every versions subcollection and delivers versions
// written after the subscription started.
func (s *FirestoreStore) Subscribe(ctx context.Context, fn func(ctx context.Context, batch []Profile)) error {
	since := time.Now().UTC()
	it := s.client.CollectionGroup(versionsCollection).Where("updated_at", ">=", since).Snapshots(ctx)
	defer it.Stop()

	for {
		snap, err := it.Next()
		if err != nil {
			if ctx.Err() != nil || status.Code(err) == codes.Canceled {
				return ctx.Err()
			}
			return fmt.Errorf("profile feed: %w", err)
		}

		batch := make([]Profile, 0, len(snap.Changes))
		for _, change := range snap.Changes {
			if change.Kind != firestore.DocumentAdded {
				continue
			}
			p, err := decodeProfile(change.Doc)
			if err != nil {
				applog.LogError(ctx, "skipping undecodable profile version", err,
					applog.Subject(change.Doc.Ref.Parent.Parent.ID))
				continue
			}
			batch = append(batch, *p)
		}
		if len(batch) > 0 {
			fn(ctx, batch)
		}
	}
}

func decodeProfile(doc *firestore.DocumentSnapshot) (*Profile, error) {
	var fp firestoreProfile
	if err := doc.DataTo(&fp); err != nil {
		return nil, err
	}
	p := fp.toProfile()
	return &p, nil
}

// Compile-time interface checks
var (
	_ Store = (*FirestoreStore)(nil)
	_ Feed  = (*FirestoreStore)(nil)
)
