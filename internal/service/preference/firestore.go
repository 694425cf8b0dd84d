package preference

import (
	"context"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const servicePreferencesCollection = "service_preferences"

type firestorePreference struct {
	FiscalCode       string `firestore:"fiscal_code"`
	ServiceID        string `firestore:"service_id"`
	SettingsVersion  int64  `firestore:"settings_version"`
	IsEmailEnabled   bool   `firestore:"is_email_enabled"`
	IsInboxEnabled   bool   `firestore:"is_inbox_enabled"`
	IsWebhookEnabled bool   `firestore:"is_webhook_enabled"`
}

// FirestoreStore implements Store using Firestore.
type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore creates a new Firestore-backed store.
func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

// Create writes p under its document id with a create-only precondition.
func (s *FirestoreStore) Create(ctx context.Context, p ServicePreference) error {
	docRef := s.client.Collection(servicePreferencesCollection).Doc(p.ID())
	_, err := docRef.Create(ctx, firestorePreference{
		FiscalCode:       p.FiscalCode,
		ServiceID:        p.ServiceID,
		SettingsVersion:  int64(p.SettingsVersion),
		IsEmailEnabled:   p.IsEmailEnabled,
		IsInboxEnabled:   p.IsInboxEnabled,
		IsWebhookEnabled: p.IsWebhookEnabled,
	})
	if status.Code(err) == codes.AlreadyExists {
		return ErrAlreadyExists
	}
	return err
}

// Get reads one preference.
func (s *FirestoreStore) Get(ctx context.Context, fiscalCode, serviceID string, settingsVersion int) (*ServicePreference, error) {
	doc, err := s.client.Collection(servicePreferencesCollection).
		Doc(DocumentID(fiscalCode, serviceID, settingsVersion)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var fp firestorePreference
	if err := doc.DataTo(&fp); err != nil {
		return nil, err
	}
	return &ServicePreference{
		FiscalCode:       fp.FiscalCode,
		ServiceID:        fp.ServiceID,
		SettingsVersion:  int(fp.SettingsVersion),
		IsEmailEnabled:   fp.IsEmailEnabled,
		IsInboxEnabled:   fp.IsInboxEnabled,
		IsWebhookEnabled: fp.IsWebhookEnabled,
	}, nil
}

// Compile-time interface check
var _ Store = (*FirestoreStore)(nil)
