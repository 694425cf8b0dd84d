package validatedemail

import (
	"context"
	"errors"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const profileEmailsCollection = "profile_emails"

type firestoreRecord struct {
	FiscalCode string    `firestore:"fiscal_code"`
	Email      string    `firestore:"email"`
	CreatedAt  time.Time `firestore:"created_at"`
}

// FirestoreIndex implements Index with one document per (fiscal code, email).
type FirestoreIndex struct {
	client *firestore.Client
}

// NewFirestoreIndex creates a new Firestore-backed index.
func NewFirestoreIndex(client *firestore.Client) *FirestoreIndex {
	return &FirestoreIndex{client: client}
}

func recordID(fiscalCode, email string) string {
	return fiscalCode + "_" + email
}

// Insert upserts the record.
func (x *FirestoreIndex) Insert(ctx context.Context, fiscalCode, email string) error {
	_, err := x.client.Collection(profileEmailsCollection).Doc(recordID(fiscalCode, email)).Set(ctx, firestoreRecord{
		FiscalCode: fiscalCode,
		Email:      email,
		CreatedAt:  time.Now().UTC(),
	})
	return err
}

// Delete removes the record; a missing record is not an error.
func (x *FirestoreIndex) Delete(ctx context.Context, fiscalCode, email string) error {
	_, err := x.client.Collection(profileEmailsCollection).Doc(recordID(fiscalCode, email)).Delete(ctx)
	if status.Code(err) == codes.NotFound {
		return nil
	}
	return err
}

// Lookup returns the fiscal codes that validated email.
func (x *FirestoreIndex) Lookup(ctx context.Context, email string) ([]string, error) {
	it := x.client.Collection(profileEmailsCollection).
		Where("email", "==", email).
		Documents(ctx)
	defer it.Stop()

	var out []string
	for {
		doc, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		var rec firestoreRecord
		if err := doc.DataTo(&rec); err != nil {
			return nil, err
		}
		out = append(out, rec.FiscalCode)
	}
	sort.Strings(out)
	return out, nil
}

// Compile-time interface check
var _ Index = (*FirestoreIndex)(nil)
