package validatedemail

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/janisto/citizen-profiles/internal/platform/metrics"
	"github.com/janisto/citizen-profiles/internal/service/profile"
)

const fc = "AAAAAA00A00A000A"

// chain stores versions 0..len(versions)-1 for fc.
func chain(t *testing.T, versions ...profile.Profile) *profile.MemoryStore {
	t.Helper()
	store := profile.NewMemoryStore()
	for i, p := range versions {
		p.FiscalCode = fc
		p.Version = i
		if _, err := store.CreateVersion(context.Background(), p); err != nil {
			t.Fatalf("create version %d: %v", i, err)
		}
	}
	return store
}

func latest(t *testing.T, store *profile.MemoryStore) profile.Profile {
	t.Helper()
	p, err := store.FindLatest(context.Background(), fc)
	if err != nil {
		t.Fatalf("find latest: %v", err)
	}
	return *p
}

func lookup(t *testing.T, index Index, email string) []string {
	t.Helper()
	got, err := index.Lookup(context.Background(), email)
	if err != nil {
		t.Fatalf("lookup %s: %v", email, err)
	}
	return got
}

// recordingIndex logs every Insert and Delete in call order. DeleteErr
// fails Delete calls.
type recordingIndex struct {
	mu        sync.Mutex
	calls     []string
	DeleteErr error
}

func (r *recordingIndex) Insert(_ context.Context, fiscalCode, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "insert "+fiscalCode+" "+email)
	return nil
}

func (r *recordingIndex) Delete(_ context.Context, fiscalCode, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "delete "+fiscalCode+" "+email)
	return r.DeleteErr
}

func (r *recordingIndex) Lookup(context.Context, string) ([]string, error) {
	return nil, nil
}

func (r *recordingIndex) log() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.calls)
}

func TestReconcileReplacesOlderValidatedEmail(t *testing.T) {
	store := chain(t,
		profile.Profile{Email: "first@example.com", IsEmailValidated: true},
		profile.Profile{Email: "first@example.com"},
		profile.Profile{Email: "second@example.com"},
		profile.Profile{Email: "second@example.com"},
		profile.Profile{Email: "second@example.com"},
		profile.Profile{Email: "second@example.com", IsEmailValidated: true},
	)
	index := NewMemoryIndex()
	if err := index.Insert(context.Background(), fc, "first@example.com"); err != nil {
		t.Fatalf("seed index: %v", err)
	}

	r := NewReconciler(store, index, nil)
	if err := r.Reconcile(context.Background(), latest(t, store)); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	if got := lookup(t, index, "first@example.com"); len(got) != 0 {
		t.Errorf("expected old email removed, got %v", got)
	}
	if got := lookup(t, index, "second@example.com"); !slices.Equal(got, []string{fc}) {
		t.Errorf("expected [%s], got %v", fc, got)
	}
}

func TestReconcileDeletesBeforeInserting(t *testing.T) {
	store := chain(t,
		profile.Profile{Email: "old@example.com", IsEmailValidated: true},
		profile.Profile{Email: "new@example.com", IsEmailValidated: true},
	)
	index := &recordingIndex{}

	r := NewReconciler(store, index, nil)
	if err := r.Reconcile(context.Background(), latest(t, store)); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	want := []string{"delete " + fc + " old@example.com", "insert " + fc + " new@example.com"}
	if got := index.log(); !slices.Equal(got, want) {
		t.Errorf("expected calls %v, got %v", want, got)
	}
}

func TestReconcileFailedDeleteSkipsInsert(t *testing.T) {
	store := chain(t,
		profile.Profile{Email: "old@example.com", IsEmailValidated: true},
		profile.Profile{Email: "new@example.com", IsEmailValidated: true},
	)
	deleteErr := errors.New("index unavailable")
	index := &recordingIndex{DeleteErr: deleteErr}

	r := NewReconciler(store, index, nil)
	err := r.Reconcile(context.Background(), latest(t, store))
	if !errors.Is(err, deleteErr) {
		t.Fatalf("expected delete error, got %v", err)
	}

	want := []string{"delete " + fc + " old@example.com"}
	if got := index.log(); !slices.Equal(got, want) {
		t.Errorf("expected calls %v, got %v", want, got)
	}
}

func TestReconcileInserts(t *testing.T) {
	tests := []struct {
		name     string
		versions []profile.Profile
	}{
		{
			name:     "version zero",
			versions: []profile.Profile{{Email: "a@example.com", IsEmailValidated: true}},
		},
		{
			name: "no prior validation",
			versions: []profile.Profile{
				{Email: "a@example.com"},
				{Email: "a@example.com", IsEmailValidated: true},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := chain(t, tt.versions...)
			index := &recordingIndex{}

			r := NewReconciler(store, index, nil)
			if err := r.Reconcile(context.Background(), latest(t, store)); err != nil {
				t.Fatalf("Reconcile failed: %v", err)
			}

			want := []string{"insert " + fc + " a@example.com"}
			if got := index.log(); !slices.Equal(got, want) {
				t.Errorf("expected calls %v, got %v", want, got)
			}
		})
	}
}

func TestReconcileSameEmailIsNoop(t *testing.T) {
	store := chain(t,
		profile.Profile{Email: "a@example.com", IsEmailValidated: true},
		profile.Profile{Email: "a@example.com", IsEmailValidated: true},
	)
	mt := metrics.NewWithRegistry(prometheus.NewRegistry())
	index := &recordingIndex{}
	r := NewReconciler(store, index, mt)

	if err := r.Reconcile(context.Background(), latest(t, store)); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if got := index.log(); len(got) != 0 {
		t.Errorf("expected no index calls, got %v", got)
	}
	if n := promtest.CollectAndCount(mt.EmailIndexOps); n != 0 {
		t.Errorf("expected no index metrics, got %d series", n)
	}
}

func TestReconcileSkipsUnvalidatedVersions(t *testing.T) {
	store := chain(t, profile.Profile{Email: "a@example.com"})
	index := &recordingIndex{}

	r := NewReconciler(store, index, nil)
	for _, p := range []profile.Profile{
		latest(t, store),
		{FiscalCode: fc, Version: 2, IsEmailValidated: true},
		{FiscalCode: fc, Version: -1, Email: "a@example.com", IsEmailValidated: true},
	} {
		if err := r.Reconcile(context.Background(), p); err != nil {
			t.Fatalf("Reconcile(%+v) failed: %v", p, err)
		}
	}
	if got := index.log(); len(got) != 0 {
		t.Errorf("expected no index calls, got %v", got)
	}
}

func TestReconcileGapEndsWalk(t *testing.T) {
	store := profile.NewMemoryStore()
	ctx := context.Background()
	for _, p := range []profile.Profile{
		{FiscalCode: fc, Version: 0, Email: "old@example.com", IsEmailValidated: true},
		{FiscalCode: fc, Version: 3, Email: "new@example.com", IsEmailValidated: true},
	} {
		if _, err := store.CreateVersion(ctx, p); err != nil {
			t.Fatalf("create version %d: %v", p.Version, err)
		}
	}

	index := NewMemoryIndex()
	if err := index.Insert(ctx, fc, "old@example.com"); err != nil {
		t.Fatalf("seed index: %v", err)
	}
	r := NewReconciler(store, index, nil)
	if err := r.Reconcile(ctx, latest(t, store)); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	if got := lookup(t, index, "old@example.com"); !slices.Equal(got, []string{fc}) {
		t.Errorf("missing version 2 should end the walk before version 0, got %v", got)
	}
	if got := lookup(t, index, "new@example.com"); !slices.Equal(got, []string{fc}) {
		t.Errorf("expected [%s], got %v", fc, got)
	}
}

func TestReconcileReadErrorIsReturned(t *testing.T) {
	store := chain(t,
		profile.Profile{Email: "a@example.com"},
		profile.Profile{Email: "a@example.com", IsEmailValidated: true},
	)
	p := latest(t, store)
	store.FindErr = errors.New("unavailable")

	r := NewReconciler(store, NewMemoryIndex(), nil)
	if err := r.Reconcile(context.Background(), p); err == nil {
		t.Fatal("expected read error")
	}
}

func TestReconcileRecordsIndexMetrics(t *testing.T) {
	store := chain(t,
		profile.Profile{Email: "a@example.com", IsEmailValidated: true},
		profile.Profile{Email: "b@example.com", IsEmailValidated: true},
	)
	mt := metrics.NewWithRegistry(prometheus.NewRegistry())
	r := NewReconciler(store, NewMemoryIndex(), mt)

	if err := r.Reconcile(context.Background(), latest(t, store)); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	for _, op := range []string{"delete", "insert"} {
		if got := promtest.ToFloat64(mt.EmailIndexOps.WithLabelValues(op, "success")); got != 1 {
			t.Errorf("expected one successful %s, got %v", op, got)
		}
	}
}

func TestHandleBatchContinuesAfterFailure(t *testing.T) {
	index := NewMemoryIndex()
	r := NewReconciler(profile.NewMemoryStore(), index, nil)

	index.Err = errors.New("down")
	r.HandleBatch(context.Background(), []profile.Profile{
		{FiscalCode: fc, Version: 0, Email: "a@example.com", IsEmailValidated: true},
	})
	index.Err = nil
	r.HandleBatch(context.Background(), []profile.Profile{
		{FiscalCode: fc, Version: 0, Email: "a@example.com", IsEmailValidated: true},
		{FiscalCode: "BBBBBB00B00B000B", Version: 0, Email: "a@example.com", IsEmailValidated: true},
	})

	want := []string{fc, "BBBBBB00B00B000B"}
	if got := lookup(t, index, "a@example.com"); !slices.Equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestWatcherReconcilesFeed(t *testing.T) {
	store := profile.NewMemoryStore()
	index := NewMemoryIndex()
	w := NewWatcher(store, NewReconciler(store, index, nil))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// The subscription registers asynchronously, so keep writing versions,
	// each with its own address, until the watcher has indexed one of them.
	indexed := func() bool {
		index.mu.RLock()
		defer index.mu.RUnlock()
		return len(index.byEmail) > 0
	}
	deadline := time.Now().Add(2 * time.Second)
	for next := 0; !indexed(); next++ {
		if time.Now().After(deadline) {
			t.Fatal("watcher did not reconcile any version")
		}
		if _, err := store.CreateVersion(context.Background(), profile.Profile{
			FiscalCode:       fc,
			Version:          next,
			Email:            fmt.Sprintf("v%d@example.com", next),
			IsEmailValidated: true,
		}); err != nil {
			t.Fatalf("create version %d: %v", next, err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run returned %v", err)
	}
}
