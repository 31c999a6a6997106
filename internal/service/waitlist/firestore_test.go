package waitlist

import (
	"context"
	"errors"
	"sync"
	"testing"

	"cloud.google.com/go/firestore"

	"github.com/janisto/waitlist/internal/platform/timeutil"
	"github.com/janisto/waitlist/internal/testutil"
)

func setupFirestoreTest(t *testing.T) (*FirestoreStore, func()) {
	t.Helper()

	testutil.SkipIfFirestoreUnavailable(t)
	testutil.SetupEmulator(t)
	testutil.ClearFirestore(t)

	ctx := context.Background()
	client, err := firestore.NewClient(ctx, testutil.ProjectID)
	if err != nil {
		t.Fatalf("failed to create Firestore client: %v", err)
	}

	store := NewFirestoreStore(client, "")
	cleanup := func() {
		testutil.ClearFirestore(t)
		_ = client.Close()
	}
	return store, cleanup
}

func TestDocumentIDIsStable(t *testing.T) {
	a := DocumentID("a@b.co")
	if a != DocumentID("a@b.co") {
		t.Fatal("expected stable document id")
	}
	if a == DocumentID("c@d.co") {
		t.Fatal("expected distinct document ids")
	}
	if len(a) != 64 {
		t.Fatalf("expected hex sha256, got %q", a)
	}
}

func TestFirestoreInsertAndGet(t *testing.T) {
	store, cleanup := setupFirestoreTest(t)
	defer cleanup()

	ctx := context.Background()
	now := timeutil.Now()
	in := &Signup{ID: "id-1", Email: "a@b.co", Consent: true, Name: "Jane", UseCase: "research", SubmittedAt: now, UpdatedAt: now}
	if err := store.Insert(ctx, in); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := store.Get(ctx, "a@b.co")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "id-1" || got.Name != "Jane" || got.UseCase != "research" || !got.Consent {
		t.Fatalf("unexpected signup: %+v", got)
	}
	if !got.SubmittedAt.Equal(now) {
		t.Fatalf("expected submitted_at %s, got %s", now, got.SubmittedAt)
	}
}

func TestFirestoreInsertDuplicate(t *testing.T) {
	store, cleanup := setupFirestoreTest(t)
	defer cleanup()

	ctx := context.Background()
	if err := store.Insert(ctx, &Signup{ID: "id-1", Email: "a@b.co", Consent: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := store.Insert(ctx, &Signup{ID: "id-2", Email: "a@b.co", Consent: true})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestFirestoreGetNotFound(t *testing.T) {
	store, cleanup := setupFirestoreTest(t)
	defer cleanup()

	_, err := store.Get(context.Background(), "missing@b.co")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFirestoreUpdate(t *testing.T) {
	store, cleanup := setupFirestoreTest(t)
	defer cleanup()

	ctx := context.Background()
	now := timeutil.Now()
	if err := store.Insert(ctx, &Signup{ID: "id-1", Email: "a@b.co", Consent: true, Name: "Jane", SubmittedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	useCase := "scripting"
	later := now.Add(1000)
	got, err := store.Update(ctx, "a@b.co", UpdateParams{UseCase: &useCase, UpdatedAt: later})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Name != "Jane" || got.UseCase != "scripting" || got.ID != "id-1" {
		t.Fatalf("unexpected signup: %+v", got)
	}

	stored, err := store.Get(ctx, "a@b.co")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored.UseCase != "scripting" || !stored.SubmittedAt.Equal(now) {
		t.Fatalf("unexpected stored signup: %+v", stored)
	}
}

func TestFirestoreUpdateNotFound(t *testing.T) {
	store, cleanup := setupFirestoreTest(t)
	defer cleanup()

	name := "Jane"
	_, err := store.Update(context.Background(), "missing@b.co", UpdateParams{Name: &name, UpdatedAt: timeutil.Now()})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFirestoreConcurrentRegister(t *testing.T) {
	store, cleanup := setupFirestoreTest(t)
	defer cleanup()

	svc := NewRegistrar(store, Options{})
	const n = 10
	results := make(chan Outcome, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for range n {
		go func() {
			defer wg.Done()
			res, err := svc.Register(context.Background(), Draft{Email: "race@example.com"})
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			results <- res.Outcome
		}()
	}
	wg.Wait()
	close(results)

	created := 0
	for o := range results {
		if o == Created {
			created++
		}
	}
	if created != 1 {
		t.Fatalf("expected exactly 1 created, got %d", created)
	}
}
