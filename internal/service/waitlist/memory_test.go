package waitlist

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStoreInsertIfAbsent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Insert(ctx, &Signup{ID: "1", Email: "a@b.co", Consent: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := store.Insert(ctx, &Signup{ID: "2", Email: "a@b.co", Consent: true})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	got, err := store.Get(ctx, "a@b.co")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "1" {
		t.Fatalf("expected first signup to win, got %s", got.ID)
	}
}

func TestMemoryStoreGetNotFound(t *testing.T) {
	_, err := NewMemoryStore().Get(context.Background(), "missing@b.co")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreUpdate(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	_ = store.Insert(ctx, &Signup{ID: "1", Email: "a@b.co", Consent: true, Name: "Jane", SubmittedAt: fixedNow, UpdatedAt: fixedNow})

	useCase := "research"
	later := fixedNow.Add(1)
	got, err := store.Update(ctx, "a@b.co", UpdateParams{UseCase: &useCase, UpdatedAt: later})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.UseCase != "research" || got.Name != "Jane" {
		t.Fatalf("unexpected signup after update: %+v", got)
	}
	if !got.UpdatedAt.Equal(later) || !got.SubmittedAt.Equal(fixedNow) {
		t.Fatalf("unexpected timestamps: %+v", got)
	}

	if _, err := store.Update(ctx, "missing@b.co", UpdateParams{UseCase: &useCase}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	in := &Signup{ID: "1", Email: "a@b.co", Consent: true}
	_ = store.Insert(ctx, in)
	in.Name = "mutated"

	got, _ := store.Get(ctx, "a@b.co")
	got.UseCase = "mutated"

	again, _ := store.Get(ctx, "a@b.co")
	if again.Name != "" || again.UseCase != "" {
		t.Fatalf("store shares memory with callers: %+v", again)
	}
}
