package prefs

import (
	"context"
	"testing"
)

func TestMemoryStoreGetMissing(t *testing.T) {
	s := NewMemoryStore()
	p, err := s.Get(context.Background(), "b1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != nil {
		t.Fatalf("expected nil for a book with no preferences, got %+v", p)
	}
}

func TestMemoryStoreSetReplacesBlob(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Set(ctx, "b1", Preferences{Voice: "alloy", Speed: 1.25, Engine: "openai"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Set(ctx, "b1", Preferences{Voice: "echo"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p, err := s.Get(ctx, "b1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Voice != "echo" {
		t.Fatalf("expected replaced voice, got %q", p.Voice)
	}
	// Set is wholesale replacement, not a merge.
	if p.Speed != 0 || p.Engine != "" {
		t.Fatalf("expected prior fields cleared, got %+v", p)
	}
}

func TestMemoryStoreIsolatesBooks(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.Set(ctx, "b1", Preferences{Voice: "alloy"})
	s.Set(ctx, "b2", Preferences{Voice: "echo"})

	p1, _ := s.Get(ctx, "b1")
	p2, _ := s.Get(ctx, "b2")
	if p1.Voice != "alloy" || p2.Voice != "echo" {
		t.Fatalf("books must not share preferences: %+v %+v", p1, p2)
	}
}

func TestMemoryStoreReturnsCopy(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.Set(ctx, "b1", Preferences{Voice: "alloy"})
	p, _ := s.Get(ctx, "b1")
	p.Voice = "mutated"

	again, _ := s.Get(ctx, "b1")
	if again.Voice != "alloy" {
		t.Fatal("mutating a returned blob must not affect the store")
	}
}
