package tokens

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStore_SaveBumpsEpoch(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	e1, err := s.Save(ctx, []byte("tok-a"))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	e2, err := s.Save(ctx, []byte("tok-b"))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if e2 <= e1 {
		t.Fatalf("epoch must increase on rotation: %d -> %d", e1, e2)
	}

	tok, epoch, err := s.Current(ctx)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if string(tok) != "tok-b" || epoch != e2 {
		t.Fatalf("expected latest registration, got %q epoch %d", tok, epoch)
	}
}

func TestMemoryStore_ClearKeepsEpoch(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := s.Save(ctx, []byte("tok-a")); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	_, epoch, err := s.Current(ctx)
	if !errors.Is(err, ErrNoToken) {
		t.Fatalf("expected ErrNoToken, got %v", err)
	}
	if epoch != 1 {
		t.Fatalf("epoch must survive clear, got %d", epoch)
	}
}

func TestMemoryStore_EmptyStart(t *testing.T) {
	s := NewMemoryStore()
	if _, _, err := s.Current(context.Background()); !errors.Is(err, ErrNoToken) {
		t.Fatalf("expected ErrNoToken, got %v", err)
	}
}
