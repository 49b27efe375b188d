package app

import (
	"context"
	"errors"
	"strings"
	"testing"

	"live-quiz-service/internal/domain"
)

// busyStore reports every code as held by a live session.
type busyStore struct {
	SessionStore
	lookups int
}

func (s *busyStore) FindSessionByCode(context.Context, string) (domain.Session, error) {
	s.lookups++
	return domain.Session{}, nil
}

type failingStore struct {
	SessionStore
}

func (failingStore) FindSessionByCode(context.Context, string) (domain.Session, error) {
	return domain.Session{}, errors.New("store down")
}

func TestJoinCodesUseReadableAlphabet(t *testing.T) {
	codes := NewJoinCodes(8, nil, nil)
	for i := 0; i < 200; i++ {
		code, err := codes.Next(context.Background())
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if len(code) != 8 {
			t.Fatalf("expected length 8, got %q", code)
		}
		if strings.ContainsAny(code, "01IO") {
			t.Fatalf("code %q contains an ambiguous character", code)
		}
		if _, err := domain.NormalizeCode(code); err != nil {
			t.Fatalf("generated code %q does not normalize: %v", code, err)
		}
	}
}

func TestJoinCodesGiveUpWhenEverythingIsTaken(t *testing.T) {
	store := &busyStore{}
	if _, err := NewJoinCodes(DefaultCodeLength, store, nil).Next(context.Background()); !errors.Is(err, domain.ErrJoinCodeTaken) {
		t.Fatalf("expected ErrJoinCodeTaken, got %v", err)
	}
	if store.lookups != maxCodeAttempts {
		t.Fatalf("expected %d attempts, got %d", maxCodeAttempts, store.lookups)
	}
}

func TestJoinCodesSurfaceStoreErrors(t *testing.T) {
	if _, err := NewJoinCodes(DefaultCodeLength, failingStore{}, nil).Next(context.Background()); err == nil || errors.Is(err, domain.ErrJoinCodeTaken) {
		t.Fatalf("expected store error, got %v", err)
	}
}

func TestJoinCodesClampLength(t *testing.T) {
	if got := NewJoinCodes(100, nil, nil).length; got != DefaultCodeLength {
		t.Fatalf("expected out of range length clamped to default, got %d", got)
	}
}
