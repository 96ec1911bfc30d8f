package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nstefanov/authcore/internal/errs"
	"github.com/nstefanov/authcore/internal/model"
)

func TestRateLimitStore_LoadMissIsNil(t *testing.T) {
	t.Parallel()
	s := NewRateLimitStore()

	rec, err := s.Load(context.Background(), "a@x.com", "login")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if rec != nil {
		t.Fatalf("missing record not nil: %+v", rec)
	}
}

func TestRateLimitStore_VersionGuard(t *testing.T) {
	t.Parallel()
	s := NewRateLimitStore()
	ctx := context.Background()
	now := time.Now()

	rec := &model.RateLimitRecord{Identifier: "a@x.com", Action: "login", Count: 1, WindowStart: now}
	if err := s.Save(ctx, rec); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if rec.Version != 1 {
		t.Fatalf("version after insert: %d", rec.Version)
	}

	// Two loads, two saves: the second writer must lose.
	first, err := s.Load(ctx, "a@x.com", "login")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	second, err := s.Load(ctx, "a@x.com", "login")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	first.Count++
	if err := s.Save(ctx, first); err != nil {
		t.Fatalf("first save: %v", err)
	}
	second.Count++
	if err := s.Save(ctx, second); !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("stale save: %v", err)
	}

	// A racing insert against an existing row also loses.
	fresh := &model.RateLimitRecord{Identifier: "a@x.com", Action: "login"}
	if err := s.Save(ctx, fresh); !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("insert over existing row: %v", err)
	}
}

func TestRateLimitStore_LoadCopiesAttempts(t *testing.T) {
	t.Parallel()
	s := NewRateLimitStore()
	ctx := context.Background()
	now := time.Now()

	rec := &model.RateLimitRecord{Identifier: "a@x.com", Action: "login", Attempts: []time.Time{now}}
	if err := s.Save(ctx, rec); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Load(ctx, "a@x.com", "login")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	got.Attempts[0] = got.Attempts[0].Add(time.Hour)

	again, err := s.Load(ctx, "a@x.com", "login")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !again.Attempts[0].Equal(now) {
		t.Fatalf("stored attempts mutated through a loaded copy")
	}
}

func TestRateLimitStore_Delete(t *testing.T) {
	t.Parallel()
	s := NewRateLimitStore()
	ctx := context.Background()

	rec := &model.RateLimitRecord{Identifier: "a@x.com", Action: "login"}
	if err := s.Save(ctx, rec); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Delete(ctx, "a@x.com", "login"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	got, err := s.Load(ctx, "a@x.com", "login")
	if err != nil || got != nil {
		t.Fatalf("record survived delete: %v %v", got, err)
	}
	// Deleting a missing record is a no-op.
	if err := s.Delete(ctx, "a@x.com", "login"); err != nil {
		t.Fatalf("Delete(2): %v", err)
	}
}
