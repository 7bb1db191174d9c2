package conversation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"peerchat/internal/profile"
)

func TestCanonicalPair(t *testing.T) {
	a, b := canonicalPair("bbb", "aaa")
	if a != "aaa" || b != "bbb" {
		t.Fatalf("canonicalPair = (%s, %s)", a, b)
	}

	a, b = canonicalPair("aaa", "bbb")
	if a != "aaa" || b != "bbb" {
		t.Fatalf("canonicalPair already ordered = (%s, %s)", a, b)
	}
}

func TestCounterpartID(t *testing.T) {
	c := Conversation{User1ID: "u1", User2ID: "u2"}

	if got := c.CounterpartID("u1"); got != "u2" {
		t.Fatalf("CounterpartID(u1) = %s", got)
	}
	if got := c.CounterpartID("u2"); got != "u1" {
		t.Fatalf("CounterpartID(u2) = %s", got)
	}
	if got := c.CounterpartID("stranger"); got != "" {
		t.Fatalf("CounterpartID(stranger) = %s, want empty", got)
	}
}

func TestResolve_RejectsBadArguments(t *testing.T) {
	// Argument validation runs before any database access, so a nil db
	// is fine here.
	repo := NewRepository(nil, nil)
	valid := "7b0e8f9e-4c1d-4f3a-9b2a-111111111111"

	if _, err := repo.Resolve(context.Background(), "not-a-uuid", valid); !errors.Is(err, ErrInvalidUserID) {
		t.Fatalf("bad first id: err = %v", err)
	}
	if _, err := repo.Resolve(context.Background(), valid, "not-a-uuid"); !errors.Is(err, ErrInvalidUserID) {
		t.Fatalf("bad second id: err = %v", err)
	}
	if _, err := repo.Resolve(context.Background(), valid, valid); !errors.Is(err, ErrSelfConversation) {
		t.Fatalf("self pair: err = %v", err)
	}

	// uuid text is case-insensitive: the same id spelled in upper case is
	// still a self pair.
	if _, err := repo.Resolve(context.Background(), valid, strings.ToUpper(valid)); !errors.Is(err, ErrSelfConversation) {
		t.Fatalf("case-variant self pair: err = %v", err)
	}
}

func TestDirectory_ResolveCounterpart(t *testing.T) {
	conv := Conversation{ID: "c1", User1ID: "me", User2ID: "them"}
	d := NewDirectory("me", nil, nil)
	d.entries = []Entry{{Conversation: conv, Counterpart: profile.Profile{ID: "them", Username: "them"}}}

	p, ok := d.ResolveCounterpart(conv, nil)
	if !ok || p.ID != "them" {
		t.Fatalf("in-view lookup = %+v, %v", p, ok)
	}

	// Not in view yet: fall back to the cache keyed by counterpart id.
	unseen := Conversation{ID: "c2", User1ID: "me", User2ID: "other"}
	cache := map[string]profile.Profile{"other": {ID: "other", Username: "other"}}
	p, ok = d.ResolveCounterpart(unseen, cache)
	if !ok || p.ID != "other" {
		t.Fatalf("cache fallback = %+v, %v", p, ok)
	}

	if _, ok := d.ResolveCounterpart(unseen, nil); ok {
		t.Fatal("lookup with no view entry and no cache should miss")
	}
}
