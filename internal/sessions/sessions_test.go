package sessions

import (
	"context"
	"errors"
	"testing"

	"github.com/parley-ai/parley/pkg/models"
)

func TestMemoryStoreCreateAssignsID(t *testing.T) {
	store := NewMemoryStore()
	s := &models.Session{Owner: models.Identity{Subject: "alice"}}

	if err := store.Create(context.Background(), s); err != nil {
		t.Fatalf("create: %v", err)
	}
	if s.ID == "" {
		t.Fatal("expected generated id")
	}
	if s.CreatedAt.IsZero() {
		t.Fatal("expected created_at")
	}

	got, err := store.Get(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Owner.Subject != "alice" {
		t.Fatalf("owner = %q", got.Owner.Subject)
	}
}

func TestMemoryStoreGetUnknown(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreUpdatePreservesCreatedAt(t *testing.T) {
	store := NewMemoryStore()
	s := &models.Session{Owner: models.Identity{Subject: "alice"}}
	if err := store.Create(context.Background(), s); err != nil {
		t.Fatalf("create: %v", err)
	}
	created := s.CreatedAt

	s.Title = "renamed"
	if err := store.Update(context.Background(), s); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := store.Get(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "renamed" {
		t.Fatalf("title = %q", got.Title)
	}
	if !got.CreatedAt.Equal(created) {
		t.Fatal("created_at changed on update")
	}
}

func TestMemoryStoreListFiltersByOwner(t *testing.T) {
	store := NewMemoryStore()
	for _, owner := range []string{"alice", "alice", "bob"} {
		s := &models.Session{Owner: models.Identity{Subject: owner}}
		if err := store.Create(context.Background(), s); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	got, err := store.List(context.Background(), "alice", ListOptions{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d", len(got))
	}
}

func TestMemoryStoreClonesOnRead(t *testing.T) {
	store := NewMemoryStore()
	s := &models.Session{Owner: models.Identity{Subject: "alice"}, Providers: []string{"fs"}}
	if err := store.Create(context.Background(), s); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, _ := store.Get(context.Background(), s.ID)
	got.Providers[0] = "mutated"

	again, _ := store.Get(context.Background(), s.ID)
	if again.Providers[0] != "fs" {
		t.Fatal("store leaked internal slice")
	}
}

func TestRuntimeCancelledClearsFlag(t *testing.T) {
	r := &Runtime{}
	r.Cancel()
	if !r.PeekCancelled() {
		t.Fatal("expected flag set")
	}
	if !r.Cancelled() {
		t.Fatal("expected cancelled")
	}
	if r.Cancelled() {
		t.Fatal("flag should clear after read")
	}
}

func TestRuntimeSuspendResume(t *testing.T) {
	r := &Runtime{}
	if r.Suspended() {
		t.Fatal("new runtime should not be suspended")
	}

	r.Suspend(&models.AgentState{Step: 3, Question: "which file?"})
	if !r.Suspended() {
		t.Fatal("expected suspended")
	}

	state := r.Resume()
	if state == nil || state.Step != 3 {
		t.Fatalf("state = %+v", state)
	}
	if r.Resume() != nil {
		t.Fatal("resume should clear state")
	}
}

func TestTrackerReturnsSameRuntime(t *testing.T) {
	tr := NewTracker()
	a := tr.Runtime("s1")
	b := tr.Runtime("s1")
	if a != b {
		t.Fatal("expected same runtime instance")
	}

	tr.Forget("s1")
	if tr.Runtime("s1") == a {
		t.Fatal("forget should drop the runtime")
	}
}
