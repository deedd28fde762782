package history

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/parley-ai/parley/pkg/models"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := NewSQLiteStore("")
	if err != nil {
		t.Fatalf("sqlite store: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func TestAppendAndRecent(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Now().Add(-time.Minute)
			for i := 0; i < 5; i++ {
				msg := &models.Message{
					SessionID: "s1",
					Role:      models.RoleUser,
					Content:   fmt.Sprintf("message %d", i),
					CreatedAt: base.Add(time.Duration(i) * time.Second),
				}
				if err := store.Append(ctx, msg); err != nil {
					t.Fatalf("append: %v", err)
				}
				if msg.ID == "" {
					t.Fatal("expected generated id")
				}
			}

			got, err := store.Recent(ctx, "s1", 3)
			if err != nil {
				t.Fatalf("recent: %v", err)
			}
			if len(got) != 3 {
				t.Fatalf("len = %d", len(got))
			}
			// Oldest first within the window.
			if got[0].Content != "message 2" || got[2].Content != "message 4" {
				t.Fatalf("window = %q .. %q", got[0].Content, got[2].Content)
			}
		})
	}
}

func TestRecentUnlimited(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := 0; i < 4; i++ {
				err := store.Append(ctx, &models.Message{SessionID: "s1", Role: models.RoleUser, Content: "m"})
				if err != nil {
					t.Fatalf("append: %v", err)
				}
			}
			got, err := store.Recent(ctx, "s1", 0)
			if err != nil {
				t.Fatalf("recent: %v", err)
			}
			if len(got) != 4 {
				t.Fatalf("len = %d", len(got))
			}
		})
	}
}

func TestToolCallsRoundTrip(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			msg := &models.Message{
				SessionID: "s1",
				Role:      models.RoleAssistant,
				ToolCalls: []models.ToolCall{{
					ID:        "c1",
					Provider:  "fs",
					Name:      "read",
					Arguments: map[string]any{"path": "a.txt"},
				}},
			}
			if err := store.Append(ctx, msg); err != nil {
				t.Fatalf("append: %v", err)
			}

			got, err := store.Recent(ctx, "s1", 1)
			if err != nil {
				t.Fatalf("recent: %v", err)
			}
			if len(got) != 1 || len(got[0].ToolCalls) != 1 {
				t.Fatalf("got %+v", got)
			}
			tc := got[0].ToolCalls[0]
			if tc.Provider != "fs" || tc.Arguments["path"] != "a.txt" {
				t.Fatalf("tool call = %+v", tc)
			}
		})
	}
}

func TestClearDropsSessionOnly(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, sid := range []string{"s1", "s2"} {
				err := store.Append(ctx, &models.Message{SessionID: sid, Role: models.RoleUser, Content: "m"})
				if err != nil {
					t.Fatalf("append: %v", err)
				}
			}

			if err := store.Clear(ctx, "s1"); err != nil {
				t.Fatalf("clear: %v", err)
			}
			got, _ := store.Recent(ctx, "s1", 0)
			if len(got) != 0 {
				t.Fatalf("s1 len = %d", len(got))
			}
			got, _ = store.Recent(ctx, "s2", 0)
			if len(got) != 1 {
				t.Fatalf("s2 len = %d", len(got))
			}
		})
	}
}

func TestMemoryStoreTrimsAtCap(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	for i := 0; i < maxMessagesPerSession+10; i++ {
		err := store.Append(ctx, &models.Message{SessionID: "s1", Role: models.RoleUser, Content: fmt.Sprintf("%d", i)})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, _ := store.Recent(ctx, "s1", 0)
	if len(got) != maxMessagesPerSession {
		t.Fatalf("len = %d", len(got))
	}
	if got[0].Content != "10" {
		t.Fatalf("oldest = %q", got[0].Content)
	}
}
