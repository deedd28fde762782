package routing

import (
	"context"
	"errors"
	"testing"

	"github.com/parley-ai/parley/internal/registry"
	"github.com/parley-ai/parley/pkg/models"
)

func testEntry(provider string) *Entry {
	return &Entry{
		Provider:  provider,
		SessionID: "s1",
		Call:      &models.ToolCall{ID: "c1", Provider: provider, Name: "op"},
	}
}

func TestInstallLookupRemove(t *testing.T) {
	tbl := NewTable(nil)

	if err := tbl.Install(testEntry("files")); err != nil {
		t.Fatalf("install failed: %v", err)
	}
	if _, ok := tbl.Lookup("files"); !ok {
		t.Fatal("expected entry after install")
	}

	tbl.Remove("files")
	if _, ok := tbl.Lookup("files"); ok {
		t.Fatal("entry must be gone after remove")
	}
	if tbl.Len() != 0 {
		t.Fatalf("table should be empty, has %d", tbl.Len())
	}
}

func TestInstallDuplicateFails(t *testing.T) {
	tbl := NewTable(nil)
	if err := tbl.Install(testEntry("files")); err != nil {
		t.Fatalf("install failed: %v", err)
	}

	err := tbl.Install(testEntry("files"))
	var dup *DuplicateEntryError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateEntryError, got %v", err)
	}
	if dup.Provider != "files" {
		t.Fatalf("unexpected provider in error: %q", dup.Provider)
	}
}

func TestDispatchOrphanAnswersCancelled(t *testing.T) {
	tbl := NewTable(nil)

	resp := tbl.Dispatch(context.Background(), &OutOfBandRequest{
		Provider: "nobody",
		Kind:     KindInput,
		Question: "which file?",
	})
	if !resp.Cancelled {
		t.Fatal("orphaned request must be answered cancelled")
	}
}

func TestDispatchInput(t *testing.T) {
	tbl := NewTable(nil)
	entry := testEntry("files")
	var asked string
	entry.PromptUser = func(ctx context.Context, question string) (string, error) {
		asked = question
		return "report.txt", nil
	}
	if err := tbl.Install(entry); err != nil {
		t.Fatalf("install failed: %v", err)
	}

	resp := tbl.Dispatch(context.Background(), &OutOfBandRequest{
		Provider: "files",
		Kind:     KindInput,
		Question: "which file?",
	})
	if resp.Cancelled || resp.Text != "report.txt" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if asked != "which file?" {
		t.Fatalf("question not routed, got %q", asked)
	}
}

func TestDispatchInputFailureCancels(t *testing.T) {
	tbl := NewTable(nil)
	entry := testEntry("files")
	entry.PromptUser = func(ctx context.Context, question string) (string, error) {
		return "", errors.New("client gone")
	}
	if err := tbl.Install(entry); err != nil {
		t.Fatalf("install failed: %v", err)
	}

	resp := tbl.Dispatch(context.Background(), &OutOfBandRequest{
		Provider: "files",
		Kind:     KindInput,
	})
	if !resp.Cancelled {
		t.Fatal("failed prompt must answer cancelled")
	}
}

func TestDispatchLLMCall(t *testing.T) {
	tbl := NewTable(nil)
	entry := testEntry("files")
	entry.Complete = func(ctx context.Context, system string, messages []models.Message) (string, error) {
		if system != "summarize" || len(messages) != 1 {
			t.Fatalf("payload not routed: system=%q messages=%d", system, len(messages))
		}
		return "summary", nil
	}
	if err := tbl.Install(entry); err != nil {
		t.Fatalf("install failed: %v", err)
	}

	resp := tbl.Dispatch(context.Background(), &OutOfBandRequest{
		Provider: "files",
		Kind:     KindLLMCall,
		System:   "summarize",
		Messages: []models.Message{{Role: models.RoleUser, Content: "long text"}},
	})
	if resp.Cancelled || resp.Text != "summary" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestDispatchProgressReachesSink(t *testing.T) {
	tbl := NewTable(nil)
	entry := testEntry("files")
	ch := make(chan models.Event, 1)
	entry.Sink = registry.NewChanSink(ch)
	if err := tbl.Install(entry); err != nil {
		t.Fatalf("install failed: %v", err)
	}

	pct := 40
	tbl.Dispatch(context.Background(), &OutOfBandRequest{
		Provider: "files",
		Kind:     KindProgress,
		Percent:  &pct,
		Message:  "scanning",
	})

	select {
	case e := <-ch:
		if e.Type != models.EventToolProgress {
			t.Fatalf("unexpected event type %q", e.Type)
		}
		if e.Tool == nil || e.Tool.Percent == nil || *e.Tool.Percent != 40 || e.Tool.Message != "scanning" {
			t.Fatalf("progress payload not routed: %+v", e.Tool)
		}
	default:
		t.Fatal("expected a progress event")
	}
}

func TestDispatchUnknownKindCancels(t *testing.T) {
	tbl := NewTable(nil)
	if err := tbl.Install(testEntry("files")); err != nil {
		t.Fatalf("install failed: %v", err)
	}

	resp := tbl.Dispatch(context.Background(), &OutOfBandRequest{Provider: "files", Kind: "bogus"})
	if !resp.Cancelled {
		t.Fatal("unknown kind must be answered cancelled")
	}
}
