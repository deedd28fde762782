package rag

import (
	"context"
	"strings"
	"testing"

	"github.com/parley-ai/parley/internal/history"
	"github.com/parley-ai/parley/pkg/models"
)

func TestKeywordRetrieverRanksByOverlap(t *testing.T) {
	r := NewKeywordRetriever()
	r.Index(Document{ID: "1", Source: "docs", Content: "deploy the service with the release pipeline"})
	r.Index(Document{ID: "2", Source: "docs", Content: "the office coffee machine manual"})

	got, err := r.Retrieve(context.Background(), "how do I deploy a release?", []string{"docs"}, 5)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d: %+v", len(got), got)
	}
	if !strings.Contains(got[0].Content, "pipeline") {
		t.Fatalf("content = %q", got[0].Content)
	}
}

func TestKeywordRetrieverRespectsSources(t *testing.T) {
	r := NewKeywordRetriever()
	r.Index(Document{ID: "1", Source: "a", Content: "deploy instructions here"})
	r.Index(Document{ID: "2", Source: "b", Content: "deploy instructions there"})

	got, err := r.Retrieve(context.Background(), "deploy instructions", []string{"a"}, 5)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(got) != 1 || got[0].Source != "a" {
		t.Fatalf("got %+v", got)
	}
}

func TestKeywordRetrieverEmptyQuery(t *testing.T) {
	r := NewKeywordRetriever()
	r.Index(Document{ID: "1", Source: "a", Content: "something"})

	got, err := r.Retrieve(context.Background(), "to be", nil, 5)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("got %+v", got)
	}
}

func TestAugmentInjectsSnippets(t *testing.T) {
	out := Augment("Be concise.", []Snippet{
		{Source: "docs", Content: "relevant fact", Score: 0.9},
		{Source: "docs", Content: "weak match", Score: 0.01},
	}, DefaultInjectorConfig())

	if !strings.HasPrefix(out, "Be concise.") {
		t.Fatalf("prompt lost: %q", out)
	}
	if !strings.Contains(out, "relevant fact") {
		t.Fatal("snippet missing")
	}
	if strings.Contains(out, "weak match") {
		t.Fatal("low-score snippet injected")
	}
}

func TestAugmentNoSnippets(t *testing.T) {
	if out := Augment("Be concise.", nil, DefaultInjectorConfig()); out != "Be concise." {
		t.Fatalf("out = %q", out)
	}
}

func TestIndexingStoreFeedsRetriever(t *testing.T) {
	retriever := NewKeywordRetriever()
	store := NewIndexingStore(history.NewMemoryStore(), retriever)
	t.Cleanup(func() { store.Close() })

	err := store.Append(context.Background(), &models.Message{
		ID:        "m1",
		SessionID: "s1",
		Role:      models.RoleAssistant,
		Content:   "deploys run through the blue pipeline",
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	// The message persisted normally.
	msgs, err := store.Recent(context.Background(), "s1", 0)
	if err != nil || len(msgs) != 1 {
		t.Fatalf("recent = %v, %v", msgs, err)
	}

	// And it is retrievable under its session as source.
	got, err := retriever.Retrieve(context.Background(), "how do deploys run?", []string{"s1"}, 5)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(got) != 1 || !strings.Contains(got[0].Content, "pipeline") {
		t.Fatalf("got %+v", got)
	}
}

func TestIndexingStoreSkipsToolOnlyMessages(t *testing.T) {
	retriever := NewKeywordRetriever()
	store := NewIndexingStore(history.NewMemoryStore(), retriever)
	t.Cleanup(func() { store.Close() })

	err := store.Append(context.Background(), &models.Message{
		ID:          "m1",
		SessionID:   "s1",
		Role:        models.RoleTool,
		ToolResults: []models.ToolResult{{ToolCallID: "c1", Success: true, Content: "raw output"}},
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := retriever.Retrieve(context.Background(), "raw output", nil, 5)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("indexed a contentless message: %+v", got)
	}
}

func TestAugmentCapsSnippets(t *testing.T) {
	var snippets []Snippet
	for i := 0; i < 10; i++ {
		snippets = append(snippets, Snippet{Source: "s", Content: "fact", Score: 1})
	}
	out := Augment("", snippets, InjectorConfig{MaxSnippets: 2, MinScore: 0})
	if n := strings.Count(out, "### s"); n != 2 {
		t.Fatalf("injected %d snippets", n)
	}
}
