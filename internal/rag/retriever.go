// Package rag retrieves context snippets for retrieval-augmented turns
// and renders them into the system prompt.
package rag

import (
	"context"
	"fmt"
	"strings"
)

// Snippet is one retrieved piece of context.
type Snippet struct {
	Source  string
	Content string
	Score   float64
}

// Retriever finds context relevant to a query within the session's
// configured sources.
type Retriever interface {
	Retrieve(ctx context.Context, query string, sources []string, limit int) ([]Snippet, error)
}

// InjectorConfig configures how retrieved snippets reach the prompt.
type InjectorConfig struct {
	// MaxSnippets caps injected snippets. Default: 5.
	MaxSnippets int

	// MinScore drops weak matches. Default: 0.1.
	MinScore float64
}

// DefaultInjectorConfig returns the standard injection limits.
func DefaultInjectorConfig() InjectorConfig {
	return InjectorConfig{MaxSnippets: 5, MinScore: 0.1}
}

// Augment appends retrieved context to a system prompt. An empty snippet
// set returns the prompt unchanged.
func Augment(system string, snippets []Snippet, cfg InjectorConfig) string {
	if cfg.MaxSnippets <= 0 {
		cfg.MaxSnippets = 5
	}

	var kept []Snippet
	for _, s := range snippets {
		if s.Score < cfg.MinScore {
			continue
		}
		kept = append(kept, s)
		if len(kept) == cfg.MaxSnippets {
			break
		}
	}
	if len(kept) == 0 {
		return system
	}

	var b strings.Builder
	if system != "" {
		b.WriteString(system)
		b.WriteString("\n\n")
	}
	b.WriteString("## Relevant Context\n\nThe following information may be relevant:\n\n")
	for _, s := range kept {
		fmt.Fprintf(&b, "### %s\n%s\n\n", s.Source, s.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}
