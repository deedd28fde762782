package rag

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Document is one indexed source of snippets.
type Document struct {
	ID      string
	Source  string
	Content string
}

// KeywordRetriever scores documents by keyword overlap with the query.
// It trades recall for zero infrastructure: no embeddings, no external
// index, safe for concurrent use.
type KeywordRetriever struct {
	mu   sync.RWMutex
	docs map[string][]Document // source -> documents
}

// NewKeywordRetriever creates an empty retriever.
func NewKeywordRetriever() *KeywordRetriever {
	return &KeywordRetriever{docs: map[string][]Document{}}
}

// Index adds a document under its source. Documents with an empty source
// go into the "default" source.
func (r *KeywordRetriever) Index(doc Document) {
	if doc.Source == "" {
		doc.Source = "default"
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[doc.Source] = append(r.docs[doc.Source], doc)
}

// Retrieve returns the best-scoring documents among the named sources.
// An empty sources list searches everything.
func (r *KeywordRetriever) Retrieve(ctx context.Context, query string, sources []string, limit int) ([]Snippet, error) {
	terms := tokenize(query)
	if len(terms) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 5
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	selected := sources
	if len(selected) == 0 {
		for source := range r.docs {
			selected = append(selected, source)
		}
	}

	var out []Snippet
	for _, source := range selected {
		for _, doc := range r.docs[source] {
			score := overlap(terms, tokenize(doc.Content))
			if score == 0 {
				continue
			}
			out = append(out, Snippet{Source: doc.Source, Content: doc.Content, Score: score})
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func tokenize(s string) map[string]bool {
	terms := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.Trim(w, ".,;:!?\"'()[]{}")
		if len(w) < 3 {
			continue
		}
		terms[w] = true
	}
	return terms
}

// overlap is the fraction of query terms present in the document.
func overlap(query, doc map[string]bool) float64 {
	if len(query) == 0 {
		return 0
	}
	hits := 0
	for t := range query {
		if doc[t] {
			hits++
		}
	}
	return float64(hits) / float64(len(query))
}
