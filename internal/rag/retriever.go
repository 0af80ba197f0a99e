package rag

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/studywise/internal/embedding"
	"github.com/nikhilbhutani/studywise/internal/vectorstore"
)

// Searcher is the read side of vectorstore.Store.
type Searcher interface {
	Count(ctx context.Context, filter vectorstore.Filter) (int, error)
	SearchBatch(ctx context.Context, vectors [][]float32, filter vectorstore.Filter, limit int) ([][]vectorstore.SearchResult, error)
}

const contextSeparator = "\n\n---\n\n"

type Retriever struct {
	store    Searcher
	embedder embedding.Embedder
	perQuery int
	limit    int
}

func NewRetriever(store Searcher, embedder embedding.Embedder, perQuery, limit int) *Retriever {
	if perQuery <= 0 {
		perQuery = 5
	}
	if limit <= 0 {
		limit = 10
	}
	return &Retriever{store: store, embedder: embedder, perQuery: perQuery, limit: limit}
}

// Retrieve embeds every query in one call, searches each vector inside the
// user's chapter and merges the hits.
func (r *Retriever) Retrieve(ctx context.Context, queries []string, chapterID, userID uuid.UUID) ([]vectorstore.SearchResult, error) {
	vectors, err := r.embedder.Embed(ctx, queries, embedding.RetrievalQuery)
	if err != nil {
		return nil, fmt.Errorf("embed queries: %w", err)
	}

	lists, err := r.store.SearchBatch(ctx, vectors, vectorstore.ChapterUserFilter(chapterID, userID), r.perQuery)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	return Merge(lists, r.limit), nil
}

// Merge flattens per-query hits, drops empty and repeated texts (first
// occurrence wins), orders by descending score and keeps limit results.
func Merge(lists [][]vectorstore.SearchResult, limit int) []vectorstore.SearchResult {
	seen := make(map[string]bool)
	var out []vectorstore.SearchResult
	for _, list := range lists {
		for _, r := range list {
			if r.Text == "" || seen[r.Text] {
				continue
			}
			seen[r.Text] = true
			out = append(out, r)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func buildContext(results []vectorstore.SearchResult) string {
	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Text
	}
	return strings.Join(texts, contextSeparator)
}
