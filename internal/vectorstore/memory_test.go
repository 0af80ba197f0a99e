package vectorstore

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chunkPoint(doc, user, chapter uuid.UUID, idx int, text string, vec []float32) Point {
	return Point{
		ID:     PointID(doc, idx),
		Vector: vec,
		Payload: map[string]any{
			PayloadText:       text,
			PayloadDocumentID: doc.String(),
			PayloadUserID:     user.String(),
			PayloadChapterID:  chapter.String(),
			PayloadChunkIndex: idx,
		},
	}
}

func TestMemoryStore_MissingCollection(t *testing.T) {
	m := NewMemoryStore()
	_, err := m.Count(context.Background(), Filter{})
	assert.ErrorIs(t, err, ErrCollectionNotFound)
}

func TestMemoryStore_FilterScopesResults(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	require.NoError(t, m.EnsureCollection(ctx, 2))

	alice, bob, chapter := uuid.New(), uuid.New(), uuid.New()
	docA, docB := uuid.New(), uuid.New()
	require.NoError(t, m.Upsert(ctx, []Point{
		chunkPoint(docA, alice, chapter, 0, "alice notes", []float32{1, 0}),
		chunkPoint(docB, bob, chapter, 0, "bob notes", []float32{1, 0}),
	}))

	n, err := m.Count(ctx, ChapterUserFilter(chapter, alice))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	res, err := m.SearchBatch(ctx, [][]float32{{1, 0}, {0, 1}}, ChapterUserFilter(chapter, alice), 5)
	require.NoError(t, err)
	require.Len(t, res, 2)
	for _, hits := range res {
		require.Len(t, hits, 1)
		assert.Equal(t, "alice notes", hits[0].Text)
	}
}

func TestMemoryStore_DimensionFixedOnCreate(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	require.NoError(t, m.EnsureCollection(ctx, 3))
	require.NoError(t, m.EnsureCollection(ctx, 3))
	assert.ErrorIs(t, m.EnsureCollection(ctx, 4), ErrDimensionMismatch)
}

func TestMemoryStore_PruneKeepsLeadingChunks(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	require.NoError(t, m.EnsureCollection(ctx, 1))

	doc, other, user, chapter := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	var pts []Point
	for i := range 4 {
		pts = append(pts, chunkPoint(doc, user, chapter, i, "t", []float32{1}))
	}
	pts = append(pts, chunkPoint(other, user, chapter, 3, "o", []float32{1}))
	require.NoError(t, m.Upsert(ctx, pts))

	require.NoError(t, m.PruneDocument(ctx, doc, 2))

	n, err := m.Count(ctx, Match(PayloadDocumentID, doc.String()))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = m.Count(ctx, Match(PayloadDocumentID, other.String()))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
