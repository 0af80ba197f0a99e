package vectorstore

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/studywise/internal/logger"
)

// testPool connects to TEST_DATABASE_URL (a Postgres with the vector
// extension available) or skips.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	pool, err := pgxpool.New(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, pool.Ping(context.Background()))
	return pool
}

func testPgStore(t *testing.T) *PgVectorStore {
	t.Helper()
	name := "test_chunks_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	s := NewPgVectorStore(testPool(t), name, logger.Nop())
	t.Cleanup(func() { _ = s.DeleteCollection(context.Background()) })
	return s
}

func TestPgVectorStore_UndefinedTableIsCollectionNotFound(t *testing.T) {
	s := NewPgVectorStore(nil, "chunks", logger.Nop())
	s.ensuredDim = 3

	err := s.mapErr("count", &pgconn.PgError{Code: pgUndefinedTable, Message: `relation "chunks" does not exist`})
	assert.ErrorIs(t, err, ErrCollectionNotFound)
	assert.Zero(t, s.ensuredDim, "the next EnsureCollection recreates the table")

	err = s.mapErr("count", errors.New("connection reset"))
	assert.NotErrorIs(t, err, ErrCollectionNotFound)
}

func TestPgVectorStore_MissingTable(t *testing.T) {
	s := testPgStore(t)
	ctx := context.Background()

	_, err := s.Count(ctx, Filter{})
	assert.ErrorIs(t, err, ErrCollectionNotFound)
	_, err = s.SearchBatch(ctx, [][]float32{{1, 0, 0}}, Filter{}, 3)
	assert.ErrorIs(t, err, ErrCollectionNotFound)
}

func TestPgVectorStore_DimensionMismatch(t *testing.T) {
	s := testPgStore(t)
	ctx := context.Background()

	require.NoError(t, s.EnsureCollection(ctx, 3))
	require.NoError(t, s.EnsureCollection(ctx, 3))
	assert.ErrorIs(t, s.EnsureCollection(ctx, 4), ErrDimensionMismatch)
}

func TestPgVectorStore_PayloadScopingAndPrune(t *testing.T) {
	s := testPgStore(t)
	ctx := context.Background()
	require.NoError(t, s.EnsureCollection(ctx, 3))

	alice, bob, chapter, other := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	docA, docB, docC := uuid.New(), uuid.New(), uuid.New()
	require.NoError(t, s.Upsert(ctx, []Point{
		chunkPoint(docA, alice, chapter, 0, "alice first", []float32{1, 0, 0}),
		chunkPoint(docA, alice, chapter, 1, "alice second", []float32{0.9, 0.1, 0}),
		chunkPoint(docB, bob, chapter, 0, "bob notes", []float32{1, 0, 0}),
		chunkPoint(docC, alice, other, 0, "alice other chapter", []float32{1, 0, 0}),
	}))

	n, err := s.Count(ctx, ChapterUserFilter(chapter, alice))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	results, err := s.SearchBatch(ctx, [][]float32{{1, 0, 0}}, ChapterUserFilter(chapter, alice), 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Len(t, results[0], 2)
	assert.Equal(t, "alice first", results[0][0].Text)
	assert.Equal(t, PointID(docA, 0), results[0][0].ID)
	assert.InDelta(t, 1.0, results[0][0].Score, 1e-6)
	for _, r := range results[0] {
		assert.Equal(t, alice.String(), r.Payload[PayloadUserID])
		assert.Equal(t, chapter.String(), r.Payload[PayloadChapterID])
	}

	// Re-upserting the same id overwrites in place.
	require.NoError(t, s.Upsert(ctx, []Point{chunkPoint(docA, alice, chapter, 0, "alice rewritten", []float32{1, 0, 0})}))
	n, err = s.Count(ctx, ChapterUserFilter(chapter, alice))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, s.PruneDocument(ctx, docA, 1))
	results, err = s.SearchBatch(ctx, [][]float32{{1, 0, 0}}, ChapterUserFilter(chapter, alice), 10)
	require.NoError(t, err)
	require.Len(t, results[0], 1)
	assert.Equal(t, "alice rewritten", results[0][0].Text)

	n, err = s.Count(ctx, Match(PayloadUserID, bob.String()))
	require.NoError(t, err)
	assert.Equal(t, 1, n, "pruning one document leaves others alone")
}
