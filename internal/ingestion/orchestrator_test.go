package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/studywise/internal/cache"
	"github.com/nikhilbhutani/studywise/internal/document"
	"github.com/nikhilbhutani/studywise/internal/document/doctest"
	"github.com/nikhilbhutani/studywise/internal/embedding"
	"github.com/nikhilbhutani/studywise/internal/logger"
	"github.com/nikhilbhutani/studywise/internal/models"
	"github.com/nikhilbhutani/studywise/internal/notify"
	"github.com/nikhilbhutani/studywise/internal/storage"
	"github.com/nikhilbhutani/studywise/internal/vectorstore"
	"github.com/nikhilbhutani/studywise/pkg/chunker"
	"github.com/nikhilbhutani/studywise/pkg/tokenizer"
)

type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
	tasks []embedding.TaskType
	err   error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string, task embedding.TaskType) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.tasks = append(f.tasks, task)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1, 0}
	}
	return out, nil
}

type countingExtractor struct {
	document.TextExtractor
	calls int
}

func (c *countingExtractor) Extract(ctx context.Context, data []byte, fileType string) (string, error) {
	c.calls++
	return c.TextExtractor.Extract(ctx, data, fileType)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingNotifier) Notify(_ context.Context, _ uuid.UUID, ev notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

type busyLocker struct{}

func (busyLocker) Acquire(context.Context, string, time.Duration) (func(context.Context) error, error) {
	return nil, cache.ErrLockHeld
}

type env struct {
	orch      *Orchestrator
	repo      *doctest.MemoryRepository
	store     *vectorstore.MemoryStore
	files     storage.Storage
	embedder  *fakeEmbedder
	extractor *countingExtractor
	notifier  *recordingNotifier
}

func newEnv(t *testing.T, maxChunks int) *env {
	t.Helper()
	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	ch, err := chunker.New(tokenizer.NewWords(), chunker.DefaultOptions())
	require.NoError(t, err)

	e := &env{
		repo:      doctest.NewMemoryRepository(),
		store:     vectorstore.NewMemoryStore(),
		files:     files,
		embedder:  &fakeEmbedder{},
		extractor: &countingExtractor{TextExtractor: document.NewTextExtractor(nil, logger.Nop())},
		notifier:  &recordingNotifier{},
	}
	e.orch, err = New(Dependencies{
		Repo:      e.repo,
		Storage:   files,
		Bucket:    "documents",
		Extractor: e.extractor,
		Chunker:   ch,
		Embedder:  e.embedder,
		Store:     e.store,
		Notifier:  e.notifier,
		MaxChunks: maxChunks,
	}, logger.Nop())
	require.NoError(t, err)
	return e
}

func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(parts, " ")
}

func (e *env) seed(t *testing.T, content string) models.Document {
	t.Helper()
	chapter := uuid.New()
	doc := models.Document{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		ChapterID: &chapter,
		FileName:  "notes.txt",
		FileType:  "txt",
		Status:    models.DocStatusPending,
	}
	doc.FilePath = doc.UserID.String() + "/" + doc.ID.String() + "/notes.txt"
	require.NoError(t, e.files.Upload(context.Background(), "documents", doc.FilePath, strings.NewReader(content), "text/plain"))
	e.repo.Set(doc)
	return doc
}

func TestIngest_PendingToCompleted(t *testing.T) {
	e := newEnv(t, 0)
	doc := e.seed(t, words(1000))

	res, err := e.orch.Ingest(context.Background(), doc.ID, Attempt{MaxRetry: 3})
	require.NoError(t, err)

	// 384 token windows advancing 334 tokens each.
	assert.Equal(t, (1000+333)/334, res.Chunks)
	assert.Equal(t, models.DocStatusCompleted, res.Document.Status)
	assert.Empty(t, res.Document.ErrorMessage)
	assert.Equal(t,
		[]models.DocumentStatus{models.DocStatusProcessing, models.DocStatusCompleted},
		e.repo.History[doc.ID])
	assert.Equal(t, []embedding.TaskType{embedding.RetrievalDocument}, e.embedder.tasks)

	points := e.store.Points()
	require.Len(t, points, res.Chunks)
	for _, p := range points {
		assert.Equal(t, doc.ID.String(), p.Payload[vectorstore.PayloadDocumentID])
		assert.Equal(t, doc.UserID.String(), p.Payload[vectorstore.PayloadUserID])
		assert.Equal(t, doc.ChapterID.String(), p.Payload[vectorstore.PayloadChapterID])
		assert.Equal(t, "txt", p.Payload[vectorstore.PayloadFileType])
		assert.NotEmpty(t, p.Payload[vectorstore.PayloadText])
	}

	require.Len(t, e.notifier.events, 1)
	ev := e.notifier.events[0]
	assert.Equal(t, notify.EventDocumentCompleted, ev.Type)
	assert.Equal(t, res.Chunks, ev.Chunks)
	assert.True(t, ev.Final)
}

func TestIngest_ReIngestionIsIdempotent(t *testing.T) {
	e := newEnv(t, 0)
	doc := e.seed(t, words(700))

	first, err := e.orch.Ingest(context.Background(), doc.ID, Attempt{MaxRetry: 3})
	require.NoError(t, err)
	firstIDs := pointIDs(e.store.Points())

	second, err := e.orch.Ingest(context.Background(), doc.ID, Attempt{MaxRetry: 3})
	require.NoError(t, err)

	assert.Equal(t, first.Chunks, second.Chunks)
	assert.Equal(t, firstIDs, pointIDs(e.store.Points()))
	assert.Equal(t, 1, e.extractor.calls, "second run reuses the cached text")
}

func TestIngest_ShorterTextPrunesTail(t *testing.T) {
	e := newEnv(t, 0)
	doc := e.seed(t, words(1000))

	_, err := e.orch.Ingest(context.Background(), doc.ID, Attempt{MaxRetry: 3})
	require.NoError(t, err)
	require.Len(t, e.store.Points(), 3)

	stored, err := e.repo.Get(context.Background(), doc.ID)
	require.NoError(t, err)
	short := words(10)
	stored.ExtractedText = &short
	e.repo.Set(*stored)

	res, err := e.orch.Ingest(context.Background(), doc.ID, Attempt{MaxRetry: 3})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Chunks)
	assert.Len(t, e.store.Points(), 1)
}

func TestIngest_CapsChunks(t *testing.T) {
	e := newEnv(t, 2)
	doc := e.seed(t, words(2000))

	res, err := e.orch.Ingest(context.Background(), doc.ID, Attempt{MaxRetry: 3})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Chunks)
	assert.Equal(t, 4, res.Truncated)
	assert.Equal(t, models.DocStatusCompleted, res.Document.Status)
}

func TestIngest_BlankTextFails(t *testing.T) {
	e := newEnv(t, 0)
	doc := e.seed(t, "   \n  ")

	_, err := e.orch.Ingest(context.Background(), doc.ID, Attempt{Retry: 0, MaxRetry: 3})
	require.ErrorIs(t, err, document.ErrNoTextExtracted)

	stored, err := e.repo.Get(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusFailed, stored.Status)
	assert.Contains(t, stored.ErrorMessage, "no text extracted")

	require.Len(t, e.notifier.events, 1)
	assert.Equal(t, notify.EventDocumentFailed, e.notifier.events[0].Type)
	assert.False(t, e.notifier.events[0].Final, "the queue will retry")
}

func TestIngest_EmbedFailureOnLastAttemptIsFinal(t *testing.T) {
	e := newEnv(t, 0)
	e.embedder.err = errors.New("quota exceeded")
	doc := e.seed(t, words(50))

	_, err := e.orch.Ingest(context.Background(), doc.ID, Attempt{Retry: 3, MaxRetry: 3})
	require.Error(t, err)

	stored, err := e.repo.Get(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusFailed, stored.Status)
	assert.Contains(t, stored.ErrorMessage, "quota exceeded")
	require.Len(t, e.notifier.events, 1)
	assert.True(t, e.notifier.events[0].Final)
	assert.Empty(t, e.store.Points())

	// A later re-trigger moves FAILED back through PROCESSING.
	e.embedder.err = nil
	res, err := e.orch.Ingest(context.Background(), doc.ID, Attempt{MaxRetry: 3})
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusCompleted, res.Document.Status)
}

func TestIngest_LockHeld(t *testing.T) {
	e := newEnv(t, 0)
	e.orch.locker = busyLocker{}
	doc := e.seed(t, words(10))

	_, err := e.orch.Ingest(context.Background(), doc.ID, Attempt{MaxRetry: 3})
	assert.ErrorIs(t, err, ErrInProgress)
	assert.Empty(t, e.repo.History[doc.ID], "status untouched")
}

func TestIngest_RedisLockHeldUntilExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	e := newEnv(t, 0)
	locker := cache.NewLocker(rdb, "studywise:lock:")
	e.orch.locker = locker
	doc := e.seed(t, words(10))
	ctx := context.Background()

	// Another worker holds the lock and then dies without releasing it.
	_, err := locker.Acquire(ctx, lockNamePrefix+doc.ID.String(), e.orch.lockTTL)
	require.NoError(t, err)

	_, err = e.orch.Ingest(ctx, doc.ID, Attempt{MaxRetry: 3})
	require.ErrorIs(t, err, ErrInProgress)
	got, err := e.repo.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusPending, got.Status)

	mr.FastForward(e.orch.lockTTL)
	res, err := e.orch.Ingest(ctx, doc.ID, Attempt{MaxRetry: 3})
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusCompleted, res.Document.Status)

	// The lock is released after a finished run.
	release, err := locker.Acquire(ctx, lockNamePrefix+doc.ID.String(), time.Minute)
	require.NoError(t, err)
	require.NoError(t, release(ctx))
}

func TestIngest_UnknownDocument(t *testing.T) {
	e := newEnv(t, 0)
	_, err := e.orch.Ingest(context.Background(), uuid.New(), Attempt{MaxRetry: 3})
	require.ErrorIs(t, err, document.ErrNotFound)
	assert.True(t, Permanent(err))
}

func TestNew_RequiresChunker(t *testing.T) {
	_, err := New(Dependencies{
		Repo:      doctest.NewMemoryRepository(),
		Storage:   &storage.LocalStorage{},
		Extractor: document.NewTextExtractor(nil, logger.Nop()),
		Embedder:  &fakeEmbedder{},
		Store:     vectorstore.NewMemoryStore(),
	}, logger.Nop())
	assert.ErrorIs(t, err, chunker.ErrInvalidConfig)
	assert.True(t, Permanent(err))
}

func pointIDs(points []vectorstore.Point) []string {
	ids := make([]string, len(points))
	for i, p := range points {
		ids[i] = p.ID
	}
	return ids
}

func TestSummarize_KeepsValidUTF8(t *testing.T) {
	long := summarize(errors.New("embed: status 400: " + strings.Repeat("é", 400)))
	assert.True(t, utf8.ValidString(long))
	assert.LessOrEqual(t, len(long), maxErrorMessage)
	assert.True(t, strings.HasSuffix(long, "é..."))

	short := summarize(errors.New("bad byte \xff here"))
	assert.Equal(t, "bad byte ? here", short)
}

func TestIngest_NonASCIIFailureIsRecorded(t *testing.T) {
	e := newEnv(t, 0)
	e.embedder.err = errors.New("upstream: " + strings.Repeat("Ошибка ", 120))
	doc := e.seed(t, words(10))

	_, err := e.orch.Ingest(context.Background(), doc.ID, Attempt{Retry: 3, MaxRetry: 3})
	require.Error(t, err)

	got, err := e.repo.Get(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusFailed, got.Status)
	assert.True(t, utf8.ValidString(got.ErrorMessage))
	assert.LessOrEqual(t, len(got.ErrorMessage), maxErrorMessage)
}
