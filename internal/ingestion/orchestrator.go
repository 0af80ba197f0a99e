// Package ingestion drives a document from PENDING to COMPLETED or FAILED:
// extract, chunk, embed, index.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/studywise/internal/cache"
	"github.com/nikhilbhutani/studywise/internal/document"
	"github.com/nikhilbhutani/studywise/internal/embedding"
	"github.com/nikhilbhutani/studywise/internal/llm"
	"github.com/nikhilbhutani/studywise/internal/logger"
	"github.com/nikhilbhutani/studywise/internal/metrics"
	"github.com/nikhilbhutani/studywise/internal/models"
	"github.com/nikhilbhutani/studywise/internal/notify"
	"github.com/nikhilbhutani/studywise/internal/storage"
	"github.com/nikhilbhutani/studywise/internal/vectorstore"
	"github.com/nikhilbhutani/studywise/pkg/chunker"
	"github.com/nikhilbhutani/studywise/pkg/textextract"
)

// MaxChunks is the per-document ceiling. Chunks past it are dropped, not
// indexed, and the document still completes.
const MaxChunks = 1000

const (
	defaultLockTTL  = 15 * time.Minute
	maxErrorMessage = 500
	notifyTimeout   = 5 * time.Second
	lockNamePrefix  = "ingest:"
	statusCompleted = "completed"
	statusFailed    = "failed"
	statusSkipped   = "skipped"
)

// ErrInProgress means another worker holds the document's ingestion lock.
var ErrInProgress = errors.New("ingestion already in progress")

// Locker is satisfied by *cache.Locker.
type Locker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, error)
}

type Dependencies struct {
	Repo      document.Repository
	Storage   storage.Storage
	Bucket    string
	Extractor document.TextExtractor
	Chunker   *chunker.Chunker
	Embedder  embedding.Embedder
	Store     vectorstore.Store
	Notifier  notify.Notifier
	// Locker is optional. Without it concurrent deliveries are not excluded.
	Locker    Locker
	MaxChunks int
	LockTTL   time.Duration
}

type Orchestrator struct {
	log       *logger.Logger
	repo      document.Repository
	storage   storage.Storage
	bucket    string
	extractor document.TextExtractor
	chunker   *chunker.Chunker
	embedder  embedding.Embedder
	store     vectorstore.Store
	notifier  notify.Notifier
	locker    Locker
	maxChunks int
	lockTTL   time.Duration
}

func New(deps Dependencies, log *logger.Logger) (*Orchestrator, error) {
	switch {
	case deps.Repo == nil:
		return nil, errors.New("ingestion: repository is required")
	case deps.Storage == nil:
		return nil, errors.New("ingestion: storage is required")
	case deps.Extractor == nil:
		return nil, errors.New("ingestion: extractor is required")
	case deps.Chunker == nil:
		return nil, fmt.Errorf("ingestion: %w: chunker is required", chunker.ErrInvalidConfig)
	case deps.Embedder == nil:
		return nil, errors.New("ingestion: embedder is required")
	case deps.Store == nil:
		return nil, errors.New("ingestion: vector store is required")
	}

	o := &Orchestrator{
		log:       log.With("component", "ingestion"),
		repo:      deps.Repo,
		storage:   deps.Storage,
		bucket:    deps.Bucket,
		extractor: deps.Extractor,
		chunker:   deps.Chunker,
		embedder:  deps.Embedder,
		store:     deps.Store,
		notifier:  deps.Notifier,
		locker:    deps.Locker,
		maxChunks: deps.MaxChunks,
		lockTTL:   deps.LockTTL,
	}
	if o.notifier == nil {
		o.notifier = notify.Nop{}
	}
	if o.maxChunks <= 0 || o.maxChunks > MaxChunks {
		o.maxChunks = MaxChunks
	}
	if o.lockTTL <= 0 {
		o.lockTTL = defaultLockTTL
	}
	return o, nil
}

// Attempt describes the task delivery running the ingestion. Retry counts
// previous failed deliveries.
type Attempt struct {
	Retry    int
	MaxRetry int
}

// Last reports whether the queue will not deliver the task again.
func (a Attempt) Last() bool { return a.Retry >= a.MaxRetry }

type Result struct {
	Document  *models.Document
	Chunks    int
	Truncated int
}

// Ingest runs one attempt. On failure the document is left FAILED with the
// error summary, and the error is returned so the queue can retry.
func (o *Orchestrator) Ingest(ctx context.Context, documentID uuid.UUID, attempt Attempt) (*Result, error) {
	log := o.log.With("document_id", documentID, "retry", attempt.Retry)

	if o.locker != nil {
		release, err := o.locker.Acquire(ctx, lockNamePrefix+documentID.String(), o.lockTTL)
		if errors.Is(err, cache.ErrLockHeld) {
			metrics.IngestionsTotal.WithLabelValues(statusSkipped).Inc()
			return nil, ErrInProgress
		}
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				log.Warn("release ingestion lock", "error", err)
			}
		}()
	}

	start := time.Now()
	doc, err := o.repo.Transition(ctx, documentID, models.DocStatusProcessing, "")
	if err != nil {
		return nil, fmt.Errorf("mark processing: %w", err)
	}
	log.Info("ingestion started", "file_type", doc.FileType, "cached_text", doc.HasExtractedText())

	res, err := o.run(ctx, doc)
	metrics.IngestionDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		o.fail(ctx, doc, err, attempt)
		return nil, err
	}

	done, err := o.repo.Transition(ctx, doc.ID, models.DocStatusCompleted, "")
	if err != nil {
		o.fail(ctx, doc, err, attempt)
		return nil, fmt.Errorf("mark completed: %w", err)
	}
	res.Document = done
	metrics.IngestionsTotal.WithLabelValues(statusCompleted).Inc()
	log.Info("ingestion completed",
		"chunks", res.Chunks,
		"truncated", res.Truncated,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	o.notify(ctx, notify.NewEvent(done, res.Chunks, attempt.Retry+1, attempt.MaxRetry+1, true))
	return res, nil
}

func (o *Orchestrator) run(ctx context.Context, doc *models.Document) (*Result, error) {
	text, err := o.text(ctx, doc)
	if err != nil {
		return nil, err
	}

	chunks, err := o.chunker.Chunk(text)
	if err != nil {
		return nil, fmt.Errorf("chunk text: %w", err)
	}
	if len(chunks) == 0 {
		return nil, document.ErrNoTextExtracted
	}

	res := &Result{}
	if len(chunks) > o.maxChunks {
		res.Truncated = len(chunks) - o.maxChunks
		chunks = chunks[:o.maxChunks]
		metrics.ChunksTruncatedTotal.Add(float64(res.Truncated))
		o.log.Warn("chunk cap reached, dropping tail",
			"document_id", doc.ID,
			"kept", len(chunks),
			"dropped", res.Truncated,
		)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := o.embedder.Embed(ctx, texts, embedding.RetrievalDocument)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embed chunks: %w: sent %d, got %d", embedding.ErrCountMismatch, len(chunks), len(vectors))
	}

	if err := o.store.EnsureCollection(ctx, len(vectors[0])); err != nil {
		return nil, fmt.Errorf("ensure collection: %w", err)
	}

	points := make([]vectorstore.Point, len(chunks))
	for i, c := range chunks {
		points[i] = vectorstore.Point{
			ID:      vectorstore.PointID(doc.ID, c.Index),
			Vector:  vectors[i],
			Payload: payload(doc, c),
		}
	}
	if err := o.store.Upsert(ctx, points); err != nil {
		return nil, fmt.Errorf("upsert chunks: %w", err)
	}
	// A shorter re-ingestion leaves stale tail points behind.
	if err := o.store.PruneDocument(ctx, doc.ID, len(points)); err != nil {
		return nil, fmt.Errorf("prune stale chunks: %w", err)
	}

	metrics.ChunksIndexedTotal.Add(float64(len(points)))
	res.Chunks = len(points)
	return res, nil
}

// text returns the cached extraction or extracts and caches it.
func (o *Orchestrator) text(ctx context.Context, doc *models.Document) (string, error) {
	if doc.HasExtractedText() {
		return *doc.ExtractedText, nil
	}

	data, err := storage.ReadAll(ctx, o.storage, o.bucket, doc.FilePath)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", doc.FilePath, err)
	}
	text, err := o.extractor.Extract(ctx, data, doc.FileType)
	if err != nil {
		return "", fmt.Errorf("extract text: %w", err)
	}
	if err := o.repo.SaveExtractedText(ctx, doc.ID, text); err != nil {
		return "", fmt.Errorf("cache extracted text: %w", err)
	}
	return text, nil
}

func (o *Orchestrator) fail(ctx context.Context, doc *models.Document, cause error, attempt Attempt) {
	ctx = context.WithoutCancel(ctx)
	final := attempt.Last() || Permanent(cause)
	metrics.IngestionsTotal.WithLabelValues(statusFailed).Inc()
	o.log.Error("ingestion failed",
		"document_id", doc.ID,
		"retry", attempt.Retry,
		"final", final,
		"error", cause,
	)

	failed, err := o.repo.Transition(ctx, doc.ID, models.DocStatusFailed, summarize(cause))
	if err != nil {
		o.log.Error("mark failed", "document_id", doc.ID, "error", err)
		return
	}
	o.notify(ctx, notify.NewEvent(failed, 0, attempt.Retry+1, attempt.MaxRetry+1, final))
}

func (o *Orchestrator) notify(ctx context.Context, ev notify.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := o.notifier.Notify(ctx, ev.UserID, ev); err != nil {
		o.log.Warn("notify listeners", "document_id", ev.DocumentID, "event", ev.Type, "error", err)
	}
}

// Permanent reports errors that a retry cannot fix.
func Permanent(err error) bool {
	return errors.Is(err, chunker.ErrInvalidConfig) ||
		errors.Is(err, llm.ErrProviderNotConfigured) ||
		errors.Is(err, textextract.ErrUnsupportedType) ||
		errors.Is(err, document.ErrNotFound)
}

func payload(doc *models.Document, c chunker.Chunk) map[string]any {
	p := map[string]any{
		vectorstore.PayloadText:       c.Text,
		vectorstore.PayloadDocumentID: doc.ID.String(),
		vectorstore.PayloadUserID:     doc.UserID.String(),
		vectorstore.PayloadFileType:   doc.FileType,
		vectorstore.PayloadChunkIndex: c.Index,
	}
	if doc.ChapterID != nil {
		p[vectorstore.PayloadChapterID] = doc.ChapterID.String()
	}
	return p
}

// summarize returns valid UTF-8 of at most maxErrorMessage bytes, since
// Postgres rejects invalid text in error_message.
func summarize(err error) string {
	msg := strings.ToValidUTF8(err.Error(), "?")
	if len(msg) <= maxErrorMessage {
		return msg
	}
	cut := maxErrorMessage - len("...")
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut] + "..."
}
