package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/studywise/internal/ingestion"
	"github.com/nikhilbhutani/studywise/internal/logger"
	"github.com/nikhilbhutani/studywise/internal/queue"
)

type Ingester interface {
	Ingest(ctx context.Context, documentID uuid.UUID, attempt ingestion.Attempt) (*ingestion.Result, error)
}

type IngestWorker struct {
	log      *logger.Logger
	ingester Ingester
}

func NewIngestWorker(ingester Ingester, log *logger.Logger) *IngestWorker {
	return &IngestWorker{log: log.With("component", "ingest_worker"), ingester: ingester}
}

func (w *IngestWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.DocumentIngestPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}
	docID, err := uuid.Parse(payload.DocumentID)
	if err != nil {
		return fmt.Errorf("parse document ID: %v: %w", err, asynq.SkipRetry)
	}

	attempt := ingestion.Attempt{}
	attempt.Retry, _ = asynq.GetRetryCount(ctx)
	attempt.MaxRetry, _ = asynq.GetMaxRetry(ctx)

	_, err = w.ingester.Ingest(ctx, docID, attempt)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ingestion.ErrInProgress):
		// Retried until the holder finishes or its lock expires.
		w.log.Info("document locked by another worker, requeueing", "document_id", docID)
		return fmt.Errorf("ingest %s: %w", docID, err)
	case ingestion.Permanent(err):
		return fmt.Errorf("ingest %s: %w: %w", docID, err, asynq.SkipRetry)
	default:
		return fmt.Errorf("ingest %s: %w", docID, err)
	}
}

// IsFailure reports whether err should consume one of the task's retries.
// Lock contention is rescheduled without counting against MaxRetry.
func IsFailure(err error) bool {
	return !errors.Is(err, ingestion.ErrInProgress)
}
