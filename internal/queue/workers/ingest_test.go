package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/studywise/internal/document"
	"github.com/nikhilbhutani/studywise/internal/ingestion"
	"github.com/nikhilbhutani/studywise/internal/logger"
	"github.com/nikhilbhutani/studywise/internal/queue"
	"github.com/nikhilbhutani/studywise/pkg/chunker"
)

type fakeIngester struct {
	got []uuid.UUID
	err error
}

func (f *fakeIngester) Ingest(_ context.Context, id uuid.UUID, _ ingestion.Attempt) (*ingestion.Result, error) {
	f.got = append(f.got, id)
	return &ingestion.Result{}, f.err
}

func task(t *testing.T, id string) *asynq.Task {
	t.Helper()
	data, err := json.Marshal(queue.DocumentIngestPayload{DocumentID: id})
	require.NoError(t, err)
	return asynq.NewTask(queue.TypeDocumentIngest, data)
}

func TestIngestWorker(t *testing.T) {
	id := uuid.New()
	cases := []struct {
		name      string
		err       error
		wantErr   bool
		skipRetry bool
	}{
		{name: "success"},
		{name: "lock held is requeued", err: ingestion.ErrInProgress, wantErr: true},
		{name: "transient is retried", err: errors.New("qdrant timeout"), wantErr: true},
		{name: "config error skips retry", err: chunker.ErrInvalidConfig, wantErr: true, skipRetry: true},
		{name: "deleted document skips retry", err: document.ErrNotFound, wantErr: true, skipRetry: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ing := &fakeIngester{err: tc.err}
			err := NewIngestWorker(ing, logger.Nop()).ProcessTask(context.Background(), task(t, id.String()))

			assert.Equal(t, []uuid.UUID{id}, ing.got)
			if !tc.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.err)
			assert.Equal(t, tc.skipRetry, errors.Is(err, asynq.SkipRetry))
		})
	}
}

func TestIngestWorker_BadPayload(t *testing.T) {
	ing := &fakeIngester{}
	err := NewIngestWorker(ing, logger.Nop()).ProcessTask(context.Background(), task(t, "not-a-uuid"))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Empty(t, ing.got)
}

func TestIsFailure(t *testing.T) {
	assert.False(t, IsFailure(fmt.Errorf("ingest x: %w", ingestion.ErrInProgress)))
	assert.True(t, IsFailure(errors.New("qdrant timeout")))
	assert.True(t, IsFailure(fmt.Errorf("wrap: %w", chunker.ErrInvalidConfig)))
}
