package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/studywise/internal/config"
)

func TestFixedRetryDelay(t *testing.T) {
	delay := FixedRetryDelay(time.Minute)
	for n := range 5 {
		assert.Equal(t, time.Minute, delay(n, errors.New("boom"), nil))
	}
}

func TestOptionsFromConfig(t *testing.T) {
	opts := OptionsFromConfig(config.IngestionConfig{
		MaxRetry:    3,
		RetryDelay:  time.Minute,
		TaskTimeout: 10 * time.Minute,
	})
	assert.Equal(t, 3, opts.MaxRetry)
	assert.Equal(t, 10*time.Minute, opts.Timeout)
}

func newTestClient(t *testing.T) (*Client, *asynq.Inspector) {
	t.Helper()
	mr := miniredis.RunT(t)
	cfg := config.RedisConfig{Addr: mr.Addr()}
	c := NewClient(cfg, Options{MaxRetry: 3, Timeout: time.Minute})
	t.Cleanup(func() { c.Close() })
	insp := asynq.NewInspector(RedisOpt(cfg))
	t.Cleanup(func() { insp.Close() })
	return c, insp
}

func TestEnqueueIngestion_DuplicateWhileQueued(t *testing.T) {
	c, insp := newTestClient(t)
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, c.EnqueueIngestion(ctx, id))
	require.NoError(t, c.EnqueueIngestion(ctx, id))

	pending, err := insp.ListPendingTasks(QueueCritical)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, id.String(), pending[0].ID)
	assert.Equal(t, 3, pending[0].MaxRetry)

	var payload DocumentIngestPayload
	require.NoError(t, json.Unmarshal(pending[0].Payload, &payload))
	assert.Equal(t, id.String(), payload.DocumentID)
}

func TestEnqueueIngestion_RequeuesAfterPermanentFailure(t *testing.T) {
	c, insp := newTestClient(t)
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, c.EnqueueIngestion(ctx, id))
	// A SkipRetry or exhausted task ends up archived under the same id.
	require.NoError(t, insp.ArchiveTask(QueueCritical, id.String()))

	require.NoError(t, c.EnqueueIngestion(ctx, id))

	info, err := insp.GetTaskInfo(QueueCritical, id.String())
	require.NoError(t, err)
	assert.Equal(t, asynq.TaskStatePending, info.State)

	archived, err := insp.ListArchivedTasks(QueueCritical)
	require.NoError(t, err)
	assert.Empty(t, archived)
}
