package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/studywise/internal/config"
)

type Options struct {
	MaxRetry int
	Timeout  time.Duration
}

func OptionsFromConfig(cfg config.IngestionConfig) Options {
	return Options{
		MaxRetry: cfg.MaxRetry,
		Timeout:  cfg.TaskTimeout,
	}
}

type Client struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	opts      Options
}

func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

func NewClient(cfg config.RedisConfig, opts Options) *Client {
	return &Client{
		client:    asynq.NewClient(RedisOpt(cfg)),
		inspector: asynq.NewInspector(RedisOpt(cfg)),
		opts:      opts,
	}
}

func (c *Client) Close() error {
	return errors.Join(c.client.Close(), c.inspector.Close())
}

// EnqueueIngestion schedules a document for ingestion. The task id is the
// document id, so a document that is already queued, running or retrying
// is left alone. A finished or archived task for the document is removed
// first so an explicit re-ingest always queues new work.
func (c *Client) EnqueueIngestion(ctx context.Context, documentID uuid.UUID) error {
	id := documentID.String()
	opts := []asynq.Option{
		asynq.Queue(QueueCritical),
		asynq.MaxRetry(c.opts.MaxRetry),
		asynq.TaskID(id),
	}
	if c.opts.Timeout > 0 {
		opts = append(opts, asynq.Timeout(c.opts.Timeout))
	}
	payload := DocumentIngestPayload{DocumentID: id}

	err := c.enqueue(ctx, TypeDocumentIngest, payload, opts...)
	if !errors.Is(err, asynq.ErrTaskIDConflict) {
		return err
	}

	info, err := c.inspector.GetTaskInfo(QueueCritical, id)
	switch {
	case errors.Is(err, asynq.ErrTaskNotFound):
	case err != nil:
		return fmt.Errorf("inspect ingestion task %s: %w", id, err)
	case info.State == asynq.TaskStateArchived || info.State == asynq.TaskStateCompleted:
		if err := c.inspector.DeleteTask(QueueCritical, id); err != nil && !errors.Is(err, asynq.ErrTaskNotFound) {
			return fmt.Errorf("delete finished ingestion task %s: %w", id, err)
		}
	default:
		return nil
	}

	err = c.enqueue(ctx, TypeDocumentIngest, payload, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		// Another caller queued it in between.
		return nil
	}
	return err
}

func (c *Client) enqueue(ctx context.Context, taskType string, payload any, opts ...asynq.Option) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(taskType, data)
	_, err = c.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", taskType, err)
	}
	return nil
}

// FixedRetryDelay waits the same delay before every retry.
func FixedRetryDelay(d time.Duration) asynq.RetryDelayFunc {
	return func(int, error, *asynq.Task) time.Duration {
		return d
	}
}
