package queue

import (
	"context"
	"errors"
	"time"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/studywise/internal/logger"
	"github.com/nikhilbhutani/studywise/internal/metrics"
)

type HandlersRegistry struct {
	mux *asynq.ServeMux
}

func NewHandlersRegistry() *HandlersRegistry {
	return &HandlersRegistry{
		mux: asynq.NewServeMux(),
	}
}

func (r *HandlersRegistry) Register(taskType string, handler asynq.Handler) {
	r.mux.Handle(taskType, handler)
}

func (r *HandlersRegistry) Use(mw ...asynq.MiddlewareFunc) {
	r.mux.Use(mw...)
}

func (r *HandlersRegistry) Mux() *asynq.ServeMux {
	return r.mux
}

// LogTasks puts a task-scoped logger in the context, logs the outcome and
// counts it by task type.
func LogTasks(log *logger.Logger) asynq.MiddlewareFunc {
	return func(next asynq.Handler) asynq.Handler {
		return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
			start := time.Now()
			taskID, _ := asynq.GetTaskID(ctx)
			retry, _ := asynq.GetRetryCount(ctx)
			l := log.With("task_type", t.Type(), "task_id", taskID, "retry", retry)

			err := next.ProcessTask(logger.ContextWithLogger(ctx, l), t)

			result := "ok"
			switch {
			case err == nil:
				l.Debug("task done", "duration", time.Since(start))
			case errors.Is(err, asynq.SkipRetry):
				result = "dropped"
				l.Error("task dropped", "duration", time.Since(start), "error", err)
			default:
				result = "retry"
				l.Warn("task failed", "duration", time.Since(start), "error", err)
			}
			metrics.TasksProcessedTotal.WithLabelValues(t.Type(), result).Inc()
			return err
		})
	}
}
