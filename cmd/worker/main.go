package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nikhilbhutani/studywise/internal/app"
	"github.com/nikhilbhutani/studywise/internal/cache"
	"github.com/nikhilbhutani/studywise/internal/config"
	"github.com/nikhilbhutani/studywise/internal/database"
	"github.com/nikhilbhutani/studywise/internal/document"
	"github.com/nikhilbhutani/studywise/internal/ingestion"
	"github.com/nikhilbhutani/studywise/internal/llm"
	"github.com/nikhilbhutani/studywise/internal/logger"
	"github.com/nikhilbhutani/studywise/internal/metrics"
	"github.com/nikhilbhutani/studywise/internal/queue"
	"github.com/nikhilbhutani/studywise/internal/queue/workers"
	"github.com/nikhilbhutani/studywise/internal/storage"
	"github.com/nikhilbhutani/studywise/pkg/chunker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := logger.New(cfg.Log.Env, cfg.Log.Level)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx := context.Background()

	db, err := database.NewPool(ctx, cfg.Database, "studywise-worker")
	if err != nil {
		return err
	}
	defer db.Close()
	if err := database.RunMigrations(ctx, db, log); err != nil {
		return err
	}

	rdb, err := app.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer rdb.Close()

	metrics.Register(prometheus.DefaultRegisterer)

	tok, err := app.NewTokenizer(cfg.Ingestion)
	if err != nil {
		return err
	}
	ch, err := chunker.New(tok, chunker.Options{ChunkSize: cfg.Ingestion.ChunkSize, Overlap: cfg.Ingestion.ChunkOverlap})
	if err != nil {
		return err
	}
	files, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	store, err := app.NewVectorStore(cfg.VectorStore, db, log)
	if err != nil {
		return err
	}

	ocr := document.NewOCRService(cfg.Ingestion.OCRLanguage, cfg.Ingestion.OCRResolution, log)
	if !ocr.IsAvailable() {
		log.Warn("pdftoppm or tesseract not found, scanned PDFs will fail")
	}

	gw := llm.NewGateway(cfg.LLM, log)
	notifier, closeNotifier := app.NewNotifier(cfg.Notify, rdb, log)
	defer closeNotifier()

	orch, err := ingestion.New(ingestion.Dependencies{
		Repo:      document.NewRepository(db),
		Storage:   files,
		Bucket:    cfg.Storage.Bucket,
		Extractor: document.NewTextExtractor(ocr, log),
		Chunker:   ch,
		Embedder:  app.NewEmbedder(gw, cfg, nil, log),
		Store:     store,
		Notifier:  notifier,
		Locker:    cache.NewLocker(rdb, "studywise:lock:"),
		MaxChunks: cfg.Ingestion.MaxChunks,
		LockTTL:   cfg.Ingestion.TaskTimeout,
	}, log)
	if err != nil {
		return err
	}

	srv := asynq.NewServer(
		queue.RedisOpt(cfg.Redis),
		asynq.Config{
			Concurrency: cfg.Ingestion.Concurrency,
			Queues: map[string]int{
				queue.QueueCritical: 6,
				queue.QueueDefault:  3,
				queue.QueueLow:      1,
			},
			RetryDelayFunc: queue.FixedRetryDelay(cfg.Ingestion.RetryDelay),
			IsFailure:      workers.IsFailure,
			Logger:         asynqLogger{log.With("component", "asynq")},
		},
	)

	registry := queue.NewHandlersRegistry()
	registry.Use(queue.LogTasks(log))
	ingestWorker := workers.NewIngestWorker(orch, log)
	registry.Register(queue.TypeDocumentIngest, asynq.HandlerFunc(ingestWorker.ProcessTask))

	go serveMetrics(log, os.Getenv("WORKER_METRICS_ADDR"))

	log.Info("starting worker", "concurrency", cfg.Ingestion.Concurrency, "retry_delay", cfg.Ingestion.RetryDelay)
	if err := srv.Run(registry.Mux()); err != nil {
		return fmt.Errorf("worker error: %w", err)
	}
	return nil
}

func serveMetrics(log *logger.Logger, addr string) {
	if addr == "" {
		addr = ":9091"
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("metrics server", "addr", addr, "error", err)
	}
}

// asynqLogger routes asynq's internal logging through zap.
type asynqLogger struct{ log *logger.Logger }

func (l asynqLogger) Debug(args ...any) { l.log.Debug(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...any)  { l.log.Info(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...any)  { l.log.Warn(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...any) { l.log.Error(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...any) {
	l.log.Error(fmt.Sprint(args...))
	os.Exit(1)
}
