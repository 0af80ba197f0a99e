package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nikhilbhutani/studywise/internal/api"
	"github.com/nikhilbhutani/studywise/internal/api/handlers"
	"github.com/nikhilbhutani/studywise/internal/app"
	"github.com/nikhilbhutani/studywise/internal/chat"
	"github.com/nikhilbhutani/studywise/internal/config"
	"github.com/nikhilbhutani/studywise/internal/database"
	"github.com/nikhilbhutani/studywise/internal/document"
	"github.com/nikhilbhutani/studywise/internal/guardrails"
	"github.com/nikhilbhutani/studywise/internal/llm"
	"github.com/nikhilbhutani/studywise/internal/logger"
	"github.com/nikhilbhutani/studywise/internal/metrics"
	"github.com/nikhilbhutani/studywise/internal/prompt"
	"github.com/nikhilbhutani/studywise/internal/queue"
	"github.com/nikhilbhutani/studywise/internal/rag"
	"github.com/nikhilbhutani/studywise/internal/storage"
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

	db, err := database.NewPool(ctx, cfg.Database, "studywise-api")
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

	prompts, err := prompt.Load(cfg.PromptsPath)
	if err != nil {
		return err
	}
	tok, err := app.NewTokenizer(cfg.Ingestion)
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

	queueClient := queue.NewClient(cfg.Redis, queue.OptionsFromConfig(cfg.Ingestion))
	defer queueClient.Close()

	gw := llm.NewGateway(cfg.LLM, log)
	completer := llm.NewCompleter(gw, cfg.LLM.DefaultProvider, cfg.LLM.ChatModel)
	embedder := app.NewEmbedder(gw, cfg, rdb, log)

	docSvc := document.NewService(document.NewRepository(db), files, cfg.Storage.Bucket, queueClient, store, log).
		WithStaleAfter(cfg.Ingestion.TaskTimeout)
	pipeline := rag.NewPipeline(completer, embedder, store, docSvc, prompts, cfg.RAG, log)
	chatSvc := chat.NewService(chat.NewRepository(db), pipeline, tok, prompts, cfg.RAG.HistoryTurns, log).
		WithGuard(guardrails.Default(cfg.RAG.MaxQuestionChars))

	router := api.NewRouter(api.Dependencies{
		Config:    cfg,
		Log:       log,
		Documents: docSvc,
		Chat:      chatSvc,
		Checks: map[string]handlers.CheckFunc{
			"database": db.Ping,
			"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		},
	})
	defer router.Close()

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router.Setup(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting API server", "addr", cfg.Addr(), "vector_store", cfg.VectorStore.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced shutdown", "error", err)
	}
	log.Info("server stopped")
	return nil
}
