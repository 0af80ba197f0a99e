// Package app builds the clients shared by the binaries from configuration.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/studywise/internal/cache"
	"github.com/nikhilbhutani/studywise/internal/config"
	"github.com/nikhilbhutani/studywise/internal/embedding"
	"github.com/nikhilbhutani/studywise/internal/llm"
	"github.com/nikhilbhutani/studywise/internal/logger"
	"github.com/nikhilbhutani/studywise/internal/notify"
	"github.com/nikhilbhutani/studywise/internal/vectorstore"
	"github.com/nikhilbhutani/studywise/pkg/tokenizer"
)

const queryEmbeddingTTL = 24 * time.Hour

func NewRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// NewVectorStore returns the configured backend. db may be nil unless the
// backend is pgvector.
func NewVectorStore(cfg config.VectorStoreConfig, db *pgxpool.Pool, log *logger.Logger) (vectorstore.Store, error) {
	switch cfg.Backend {
	case "qdrant":
		return vectorstore.NewQdrantStore(log, vectorstore.QdrantConfig{
			URL:        cfg.QdrantURL,
			APIKey:     cfg.QdrantKey,
			Collection: cfg.Collection,
		})
	case "pgvector":
		if db == nil {
			return nil, fmt.Errorf("pgvector backend needs a database")
		}
		return vectorstore.NewPgVectorStore(db, cfg.Collection, log), nil
	case "memory":
		return vectorstore.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown vector store backend %q", cfg.Backend)
	}
}

func NewTokenizer(cfg config.IngestionConfig) (tokenizer.Tokenizer, error) {
	if cfg.Tokenizer == "words" {
		return tokenizer.NewWords(), nil
	}
	return tokenizer.NewTiktoken(cfg.Tokenizer)
}

// NewEmbedder wires the embedding service. rdb enables the query vector
// cache and may be nil.
func NewEmbedder(gw llm.Gateway, cfg *config.Config, rdb redis.UniversalClient, log *logger.Logger) *embedding.Service {
	opts := []embedding.Option{embedding.WithBatchSize(cfg.Embedding.BatchSize)}
	if cfg.VectorStore.Dimension > 0 {
		opts = append(opts, embedding.WithDimension(cfg.VectorStore.Dimension))
	}
	if rdb != nil {
		opts = append(opts, embedding.WithQueryCache(cache.NewCache(rdb, "studywise:embed:"), queryEmbeddingTTL))
	}
	return embedding.NewService(gw, cfg.Embedding.Provider, cfg.Embedding.Model, log, opts...)
}

// NewNotifier fans out to every enabled sink. The returned close func
// drains pending webhook deliveries.
func NewNotifier(cfg config.NotifyConfig, rdb redis.UniversalClient, log *logger.Logger) (notify.Notifier, func()) {
	var sinks notify.Multi
	closeFn := func() {}
	if cfg.RedisEnabled && rdb != nil {
		sinks = append(sinks, notify.NewRedisNotifier(rdb))
	}
	if cfg.WebhookURL != "" {
		wh := notify.NewWebhookNotifier(cfg.WebhookURL, cfg.WebhookSecret, log)
		sinks = append(sinks, wh)
		closeFn = wh.Close
	}
	if len(sinks) == 0 {
		return notify.Nop{}, closeFn
	}
	return sinks, closeFn
}
