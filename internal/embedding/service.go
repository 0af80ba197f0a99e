package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nikhilbhutani/studywise/internal/cache"
	"github.com/nikhilbhutani/studywise/internal/llm"
	"github.com/nikhilbhutani/studywise/internal/logger"
	"github.com/nikhilbhutani/studywise/internal/metrics"
)

type TaskType = llm.TaskType

const (
	RetrievalQuery    = llm.TaskRetrievalQuery
	RetrievalDocument = llm.TaskRetrievalDocument
)

const DefaultBatchSize = 100

var (
	ErrCountMismatch    = errors.New("embedding count does not match input count")
	ErrEmptyVector      = errors.New("embedding provider returned an empty vector")
	ErrDimensionChanged = errors.New("embedding dimension changed")
)

// Embedder turns texts into vectors, one per input, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string, task TaskType) ([][]float32, error)
}

type Service struct {
	gateway   llm.Gateway
	log       *logger.Logger
	provider  string
	model     string
	batchSize int
	dim       atomic.Int64

	cache    *cache.Cache
	cacheTTL time.Duration
}

type Option func(*Service)

func WithBatchSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithDimension pins the expected vector size instead of learning it from
// the first response.
func WithDimension(d int) Option {
	return func(s *Service) { s.dim.Store(int64(d)) }
}

// WithQueryCache caches RETRIEVAL_QUERY vectors in Redis.
func WithQueryCache(c *cache.Cache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = c
		s.cacheTTL = ttl
	}
}

func NewService(gw llm.Gateway, provider, model string, log *logger.Logger, opts ...Option) *Service {
	s := &Service{
		gateway:   gw,
		log:       log.With("component", "embedding"),
		provider:  provider,
		model:     model,
		batchSize: DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dimension is the vector size seen so far, or 0 before the first call.
func (s *Service) Dimension() int {
	return int(s.dim.Load())
}

// Embed sends texts in batches and returns one vector per text in input order.
func (s *Service) Embed(ctx context.Context, texts []string, task TaskType) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	pending := make([]int, 0, len(texts))
	if task == RetrievalQuery && s.cache != nil {
		for i, text := range texts {
			var vec []float32
			err := s.cache.Get(ctx, s.cacheKey(task, text), &vec)
			if err == nil && len(vec) > 0 {
				out[i] = vec
				continue
			}
			if err != nil && !errors.Is(err, cache.ErrMiss) {
				s.log.Warn("read cached query embedding", "error", err)
			}
			pending = append(pending, i)
		}
	} else {
		for i := range texts {
			pending = append(pending, i)
		}
	}

	for start := 0; start < len(pending); start += s.batchSize {
		idx := pending[start:min(start+s.batchSize, len(pending))]
		batch := make([]string, len(idx))
		for j, i := range idx {
			batch[j] = texts[i]
		}

		vecs, err := s.embedBatch(ctx, batch, task)
		if err != nil {
			return nil, fmt.Errorf("embed batch %d: %w", start/s.batchSize, err)
		}
		for j, i := range idx {
			out[i] = vecs[j]
			if task == RetrievalQuery && s.cache != nil {
				if err := s.cache.Set(ctx, s.cacheKey(task, texts[i]), vecs[j], s.cacheTTL); err != nil {
					s.log.Warn("cache query embedding", "error", err)
				}
			}
		}
	}
	return out, nil
}

func (s *Service) embedBatch(ctx context.Context, batch []string, task TaskType) ([][]float32, error) {
	resp, err := s.gateway.Embed(ctx, llm.EmbeddingRequest{
		Provider: s.provider,
		Model:    s.model,
		Input:    batch,
		TaskType: task,
	})
	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(s.provider, string(task), "error").Inc()
		return nil, err
	}
	if len(resp.Embeddings) != len(batch) {
		metrics.EmbeddingRequestsTotal.WithLabelValues(s.provider, string(task), "error").Inc()
		return nil, fmt.Errorf("%w: sent %d, got %d", ErrCountMismatch, len(batch), len(resp.Embeddings))
	}
	for _, vec := range resp.Embeddings {
		if err := s.checkDimension(len(vec)); err != nil {
			metrics.EmbeddingRequestsTotal.WithLabelValues(s.provider, string(task), "error").Inc()
			return nil, err
		}
	}
	metrics.EmbeddingRequestsTotal.WithLabelValues(s.provider, string(task), "ok").Inc()
	return resp.Embeddings, nil
}

func (s *Service) checkDimension(d int) error {
	if d == 0 {
		return ErrEmptyVector
	}
	if s.dim.CompareAndSwap(0, int64(d)) {
		s.log.Info("embedding dimension detected", "dimension", d, "model", s.model)
		return nil
	}
	if want := s.dim.Load(); want != int64(d) {
		return fmt.Errorf("%w: expected %d, got %d", ErrDimensionChanged, want, d)
	}
	return nil
}

func (s *Service) cacheKey(task TaskType, text string) string {
	sum := sha256.Sum256([]byte(s.model + "\x00" + string(task) + "\x00" + text))
	return "studywise:emb:" + hex.EncodeToString(sum[:])
}
