package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "studywise"

// Ingestion metrics.
var (
	IngestionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingestions_total",
			Help:      "Document ingestion attempts by outcome",
		},
		[]string{"status"}, // completed / failed / skipped
	)

	IngestionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingestion_duration_seconds",
			Help:      "Wall time of one ingestion attempt",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	ChunksIndexedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_indexed_total",
			Help:      "Chunks embedded and upserted into the vector store",
		},
	)

	ChunksTruncatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_truncated_total",
			Help:      "Chunks dropped by the per-document chunk cap",
		},
	)

	TasksProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_processed_total",
			Help:      "Background tasks handled by the worker",
		},
		[]string{"type", "result"}, // ok / retry / dropped
	)

	OCRFallbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ocr_fallback_total",
			Help:      "PDFs routed to OCR because the text layer was empty",
		},
		[]string{"result"}, // text / empty / error
	)
)

// Query pipeline metrics.
var (
	RAGStageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rag_stage_duration_seconds",
			Help:      "Duration of each query pipeline stage",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"stage"},
	)

	RAGIntentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rag_intents_total",
			Help:      "Routed intents of chat turns",
		},
		[]string{"intent"},
	)

	SelfHealTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "self_heal_total",
			Help:      "Self-healing re-ingestion triggers by reason",
		},
		[]string{"reason"}, // zero_count / missing_collection / not_found
	)
)

// External service metrics.
var (
	LLMRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Language model calls",
		},
		[]string{"provider", "model", "status"},
	)

	LLMTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_total",
			Help:      "Tokens consumed by language model calls",
		},
		[]string{"provider", "model", "type"}, // input / output
	)

	LLMCostUSDTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_cost_usd_total",
			Help:      "Estimated spend on language model and embedding calls",
		},
		[]string{"provider", "model"},
	)

	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_requests_total",
			Help:      "Embedding batch calls",
		},
		[]string{"provider", "task_type", "status"},
	)
)

var registerOnce sync.Once

// Register adds every collector to reg. Call once from main.
func Register(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		reg.MustRegister(
			httpRequestDuration,
			httpRequestsTotal,
			IngestionsTotal,
			IngestionDuration,
			ChunksIndexedTotal,
			ChunksTruncatedTotal,
			TasksProcessedTotal,
			OCRFallbackTotal,
			RAGStageDuration,
			RAGIntentsTotal,
			SelfHealTotal,
			LLMRequestsTotal,
			LLMTokensTotal,
			LLMCostUSDTotal,
			EmbeddingRequestsTotal,
		)
	})
}

// ObserveStage records the time since start under stage and returns it.
func ObserveStage(stage string, start time.Time) time.Duration {
	d := time.Since(start)
	RAGStageDuration.WithLabelValues(stage).Observe(d.Seconds())
	return d
}
