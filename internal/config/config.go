package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// maxEmbeddingBatch is the most texts one batch embedding request accepts.
const maxEmbeddingBatch = 100

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Auth        AuthConfig
	LLM         LLMConfig
	Embedding   EmbeddingConfig
	VectorStore VectorStoreConfig
	Storage     StorageConfig
	Ingestion   IngestionConfig
	RAG         RAGConfig
	Notify      NotifyConfig
	Log         LogConfig
	PromptsPath string
}

type ServerConfig struct {
	Host                 string
	Port                 int
	SlowRequestThreshold time.Duration
	RateLimitPerSecond   float64
	RateLimitBurst       int
	CORSOrigins          []string
}

type DatabaseConfig struct {
	URL             string
	MaxConns        int
	MinConns        int
	MaxConnIdleTime time.Duration
	ConnectTimeout  time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret string
}

type LLMConfig struct {
	OpenAIKey        string
	OpenAIBaseURL    string
	GroqKey          string
	GroqBaseURL      string
	AnthropicKey     string
	GeminiKey        string
	GeminiBaseURL    string
	OllamaURL        string
	DefaultProvider  string
	ChatModel        string
	FallbackProvider string
	FallbackModel    string
	MaxRetries       int
}

type EmbeddingConfig struct {
	Provider  string
	Model     string
	BatchSize int
}

type VectorStoreConfig struct {
	Backend    string // "qdrant", "pgvector" or "memory"
	QdrantURL  string
	QdrantKey  string
	Collection string
	Dimension  int // 0 means take it from the first embedding response
}

type StorageConfig struct {
	Backend     string // "supabase", "gcs" or "local"
	SupabaseURL string
	SupabaseKey string
	Bucket      string
	LocalRoot   string
}

type IngestionConfig struct {
	ChunkSize     int
	ChunkOverlap  int
	MaxChunks     int
	MaxRetry      int
	RetryDelay    time.Duration
	TaskTimeout   time.Duration
	Concurrency   int
	Tokenizer     string // tiktoken encoding name, or "words"
	OCRLanguage   string
	OCRResolution int
}

type RAGConfig struct {
	HistoryTurns     int
	Expansions       int
	PerQueryLimit    int
	ContextLimit     int
	MaxQuestionChars int
}

type NotifyConfig struct {
	RedisEnabled  bool
	WebhookURL    string
	WebhookSecret string
}

type LogConfig struct {
	Env   string
	Level string
}

func Load() (*Config, error) {
	var errs []string
	intVar := func(key string, fallback int) int {
		v, err := getEnvInt(key, fallback)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid %s: %v", key, err))
		}
		return v
	}
	durVar := func(key string, fallback time.Duration) time.Duration {
		v, err := getEnvDuration(key, fallback)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid %s: %v", key, err))
		}
		return v
	}
	floatVar := func(key string, fallback float64) float64 {
		v, err := getEnvFloat(key, fallback)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid %s: %v", key, err))
		}
		return v
	}
	boolVar := func(key string, fallback bool) bool {
		v, err := getEnvBool(key, fallback)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid %s: %v", key, err))
		}
		return v
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:                 getEnv("SERVER_HOST", "0.0.0.0"),
			Port:                 intVar("SERVER_PORT", 8080),
			SlowRequestThreshold: durVar("SLOW_REQUEST_THRESHOLD", 3*time.Second),
			RateLimitPerSecond:   floatVar("RATE_LIMIT_RPS", 10),
			RateLimitBurst:       intVar("RATE_LIMIT_BURST", 20),
			CORSOrigins:          getEnvList("CORS_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        intVar("DB_MAX_CONNS", 20),
			MinConns:        intVar("DB_MIN_CONNS", 2),
			MaxConnIdleTime: durVar("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			ConnectTimeout:  durVar("DB_CONNECT_TIMEOUT", 10*time.Second),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       intVar("REDIS_DB", 0),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		LLM: LLMConfig{
			OpenAIKey:        getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL:    getEnv("OPENAI_BASE_URL", ""),
			GroqKey:          getEnv("GROQ_API_KEY", ""),
			GroqBaseURL:      getEnv("GROQ_BASE_URL", "https://api.groq.com/openai/v1"),
			AnthropicKey:     getEnv("ANTHROPIC_API_KEY", ""),
			GeminiKey:        getEnv("GEMINI_API_KEY", ""),
			GeminiBaseURL:    getEnv("GEMINI_BASE_URL", ""),
			OllamaURL:        getEnv("OLLAMA_URL", ""),
			DefaultProvider:  getEnv("LLM_DEFAULT_PROVIDER", "groq"),
			ChatModel:        getEnv("LLM_CHAT_MODEL", "llama-3.1-8b-instant"),
			FallbackProvider: getEnv("LLM_FALLBACK_PROVIDER", ""),
			FallbackModel:    getEnv("LLM_FALLBACK_MODEL", ""),
			MaxRetries:       intVar("LLM_MAX_RETRIES", 0),
		},
		Embedding: EmbeddingConfig{
			Provider:  getEnv("EMBEDDING_PROVIDER", "gemini"),
			Model:     getEnv("EMBEDDING_MODEL", "text-embedding-004"),
			BatchSize: intVar("EMBEDDING_BATCH_SIZE", 100),
		},
		VectorStore: VectorStoreConfig{
			Backend:    getEnv("VECTOR_STORE", "qdrant"),
			QdrantURL:  getEnv("QDRANT_URL", "http://localhost:6333"),
			QdrantKey:  getEnv("QDRANT_API_KEY", ""),
			Collection: getEnv("VECTOR_COLLECTION", "studywise_documents"),
			Dimension:  intVar("VECTOR_DIM", 0),
		},
		Storage: StorageConfig{
			Backend:     getEnv("STORAGE_BACKEND", "local"),
			SupabaseURL: getEnv("SUPABASE_URL", ""),
			SupabaseKey: getEnv("SUPABASE_SERVICE_KEY", ""),
			Bucket:      getEnv("STORAGE_BUCKET", "documents"),
			LocalRoot:   getEnv("STORAGE_LOCAL_ROOT", "data/uploads"),
		},
		Ingestion: IngestionConfig{
			ChunkSize:     intVar("CHUNK_SIZE", 384),
			ChunkOverlap:  intVar("CHUNK_OVERLAP", 50),
			MaxChunks:     intVar("MAX_CHUNKS", 1000),
			MaxRetry:      intVar("INGEST_MAX_RETRY", 3),
			RetryDelay:    durVar("INGEST_RETRY_DELAY", 60*time.Second),
			TaskTimeout:   durVar("INGEST_TASK_TIMEOUT", 10*time.Minute),
			Concurrency:   intVar("WORKER_CONCURRENCY", 10),
			Tokenizer:     getEnv("TOKENIZER", "cl100k_base"),
			OCRLanguage:   getEnv("OCR_LANGUAGE", "eng"),
			OCRResolution: intVar("OCR_DPI", 300),
		},
		RAG: RAGConfig{
			HistoryTurns:     intVar("RAG_HISTORY_TURNS", 5),
			Expansions:       intVar("RAG_EXPANSIONS", 4),
			PerQueryLimit:    intVar("RAG_PER_QUERY_LIMIT", 5),
			ContextLimit:     intVar("RAG_CONTEXT_LIMIT", 10),
			MaxQuestionChars: intVar("RAG_MAX_QUESTION_CHARS", 4000),
		},
		Notify: NotifyConfig{
			RedisEnabled:  boolVar("NOTIFY_REDIS", true),
			WebhookURL:    getEnv("NOTIFY_WEBHOOK_URL", ""),
			WebhookSecret: getEnv("NOTIFY_WEBHOOK_SECRET", ""),
		},
		Log: LogConfig{
			Env:   getEnv("APP_ENV", "dev"),
			Level: getEnv("LOG_LEVEL", ""),
		},
		PromptsPath: getEnv("PROMPTS_PATH", ""),
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("load config: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Validate reports every missing or inconsistent setting at once.
func (c *Config) Validate() error {
	var problems []string
	if c.Database.URL == "" {
		problems = append(problems, "DATABASE_URL is required")
	}
	if c.Auth.JWTSecret == "" {
		problems = append(problems, "JWT_SECRET is required")
	}
	if !c.LLM.hasProvider(c.LLM.DefaultProvider) {
		problems = append(problems, fmt.Sprintf("LLM_DEFAULT_PROVIDER %q has no credentials", c.LLM.DefaultProvider))
	}
	if c.LLM.FallbackProvider != "" && !c.LLM.hasProvider(c.LLM.FallbackProvider) {
		problems = append(problems, fmt.Sprintf("LLM_FALLBACK_PROVIDER %q has no credentials", c.LLM.FallbackProvider))
	}
	if !c.LLM.hasProvider(c.Embedding.Provider) {
		problems = append(problems, fmt.Sprintf("EMBEDDING_PROVIDER %q has no credentials", c.Embedding.Provider))
	}
	if c.Ingestion.ChunkSize <= 0 || c.Ingestion.ChunkOverlap < 0 || c.Ingestion.ChunkOverlap >= c.Ingestion.ChunkSize {
		problems = append(problems, fmt.Sprintf("CHUNK_OVERLAP (%d) must be in [0, CHUNK_SIZE (%d))", c.Ingestion.ChunkOverlap, c.Ingestion.ChunkSize))
	}
	if c.Ingestion.MaxChunks <= 0 {
		problems = append(problems, "MAX_CHUNKS must be positive")
	}
	if c.Embedding.BatchSize <= 0 || c.Embedding.BatchSize > maxEmbeddingBatch {
		problems = append(problems, fmt.Sprintf("EMBEDDING_BATCH_SIZE (%d) must be in [1, %d]", c.Embedding.BatchSize, maxEmbeddingBatch))
	}
	switch c.VectorStore.Backend {
	case "qdrant":
		if c.VectorStore.QdrantURL == "" {
			problems = append(problems, "QDRANT_URL is required for the qdrant backend")
		}
	case "pgvector", "memory":
	default:
		problems = append(problems, fmt.Sprintf("VECTOR_STORE %q is not one of qdrant, pgvector, memory", c.VectorStore.Backend))
	}
	switch c.Storage.Backend {
	case "supabase":
		if c.Storage.SupabaseURL == "" || c.Storage.SupabaseKey == "" {
			problems = append(problems, "SUPABASE_URL and SUPABASE_SERVICE_KEY are required for the supabase backend")
		}
	case "gcs", "local":
	default:
		problems = append(problems, fmt.Sprintf("STORAGE_BACKEND %q is not one of supabase, gcs, local", c.Storage.Backend))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c LLMConfig) hasProvider(name string) bool {
	switch name {
	case "openai":
		return c.OpenAIKey != ""
	case "groq":
		return c.GroqKey != ""
	case "anthropic":
		return c.AnthropicKey != ""
	case "gemini":
		return c.GeminiKey != ""
	case "ollama":
		return c.OllamaURL != ""
	}
	return false
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(v, 64)
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseBool(v)
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return time.ParseDuration(v)
}

// getEnvList splits a comma separated value, dropping empty entries.
func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
