package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/nikhilbhutani/studywise/internal/logger"
)

const pgUndefinedTable = "42P01"

// PgVectorStore keeps each collection in its own table with a jsonb payload.
type PgVectorStore struct {
	db    *pgxpool.Pool
	log   *logger.Logger
	name  string
	table string

	mu         sync.Mutex
	ensuredDim int
}

func NewPgVectorStore(db *pgxpool.Pool, collection string, log *logger.Logger) *PgVectorStore {
	return &PgVectorStore{
		db:    db,
		log:   log.With("component", "pgvector", "collection", collection),
		name:  collection,
		table: pgx.Identifier{collection}.Sanitize(),
	}
}

func (s *PgVectorStore) EnsureCollection(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return opErr("ensure_collection", OperationErrorValidation, fmt.Sprintf("dimension must be positive, got %d", dimension), nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensuredDim == dimension {
		return nil
	}

	existing, err := s.columnDimension(ctx)
	if err != nil {
		return err
	}
	if existing != 0 && existing != dimension {
		return fmt.Errorf("%w: table %s has vector(%d), embeddings have %d", ErrDimensionMismatch, s.table, existing, dimension)
	}
	if existing == 0 {
		if err := s.createTable(ctx, dimension); err != nil {
			return err
		}
		s.log.Info("created collection table", "dimension", dimension)
	}

	s.ensuredDim = dimension
	return nil
}

// columnDimension returns the declared size of the embedding column, or 0
// when the table does not exist.
func (s *PgVectorStore) columnDimension(ctx context.Context) (int, error) {
	var typmod int
	err := s.db.QueryRow(ctx,
		`SELECT atttypmod FROM pg_attribute
		 WHERE attrelid = to_regclass($1) AND attname = 'embedding' AND NOT attisdropped`,
		s.table,
	).Scan(&typmod)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("inspect %s: %w", s.table, err)
	}
	return typmod, nil
}

func (s *PgVectorStore) createTable(ctx context.Context, dimension int) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id        UUID PRIMARY KEY,
			text      TEXT NOT NULL,
			payload   JSONB NOT NULL DEFAULT '{}',
			embedding vector(%d) NOT NULL
		)`, s.table, dimension),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING gin (payload jsonb_path_ops)`,
			pgx.Identifier{s.name + "_payload_idx"}.Sanitize(), s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s ((payload->>'document_id'))`,
			pgx.Identifier{s.name + "_document_idx"}.Sanitize(), s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (embedding vector_cosine_ops)`,
			pgx.Identifier{s.name + "_embedding_idx"}.Sanitize(), s.table),
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create collection %s: %w", s.table, err)
		}
	}
	return nil
}

func (s *PgVectorStore) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	for start := 0; start < len(points); start += MaxUpsertBatch {
		batch := &pgx.Batch{}
		for _, p := range points[start:min(start+MaxUpsertBatch, len(points))] {
			id, err := uuid.Parse(p.ID)
			if err != nil {
				return opErr("upsert", OperationErrorValidation, fmt.Sprintf("point id %q is not a uuid", p.ID), err)
			}
			batch.Queue(
				fmt.Sprintf(`INSERT INTO %s (id, text, payload, embedding) VALUES ($1, $2, $3, $4)
				 ON CONFLICT (id) DO UPDATE SET text = EXCLUDED.text, payload = EXCLUDED.payload, embedding = EXCLUDED.embedding`, s.table),
				id, payloadText(p.Payload), p.Payload, pgvector.NewVector(p.Vector),
			)
		}
		if err := s.db.SendBatch(ctx, batch).Close(); err != nil {
			return s.mapErr("upsert", err)
		}
	}
	return nil
}

func (s *PgVectorStore) Count(ctx context.Context, filter Filter) (int, error) {
	var n int
	err := s.db.QueryRow(ctx,
		fmt.Sprintf(`SELECT count(*) FROM %s WHERE payload @> $1`, s.table),
		filter.document(),
	).Scan(&n)
	if err != nil {
		return 0, s.mapErr("count", err)
	}
	return n, nil
}

func (s *PgVectorStore) SearchBatch(ctx context.Context, vectors [][]float32, filter Filter, limit int) ([][]SearchResult, error) {
	if len(vectors) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 5
	}

	query := fmt.Sprintf(
		`SELECT id, text, payload, 1 - (embedding <=> $1) AS score
		 FROM %s
		 WHERE payload @> $2
		 ORDER BY embedding <=> $1
		 LIMIT $3`, s.table)

	batch := &pgx.Batch{}
	for _, v := range vectors {
		batch.Queue(query, pgvector.NewVector(v), filter.document(), limit)
	}
	br := s.db.SendBatch(ctx, batch)
	defer br.Close()

	out := make([][]SearchResult, len(vectors))
	for i := range vectors {
		rows, err := br.Query()
		if err != nil {
			return nil, s.mapErr("search_batch", err)
		}
		results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (SearchResult, error) {
			var (
				r  SearchResult
				id uuid.UUID
			)
			err := row.Scan(&id, &r.Text, &r.Payload, &r.Score)
			r.ID = id.String()
			return r, err
		})
		if err != nil {
			return nil, s.mapErr("search_batch", err)
		}
		out[i] = results
	}
	return out, nil
}

func (s *PgVectorStore) PruneDocument(ctx context.Context, documentID uuid.UUID, keep int) error {
	_, err := s.db.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE payload->>'document_id' = $1 AND (payload->>'chunk_index')::int >= $2`, s.table),
		documentID.String(), keep,
	)
	if err != nil {
		return s.mapErr("prune_document", err)
	}
	return nil
}

func (s *PgVectorStore) DeleteCollection(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, s.table)); err != nil {
		return fmt.Errorf("drop %s: %w", s.table, err)
	}
	s.ensuredDim = 0
	s.log.Info("deleted collection table")
	return nil
}

func (s *PgVectorStore) mapErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUndefinedTable {
		s.mu.Lock()
		s.ensuredDim = 0
		s.mu.Unlock()
		return &OperationError{Code: OperationErrorNotFound, Operation: op, Message: pgErr.Message, Cause: err}
	}
	return &OperationError{Code: OperationErrorQueryFailed, Operation: op, Cause: err}
}
