package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/studywise/internal/logger"
)

const (
	maxErrorBodyBytes    = 1024
	maxResponseBodyBytes = 32 << 20
)

// Payload fields that get a keyword index so filtered search stays fast.
var indexedPayloadFields = []string{PayloadChapterID, PayloadUserID, PayloadDocumentID}

type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// QdrantStore talks to Qdrant over its REST API.
type QdrantStore struct {
	log     *logger.Logger
	cfg     QdrantConfig
	baseURL string
	http    *http.Client

	ensureMu   sync.Mutex
	ensuredDim atomic.Int64
}

type qdrantEnvelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
	Time   float64         `json:"time"`
}

type qdrantScoredPoint struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload map[string]any  `json:"payload"`
}

type qdrantCollectionInfo struct {
	Config struct {
		Params struct {
			Vectors struct {
				Size     int    `json:"size"`
				Distance string `json:"distance"`
			} `json:"vectors"`
		} `json:"params"`
	} `json:"config"`
}

func NewQdrantStore(log *logger.Logger, cfg QdrantConfig) (*QdrantStore, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("qdrant url required")
	}
	if strings.TrimSpace(cfg.Collection) == "" {
		return nil, fmt.Errorf("qdrant collection required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &QdrantStore{
		log:     log.With("component", "qdrant", "collection", cfg.Collection),
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.URL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (s *QdrantStore) EnsureCollection(ctx context.Context, dimension int) error {
	const op = "ensure_collection"
	if dimension <= 0 {
		return opErr(op, OperationErrorValidation, fmt.Sprintf("dimension must be positive, got %d", dimension), nil)
	}

	if s.ensuredDim.Load() == int64(dimension) {
		return nil
	}
	s.ensureMu.Lock()
	defer s.ensureMu.Unlock()
	if s.ensuredDim.Load() == int64(dimension) {
		return nil
	}

	var info qdrantCollectionInfo
	err := s.doJSON(ctx, op, http.MethodGet, s.collectionPath(""), nil, &info)
	switch {
	case err == nil:
		if size := info.Config.Params.Vectors.Size; size != 0 && size != dimension {
			return fmt.Errorf("%w: collection %q has size %d, embeddings have %d",
				ErrDimensionMismatch, s.cfg.Collection, size, dimension)
		}
	case errors.Is(err, ErrCollectionNotFound):
		if err := s.createCollection(ctx, dimension); err != nil {
			return err
		}
	default:
		return err
	}

	s.ensuredDim.Store(int64(dimension))
	return nil
}

func (s *QdrantStore) createCollection(ctx context.Context, dimension int) error {
	const op = "create_collection"
	req := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	err := s.doJSON(ctx, op, http.MethodPut, s.collectionPath(""), req, nil)
	var opError *OperationError
	if errors.As(err, &opError) && opError.StatusCode == http.StatusConflict {
		// Another worker created it first.
		return nil
	}
	if err != nil {
		return err
	}
	s.log.Info("created collection", "dimension", dimension, "distance", "Cosine")

	for _, field := range indexedPayloadFields {
		idx := map[string]any{"field_name": field, "field_schema": "keyword"}
		if err := s.doJSON(ctx, "create_index", http.MethodPut, s.collectionPath("/index?wait=true"), idx, nil); err != nil {
			return err
		}
	}
	return nil
}

func (s *QdrantStore) Upsert(ctx context.Context, points []Point) error {
	const op = "upsert"
	if len(points) == 0 {
		return nil
	}

	for start := 0; start < len(points); start += MaxUpsertBatch {
		batch := points[start:min(start+MaxUpsertBatch, len(points))]
		body := make([]map[string]any, 0, len(batch))
		for _, p := range batch {
			if strings.TrimSpace(p.ID) == "" {
				return opErr(op, OperationErrorValidation, "point id is required", nil)
			}
			if len(p.Vector) == 0 {
				return opErr(op, OperationErrorValidation, fmt.Sprintf("point %q has empty vector", p.ID), nil)
			}
			body = append(body, map[string]any{
				"id":      p.ID,
				"vector":  p.Vector,
				"payload": p.Payload,
			})
		}
		if err := s.doJSON(ctx, op, http.MethodPut, s.collectionPath("/points?wait=true"), map[string]any{"points": body}, nil); err != nil {
			return err
		}
	}
	return nil
}

func (s *QdrantStore) Count(ctx context.Context, filter Filter) (int, error) {
	req := map[string]any{"exact": false}
	if f := filter.qdrant(); f != nil {
		req["filter"] = f
	}
	var result struct {
		Count int `json:"count"`
	}
	if err := s.doJSON(ctx, "count", http.MethodPost, s.collectionPath("/points/count"), req, &result); err != nil {
		return 0, err
	}
	return result.Count, nil
}

func (s *QdrantStore) SearchBatch(ctx context.Context, vectors [][]float32, filter Filter, limit int) ([][]SearchResult, error) {
	const op = "search_batch"
	if len(vectors) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 5
	}

	qf := filter.qdrant()
	searches := make([]map[string]any, 0, len(vectors))
	for i, v := range vectors {
		if len(v) == 0 {
			return nil, opErr(op, OperationErrorValidation, fmt.Sprintf("query vector %d is empty", i), nil)
		}
		search := map[string]any{
			"vector":       v,
			"limit":        limit,
			"with_payload": true,
			"with_vector":  false,
		}
		if qf != nil {
			search["filter"] = qf
		}
		searches = append(searches, search)
	}

	var raw [][]qdrantScoredPoint
	if err := s.doJSON(ctx, op, http.MethodPost, s.collectionPath("/points/search/batch"), map[string]any{"searches": searches}, &raw); err != nil {
		return nil, err
	}
	if len(raw) != len(vectors) {
		return nil, opErr(op, OperationErrorDecodeFailed,
			fmt.Sprintf("expected %d result lists, got %d", len(vectors), len(raw)), nil)
	}

	out := make([][]SearchResult, len(raw))
	for i, list := range raw {
		results := make([]SearchResult, 0, len(list))
		for _, item := range list {
			results = append(results, SearchResult{
				ID:      decodePointID(item.ID),
				Score:   item.Score,
				Text:    payloadText(item.Payload),
				Payload: item.Payload,
			})
		}
		out[i] = results
	}
	return out, nil
}

func (s *QdrantStore) PruneDocument(ctx context.Context, documentID uuid.UUID, keep int) error {
	req := map[string]any{
		"filter": map[string]any{
			"must": []any{
				qdrantMatchCondition(PayloadDocumentID, documentID.String()),
				map[string]any{
					"key":   PayloadChunkIndex,
					"range": map[string]any{"gte": keep},
				},
			},
		},
	}
	return s.doJSON(ctx, "prune_document", http.MethodPost, s.collectionPath("/points/delete?wait=true"), req, nil)
}

func (s *QdrantStore) DeleteCollection(ctx context.Context) error {
	err := s.doJSON(ctx, "delete_collection", http.MethodDelete, s.collectionPath(""), nil, nil)
	if err != nil && !errors.Is(err, ErrCollectionNotFound) {
		return err
	}
	s.log.Info("deleted collection")
	return nil
}

func (s *QdrantStore) doJSON(ctx context.Context, op, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return opErr(op, OperationErrorEncodeFailed, "encode request failed", err)
		}
		body = &buf
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build request failed", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("api-key", s.cfg.APIKey)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return classifyHTTPCallError(op, "qdrant request failed", err)
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
	if readErr != nil {
		return opErr(op, OperationErrorDecodeFailed, "read response failed", readErr)
	}
	if resp.StatusCode == http.StatusNotFound {
		s.forgetCollection()
		return &OperationError{
			Code:       OperationErrorNotFound,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("collection %q not found", s.cfg.Collection),
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("qdrant http status=%d body=%q", resp.StatusCode, truncateBody(raw)),
		}
	}

	var envelope qdrantEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode qdrant envelope failed", err)
	}
	if statusErr := parseEnvelopeStatus(envelope.Status); statusErr != "" {
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    statusErr,
		}
	}

	if out == nil || len(envelope.Result) == 0 || string(envelope.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode qdrant result failed", err)
	}
	return nil
}

// forgetCollection makes the next EnsureCollection check the server again.
func (s *QdrantStore) forgetCollection() {
	s.ensuredDim.Store(0)
}

func (s *QdrantStore) collectionPath(suffix string) string {
	return "/collections/" + s.cfg.Collection + suffix
}

func classifyHTTPCallError(op, message string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	return opErr(op, OperationErrorTransportFailed, message, err)
}

func parseEnvelopeStatus(raw json.RawMessage) string {
	status := strings.TrimSpace(string(raw))
	if status == "" || status == "null" {
		return ""
	}

	var statusString string
	if err := json.Unmarshal(raw, &statusString); err == nil {
		if strings.EqualFold(statusString, "ok") {
			return ""
		}
		return fmt.Sprintf("qdrant status=%q", statusString)
	}

	var statusObject struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &statusObject); err == nil && strings.TrimSpace(statusObject.Error) != "" {
		return strings.TrimSpace(statusObject.Error)
	}
	return fmt.Sprintf("qdrant status=%s", status)
}

func truncateBody(raw []byte) string {
	if len(raw) <= maxErrorBodyBytes {
		return string(raw)
	}
	return string(raw[:maxErrorBodyBytes]) + "..."
}

func decodePointID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return strings.Trim(string(raw), `"`)
}
