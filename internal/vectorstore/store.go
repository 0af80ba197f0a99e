package vectorstore

import (
	"context"
	"strconv"

	"github.com/google/uuid"
)

// Payload keys written with every chunk point.
const (
	PayloadText       = "text"
	PayloadDocumentID = "document_id"
	PayloadUserID     = "user_id"
	PayloadChapterID  = "chapter_id"
	PayloadFileType   = "file_type"
	PayloadChunkIndex = "chunk_index"
)

// MaxUpsertBatch caps the points sent in one upsert call.
const MaxUpsertBatch = 100

var pointIDNamespace = uuid.MustParse("6f1b7c2e-4a8d-4f3e-9b5a-2d7c1e0f8a94")

type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

type SearchResult struct {
	ID      string         `json:"id"`
	Score   float64        `json:"score"`
	Text    string         `json:"text"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Store is a vector collection holding chunk points for every document.
type Store interface {
	// EnsureCollection creates the collection with cosine distance if it is
	// missing. An existing collection of another dimension is an error.
	EnsureCollection(ctx context.Context, dimension int) error
	// Upsert returns once the points are durable.
	Upsert(ctx context.Context, points []Point) error
	// Count is approximate and meant as an existence probe.
	Count(ctx context.Context, filter Filter) (int, error)
	// SearchBatch runs one nearest-neighbour query per vector and returns the
	// result lists in input order.
	SearchBatch(ctx context.Context, vectors [][]float32, filter Filter, limit int) ([][]SearchResult, error)
	// PruneDocument deletes the document's points with chunk_index >= keep.
	PruneDocument(ctx context.Context, documentID uuid.UUID, keep int) error
	DeleteCollection(ctx context.Context) error
}

// PointID is stable per (document, chunk index) so re-ingestion overwrites
// points in place.
func PointID(documentID uuid.UUID, chunkIndex int) string {
	return uuid.NewSHA1(pointIDNamespace, []byte(documentID.String()+":"+strconv.Itoa(chunkIndex))).String()
}

func payloadText(payload map[string]any) string {
	if s, ok := payload[PayloadText].(string); ok {
		return s
	}
	return ""
}
