package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore keeps points in process memory. It backs local development
// and tests and shares nothing between processes.
type MemoryStore struct {
	mu     sync.RWMutex
	dim    int
	points map[string]Point
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) EnsureCollection(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return opErr("ensure_collection", OperationErrorValidation, "dimension must be positive", nil)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.points == nil {
		m.dim = dimension
		m.points = make(map[string]Point)
		return nil
	}
	if m.dim != dimension {
		return fmt.Errorf("%w: collection has %d, got %d", ErrDimensionMismatch, m.dim, dimension)
	}
	return nil
}

func (m *MemoryStore) Upsert(_ context.Context, points []Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.points == nil {
		return opErr("upsert", OperationErrorNotFound, "collection does not exist", nil)
	}
	for _, p := range points {
		if len(p.Vector) != m.dim {
			return fmt.Errorf("%w: point %s has %d, collection has %d", ErrDimensionMismatch, p.ID, len(p.Vector), m.dim)
		}
		m.points[p.ID] = p
	}
	return nil
}

func (m *MemoryStore) Count(_ context.Context, filter Filter) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.points == nil {
		return 0, opErr("count", OperationErrorNotFound, "collection does not exist", nil)
	}
	n := 0
	for _, p := range m.points {
		if filter.matches(p.Payload) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) SearchBatch(_ context.Context, vectors [][]float32, filter Filter, limit int) ([][]SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.points == nil {
		return nil, opErr("search_batch", OperationErrorNotFound, "collection does not exist", nil)
	}

	out := make([][]SearchResult, len(vectors))
	for i, vec := range vectors {
		var hits []SearchResult
		for _, p := range m.points {
			if !filter.matches(p.Payload) {
				continue
			}
			hits = append(hits, SearchResult{
				ID:      p.ID,
				Score:   cosine(vec, p.Vector),
				Text:    payloadText(p.Payload),
				Payload: p.Payload,
			})
		}
		sort.SliceStable(hits, func(a, b int) bool {
			if hits[a].Score == hits[b].Score {
				return hits[a].ID < hits[b].ID
			}
			return hits[a].Score > hits[b].Score
		})
		if limit > 0 && len(hits) > limit {
			hits = hits[:limit]
		}
		out[i] = hits
	}
	return out, nil
}

func (m *MemoryStore) PruneDocument(_ context.Context, documentID uuid.UUID, keep int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.points == nil {
		return opErr("prune_document", OperationErrorNotFound, "collection does not exist", nil)
	}
	doc := documentID.String()
	for id, p := range m.points {
		if fmt.Sprint(p.Payload[PayloadDocumentID]) != doc {
			continue
		}
		if idx, ok := p.Payload[PayloadChunkIndex].(int); ok && idx < keep {
			continue
		}
		delete(m.points, id)
	}
	return nil
}

func (m *MemoryStore) DeleteCollection(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points = nil
	m.dim = 0
	return nil
}

// Points returns a copy of every stored point.
func (m *MemoryStore) Points() []Point {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Point, 0, len(m.points))
	for _, p := range m.points {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f Filter) matches(payload map[string]any) bool {
	for _, c := range f.Must {
		v, ok := payload[c.Field]
		if !ok || fmt.Sprint(v) != fmt.Sprint(c.Value) {
			return false
		}
	}
	return true
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
