package vectorindex

import (
	"context"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/kailas-cloud/triage/internal/domain"
	"github.com/kailas-cloud/triage/internal/domain/issue"
	"github.com/kailas-cloud/triage/internal/metrics"
)

const backendMemory = "memory"

// Memory is an in-process exact inner-product index.
type Memory struct {
	mu      sync.RWMutex
	dim     int
	entries []Entry
	pos     map[string]int
	logger  *zap.Logger
}

// NewMemory creates an empty in-memory index for vectors of dimension dim.
func NewMemory(dim int, logger *zap.Logger) *Memory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Memory{dim: dim, pos: make(map[string]int), logger: logger}
}

// Load bulk-inserts issues that carry a vector.
func (m *Memory) Load(ctx context.Context, issues []issue.Issue) error {
	return loadAll(ctx, m, issues, m.logger)
}

// Upsert inserts or replaces the entry for e.IssueID in one locked step.
func (m *Memory) Upsert(_ context.Context, e Entry) error {
	prepared, err := prepare(e, m.dim, m.logger)
	if err != nil {
		return reject(backendMemory, e, err, m.logger)
	}

	m.mu.Lock()
	if i, ok := m.pos[prepared.IssueID]; ok {
		m.entries[i] = prepared
	} else {
		m.pos[prepared.IssueID] = len(m.entries)
		m.entries = append(m.entries, prepared)
	}
	n := len(m.entries)
	m.mu.Unlock()

	metrics.IndexSize.WithLabelValues(backendMemory).Set(float64(n))
	return nil
}

// Search returns up to k entries by descending similarity. Ties keep insertion order.
func (m *Memory) Search(_ context.Context, vector []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	if err := domain.ValidateVector(vector, m.dim); err != nil {
		return nil, err
	}
	q := domain.Normalize(vector)

	m.mu.RLock()
	hits := make([]Hit, 0, len(m.entries))
	for _, e := range m.entries {
		if len(e.Vector) != len(q) {
			continue
		}
		sim := domain.Dot(q, e.Vector)
		if math.IsNaN(sim) || math.IsInf(sim, 0) {
			continue
		}
		hits = append(hits, Hit{Entry: e, Similarity: sim})
	}
	m.mu.RUnlock()

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Entry returns the stored entry for an issue.
func (m *Memory) Entry(issueID string) (Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.pos[issueID]
	if !ok {
		return Entry{}, false
	}
	return m.entries[i], true
}

// Len returns the number of entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
