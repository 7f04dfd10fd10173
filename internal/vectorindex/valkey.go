package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/triage/internal/db"
	"github.com/kailas-cloud/triage/internal/domain"
	"github.com/kailas-cloud/triage/internal/domain/issue"
	"github.com/kailas-cloud/triage/internal/domain/label"
	"github.com/kailas-cloud/triage/internal/metrics"
)

const (
	backendValkey = "valkey"
	keyPrefix     = domain.KeyPrefix + "vindex:"
	// IndexName is the FT index holding issue vectors.
	IndexName = domain.KeyPrefix + "vindex:idx"
)

// store is the consumer interface for the valkey backend (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

// HNSWConfig HNSW index parameters.
type HNSWConfig struct {
	M           int
	EFConstruct int
}

// Valkey keeps entries as hashes under an HNSW/IP FT index.
type Valkey struct {
	store  store
	dim    int
	hnsw   HNSWConfig
	logger *zap.Logger

	mu    sync.RWMutex
	cache map[string]Entry
}

// NewValkey creates a valkey-backed index for vectors of dimension dim.
func NewValkey(s store, dim int, logger *zap.Logger) *Valkey {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Valkey{
		store:  s,
		dim:    dim,
		hnsw:   HNSWConfig{M: 16, EFConstruct: 200},
		logger: logger,
		cache:  make(map[string]Entry),
	}
}

// WithHNSW configures HNSW index parameters.
func (v *Valkey) WithHNSW(cfg HNSWConfig) *Valkey {
	if cfg.M > 0 {
		v.hnsw.M = cfg.M
	}
	if cfg.EFConstruct > 0 {
		v.hnsw.EFConstruct = cfg.EFConstruct
	}
	return v
}

func entryKey(issueID string) string { return keyPrefix + issueID }

// IndexDefinition describes the vector index.
func (v *Valkey) IndexDefinition() *db.IndexDefinition {
	return db.NewIndex(IndexName).
		Prefix(keyPrefix).
		Tag("label").
		Numeric("updated_at").
		VectorHNSW("vector", v.dim, db.DistanceIP, v.hnsw.M, v.hnsw.EFConstruct).
		MustBuild()
}

// EnsureIndex creates the FT index when missing.
func (v *Valkey) EnsureIndex(ctx context.Context) error {
	exists, err := v.store.IndexExists(ctx, IndexName)
	if err != nil {
		return fmt.Errorf("check vector index: %w", err)
	}
	if exists {
		return nil
	}
	if err := v.store.CreateIndex(ctx, v.IndexDefinition()); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create vector index: %w", err)
	}
	return nil
}

// Load ensures the FT index exists and writes every issue with a vector.
func (v *Valkey) Load(ctx context.Context, issues []issue.Issue) error {
	if err := v.EnsureIndex(ctx); err != nil {
		return err
	}
	return loadAll(ctx, v, issues, v.logger)
}

// Upsert rewrites every entry field with a single HSET.
func (v *Valkey) Upsert(ctx context.Context, e Entry) error {
	prepared, err := prepare(e, v.dim, v.logger)
	if err != nil {
		return reject(backendValkey, e, err, v.logger)
	}

	fields := map[string]string{
		"issue_id":   prepared.IssueID,
		"vector":     db.VectorToBytes(prepared.Vector),
		"label":      prepared.Label.String(),
		"updated_at": strconv.FormatInt(prepared.LastUpdated.UnixMilli(), 10),
	}
	// HSET merges fields; an empty value overwrites a metadata vector from an earlier upsert.
	fields["metadata_vector"] = ""
	if len(prepared.MetadataVector) > 0 {
		fields["metadata_vector"] = db.VectorToBytes(prepared.MetadataVector)
	}
	if err := v.store.HSet(ctx, entryKey(prepared.IssueID), fields); err != nil {
		return fmt.Errorf("upsert vector %s: %w", prepared.IssueID, err)
	}

	v.mu.Lock()
	v.cache[prepared.IssueID] = prepared
	n := len(v.cache)
	v.mu.Unlock()

	metrics.IndexSize.WithLabelValues(backendValkey).Set(float64(n))
	return nil
}

// Search runs a KNN query. Similarity is 1 - inner-product distance.
func (v *Valkey) Search(ctx context.Context, vector []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	if err := domain.ValidateVector(vector, v.dim); err != nil {
		return nil, err
	}
	res, err := v.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    IndexName,
		Vector:       domain.Normalize(vector),
		K:            k,
		ReturnFields: []string{"issue_id", "vector", "label", "updated_at", "metadata_vector", "__vector_score"},
		RawScores:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	hits := make([]Hit, 0, len(res.Entries))
	for _, se := range res.Entries {
		e, ok := v.entryFromFields(se)
		if !ok {
			v.logger.Warn("skipping corrupt vector index entry", zap.String("key", se.Key))
			continue
		}
		hits = append(hits, Hit{Entry: e, Similarity: 1 - se.Score})
	}
	return hits, nil
}

func (v *Valkey) entryFromFields(se db.SearchEntry) (Entry, bool) {
	id := se.Fields["issue_id"]
	if id == "" {
		id = strings.TrimPrefix(se.Key, keyPrefix)
	}
	if id == "" {
		return Entry{}, false
	}

	v.mu.RLock()
	cached, ok := v.cache[id]
	v.mu.RUnlock()
	if ok {
		return cached, true
	}

	vec, err := db.BytesToVector(se.Fields["vector"])
	if err != nil || domain.ValidateVector(vec, v.dim) != nil {
		return Entry{}, false
	}
	e := Entry{IssueID: id, Vector: vec, Label: label.Label(se.Fields["label"])}
	if ms, err := strconv.ParseInt(se.Fields["updated_at"], 10, 64); err == nil {
		e.LastUpdated = time.UnixMilli(ms).UTC()
	} else {
		return Entry{}, false
	}
	if raw, ok := se.Fields["metadata_vector"]; ok && raw != "" {
		mv, err := db.BytesToVector(raw)
		if err != nil || domain.ValidateVector(mv, v.dim) != nil {
			mv = nil
		}
		e.MetadataVector = mv
	}
	return e, true
}

// Entry returns the locally mirrored entry for an issue.
func (v *Valkey) Entry(issueID string) (Entry, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	e, ok := v.cache[issueID]
	return e, ok
}

// Len returns the number of mirrored entries.
func (v *Valkey) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.cache)
}
