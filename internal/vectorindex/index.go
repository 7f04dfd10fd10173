// Package vectorindex holds one representative vector per issue and answers
// nearest-neighbour queries by inner product over unit vectors.
package vectorindex

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/triage/internal/domain"
	"github.com/kailas-cloud/triage/internal/domain/issue"
	"github.com/kailas-cloud/triage/internal/domain/label"
	"github.com/kailas-cloud/triage/internal/metrics"
)

// Entry is what the index stores per issue.
type Entry struct {
	IssueID        string
	Vector         []float32
	MetadataVector []float32 // nil when absent
	Label          label.Label
	LastUpdated    time.Time
}

// Hit is a search result: an entry and its inner-product similarity to the query.
type Hit struct {
	Entry
	Similarity float64
}

// Index is the vector index contract shared by all backends.
type Index interface {
	Load(ctx context.Context, issues []issue.Issue) error
	Search(ctx context.Context, vector []float32, k int) ([]Hit, error)
	Upsert(ctx context.Context, e Entry) error
	Entry(issueID string) (Entry, bool)
	Len() int
}

// EntryFromIssue builds an index entry from a persisted issue.
func EntryFromIssue(i *issue.Issue) Entry {
	return Entry{
		IssueID:        i.ID(),
		Vector:         i.Vector(),
		MetadataVector: i.MetadataVector(),
		Label:          i.Classification(),
		LastUpdated:    i.UpdatedAt(),
	}
}

// prepare validates and normalizes an entry. A malformed metadata vector is dropped.
func prepare(e Entry, dim int, logger *zap.Logger) (Entry, error) {
	if e.IssueID == "" {
		return Entry{}, errors.New("vectorindex: empty issue id")
	}
	if err := domain.ValidateVector(e.Vector, dim); err != nil {
		return Entry{}, err
	}
	out := e
	out.Vector = domain.Normalize(e.Vector)
	out.LastUpdated = e.LastUpdated.UTC()
	if len(e.MetadataVector) > 0 {
		if err := domain.ValidateVector(e.MetadataVector, dim); err != nil {
			logger.Warn("dropping malformed metadata vector",
				zap.String("issue_id", e.IssueID), zap.Error(err))
			out.MetadataVector = nil
		} else {
			out.MetadataVector = domain.Normalize(e.MetadataVector)
		}
	} else {
		out.MetadataVector = nil
	}
	return out, nil
}

// loadAll upserts every issue with a vector, skipping malformed ones.
func loadAll(ctx context.Context, idx Index, issues []issue.Issue, logger *zap.Logger) error {
	loaded := 0
	for i := range issues {
		if !issues[i].HasVector() {
			continue
		}
		if err := idx.Upsert(ctx, EntryFromIssue(&issues[i])); err != nil {
			if errors.Is(err, domain.ErrMalformedVector) || errors.Is(err, domain.ErrVectorDimMismatch) {
				continue
			}
			return err
		}
		loaded++
	}
	logger.Info("vector index loaded", zap.Int("issues", len(issues)), zap.Int("entries", loaded))
	return nil
}

func reject(backend string, e Entry, err error, logger *zap.Logger) error {
	metrics.IndexRejectedTotal.WithLabelValues(backend).Inc()
	logger.Warn("vector index rejected entry", zap.String("issue_id", e.IssueID), zap.Error(err))
	return err
}
