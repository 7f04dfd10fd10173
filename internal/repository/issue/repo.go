package issue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kailas-cloud/triage/internal/db"
	"github.com/kailas-cloud/triage/internal/domain"
	domissue "github.com/kailas-cloud/triage/internal/domain/issue"
)

const (
	keyPrefix = domain.KeyPrefix + "issue:"
	// IndexName is the FT index over issue documents.
	IndexName = domain.KeyPrefix + "issues:idx"
	pageSize  = 500
)

// store is the consumer interface for issues (ISP).
type store interface {
	JSONSet(ctx context.Context, key, path string, data []byte) error
	JSONGet(ctx context.Context, key string, paths ...string) ([]byte, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	Search(ctx context.Context, q *db.Query) (*db.SearchResult, error)
}

// Repo stores issues as JSON documents.
type Repo struct {
	store store
}

// New creates an issue repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

func issueKey(id string) string { return keyPrefix + id }

// IndexDefinition describes the issues index.
func IndexDefinition() *db.IndexDefinition {
	return db.NewIndex(IndexName).
		OnJSON().
		Prefix(keyPrefix).
		TagAs("$.status", "status").
		TagAs("$.has_vector", "has_vector").
		NumericAs("$.updated_at", "updated_at", true).
		MustBuild()
}

// EnsureIndex creates the issues index when it is missing.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	exists, err := r.store.IndexExists(ctx, IndexName)
	if err != nil {
		return fmt.Errorf("check issues index: %w", err)
	}
	if exists {
		return nil
	}
	if err := r.store.CreateIndex(ctx, IndexDefinition()); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create issues index: %w", err)
	}
	return nil
}

// SaveIssue writes the full issue document.
func (r *Repo) SaveIssue(ctx context.Context, i *domissue.Issue) error {
	data, err := json.Marshal(toDoc(i))
	if err != nil {
		return fmt.Errorf("marshal issue: %w", err)
	}
	if err := r.store.JSONSet(ctx, issueKey(i.ID()), "$", data); err != nil {
		return fmt.Errorf("save issue %s: %w", i.ID(), err)
	}
	return nil
}

// GetIssue loads one issue.
func (r *Repo) GetIssue(ctx context.Context, id string) (domissue.Issue, error) {
	raw, err := r.store.JSONGet(ctx, issueKey(id), "$")
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domissue.Issue{}, domain.ErrIssueNotFound
		}
		return domissue.Issue{}, fmt.Errorf("get issue %s: %w", id, err)
	}
	d, err := decodeDoc(raw)
	if err != nil {
		return domissue.Issue{}, err
	}
	return d.toDomain(), nil
}

// IssuesWithVector returns every issue that has a centroid.
func (r *Repo) IssuesWithVector(ctx context.Context) ([]domissue.Issue, error) {
	var out []domissue.Issue
	for offset := 0; ; offset += pageSize {
		res, err := r.store.Search(ctx, &db.Query{
			IndexName:    IndexName,
			Query:        db.TagEq("has_vector", "true"),
			SortBy:       "updated_at",
			Offset:       offset,
			Limit:        pageSize,
			ReturnFields: []string{"$"},
		})
		if err != nil {
			return nil, fmt.Errorf("search issues with vector: %w", err)
		}
		page, err := decodeEntries(res.Entries)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(res.Entries) < pageSize || offset+len(res.Entries) >= res.Total {
			return out, nil
		}
	}
}

// ListIssues returns a page of issues, most recently updated first, and the total count.
// An empty status lists all statuses.
func (r *Repo) ListIssues(
	ctx context.Context, status domissue.Status, offset, limit int,
) ([]domissue.Issue, int, error) {
	query := "*"
	if status != "" {
		query = db.TagEq("status", string(status))
	}
	res, err := r.store.Search(ctx, &db.Query{
		IndexName:    IndexName,
		Query:        query,
		SortBy:       "updated_at",
		Descending:   true,
		Offset:       offset,
		Limit:        limit,
		ReturnFields: []string{"$"},
	})
	if err != nil {
		return nil, 0, fmt.Errorf("list issues: %w", err)
	}
	items, err := decodeEntries(res.Entries)
	if err != nil {
		return nil, 0, err
	}
	return items, res.Total, nil
}

func decodeEntries(entries []db.SearchEntry) ([]domissue.Issue, error) {
	out := make([]domissue.Issue, 0, len(entries))
	for _, e := range entries {
		raw, ok := e.Fields["$"]
		if !ok {
			continue
		}
		d, err := decodeDoc([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", e.Key, err)
		}
		out = append(out, d.toDomain())
	}
	return out, nil
}
