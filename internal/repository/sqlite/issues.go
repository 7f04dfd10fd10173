package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kailas-cloud/triage/internal/domain"
	"github.com/kailas-cloud/triage/internal/domain/issue"
	"github.com/kailas-cloud/triage/internal/domain/label"
)

const issueColumns = `id, title, summary, classification, status, vector, metadata_vector, created_at, updated_at`

// SaveIssue inserts or replaces an issue.
func (s *Store) SaveIssue(ctx context.Context, i *issue.Issue) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO issues (`+issueColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			summary = excluded.summary,
			classification = excluded.classification,
			status = excluded.status,
			vector = excluded.vector,
			metadata_vector = excluded.metadata_vector,
			updated_at = excluded.updated_at
	`,
		i.ID(), i.Title(), i.Summary(), i.Classification().String(), string(i.Status()),
		vectorToBlob(i.Vector()), vectorToBlob(i.MetadataVector()),
		i.CreatedAt().UnixMilli(), i.UpdatedAt().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("saving issue %s: %w", i.ID(), err)
	}
	return nil
}

// GetIssue loads one issue.
func (s *Store) GetIssue(ctx context.Context, id string) (issue.Issue, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+issueColumns+` FROM issues WHERE id = ?`, id)
	i, err := scanIssue(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return issue.Issue{}, domain.ErrIssueNotFound
		}
		return issue.Issue{}, fmt.Errorf("getting issue %s: %w", id, err)
	}
	return i, nil
}

// IssuesWithVector returns every issue that has a centroid.
func (s *Store) IssuesWithVector(ctx context.Context) ([]issue.Issue, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+issueColumns+` FROM issues WHERE vector IS NOT NULL ORDER BY updated_at`)
	if err != nil {
		return nil, fmt.Errorf("querying issues with vector: %w", err)
	}
	return collectIssues(rows)
}

// ListIssues returns a page of issues, most recently updated first, and the total count.
func (s *Store) ListIssues(ctx context.Context, status issue.Status, offset, limit int) ([]issue.Issue, int, error) {
	where, args := "", []any{}
	if status != "" {
		where, args = " WHERE status = ?", append(args, string(status))
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM issues`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting issues: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+issueColumns+` FROM issues`+where+` ORDER BY updated_at DESC LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing issues: %w", err)
	}
	items, err := collectIssues(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanIssue(row scanner) (issue.Issue, error) {
	var (
		id, title, summary, classification, status string
		vec, metaVec                               []byte
		createdAt, updatedAt                       int64
	)
	if err := row.Scan(&id, &title, &summary, &classification, &status,
		&vec, &metaVec, &createdAt, &updatedAt); err != nil {
		return issue.Issue{}, err
	}
	return issue.Reconstruct(id, title, summary, label.Label(classification), issue.Status(status),
		blobToVector(vec), blobToVector(metaVec),
		time.UnixMilli(createdAt).UTC(), time.UnixMilli(updatedAt).UTC()), nil
}

func collectIssues(rows *sql.Rows) ([]issue.Issue, error) {
	defer rows.Close()
	var out []issue.Issue
	for rows.Next() {
		i, err := scanIssue(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning issue: %w", err)
		}
		out = append(out, i)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating issues: %w", err)
	}
	return out, nil
}
