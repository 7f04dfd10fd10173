// Package issues serves read-only issue queries for the dashboard.
package issues

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/triage/internal/domain"
	"github.com/kailas-cloud/triage/internal/domain/issue"
	"github.com/kailas-cloud/triage/internal/domain/message"
)

// Page limits.
const (
	DefaultLimit    = 50
	MaxLimit        = 200
	MaxMessageLimit = 500
)

// Page is one slice of the issue list, most recently updated first.
type Page struct {
	Items  []issue.Issue
	Total  int
	Offset int
	Limit  int
}

// Service handles issue queries.
type Service struct {
	issues   IssueReader
	messages MessageReader
}

// New creates a Service.
func New(issues IssueReader, messages MessageReader) *Service {
	return &Service{issues: issues, messages: messages}
}

// List returns a page of issues. An empty status lists every issue.
func (s *Service) List(ctx context.Context, status issue.Status, offset, limit int) (Page, error) {
	if status != "" && status != issue.StatusOpen && status != issue.StatusClosed {
		return Page{}, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidQuery, status)
	}
	if offset < 0 {
		offset = 0
	}
	switch {
	case limit <= 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}

	items, total, err := s.issues.ListIssues(ctx, status, offset, limit)
	if err != nil {
		return Page{}, fmt.Errorf("list issues: %w", err)
	}
	return Page{Items: items, Total: total, Offset: offset, Limit: limit}, nil
}

// Get returns one issue.
func (s *Service) Get(ctx context.Context, id string) (issue.Issue, error) {
	iss, err := s.issues.GetIssue(ctx, id)
	if err != nil {
		return issue.Issue{}, fmt.Errorf("get issue: %w", err)
	}
	return iss, nil
}

// Messages returns an issue's messages oldest first.
func (s *Service) Messages(ctx context.Context, issueID string, limit int) ([]message.Message, error) {
	if _, err := s.issues.GetIssue(ctx, issueID); err != nil {
		return nil, fmt.Errorf("get issue: %w", err)
	}
	if limit <= 0 || limit > MaxMessageLimit {
		limit = MaxMessageLimit
	}
	msgs, err := s.messages.MessagesForIssue(ctx, issueID, limit)
	if err != nil {
		return nil, fmt.Errorf("messages for issue: %w", err)
	}
	return msgs, nil
}
