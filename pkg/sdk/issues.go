package triage

import (
	"context"
	"fmt"
	"time"

	"github.com/kailas-cloud/triage/internal/domain/issue"
)

// IssueService queries and resolves issues.
type IssueService struct {
	svc    issueUseCase
	ingest ingestUseCase
	obs    *observer
}

// List returns issues with the given status (empty for all), most recently updated first.
// limit <= 0 uses the server default.
func (s *IssueService) List(ctx context.Context, status IssueStatus, offset, limit int) (_ IssuePage, err error) {
	start := time.Now()
	defer func() { s.obs.observe("list_issues", start, err) }()

	page, err := s.svc.List(ctx, issue.Status(status), offset, limit)
	if err != nil {
		return IssuePage{}, fmt.Errorf("list issues: %w", err)
	}
	out := make([]Issue, len(page.Items))
	for i := range page.Items {
		out[i] = fromInternalIssue(&page.Items[i])
	}
	return IssuePage{Issues: out, Total: page.Total, Offset: page.Offset, Limit: page.Limit}, nil
}

// Get returns one issue by id.
func (s *IssueService) Get(ctx context.Context, id string) (_ Issue, err error) {
	start := time.Now()
	defer func() { s.obs.observe("get_issue", start, err) }()

	is, err := s.svc.Get(ctx, id)
	if err != nil {
		return Issue{}, fmt.Errorf("get issue: %w", err)
	}
	return fromInternalIssue(&is), nil
}

// Messages returns the messages of an issue, oldest first. limit <= 0 returns up to 500.
func (s *IssueService) Messages(ctx context.Context, id string, limit int) (_ []Message, err error) {
	start := time.Now()
	defer func() { s.obs.observe("issue_messages", start, err) }()

	msgs, err := s.svc.Messages(ctx, id, limit)
	if err != nil {
		return nil, fmt.Errorf("issue messages: %w", err)
	}
	out := make([]Message, len(msgs))
	for i := range msgs {
		out[i] = fromInternalMessage(&msgs[i])
	}
	return out, nil
}

// Resolve closes an issue. A later matching message reopens it.
func (s *IssueService) Resolve(ctx context.Context, id string) (_ Issue, err error) {
	start := time.Now()
	defer func() { s.obs.observe("resolve_issue", start, err) }()

	is, err := s.ingest.Resolve(ctx, id)
	if err != nil {
		return Issue{}, fmt.Errorf("resolve issue: %w", err)
	}
	return fromInternalIssue(&is), nil
}
