package issues

import (
	"context"

	"github.com/kailas-cloud/triage/internal/domain/issue"
	"github.com/kailas-cloud/triage/internal/domain/message"
)

// IssueReader reads issues for the dashboard.
type IssueReader interface {
	GetIssue(ctx context.Context, id string) (issue.Issue, error)
	ListIssues(ctx context.Context, status issue.Status, offset, limit int) ([]issue.Issue, int, error)
}

// MessageReader reads an issue's messages.
type MessageReader interface {
	MessagesForIssue(ctx context.Context, issueID string, limit int) ([]message.Message, error)
}
