package ingest

import (
	"context"

	"github.com/kailas-cloud/triage/internal/domain/issue"
	"github.com/kailas-cloud/triage/internal/domain/message"
	"github.com/kailas-cloud/triage/internal/usecase/clustering"
	"github.com/kailas-cloud/triage/internal/usecase/notify"
	"github.com/kailas-cloud/triage/internal/vectorindex"
)

// IssueRepository defines the storage contract for issues.
type IssueRepository interface {
	SaveIssue(ctx context.Context, iss *issue.Issue) error
	GetIssue(ctx context.Context, id string) (issue.Issue, error)
	IssuesWithVector(ctx context.Context) ([]issue.Issue, error)
	ListIssues(ctx context.Context, status issue.Status, offset, limit int) ([]issue.Issue, int, error)
}

// MessageRepository defines the storage contract for messages.
// SaveMessage returns domain.ErrDuplicateMessage when the external id is taken.
type MessageRepository interface {
	SaveMessage(ctx context.Context, msg *message.Message) error
	MessageByExternalID(ctx context.Context, externalID string) (message.Message, error)
	LatestInChannel(ctx context.Context, channel, excludeExternalID string) (message.Message, error)
	MessagesForIssue(ctx context.Context, issueID string, limit int) ([]message.Message, error)
}

// VectorIndex is the slice of vectorindex.Index the pipeline writes to.
type VectorIndex interface {
	Load(ctx context.Context, issues []issue.Issue) error
	Upsert(ctx context.Context, e vectorindex.Entry) error
}

// Decider picks the issue for a message.
type Decider interface {
	Decide(ctx context.Context, in clustering.Input) (clustering.Decision, error)
}

// CentroidMaintainer recomputes an issue's representative vector.
type CentroidMaintainer interface {
	Recompute(ctx context.Context, issueID string) ([]float32, bool, error)
}

// DedupCache is the bounded recency window of processed external ids.
type DedupCache interface {
	Seen(id string) bool
	Record(id string)
}

// Notifier publishes dashboard notifications.
type Notifier interface {
	Publish(n notify.Notification)
}
