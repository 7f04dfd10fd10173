package clustering

import (
	"context"

	"github.com/kailas-cloud/triage/internal/domain/issue"
	"github.com/kailas-cloud/triage/internal/domain/message"
	"github.com/kailas-cloud/triage/internal/vectorindex"
)

// MessageLookup is the persistence the decision procedure reads messages from.
type MessageLookup interface {
	MessageByExternalID(ctx context.Context, externalID string) (message.Message, error)
	LatestInChannel(ctx context.Context, channel, excludeExternalID string) (message.Message, error)
}

// IssueLookup loads issue details for oracle prompts.
type IssueLookup interface {
	GetIssue(ctx context.Context, id string) (issue.Issue, error)
}

// Searcher is the vector index view used for candidate retrieval.
type Searcher interface {
	Search(ctx context.Context, vector []float32, k int) ([]vectorindex.Hit, error)
}
