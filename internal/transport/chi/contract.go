package chi

import (
	"context"

	dombatch "github.com/kailas-cloud/triage/internal/domain/batch"
	"github.com/kailas-cloud/triage/internal/domain/event"
	"github.com/kailas-cloud/triage/internal/domain/issue"
	"github.com/kailas-cloud/triage/internal/domain/message"
	domusage "github.com/kailas-cloud/triage/internal/domain/usage"
	healthuc "github.com/kailas-cloud/triage/internal/usecase/health"
	issuesuc "github.com/kailas-cloud/triage/internal/usecase/issues"
	"github.com/kailas-cloud/triage/internal/usecase/notify"
)

// Ingester runs the synchronous ingestion pipeline.
// A nil message with a nil error means the event was a duplicate or irrelevant.
type Ingester interface {
	Ingest(ctx context.Context, ev event.Event) (*message.Message, error)
	IngestBatch(ctx context.Context, events []event.Event) []dombatch.Result
	Resolve(ctx context.Context, issueID string) (issue.Issue, error)
}

// Queue accepts events for asynchronous ingestion.
type Queue interface {
	Submit(ev event.Event) error
}

// IssueQuerier serves dashboard reads.
type IssueQuerier interface {
	List(ctx context.Context, status issue.Status, offset, limit int) (issuesuc.Page, error)
	Get(ctx context.Context, id string) (issue.Issue, error)
	Messages(ctx context.Context, issueID string, limit int) ([]message.Message, error)
}

// UsageReporter reports provider token usage.
type UsageReporter interface {
	GetReport(ctx context.Context, period domusage.Period) domusage.Report
}

// HealthChecker aggregates component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// Subscriber streams dashboard notifications.
type Subscriber interface {
	Subscribe() (<-chan notify.Notification, func())
}
