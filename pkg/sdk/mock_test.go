package triage

import (
	"context"
	"time"

	dombatch "github.com/kailas-cloud/triage/internal/domain/batch"
	"github.com/kailas-cloud/triage/internal/domain/event"
	"github.com/kailas-cloud/triage/internal/domain/issue"
	"github.com/kailas-cloud/triage/internal/domain/label"
	"github.com/kailas-cloud/triage/internal/domain/message"
	issuesuc "github.com/kailas-cloud/triage/internal/usecase/issues"
)

// --- ingestUseCase mock ---

type mockIngestUC struct {
	ingestFn  func(ctx context.Context, ev event.Event) (*message.Message, error)
	batchFn   func(ctx context.Context, events []event.Event) []dombatch.Result
	resolveFn func(ctx context.Context, id string) (issue.Issue, error)
}

func (m *mockIngestUC) Ingest(ctx context.Context, ev event.Event) (*message.Message, error) {
	return m.ingestFn(ctx, ev)
}

func (m *mockIngestUC) IngestBatch(ctx context.Context, events []event.Event) []dombatch.Result {
	return m.batchFn(ctx, events)
}

func (m *mockIngestUC) Resolve(ctx context.Context, id string) (issue.Issue, error) {
	return m.resolveFn(ctx, id)
}

// --- issueUseCase mock ---

type mockIssueUC struct {
	listFn     func(ctx context.Context, status issue.Status, offset, limit int) (issuesuc.Page, error)
	getFn      func(ctx context.Context, id string) (issue.Issue, error)
	messagesFn func(ctx context.Context, id string, limit int) ([]message.Message, error)
}

func (m *mockIssueUC) List(ctx context.Context, status issue.Status, offset, limit int) (issuesuc.Page, error) {
	return m.listFn(ctx, status, offset, limit)
}

func (m *mockIssueUC) Get(ctx context.Context, id string) (issue.Issue, error) {
	return m.getFn(ctx, id)
}

func (m *mockIssueUC) Messages(ctx context.Context, id string, limit int) ([]message.Message, error) {
	return m.messagesFn(ctx, id, limit)
}

// --- helpers ---

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func testIssue(id string) issue.Issue {
	return issue.Reconstruct(id, "Login crash", "login page crashes on submit",
		label.BugReport, issue.StatusOpen, nil, nil, t0, t0.Add(time.Minute))
}

func testMessage(id, issueID string) message.Message {
	return message.Reconstruct(id, "1714564800.000200", "", "C001", "U004",
		"login page crashes on submit", t0, label.BugReport, 0.9, true, nil, issueID)
}

func testClient(ing ingestUseCase, issues issueUseCase) *Client {
	return &Client{ingestSvc: ing, issueSvc: issues}
}
