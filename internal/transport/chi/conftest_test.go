package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/triage/internal/domain"
	dombatch "github.com/kailas-cloud/triage/internal/domain/batch"
	"github.com/kailas-cloud/triage/internal/domain/event"
	"github.com/kailas-cloud/triage/internal/domain/issue"
	"github.com/kailas-cloud/triage/internal/domain/label"
	"github.com/kailas-cloud/triage/internal/domain/message"
	domusage "github.com/kailas-cloud/triage/internal/domain/usage"
	healthuc "github.com/kailas-cloud/triage/internal/usecase/health"
	issuesuc "github.com/kailas-cloud/triage/internal/usecase/issues"
	"github.com/kailas-cloud/triage/internal/usecase/notify"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type mockIngester struct {
	ingestFn  func(ctx context.Context, ev event.Event) (*message.Message, error)
	batchFn   func(ctx context.Context, events []event.Event) []dombatch.Result
	resolveFn func(ctx context.Context, id string) (issue.Issue, error)
}

func (m *mockIngester) Ingest(ctx context.Context, ev event.Event) (*message.Message, error) {
	return m.ingestFn(ctx, ev)
}

func (m *mockIngester) IngestBatch(ctx context.Context, events []event.Event) []dombatch.Result {
	return m.batchFn(ctx, events)
}

func (m *mockIngester) Resolve(ctx context.Context, id string) (issue.Issue, error) {
	return m.resolveFn(ctx, id)
}

type mockQueue struct {
	submitted []event.Event
	err       error
}

func (m *mockQueue) Submit(ev event.Event) error {
	if m.err != nil {
		return m.err
	}
	m.submitted = append(m.submitted, ev)
	return nil
}

type mockIssues struct {
	listFn     func(ctx context.Context, status issue.Status, offset, limit int) (issuesuc.Page, error)
	getFn      func(ctx context.Context, id string) (issue.Issue, error)
	messagesFn func(ctx context.Context, id string, limit int) ([]message.Message, error)
}

func (m *mockIssues) List(ctx context.Context, status issue.Status, offset, limit int) (issuesuc.Page, error) {
	return m.listFn(ctx, status, offset, limit)
}

func (m *mockIssues) Get(ctx context.Context, id string) (issue.Issue, error) {
	return m.getFn(ctx, id)
}

func (m *mockIssues) Messages(ctx context.Context, id string, limit int) ([]message.Message, error) {
	return m.messagesFn(ctx, id, limit)
}

type mockUsage struct {
	report domusage.Report
	got    domusage.Period
}

func (m *mockUsage) GetReport(_ context.Context, p domusage.Period) domusage.Report {
	m.got = p
	return m.report
}

type mockHealth struct {
	report healthuc.Report
}

func (m *mockHealth) Check(context.Context) healthuc.Report { return m.report }

type testDeps struct {
	ingester *mockIngester
	queue    *mockQueue
	issues   *mockIssues
	usage    *mockUsage
	health   *mockHealth
	hub      *notify.Hub
}

func newTestDeps() *testDeps {
	return &testDeps{
		ingester: &mockIngester{
			ingestFn: func(context.Context, event.Event) (*message.Message, error) { return nil, nil },
			batchFn:  func(context.Context, []event.Event) []dombatch.Result { return nil },
			resolveFn: func(context.Context, string) (issue.Issue, error) {
				return issue.Issue{}, domain.ErrIssueNotFound
			},
		},
		queue: &mockQueue{},
		issues: &mockIssues{
			listFn: func(context.Context, issue.Status, int, int) (issuesuc.Page, error) { return issuesuc.Page{}, nil },
			getFn: func(context.Context, string) (issue.Issue, error) {
				return issue.Issue{}, domain.ErrIssueNotFound
			},
			messagesFn: func(context.Context, string, int) ([]message.Message, error) { return nil, nil },
		},
		usage:  &mockUsage{},
		health: &mockHealth{report: healthuc.Report{Status: healthuc.Healthy, Checks: map[string]healthuc.CheckResult{}}},
		hub:    notify.NewHub(),
	}
}

func (d *testDeps) server() *Server {
	return NewServer(d.ingester, d.queue, d.issues, d.usage, d.health, d.hub, zap.NewNop())
}

func (d *testDeps) router(cfg RouterConfig) http.Handler {
	return NewRouter(d.server(), cfg, zap.NewNop())
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rr.Body.String())
	}
	return v
}

func testIssue(t *testing.T) issue.Issue {
	t.Helper()
	iss, err := issue.New("Login crash", "App crashes on login", "", label.BugReport, t0)
	if err != nil {
		t.Fatalf("issue.New: %v", err)
	}
	return iss
}

func testMessage(t *testing.T, issueID string) message.Message {
	t.Helper()
	ev, err := event.New("1714564800.000100", "", "C1", "U1", "app crashes on login", t0)
	if err != nil {
		t.Fatalf("event.New: %v", err)
	}
	return message.New(ev, label.BugReport, 0.9, nil, issueID)
}
