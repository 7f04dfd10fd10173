package chi

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/kailas-cloud/triage/internal/domain"
	dombatch "github.com/kailas-cloud/triage/internal/domain/batch"
	"github.com/kailas-cloud/triage/internal/domain/event"
	"github.com/kailas-cloud/triage/internal/domain/issue"
	"github.com/kailas-cloud/triage/internal/domain/message"
	domusage "github.com/kailas-cloud/triage/internal/domain/usage"
	healthuc "github.com/kailas-cloud/triage/internal/usecase/health"
	issuesuc "github.com/kailas-cloud/triage/internal/usecase/issues"
	"github.com/kailas-cloud/triage/internal/usecase/notify"
)

func TestCreateEvent_Stored(t *testing.T) {
	d := newTestDeps()
	var got event.Event
	d.ingester.ingestFn = func(_ context.Context, ev event.Event) (*message.Message, error) {
		got = ev
		m := testMessage(t, "issue-1")
		return &m, nil
	}

	rr := do(t, d.router(RouterConfig{}), http.MethodPost, "/events", eventRequest{
		ExternalID: "e1", Channel: "C1", Author: "U1", Text: "app crashes on login", Timestamp: t0,
	})

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	if got.ExternalID() != "e1" || !got.Timestamp().Equal(t0) {
		t.Errorf("event passed to ingester = %+v", got)
	}
	resp := decode[messageResponse](t, rr)
	if resp.IssueID != "issue-1" || resp.Classification != "bug_report" {
		t.Errorf("response = %+v", resp)
	}
	if loc := rr.Header().Get("Location"); loc != "/issues/issue-1/messages" {
		t.Errorf("Location = %q", loc)
	}
}

func TestCreateEvent_Ignored(t *testing.T) {
	d := newTestDeps()
	rr := do(t, d.router(RouterConfig{}), http.MethodPost, "/events", eventRequest{
		ExternalID: "e1", Channel: "C1", Text: "hey all",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if resp := decode[statusResponse](t, rr); resp.Status != "ignored" {
		t.Errorf("status = %q", resp.Status)
	}
}

func TestCreateEvent_InvalidEvent(t *testing.T) {
	d := newTestDeps()
	rr := do(t, d.router(RouterConfig{}), http.MethodPost, "/events", eventRequest{ExternalID: "e1", Channel: "C1"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
	if resp := decode[errorResponse](t, rr); resp.Code != codeValidationFailed {
		t.Errorf("code = %q", resp.Code)
	}
}

func TestCreateEvent_MalformedJSON(t *testing.T) {
	d := newTestDeps()
	rr := do(t, d.router(RouterConfig{}), http.MethodPost, "/events", "{not json")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
	if resp := decode[errorResponse](t, rr); resp.Code != codeBadRequest {
		t.Errorf("code = %q", resp.Code)
	}
}

func TestCreateEvent_PersistFailureIsRetryable(t *testing.T) {
	d := newTestDeps()
	d.ingester.ingestFn = func(context.Context, event.Event) (*message.Message, error) {
		return nil, errors.New("save message: connection refused")
	}
	rr := do(t, d.router(RouterConfig{}), http.MethodPost, "/events", eventRequest{
		ExternalID: "e1", Channel: "C1", Text: "app crashes",
	})
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rr.Code)
	}
	resp := decode[errorResponse](t, rr)
	if strings.Contains(resp.Message, "connection refused") {
		t.Errorf("internal detail leaked: %q", resp.Message)
	}
}

func TestCreateEventBatch_MixedResults(t *testing.T) {
	d := newTestDeps()
	var passed []string
	d.ingester.batchFn = func(_ context.Context, events []event.Event) []dombatch.Result {
		out := make([]dombatch.Result, len(events))
		for i, ev := range events {
			passed = append(passed, ev.ExternalID())
			switch ev.ExternalID() {
			case "e1":
				out[i] = dombatch.NewStored("e1", "m1", "i1")
			case "e3":
				out[i] = dombatch.NewIgnored("e3")
			default:
				out[i] = dombatch.NewError(ev.ExternalID(), errors.New("boom"))
			}
		}
		return out
	}

	rr := do(t, d.router(RouterConfig{}), http.MethodPost, "/events/batch", batchRequest{Events: []eventRequest{
		{ExternalID: "e1", Channel: "C1", Text: "login crash"},
		{ExternalID: "e2", Channel: "C1"},
		{ExternalID: "e3", Channel: "C1", Text: "hey"},
		{ExternalID: "e4", Channel: "C1", Text: "billing"},
	}})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	if strings.Join(passed, ",") != "e1,e3,e4" {
		t.Errorf("ingested = %v", passed)
	}

	resp := decode[batchResponse](t, rr)
	if resp.Succeeded != 2 || resp.Failed != 2 {
		t.Errorf("succeeded=%d failed=%d", resp.Succeeded, resp.Failed)
	}
	want := []string{"stored", "error", "ignored", "error"}
	for i, item := range resp.Items {
		if item.Status != want[i] {
			t.Errorf("item %d status = %q, want %q", i, item.Status, want[i])
		}
	}
	if resp.Items[1].Error != domain.ErrInvalidEvent.Error() {
		t.Errorf("invalid item error = %q", resp.Items[1].Error)
	}
	if resp.Items[3].Error != "internal error" {
		t.Errorf("failed item error = %q", resp.Items[3].Error)
	}
}

func TestCreateEventBatch_Limits(t *testing.T) {
	d := newTestDeps()
	h := d.router(RouterConfig{})

	if rr := do(t, h, http.MethodPost, "/events/batch", batchRequest{}); rr.Code != http.StatusBadRequest {
		t.Errorf("empty batch status = %d", rr.Code)
	}

	big := make([]eventRequest, 101)
	for i := range big {
		big[i] = eventRequest{ExternalID: strconv.Itoa(i), Channel: "C1", Text: "x"}
	}
	if rr := do(t, h, http.MethodPost, "/events/batch", batchRequest{Events: big}); rr.Code != http.StatusBadRequest {
		t.Errorf("oversized batch status = %d", rr.Code)
	}
}

func TestListIssues(t *testing.T) {
	d := newTestDeps()
	iss := testIssue(t)
	var gotStatus issue.Status
	var gotOffset, gotLimit int
	d.issues.listFn = func(_ context.Context, status issue.Status, offset, limit int) (issuesuc.Page, error) {
		gotStatus, gotOffset, gotLimit = status, offset, limit
		return issuesuc.Page{Items: []issue.Issue{iss}, Total: 7, Offset: offset, Limit: limit}, nil
	}

	rr := do(t, d.router(RouterConfig{}), http.MethodGet, "/issues?status=open&offset=5&limit=1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if gotStatus != issue.StatusOpen || gotOffset != 5 || gotLimit != 1 {
		t.Errorf("query = %q %d %d", gotStatus, gotOffset, gotLimit)
	}
	resp := decode[issueListResponse](t, rr)
	if resp.Total != 7 || len(resp.Items) != 1 || resp.Items[0].Title != "Login crash" {
		t.Errorf("response = %+v", resp)
	}
}

func TestListIssues_BadParams(t *testing.T) {
	d := newTestDeps()
	d.issues.listFn = func(context.Context, issue.Status, int, int) (issuesuc.Page, error) {
		return issuesuc.Page{}, fmt.Errorf("%w: unknown status", domain.ErrInvalidQuery)
	}
	h := d.router(RouterConfig{})

	for _, path := range []string{"/issues?limit=abc", "/issues?offset=x", "/issues?status=weird"} {
		if rr := do(t, h, http.MethodGet, path, nil); rr.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d", path, rr.Code)
		}
	}
}

func TestGetIssue_NotFound(t *testing.T) {
	d := newTestDeps()
	rr := do(t, d.router(RouterConfig{}), http.MethodGet, "/issues/nope", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rr.Code)
	}
	if resp := decode[errorResponse](t, rr); resp.Code != codeIssueNotFound {
		t.Errorf("code = %q", resp.Code)
	}
}

func TestListIssueMessages(t *testing.T) {
	d := newTestDeps()
	var gotID string
	d.issues.messagesFn = func(_ context.Context, id string, _ int) ([]message.Message, error) {
		gotID = id
		return []message.Message{testMessage(t, id)}, nil
	}

	rr := do(t, d.router(RouterConfig{}), http.MethodGet, "/issues/abc/messages", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if gotID != "abc" {
		t.Errorf("id = %q", gotID)
	}
	items := decode[[]messageResponse](t, rr)
	if len(items) != 1 || items[0].IssueID != "abc" || items[0].Channel != "C1" {
		t.Errorf("items = %+v", items)
	}
}

func TestResolveIssue(t *testing.T) {
	d := newTestDeps()
	iss := testIssue(t)
	iss.Close(t0.Add(time.Hour))
	d.ingester.resolveFn = func(_ context.Context, id string) (issue.Issue, error) {
		if id != iss.ID() {
			return issue.Issue{}, domain.ErrIssueNotFound
		}
		return iss, nil
	}
	h := d.router(RouterConfig{})

	rr := do(t, h, http.MethodPut, "/issues/"+iss.ID()+"/resolve", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if resp := decode[issueResponse](t, rr); resp.Status != string(issue.StatusClosed) {
		t.Errorf("status = %q", resp.Status)
	}

	if rr := do(t, h, http.MethodPut, "/issues/unknown/resolve", nil); rr.Code != http.StatusNotFound {
		t.Errorf("unknown issue status = %d", rr.Code)
	}
	if rr := do(t, h, http.MethodGet, "/issues/"+iss.ID()+"/resolve", nil); rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET resolve status = %d", rr.Code)
	}
}

func TestGetUsage(t *testing.T) {
	d := newTestDeps()
	start, end := domusage.PeriodDay.Bounds(t0)
	d.usage.report = domusage.NewReport(domusage.PeriodDay, start, end, []domusage.Budget{
		domusage.NewBudget("openai", 1000, 1000, 0, end),
		domusage.NewBudget("anthropic", 0, 50, -1, time.Time{}),
	})
	h := d.router(RouterConfig{})

	rr := do(t, h, http.MethodGet, "/usage?period=day", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if d.usage.got != domusage.PeriodDay {
		t.Errorf("period = %q", d.usage.got)
	}
	resp := decode[usageResponse](t, rr)
	if resp.TotalUsed != 1050 || len(resp.Budgets) != 2 {
		t.Fatalf("response = %+v", resp)
	}
	if !resp.Budgets[0].IsExhausted || resp.Budgets[0].ResetsAt == nil {
		t.Errorf("openai budget = %+v", resp.Budgets[0])
	}
	if resp.Budgets[1].IsExhausted || resp.Budgets[1].ResetsAt != nil {
		t.Errorf("anthropic budget = %+v", resp.Budgets[1])
	}

	do(t, h, http.MethodGet, "/usage", nil)
	if d.usage.got != domusage.PeriodMonth {
		t.Errorf("default period = %q", d.usage.got)
	}
	if rr := do(t, h, http.MethodGet, "/usage?period=year", nil); rr.Code != http.StatusBadRequest {
		t.Errorf("bad period status = %d", rr.Code)
	}
}

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		status healthuc.Status
		want   int
	}{
		{healthuc.Healthy, http.StatusOK},
		{healthuc.Degraded, http.StatusServiceUnavailable},
		{healthuc.Unhealthy, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			d := newTestDeps()
			d.health.report = healthuc.Report{
				Status:    tt.status,
				Checks:    map[string]healthuc.CheckResult{"database": healthuc.CheckOK},
				IndexSize: 3,
			}
			rr := do(t, d.router(RouterConfig{}), http.MethodGet, "/health", nil)
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
			resp := decode[healthResponse](t, rr)
			if resp.Status != string(tt.status) || resp.IndexSize != 3 || resp.Checks["database"] != "ok" {
				t.Errorf("response = %+v", resp)
			}
		})
	}
}

func TestRouter_NotFoundIsJSON(t *testing.T) {
	d := newTestDeps()
	rr := do(t, d.router(RouterConfig{}), http.MethodGet, "/nope", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rr.Code)
	}
	if resp := decode[errorResponse](t, rr); resp.Code != codeNotFound {
		t.Errorf("code = %q", resp.Code)
	}
}

func TestRouter_RequestIDHeader(t *testing.T) {
	d := newTestDeps()
	rr := do(t, d.router(RouterConfig{}), http.MethodGet, "/health", nil)
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header missing")
	}
}

func TestRouter_AuthAppliesToAPI(t *testing.T) {
	d := newTestDeps()
	h := d.router(RouterConfig{APIKeys: []string{"secret"}})

	if rr := do(t, h, http.MethodGet, "/issues", nil); rr.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated /issues status = %d", rr.Code)
	}
	if rr := do(t, h, http.MethodPost, "/slack/events", `{"type":"url_verification","challenge":"c"}`); rr.Code != http.StatusOK {
		t.Errorf("/slack/events status = %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/issues", http.NoBody)
	req.Header.Set("Authorization", "Bearer secret")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("authenticated /issues status = %d", rr.Code)
	}
}

func TestRouter_CORSPreflight(t *testing.T) {
	d := newTestDeps()
	h := d.router(RouterConfig{APIKeys: []string{"secret"}, CORSOrigins: []string{"http://dash.local"}})

	req := httptest.NewRequest(http.MethodOptions, "/issues", http.NoBody)
	req.Header.Set("Origin", "http://dash.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://dash.local" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
	if rr.Code == http.StatusUnauthorized {
		t.Error("preflight must not require auth")
	}
}

func TestRouter_RecoversPanics(t *testing.T) {
	d := newTestDeps()
	d.issues.listFn = func(context.Context, issue.Status, int, int) (issuesuc.Page, error) {
		panic("boom")
	}
	rr := do(t, d.router(RouterConfig{}), http.MethodGet, "/issues", nil)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
	if resp := decode[errorResponse](t, rr); resp.Code != codeInternalError {
		t.Errorf("code = %q", resp.Code)
	}
}

func TestStreamEvents(t *testing.T) {
	d := newTestDeps()
	srv := httptest.NewServer(d.router(RouterConfig{}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events/stream", http.NoBody)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("GET /events/stream: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	// The subscription is registered before headers are flushed.
	if d.hub.Subscribers() != 1 {
		t.Fatalf("Subscribers = %d", d.hub.Subscribers())
	}
	d.hub.Publish(notify.Notification{Kind: notify.KindIssueResolved, IssueID: "i1"})

	sc := bufio.NewScanner(resp.Body)
	var data string
	for sc.Scan() {
		if line := sc.Text(); strings.HasPrefix(line, "data: ") {
			data = strings.TrimPrefix(line, "data: ")
			break
		}
	}
	if !strings.Contains(data, `"type":"issue_resolved"`) || !strings.Contains(data, `"issue_id":"i1"`) {
		t.Errorf("data = %q", data)
	}

	cancel()
	deadline := time.Now().Add(2 * time.Second)
	for d.hub.Subscribers() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if d.hub.Subscribers() != 0 {
		t.Errorf("subscriber leaked after disconnect")
	}
}

func TestStreamEvents_CloseStreams(t *testing.T) {
	d := newTestDeps()
	s := d.server()
	srv := httptest.NewServer(NewRouter(s, RouterConfig{}, s.logger))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/events/stream")
	if err != nil {
		t.Fatalf("GET /events/stream: %v", err)
	}
	defer resp.Body.Close()

	s.CloseStreams()
	s.CloseStreams()

	done := make(chan struct{})
	go func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream still open after CloseStreams")
	}
}
