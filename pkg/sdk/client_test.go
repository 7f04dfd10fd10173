package triage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew_RequiresStorage(t *testing.T) {
	_, err := New(context.Background())
	if err == nil {
		t.Fatal("expected error without storage option")
	}
}

func TestNew_RejectsBadDimensions(t *testing.T) {
	_, err := New(context.Background(), WithSQLite(filepath.Join(t.TempDir(), "t.db")), WithDimensions(-1))
	if err == nil {
		t.Fatal("expected error for negative dimensions")
	}
}

func newSQLiteClient(t *testing.T, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithSQLite(filepath.Join(t.TempDir(), "triage.db")), WithDimensions(64)}, opts...)
	c, err := New(context.Background(), opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestClient_SQLite_ThreadFlow(t *testing.T) {
	ctx := context.Background()
	c := newSQLiteClient(t)

	root, err := c.Ingest(ctx, Event{
		ExternalID: "1714564800.000100", Channel: "C001", Author: "U004",
		Text: "Login page crashes with an error when I click submit", Timestamp: t0,
	})
	if err != nil {
		t.Fatalf("ingest root: %v", err)
	}
	if root == nil || root.IssueID == "" {
		t.Fatalf("root = %+v, want stored message", root)
	}

	reply, err := c.Ingest(ctx, Event{
		ExternalID: "1714564810.000200", ThreadParentID: "1714564800.000100", Channel: "C001", Author: "U001",
		Text: "Still seeing the crash after the retry, same error", Timestamp: t0.Add(10 * time.Second),
	})
	if err != nil {
		t.Fatalf("ingest reply: %v", err)
	}
	if reply == nil || reply.IssueID != root.IssueID {
		t.Fatalf("reply = %+v, want issue %s", reply, root.IssueID)
	}

	msgs, err := c.Issues().Messages(ctx, root.IssueID, 0)
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Errorf("messages = %d, want 2", len(msgs))
	}

	is, err := c.Issues().Get(ctx, root.IssueID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if is.Classification != LabelBugReport || is.Status != StatusOpen {
		t.Errorf("issue = %+v", is)
	}
}

func TestClient_SQLite_DuplicateAndIrrelevant(t *testing.T) {
	ctx := context.Background()
	c := newSQLiteClient(t)

	ev := Event{ExternalID: "1.1", Channel: "C001", Text: "export fails with an error", Timestamp: t0}
	first, err := c.Ingest(ctx, ev)
	if err != nil || first == nil {
		t.Fatalf("first = %+v, %v", first, err)
	}
	again, err := c.Ingest(ctx, ev)
	if err != nil || again != nil {
		t.Errorf("redelivery = %+v, %v; want nil, nil", again, err)
	}

	lunch, err := c.Ingest(ctx, Event{ExternalID: "1.2", Channel: "C004", Text: "Anyone want to grab lunch?", Timestamp: t0})
	if err != nil || lunch != nil {
		t.Errorf("irrelevant = %+v, %v; want nil, nil", lunch, err)
	}

	page, err := c.Issues().List(ctx, "", 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 1 {
		t.Errorf("total = %d, want 1", page.Total)
	}
}

func TestClient_SQLite_ResolveNotifies(t *testing.T) {
	ctx := context.Background()
	c := newSQLiteClient(t)

	ch, cancel := c.Subscribe()
	defer cancel()

	msg, err := c.Ingest(ctx, Event{ExternalID: "2.1", Channel: "C001", Text: "dashboard bug: charts are empty", Timestamp: t0})
	if err != nil || msg == nil {
		t.Fatalf("ingest = %+v, %v", msg, err)
	}
	is, err := c.Issues().Resolve(ctx, msg.IssueID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if is.Status != StatusClosed {
		t.Errorf("status = %q, want closed", is.Status)
	}

	var kinds []NotificationKind
	timeout := time.After(2 * time.Second)
	for len(kinds) < 2 {
		select {
		case n := <-ch:
			kinds = append(kinds, n.Kind)
		case <-timeout:
			t.Fatalf("notifications = %v, want 2", kinds)
		}
	}
	if kinds[0] != NotifyNewMessage || kinds[1] != NotifyIssueResolved {
		t.Errorf("kinds = %v", kinds)
	}

	if _, err := c.Issues().Resolve(ctx, "missing"); !errors.Is(err, ErrIssueNotFound) {
		t.Errorf("resolve missing: %v", err)
	}
}

func TestClient_SQLite_HealthAndUsage(t *testing.T) {
	ctx := context.Background()
	c := newSQLiteClient(t, WithDailyTokenLimit(1000))

	if err := c.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	h := c.Health(ctx)
	if h.Status != HealthOK || h.Checks["database"] != "ok" || !h.Serving() {
		t.Errorf("health = %+v", h)
	}

	u := c.Usage(ctx, PeriodDay)
	if u.Period != PeriodDay || len(u.Budgets) != 1 {
		t.Fatalf("usage = %+v", u)
	}
	if u.Budgets[0].TokensLimit != 1000 || u.Budgets[0].IsExhausted {
		t.Errorf("budget = %+v", u.Budgets[0])
	}
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) (EmbeddingResult, error) {
	return EmbeddingResult{}, errors.New("provider down")
}

func TestClient_SQLite_EmbedderFailureStillStores(t *testing.T) {
	c := newSQLiteClient(t, WithEmbedder(failingEmbedder{}))

	msg, err := c.Ingest(context.Background(), Event{ExternalID: "3.1", Channel: "C001", Text: "checkout error 500", Timestamp: t0})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if msg == nil || msg.IssueID == "" {
		t.Errorf("msg = %+v, want stored without vector", msg)
	}
}

type hangingEmbedder struct{}

func (hangingEmbedder) Embed(ctx context.Context, _ string) (EmbeddingResult, error) {
	<-ctx.Done()
	return EmbeddingResult{}, ctx.Err()
}

func TestClient_SQLite_EmbedTimeout(t *testing.T) {
	c := newSQLiteClient(t, WithEmbedder(hangingEmbedder{}), WithEmbedTimeout(20*time.Millisecond))

	start := time.Now()
	msg, err := c.Ingest(context.Background(), Event{ExternalID: "4.1", Channel: "C001", Text: "checkout error 500", Timestamp: t0})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if msg == nil || msg.IssueID == "" {
		t.Errorf("msg = %+v, want stored without vector", msg)
	}
	if d := time.Since(start); d > 2*time.Second {
		t.Errorf("ingest took %v", d)
	}
}

type scriptedCompleter struct{ reply string }

func (s scriptedCompleter) Complete(context.Context, string, string) (Completion, error) {
	return Completion{Text: s.reply, InputTokens: 10, OutputTokens: 5}, nil
}

func TestClient_SQLite_ClassifierCompleter(t *testing.T) {
	c := newSQLiteClient(t, WithClassifierCompleter(scriptedCompleter{
		reply: `{"label":"feature_request","is_relevant":true,"confidence":0.7,"summary":"Dark mode"}`,
	}))

	msg, err := c.Ingest(context.Background(), Event{ExternalID: "4.1", Channel: "C002", Text: "please support dark mode", Timestamp: t0})
	if err != nil || msg == nil {
		t.Fatalf("ingest = %+v, %v", msg, err)
	}
	if msg.Classification != LabelFeatureRequest {
		t.Errorf("label = %q, want feature_request", msg.Classification)
	}
}

func TestClient_Prometheus(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := newSQLiteClient(t, WithPrometheus(reg))

	_, _ = c.Ingest(context.Background(), Event{ExternalID: "5.1", Channel: "C", Text: "lunch?"})
	_, _ = c.Ingest(context.Background(), Event{ExternalID: "5.2", Channel: "C"})

	if got := testutil.ToFloat64(c.obs.metrics.operations.WithLabelValues("ingest", "ignored")); got != 1 {
		t.Errorf("ignored = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.obs.metrics.operations.WithLabelValues("ingest", "error")); got != 1 {
		t.Errorf("error = %v, want 1", got)
	}
}
