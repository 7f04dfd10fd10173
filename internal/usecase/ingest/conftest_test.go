package ingest

import (
	"context"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/triage/internal/domain"
	"github.com/kailas-cloud/triage/internal/domain/event"
	"github.com/kailas-cloud/triage/internal/domain/issue"
	"github.com/kailas-cloud/triage/internal/domain/label"
	"github.com/kailas-cloud/triage/internal/domain/message"
	"github.com/kailas-cloud/triage/internal/metrics"
	"github.com/kailas-cloud/triage/internal/usecase/centroid"
	"github.com/kailas-cloud/triage/internal/usecase/clustering"
	"github.com/kailas-cloud/triage/internal/usecase/notify"
	"github.com/kailas-cloud/triage/internal/usecase/scoring"
	"github.com/kailas-cloud/triage/internal/vectorindex"
)

const testDim = 4

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestMain(m *testing.M) {
	metrics.RegisterPipelineMetrics()
	os.Exit(m.Run())
}

// --- store ---

type memStore struct {
	mu       sync.Mutex
	issues   map[string]issue.Issue
	messages []message.Message

	saveIssueErr   error
	saveMessageErr error
	lookupErr      error
}

func newMemStore() *memStore {
	return &memStore{issues: make(map[string]issue.Issue)}
}

func (s *memStore) SaveIssue(_ context.Context, iss *issue.Issue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveIssueErr != nil {
		return s.saveIssueErr
	}
	s.issues[iss.ID()] = *iss
	return nil
}

func (s *memStore) GetIssue(_ context.Context, id string) (issue.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	iss, ok := s.issues[id]
	if !ok {
		return issue.Issue{}, domain.ErrIssueNotFound
	}
	return iss, nil
}

func (s *memStore) IssuesWithVector(context.Context) ([]issue.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []issue.Issue
	for _, iss := range s.issues {
		if iss.HasVector() {
			out = append(out, iss)
		}
	}
	return out, nil
}

func (s *memStore) ListIssues(_ context.Context, status issue.Status, offset, limit int) ([]issue.Issue, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []issue.Issue
	for _, iss := range s.issues {
		if status == "" || iss.Status() == status {
			out = append(out, iss)
		}
	}
	total := len(out)
	if offset >= total {
		return nil, total, nil
	}
	return out[offset:min(total, offset+limit)], total, nil
}

func (s *memStore) SaveMessage(_ context.Context, m *message.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveMessageErr != nil {
		return s.saveMessageErr
	}
	for i := range s.messages {
		if s.messages[i].ExternalID() == m.ExternalID() {
			return domain.ErrDuplicateMessage
		}
	}
	s.messages = append(s.messages, *m)
	return nil
}

func (s *memStore) MessageByExternalID(_ context.Context, externalID string) (message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lookupErr != nil {
		return message.Message{}, s.lookupErr
	}
	for i := range s.messages {
		if s.messages[i].ExternalID() == externalID {
			return s.messages[i], nil
		}
	}
	return message.Message{}, domain.ErrMessageNotFound
}

func (s *memStore) LatestInChannel(_ context.Context, channel, exclude string) (message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *message.Message
	for i := range s.messages {
		m := &s.messages[i]
		if m.Channel() != channel || m.ExternalID() == exclude {
			continue
		}
		if latest == nil || !m.Timestamp().Before(latest.Timestamp()) {
			latest = m
		}
	}
	if latest == nil {
		return message.Message{}, domain.ErrMessageNotFound
	}
	return *latest, nil
}

func (s *memStore) MessagesForIssue(_ context.Context, issueID string, limit int) ([]message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []message.Message
	for i := range s.messages {
		if s.messages[i].IssueID() == issueID {
			out = append(out, s.messages[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp().Before(out[j].Timestamp()) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) issueCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.issues)
}

func (s *memStore) messageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// --- oracles ---

// topicEmbedder maps texts to axis vectors by keyword so similarity is predictable.
type topicEmbedder struct {
	calls atomic.Int64
	err   error
	// hold runs first and may block; a non-nil error is returned as is.
	hold func(ctx context.Context, text string) error
}

func (e *topicEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	e.calls.Add(1)
	if e.hold != nil {
		if err := e.hold(ctx, text); err != nil {
			return domain.EmbeddingResult{}, err
		}
	}
	if e.err != nil {
		return domain.EmbeddingResult{}, e.err
	}
	v := make([]float32, testDim)
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "crash"), strings.Contains(lower, "login"):
		v[0] = 1
	case strings.Contains(lower, "invoice"), strings.Contains(lower, "billing"):
		v[1] = 1
	case strings.Contains(lower, "yeah"):
		v[3] = 1
	default:
		v[2] = 1
	}
	return domain.EmbeddingResult{Embedding: v, TotalTokens: len(strings.Fields(text))}, nil
}

type fakeClassifier struct {
	fn func(ctx context.Context, text string) (domain.Classification, error)
}

func (f *fakeClassifier) Classify(ctx context.Context, text string) (domain.Classification, error) {
	if f.fn != nil {
		return f.fn(ctx, text)
	}
	if strings.HasPrefix(strings.ToLower(text), "hey") {
		return domain.ClassificationFallback, nil
	}
	return domain.Classification{Label: label.BugReport, IsRelevant: true, Confidence: 0.9, Summary: "Login crash"}, nil
}

type fakeFollowup struct {
	calls   atomic.Int64
	verdict domain.Followup
}

func (f *fakeFollowup) IsFollowup(context.Context, string, time.Time, string, time.Time) (domain.Followup, error) {
	f.calls.Add(1)
	return f.verdict, nil
}

// countingIndex counts searches on top of the in-memory index.
type countingIndex struct {
	*vectorindex.Memory
	searches atomic.Int64
}

func (c *countingIndex) Search(ctx context.Context, v []float32, k int) ([]vectorindex.Hit, error) {
	c.searches.Add(1)
	return c.Memory.Search(ctx, v, k)
}

// --- harness ---

type harness struct {
	svc        *Service
	store      *memStore
	index      *countingIndex
	embedder   *topicEmbedder
	classifier *fakeClassifier
	followup   *fakeFollowup
	hub        *notify.Hub
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:      newMemStore(),
		index:      &countingIndex{Memory: vectorindex.NewMemory(testDim, zap.NewNop())},
		embedder:   &topicEmbedder{},
		classifier: &fakeClassifier{},
		followup:   &fakeFollowup{},
		hub:        notify.NewHub(),
	}
	dec := clustering.New(h.store, h.store, h.index, scoring.NewScorer(scoring.DefaultWeights()),
		h.followup, nil, clustering.DefaultConfig(), zap.NewNop())
	cen := centroid.New(h.store, centroid.Config{Dimensions: testDim}, zap.NewNop())
	h.svc = New(h.store, h.store, h.index, dec, cen, h.classifier, h.embedder, zap.NewNop()).
		WithDimensions(testDim).
		WithNotifier(h.hub)
	return h
}

func mustEvent(t *testing.T, id, channel, text string, at time.Time) event.Event {
	t.Helper()
	ev, err := event.New(id, "", channel, "U1", text, at)
	if err != nil {
		t.Fatalf("event.New: %v", err)
	}
	return ev
}

func mustReply(t *testing.T, id, parent, channel, text string, at time.Time) event.Event {
	t.Helper()
	ev, err := event.New(id, parent, channel, "U2", text, at)
	if err != nil {
		t.Fatalf("event.New: %v", err)
	}
	return ev
}
