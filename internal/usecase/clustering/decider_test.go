package clustering

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kailas-cloud/triage/internal/domain"
	"github.com/kailas-cloud/triage/internal/domain/issue"
	"github.com/kailas-cloud/triage/internal/domain/label"
	"github.com/kailas-cloud/triage/internal/domain/message"
	"github.com/kailas-cloud/triage/internal/usecase/scoring"
	"github.com/kailas-cloud/triage/internal/vectorindex"
)

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// --- fakes ---

type fakeMessages struct {
	byExternalFn func(ctx context.Context, externalID string) (message.Message, error)
	latestFn     func(ctx context.Context, channel, exclude string) (message.Message, error)
}

func (f *fakeMessages) MessageByExternalID(ctx context.Context, externalID string) (message.Message, error) {
	if f.byExternalFn != nil {
		return f.byExternalFn(ctx, externalID)
	}
	return message.Message{}, domain.ErrMessageNotFound
}

func (f *fakeMessages) LatestInChannel(ctx context.Context, channel, exclude string) (message.Message, error) {
	if f.latestFn != nil {
		return f.latestFn(ctx, channel, exclude)
	}
	return message.Message{}, domain.ErrMessageNotFound
}

type fakeIssues struct{}

func (fakeIssues) GetIssue(_ context.Context, id string) (issue.Issue, error) {
	if id == "gone" {
		return issue.Issue{}, domain.ErrIssueNotFound
	}
	return issue.Reconstruct(id, "title "+id, "summary", label.BugReport, issue.StatusOpen, nil, nil, now, now), nil
}

type fakeIndex struct {
	calls int
	hits  []vectorindex.Hit
	err   error
}

func (f *fakeIndex) Search(context.Context, []float32, int) ([]vectorindex.Hit, error) {
	f.calls++
	return f.hits, f.err
}

type fakeFollowup struct {
	verdict domain.Followup
	err     error
	calls   int
}

func (f *fakeFollowup) IsFollowup(context.Context, string, time.Time, string, time.Time) (domain.Followup, error) {
	f.calls++
	return f.verdict, f.err
}

type fakeJudge struct {
	pick     string
	err      error
	calls    int
	lastSeen []domain.Candidate
}

func (f *fakeJudge) SelectIssue(_ context.Context, _ string, c []domain.Candidate, _ time.Time) (string, error) {
	f.calls++
	f.lastSeen = c
	return f.pick, f.err
}

type fixture struct {
	msgs     *fakeMessages
	index    *fakeIndex
	followup *fakeFollowup
	judge    *fakeJudge
	decider  *Decider
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		msgs:     &fakeMessages{},
		index:    &fakeIndex{},
		followup: &fakeFollowup{},
		judge:    &fakeJudge{},
	}
	f.decider = New(f.msgs, fakeIssues{}, f.index, scoring.NewScorer(scoring.DefaultWeights()),
		f.followup, f.judge, DefaultConfig(), nil)
	return f
}

func hit(id string, l label.Label, vec ...float32) vectorindex.Hit {
	return vectorindex.Hit{Entry: vectorindex.Entry{IssueID: id, Vector: vec, Label: l, LastUpdated: now}}
}

func stored(extID, issueID, text string, at time.Time) message.Message {
	return message.Reconstruct("m-"+extID, extID, "", "C1", "U1", text, at,
		label.BugReport, 0.9, true, []float32{1, 0}, issueID)
}

const longText = "the login page crashes when I click submit"

func input(text string) Input {
	return Input{
		ExternalID: "e-new", Channel: "C1", Text: text, At: now,
		Vector: []float32{1, 0}, Label: label.BugReport,
	}
}

// --- tests ---

func TestDecide_ThreadOverridesEverything(t *testing.T) {
	f := newFixture(t)
	f.msgs.byExternalFn = func(_ context.Context, id string) (message.Message, error) {
		if id != "parent" {
			t.Errorf("unexpected parent lookup: %s", id)
		}
		return stored("parent", "iss-thread", "original", now.Add(-time.Hour)), nil
	}
	in := input(longText)
	in.ThreadParentID = "parent"
	in.Vector = []float32{0, 1} // orthogonal to everything

	dec, err := f.decider.Decide(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec.IssueID != "iss-thread" || dec.Path != PathThread {
		t.Errorf("decision = %+v", dec)
	}
	if f.index.calls != 0 || f.followup.calls != 0 {
		t.Error("thread resolution must skip later states")
	}
}

func TestDecide_ThreadParentUnknownFallsThrough(t *testing.T) {
	f := newFixture(t)
	in := input(longText)
	in.ThreadParentID = "missing"

	dec, err := f.decider.Decide(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !dec.IsNew() || f.index.calls != 1 {
		t.Errorf("decision = %+v, index calls = %d", dec, f.index.calls)
	}
}

func TestDecide_FollowupAccepted(t *testing.T) {
	f := newFixture(t)
	f.msgs.latestFn = func(_ context.Context, channel, exclude string) (message.Message, error) {
		if channel != "C1" || exclude != "e-new" {
			t.Errorf("latest(%s, %s)", channel, exclude)
		}
		return stored("e-prev", "iss-x", "login is broken", now.Add(-5*time.Second)), nil
	}
	f.followup.verdict = domain.Followup{IsFollowup: true, Confidence: 0.9}

	dec, err := f.decider.Decide(context.Background(), input("yeah that one"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec.IssueID != "iss-x" || dec.Path != PathFollowup {
		t.Errorf("decision = %+v", dec)
	}
	if f.index.calls != 0 {
		t.Error("follow-up must resolve without candidate search")
	}
}

func TestDecide_FollowupBelowThresholdOrFailing(t *testing.T) {
	for name, fu := range map[string]*fakeFollowup{
		"low confidence": {verdict: domain.Followup{IsFollowup: true, Confidence: 0.59}},
		"oracle error":   {verdict: domain.Followup{IsFollowup: true, Confidence: 1}, err: errors.New("timeout")},
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			f.followup = fu
			f.decider = New(f.msgs, fakeIssues{}, f.index, scoring.NewScorer(scoring.DefaultWeights()),
				fu, f.judge, DefaultConfig(), nil)
			f.msgs.latestFn = func(context.Context, string, string) (message.Message, error) {
				return stored("e-prev", "iss-x", "earlier", now), nil
			}

			dec, err := f.decider.Decide(context.Background(), input(longText))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if dec.Path == PathFollowup {
				t.Errorf("must not merge: %+v", dec)
			}
		})
	}
}

func TestDecide_EmptyIndexCreatesNew(t *testing.T) {
	f := newFixture(t)
	dec, err := f.decider.Decide(context.Background(), input(longText))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !dec.IsNew() || dec.Path != PathNew {
		t.Errorf("decision = %+v", dec)
	}
}

func TestDecide_NoVectorSkipsSearch(t *testing.T) {
	f := newFixture(t)
	f.index.hits = []vectorindex.Hit{hit("issue-a", label.BugReport, 1, 0)}
	in := input(longText)
	in.Vector = nil
	in.MetadataVector = []float32{1, 0}

	dec, err := f.decider.Decide(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !dec.IsNew() || f.index.calls != 0 {
		t.Errorf("decision = %+v, search calls = %d", dec, f.index.calls)
	}
}

func TestDecide_HighConfidence(t *testing.T) {
	f := newFixture(t)
	f.index.hits = []vectorindex.Hit{hit("iss-a", label.BugReport, 1, 0)}

	in := input(longText)
	in.MetadataVector = []float32{1, 0}
	f.index.hits[0].MetadataVector = []float32{1, 0}

	dec, err := f.decider.Decide(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec.IssueID != "iss-a" || dec.Path != PathHighConfidence || dec.Band != BandHigh {
		t.Errorf("decision = %+v", dec)
	}
	if f.judge.calls != 0 {
		t.Error("high confidence must not call the oracle")
	}
}

func TestDecide_MediumEscalatesWithOneCandidate(t *testing.T) {
	f := newFixture(t)
	// semantic 1*0.3 + temporal 0.2 + label 0.15 = 0.65 would be high; drop the label match
	f.index.hits = []vectorindex.Hit{hit("iss-a", label.None, 1, 0), hit("iss-b", label.None, 0, 1)}
	f.judge.pick = "iss-a"

	in := input(longText)
	in.Label = label.None

	dec, err := f.decider.Decide(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec.Band != BandMedium {
		t.Fatalf("band = %v (score %v)", dec.Band, dec.Score)
	}
	if dec.IssueID != "iss-a" || dec.Path != PathOracleConfirm {
		t.Errorf("decision = %+v", dec)
	}
	if len(f.judge.lastSeen) != 1 || f.judge.lastSeen[0].IssueID != "iss-a" {
		t.Errorf("oracle saw %+v", f.judge.lastSeen)
	}
}

func TestDecide_OracleRejectsCreatesNew(t *testing.T) {
	f := newFixture(t)
	f.index.hits = []vectorindex.Hit{hit("iss-a", label.None, 1, 0)}
	f.judge.pick = ""
	in := input(longText)
	in.Label = label.None

	dec, err := f.decider.Decide(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !dec.IsNew() || f.judge.calls != 1 {
		t.Errorf("decision = %+v, judge calls = %d", dec, f.judge.calls)
	}
}

func TestDecide_OracleUnknownPickIgnored(t *testing.T) {
	f := newFixture(t)
	f.index.hits = []vectorindex.Hit{hit("iss-a", label.None, 1, 0)}
	f.judge.pick = "iss-elsewhere"
	in := input(longText)
	in.Label = label.None

	dec, err := f.decider.Decide(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !dec.IsNew() {
		t.Errorf("unknown pick must be treated as null: %+v", dec)
	}
}

func TestDecide_BelowLowBandSkipsOracle(t *testing.T) {
	f := newFixture(t)
	old := hit("iss-a", label.FeatureRequest, 0, 1)
	old.LastUpdated = now.Add(-30 * 24 * time.Hour)
	f.index.hits = []vectorindex.Hit{old}

	dec, err := f.decider.Decide(context.Background(), input(longText))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !dec.IsNew() || dec.Band != BandReject || f.judge.calls != 0 {
		t.Errorf("decision = %+v, judge calls = %d", dec, f.judge.calls)
	}
}

func TestDecide_ShortTextAsksOracleDirectly(t *testing.T) {
	f := newFixture(t)
	f.index.hits = []vectorindex.Hit{
		hit("iss-a", label.BugReport, 0, 1),
		hit("iss-b", label.FeatureRequest, 1, 0),
		hit("gone", label.BugReport, 1, 0),
	}
	f.judge.pick = "iss-a"

	dec, err := f.decider.Decide(context.Background(), input("login still broken"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec.IssueID != "iss-a" || dec.Path != PathShortText {
		t.Errorf("decision = %+v", dec)
	}
	// label filter keeps bug reports; the stale entry is skipped
	if len(f.judge.lastSeen) != 1 || f.judge.lastSeen[0].IssueID != "iss-a" {
		t.Errorf("oracle saw %+v", f.judge.lastSeen)
	}
}

func TestDecide_ShortTextNoPickFallsThroughToRerank(t *testing.T) {
	f := newFixture(t)
	f.index.hits = []vectorindex.Hit{hit("iss-a", label.BugReport, 1, 0)}
	f.index.hits[0].MetadataVector = []float32{1, 0}
	in := input("login still broken")
	in.MetadataVector = []float32{1, 0}

	dec, err := f.decider.Decide(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec.Path != PathHighConfidence || dec.IssueID != "iss-a" {
		t.Errorf("decision = %+v", dec)
	}
}

func TestFilterByLabel_NeverEmptiesCandidates(t *testing.T) {
	hits := []vectorindex.Hit{hit("a", label.FeatureRequest, 1, 0), hit("b", label.None, 1, 0)}
	if got := filterByLabel(hits, label.BugReport); len(got) != 2 {
		t.Errorf("expected unfiltered set, got %d", len(got))
	}
	if got := filterByLabel(hits, label.FeatureRequest); len(got) != 1 || got[0].IssueID != "a" {
		t.Errorf("expected only a, got %+v", got)
	}
}

func TestDecide_StorageErrorsPropagate(t *testing.T) {
	f := newFixture(t)
	f.msgs.latestFn = func(context.Context, string, string) (message.Message, error) {
		return message.Message{}, errors.New("connection refused")
	}
	if _, err := f.decider.Decide(context.Background(), input(longText)); err == nil {
		t.Fatal("expected storage error")
	}

	f = newFixture(t)
	f.index.err = errors.New("index down")
	if _, err := f.decider.Decide(context.Background(), input(longText)); err == nil {
		t.Fatal("expected index error")
	}
}
