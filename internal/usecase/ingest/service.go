// Package ingest runs the per-event pipeline: dedup check, classify, embed,
// cluster, persist, reindex.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/triage/internal/domain"
	"github.com/kailas-cloud/triage/internal/domain/event"
	"github.com/kailas-cloud/triage/internal/domain/issue"
	"github.com/kailas-cloud/triage/internal/domain/label"
	"github.com/kailas-cloud/triage/internal/domain/message"
	"github.com/kailas-cloud/triage/internal/logger"
	"github.com/kailas-cloud/triage/internal/metrics"
	"github.com/kailas-cloud/triage/internal/usecase/clustering"
	"github.com/kailas-cloud/triage/internal/usecase/dedup"
	"github.com/kailas-cloud/triage/internal/usecase/notify"
	"github.com/kailas-cloud/triage/internal/vectorindex"
)

// Outcome is how one event left the pipeline.
type Outcome string

// Pipeline outcomes, also used as metric labels.
const (
	OutcomeStored     Outcome = "stored"
	OutcomeDuplicate  Outcome = "duplicate"
	OutcomeIrrelevant Outcome = "irrelevant"
	OutcomeInvalid    Outcome = "invalid"
	OutcomeError      Outcome = "error"
)

// DefaultEmbedTimeout bounds a single embedding call.
const DefaultEmbedTimeout = 15 * time.Second

// Service is the ingestion entry point. It is safe for concurrent use.
type Service struct {
	issues     IssueRepository
	messages   MessageRepository
	index      VectorIndex
	decider    Decider
	centroid   CentroidMaintainer
	classifier domain.Classifier
	embedder   domain.Embedder
	dedup      DedupCache
	notifier   Notifier
	dim        int
	timeout    time.Duration
	logger     *zap.Logger

	// clusterMu serializes re-check, decide, create or update, persist,
	// centroid recompute and reindex across all events.
	clusterMu sync.Mutex
}

// New creates the ingestion service. classifier is expected to fail soft
// (oracle.SafeClassifier); errors it still returns are treated as irrelevant.
func New(
	issues IssueRepository, messages MessageRepository, index VectorIndex,
	decider Decider, centroid CentroidMaintainer,
	classifier domain.Classifier, embedder domain.Embedder, logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		issues:     issues,
		messages:   messages,
		index:      index,
		decider:    decider,
		centroid:   centroid,
		classifier: classifier,
		embedder:   embedder,
		dedup:      dedup.New(dedup.DefaultCapacity),
		timeout:    DefaultEmbedTimeout,
		logger:     logger,
	}
}

// WithDedup replaces the default recency cache.
func (s *Service) WithDedup(c DedupCache) *Service {
	if c != nil {
		s.dedup = c
	}
	return s
}

// WithNotifier publishes new messages and resolved issues to n.
func (s *Service) WithNotifier(n Notifier) *Service {
	s.notifier = n
	return s
}

// WithDimensions enforces the embedding dimension on every vector.
func (s *Service) WithDimensions(dim int) *Service {
	s.dim = dim
	return s
}

// WithEmbedTimeout bounds each embedding call. A call that runs out of time
// falls back to no vector.
func (s *Service) WithEmbedTimeout(d time.Duration) *Service {
	if d > 0 {
		s.timeout = d
	}
	return s
}

// Bootstrap loads every issue with a representative vector into the vector index.
// Call once at process start, before the first Ingest.
func (s *Service) Bootstrap(ctx context.Context) error {
	issues, err := s.issues.IssuesWithVector(ctx)
	if err != nil {
		return fmt.Errorf("load issues with vector: %w", err)
	}
	if err := s.index.Load(ctx, issues); err != nil {
		return fmt.Errorf("load vector index: %w", err)
	}
	return nil
}

// Ingest processes one event. It returns the stored message, or nil when the
// event was a duplicate or irrelevant. An error means the event was not stored
// and the delivery must not be acknowledged.
func (s *Service) Ingest(ctx context.Context, ev event.Event) (*message.Message, error) {
	start := time.Now()
	ctx = logger.WithFields(ctx, s.logger,
		zap.String("external_id", ev.ExternalID()),
		zap.String("channel", ev.Channel()),
	)

	res, err := s.process(ctx, ev)
	s.observe(ctx, res, err, time.Since(start))
	if err != nil {
		return nil, err
	}
	return res.msg, nil
}

// Resolve closes an issue. A later message assigned to it reopens it.
func (s *Service) Resolve(ctx context.Context, issueID string) (issue.Issue, error) {
	s.clusterMu.Lock()
	defer s.clusterMu.Unlock()

	iss, err := s.issues.GetIssue(ctx, issueID)
	if err != nil {
		return issue.Issue{}, fmt.Errorf("get issue: %w", err)
	}
	iss.Close(time.Now())
	if err := s.issues.SaveIssue(ctx, &iss); err != nil {
		return issue.Issue{}, fmt.Errorf("save issue: %w", err)
	}
	s.reindex(ctx, &iss)
	s.publish(notify.Notification{Kind: notify.KindIssueResolved, IssueID: iss.ID(), At: iss.UpdatedAt()})
	return iss, nil
}

// result carries what the canonical log line reports.
type result struct {
	outcome  Outcome
	msg      *message.Message
	decision clustering.Decision
	created  bool
}

// analysis is the unlocked, parallel part of the pipeline.
type analysis struct {
	cls      domain.Classification
	vector   []float32
	metadata []float32
	// issueMetadata embeds the metadata text of the issue this message would open.
	issueMetadata []float32
}

func (a analysis) relevant() bool {
	return a.cls.IsRelevant && a.cls.Label != label.Irrelevant && !a.cls.Label.IsZero()
}

func (s *Service) process(ctx context.Context, ev event.Event) (result, error) {
	id := ev.ExternalID()
	if id == "" || ev.Channel() == "" || ev.Text() == "" {
		return result{outcome: OutcomeInvalid}, fmt.Errorf("%w: external id, channel and text are required", domain.ErrInvalidEvent)
	}

	if s.dedup.Seen(id) {
		return result{outcome: OutcomeDuplicate}, nil
	}
	if dup, err := s.alreadyStored(ctx, id); err != nil {
		return result{}, err
	} else if dup {
		return result{outcome: OutcomeDuplicate}, nil
	}

	a, err := s.analyze(ctx, ev)
	if err != nil {
		return result{}, err
	}
	if !a.relevant() {
		s.dedup.Record(id)
		return result{outcome: OutcomeIrrelevant}, nil
	}

	res, err := s.cluster(ctx, ev, a)
	if err != nil {
		return res, err
	}
	s.dedup.Record(id)
	if res.outcome == OutcomeStored {
		s.publish(notify.Notification{
			Kind:      notify.KindNewMessage,
			IssueID:   res.msg.IssueID(),
			MessageID: res.msg.ID(),
			Channel:   res.msg.Channel(),
			Text:      res.msg.Text(),
			NewIssue:  res.created,
			At:        res.msg.Timestamp(),
		})
	}
	return res, nil
}

// alreadyStored reports whether a message with the external id is persisted,
// recording it in the dedup cache when it is.
func (s *Service) alreadyStored(ctx context.Context, externalID string) (bool, error) {
	_, err := s.messages.MessageByExternalID(ctx, externalID)
	switch {
	case err == nil:
		s.dedup.Record(externalID)
		return true, nil
	case errors.Is(err, domain.ErrMessageNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("lookup external id: %w", err)
	}
}

// analyze classifies the text and embeds it and its metadata composite in parallel.
// A relevant message also gets the metadata vector of the issue it would open,
// so nothing waits on the embedder inside the critical section.
// Oracle failures fall back; only a cancelled context aborts.
func (s *Service) analyze(ctx context.Context, ev event.Event) (analysis, error) {
	var a analysis
	var g errgroup.Group
	reuseVector := false

	g.Go(func() error {
		c, err := s.classifier.Classify(ctx, ev.Text())
		if err != nil {
			logger.FromContextOr(ctx, s.logger).Warn("classification failed, treating as irrelevant", zap.Error(err))
			c = domain.ClassificationFallback
		}
		a.cls = c
		if !a.relevant() {
			return nil
		}
		text := issue.DraftMetadataText(c.Summary, ev.Text())
		if text == ev.Text() {
			reuseVector = true
			return nil
		}
		v, err := s.embed(ctx, "issue_metadata", text)
		a.issueMetadata = v
		return err
	})
	g.Go(func() error {
		v, err := s.embed(ctx, "message", ev.Text())
		a.vector = v
		return err
	})
	g.Go(func() error {
		v, err := s.embed(ctx, "metadata", MetadataText(ev))
		a.metadata = v
		return err
	})

	if err := g.Wait(); err != nil {
		return analysis{}, err
	}
	if reuseVector {
		a.issueMetadata = a.vector
	}
	return a, nil
}

// embed returns a unit vector, or nil when the provider fails, times out or
// returns a malformed vector. The error is non-nil only when ctx is done.
func (s *Service) embed(ctx context.Context, input, text string) ([]float32, error) {
	log := logger.FromContextOr(ctx, s.logger)

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	res, err := s.embedder.Embed(callCtx, text)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("embed %s: %w", input, ctx.Err())
		}
		reason := "provider"
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			reason = "timeout"
		}
		log.Warn("embedding failed, continuing without vector",
			zap.String("input", input), zap.String("reason", reason), zap.Error(err))
		metrics.EmbeddingsMissingTotal.WithLabelValues(input, reason).Inc()
		return nil, nil
	}
	if err := domain.ValidateVector(res.Embedding, s.dim); err != nil {
		log.Warn("embedding rejected", zap.String("input", input), zap.Error(err))
		metrics.EmbeddingsMissingTotal.WithLabelValues(input, "malformed").Inc()
		return nil, nil
	}
	return domain.Normalize(res.Embedding), nil
}

// cluster is the critical section.
func (s *Service) cluster(ctx context.Context, ev event.Event, a analysis) (result, error) {
	s.clusterMu.Lock()
	defer s.clusterMu.Unlock()

	if dup, err := s.alreadyStored(ctx, ev.ExternalID()); err != nil {
		return result{}, err
	} else if dup {
		return result{outcome: OutcomeDuplicate}, nil
	}

	dec, err := s.decider.Decide(ctx, clustering.Input{
		ExternalID:     ev.ExternalID(),
		ThreadParentID: ev.ThreadParentID(),
		Channel:        ev.Channel(),
		Text:           ev.Text(),
		At:             ev.Timestamp(),
		Vector:         a.vector,
		MetadataVector: a.metadata,
		Label:          a.cls.Label,
	})
	if err != nil {
		return result{}, fmt.Errorf("decide: %w", err)
	}
	res := result{decision: dec}

	iss, created, err := s.resolveIssue(ctx, ev, a, dec)
	if err != nil {
		return res, err
	}

	msg := message.New(ev, a.cls.Label, a.cls.Confidence, a.vector, iss.ID())
	if err := s.messages.SaveMessage(ctx, &msg); err != nil {
		if errors.Is(err, domain.ErrDuplicateMessage) {
			res.outcome = OutcomeDuplicate
			return res, nil
		}
		return res, fmt.Errorf("save message: %w", err)
	}
	res.outcome, res.msg, res.created = OutcomeStored, &msg, created

	if err := s.attach(ctx, &iss, ev, a); err != nil {
		return res, err
	}
	return res, nil
}

// resolveIssue loads the decided issue, or creates and saves a new one seeded
// with the message vector.
func (s *Service) resolveIssue(
	ctx context.Context, ev event.Event, a analysis, dec clustering.Decision,
) (issue.Issue, bool, error) {
	if !dec.IsNew() {
		iss, err := s.issues.GetIssue(ctx, dec.IssueID)
		if err == nil {
			return iss, false, nil
		}
		if !errors.Is(err, domain.ErrIssueNotFound) {
			return issue.Issue{}, false, fmt.Errorf("load issue %s: %w", dec.IssueID, err)
		}
		logger.FromContextOr(ctx, s.logger).Warn("decided issue no longer exists, creating a new one",
			zap.String("issue_id", dec.IssueID))
	}

	iss, err := issue.New("", a.cls.Summary, ev.Text(), a.cls.Label, ev.Timestamp())
	if err != nil {
		return issue.Issue{}, false, fmt.Errorf("new issue: %w", err)
	}
	if a.vector != nil {
		iss.SetVector(a.vector)
	}
	if a.issueMetadata != nil {
		iss.SetMetadataVector(a.issueMetadata)
	}
	if err := s.issues.SaveIssue(ctx, &iss); err != nil {
		return issue.Issue{}, false, fmt.Errorf("create issue: %w", err)
	}
	return iss, true, nil
}

// attach records the stored message on its issue: reopen, bump updatedAt,
// overwrite the classification, recompute the centroid, save and reindex.
func (s *Service) attach(ctx context.Context, iss *issue.Issue, ev event.Event, a analysis) error {
	iss.Touch(ev.Timestamp(), a.cls.Label)

	vec, changed, err := s.centroid.Recompute(ctx, iss.ID())
	switch {
	case err != nil:
		logger.FromContextOr(ctx, s.logger).Warn("centroid recompute failed, keeping current vector",
			zap.String("issue_id", iss.ID()), zap.Error(err))
	case changed:
		iss.SetVector(vec)
	}

	if err := s.issues.SaveIssue(ctx, iss); err != nil {
		return fmt.Errorf("save issue: %w", err)
	}
	s.reindex(ctx, iss)
	return nil
}

func (s *Service) reindex(ctx context.Context, iss *issue.Issue) {
	if !iss.HasVector() {
		return
	}
	if err := s.index.Upsert(ctx, vectorindex.EntryFromIssue(iss)); err != nil {
		logger.FromContextOr(ctx, s.logger).Warn("vector index upsert failed",
			zap.String("issue_id", iss.ID()), zap.Error(err))
	}
}

func (s *Service) publish(n notify.Notification) {
	if s.notifier != nil {
		s.notifier.Publish(n)
	}
}

// observe records metrics and writes the canonical event_ingested line.
func (s *Service) observe(ctx context.Context, res result, err error, d time.Duration) {
	outcome := res.outcome
	if err != nil && outcome != OutcomeInvalid {
		outcome = OutcomeError
	}
	metrics.IngestEventsTotal.WithLabelValues(string(outcome)).Inc()
	metrics.IngestDuration.Observe(d.Seconds())

	fields := []zap.Field{
		zap.String("outcome", string(outcome)),
		zap.Duration("latency", d),
	}
	if res.decision.Path != "" {
		fields = append(fields,
			zap.String("path", string(res.decision.Path)),
			zap.Float64("score", res.decision.Score),
			zap.Int("candidates", res.decision.Candidates),
		)
	}
	if res.msg != nil {
		fields = append(fields,
			zap.String("message_id", res.msg.ID()),
			zap.String("issue_id", res.msg.IssueID()),
			zap.Bool("new_issue", res.created),
		)
	}

	log := logger.FromContextOr(ctx, s.logger)
	if err != nil {
		log.Error("event_ingested", append(fields, zap.Error(err))...)
		return
	}
	log.Info("event_ingested", fields...)
}

// MetadataText is the composite embedded as a message's metadata vector.
func MetadataText(ev event.Event) string {
	return fmt.Sprintf("#%s | %s | %s | %s",
		ev.Channel(), ev.Author(), ev.Timestamp().UTC().Format(time.RFC3339), ev.Text())
}
