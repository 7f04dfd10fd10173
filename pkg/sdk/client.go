package triage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/triage/internal/db"
	dbRedis "github.com/kailas-cloud/triage/internal/db/redis"
	"github.com/kailas-cloud/triage/internal/domain"
	dombatch "github.com/kailas-cloud/triage/internal/domain/batch"
	"github.com/kailas-cloud/triage/internal/domain/event"
	"github.com/kailas-cloud/triage/internal/domain/issue"
	"github.com/kailas-cloud/triage/internal/domain/message"
	issuerepo "github.com/kailas-cloud/triage/internal/repository/issue"
	messagerepo "github.com/kailas-cloud/triage/internal/repository/message"
	"github.com/kailas-cloud/triage/internal/repository/sqlite"
	budgetuc "github.com/kailas-cloud/triage/internal/usecase/budget"
	"github.com/kailas-cloud/triage/internal/usecase/centroid"
	"github.com/kailas-cloud/triage/internal/usecase/clustering"
	"github.com/kailas-cloud/triage/internal/usecase/dedup"
	embeddinguc "github.com/kailas-cloud/triage/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/triage/internal/usecase/health"
	ingestuc "github.com/kailas-cloud/triage/internal/usecase/ingest"
	issuesuc "github.com/kailas-cloud/triage/internal/usecase/issues"
	"github.com/kailas-cloud/triage/internal/usecase/notify"
	"github.com/kailas-cloud/triage/internal/usecase/oracle"
	"github.com/kailas-cloud/triage/internal/usecase/scoring"
	usageuc "github.com/kailas-cloud/triage/internal/usecase/usage"
	"github.com/kailas-cloud/triage/internal/vectorindex"
)

const (
	defaultReadinessTimeout = 10 * time.Second
	defaultDimensions       = 384
)

// Внутренние интерфейсы для подмены в тестах.
type ingestUseCase interface {
	Ingest(ctx context.Context, ev event.Event) (*message.Message, error)
	IngestBatch(ctx context.Context, events []event.Event) []dombatch.Result
	Resolve(ctx context.Context, issueID string) (issue.Issue, error)
}

type issueUseCase interface {
	List(ctx context.Context, status issue.Status, offset, limit int) (issuesuc.Page, error)
	Get(ctx context.Context, id string) (issue.Issue, error)
	Messages(ctx context.Context, issueID string, limit int) ([]message.Message, error)
}

type subscriber interface {
	Subscribe() (<-chan notify.Notification, func())
}

// Client is the triage SDK entry point.
type Client struct {
	closeFn   func()
	pinger    healthuc.DBPinger
	ingestSvc ingestUseCase
	issueSvc  issueUseCase
	hub       subscriber
	healthSvc healthUseCase
	usageSvc  usageUseCase
	obs       *observer
}

// New creates a triage Client, connects to storage and loads the candidate index.
// The provided context is used for the readiness check and the index load.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{dimensions: defaultDimensions}
	for _, o := range opts {
		o.apply(cfg)
	}
	if cfg.driver == "" {
		return nil, errors.New("triage: storage required (use WithSQLite, WithValkey or WithRedis)")
	}
	if cfg.dimensions <= 0 {
		return nil, fmt.Errorf("triage: dimensions must be positive, got %d", cfg.dimensions)
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	st, err := openStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c, err := wireClient(ctx, st, cfg, obs)
	if err != nil {
		st.close()
		return nil, err
	}
	return c, nil
}

type storage struct {
	issues   ingestuc.IssueRepository
	messages ingestuc.MessageRepository
	pinger   healthuc.DBPinger
	kv       db.Store // nil for sqlite
	close    func()
}

func openStorage(ctx context.Context, cfg *clientConfig) (*storage, error) {
	switch cfg.driver {
	case "sqlite":
		s, err := sqlite.New(cfg.sqlitePath)
		if err != nil {
			return nil, fmt.Errorf("triage: open sqlite: %w", err)
		}
		return &storage{issues: s, messages: s, pinger: s, close: func() { _ = s.Close() }}, nil
	case "valkey", "redis":
		store, err := dbRedis.NewStore(dbRedis.Config{Addrs: cfg.addrs, Password: cfg.password})
		if err != nil {
			return nil, fmt.Errorf("triage: create %s store: %w", cfg.driver, err)
		}
		if err := store.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
			store.Close()
			return nil, fmt.Errorf("triage: database not ready: %w", err)
		}
		issues := issuerepo.New(store)
		messages := messagerepo.New(store)
		for _, ensure := range []func(context.Context) error{issues.EnsureIndex, messages.EnsureIndex} {
			if err := ensure(ctx); err != nil {
				store.Close()
				return nil, fmt.Errorf("triage: ensure index: %w", err)
			}
		}
		return &storage{issues: issues, messages: messages, pinger: store, kv: store, close: store.Close}, nil
	default:
		return nil, fmt.Errorf("triage: unknown driver %q", cfg.driver)
	}
}

func wireClient(ctx context.Context, st *storage, cfg *clientConfig, obs *observer) (*Client, error) {
	log := zap.NewNop()
	dim := cfg.dimensions

	var index vectorindex.Index = vectorindex.NewMemory(dim, log)
	if st.kv != nil {
		index = vectorindex.NewValkey(st.kv, dim, log)
	}

	// Embedder: локальный hashing, если свой не задан.
	var base domain.Embedder = oracle.NewHashingEmbedder(dim)
	model := "hashing"
	if cfg.embedder != nil {
		base = &embedderAdapter{inner: cfg.embedder}
		model = "custom"
	}
	tracker := budgetuc.NewTracker("embedding", cfg.dailyTokenLimit, 0, budgetuc.ActionReject, log)
	instrumented := embeddinguc.NewInstrumentedEmbedder(base, "embedding", model, tracker, log)
	embedder := domain.NewNormalizingEmbedder(instrumented, dim)

	var classifier domain.Classifier = oracle.NewKeywordClassifier()
	if cfg.classifier != nil {
		classifier = oracle.NewSafeClassifier(oracle.NewLLMClassifier(&completerAdapter{inner: cfg.classifier}), log)
	}
	var (
		followup domain.FollowupDetector
		judge    domain.Disambiguator
	)
	if cfg.judge != nil {
		cp := &completerAdapter{inner: cfg.judge}
		followup = oracle.NewSafeFollowupDetector(oracle.NewLLMFollowupDetector(cp), log)
		judge = oracle.NewSafeDisambiguator(oracle.NewLLMDisambiguator(cp), log)
	}

	decider := clustering.New(st.messages, st.issues, index, scoring.NewScorer(scoring.DefaultWeights()),
		followup, judge, clustering.DefaultConfig(), log)
	cc := centroid.DefaultConfig()
	cc.Dimensions = dim
	centroids := centroid.New(st.messages, cc, log)

	hub := notify.NewHub()
	ingestSvc := ingestuc.New(st.issues, st.messages, index, decider, centroids, classifier, embedder, log).
		WithDedup(dedup.New(cfg.dedupCapacity)).
		WithNotifier(hub).
		WithDimensions(dim).
		WithEmbedTimeout(cfg.embedTimeout)
	if err := ingestSvc.Bootstrap(ctx); err != nil {
		return nil, fmt.Errorf("triage: load index: %w", err)
	}

	return &Client{
		closeFn:   st.close,
		pinger:    st.pinger,
		ingestSvc: ingestSvc,
		issueSvc:  issuesuc.New(st.issues, st.messages),
		hub:       hub,
		healthSvc: healthuc.New(st.pinger, instrumented).WithIndex(index),
		usageSvc:  usageuc.New(tracker),
		obs:       obs,
	}, nil
}

// Close releases all resources.
func (c *Client) Close() {
	if c.closeFn != nil {
		c.closeFn()
	}
}

// Ping checks database connectivity.
func (c *Client) Ping(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("ping", start, err) }()

	if err = c.pinger.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Ingest runs one event through the pipeline. It returns nil without error
// when the event is a duplicate, comes from a bot or is irrelevant.
func (c *Client) Ingest(ctx context.Context, ev Event) (out *Message, err error) {
	start := time.Now()
	defer func() { c.obs.observeIngest(start, out, err) }()

	in, err := toInternalEvent(ev)
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	m, err := c.ingestSvc.Ingest(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	if m == nil {
		return nil, nil
	}
	msg := fromInternalMessage(m)
	return &msg, nil
}

// IngestBatch ingests events in order. Results are positional; an invalid event
// fails only its own slot.
func (c *Client) IngestBatch(ctx context.Context, events []Event) []BatchResult {
	start := time.Now()
	results := make([]BatchResult, len(events))
	valid := make([]event.Event, 0, len(events))
	pos := make([]int, 0, len(events))
	for i, ev := range events {
		in, err := toInternalEvent(ev)
		if err != nil {
			results[i] = BatchResult{ExternalID: ev.ExternalID, Status: BatchError, Err: err}
			continue
		}
		valid = append(valid, in)
		pos = append(pos, i)
	}

	if len(valid) > 0 {
		for j, r := range c.ingestSvc.IngestBatch(ctx, valid) {
			results[pos[j]] = fromInternalBatchResult(r)
		}
	}

	var firstErr error
	for _, r := range results {
		if r.Err != nil {
			firstErr = r.Err
			break
		}
	}
	c.obs.observe("ingest_batch", start, firstErr)
	return results
}

// Subscribe streams live notifications until cancel is called.
// Slow consumers drop notifications rather than block ingestion.
func (c *Client) Subscribe() (<-chan Notification, func()) {
	in, cancel := c.hub.Subscribe()
	out := make(chan Notification)
	done := make(chan struct{})
	go func() {
		defer close(out)
		for n := range in {
			select {
			case out <- fromInternalNotification(n):
			case <-done:
				return
			}
		}
	}()
	var once sync.Once
	return out, func() {
		once.Do(func() {
			close(done)
			cancel()
		})
	}
}

// Issues returns the issue query and resolution service.
func (c *Client) Issues() *IssueService {
	return &IssueService{svc: c.issueSvc, ingest: c.ingestSvc, obs: c.obs}
}

// embedderAdapter wraps public Embedder to satisfy internal domain.Embedder.
type embedderAdapter struct {
	inner Embedder
}

func (a *embedderAdapter) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	r, err := a.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w: %w", domain.ErrEmbeddingProviderError, err)
	}
	return domain.EmbeddingResult{
		Embedding:    r.Embedding,
		PromptTokens: r.PromptTokens,
		TotalTokens:  r.TotalTokens,
	}, nil
}

// completerAdapter wraps public Completer to satisfy oracle.Completer.
type completerAdapter struct {
	inner Completer
}

func (a *completerAdapter) Complete(ctx context.Context, system, user string) (oracle.Completion, error) {
	r, err := a.inner.Complete(ctx, system, user)
	if err != nil {
		return oracle.Completion{}, fmt.Errorf("complete: %w: %w", domain.ErrOracleUnavailable, err)
	}
	return oracle.Completion{Text: r.Text, InputTokens: r.InputTokens, OutputTokens: r.OutputTokens}, nil
}
