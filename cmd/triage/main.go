package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/triage/internal/config"
	"github.com/kailas-cloud/triage/internal/db"
	dbRedis "github.com/kailas-cloud/triage/internal/db/redis"
	"github.com/kailas-cloud/triage/internal/domain"
	logpkg "github.com/kailas-cloud/triage/internal/logger"
	"github.com/kailas-cloud/triage/internal/metrics"
	budgetrepo "github.com/kailas-cloud/triage/internal/repository/budget"
	"github.com/kailas-cloud/triage/internal/repository/embcache"
	issuerepo "github.com/kailas-cloud/triage/internal/repository/issue"
	messagerepo "github.com/kailas-cloud/triage/internal/repository/message"
	"github.com/kailas-cloud/triage/internal/repository/sqlite"
	anthropicTransport "github.com/kailas-cloud/triage/internal/transport/anthropic"
	chiTransport "github.com/kailas-cloud/triage/internal/transport/chi"
	openaiTransport "github.com/kailas-cloud/triage/internal/transport/openai"
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
	"github.com/kailas-cloud/triage/internal/version"
)

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting triage server",
		zap.String("build", version.String()),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.String("index_backend", cfg.Index.Backend),
		zap.String("embedding_provider", cfg.Embedding.Provider),
	)

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterPipelineMetrics()

	ctx := context.Background()
	st, err := openStorage(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open storage", zap.Error(err))
	}
	defer st.close()

	dim := cfg.Embedding.Dimensions
	index := buildIndex(cfg, st.kv, dim, logger)

	budgets := newBudgetRegistry(ctx, st.kv, logger)
	embedder, embHealth := buildEmbedder(cfg, st.kv, budgets, logger)
	oracles := buildOracles(cfg, budgets, logger)
	logger.Info("Oracles configured",
		zap.String("classifier", orKeyword(cfg.Oracles.Classifier.Provider)),
		zap.String("judge", orDisabled(cfg.Oracles.Judge.Provider)),
	)

	cl := cfg.Clustering
	scorer := scoring.NewScorer(scoring.Weights{
		Semantic:      cl.WeightSemantic,
		Metadata:      cl.WeightMetadata,
		Temporal:      cl.WeightTemporal,
		LabelMatch:    cl.LabelMatchBoost,
		LabelMismatch: cl.LabelMismatchPenalty,
		HalfLife:      time.Duration(cl.HalfLifeHours * float64(time.Hour)),
	})
	decider := clustering.New(st.messages, st.issues, index, scorer, oracles.followup, oracles.judge,
		clustering.Config{
			FetchK:            cl.FetchK,
			BaseThreshold:     cl.BaseThreshold,
			HighThreshold:     cl.HighThreshold,
			FollowupThreshold: cl.FollowupThreshold,
			ShortTextWords:    cl.ShortTextWords,
		}, logger)

	cc := cfg.Centroid
	centroids := centroid.New(st.messages, centroid.Config{
		MaxMessages: cc.MaxMessages,
		MinWords:    cc.MinWords,
		ScanLimit:   cc.ScanLimit,
		MaxWeight:   cc.MaxWeight,
		MinWeight:   cc.MinWeight,
		Dimensions:  dim,
	}, logger)

	hub := notify.NewHub()
	ingestSvc := ingestuc.New(st.issues, st.messages, index, decider, centroids,
		oracles.classifier, embedder, logger).
		WithDedup(dedup.New(cfg.Dedup.Capacity)).
		WithNotifier(hub).
		WithDimensions(dim).
		WithEmbedTimeout(time.Duration(cfg.Embedding.TimeoutSec) * time.Second)

	if err := ingestSvc.Bootstrap(ctx); err != nil {
		logger.Fatal("Failed to load vector index", zap.Error(err))
	}
	logger.Info("Vector index loaded", zap.Int("issues", index.Len()))

	workersCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()
	workers := ingestuc.NewWorkers(ingestSvc, cfg.Ingest.Workers, cfg.Ingest.QueueSize, logger)
	workers.Start(workersCtx)

	issuesSvc := issuesuc.New(st.issues, st.messages)
	usageSvc := usageuc.New(budgets.readers()...)
	healthSvc := healthuc.New(st.pinger, embHealth).WithIndex(index)

	server := chiTransport.NewServer(ingestSvc, workers, issuesSvc, usageSvc, healthSvc, hub, logger).
		WithSlackSecret(cfg.Auth.SlackSigningSecret)
	handler := chiTransport.NewRouter(server, chiTransport.RouterConfig{
		APIKeys:     cfg.Auth.APIKeys,
		CORSOrigins: cfg.HTTP.CORSOrigins,
	}, logger)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}
	srv.RegisterOnShutdown(server.CloseStreams)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	// Drain queued Slack events before the store closes.
	workers.Stop()
	logger.Info("Ingest workers stopped",
		zap.Int64("processed", workers.Processed()),
		zap.Int64("failed", workers.Failed()),
	)

	logger.Info("Server stopped gracefully")
}

// storage bundles the repositories of the configured driver.
type storage struct {
	issues   ingestuc.IssueRepository
	messages ingestuc.MessageRepository
	pinger   healthuc.DBPinger
	kv       db.Store // nil for sqlite
	close    func()
}

func openStorage(ctx context.Context, cfg config.Config, logger *zap.Logger) (*storage, error) {
	if cfg.Database.Driver == config.DriverSQLite {
		s, err := sqlite.New(cfg.Database.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		logger.Info("Opened sqlite store", zap.String("path", cfg.Database.SQLitePath))
		return &storage{
			issues:   s,
			messages: s,
			pinger:   s,
			close:    func() { _ = s.Close() },
		}, nil
	}

	// valkey and redis speak the same protocol; rueidis serves both.
	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("create store: %w", err)
	}
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		store.Close()
		return nil, fmt.Errorf("database not ready: %w", err)
	}
	logger.Info("Connected to database", zap.Strings("addrs", cfg.Database.Addrs))

	issues := issuerepo.New(store)
	if err := issues.EnsureIndex(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("ensure issues index: %w", err)
	}
	messages := messagerepo.New(store)
	if err := messages.EnsureIndex(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("ensure messages index: %w", err)
	}
	return &storage{
		issues:   issues,
		messages: messages,
		pinger:   store,
		kv:       store,
		close:    store.Close,
	}, nil
}

func buildIndex(cfg config.Config, kv db.Store, dim int, logger *zap.Logger) vectorindex.Index {
	if cfg.Index.Backend == config.IndexValkey && kv != nil {
		return vectorindex.NewValkey(kv, dim, logger).WithHNSW(vectorindex.HNSWConfig{
			M:           cfg.Index.HNSWM,
			EFConstruct: cfg.Index.HNSWEFConstruct,
		})
	}
	return vectorindex.NewMemory(dim, logger)
}

// budgetRegistry hands out one Tracker per provider name, shared by every
// embedder and oracle on that provider and by the usage report.
type budgetRegistry struct {
	ctx      context.Context //nolint:containedctx // startup-scoped, used to load persisted counters
	store    budgetuc.Store
	trackers map[string]*budgetuc.Tracker
	order    []string
	logger   *zap.Logger
}

func newBudgetRegistry(ctx context.Context, kv db.Store, logger *zap.Logger) *budgetRegistry {
	r := &budgetRegistry{ctx: ctx, trackers: make(map[string]*budgetuc.Tracker), logger: logger}
	if kv != nil {
		r.store = budgetrepo.New(kv, 24*time.Hour)
	}
	return r
}

// tracker returns the provider's tracker. The first budget config seen for a name wins.
func (r *budgetRegistry) tracker(provider string, bc config.BudgetConfig) *budgetuc.Tracker {
	if t, ok := r.trackers[provider]; ok {
		return t
	}
	t := budgetuc.NewTracker(provider, bc.DailyTokenLimit, bc.MonthlyTokenLimit, budgetuc.ParseAction(bc.Action), r.logger)
	if r.store != nil {
		t.WithStore(r.ctx, r.store)
	}
	r.trackers[provider] = t
	r.order = append(r.order, provider)
	return t
}

func (r *budgetRegistry) readers() []usageuc.BudgetReader {
	out := make([]usageuc.BudgetReader, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.trackers[name])
	}
	return out
}

// buildEmbedder assembles the decorator chain:
// provider -> cached -> instrumented (budget + metrics) -> normalizing.
// The instrumented layer is also returned for health checks.
func buildEmbedder(
	cfg config.Config, kv db.Store, budgets *budgetRegistry, logger *zap.Logger,
) (domain.Embedder, healthuc.EmbeddingChecker) {
	ec := cfg.Embedding
	dim := ec.Dimensions

	var base domain.Embedder
	model := ec.Model
	var bc config.BudgetConfig
	if ec.Provider == "local" {
		base = oracle.NewHashingEmbedder(dim)
		model = "hashing"
	} else {
		pc := ec.Providers[ec.Provider]
		base = openaiTransport.NewEmbedder(&openaiTransport.Config{
			APIKey:     pc.APIKey,
			BaseURL:    pc.BaseURL,
			Model:      ec.Model,
			Dimensions: dim,
			Provider:   ec.Provider,
			Logger:     logger,
		})
		bc = pc.Budget
	}

	if kv != nil {
		base = embcache.New(base, kv, model, dim, metrics.EmbeddingCacheTotal, logger).
			WithTTL(time.Duration(ec.CacheTTL) * time.Second)
	}

	instrumented := embeddinguc.NewInstrumentedEmbedder(
		base, ec.Provider, model, budgets.tracker(ec.Provider, bc), logger,
	)
	logger.Info("Embedder created",
		zap.String("provider", ec.Provider),
		zap.String("model", model),
		zap.Int("dimensions", dim),
	)
	return domain.NewNormalizingEmbedder(instrumented, dim), instrumented
}

type oracleSet struct {
	classifier domain.Classifier
	followup   domain.FollowupDetector
	judge      domain.Disambiguator
}

// buildOracles wires the classifier and the LLM judge. A classifier without a
// provider falls back to keywords; a judge without one is disabled.
func buildOracles(cfg config.Config, budgets *budgetRegistry, logger *zap.Logger) oracleSet {
	set := oracleSet{classifier: oracle.NewKeywordClassifier()}

	if c := completerFor("classifier", cfg.Oracles.Classifier, cfg, budgets, logger); c != nil {
		set.classifier = oracle.NewSafeClassifier(oracle.NewLLMClassifier(c), logger)
	}
	if c := completerFor("judge", cfg.Oracles.Judge, cfg, budgets, logger); c != nil {
		set.followup = oracle.NewSafeFollowupDetector(oracle.NewLLMFollowupDetector(c), logger)
		set.judge = oracle.NewSafeDisambiguator(oracle.NewLLMDisambiguator(c), logger)
	}
	return set
}

func completerFor(
	name string, oc config.OracleConfig, cfg config.Config, budgets *budgetRegistry, logger *zap.Logger,
) oracle.Completer {
	if oc.Provider == "" || oc.Provider == "keyword" {
		return nil
	}
	pc := cfg.Oracles.Providers[oc.Provider]

	var inner oracle.Completer
	switch pc.Kind {
	case "anthropic":
		inner = anthropicTransport.NewCompleter(&anthropicTransport.Config{
			APIKey:     pc.APIKey,
			BaseURL:    pc.BaseURL,
			Model:      oc.Model,
			MaxTokens:  oc.MaxTokens,
			MaxRetries: 2,
			Provider:   oc.Provider,
			Logger:     logger,
		})
	default:
		inner = openaiTransport.NewCompleter(&openaiTransport.Config{
			APIKey:    pc.APIKey,
			BaseURL:   pc.BaseURL,
			Model:     oc.Model,
			MaxTokens: oc.MaxTokens,
			Provider:  oc.Provider,
			Logger:    logger,
		})
	}

	return oracle.NewGuard(inner, oracle.GuardConfig{
		Name:              name,
		Timeout:           time.Duration(oc.TimeoutSec) * time.Second,
		MaxConcurrent:     oc.MaxConcurrent,
		RequestsPerSecond: oc.RequestsPerSecond,
		Burst:             oc.Burst,
	}, logger).WithBudget(budgets.tracker(oc.Provider, pc.Budget))
}

func orKeyword(p string) string {
	if p == "" {
		return "keyword"
	}
	return p
}

func orDisabled(p string) string {
	if p == "" || p == "keyword" {
		return "disabled"
	}
	return p
}
