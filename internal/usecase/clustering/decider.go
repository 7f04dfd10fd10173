// Package clustering decides which issue an incoming message belongs to.
package clustering

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/triage/internal/domain"
	"github.com/kailas-cloud/triage/internal/domain/label"
	"github.com/kailas-cloud/triage/internal/domain/message"
	"github.com/kailas-cloud/triage/internal/logger"
	"github.com/kailas-cloud/triage/internal/metrics"
	"github.com/kailas-cloud/triage/internal/usecase/scoring"
	"github.com/kailas-cloud/triage/internal/vectorindex"
)

// Path names the state that produced a decision.
type Path string

// Decision paths.
const (
	PathThread         Path = "thread"
	PathFollowup       Path = "followup"
	PathShortText      Path = "short_text"
	PathHighConfidence Path = "high_confidence"
	PathOracleConfirm  Path = "oracle_confirm"
	PathNew            Path = "new"
)

// Config holds the decision thresholds.
type Config struct {
	FetchK            int
	BaseThreshold     float64
	HighThreshold     float64
	FollowupThreshold float64
	ShortTextWords    int
}

// DefaultConfig returns fetchK 25, T 0.35, high floor 0.6, follow-up 0.6, short text 6 words.
func DefaultConfig() Config {
	return Config{
		FetchK:            25,
		BaseThreshold:     0.35,
		HighThreshold:     DefaultHighFloor,
		FollowupThreshold: 0.6,
		ShortTextWords:    6,
	}
}

// Input is everything the decision needs about one message.
type Input struct {
	ExternalID     string
	ThreadParentID string
	Channel        string
	Text           string
	At             time.Time
	Vector         []float32
	MetadataVector []float32
	Label          label.Label
}

// Decision is the outcome. An empty IssueID means create a new issue.
type Decision struct {
	IssueID    string
	Path       Path
	Score      float64
	Band       Band
	Candidates int
}

// IsNew reports whether a new issue must be created.
func (d Decision) IsNew() bool { return d.IssueID == "" }

// Decider runs the tiered decision procedure.
type Decider struct {
	messages MessageLookup
	issues   IssueLookup
	index    Searcher
	scorer   *scoring.Scorer
	followup domain.FollowupDetector
	judge    domain.Disambiguator
	cfg      Config
	logger   *zap.Logger
}

// New creates a Decider.
func New(
	messages MessageLookup, issues IssueLookup, index Searcher, scorer *scoring.Scorer,
	followup domain.FollowupDetector, judge domain.Disambiguator, cfg Config, logger *zap.Logger,
) *Decider {
	def := DefaultConfig()
	if cfg.FetchK <= 0 {
		cfg.FetchK = def.FetchK
	}
	if cfg.HighThreshold <= 0 {
		cfg.HighThreshold = def.HighThreshold
	}
	if cfg.ShortTextWords <= 0 {
		cfg.ShortTextWords = def.ShortTextWords
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Decider{
		messages: messages, issues: issues, index: index, scorer: scorer,
		followup: followup, judge: judge, cfg: cfg, logger: logger,
	}
}

// Decide picks the issue for in. Only storage and index failures are returned as errors.
func (d *Decider) Decide(ctx context.Context, in Input) (Decision, error) {
	dec, err := d.decide(ctx, in)
	if err != nil {
		return Decision{}, err
	}
	metrics.ClusteringDecisionsTotal.WithLabelValues(string(dec.Path)).Inc()
	return dec, nil
}

func (d *Decider) decide(ctx context.Context, in Input) (Decision, error) {
	log := logger.FromContextOr(ctx, d.logger)

	if dec, ok, err := d.threadLookup(ctx, in); err != nil || ok {
		return dec, err
	}
	if dec, ok, err := d.followupCheck(ctx, in); err != nil || ok {
		return dec, err
	}

	if len(in.Vector) == 0 {
		log.Debug("no message vector, skipping candidate search")
		return Decision{Path: PathNew, Band: BandReject}, nil
	}
	hits, err := d.index.Search(ctx, in.Vector, d.cfg.FetchK)
	if err != nil {
		return Decision{}, fmt.Errorf("candidate search: %w", err)
	}
	hits = filterByLabel(hits, in.Label)
	if len(hits) == 0 {
		return Decision{Path: PathNew, Band: BandReject}, nil
	}

	if message.WordCount(in.Text) < d.cfg.ShortTextWords {
		picked, err := d.selectAmong(ctx, in, hits)
		if err != nil {
			return Decision{}, err
		}
		if picked != "" {
			return Decision{IssueID: picked, Path: PathShortText, Candidates: len(hits)}, nil
		}
		log.Debug("short text fallback found no pick", zap.Int("candidates", len(hits)))
	}

	ranked := d.scorer.Rank(scoring.Query{
		Vector:         in.Vector,
		MetadataVector: in.MetadataVector,
		Label:          in.Label,
		At:             in.At,
	}, toCandidates(hits))
	top := ranked[0]
	band := Gate(top.Combined, d.cfg.BaseThreshold, d.cfg.HighThreshold)
	metrics.ClusteringScore.Observe(top.Combined)

	dec := Decision{Score: top.Combined, Band: band, Candidates: len(ranked)}
	switch {
	case band == BandHigh:
		dec.IssueID, dec.Path = top.IssueID, PathHighConfidence
		return dec, nil
	case band.NeedsOracle():
		picked, err := d.selectAmong(ctx, in, []vectorindex.Hit{hitByID(hits, top.IssueID)})
		if err != nil {
			return Decision{}, err
		}
		if picked != "" {
			dec.IssueID, dec.Path = picked, PathOracleConfirm
			return dec, nil
		}
	}
	dec.Path = PathNew
	return dec, nil
}

func (d *Decider) threadLookup(ctx context.Context, in Input) (Decision, bool, error) {
	if in.ThreadParentID == "" {
		return Decision{}, false, nil
	}
	parent, err := d.messages.MessageByExternalID(ctx, in.ThreadParentID)
	if err != nil {
		if errors.Is(err, domain.ErrMessageNotFound) {
			return Decision{}, false, nil
		}
		return Decision{}, false, fmt.Errorf("thread parent lookup: %w", err)
	}
	if parent.IssueID() == "" {
		return Decision{}, false, nil
	}
	return Decision{IssueID: parent.IssueID(), Path: PathThread}, true, nil
}

func (d *Decider) followupCheck(ctx context.Context, in Input) (Decision, bool, error) {
	if d.followup == nil {
		return Decision{}, false, nil
	}
	prior, err := d.messages.LatestInChannel(ctx, in.Channel, in.ExternalID)
	if err != nil {
		if errors.Is(err, domain.ErrMessageNotFound) {
			return Decision{}, false, nil
		}
		return Decision{}, false, fmt.Errorf("latest in channel: %w", err)
	}
	if prior.IssueID() == "" {
		return Decision{}, false, nil
	}

	verdict, err := d.followup.IsFollowup(ctx, in.Text, in.At, prior.Text(), prior.Timestamp())
	if err != nil {
		logger.FromContextOr(ctx, d.logger).Warn("follow-up oracle failed", zap.Error(err))
		verdict = domain.FollowupFallback
	}
	if verdict.IsFollowup && verdict.Confidence >= d.cfg.FollowupThreshold {
		return Decision{IssueID: prior.IssueID(), Path: PathFollowup, Score: verdict.Confidence}, true, nil
	}
	return Decision{}, false, nil
}

// selectAmong asks the disambiguation oracle to pick one of hits. Ids outside hits are ignored.
func (d *Decider) selectAmong(ctx context.Context, in Input, hits []vectorindex.Hit) (string, error) {
	if d.judge == nil || len(hits) == 0 {
		return "", nil
	}
	candidates := make([]domain.Candidate, 0, len(hits))
	for _, h := range hits {
		iss, err := d.issues.GetIssue(ctx, h.IssueID)
		if err != nil {
			if errors.Is(err, domain.ErrIssueNotFound) {
				continue
			}
			return "", fmt.Errorf("load candidate %s: %w", h.IssueID, err)
		}
		candidates = append(candidates, domain.Candidate{
			IssueID:   iss.ID(),
			Title:     iss.Title(),
			Summary:   iss.Summary(),
			Label:     iss.Classification(),
			UpdatedAt: iss.UpdatedAt(),
		})
	}
	if len(candidates) == 0 {
		return "", nil
	}

	picked, err := d.judge.SelectIssue(ctx, in.Text, candidates, in.At)
	if err != nil {
		logger.FromContextOr(ctx, d.logger).Warn("disambiguation oracle failed", zap.Error(err))
		return "", nil
	}
	for _, c := range candidates {
		if c.IssueID == picked {
			return picked, nil
		}
	}
	if picked != "" {
		logger.FromContextOr(ctx, d.logger).Warn("disambiguation oracle picked an unknown issue", zap.String("issue_id", picked))
	}
	return "", nil
}

// filterByLabel keeps hits with the message label, or all hits if none match.
func filterByLabel(hits []vectorindex.Hit, l label.Label) []vectorindex.Hit {
	if l.IsZero() {
		return hits
	}
	matched := make([]vectorindex.Hit, 0, len(hits))
	for _, h := range hits {
		if h.Label == l {
			matched = append(matched, h)
		}
	}
	if len(matched) == 0 {
		return hits
	}
	return matched
}

func toCandidates(hits []vectorindex.Hit) []scoring.Candidate {
	out := make([]scoring.Candidate, len(hits))
	for i, h := range hits {
		out[i] = scoring.Candidate{
			IssueID:        h.IssueID,
			Centroid:       h.Vector,
			MetadataVector: h.MetadataVector,
			Label:          h.Label,
			UpdatedAt:      h.LastUpdated,
		}
	}
	return out
}

func hitByID(hits []vectorindex.Hit, id string) vectorindex.Hit {
	for _, h := range hits {
		if h.IssueID == id {
			return h
		}
	}
	return hits[0]
}
