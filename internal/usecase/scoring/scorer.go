// Package scoring ranks candidate issues for a message with a weighted blend
// of semantic, metadata, temporal and label signals.
package scoring

import (
	"sort"
	"time"

	"github.com/kailas-cloud/triage/internal/domain"
	"github.com/kailas-cloud/triage/internal/domain/label"
)

// Weights of the hybrid score. LabelMismatch is subtracted.
type Weights struct {
	Semantic      float64
	Metadata      float64
	Temporal      float64
	LabelMatch    float64
	LabelMismatch float64
	HalfLife      time.Duration
}

// DefaultWeights returns 0.3 / 0.3 / 0.2 with a +0.15 / -0.05 label term and a 24h half-life.
func DefaultWeights() Weights {
	return Weights{
		Semantic:      0.3,
		Metadata:      0.3,
		Temporal:      0.2,
		LabelMatch:    0.15,
		LabelMismatch: 0.05,
		HalfLife:      DefaultHalfLife,
	}
}

// Query is the message side of the score.
type Query struct {
	Vector         []float32
	MetadataVector []float32
	Label          label.Label
	At             time.Time
}

// Candidate is the issue side of the score.
type Candidate struct {
	IssueID        string
	Centroid       []float32 // nil when the issue has no representative vector
	MetadataVector []float32
	Label          label.Label
	UpdatedAt      time.Time
}

// Scored is a candidate with its signal breakdown.
type Scored struct {
	Candidate
	Semantic   float64
	Metadata   float64
	Temporal   float64
	LabelBoost float64
	Combined   float64
}

// Scorer is a pure hybrid ranking function.
type Scorer struct {
	w Weights
}

// NewScorer creates a scorer.
func NewScorer(w Weights) *Scorer {
	return &Scorer{w: w}
}

// LabelBoost is +match when both labels agree, -mismatch when both are set and differ, 0 otherwise.
func (s *Scorer) LabelBoost(msg, iss label.Label) float64 {
	if msg.IsZero() || iss.IsZero() {
		return 0
	}
	if msg == iss {
		return s.w.LabelMatch
	}
	return -s.w.LabelMismatch
}

// Score computes the breakdown for one candidate.
func (s *Scorer) Score(q Query, c Candidate) Scored {
	semTarget := c.Centroid
	if len(semTarget) == 0 {
		semTarget = c.MetadataVector
	}
	out := Scored{
		Candidate:  c,
		Semantic:   domain.Cosine(q.Vector, semTarget),
		Metadata:   domain.Cosine(q.MetadataVector, c.MetadataVector),
		Temporal:   TemporalDecay(q.At, c.UpdatedAt, s.w.HalfLife),
		LabelBoost: s.LabelBoost(q.Label, c.Label),
	}
	out.Combined = s.w.Semantic*out.Semantic +
		s.w.Metadata*out.Metadata +
		s.w.Temporal*out.Temporal +
		out.LabelBoost
	return out
}

// Rank scores every candidate and sorts by Combined descending. Ties keep input order.
func (s *Scorer) Rank(q Query, candidates []Candidate) []Scored {
	out := make([]Scored, len(candidates))
	for i, c := range candidates {
		out[i] = s.Score(q, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Combined > out[j].Combined })
	return out
}
