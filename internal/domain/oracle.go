package domain

import (
	"context"
	"time"

	"github.com/kailas-cloud/triage/internal/domain/label"
)

// Classification is the classification oracle verdict for one message.
type Classification struct {
	Label      label.Label
	IsRelevant bool
	Confidence float64
	Summary    string
}

// ClassificationFallback is returned when the classifier fails or is not configured.
var ClassificationFallback = Classification{Label: label.Irrelevant}

// Followup is the follow-up oracle verdict.
type Followup struct {
	IsFollowup bool
	Confidence float64
}

// FollowupFallback is returned when the follow-up oracle fails. It never merges.
var FollowupFallback = Followup{}

// Candidate is an issue offered to the disambiguation oracle.
type Candidate struct {
	IssueID   string
	Title     string
	Summary   string
	Label     label.Label
	UpdatedAt time.Time
}

// Classifier labels message text.
type Classifier interface {
	Classify(ctx context.Context, text string) (Classification, error)
}

// FollowupDetector judges whether a message continues the previous one in its channel.
type FollowupDetector interface {
	IsFollowup(ctx context.Context, newText string, newAt time.Time, priorText string, priorAt time.Time) (Followup, error)
}

// Disambiguator picks one of the candidates for a message. An empty id means none fits.
type Disambiguator interface {
	SelectIssue(ctx context.Context, text string, candidates []Candidate, at time.Time) (string, error)
}
