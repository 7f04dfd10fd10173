package oracle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kailas-cloud/triage/internal/domain"
)

const followupSystemPrompt = `You decide whether a new chat message continues the previous message
posted in the same channel, for example a clarification, an added detail or a correction.
Answer with one JSON object: {"is_followup": boolean, "confidence": number between 0 and 1}`

const disambiguateSystemPrompt = `You assign a chat message to one of several open support issues.
Pick the issue the message is about, or none if no issue fits.
Answer with one JSON object: {"issue_id": "<one of the listed ids>" | null, "reason": "short reason"}`

type followupResponse struct {
	IsFollowup bool    `json:"is_followup"`
	Confidence float64 `json:"confidence"`
}

type disambiguateResponse struct {
	IssueID *string `json:"issue_id"`
	Reason  string  `json:"reason"`
}

// LLMFollowupDetector asks a chat model whether two consecutive channel messages belong together.
type LLMFollowupDetector struct {
	completer Completer
}

// NewLLMFollowupDetector creates a follow-up detector over c.
func NewLLMFollowupDetector(c Completer) *LLMFollowupDetector {
	return &LLMFollowupDetector{completer: c}
}

// IsFollowup implements domain.FollowupDetector.
func (d *LLMFollowupDetector) IsFollowup(
	ctx context.Context, newText string, newAt time.Time, priorText string, priorAt time.Time,
) (domain.Followup, error) {
	user := fmt.Sprintf(
		"Previous message (%s):\n%s\n\nNew message (%s, %s later):\n%s",
		priorAt.UTC().Format(time.RFC3339), priorText,
		newAt.UTC().Format(time.RFC3339), newAt.Sub(priorAt).Round(time.Second), newText,
	)
	resp, err := d.completer.Complete(ctx, followupSystemPrompt, user)
	if err != nil {
		return domain.FollowupFallback, fmt.Errorf("followup: %w", err)
	}

	var parsed followupResponse
	if err := decodeJSON(resp.Text, &parsed); err != nil {
		return domain.FollowupFallback, fmt.Errorf("followup: %w", err)
	}
	return domain.Followup{IsFollowup: parsed.IsFollowup, Confidence: clamp01(parsed.Confidence)}, nil
}

// LLMDisambiguator asks a chat model to pick among candidate issues.
type LLMDisambiguator struct {
	completer Completer
}

// NewLLMDisambiguator creates a disambiguator over c.
func NewLLMDisambiguator(c Completer) *LLMDisambiguator {
	return &LLMDisambiguator{completer: c}
}

// SelectIssue implements domain.Disambiguator. A pick outside the offered
// candidates is treated as none.
func (d *LLMDisambiguator) SelectIssue(
	ctx context.Context, text string, candidates []domain.Candidate, at time.Time,
) (string, error) {
	if len(candidates) == 0 {
		return "", nil
	}

	resp, err := d.completer.Complete(ctx, disambiguateSystemPrompt, disambiguationPrompt(text, candidates, at))
	if err != nil {
		return "", fmt.Errorf("disambiguate: %w", err)
	}

	var parsed disambiguateResponse
	if err := decodeJSON(resp.Text, &parsed); err != nil {
		return "", fmt.Errorf("disambiguate: %w", err)
	}
	if parsed.IssueID == nil {
		return "", nil
	}
	pick := strings.TrimSpace(*parsed.IssueID)
	for _, c := range candidates {
		if c.IssueID == pick {
			return pick, nil
		}
	}
	return "", nil
}

func disambiguationPrompt(text string, candidates []domain.Candidate, at time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Message (%s):\n%s\n\nCandidate issues:\n", at.UTC().Format(time.RFC3339), text)
	for _, c := range candidates {
		fmt.Fprintf(&b, "- id: %s\n  title: %s\n  label: %s\n  updated: %s\n",
			c.IssueID, c.Title, c.Label, c.UpdatedAt.UTC().Format(time.RFC3339))
		if c.Summary != "" {
			fmt.Fprintf(&b, "  summary: %s\n", c.Summary)
		}
	}
	return b.String()
}
