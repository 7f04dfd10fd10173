package oracle

import (
	"context"
	"fmt"
	"strings"

	"github.com/kailas-cloud/triage/internal/domain"
	"github.com/kailas-cloud/triage/internal/domain/issue"
	"github.com/kailas-cloud/triage/internal/domain/label"
)

var classifySystemPrompt = `You triage messages from a customer support chat channel.
Classify the message and answer with one JSON object:
{
  "label": ` + labelChoices() + `,
  "is_relevant": boolean,
  "confidence": number between 0 and 1,
  "summary": "short summary of the issue"
}
Relevant messages are support questions, bug reports, feature requests and product questions.
Greetings, social chatter, acknowledgments ("ok", "thanks") and logistics are irrelevant.`

// labelChoices renders every known label as a JSON alternative list.
func labelChoices() string {
	all := label.All()
	quoted := make([]string, len(all))
	for i, l := range all {
		quoted[i] = fmt.Sprintf("%q", l.String())
	}
	return strings.Join(quoted, " | ")
}

type classifyResponse struct {
	Label      string  `json:"label"`
	IsRelevant bool    `json:"is_relevant"`
	Confidence float64 `json:"confidence"`
	Summary    string  `json:"summary"`
}

// LLMClassifier labels messages through a chat model.
type LLMClassifier struct {
	completer Completer
}

// NewLLMClassifier creates a classifier over c.
func NewLLMClassifier(c Completer) *LLMClassifier {
	return &LLMClassifier{completer: c}
}

// Classify implements domain.Classifier.
func (c *LLMClassifier) Classify(ctx context.Context, text string) (domain.Classification, error) {
	resp, err := c.completer.Complete(ctx, classifySystemPrompt, text)
	if err != nil {
		return domain.ClassificationFallback, fmt.Errorf("classify: %w", err)
	}

	var parsed classifyResponse
	if err := decodeJSON(resp.Text, &parsed); err != nil {
		return domain.ClassificationFallback, fmt.Errorf("classify: %w", err)
	}

	l := label.Parse(parsed.Label)
	if l.IsZero() {
		l = label.Irrelevant
	}
	relevant := parsed.IsRelevant && l != label.Irrelevant
	if !relevant {
		l = label.Irrelevant
	}
	return domain.Classification{
		Label:      l,
		IsRelevant: relevant,
		Confidence: clamp01(parsed.Confidence),
		Summary:    strings.TrimSpace(parsed.Summary),
	}, nil
}

// keywordRule maps trigger words to a label.
type keywordRule struct {
	words      []string
	label      label.Label
	confidence float64
	prefix     string
}

var keywordRules = []keywordRule{
	{words: []string{"bug", "crash", "error"}, label: label.BugReport, confidence: 0.9, prefix: "Bug"},
	{words: []string{"help", "how"}, label: label.SupportQuestion, confidence: 0.8, prefix: "Support"},
	{words: []string{"feature", "add"}, label: label.FeatureRequest, confidence: 0.8, prefix: "Feature"},
}

const keywordSummaryRunes = 30

// KeywordClassifier is the credential-less classifier. It matches substrings of
// the lower-cased text against fixed trigger words, first rule wins.
type KeywordClassifier struct{}

// NewKeywordClassifier creates a keyword classifier.
func NewKeywordClassifier() KeywordClassifier { return KeywordClassifier{} }

// Classify implements domain.Classifier. It never fails.
func (KeywordClassifier) Classify(_ context.Context, text string) (domain.Classification, error) {
	lower := strings.ToLower(text)
	for _, r := range keywordRules {
		for _, w := range r.words {
			if strings.Contains(lower, w) {
				return domain.Classification{
					Label:      r.label,
					IsRelevant: true,
					Confidence: r.confidence,
					Summary:    r.prefix + ": " + issue.Truncate(text, keywordSummaryRunes) + "...",
				}, nil
			}
		}
	}
	return domain.ClassificationFallback, nil
}
