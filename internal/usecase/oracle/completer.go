// Package oracle implements the judgment oracles the clustering pipeline consults:
// message classification, follow-up detection and candidate disambiguation.
// LLM-backed oracles talk to a transport-neutral Completer; Guard bounds those calls
// and the Safe wrappers turn every failure into the contract fallback.
package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Completion is one chat completion with its token usage.
type Completion struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// TotalTokens returns input plus output tokens.
func (c Completion) TotalTokens() int { return c.InputTokens + c.OutputTokens }

// Completer sends a system and user prompt to a chat model.
// transport/openai and transport/anthropic implement it.
type Completer interface {
	Complete(ctx context.Context, system, user string) (Completion, error)
}

var (
	errEmptyResponse = errors.New("empty model response")
	errNoJSON        = errors.New("no JSON object in model response")

	codeFenceRegex = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")
)

// decodeJSON parses a JSON object out of a model response. It accepts bare JSON,
// JSON inside a code fence, and JSON surrounded by prose.
func decodeJSON(text string, out any) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return errEmptyResponse
	}
	if err := json.Unmarshal([]byte(text), out); err == nil {
		return nil
	}
	if m := codeFenceRegex.FindStringSubmatch(text); m != nil {
		if err := json.Unmarshal([]byte(m[1]), out); err == nil {
			return nil
		}
	}
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return errNoJSON
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), out); err != nil {
		return fmt.Errorf("decode model response: %w", err)
	}
	return nil
}

func clamp01(v float64) float64 {
	switch {
	case v != v: // NaN
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
