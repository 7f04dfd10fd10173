package triage

import "context"

// Embedder converts text to vector embeddings.
// Vectors must have the configured dimension; they are L2-normalized by the client.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// EmbeddingResult carries the embedding vector and token counts.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// Completer sends a system and user prompt to a chat model and returns its reply.
// The classifier and the judge parse JSON out of Text.
type Completer interface {
	Complete(ctx context.Context, system, user string) (Completion, error)
}

// Completion is one chat completion with its token usage.
type Completion struct {
	Text         string
	InputTokens  int
	OutputTokens int
}
