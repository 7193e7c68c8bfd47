package provider

import "context"

// Message represents a message in a conversation
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// StreamChunk is one increment of a streamed completion. The final chunk
// has Done set and carries no content.
type StreamChunk struct {
	Content string
	Done    bool
}

// CompletionOptions overrides per-call model parameters. Zero values fall
// back to the client defaults.
type CompletionOptions struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// Provider abstracts the LLM backend used for completions and embeddings.
type Provider interface {
	ChatCompletion(ctx context.Context, messages []Message, opts CompletionOptions) (string, error)
	StreamCompletion(ctx context.Context, messages []Message, opts CompletionOptions) (<-chan StreamChunk, error)
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}
