// Package llm provides the language model clients used by query rewriting,
// compression, and answer generation.
package llm

import (
	"context"
)

// GenerateOptions configures one generation request.
type GenerateOptions struct {
	// Model overrides the client's default model (e.g. "llama3.2", "qwen2.5").
	Model string

	// SystemPrompt sets the system-level instructions for the model.
	SystemPrompt string

	// Temperature controls randomness (0.0 = deterministic).
	Temperature float32

	// MaxTokens limits the response length; 0 means model default.
	MaxTokens int
}

// LLM is the generation capability required by the retrieval cascade. The
// cascade holds two of these: a general model and a domain-tuned one.
type LLM interface {
	// Generate sends a prompt and blocks until the full response arrives
	// or the context expires.
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
}
