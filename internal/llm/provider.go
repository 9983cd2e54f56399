// Package llm defines the provider-agnostic interface for text completions.
package llm

import "context"

// Provider is the abstraction over any completion backend (Groq, OpenAI, Ollama).
type Provider interface {
	// Complete sends a single-shot prompt and returns the model's text.
	Complete(ctx context.Context, req *Request) (*Response, error)
	// Name returns the provider identifier (e.g. "groq").
	Name() string
}

// Request is a single-shot completion request.
type Request struct {
	SystemPrompt string  // Optional system message. Empty = none.
	Prompt       string  // User prompt.
	MaxTokens    int     // 0 = provider default.
	Temperature  float64 // Sampling temperature. Zero is valid for deterministic extraction.
}

// Response is what the completion backend returns.
type Response struct {
	Text  string
	Usage Usage
}

// Usage tracks token consumption for cost accounting.
type Usage struct {
	InputTokens  int
	OutputTokens int
}
