// Package llm defines the chat completion port used by the query rewriter.
package llm

import "context"

// Message is one turn of a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a chat completion request.
type Request struct {
	System      string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Response is the generated completion.
type Response struct {
	Content    string
	TokensUsed int
}

// Provider generates chat completions. Implementations must respect the
// context deadline.
type Provider interface {
	Complete(ctx context.Context, request Request) (Response, error)
}
