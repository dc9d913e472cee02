// In file: internal/llm/client.go
package llm

import (
	"context"
)

// =================================================================================
// Core Data Structures
// =================================================================================

// Role represents the originator of a message in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Image is an inline image attached to a user message. Data holds the decoded bytes.
type Image struct {
	MIMEType string
	Data     []byte
}

// Message represents a single message sent to a model.
type Message struct {
	Role    Role    `json:"role"`
	Content string  `json:"content"`
	Images  []Image `json:"-"`
}

// GenerationConfig holds the parameters that control a single generation call.
type GenerationConfig struct {
	// The catalog name of the model to use (e.g. "llama-3.1-8b-instant").
	Model string
	// Using a pointer allows us to distinguish between a value of 0.0 and an unset value.
	Temperature *float32
	MaxTokens   int
	TopP        *float32
}

// Usage is the token accounting reported by a provider.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates another usage record into u.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// GenerationResult holds the complete output from an LLM call.
type GenerationResult struct {
	Content string
	Model   string
	Usage   Usage
}

// =================================================================================
// LLM Client Interface
// =================================================================================

// LLMClient is the interface every provider client, the guard and the registry implement.
type LLMClient interface {
	// Generate performs a blocking request and returns the complete result.
	// Implementations must honour ctx cancellation.
	Generate(ctx context.Context, messages []Message, config *GenerationConfig) (*GenerationResult, error)
}

// Float32 returns a pointer to v, for optional sampling parameters.
func Float32(v float32) *float32 {
	return &v
}

// LLMClientFunc adapts an ordinary function to the LLMClient interface.
type LLMClientFunc func(ctx context.Context, messages []Message, config *GenerationConfig) (*GenerationResult, error)

func (f LLMClientFunc) Generate(ctx context.Context, messages []Message, config *GenerationConfig) (*GenerationResult, error) {
	return f(ctx, messages, config)
}
