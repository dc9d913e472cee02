// In file: internal/llm/constants.go
package llm

import "time"

// This file centralizes constants shared across the provider clients and the guard.
const (
	defaultTimeout   = 120 * time.Second
	defaultMaxTokens = 1024

	// Retry policy for rate-limited upstream calls.
	maxRetries        = 3
	initialRetryDelay = 1 * time.Second
	maxRetryDelay     = 30 * time.Second
	retryJitterPct    = 10

	// Provider names used in the catalog.
	ProviderGroq      = "groq"
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"

	// Task names used for model selection.
	TaskBasicEnhancement  = "basic_enhancement"
	TaskSupportingContent = "supporting_content"
	TaskMethodology       = "methodology"
	TaskEnhancement       = "enhancement"
	TaskFormatting        = "formatting"
	TaskVision            = "vision"
)
