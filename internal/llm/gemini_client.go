// In file: internal/llm/gemini_client.go
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiClient is the client for Google's Gemini models. One SDK client is
// shared; a fresh GenerativeModel handle is taken per call so concurrent
// requests never share sampling settings.
type GeminiClient struct {
	client *genai.Client
}

var _ LLMClient = (*GeminiClient)(nil)

func NewGeminiClient(ctx context.Context, apiKey string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, errors.New("gemini API key cannot be empty")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiClient{client: client}, nil
}

// Close releases the underlying SDK connection.
func (c *GeminiClient) Close() error {
	return c.client.Close()
}

// Generate performs a standard, blocking request to the Gemini API.
func (c *GeminiClient) Generate(ctx context.Context, messages []Message, config *GenerationConfig) (*GenerationResult, error) {
	if config == nil || config.Model == "" {
		return nil, errors.New("gemini request requires a model")
	}
	if len(messages) == 0 {
		return nil, errors.New("gemini request requires at least one message")
	}

	model := c.client.GenerativeModel(config.Model)
	configureModel(model, config)

	system, conversation := splitSystem(messages)
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	if len(conversation) == 0 {
		return nil, errors.New("gemini request requires a user message")
	}

	chat := model.StartChat()
	chat.History = toGeminiContentHistory(conversation[:len(conversation)-1])

	resp, err := chat.SendMessage(ctx, toGeminiParts(conversation[len(conversation)-1])...)
	if err != nil {
		return nil, geminiError(ctx, config.Model, err)
	}
	result, err := parseGeminiResponse(resp)
	if err != nil {
		return nil, &UpstreamError{Provider: ProviderGemini, Model: config.Model, Kind: KindBadResponse, Err: err}
	}
	result.Model = config.Model
	return result, nil
}

// configureModel applies sampling settings using the SDK's setter methods.
func configureModel(model *genai.GenerativeModel, config *GenerationConfig) {
	if config.Temperature != nil {
		model.SetTemperature(*config.Temperature)
	}
	if config.TopP != nil {
		model.SetTopP(*config.TopP)
	}
	if config.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(config.MaxTokens))
	} else {
		model.SetMaxOutputTokens(defaultMaxTokens)
	}
}

// splitSystem joins system messages into one instruction and returns the rest.
func splitSystem(messages []Message) (string, []Message) {
	var system []string
	rest := make([]Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == RoleSystem {
			system = append(system, msg.Content)
			continue
		}
		rest = append(rest, msg)
	}
	return strings.Join(system, "\n\n"), rest
}

func toGeminiParts(msg Message) []genai.Part {
	parts := make([]genai.Part, 0, len(msg.Images)+1)
	for _, img := range msg.Images {
		parts = append(parts, genai.Blob{MIMEType: img.MIMEType, Data: img.Data})
	}
	if msg.Content != "" {
		parts = append(parts, genai.Text(msg.Content))
	}
	return parts
}

// toGeminiContentHistory converts prior turns to the SDK's format.
func toGeminiContentHistory(messages []Message) []*genai.Content {
	var history []*genai.Content
	for _, msg := range messages {
		role := "user"
		if msg.Role == RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{Role: role, Parts: toGeminiParts(msg)})
	}
	return history
}

// parseGeminiResponse converts a Gemini API response into a GenerationResult.
func parseGeminiResponse(resp *genai.GenerateContentResponse) (*GenerationResult, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, errors.New("no content returned from Gemini")
	}

	var contentBuilder strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			contentBuilder.WriteString(string(txt))
		}
	}

	result := &GenerationResult{Content: strings.TrimSpace(contentBuilder.String())}
	if resp.UsageMetadata != nil {
		result.Usage.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		result.Usage.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		result.Usage.TotalTokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	return result, nil
}

// geminiError maps SDK errors onto UpstreamError. API errors expose the HTTP
// status through an HTTPCode method.
func geminiError(ctx context.Context, model string, err error) error {
	var coded interface{ HTTPCode() int }
	if errors.As(err, &coded) && coded.HTTPCode() > 0 {
		return statusError(ProviderGemini, model, coded.HTTPCode(), []byte(err.Error()))
	}
	return transportError(ctx, ProviderGemini, model, err)
}
