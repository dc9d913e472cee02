// In file: internal/llm/openai_client.go
package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// DefaultGroqBaseURL is the OpenAI-compatible endpoint the default catalog targets.
const DefaultGroqBaseURL = "https://api.groq.com/openai/v1"

// openAIRequest defines the top-level structure of a chat-completions call.
type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature *float32        `json:"temperature,omitempty"`
	TopP        *float32        `json:"top_p,omitempty"`
}

// openAIMessage carries either a plain string or a list of content parts.
type openAIMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type openAIContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIImageURL struct {
	URL string `json:"url"`
}

// openAIResponse is the structure of a successful non-streaming response.
type openAIResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

// OpenAIClient talks to any OpenAI-compatible chat-completions API. Pehance
// points it at Groq by default.
type OpenAIClient struct {
	provider   string
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Statically verify that OpenAIClient implements the LLMClient interface.
var _ LLMClient = (*OpenAIClient)(nil)

// NewOpenAIClient creates a client for an OpenAI-compatible provider.
// The model is specified per-request via GenerationConfig.
func NewOpenAIClient(provider, apiKey, baseURL string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%s API key cannot be empty", provider)
	}
	if baseURL == "" {
		baseURL = DefaultGroqBaseURL
	}
	return &OpenAIClient{
		provider: provider,
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}, nil
}

// WithHTTPClient swaps the underlying HTTP client.
func (c *OpenAIClient) WithHTTPClient(hc *http.Client) *OpenAIClient {
	c.httpClient = hc
	return c
}

// Generate performs a single blocking chat-completions request. Retries are
// the guard's job, so every failure is returned as an *UpstreamError.
func (c *OpenAIClient) Generate(ctx context.Context, messages []Message, config *GenerationConfig) (*GenerationResult, error) {
	if config == nil || config.Model == "" {
		return nil, errors.New("openai-compatible request requires a model")
	}
	payload, err := c.buildRequestPayload(messages, config)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request payload: %w", c.provider, err)
	}

	respBody, err := c.doRequest(ctx, config.Model, payload)
	if err != nil {
		return nil, err
	}

	result, err := parseOpenAIResponse(respBody)
	if err != nil {
		return nil, &UpstreamError{Provider: c.provider, Model: config.Model, Kind: KindBadResponse, Err: err}
	}
	if result.Model == "" {
		result.Model = config.Model
	}
	return result, nil
}

// buildRequestPayload constructs the JSON body for the API call.
func (c *OpenAIClient) buildRequestPayload(messages []Message, config *GenerationConfig) ([]byte, error) {
	req := openAIRequest{
		Model:       config.Model,
		Messages:    toOpenAIMessages(messages),
		Temperature: config.Temperature,
		TopP:        config.TopP,
	}
	if config.MaxTokens > 0 {
		req.MaxTokens = config.MaxTokens
	}
	return json.Marshal(req)
}

// doRequest performs one HTTP round trip.
func (c *OpenAIClient) doRequest(ctx context.Context, model string, payload []byte) ([]byte, error) {
	req, err := c.createRequest(ctx, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(ctx, c.provider, model, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(ctx, c.provider, model, fmt.Errorf("failed to read response body: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(c.provider, model, resp.StatusCode, body)
	}
	return body, nil
}

// createRequest is a helper to build the common parts of an http.Request.
func (c *OpenAIClient) createRequest(ctx context.Context, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", body)
	if err != nil {
		return nil, fmt.Errorf("failed to create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	return req, nil
}

// toOpenAIMessages converts internal messages. Messages with images become
// content-part arrays with data URLs.
func toOpenAIMessages(messages []Message) []openAIMessage {
	out := make([]openAIMessage, 0, len(messages))
	for _, msg := range messages {
		if len(msg.Images) == 0 {
			out = append(out, openAIMessage{Role: string(msg.Role), Content: msg.Content})
			continue
		}
		parts := make([]openAIContentPart, 0, len(msg.Images)+1)
		if msg.Content != "" {
			parts = append(parts, openAIContentPart{Type: "text", Text: msg.Content})
		}
		for _, img := range msg.Images {
			url := "data:" + img.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
			parts = append(parts, openAIContentPart{Type: "image_url", ImageURL: &openAIImageURL{URL: url}})
		}
		out = append(out, openAIMessage{Role: string(msg.Role), Content: parts})
	}
	return out
}

// parseOpenAIResponse converts a full API response to a GenerationResult.
func parseOpenAIResponse(body []byte) (*GenerationResult, error) {
	var resp openAIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("no choices returned")
	}
	return &GenerationResult{
		Content: strings.TrimSpace(resp.Choices[0].Message.Content),
		Model:   resp.Model,
		Usage:   resp.Usage,
	}, nil
}
