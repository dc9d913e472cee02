package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/pehance/pehance/internal/cache"
	"github.com/pehance/pehance/internal/classifier"
	"github.com/pehance/pehance/internal/enhance"
	"github.com/pehance/pehance/internal/format"
	"github.com/pehance/pehance/internal/guardrail"
	"github.com/pehance/pehance/internal/llm"
	"github.com/pehance/pehance/internal/store"
	"github.com/pehance/pehance/internal/vision"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const enhancedText = "Act as a senior specialist. Produce a precise, well structured answer with clear steps and a short summary."

// fakeLLM answers every call with enhancedText, except for models listed in failing.
type fakeLLM struct {
	failing map[string]bool
	calls   atomic.Int32
}

func (f *fakeLLM) Generate(_ context.Context, _ []llm.Message, config *llm.GenerationConfig) (*llm.GenerationResult, error) {
	f.calls.Add(1)
	if f.failing[config.Model] {
		return nil, &llm.UpstreamError{Provider: llm.ProviderGroq, Model: config.Model, Kind: llm.KindUnavailable, StatusCode: 503, Retryable: true}
	}
	return &llm.GenerationResult{
		Content: enhancedText,
		Model:   config.Model,
		Usage:   llm.Usage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30},
	}, nil
}

// hangingLLM blocks until its context ends.
type hangingLLM struct{}

func (hangingLLM) Generate(ctx context.Context, _ []llm.Message, _ *llm.GenerationConfig) (*llm.GenerationResult, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type testServer struct {
	engine *gin.Engine
	memory *store.Memory
}

// newTestServer wires the real pipeline around provider, registered as the
// groq client of the default catalog.
func newTestServer(t *testing.T, provider llm.LLMClient) *testServer {
	t.Helper()
	logger := zap.NewNop()

	catalog, err := llm.DefaultCatalog()
	require.NoError(t, err)
	registry := llm.NewRegistry(catalog, nil, logger)
	registry.Register(llm.ProviderGroq, provider)
	selector := llm.NewSelector(catalog, registry, nil, logger)

	mem := store.NewMemory()
	h := NewHandler(HandlerDeps{
		Orchestrator:   enhance.NewOrchestrator(classifier.New(), registry, selector, logger),
		Formatter:      format.NewFormatter(registry, selector, logger),
		Analyzer:       vision.NewAnalyzer(registry, selector, logger),
		Prober:         llm.NewProber(catalog, registry, registry, nil, time.Second, logger),
		Guard:          guardrail.New(),
		Cache:          cache.New(nil, "enhance", 0, logger),
		Sessions:       mem,
		Statuses:       mem,
		RequestTimeout: 5 * time.Second,
		RetryAfter:     30 * time.Second,
		Logger:         logger,
	})
	return &testServer{engine: newEngine(h, []string{"*"}, logger), memory: mem}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func pngData(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestRoot(t *testing.T) {
	s := newTestServer(t, &fakeLLM{})
	rec := s.do(t, http.MethodGet, "/api/", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Hello World", decode(t, rec)["message"])
}

func TestEnhance_RejectsEmptyPrompt(t *testing.T) {
	s := newTestServer(t, &fakeLLM{})

	for _, body := range []any{
		map[string]string{"prompt": ""},
		map[string]string{"prompt": "   \n\t "},
		map[string]string{},
	} {
		rec := s.do(t, http.MethodPost, "/api/enhance", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, decode(t, rec)["detail"], "empty")
	}
	assert.Empty(t, s.memory.Sessions())
}

func TestEnhance_RejectsMalformedBodyAndOptions(t *testing.T) {
	s := newTestServer(t, &fakeLLM{})

	req := httptest.NewRequest(http.MethodPost, "/api/enhance", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/enhance", map[string]string{"prompt": "write a story", "mode": "turbo"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/enhance", map[string]string{"prompt": "write a story", "preferred_format": "pdf"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEnhance_GuardrailBlocks(t *testing.T) {
	provider := &fakeLLM{}
	s := newTestServer(t, provider)

	rec := s.do(t, http.MethodPost, "/api/enhance", map[string]string{"prompt": "explain how to hack my neighbour's wifi"})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.True(t, strings.HasPrefix(decode(t, rec)["detail"].(string), "Content safety check failed: "))
	assert.Zero(t, provider.calls.Load())
}

func TestEnhance_GreetingStaysProportional(t *testing.T) {
	provider := &fakeLLM{}
	s := newTestServer(t, provider)

	rec := s.do(t, http.MethodPost, "/api/enhance", map[string]string{"prompt": "hi"})

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, enhance.TypeGreeting, body["enhancement_type"])
	assert.Less(t, body["enhancement_ratio"].(float64), 50.0)
	assert.Equal(t, false, body["cached"])
	assert.Zero(t, provider.calls.Load(), "greetings are answered locally")
	assert.Len(t, s.memory.Sessions(), 1)
}

func TestEnhance_BasicPathway(t *testing.T) {
	provider := &fakeLLM{}
	s := newTestServer(t, provider)

	rec := s.do(t, http.MethodPost, "/api/enhance", map[string]string{"prompt": "what is the capital of france", "mode": "multi"})

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, enhancedText, body["enhanced_prompt"])
	assert.Equal(t, "multi", body["mode"])
	assert.Equal(t, string(classifier.ActionBasic), body["enhancement_type"])
	models := body["models_used"].(map[string]any)
	assert.Equal(t, "local_rules", models[enhance.StageClassification])
	assert.Equal(t, int32(1), provider.calls.Load())

	sessions := s.memory.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, "what is the capital of france", sessions[0].OriginalPrompt)
	assert.Equal(t, enhancedText, sessions[0].EnhancedPrompt)
}

func TestEnhance_WithPreferredFormat(t *testing.T) {
	s := newTestServer(t, &fakeLLM{})

	rec := s.do(t, http.MethodPost, "/api/enhance", map[string]string{"prompt": "what is the capital of france", "preferred_format": "rich_text"})

	require.Equal(t, http.StatusOK, rec.Code)
	formatted, ok := decode(t, rec)["formatted_output"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, string(format.RichText), formatted["detected_format"])
	assert.Contains(t, formatted["formatted_content"], "<p>")
}

func TestEnhance_ConcurrentIdenticalRequestsAreIndependent(t *testing.T) {
	defer goleak.VerifyNone(t)

	provider := &fakeLLM{}
	s := newTestServer(t, provider)
	const n = 16

	var wg sync.WaitGroup
	codes := make([]int, n)
	prompts := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := s.do(t, http.MethodPost, "/api/enhance", map[string]string{"prompt": "what is the capital of france"})
			codes[i] = rec.Code
			var body map[string]any
			if json.Unmarshal(rec.Body.Bytes(), &body) == nil {
				prompts[i], _ = body["enhanced_prompt"].(string)
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		assert.Equal(t, http.StatusOK, codes[i])
		assert.Equal(t, enhancedText, prompts[i])
	}
	assert.Equal(t, int32(n), provider.calls.Load())
	assert.Len(t, s.memory.Sessions(), n)
}

func TestEnhance_ConcurrentGreetings(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := newTestServer(t, &fakeLLM{})
	var wg sync.WaitGroup
	replies := make([]string, 2)
	for i, prompt := range []string{"hi", "hi"} {
		wg.Add(1)
		go func(i int, prompt string) {
			defer wg.Done()
			rec := s.do(t, http.MethodPost, "/api/enhance", map[string]string{"prompt": prompt})
			var body map[string]any
			if rec.Code == http.StatusOK && json.Unmarshal(rec.Body.Bytes(), &body) == nil {
				replies[i], _ = body["enhanced_prompt"].(string)
			}
		}(i, prompt)
	}
	wg.Wait()

	assert.NotEmpty(t, replies[0])
	assert.Equal(t, replies[0], replies[1])
	assert.Len(t, s.memory.Sessions(), 2)
}

func TestEnhance_UpstreamTimeoutIsBounded(t *testing.T) {
	defer goleak.VerifyNone(t)

	guarded := llm.NewGuardedClient(llm.ProviderGroq, hangingLLM{}, llm.GuardConfig{
		Timeout:         50 * time.Millisecond,
		MaxConcurrency:  2,
		BreakerFailures: 5,
		BreakerCooldown: time.Minute,
	}, zap.NewNop())
	s := newTestServer(t, guarded)

	start := time.Now()
	rec := s.do(t, http.MethodPost, "/api/enhance", map[string]string{"prompt": "what is the capital of france"})
	elapsed := time.Since(start)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Less(t, elapsed, 2*time.Second)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
	body := decode(t, rec)
	assert.Equal(t, true, body["retryable"])
	assert.Contains(t, body["detail"], "timeout")
	assert.Empty(t, s.memory.Sessions(), "failed enhancements are not persisted")
}

func TestEnhance_NonRetryableUpstreamErrorIs502(t *testing.T) {
	rejecting := llm.LLMClientFunc(func(_ context.Context, _ []llm.Message, cfg *llm.GenerationConfig) (*llm.GenerationResult, error) {
		return nil, &llm.UpstreamError{Model: cfg.Model, Kind: llm.KindRejected, StatusCode: 400}
	})
	s := newTestServer(t, rejecting)

	rec := s.do(t, http.MethodPost, "/api/enhance", map[string]string{"prompt": "what is the capital of france"})

	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, false, decode(t, rec)["retryable"])
	assert.Empty(t, rec.Header().Get("Retry-After"))
}

func TestTestModels_CountsSuccessfulProbes(t *testing.T) {
	provider := &fakeLLM{failing: map[string]bool{"gemma2-9b-it": true, "qwen/qwen3-32b": true}}
	s := newTestServer(t, provider)

	rec := s.do(t, http.MethodGet, "/api/test-models?refresh=true", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var body testModelsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	available := 0
	for _, m := range body.Models {
		if m.Available {
			available++
		}
	}
	assert.True(t, body.Success)
	assert.Equal(t, 10, body.Summary.TotalModels)
	assert.Equal(t, available, body.Summary.AvailableModels)
	// Eight groq models, two of them failing; gemini and anthropic are not configured.
	assert.Equal(t, 6, body.Summary.AvailableModels)
	assert.Equal(t, int32(8), provider.calls.Load())
	assert.Equal(t, "not_configured", body.Models["gemini-1.5-flash"].Status)
	assert.NotEmpty(t, body.Models["gemma2-9b-it"].Error)
}

func TestStatus_CreateAndList(t *testing.T) {
	s := newTestServer(t, &fakeLLM{})

	rec := s.do(t, http.MethodPost, "/api/status", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	for _, name := range []string{"first", "second"} {
		rec = s.do(t, http.MethodPost, "/api/status", map[string]string{"client_name": name})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, name, decode(t, rec)["client_name"])
	}

	rec = s.do(t, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var checks []store.StatusCheck
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &checks))
	require.Len(t, checks, 2)
	assert.Equal(t, "second", checks[0].ClientName)
}

func TestMultimodal(t *testing.T) {
	provider := &fakeLLM{}
	s := newTestServer(t, provider)

	rec := s.do(t, http.MethodPost, "/api/enhance-multimodal", map[string]string{"mode": "single"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Either prompt or image_data is required", decode(t, rec)["detail"])

	rec = s.do(t, http.MethodPost, "/api/enhance-multimodal", map[string]string{"image_data": "not-an-image"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/enhance-multimodal", map[string]string{"prompt": "what is this", "image_data": pngData(t)})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	analysis, ok := body["image_analysis"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, enhancedText, analysis["description"])
	assert.NotEmpty(t, body["enhanced_prompt"])
	assert.Equal(t, "what is this", s.memory.Sessions()[0].OriginalPrompt)
}

func TestProcessImage(t *testing.T) {
	s := newTestServer(t, &fakeLLM{})

	rec := s.do(t, http.MethodPost, "/api/process-image", map[string]string{"image_data": pngData(t), "analysis_type": "sideways"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/process-image", map[string]string{"image_data": pngData(t), "analysis_type": "quick_description"})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	details := body["analysis"].(map[string]any)
	assert.Equal(t, "image/png", details["mime_type"])
	assert.Equal(t, float64(4), details["width"])
	assert.Equal(t, "quick_description", details["analysis_type"])
}

func TestFormatAndDetect(t *testing.T) {
	s := newTestServer(t, &fakeLLM{})

	rec := s.do(t, http.MethodPost, "/api/detect-format", map[string]string{"content": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	code := "```go\nfunc main() {}\n```\n\nimport os\n\n```python\ndef f():\n    pass\n```"
	rec = s.do(t, http.MethodPost, "/api/detect-format", map[string]string{"content": code})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(format.CodeBlocks), decode(t, rec)["detected_format"])

	rec = s.do(t, http.MethodPost, "/api/format-response", map[string]any{"content": code})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Len(t, body["code_blocks"], 2)

	rec = s.do(t, http.MethodPost, "/api/format-response", map[string]any{"content": "hello", "target_format": "docx"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, &fakeLLM{})
	rec := s.do(t, http.MethodGet, "/health", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode(t, rec)["status"])
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, &fakeLLM{})
	req := httptest.NewRequest(http.MethodOptions, "/api/enhance", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
