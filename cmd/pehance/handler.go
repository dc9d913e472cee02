// In file: cmd/pehance/handler.go
package main

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pehance/pehance/internal/cache"
	"github.com/pehance/pehance/internal/enhance"
	"github.com/pehance/pehance/internal/format"
	"github.com/pehance/pehance/internal/guardrail"
	"github.com/pehance/pehance/internal/llm"
	"github.com/pehance/pehance/internal/store"
	"github.com/pehance/pehance/internal/vision"
)

const statusListLimit = 1000

// HealthCheck reports whether one dependency is reachable.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Handler serves the HTTP API. All collaborators are safe for concurrent use.
type Handler struct {
	orchestrator   *enhance.Orchestrator
	formatter      *format.Formatter
	analyzer       *vision.Analyzer
	prober         *llm.Prober
	guard          *guardrail.Guard
	cache          *cache.Cache
	sessions       store.SessionSink
	statuses       store.StatusStore
	health         []HealthCheck
	requestTimeout time.Duration
	retryAfter     time.Duration
	logger         *zap.Logger
}

// HandlerDeps groups the Handler's collaborators.
type HandlerDeps struct {
	Orchestrator   *enhance.Orchestrator
	Formatter      *format.Formatter
	Analyzer       *vision.Analyzer
	Prober         *llm.Prober
	Guard          *guardrail.Guard
	Cache          *cache.Cache
	Sessions       store.SessionSink
	Statuses       store.StatusStore
	Health         []HealthCheck
	RequestTimeout time.Duration
	RetryAfter     time.Duration
	Logger         *zap.Logger
}

func NewHandler(d HandlerDeps) *Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Guard == nil {
		d.Guard = guardrail.New()
	}
	if d.Cache == nil {
		d.Cache = cache.New(nil, "enhance", 0, d.Logger)
	}
	if d.RetryAfter <= 0 {
		d.RetryAfter = 30 * time.Second
	}
	return &Handler{
		orchestrator:   d.Orchestrator,
		formatter:      d.Formatter,
		analyzer:       d.Analyzer,
		prober:         d.Prober,
		guard:          d.Guard,
		cache:          d.Cache,
		sessions:       d.Sessions,
		statuses:       d.Statuses,
		health:         d.Health,
		requestTimeout: d.RequestTimeout,
		retryAfter:     d.RetryAfter,
		logger:         d.Logger,
	}
}

func registerRoutes(engine *gin.Engine, h *Handler) {
	engine.GET("/health", h.HandleHealth)

	api := engine.Group("/api")
	{
		api.GET("/", h.HandleRoot)
		api.POST("/status", h.HandleCreateStatus)
		api.GET("/status", h.HandleListStatus)
		api.GET("/test-models", h.HandleTestModels)
		api.POST("/enhance", h.HandleEnhance)
		api.POST("/enhance-multimodal", h.HandleEnhanceMultimodal)
		api.POST("/process-image", h.HandleProcessImage)
		api.POST("/format-response", h.HandleFormatResponse)
		api.POST("/detect-format", h.HandleDetectFormat)
	}
}

// --- request and response bodies ---

type enhanceRequest struct {
	Prompt          string `json:"prompt"`
	Mode            string `json:"mode"`
	PreferredFormat string `json:"preferred_format"`
}

type multimodalRequest struct {
	Prompt          string `json:"prompt"`
	ImageData       string `json:"image_data"`
	Mode            string `json:"mode"`
	PreferredFormat string `json:"preferred_format"`
}

type enhanceResponse struct {
	enhance.Result
	FormattedOutput *format.Result   `json:"formatted_output,omitempty"`
	ImageAnalysis   *vision.Analysis `json:"image_analysis,omitempty"`
	Cached          bool             `json:"cached"`
}

type statusRequest struct {
	ClientName string `json:"client_name" binding:"required"`
}

type processImageRequest struct {
	ImageData    string `json:"image_data"`
	AnalysisType string `json:"analysis_type"`
}

type processImageResponse struct {
	Success bool `json:"success"`
	*vision.Analysis
}

type formatRequest struct {
	Content        string `json:"content"`
	TargetFormat   string `json:"target_format"`
	EnhanceQuality bool   `json:"enhance_quality"`
}

type detectRequest struct {
	Content string `json:"content"`
}

type modelStatus struct {
	Available            bool      `json:"available"`
	Status               string    `json:"status"`
	Tier                 string    `json:"tier"`
	Provider             string    `json:"provider"`
	PerformanceTokensSec int       `json:"performance_tokens_sec"`
	Features             []string  `json:"features"`
	Vision               bool      `json:"vision"`
	LatencyMS            int64     `json:"latency_ms"`
	Cached               bool      `json:"cached"`
	Error                string    `json:"error,omitempty"`
	CheckedAt            time.Time `json:"checked_at"`
}

type testModelsResponse struct {
	Success   bool                   `json:"success"`
	Models    map[string]modelStatus `json:"models"`
	Summary   llm.ProbeSummary       `json:"summary"`
	Timestamp time.Time              `json:"timestamp"`
}

// --- handlers ---

func (h *Handler) HandleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Hello World"})
}

func (h *Handler) HandleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status, code := "healthy", http.StatusOK
	checks := make(map[string]string, len(h.health))
	for _, hc := range h.health {
		if err := hc.Check(ctx); err != nil {
			checks[hc.Name] = err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		checks[hc.Name] = "ok"
	}
	c.JSON(code, gin.H{"status": status, "checks": checks, "build": GetBuildInfo()})
}

func (h *Handler) HandleCreateStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.ClientName) == "" {
		badRequest(c, "client_name is required")
		return
	}
	check, err := h.statuses.CreateStatus(c.Request.Context(), strings.TrimSpace(req.ClientName))
	if err != nil {
		h.logger.Error("failed to create status check", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to store status check"})
		return
	}
	c.JSON(http.StatusOK, check)
}

func (h *Handler) HandleListStatus(c *gin.Context) {
	checks, err := h.statuses.ListStatus(c.Request.Context(), statusListLimit)
	if err != nil {
		h.logger.Error("failed to list status checks", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to load status checks"})
		return
	}
	if checks == nil {
		checks = []store.StatusCheck{}
	}
	c.JSON(http.StatusOK, checks)
}

func (h *Handler) HandleTestModels(c *gin.Context) {
	refresh, _ := strconv.ParseBool(c.DefaultQuery("refresh", "false"))

	results := h.prober.ProbeAll(c.Request.Context(), refresh)
	models := make(map[string]modelStatus, len(results))
	for _, r := range results {
		ms := modelStatus{
			Available:            r.Available,
			Status:               r.Status,
			Tier:                 r.Model.Tier,
			Provider:             r.Model.Provider,
			PerformanceTokensSec: r.Model.PerformanceTokensSec,
			Features:             r.Model.Features,
			Vision:               r.Model.Vision,
			LatencyMS:            r.Latency.Milliseconds(),
			Cached:               r.Cached,
			CheckedAt:            r.CheckedAt,
		}
		if r.Err != nil {
			ms.Error = r.Err.Error()
		}
		models[r.Model.Name] = ms
	}

	c.JSON(http.StatusOK, testModelsResponse{
		Success:   true,
		Models:    models,
		Summary:   llm.Summarize(results),
		Timestamp: time.Now().UTC(),
	})
}

func (h *Handler) HandleEnhance(c *gin.Context) {
	var req enhanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		badRequest(c, "Prompt cannot be empty")
		return
	}
	mode, target, ok := parseEnhanceOptions(c, req.Mode, req.PreferredFormat)
	if !ok {
		return
	}
	if !h.passesGuardrail(c, prompt) {
		return
	}

	cacheKey := h.cache.Key(string(mode), prompt, string(target))
	var cached enhanceResponse
	if h.cache.Get(c.Request.Context(), cacheKey, &cached) {
		h.logger.Debug("enhancement cache hit", zap.String("mode", string(mode)))
		cached.Cached = true
		c.JSON(http.StatusOK, cached)
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	resp, err := h.enhance(ctx, prompt, prompt, mode, target)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.cache.Set(ctx, cacheKey, resp)
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) HandleEnhanceMultimodal(c *gin.Context) {
	var req multimodalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" && strings.TrimSpace(req.ImageData) == "" {
		badRequest(c, "Either prompt or image_data is required")
		return
	}
	mode, target, ok := parseEnhanceOptions(c, req.Mode, req.PreferredFormat)
	if !ok {
		return
	}
	if prompt != "" && !h.passesGuardrail(c, prompt) {
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	var analysis *vision.Analysis
	merged := prompt
	if strings.TrimSpace(req.ImageData) != "" {
		img, err := vision.Decode(req.ImageData)
		if err != nil {
			badRequest(c, "Invalid image: "+err.Error())
			return
		}
		analysis, err = h.analyzer.Analyze(ctx, img, vision.Comprehensive)
		if err != nil {
			h.respondError(c, err)
			return
		}
		merged = enhance.MergeImageContext(prompt, analysis.Description)
	}

	resp, err := h.enhance(ctx, merged, prompt, mode, target)
	if err != nil {
		h.respondError(c, err)
		return
	}
	resp.ImageAnalysis = analysis
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) HandleProcessImage(c *gin.Context) {
	var req processImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}
	analysisType, err := vision.ParseAnalysisType(req.AnalysisType)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	img, err := vision.Decode(req.ImageData)
	if err != nil {
		badRequest(c, "Invalid image: "+err.Error())
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	analysis, err := h.analyzer.Analyze(ctx, img, analysisType)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, processImageResponse{Success: true, Analysis: analysis})
}

func (h *Handler) HandleFormatResponse(c *gin.Context) {
	var req formatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		badRequest(c, "Content cannot be empty")
		return
	}
	target, err := format.ParseFormat(req.TargetFormat)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	res, err := h.formatter.Format(ctx, req.Content, target, req.EnhanceQuality)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) HandleDetectFormat(c *gin.Context) {
	var req detectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		badRequest(c, "Content cannot be empty")
		return
	}
	c.JSON(http.StatusOK, format.Detect(req.Content))
}

// --- helpers ---

// enhance runs the sequencer on prompt, applies the optional output format and
// persists the session. original is what the user typed.
func (h *Handler) enhance(ctx context.Context, prompt, original string, mode enhance.Mode, target format.Format) (*enhanceResponse, error) {
	res, err := h.orchestrator.Enhance(ctx, prompt, mode)
	if err != nil {
		return nil, err
	}
	h.logger.Debug("enhancement usage",
		zap.String("enhancement_type", res.EnhancementType),
		zap.Int("total_tokens", res.Usage.TotalTokens),
	)

	resp := &enhanceResponse{Result: *res}
	if target != "" {
		formatted, err := h.formatter.Format(ctx, res.EnhancedPrompt, target, false)
		if err != nil {
			h.logger.Warn("failed to format enhanced prompt", zap.String("format", string(target)), zap.Error(err))
		} else {
			resp.FormattedOutput = formatted
		}
	}

	store.SaveBestEffort(ctx, h.sessions, store.Session{
		ID:               uuid.New(),
		OriginalPrompt:   original,
		EnhancedPrompt:   res.EnhancedPrompt,
		Mode:             string(mode),
		EnhancementType:  res.EnhancementType,
		EnhancementRatio: res.EnhancementRatio,
		ComplexityScore:  res.ComplexityScore,
		ModelsUsed:       res.ModelsUsed,
		CreatedAt:        time.Now().UTC(),
	}, h.logger)
	return resp, nil
}

func parseEnhanceOptions(c *gin.Context, rawMode, rawFormat string) (enhance.Mode, format.Format, bool) {
	mode, err := enhance.ParseMode(rawMode)
	if err != nil {
		badRequest(c, err.Error())
		return "", "", false
	}
	if strings.TrimSpace(rawFormat) == "" {
		return mode, "", true
	}
	target, err := format.ParseFormat(rawFormat)
	if err != nil {
		badRequest(c, err.Error())
		return "", "", false
	}
	return mode, target, true
}

func (h *Handler) passesGuardrail(c *gin.Context, prompt string) bool {
	verdict := h.guard.Check(prompt)
	if !verdict.Flagged {
		return true
	}
	h.logger.Warn("prompt rejected by guardrail", zap.Strings("categories", verdict.Categories))
	badRequest(c, "Content safety check failed: "+verdict.Reason)
	return false
}

func (h *Handler) requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	if h.requestTimeout <= 0 {
		return context.WithCancel(c.Request.Context())
	}
	return context.WithTimeout(c.Request.Context(), h.requestTimeout)
}

// respondError maps a pipeline error onto an HTTP status.
func (h *Handler) respondError(c *gin.Context, err error) {
	_ = c.Error(err)

	switch {
	case errors.Is(err, enhance.ErrEmptyPrompt), errors.Is(err, enhance.ErrInvalidMode),
		errors.Is(err, format.ErrEmptyContent), errors.Is(err, format.ErrUnknownFormat),
		errors.Is(err, vision.ErrUnknownAnalysis):
		badRequest(c, err.Error())
		return
	}

	if ue, ok := llm.AsUpstreamError(err); ok {
		h.logger.Warn("upstream call failed",
			zap.String("provider", ue.Provider),
			zap.String("model", ue.Model),
			zap.String("kind", string(ue.Kind)),
			zap.Int("status_code", ue.StatusCode),
			zap.Bool("retryable", ue.Retryable),
		)
		if ue.Retryable {
			h.unavailable(c, "Enhancement service temporarily unavailable: "+ue.Error())
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"detail": "Upstream model error: " + ue.Error(), "retryable": false})
		return
	}

	switch {
	case errors.Is(err, llm.ErrNoModel):
		h.unavailable(c, "No model is available for this request")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		h.unavailable(c, "Enhancement timed out")
	default:
		h.logger.Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal server error"})
	}
}

func (h *Handler) unavailable(c *gin.Context, detail string) {
	c.Header("Retry-After", strconv.Itoa(int(h.retryAfter.Seconds())))
	c.JSON(http.StatusServiceUnavailable, gin.H{"detail": detail, "retryable": true})
}

func badRequest(c *gin.Context, detail string) {
	c.JSON(http.StatusBadRequest, gin.H{"detail": detail})
}
