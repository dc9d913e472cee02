// In file: internal/enhance/orchestrator.go

// Package enhance sequences the templated upstream calls that turn a prompt
// into its enhanced form.
package enhance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/pehance/pehance/internal/classifier"
	"github.com/pehance/pehance/internal/llm"
)

// Mode controls whether clarification questions may be returned.
type Mode string

const (
	ModeSingle Mode = "single"
	ModeMulti  Mode = "multi"
)

// Enhancement types reported alongside the pathway's own action name.
const (
	TypeGreeting      = "enhanced_greeting"
	TypeClarification = "clarification_request"
)

// Stage keys in Result.ModelsUsed.
const (
	StageClassification = "classification"
	StageContext        = "context"
	StageMethodology    = "methodology"
	StageEnhancement    = "enhancement"
)

// Process steps.
const (
	StepClassification = "intent_classification"
	StepClarification  = "clarification_routing"
	StepGreeting       = "greeting_template"
	StepBasic          = "basic_enhancement"
	StepContext        = "domain_context_research"
	StepMethodology    = "4d_methodology_application"
	StepOptimization   = "proportional_prompt_optimization"
)

const (
	localRulesModel    = "local_rules"
	greetingModel      = "greeting_template"
	clarificationModel = "clarification_template"

	// MaxEnhancementRatio bounds how much longer any returned prompt may be
	// than its input.
	MaxEnhancementRatio = 50

	contextMaxTokens     = 800
	methodologyMaxTokens = 800
	enhancerMaxTokens    = 2048
)

var (
	ErrEmptyPrompt = errors.New("prompt must not be empty")
	ErrInvalidMode = errors.New("mode must be 'single' or 'multi'")
)

// ParseMode maps a request mode onto a Mode; empty means single.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeSingle:
		return ModeSingle, nil
	case ModeMulti:
		return ModeMulti, nil
	default:
		return "", fmt.Errorf("%w: got %q", ErrInvalidMode, s)
	}
}

// ModelSelector picks the model for a task.
type ModelSelector interface {
	Select(ctx context.Context, task string, score float64, preferSpeed bool) (string, error)
}

// AgentResults describes what the sequencer actually did.
type AgentResults struct {
	IntentAnalysis            classifier.Result `json:"intent_analysis"`
	SupportingContextLength   int               `json:"supporting_context_length"`
	MethodologyGuidanceLength int               `json:"methodology_guidance_length"`
	DomainResearchPerformed   bool              `json:"domain_research_performed"`
	MethodologyApplied        bool              `json:"4d_methodology_applied"`
	ProcessSteps              []string          `json:"process_steps"`
}

// Result is the assembled enhancement response.
type Result struct {
	EnhancedPrompt   string            `json:"enhanced_prompt"`
	AgentResults     AgentResults      `json:"agent_results"`
	Mode             Mode              `json:"mode"`
	EnhancementType  string            `json:"enhancement_type"`
	EnhancementRatio float64           `json:"enhancement_ratio"`
	ComplexityScore  float64           `json:"complexity_score"`
	ModelsUsed       map[string]string `json:"models_used"`

	Usage    llm.Usage     `json:"-"`
	Duration time.Duration `json:"-"`
}

// Orchestrator runs classify → (clarify | [context →] [practices →] enhance).
type Orchestrator struct {
	classifier *classifier.Classifier
	client     llm.LLMClient
	selector   ModelSelector
	logger     *zap.Logger
}

func NewOrchestrator(c *classifier.Classifier, client llm.LLMClient, selector ModelSelector, logger *zap.Logger) *Orchestrator {
	if c == nil {
		c = classifier.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{classifier: c, client: client, selector: selector, logger: logger}
}

// Enhance classifies prompt and runs the matching pathway. Upstream failures
// are returned as-is (usually *llm.UpstreamError).
func (o *Orchestrator) Enhance(ctx context.Context, prompt string, mode Mode) (*Result, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, ErrEmptyPrompt
	}
	if mode == "" {
		mode = ModeSingle
	}
	if mode != ModeSingle && mode != ModeMulti {
		return nil, fmt.Errorf("%w: got %q", ErrInvalidMode, mode)
	}

	start := time.Now()
	intent := o.classifier.Classify(prompt)
	o.logger.Debug("prompt classified",
		zap.String("category", intent.IntentCategory),
		zap.Float64("score", intent.InputComplexityScore),
		zap.String("action", string(intent.SuggestedAction)),
		zap.String("mode", string(mode)))

	var (
		res *Result
		err error
	)
	if intent.SuggestedAction == classifier.ActionClarify {
		res = o.clarify(prompt, intent)
	} else {
		intent = upgrade(intent, mode)
		if intent.SuggestedAction == classifier.ActionBasic {
			res, err = o.basic(ctx, prompt, intent)
		} else {
			res, err = o.full(ctx, prompt, intent, mode)
		}
	}
	if err != nil {
		return nil, err
	}

	res.Mode = mode
	res.ComplexityScore = intent.InputComplexityScore
	res.AgentResults.IntentAnalysis = intent
	res.ModelsUsed[StageClassification] = localRulesModel
	res.EnhancementRatio = Ratio(res.EnhancedPrompt, prompt)
	res.Duration = time.Since(start)

	o.logger.Info("prompt enhanced",
		zap.String("type", res.EnhancementType),
		zap.Float64("ratio", res.EnhancementRatio),
		zap.Strings("steps", res.AgentResults.ProcessSteps),
		zap.Duration("duration", res.Duration))
	return res, nil
}

// upgrade applies the single-mode rule: small but meaningful requests get the
// full pipeline instead of a one-shot rewrite.
func upgrade(r classifier.Result, mode Mode) classifier.Result {
	if mode != ModeSingle || r.SuggestedAction != classifier.ActionBasic {
		return r
	}
	switch r.IntentCategory {
	case classifier.CategoryTechnical, classifier.CategoryCreative, classifier.CategoryBusiness:
	default:
		if r.InputComplexityScore >= 0.4 {
			return r
		}
	}
	r.SuggestedAction = classifier.ActionStandard
	r.InputComplexityScore = math.Max(0.5, r.InputComplexityScore)
	return r
}

func (o *Orchestrator) clarify(prompt string, intent classifier.Result) *Result {
	var out, typ, model, step string
	if intent.InputType == classifier.InputGreeting {
		out, typ, model, step = greetingReply(classifier.Normalize(prompt)), TypeGreeting, greetingModel, StepGreeting
	} else {
		out = fallbackClarification
		if intent.ConversationStarter != nil {
			out = *intent.ConversationStarter
		}
		typ, model, step = TypeClarification, clarificationModel, StepClarification
	}
	return &Result{
		EnhancedPrompt:  capLength(out, prompt),
		EnhancementType: typ,
		ModelsUsed:      map[string]string{StageEnhancement: model},
		AgentResults: AgentResults{
			ProcessSteps: []string{StepClassification, step},
		},
	}
}

func (o *Orchestrator) basic(ctx context.Context, prompt string, intent classifier.Result) (*Result, error) {
	model, err := o.selector.Select(ctx, llm.TaskBasicEnhancement, intent.InputComplexityScore, true)
	if err != nil {
		return nil, fmt.Errorf("failed to select basic enhancement model: %w", err)
	}

	var usage llm.Usage
	out, err := o.generate(ctx, model, basicInstructions(intent), prompt, basicMaxTokens(prompt), 0.5, &usage)
	if err != nil {
		return nil, err
	}
	return &Result{
		EnhancedPrompt:  capLength(out, prompt),
		EnhancementType: string(classifier.ActionBasic),
		ModelsUsed:      map[string]string{StageEnhancement: model},
		Usage:           usage,
		AgentResults: AgentResults{
			ProcessSteps: []string{StepClassification, StepBasic},
		},
	}, nil
}

func (o *Orchestrator) full(ctx context.Context, prompt string, intent classifier.Result, mode Mode) (*Result, error) {
	score := intent.InputComplexityScore
	res := &Result{
		EnhancementType: string(intent.SuggestedAction),
		ModelsUsed:      make(map[string]string, 4),
		AgentResults: AgentResults{
			ProcessSteps: []string{StepClassification},
		},
	}

	var supportingContext string
	if intent.RequiresContext && score > 0.4 {
		model, err := o.selector.Select(ctx, llm.TaskSupportingContent, score, false)
		if err != nil {
			return nil, fmt.Errorf("failed to select context model: %w", err)
		}
		supportingContext, err = o.generate(ctx, model, contextSystem, contextPrompt(prompt, intent), contextMaxTokens, 0.3, &res.Usage)
		if err != nil {
			return nil, err
		}
		res.ModelsUsed[StageContext] = model
		res.AgentResults.DomainResearchPerformed = true
		res.AgentResults.SupportingContextLength = utf8.RuneCountInString(supportingContext)
		res.AgentResults.ProcessSteps = append(res.AgentResults.ProcessSteps, StepContext)
	}

	var practices string
	if score > 0.5 {
		model, err := o.selector.Select(ctx, llm.TaskMethodology, score, false)
		if err != nil {
			return nil, fmt.Errorf("failed to select methodology model: %w", err)
		}
		practices, err = o.generate(ctx, model, methodologySystem(), methodologyPrompt(prompt, intent), methodologyMaxTokens, 0.4, &res.Usage)
		if err != nil {
			return nil, err
		}
		res.ModelsUsed[StageMethodology] = model
		res.AgentResults.MethodologyApplied = true
		res.AgentResults.MethodologyGuidanceLength = utf8.RuneCountInString(practices)
		res.AgentResults.ProcessSteps = append(res.AgentResults.ProcessSteps, StepMethodology)
	}

	model, err := o.selector.Select(ctx, llm.TaskEnhancement, score, false)
	if err != nil {
		return nil, fmt.Errorf("failed to select enhancement model: %w", err)
	}
	out, err := o.generate(ctx, model, enhancerInstructions(intent, supportingContext, practices, mode), prompt, enhancerMaxTokens, 0.7, &res.Usage)
	if err != nil {
		return nil, err
	}
	res.EnhancedPrompt = capLength(out, prompt)
	res.ModelsUsed[StageEnhancement] = model
	res.AgentResults.ProcessSteps = append(res.AgentResults.ProcessSteps, StepOptimization)
	return res, nil
}

// generate runs one templated call and returns the trimmed content.
func (o *Orchestrator) generate(ctx context.Context, model, system, user string, maxTokens int, temperature float32, usage *llm.Usage) (string, error) {
	result, err := o.client.Generate(ctx, llm.Conversation(system, user), &llm.GenerationConfig{
		Model:       model,
		MaxTokens:   maxTokens,
		Temperature: llm.Float32(temperature),
	})
	if err != nil {
		return "", err
	}
	usage.Add(result.Usage)

	out := strings.TrimSpace(result.Content)
	if out == "" {
		return "", &llm.UpstreamError{
			Model: model,
			Kind:  llm.KindBadResponse,
			Err:   errors.New("model returned empty content"),
		}
	}
	return out, nil
}

// basicMaxTokens scales the output budget with the input so short prompts get short rewrites.
func basicMaxTokens(prompt string) int {
	n := utf8.RuneCountInString(prompt)
	return min(max(n*4, 200), 1024)
}

// capLength trims out so Ratio(out, in) stays below MaxEnhancementRatio.
func capLength(out, in string) string {
	limit := utf8.RuneCountInString(in) * (MaxEnhancementRatio - 1)
	runes := []rune(out)
	if len(runes) <= limit {
		return out
	}
	cut := string(runes[:limit])
	if i := strings.LastIndexAny(cut, " \n"); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut)
}

// Ratio is len(out)/len(in) in characters, rounded to one decimal.
func Ratio(out, in string) float64 {
	n := utf8.RuneCountInString(in)
	if n == 0 {
		return 0
	}
	return math.Round(float64(utf8.RuneCountInString(out))/float64(n)*10) / 10
}

// MergeImageContext folds an image description into the user's prompt.
func MergeImageContext(prompt, description string) string {
	prompt = strings.TrimSpace(prompt)
	description = strings.TrimSpace(description)
	switch {
	case description == "":
		return prompt
	case prompt == "":
		return "Create a detailed prompt based on this image: " + description
	default:
		return prompt + "\n\nImage context: " + description
	}
}
