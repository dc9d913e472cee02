// In file: internal/classifier/classifier.go

// Package classifier decides how much enhancement a prompt deserves. It is a
// pure, local rule table: the same input always yields the same Result.
package classifier

import (
	"math"
	"regexp"
	"strings"
)

// Intent categories.
const (
	CategoryCreative   = "creative"
	CategoryTechnical  = "technical"
	CategoryBusiness   = "business"
	CategoryAcademic   = "academic"
	CategoryPersonal   = "personal"
	CategoryGreeting   = "greeting"
	CategoryIncomplete = "incomplete"
	CategoryOther      = "other"
)

// Complexity levels.
const (
	LevelBasic        = "basic"
	LevelIntermediate = "intermediate"
	LevelAdvanced     = "advanced"
)

// InputType describes the shape of the prompt.
type InputType string

const (
	InputGreeting    InputType = "greeting"
	InputIncomplete  InputType = "incomplete"
	InputMinimal     InputType = "minimal"
	InputSubstantial InputType = "substantial"
	InputComplex     InputType = "complex"
)

// Action is the pathway the router should take.
type Action string

const (
	ActionClarify  Action = "request_clarification"
	ActionBasic    Action = "basic_enhancement"
	ActionStandard Action = "standard_enhancement"
	ActionAdvanced Action = "advanced_enhancement"
)

const (
	greetingScore   = 0.1
	incompleteScore = 0.2

	greetingStarter   = "Hi! What would you like to work on today?"
	incompleteStarter = "What should I help with? Share the task and the result you need."
)

// Result is the structured classification of one prompt.
type Result struct {
	IntentCategory         string    `json:"intent_category"`
	Confidence             float64   `json:"confidence"`
	SpecificDomain         *string   `json:"specific_domain"`
	ComplexityLevel        string    `json:"complexity_level"`
	RequiresContext        bool      `json:"requires_context"`
	InputComplexityScore   float64   `json:"input_complexity_score"`
	EnhancementRecommended bool      `json:"enhancement_recommended"`
	SuggestedAction        Action    `json:"suggested_action"`
	ConversationStarter    *string   `json:"conversation_starter"`
	InputType              InputType `json:"input_type"`
}

// Classifier applies the rule table. The zero value is ready to use.
type Classifier struct{}

// New creates a Classifier.
func New() *Classifier {
	return &Classifier{}
}

// Classify scores prompt and picks a pathway.
func (c *Classifier) Classify(prompt string) Result {
	normalized := Normalize(prompt)
	words := strings.Fields(normalized)

	if greetingPattern.MatchString(normalized) {
		return clarification(CategoryGreeting, InputGreeting, greetingScore, 0.95, greetingStarter)
	}

	hasTask := taskPattern.MatchString(normalized) || questionPattern.MatchString(normalized)
	if !hasTask && len(words) <= 4 {
		return clarification(CategoryIncomplete, InputIncomplete, incompleteScore, 0.8, incompleteStarter)
	}

	category, domain, hits := detectCategory(normalized)
	score := scoreComplexity(normalized, len(words), hits)

	r := Result{
		IntentCategory:       category,
		Confidence:           confidenceFor(category, hits),
		ComplexityLevel:      levelFor(score),
		InputComplexityScore: score,
		InputType:            inputTypeFor(score),
		SuggestedAction:      ActionFor(score),
	}
	if domain != "" {
		r.SpecificDomain = &domain
	}
	r.RequiresContext = domain != "" || score >= 0.5
	r.EnhancementRecommended = true
	return r
}

// Normalize trims, lower-cases and collapses whitespace.
func Normalize(prompt string) string {
	return strings.Join(strings.Fields(strings.ToLower(prompt)), " ")
}

func clarification(category string, inputType InputType, score, confidence float64, starter string) Result {
	return Result{
		IntentCategory:       category,
		Confidence:           confidence,
		ComplexityLevel:      LevelBasic,
		InputComplexityScore: score,
		SuggestedAction:      ActionClarify,
		ConversationStarter:  &starter,
		InputType:            inputType,
	}
}

// scoreComplexity combines length, constraints, structure and archetype signals.
func scoreComplexity(normalized string, words, domainHits int) float64 {
	var score float64
	switch {
	case words <= 4:
		score = 0.30
	case words <= 12:
		score = 0.40
	case words <= 30:
		score = 0.55
	default:
		score = 0.70
	}

	constraints := len(constraintPattern.FindAllString(normalized, -1))
	score += 0.1 * float64(min(constraints, 2))

	if countSentences(normalized) >= 2 {
		score += 0.1
	}
	if advancedPattern.MatchString(normalized) {
		score += 0.15
	}
	if domainHits >= 2 {
		score += 0.05
	}
	return round2(math.Min(math.Max(score, 0), 1))
}

// detectCategory returns the best category, its strongest domain and the
// number of distinct keyword hits for that category.
func detectCategory(normalized string) (string, string, int) {
	bestCategory, bestDomain, bestHits := CategoryOther, "", 0
	for _, rule := range categoryRules {
		hits, domain, domainHits := 0, "", 0
		for _, d := range rule.domains {
			n := distinctMatches(d.pattern, normalized)
			hits += n
			if n > domainHits {
				domain, domainHits = d.label, n
			}
		}
		if hits > bestHits {
			bestCategory, bestDomain, bestHits = rule.category, domain, hits
		}
	}
	return bestCategory, bestDomain, bestHits
}

func distinctMatches(p *regexp.Regexp, s string) int {
	seen := make(map[string]struct{})
	for _, m := range p.FindAllString(s, -1) {
		seen[m] = struct{}{}
	}
	return len(seen)
}

func countSentences(normalized string) int {
	n := 0
	for _, s := range sentencePattern.FindAllString(normalized, -1) {
		if len(strings.Fields(strings.Trim(s, ".!? "))) > 0 {
			n++
		}
	}
	return n
}

func confidenceFor(category string, hits int) float64 {
	if category == CategoryOther {
		return 0.4
	}
	return round2(0.6 + 0.1*float64(min(hits, 3)))
}

// ActionFor maps a complexity score onto a pathway.
func ActionFor(score float64) Action {
	switch {
	case score < 0.3:
		return ActionClarify
	case score < 0.5:
		return ActionBasic
	case score < 0.7:
		return ActionStandard
	default:
		return ActionAdvanced
	}
}

func levelFor(score float64) string {
	switch {
	case score < 0.4:
		return LevelBasic
	case score < 0.7:
		return LevelIntermediate
	default:
		return LevelAdvanced
	}
}

func inputTypeFor(score float64) InputType {
	switch {
	case score < 0.45:
		return InputMinimal
	case score < 0.75:
		return InputSubstantial
	default:
		return InputComplex
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
