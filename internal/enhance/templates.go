// In file: internal/enhance/templates.go
package enhance

import (
	"fmt"
	"strings"

	"github.com/pehance/pehance/internal/classifier"
)

const methodologyPreamble = `You apply the 4-D method to prompt optimization.

1. DECONSTRUCT: extract the core intent, key entities and constraints; note what is missing.
2. DIAGNOSE: find ambiguity, gaps in specificity and missing output requirements.
3. DEVELOP: pick techniques that fit the request type and assign a suitable expert role.
4. DELIVER: describe how the final prompt should be structured.`

const contextSystem = `You are a domain context specialist. Given an analysed request, list the
domain knowledge, conventions and pitfalls an expert would bring to it. Be concise and
factual. Match the depth of context to the stated complexity. Do not write the prompt itself.`

const singleModeSuffix = `

SINGLE MODE: always return a complete, standalone enhanced prompt. Never ask questions
or request clarification. Turn any input into a useful, ready-to-run prompt.`

var complexityGuidance = map[string]string{
	classifier.LevelBasic: `BASIC: the request is simple. Improve clarity without over-engineering and keep
the result proportional to the input.`,
	classifier.LevelIntermediate: `INTERMEDIATE: the request has specific intent and moderate detail. Apply the
4-D method with targeted improvements: role, context, structure, clear deliverables.`,
	classifier.LevelAdvanced: `ADVANCED: the request is complex and professional. Apply the full 4-D method
with systematic frameworks, multiple perspectives and detailed specifications.`,
}

var categoryTechniques = map[string]string{
	classifier.CategoryCreative:  "multi-perspective analysis, tone emphasis, inspiration context",
	classifier.CategoryTechnical: "constraint-based precision, implementation details",
	classifier.CategoryBusiness:  "systematic frameworks, ROI focus, stakeholder considerations",
	classifier.CategoryAcademic:  "few-shot examples, clear structure, evidence requirements",
	classifier.CategoryPersonal:  "context layering, practical steps",
}

// greetingReplies are kept short: a greeting must never balloon into a wall of text.
var greetingReplies = []struct {
	key   string
	reply string
}{
	{"good morning", "Good morning! What are you working on today? Share it and I'll sharpen the prompt."},
	{"good afternoon", "Good afternoon! Tell me your task and I'll turn it into a precise prompt."},
	{"good evening", "Good evening! What should we build? Describe it and I'll craft the prompt."},
	{"greetings", "Greetings! Share a task or idea and I'll turn it into a clear, detailed prompt."},
	{"howdy", "Howdy! What can I help you write? Give me the idea and I'll shape the prompt."},
	{"hello", "Hello! Describe what you need and I'll turn it into a clear, effective prompt."},
	{"hey", "Hey! What's the task? Share it and I'll turn it into a focused prompt."},
	{"hi", "Hi! Tell me what you want to create and I'll turn it into a clear prompt."},
}

const fallbackGreeting = "Hello! Share what you want to create and I'll turn it into a clear prompt."

const fallbackClarification = "Could you share more about what you'd like to create? The more specific you are, the better the prompt."

func greetingReply(normalized string) string {
	for _, g := range greetingReplies {
		if strings.HasPrefix(normalized, g.key) {
			return g.reply
		}
	}
	return fallbackGreeting
}

func basicInstructions(r classifier.Result) string {
	return fmt.Sprintf(`You enhance prompts proportionally.

Request analysis:
- Intent: %s
- Input type: %s
- Complexity score: %.2f
- Mode: BASIC

Lightly enhance the user's request. Keep the original intent and tone, add structure only
where it genuinely helps, and keep the result proportional to the input. Output only the
enhanced prompt, with no explanations or meta-commentary.`, r.IntentCategory, r.InputType, r.InputComplexityScore)
}

func contextPrompt(prompt string, r classifier.Result) string {
	return fmt.Sprintf(`%s
Original user input: %q

Provide focused, relevant context for this %s request in the %s domain.
Match context depth to complexity level: %s (score %.2f).`,
		analysisSummary(r), prompt, r.IntentCategory, domainOf(r), r.ComplexityLevel, r.InputComplexityScore)
}

func methodologySystem() string {
	return methodologyPreamble + `

Give guidance only: which techniques, role and structure the final prompt should use.
Scale the depth of analysis to the complexity of the input.`
}

func methodologyPrompt(prompt string, r classifier.Result) string {
	return fmt.Sprintf(`%s
Original user input: %q

Apply 4-D analysis for this %s complexity %s request (score %.2f).`,
		analysisSummary(r), prompt, r.ComplexityLevel, r.IntentCategory, r.InputComplexityScore)
}

func enhancerInstructions(r classifier.Result, supportingContext, practices string, mode Mode) string {
	var b strings.Builder
	b.WriteString("You are Pehance, a prompt optimization specialist. Transform the user's input into a precise, ready-to-use prompt.\n\n")
	b.WriteString(methodologyPreamble)
	b.WriteString("\n\n")
	b.WriteString(analysisSummary(r))

	technique, ok := categoryTechniques[r.IntentCategory]
	if !ok {
		technique = "clarity enhancement, minimal structure, proportional improvements"
	}
	fmt.Fprintf(&b, "Optimization approach: %s\n\n", technique)

	if g, ok := complexityGuidance[r.ComplexityLevel]; ok {
		b.WriteString(g)
		b.WriteString("\n\n")
	}

	b.WriteString("Supporting domain context:\n")
	if supportingContext != "" {
		b.WriteString(supportingContext)
	} else {
		b.WriteString("None provided.")
	}
	b.WriteString("\n\nOptimization guidance:\n")
	if practices != "" {
		b.WriteString(practices)
	} else {
		b.WriteString("Apply standard 4-D principles.")
	}

	b.WriteString(`

Requirements:
- Keep the enhancement proportional to the complexity of the input.
- Assign a role, output specification and success criteria when they help.
- Output ONLY the optimized prompt: no meta-commentary, explanations or questions.`)

	if mode == ModeSingle {
		b.WriteString(singleModeSuffix)
	}
	return b.String()
}

func analysisSummary(r classifier.Result) string {
	return fmt.Sprintf(`Request analysis:
- Intent: %s
- Domain: %s
- Complexity: %s
- Confidence: %.0f%%
`, strings.ToUpper(r.IntentCategory), domainOf(r), strings.ToUpper(r.ComplexityLevel), r.Confidence*100)
}

func domainOf(r classifier.Result) string {
	if r.SpecificDomain != nil {
		return *r.SpecificDomain
	}
	return "general"
}
