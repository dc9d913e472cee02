// In file: internal/classifier/rules.go
package classifier

import "regexp"

// =================================================================================
// Rule Table
// =================================================================================
// Every pattern runs against the normalised (trimmed, lower-cased,
// whitespace-collapsed) prompt.
// =================================================================================

var (
	greetingPattern = regexp.MustCompile(
		`^(?:hi|hii+|hello|hey|heya|hiya|howdy|greetings|yo|sup|hola|good\s+(?:morning|afternoon|evening|day))` +
			`(?:\s+(?:there|pehance|everyone|all|friend|again))?[\s!.,?]*$`,
	)

	// A task is an imperative verb followed by something to act on.
	taskPattern = regexp.MustCompile(
		`\b(?:write|create|build|design|develop|implement|generate|explain|plan|analy[sz]e|summari[sz]e|draft|` +
			`compose|outline|translate|compare|optimi[sz]e|review|debug|refactor|make|list|describe|teach|research|` +
			`calculate|fix|improve|rewrite|prepare|propose|brainstorm|suggest|recommend|evaluate|test|deploy|convert|` +
			`edit|organi[sz]e|schedule|find|tell|give|show|help\s+me\s+\w+)\b\s+\S+`,
	)

	// Questions with at least two words after the question word also name a task.
	questionPattern = regexp.MustCompile(
		`^(?:what|how|why|when|where|which|who|can|could|would|should|is|are|do|does)\b(?:\s+\S+){2,}`,
	)

	constraintPattern = regexp.MustCompile(
		`\b(?:with|using|including|for|that|must|should|without|within|under|at least|no more than|\d+)\b`,
	)

	advancedPattern = regexp.MustCompile(
		`\b(?:design a|architect|architecture|comprehensive|end-to-end|strategy|framework|scalable|production|` +
			`distributed|enterprise|detailed plan|in-depth|multi-tenant|high availability)\b`,
	)

	sentencePattern = regexp.MustCompile(`[^.!?]+[.!?]*`)
)

// domainRule maps a set of keywords to a human-readable domain label.
type domainRule struct {
	label   string
	pattern *regexp.Regexp
}

// categoryRule groups the domains of one intent category. Order matters:
// earlier categories win ties.
type categoryRule struct {
	category string
	domains  []domainRule
}

var categoryRules = []categoryRule{
	{
		category: CategoryTechnical,
		domains: []domainRule{
			{"software development", regexp.MustCompile(`\b(?:code|coding|program|programming|function|class|api|apis|endpoint|backend|frontend|database|sql|python|golang|javascript|typescript|react|rest|graphql|microservices?|bug|algorithm|script|app|application|website|deploy|docker|kubernetes|server|rate limiting)\b`)},
			{"data science", regexp.MustCompile(`\b(?:data|dataset|machine learning|ml|neural network|statistics|analytics|pandas|regression|visuali[sz]ation)\b`)},
			{"cybersecurity", regexp.MustCompile(`\b(?:security|authentication|authorization|encryption|vulnerability|oauth|jwt|firewall)\b`)},
			{"devops", regexp.MustCompile(`\b(?:ci/cd|pipeline|terraform|infrastructure|cloud|aws|gcp|azure|monitoring)\b`)},
		},
	},
	{
		category: CategoryCreative,
		domains: []domainRule{
			{"creative writing", regexp.MustCompile(`\b(?:story|stories|poem|poetry|novel|fiction|character|plot|lyrics|song|screenplay|narrative|haiku)\b`)},
			{"visual design", regexp.MustCompile(`\b(?:logo|illustration|artwork|drawing|color palette|poster|visual)\b`)},
			{"content creation", regexp.MustCompile(`\b(?:slogan|tagline|ad copy|blog post|caption|video script|podcast)\b`)},
		},
	},
	{
		category: CategoryBusiness,
		domains: []domainRule{
			{"business strategy", regexp.MustCompile(`\b(?:business|startup|market|revenue|pricing|investors?|pitch|competitors?|okrs?|swot|roi)\b`)},
			{"marketing", regexp.MustCompile(`\b(?:marketing|campaign|customers?|sales|brand|seo|funnel|newsletter)\b`)},
			{"operations", regexp.MustCompile(`\b(?:project management|kpis?|budget|stakeholders?|roadmap|hiring|onboarding)\b`)},
		},
	},
	{
		category: CategoryAcademic,
		domains: []domainRule{
			{"academic research", regexp.MustCompile(`\b(?:research|thesis|dissertation|literature review|citations?|hypothesis|experiment|scientific|peer review)\b`)},
			{"education", regexp.MustCompile(`\b(?:essay|homework|lecture|exam|course|syllabus|study guide|students?)\b`)},
		},
	},
	{
		category: CategoryPersonal,
		domains: []domainRule{
			{"productivity", regexp.MustCompile(`\b(?:habits?|productivity|routine|schedule|time management|goals?|to-do)\b`)},
			{"health and fitness", regexp.MustCompile(`\b(?:fitness|workout|diet|meal plan|sleep|meditation|running)\b`)},
			{"career", regexp.MustCompile(`\b(?:career|resume|cv|cover letter|job interview|promotion)\b`)},
			{"lifestyle", regexp.MustCompile(`\b(?:travel|trip|vacation|wedding|birthday|relationship|hobby)\b`)},
		},
	},
}
