// In file: internal/guardrail/guardrail.go

// Package guardrail screens prompts before any upstream call is made.
package guardrail

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// blocklist maps a category to the words that trigger it.
var blocklist = map[string][]string{
	"cyber_abuse": {"hack", "hacking", "exploit", "bypass", "jailbreak", "malware", "ransomware"},
	"illegal":     {"illegal"},
	"harm":        {"harmful", "violence", "violent"},
}

// Verdict is the outcome of a safety check.
type Verdict struct {
	Flagged    bool     `json:"flagged"`
	Categories []string `json:"categories"`
	Terms      []string `json:"terms"`
	Reason     string   `json:"reason"`
}

// Guard is a keyword-based content check.
type Guard struct {
	patterns map[string]*regexp.Regexp
}

// New compiles the default blocklist.
func New() *Guard {
	return NewWithTerms(blocklist)
}

// NewWithTerms compiles a custom blocklist.
func NewWithTerms(terms map[string][]string) *Guard {
	g := &Guard{patterns: make(map[string]*regexp.Regexp, len(terms))}
	for category, words := range terms {
		quoted := make([]string, 0, len(words))
		for _, w := range words {
			quoted = append(quoted, regexp.QuoteMeta(strings.ToLower(w)))
		}
		g.patterns[category] = regexp.MustCompile(`\b(?:` + strings.Join(quoted, "|") + `)\b`)
	}
	return g
}

// Check flags the prompt if any blocklisted term appears as a whole word.
func (g *Guard) Check(prompt string) Verdict {
	lower := strings.ToLower(prompt)

	var v Verdict
	seen := make(map[string]bool)
	for category, p := range g.patterns {
		matches := p.FindAllString(lower, -1)
		if len(matches) == 0 {
			continue
		}
		v.Categories = append(v.Categories, category)
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				v.Terms = append(v.Terms, m)
			}
		}
	}
	if len(v.Categories) == 0 {
		return Verdict{}
	}

	sort.Strings(v.Categories)
	sort.Strings(v.Terms)
	v.Flagged = true
	v.Reason = fmt.Sprintf("prompt contains blocked terms: %s", strings.Join(v.Terms, ", "))
	return v
}
