// In file: internal/format/detect.go

// Package format detects the shape of generated content and renders it as
// plain text, markdown, sanitised HTML or code blocks.
package format

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

// Format is an output format name as used on the wire.
type Format string

const (
	AutoDetect Format = "auto_detect"
	PlainText  Format = "plain_text"
	Markdown   Format = "markdown"
	RichText   Format = "rich_text"
	CodeBlocks Format = "code_blocks"
)

// ParseFormat validates a format name. Empty means AutoDetect.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return AutoDetect, nil
	case AutoDetect, PlainText, Markdown, RichText, CodeBlocks:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

var (
	codeIndicator     = regexp.MustCompile("```|`[^`]+`|function|class|def |import |from |#include|<html|<div|<script")
	markdownIndicator = regexp.MustCompile(`(?m)^#+\s|^\*\s|\*\*[^*]+\*\*|^\d+\.\s|^-\s`)
	richIndicator     = regexp.MustCompile(`<[^>]+>|&[a-z]+;`)
	tutorialWords     = []string{"step", "tutorial", "guide", "how to"}
)

const longContent = 1000

// Detection is the outcome of Detect.
type Detection struct {
	Format      Format   `json:"detected_format"`
	Confidence  float64  `json:"confidence"`
	Suggestions []string `json:"suggestions"`
}

var suggestions = map[Format][]string{
	CodeBlocks: {
		"Render code with syntax highlighting",
		"Offer a copy button for each code block",
		"Keep explanations outside the fenced blocks",
	},
	RichText: {
		"Render as HTML with headings and emphasis",
		"Break long passages into short paragraphs",
	},
	Markdown: {
		"Use headings to separate sections",
		"Prefer bullet lists for enumerations",
	},
	PlainText: {
		"Keep formatting minimal",
		"Add structure only if the content grows",
	},
}

// Detect picks the most fitting format for content.
func Detect(content string) Detection {
	code := len(codeIndicator.FindAllStringIndex(content, -1))
	md := len(markdownIndicator.FindAllStringIndex(content, -1))
	rich := len(richIndicator.FindAllStringIndex(content, -1))

	var (
		f          Format
		confidence float64
	)
	switch {
	case code >= 3:
		f, confidence = CodeBlocks, scaled(code)
	case rich >= 2:
		f, confidence = RichText, scaled(rich+1)
	case md >= 3:
		f, confidence = Markdown, scaled(md)
	case len(content) > longContent && strings.Contains(content, "\n\n"):
		f, confidence = Markdown, 0.6
	case containsAny(strings.ToLower(content), tutorialWords):
		f, confidence = RichText, 0.55
	default:
		f, confidence = PlainText, 0.5
	}
	return Detection{Format: f, Confidence: confidence, Suggestions: suggestions[f]}
}

// scaled grows from 0.6 at three indicators up to 0.95.
func scaled(n int) float64 {
	return math.Round(math.Min(0.3+0.1*float64(n), 0.95)*100) / 100
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
