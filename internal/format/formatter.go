// In file: internal/format/formatter.go
package format

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"go.uber.org/zap"

	"github.com/pehance/pehance/internal/llm"
)

var (
	ErrEmptyContent  = errors.New("content must not be empty")
	ErrUnknownFormat = errors.New("unknown format")
)

var (
	blankRuns     = regexp.MustCompile(`\n{3,}`)
	spaceRuns     = regexp.MustCompile(`[ \t]+`)
	trailingSpace = regexp.MustCompile(`(?m)[ \t]+$`)
	bulletGlyphs  = regexp.MustCompile(`(?m)^([ \t]*)[•◦▪]\s*`)
	headingNoGap  = regexp.MustCompile(`(?m)([^\n])\n(#{1,6}\s)`)
)

// Selector picks the model for the formatting task.
type Selector interface {
	Select(ctx context.Context, task string, score float64, preferSpeed bool) (string, error)
}

// Result is a formatted document plus what was found in it.
type Result struct {
	FormattedContent string         `json:"formatted_content"`
	DetectedFormat   Format         `json:"detected_format"`
	Metadata         map[string]any `json:"metadata"`
	CodeBlocks       []CodeBlock    `json:"code_blocks"`
}

// Formatter renders content locally and can ask a model to restructure it
// first. client and selector may be nil, which disables quality passes.
type Formatter struct {
	client   llm.LLMClient
	selector Selector
	md       goldmark.Markdown
	policy   *bluemonday.Policy
	logger   *zap.Logger
}

func NewFormatter(client llm.LLMClient, selector Selector, logger *zap.Logger) *Formatter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Formatter{
		client:   client,
		selector: selector,
		md:       goldmark.New(goldmark.WithExtensions(extension.GFM)),
		policy:   bluemonday.UGCPolicy(),
		logger:   logger,
	}
}

// Format renders content as target, auto-detecting when target is AutoDetect.
// A failed quality pass is not an error: the local rendering is returned with
// metadata.fallback set.
func (f *Formatter) Format(ctx context.Context, content string, target Format, enhanceQuality bool) (*Result, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	if target == "" || target == AutoDetect {
		target = Detect(content).Format
	}

	meta := map[string]any{"format_type": string(target)}
	if enhanceQuality && target != PlainText {
		improved, model, err := f.improve(ctx, content, target)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			f.logger.Warn("formatting quality pass failed, using local rendering", zap.String("format", string(target)), zap.Error(err))
			meta["fallback"] = true
			meta["error"] = err.Error()
		} else {
			content = improved
			meta["enhanced"] = true
			meta["model_used"] = model
		}
	}

	res := &Result{DetectedFormat: target, Metadata: meta}
	switch target {
	case PlainText:
		res.FormattedContent = Clean(content)
		meta["cleaned"] = true
	case Markdown:
		res.FormattedContent = NormalizeMarkdown(content)
	case RichText:
		html, err := f.RenderHTML(content)
		if err != nil {
			return nil, err
		}
		res.FormattedContent = html
		meta["raw_markdown"] = content
	case CodeBlocks:
		res.FormattedContent = NormalizeMarkdown(content)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, target)
	}

	res.CodeBlocks = ExtractCodeBlocks(res.sourceFor(content))
	if target == CodeBlocks {
		meta["code_block_count"] = len(res.CodeBlocks)
		meta["languages"] = languages(res.CodeBlocks)
	}
	return res, nil
}

// sourceFor returns the markdown the code blocks should be read from. For
// rich text that is the input, not the rendered HTML.
func (r *Result) sourceFor(input string) string {
	if r.DetectedFormat == RichText {
		return input
	}
	return r.FormattedContent
}

// RenderHTML converts markdown to sanitised HTML.
func (f *Formatter) RenderHTML(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := f.md.Convert([]byte(NormalizeMarkdown(markdown)), &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return strings.TrimSpace(f.policy.Sanitize(buf.String())), nil
}

func (f *Formatter) improve(ctx context.Context, content string, target Format) (string, string, error) {
	if f.client == nil || f.selector == nil {
		return "", "", errors.New("no formatting model configured")
	}
	model, err := f.selector.Select(ctx, llm.TaskFormatting, 0.6, true)
	if err != nil {
		return "", "", err
	}
	res, err := f.client.Generate(ctx, llm.Conversation(qualityInstructions[target], content), &llm.GenerationConfig{
		Model:       model,
		MaxTokens:   2048,
		Temperature: llm.Float32(0.2),
	})
	if err != nil {
		return "", model, err
	}
	out := strings.TrimSpace(res.Content)
	if out == "" {
		return "", model, errors.New("formatting model returned empty content")
	}
	return out, model, nil
}

var qualityInstructions = map[Format]string{
	Markdown: `Restructure the content as clean markdown: clear heading hierarchy, short paragraphs,
bullet or numbered lists where they fit. Keep the meaning unchanged. Output only the markdown.`,
	RichText: `Restructure the content for rich text display, written as markdown: headings, bold for
key points, lists for enumerations, a short summary when the content is long. Keep the meaning
unchanged. Output only the markdown.`,
	CodeBlocks: `Put every piece of code in a fenced block tagged with its language and keep prose
outside the fences. Do not change the code. Output only the result.`,
}

// Clean collapses runs of blank lines and horizontal whitespace.
func Clean(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = blankRuns.ReplaceAllString(content, "\n\n")
	content = spaceRuns.ReplaceAllString(content, " ")
	content = trailingSpace.ReplaceAllString(content, "")
	return strings.TrimSpace(content)
}

// NormalizeMarkdown tidies whitespace, turns bullet glyphs into list markers
// and puts a blank line before headings. Fenced code is left untouched.
func NormalizeMarkdown(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")

	var out strings.Builder
	last := 0
	for _, m := range fencedBlock.FindAllStringIndex(content, -1) {
		out.WriteString(normalizeProse(content[last:m[0]]))
		out.WriteString(content[m[0]:m[1]])
		last = m[1]
	}
	out.WriteString(normalizeProse(content[last:]))
	return strings.TrimSpace(out.String())
}

func normalizeProse(s string) string {
	s = trailingSpace.ReplaceAllString(s, "")
	s = bulletGlyphs.ReplaceAllString(s, "$1- ")
	s = headingNoGap.ReplaceAllString(s, "$1\n\n$2")
	return blankRuns.ReplaceAllString(s, "\n\n")
}
