// In file: internal/vision/analyzer.go
package vision

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/pehance/pehance/internal/llm"
)

// AnalysisType selects the instructions sent with the image.
type AnalysisType string

const (
	Comprehensive    AnalysisType = "comprehensive"
	TextExtraction   AnalysisType = "text_extraction"
	QuickDescription AnalysisType = "quick_description"
)

var ErrUnknownAnalysis = errors.New("analysis_type must be comprehensive, text_extraction or quick_description")

// ParseAnalysisType validates t. Empty means Comprehensive.
func ParseAnalysisType(t string) (AnalysisType, error) {
	switch a := AnalysisType(strings.ToLower(strings.TrimSpace(t))); a {
	case "":
		return Comprehensive, nil
	case Comprehensive, TextExtraction, QuickDescription:
		return a, nil
	default:
		return "", fmt.Errorf("%w: got %q", ErrUnknownAnalysis, t)
	}
}

var instructions = map[AnalysisType]string{
	Comprehensive: `Analyze this image and provide:
1. Visual description: objects, people, text, colors, composition, style.
2. Content analysis: the main subject, and whether it is a screenshot, diagram, photo, artwork or document.
3. Context: the domain it relates to and what the user may want to do with it.
4. Extracted text: if there is readable text, list it under a line "Extracted text:".
5. Actionable insights: tasks or prompts this image could support.`,
	TextExtraction: `Extract and transcribe all readable text in this image under a line "Extracted text:",
keeping its structure. Then say what kind of text it is (code, documentation, UI, handwriting,
print) and whether parts are unclear or cut off. If there is no text, describe the visual content.`,
	QuickDescription: `Give a concise, informative description of this image and how it could inform a prompt.`,
}

const visionPreamble = "You are an image analysis specialist. Convert visual information into accurate, actionable text for prompt enhancement.\n\n"

var textMarker = regexp.MustCompile(`(?i)extracted text:|text content:|readable text:|text reads:|text says:|contains the text:`)

// Details describes how an analysis was produced.
type Details struct {
	ModelUsed        string       `json:"model_used,omitempty"`
	AnalysisType     AnalysisType `json:"analysis_type"`
	SupportsVision   bool         `json:"supports_vision"`
	ProcessingMethod string       `json:"processing_method"`
	MIMEType         string       `json:"mime_type"`
	Width            int          `json:"width,omitempty"`
	Height           int          `json:"height,omitempty"`
	SizeBytes        int          `json:"size_bytes"`
}

// Analysis is the outcome of Analyze.
type Analysis struct {
	Description   string   `json:"description"`
	ExtractedText string   `json:"extracted_text,omitempty"`
	Details       Details  `json:"analysis"`
	Suggestions   []string `json:"suggestions"`
}

// Selector picks the model for the vision task.
type Selector interface {
	Select(ctx context.Context, task string, score float64, preferSpeed bool) (string, error)
}

type Analyzer struct {
	client   llm.LLMClient
	selector Selector
	logger   *zap.Logger
}

func NewAnalyzer(client llm.LLMClient, selector Selector, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{client: client, selector: selector, logger: logger}
}

// Analyze describes img. When no vision model is configured it returns a
// metadata-only analysis asking the user to describe the image; upstream
// failures are returned to the caller.
func (a *Analyzer) Analyze(ctx context.Context, img *Image, analysisType AnalysisType) (*Analysis, error) {
	if analysisType == "" {
		analysisType = Comprehensive
	}
	details := Details{
		AnalysisType: analysisType,
		MIMEType:     img.MIMEType,
		Width:        img.Width,
		Height:       img.Height,
		SizeBytes:    len(img.Data),
	}

	model, err := a.selector.Select(ctx, llm.TaskVision, 0.5, analysisType == QuickDescription)
	if errors.Is(err, llm.ErrNoModel) {
		a.logger.Warn("no vision model configured, returning metadata only")
		details.ProcessingMethod = "metadata_only"
		return &Analysis{
			Description: metadataDescription(img),
			Details:     details,
			Suggestions: []string{"Describe what the image shows and what you want to do with it"},
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select vision model: %w", err)
	}

	res, err := a.client.Generate(ctx, llm.Conversation(visionPreamble+instructions[analysisType], "Analyze the attached image.", img.LLMImage()), &llm.GenerationConfig{
		Model:       model,
		MaxTokens:   1024,
		Temperature: llm.Float32(0.2),
	})
	if err != nil {
		return nil, err
	}
	description := strings.TrimSpace(res.Content)
	if description == "" {
		return nil, &llm.UpstreamError{Model: model, Kind: llm.KindBadResponse, Err: errors.New("vision model returned empty content")}
	}

	details.ModelUsed = model
	details.SupportsVision = true
	details.ProcessingMethod = "vision_model"
	extracted := ExtractText(description)
	return &Analysis{
		Description:   description,
		ExtractedText: extracted,
		Details:       details,
		Suggestions:   suggestionsFor(analysisType, extracted != ""),
	}, nil
}

// ExtractText returns the lines that follow a text marker in an analysis,
// stopping at the next heading.
func ExtractText(analysis string) string {
	var (
		parts     []string
		capturing bool
	)
	for _, line := range strings.Split(analysis, "\n") {
		trimmed := strings.TrimSpace(line)
		if loc := textMarker.FindStringIndex(trimmed); loc != nil {
			capturing = true
			if rest := strings.Trim(trimmed[loc[1]:], " *\t"); rest != "" {
				parts = append(parts, rest)
			}
			continue
		}
		if !capturing || trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "**") {
			break
		}
		parts = append(parts, trimmed)
	}
	return strings.Join(parts, "\n")
}

func suggestionsFor(t AnalysisType, hasText bool) []string {
	var s []string
	switch t {
	case TextExtraction:
		s = append(s, "Paste the extracted text into a prompt to summarize, translate or fix it")
	case QuickDescription:
		s = append(s, "Run a comprehensive analysis for more detail")
	default:
		s = append(s, "Use the description as context for a detailed prompt")
	}
	if hasText {
		s = append(s, "Check the extracted text for transcription errors before reusing it")
	}
	return append(s, "Tell Pehance what you want to achieve with this image")
}

func metadataDescription(img *Image) string {
	dims := "unknown dimensions"
	if img.Width > 0 {
		dims = fmt.Sprintf("%dx%d pixels", img.Width, img.Height)
	}
	return fmt.Sprintf("An image was uploaded (%s, %s) but no vision model is available. "+
		"Describe what it shows and what you want to do with it, and Pehance will build the prompt from that.", img.MIMEType, dims)
}
