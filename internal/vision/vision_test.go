package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pehance/pehance/internal/llm"
)

func pngBase64(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// webpBase64 builds an extended (VP8X) WebP header declaring a w x h canvas.
func webpBase64(w, h int) string {
	le24 := func(v int) []byte { return []byte{byte(v), byte(v >> 8), byte(v >> 16)} }
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	buf.Write([]byte{22, 0, 0, 0})
	buf.WriteString("WEBPVP8X")
	buf.Write([]byte{10, 0, 0, 0})
	buf.Write([]byte{0, 0, 0, 0})
	buf.Write(le24(w - 1))
	buf.Write(le24(h - 1))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestDecode_WebP(t *testing.T) {
	img, err := Decode(webpBase64(640, 480))
	require.NoError(t, err)
	assert.Equal(t, "image/webp", img.MIMEType)
	assert.Equal(t, 640, img.Width)
	assert.Equal(t, 480, img.Height)
}

func TestDecode(t *testing.T) {
	raw := pngBase64(t, 3, 2)

	for name, input := range map[string]string{
		"bare":     raw,
		"data url": "data:image/png;base64," + raw,
		"wrapped":  raw[:10] + "\n" + raw[10:],
	} {
		t.Run(name, func(t *testing.T) {
			img, err := Decode(input)
			require.NoError(t, err)
			assert.Equal(t, "image/png", img.MIMEType)
			assert.Equal(t, 3, img.Width)
			assert.Equal(t, 2, img.Height)
			assert.Equal(t, llm.Image{MIMEType: "image/png", Data: img.Data}, img.LLMImage())
		})
	}
}

func TestDecode_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"empty", "  ", ErrNoImage},
		{"empty data url", "data:image/png;base64,", ErrNoImage},
		{"not base64", "%%%not-base64%%%", ErrInvalidImage},
		{"not an image", base64.StdEncoding.EncodeToString([]byte("hello, plain text")), ErrInvalidImage},
		{"too large", strings.Repeat("A", 14*1024*1024), ErrTooLarge},
		{"too wide", pngBase64(t, MaxDimension+1, 1), ErrDimensions},
		{"webp too large", webpBase64(5000, 5000), ErrDimensions},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.input)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

type visionClient struct {
	content string
	err     error
	got     []llm.Message
	model   string
}

func (c *visionClient) Generate(_ context.Context, msgs []llm.Message, cfg *llm.GenerationConfig) (*llm.GenerationResult, error) {
	c.got, c.model = msgs, cfg.Model
	if c.err != nil {
		return nil, c.err
	}
	return &llm.GenerationResult{Content: c.content, Model: cfg.Model}, nil
}

type visionSelector struct{ err error }

func (s visionSelector) Select(_ context.Context, task string, _ float64, _ bool) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return task + "-model", nil
}

func TestAnalyze(t *testing.T) {
	img, err := Decode(pngBase64(t, 4, 4))
	require.NoError(t, err)

	client := &visionClient{content: "A login form.\n**Extracted text:**\nUsername\nPassword\n## Insights\nBuild a form"}
	res, err := NewAnalyzer(client, visionSelector{}, nil).Analyze(context.Background(), img, TextExtraction)
	require.NoError(t, err)

	assert.Equal(t, llm.TaskVision+"-model", client.model)
	require.Len(t, client.got, 2)
	assert.Contains(t, client.got[0].Content, "Extract and transcribe")
	require.Len(t, client.got[1].Images, 1)
	assert.Equal(t, "image/png", client.got[1].Images[0].MIMEType)

	assert.Equal(t, "Username\nPassword", res.ExtractedText)
	assert.Equal(t, "vision_model", res.Details.ProcessingMethod)
	assert.True(t, res.Details.SupportsVision)
	assert.Equal(t, 4, res.Details.Width)
	assert.NotEmpty(t, res.Suggestions)
}

func TestAnalyze_NoVisionModel(t *testing.T) {
	img, err := Decode(pngBase64(t, 2, 2))
	require.NoError(t, err)

	client := &visionClient{}
	res, err := NewAnalyzer(client, visionSelector{err: llm.ErrNoModel}, nil).Analyze(context.Background(), img, "")
	require.NoError(t, err)

	assert.Equal(t, "metadata_only", res.Details.ProcessingMethod)
	assert.Equal(t, Comprehensive, res.Details.AnalysisType)
	assert.Contains(t, res.Description, "2x2 pixels")
	assert.Nil(t, client.got)
}

func TestAnalyze_UpstreamErrorPropagates(t *testing.T) {
	img, err := Decode(pngBase64(t, 2, 2))
	require.NoError(t, err)

	client := &visionClient{err: &llm.UpstreamError{Kind: llm.KindRateLimited, Retryable: true, Err: errors.New("slow down")}}
	_, err = NewAnalyzer(client, visionSelector{}, nil).Analyze(context.Background(), img, QuickDescription)

	ue, ok := llm.AsUpstreamError(err)
	require.True(t, ok)
	assert.Equal(t, llm.KindRateLimited, ue.Kind)
}

func TestParseAnalysisType(t *testing.T) {
	a, err := ParseAnalysisType("")
	require.NoError(t, err)
	assert.Equal(t, Comprehensive, a)

	a, err = ParseAnalysisType("TEXT_EXTRACTION")
	require.NoError(t, err)
	assert.Equal(t, TextExtraction, a)

	_, err = ParseAnalysisType("ocr")
	assert.ErrorIs(t, err, ErrUnknownAnalysis)
}

func TestExtractText(t *testing.T) {
	assert.Equal(t, "", ExtractText("Just a photo of a cat."))
	assert.Equal(t, "STOP", ExtractText("The sign's text reads: STOP"))
	assert.Equal(t, "line one\nline two", ExtractText("4. Extracted text:\nline one\n\nline two\n**Next**\nignored"))
	assert.Equal(t, "hello world", ExtractText("İİİİ Extracted text: hello world"))
	assert.Equal(t, "Grüße", ExtractText("ÄÖÜ TEXT SAYS: Grüße"))
}
