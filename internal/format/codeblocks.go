// In file: internal/format/codeblocks.go
package format

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	fencedBlock = regexp.MustCompile("(?s)```([\\w+#.-]+)?[ \\t]*\\n?(.*?)```")
	inlineCode  = regexp.MustCompile("`([^`\\n]+)`")
)

// CodeBlock is a fenced or inline code span. Positions are byte offsets into
// the original content.
type CodeBlock struct {
	ID       string `json:"id"`
	Language string `json:"language"`
	Code     string `json:"code"`
	Inline   bool   `json:"inline,omitempty"`
	StartPos int    `json:"start_pos"`
	EndPos   int    `json:"end_pos"`
}

// ExtractCodeBlocks returns fenced blocks first, then inline spans that lie
// outside any fence.
func ExtractCodeBlocks(content string) []CodeBlock {
	var blocks []CodeBlock
	fences := fencedBlock.FindAllStringSubmatchIndex(content, -1)
	for i, m := range fences {
		lang := "text"
		if m[2] >= 0 {
			lang = strings.ToLower(content[m[2]:m[3]])
		}
		blocks = append(blocks, CodeBlock{
			ID:       fmt.Sprintf("code-block-%d", i),
			Language: lang,
			Code:     strings.TrimSpace(content[m[4]:m[5]]),
			StartPos: m[0],
			EndPos:   m[1],
		})
	}

	n := 0
	for _, m := range inlineCode.FindAllStringSubmatchIndex(content, -1) {
		if insideAny(m[0], fences) {
			continue
		}
		blocks = append(blocks, CodeBlock{
			ID:       fmt.Sprintf("inline-code-%d", n),
			Language: "text",
			Code:     content[m[2]:m[3]],
			Inline:   true,
			StartPos: m[0],
			EndPos:   m[1],
		})
		n++
	}
	return blocks
}

func insideAny(pos int, spans [][]int) bool {
	for _, s := range spans {
		if pos >= s[0] && pos < s[1] {
			return true
		}
	}
	return false
}

// languages lists distinct fenced block languages in order of appearance.
func languages(blocks []CodeBlock) []string {
	seen := make(map[string]bool)
	var out []string
	for _, b := range blocks {
		if b.Inline || seen[b.Language] {
			continue
		}
		seen[b.Language] = true
		out = append(out, b.Language)
	}
	return out
}
