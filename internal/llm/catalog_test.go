package llm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	c, err := DefaultCatalog()
	require.NoError(t, err)

	m, ok := c.Model("llama-3.1-8b-instant")
	require.True(t, ok)
	assert.Equal(t, ProviderGroq, m.Provider)
	assert.Equal(t, "ultra_fast", m.Tier)
	assert.Equal(t, 840, m.PerformanceTokensSec)

	for _, task := range []string{TaskBasicEnhancement, TaskSupportingContent, TaskMethodology, TaskEnhancement, TaskFormatting, TaskVision} {
		assert.Contains(t, c.Tasks, task)
	}
	for _, name := range c.Tasks[TaskVision].Default {
		info, _ := c.Model(name)
		assert.True(t, info.Vision, "vision task lists non-vision model %s", name)
	}
	assert.Len(t, c.Names(), len(c.Models))
}

func TestParseCatalog_SchemaViolations(t *testing.T) {
	tests := map[string]string{
		"missing tasks": `
models:
  - {name: a, provider: groq, tier: fast}
`,
		"unknown provider": `
models:
  - {name: a, provider: openrouter, tier: fast}
tasks: {}
`,
		"negative throughput": `
models:
  - {name: a, provider: groq, tier: fast, performance_tokens_sec: -1}
tasks: {}
`,
		"unknown field": `
models:
  - {name: a, provider: groq, tier: fast, price: 3}
tasks: {}
`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid model catalog")
		})
	}
}

func TestParseCatalog_ReferentialChecks(t *testing.T) {
	_, err := ParseCatalog([]byte(`
models:
  - {name: a, provider: groq, tier: fast}
tasks:
  enhancement: {default: [b]}
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown model "b"`)

	_, err = ParseCatalog([]byte(`
models:
  - {name: a, provider: groq, tier: fast}
  - {name: a, provider: gemini, tier: fast}
tasks: {}
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
models:
  - {name: only, provider: gemini, tier: balanced, vision: true}
tasks:
  vision: {default: [only]}
`), 0o600))

	c, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"only"}, c.Names())

	c, err = LoadCatalog("")
	require.NoError(t, err)
	assert.Greater(t, len(c.Models), 1)

	_, err = LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
