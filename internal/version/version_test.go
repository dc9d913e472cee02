package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateVersionedCacheKey(t *testing.T) {
	a := GenerateVersionedCacheKey("enhance", "single", "write a story")
	b := GenerateVersionedCacheKey("enhance", "multi", "write a story")
	c := GenerateVersionedCacheKey("enhance", "single", "write a story")

	assert.Equal(t, a, c)
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "enhance:v"+Tag()+":"))
	assert.NotEqual(t, GenerateVersionedCacheKey("enhance", "ab", "c"), GenerateVersionedCacheKey("enhance", "a", "bc"))
}

func TestVersionBumpChangesKey(t *testing.T) {
	before := GenerateVersionedCacheKey("enhance", "single", "hi")

	old := ComponentVersions.PromptTemplates
	ComponentVersions.PromptTemplates = old + "-next"
	t.Cleanup(func() { ComponentVersions.PromptTemplates = old })

	assert.NotEqual(t, before, GenerateVersionedCacheKey("enhance", "single", "hi"))
}
