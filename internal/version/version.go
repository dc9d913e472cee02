// In file: internal/version/version.go

// Package version centralizes the versioning of the logic that shapes an
// enhancement. Every version string is part of the response cache key, so
// bumping one invalidates all entries produced by the old logic.
package version

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// ComponentVersions holds the version strings for the parts of the pipeline
// whose output ends up in a cached response.
// Manually increment a version here before you deploy a change to that component.
var ComponentVersions = struct {
	// PromptTemplates covers the wording of every enhancement template.
	PromptTemplates string

	// Classifier covers the rule table and score thresholds.
	Classifier string

	// Formatting covers markdown normalisation and HTML rendering.
	Formatting string
}{
	PromptTemplates: "3",
	Classifier:      "2",
	Formatting:      "1",
}

// Tag is the compact version string embedded in cache keys, e.g. "pt3_cl2_fm1".
func Tag() string {
	return fmt.Sprintf("pt%s_cl%s_fm%s",
		ComponentVersions.PromptTemplates,
		ComponentVersions.Classifier,
		ComponentVersions.Formatting,
	)
}

// GenerateVersionedCacheKey builds a version-aware cache key from the request
// parts that determine the response.
//
// Example output: "enhance:vpt3_cl2_fm1:a1b2c3d4..."
func GenerateVersionedCacheKey(prefix string, parts ...string) string {
	hasher := sha256.New()
	hasher.Write([]byte(strings.Join(parts, "\x00")))
	return fmt.Sprintf("%s:v%s:%s", prefix, Tag(), hex.EncodeToString(hasher.Sum(nil)))
}
