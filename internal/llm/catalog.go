// In file: internal/llm/catalog.go
package llm

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

var (
	//go:embed catalog/models.yaml
	defaultCatalogYAML []byte

	//go:embed catalog/catalog.schema.json
	catalogSchemaJSON []byte
)

// ModelInfo is the static, configured description of one upstream model.
type ModelInfo struct {
	Name                 string   `yaml:"name" json:"name"`
	Provider             string   `yaml:"provider" json:"provider"`
	Tier                 string   `yaml:"tier" json:"tier"`
	PerformanceTokensSec int      `yaml:"performance_tokens_sec" json:"performance_tokens_sec"`
	Features             []string `yaml:"features" json:"features"`
	Vision               bool     `yaml:"vision" json:"vision"`
}

// TaskPreference lists candidate models for a task, in order of preference.
type TaskPreference struct {
	Fast      []string `yaml:"fast"`
	Default   []string `yaml:"default"`
	Reasoning []string `yaml:"reasoning"`
}

// Catalog holds the configured models and per-task preferences.
type Catalog struct {
	Models []ModelInfo               `yaml:"models"`
	Tasks  map[string]TaskPreference `yaml:"tasks"`

	index map[string]ModelInfo
}

// DefaultCatalog returns the embedded catalog.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalogYAML)
}

// LoadCatalog reads a catalog file, falling back to the embedded default when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model catalog %s: %w", path, err)
	}
	return ParseCatalog(data)
}

// ParseCatalog validates YAML catalog data against the catalog schema and decodes it.
func ParseCatalog(data []byte) (*Catalog, error) {
	if err := validateCatalog(data); err != nil {
		return nil, err
	}

	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse model catalog: %w", err)
	}

	c.index = make(map[string]ModelInfo, len(c.Models))
	for _, m := range c.Models {
		if _, dup := c.index[m.Name]; dup {
			return nil, fmt.Errorf("model catalog: duplicate model %q", m.Name)
		}
		c.index[m.Name] = m
	}
	for task, pref := range c.Tasks {
		for _, list := range [][]string{pref.Fast, pref.Default, pref.Reasoning} {
			for _, name := range list {
				if _, ok := c.index[name]; !ok {
					return nil, fmt.Errorf("model catalog: task %q references unknown model %q", task, name)
				}
			}
		}
	}
	return &c, nil
}

// validateCatalog round-trips the YAML through JSON so the schema sees plain JSON values.
func validateCatalog(data []byte) error {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse model catalog: %w", err)
	}
	asJSON, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("model catalog is not JSON compatible: %w", err)
	}
	var doc any
	if err := json.Unmarshal(asJSON, &doc); err != nil {
		return fmt.Errorf("model catalog is not JSON compatible: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("catalog.schema.json", bytes.NewReader(catalogSchemaJSON)); err != nil {
		return fmt.Errorf("failed to load catalog schema: %w", err)
	}
	schema, err := compiler.Compile("catalog.schema.json")
	if err != nil {
		return fmt.Errorf("failed to compile catalog schema: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("invalid model catalog: %w", err)
	}
	return nil
}

// Model looks up a model by name.
func (c *Catalog) Model(name string) (ModelInfo, bool) {
	m, ok := c.index[name]
	return m, ok
}

// Names returns all model names, sorted.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.Models))
	for _, m := range c.Models {
		names = append(names, m.Name)
	}
	sort.Strings(names)
	return names
}
