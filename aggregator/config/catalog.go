package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ModelSpec describes how one user-facing model id is served.
type ModelSpec struct {
	ID           string  `yaml:"id"`
	Provider     string  `yaml:"provider"`
	Upstream     string  `yaml:"upstream"`
	SystemPrompt string  `yaml:"system_prompt,omitempty"`
	Temperature  float64 `yaml:"temperature,omitempty"`
	MaxTokens    int     `yaml:"max_tokens,omitempty"`
}

type ModelCatalog struct {
	DefaultModel       string      `yaml:"default_model"`
	SystemPrompt       string      `yaml:"system_prompt"`
	KnowledgeCharLimit int         `yaml:"knowledge_char_limit"`
	Models             []ModelSpec `yaml:"models"`

	byID map[string]ModelSpec
}

func LoadModelCatalog(path string) (*ModelCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model catalog: %w", err)
	}
	return ParseModelCatalog(data)
}

func ParseModelCatalog(data []byte) (*ModelCatalog, error) {
	var cat ModelCatalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parse model catalog: %w", err)
	}
	if len(cat.Models) == 0 {
		return nil, fmt.Errorf("model catalog has no models")
	}
	cat.byID = make(map[string]ModelSpec, len(cat.Models))
	for _, m := range cat.Models {
		if m.ID == "" || m.Provider == "" {
			return nil, fmt.Errorf("model catalog entry %q: id and provider are required", m.ID)
		}
		m.Provider = strings.ToLower(m.Provider)
		if m.SystemPrompt == "" {
			m.SystemPrompt = cat.SystemPrompt
		}
		cat.byID[m.ID] = m
	}
	if cat.DefaultModel == "" {
		cat.DefaultModel = cat.Models[0].ID
	}
	if _, ok := cat.byID[cat.DefaultModel]; !ok {
		return nil, fmt.Errorf("default model %q is not in the catalog", cat.DefaultModel)
	}
	if cat.KnowledgeCharLimit == 0 {
		cat.KnowledgeCharLimit = 8000
	}
	return &cat, nil
}

// Resolve returns the spec for id, falling back to the default model for
// unknown or empty ids.
func (c *ModelCatalog) Resolve(id string) ModelSpec {
	if m, ok := c.byID[id]; ok {
		return m
	}
	return c.byID[c.DefaultModel]
}

func (c *ModelCatalog) IDs() []string {
	ids := make([]string, 0, len(c.Models))
	for _, m := range c.Models {
		ids = append(ids, m.ID)
	}
	return ids
}
