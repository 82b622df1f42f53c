package samples

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed samples.yaml
var defaultCatalog []byte

type Catalog struct {
	Questions []string `yaml:"questions" json:"questions"`
}

// Default returns the built-in catalog.
func Default() Catalog {
	catalog, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("embedded samples.yaml: %v", err))
	}
	return catalog
}

// Load reads a catalog from path, or returns the built-in one when path is empty.
func Load(path string) (Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Catalog{}, fmt.Errorf("read samples file %q: %w", path, err)
	}
	catalog, err := Parse(data)
	if err != nil {
		return Catalog{}, fmt.Errorf("samples file %q: %w", path, err)
	}
	return catalog, nil
}

// Parse decodes YAML, dropping blank and duplicate questions.
func Parse(data []byte) (Catalog, error) {
	var raw Catalog
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Catalog{}, fmt.Errorf("unmarshal samples: %w", err)
	}

	seen := make(map[string]struct{}, len(raw.Questions))
	catalog := Catalog{Questions: make([]string, 0, len(raw.Questions))}
	for _, question := range raw.Questions {
		question = strings.TrimSpace(question)
		if question == "" {
			continue
		}
		if _, ok := seen[question]; ok {
			continue
		}
		seen[question] = struct{}{}
		catalog.Questions = append(catalog.Questions, question)
	}
	if len(catalog.Questions) == 0 {
		return Catalog{}, errors.New("at least one sample question is required")
	}
	return catalog, nil
}
