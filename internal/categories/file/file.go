// Package file loads categories from a YAML document:
//
//	categories:
//	  - id: 1
//	    name: Salary
//	    emoji: "💰"
//	    is_income: true
package file

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"fintrack/internal/core"
)

type document struct {
	Categories []core.Category `yaml:"categories"`
}

type Source struct {
	Path string
}

func (s Source) Categories(ctx context.Context) ([]core.Category, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read categories file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a categories document.
func Parse(data []byte) ([]core.Category, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode categories: %w", err)
	}

	seen := make(map[int64]bool, len(doc.Categories))
	for i, c := range doc.Categories {
		if c.ID <= 0 {
			return nil, fmt.Errorf("category %d: id must be positive", i)
		}
		if strings.TrimSpace(c.Name) == "" {
			return nil, fmt.Errorf("category %d: name is required", c.ID)
		}
		if seen[c.ID] {
			return nil, fmt.Errorf("category %d: duplicate id", c.ID)
		}
		seen[c.ID] = true
	}
	return doc.Categories, nil
}
