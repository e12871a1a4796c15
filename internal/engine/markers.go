package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LogCategory names a family of log markers the diagnoser looks for.
type LogCategory string

const (
	CategoryOOM        LogCategory = "oom"
	CategoryDependency LogCategory = "dependency"
)

// MarkerCatalog holds the marker patterns for each log category. Matching is
// case-sensitive substring unless a category opts into ignoring case.
type MarkerCatalog struct {
	markers    map[LogCategory][]string
	ignoreCase map[LogCategory]bool
}

// markerFile is the YAML root structure.
type markerFile struct {
	Categories map[string][]string `yaml:"categories"`
	IgnoreCase []string            `yaml:"ignoreCase"`
}

// DefaultMarkers returns the built-in catalog.
func DefaultMarkers() *MarkerCatalog {
	return &MarkerCatalog{markers: map[LogCategory][]string{
		CategoryOOM:        {"OutOfMemoryError", "Kill process", "OOMKilled", "out of memory"},
		CategoryDependency: {"Connection refused", "Timeout", "ECONNREFUSED"},
	}, ignoreCase: map[LogCategory]bool{}}
}

// LoadMarkers reads a catalog from path, replacing default categories it names.
// An empty path or missing file yields the defaults.
func LoadMarkers(path string, logger *slog.Logger) (*MarkerCatalog, error) {
	catalog := DefaultMarkers()
	if path == "" {
		return catalog, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn("marker catalog not found, using defaults", slog.String("path", path))
			return catalog, nil
		}
		return nil, fmt.Errorf("read markers: %w", err)
	}
	var file markerFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse markers: %w", err)
	}
	for name, patterns := range file.Categories {
		cleaned := make([]string, 0, len(patterns))
		for _, p := range patterns {
			if p = strings.TrimSpace(p); p != "" {
				cleaned = append(cleaned, p)
			}
		}
		catalog.markers[LogCategory(strings.ToLower(name))] = cleaned
	}
	for _, name := range file.IgnoreCase {
		catalog.ignoreCase[LogCategory(strings.ToLower(strings.TrimSpace(name)))] = true
	}
	return catalog, nil
}

// Markers returns a copy of the patterns for category.
func (c *MarkerCatalog) Markers(category LogCategory) []string {
	return append([]string(nil), c.markers[category]...)
}

// IgnoresCase reports whether category matches regardless of case.
func (c *MarkerCatalog) IgnoresCase(category LogCategory) bool {
	return c.ignoreCase[category]
}

// Indicates reports whether text contains any marker of category.
func (c *MarkerCatalog) Indicates(text string, category LogCategory) bool {
	fold := c.ignoreCase[category]
	if fold {
		text = strings.ToLower(text)
	}
	for _, marker := range c.markers[category] {
		if fold {
			marker = strings.ToLower(marker)
		}
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}
