// Package genconfig turns the declarative base + local-override configuration
// documents into the flat, upsert-ready artifact consumed by the reconciler.
package genconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/bkyoung/llmsync/internal/domain"
)

// Logger is the structured logging dependency of the generator.
type Logger interface {
	Debug(message string, fields map[string]any)
	Info(message string, fields map[string]any)
	Warn(message string, fields map[string]any)
	Error(message string, fields map[string]any)
}

// Generator resolves configuration documents.
type Generator struct {
	logger Logger
}

// NewGenerator creates a generator with the given logger.
func NewGenerator(logger Logger) *Generator {
	return &Generator{logger: logger}
}

// Generate loads the base document, merges the co-located local override when
// present, resolves $extend and $base directives, and expands providers into
// the four flat artifacts. An unreadable base document is the only fatal
// condition; per-provider problems are logged and skipped.
func (g *Generator) Generate(configPath string) (domain.ResolvedConfig, error) {
	merged, base, err := g.loadWithLocal(configPath)
	if err != nil {
		return domain.ResolvedConfig{}, err
	}

	providerBlocks, _ := merged["providers"].(map[string]any)
	providers := g.ResolveExtensions(providerBlocks)

	fallbacks := ResolveFallbackBaseRefs(
		toFallbackRules(merged["fallbacks"]),
		toFallbackRules(base["fallbacks"]),
	)

	return domain.ResolvedConfig{
		Credentials: ResolveCredentials(providers),
		Models:      ResolveModels(providers),
		Aliases:     toAliases(merged["aliases"]),
		Fallbacks:   fallbacks,
	}, nil
}

// GenerateToFile writes the resolved artifact as indented JSON.
func (g *Generator) GenerateToFile(configPath, outputPath string) error {
	resolved, err := g.Generate(configPath)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(resolved, "", "    ")
	if err != nil {
		return fmt.Errorf("encode resolved config: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		return fmt.Errorf("write resolved config: %w", err)
	}

	g.logger.Info("resolved config written", map[string]any{"path": outputPath})
	return nil
}

// loadWithLocal loads the base document and merges the local override from
// the same directory when it exists. Returns the merged and plain base
// documents; the latter is needed to resolve $base references.
func (g *Generator) loadWithLocal(configPath string) (merged, base domain.Document, err error) {
	base, err = loadJSON(configPath)
	if err != nil {
		return nil, nil, err
	}
	merged = base

	localPath := localOverridePath(configPath)
	if _, statErr := os.Stat(localPath); statErr == nil {
		g.logger.Info("found local config", map[string]any{"path": localPath})
		local, loadErr := loadJSON(localPath)
		if loadErr != nil {
			return nil, nil, loadErr
		}
		merged = Merge(base, local)
	}

	return merged, base, nil
}

// localOverridePath maps config.json to config.local.json in the same
// directory.
func localOverridePath(configPath string) string {
	if strings.HasSuffix(configPath, ".json") {
		return strings.TrimSuffix(configPath, ".json") + ".local.json"
	}
	return configPath + ".local"
}

func loadJSON(path string) (domain.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var doc domain.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return doc, nil
}

// toFallbackRules converts the untyped fallbacks list into typed rules.
// Malformed entries are dropped silently; the document schema only promises
// single-key maps of string lists.
func toFallbackRules(value any) []domain.FallbackRule {
	entries, _ := value.([]any)
	rules := make([]domain.FallbackRule, 0, len(entries))
	for _, entry := range entries {
		block, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		rule := make(domain.FallbackRule, len(block))
		for source, targets := range block {
			list, _ := stringSlice(targets)
			rule[source] = list
		}
		rules = append(rules, rule)
	}
	return rules
}

// toAliases converts the untyped aliases map into a string map.
func toAliases(value any) map[string]string {
	block, _ := value.(map[string]any)
	aliases := make(map[string]string, len(block))
	for alias, target := range block {
		if s, ok := target.(string); ok {
			aliases[alias] = s
		}
	}
	return aliases
}
