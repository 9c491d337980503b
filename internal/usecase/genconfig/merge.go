package genconfig

import (
	"sort"

	"github.com/bkyoung/llmsync/internal/domain"
)

// baseToken is the placeholder a local override uses inside a fallback target
// list to splice in the base config's targets for the same source key. It is
// resolved at generation time and never persisted.
const baseToken = "$base"

// extendKey is the provider directive naming another provider to inherit
// from. Setting it to null/false/"" suppresses inheritance.
const extendKey = "$extend"

// Merge deep-merges two documents. For each key present in override, mapping
// values recurse; any other value, ordered sequences included, replaces the
// base value wholesale. Neither input is mutated.
func Merge(base, override domain.Document) domain.Document {
	result := make(domain.Document, len(base)+len(override))
	for key, value := range base {
		result[key] = value
	}
	for key, value := range override {
		baseMap, baseIsMap := result[key].(map[string]any)
		overrideMap, overrideIsMap := value.(map[string]any)
		if baseIsMap && overrideIsMap {
			result[key] = Merge(baseMap, overrideMap)
		} else {
			result[key] = value
		}
	}
	return result
}

// ResolveExtensions resolves $extend directives among named provider blocks.
//
// Providers without a directive are copied as-is (directive stripped).
// Extending providers deep-merge the named resolved provider as base with
// their own fields as override. Resolution iterates until a fixpoint so
// multi-hop chains resolve regardless of declaration order; a provider whose
// parent never resolves (unknown name or a cycle) is skipped with a logged
// error while the rest proceed.
func (g *Generator) ResolveExtensions(providers map[string]any) map[string]any {
	resolved := make(map[string]any, len(providers))
	pending := make(map[string]map[string]any)

	for name, value := range providers {
		block, ok := value.(map[string]any)
		if !ok {
			g.logger.Error("provider block is not an object, skipping",
				map[string]any{"provider": name})
			continue
		}
		if parent := extendTarget(block); parent == "" {
			resolved[name] = stripDirective(block)
		} else {
			pending[name] = block
		}
	}

	for len(pending) > 0 {
		progressed := false
		for _, name := range sortedNames(pending) {
			block := pending[name]
			parent := extendTarget(block)
			parentBlock, ok := resolved[parent].(map[string]any)
			if !ok {
				continue
			}
			resolved[name] = stripDirective(Merge(parentBlock, block))
			delete(pending, name)
			progressed = true
		}
		if !progressed {
			break
		}
	}

	for _, name := range sortedNames(pending) {
		g.logger.Error("provider extends an unresolved provider, skipping",
			map[string]any{"provider": name, "extends": extendTarget(pending[name])})
	}

	return resolved
}

// ResolveFallbackBaseRefs replaces $base tokens in each rule's target list by
// splicing in the base config's targets for the same source key, preserving
// position and without deduplicating. A source absent from the base config
// splices in nothing.
func ResolveFallbackBaseRefs(fallbacks, baseFallbacks []domain.FallbackRule) []domain.FallbackRule {
	baseLookup := make(map[string][]string)
	for _, rule := range baseFallbacks {
		for source, targets := range rule {
			baseLookup[source] = targets
		}
	}

	resolved := make([]domain.FallbackRule, 0, len(fallbacks))
	for _, rule := range fallbacks {
		resolvedRule := make(domain.FallbackRule, len(rule))
		for source, targets := range rule {
			resolvedRule[source] = spliceBaseRefs(targets, baseLookup[source])
		}
		resolved = append(resolved, resolvedRule)
	}
	return resolved
}

func spliceBaseRefs(targets, baseTargets []string) []string {
	spliced := make([]string, 0, len(targets))
	for _, target := range targets {
		if target == baseToken {
			spliced = append(spliced, baseTargets...)
		} else {
			spliced = append(spliced, target)
		}
	}
	return spliced
}

// extendTarget returns the parent name of a block, or "" when the directive
// is absent or explicitly falsy.
func extendTarget(block map[string]any) string {
	value, exists := block[extendKey]
	if !exists {
		return ""
	}
	name, _ := value.(string)
	return name
}

func stripDirective(block map[string]any) map[string]any {
	stripped := make(map[string]any, len(block))
	for key, value := range block {
		if key == extendKey {
			continue
		}
		stripped[key] = value
	}
	return stripped
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
