package metacache

import (
	"context"
	"sort"
	"strings"
)

// KeywordsForStack collects the trained trigger keywords for every distinct
// LoRA in the stack and returns them as a comma-separated string. Metadata
// is synchronized (without force) before keywords are read, so records are
// never trusted stale.
//
// Duplicate names contribute once; merge weights are irrelevant here. Blank
// keywords are dropped and surrounding whitespace is stripped. Artifacts
// that cannot be resolved or read are skipped with a warning: keyword
// enrichment must never block a load.
func (m *manager) KeywordsForStack(ctx context.Context, stack LoraStack) (string, error) {
	if len(stack) == 0 {
		return "", nil
	}

	seen := make(map[string]bool, len(stack))
	words := make(map[string]bool)

	for _, ref := range stack {
		if ref.Name == "" || seen[ref.Name] {
			continue
		}
		seen[ref.Name] = true

		path, err := m.resolver.Resolve(ref.Name)
		if err != nil {
			if m.logger != nil {
				m.logger.Warn("skipping unresolvable lora", "name", ref.Name, "error", err)
			}
			continue
		}

		rec, err := m.Synchronize(ctx, path)
		if err != nil {
			if m.logger != nil {
				m.logger.Warn("skipping unreadable lora", "name", ref.Name, "error", err)
			}
			continue
		}

		for _, w := range rec.TrainedWords {
			w = strings.TrimSpace(w)
			if w != "" {
				words[w] = true
			}
		}
	}

	if len(words) == 0 {
		return "", nil
	}

	// Set semantics: order is not guaranteed by the contract, but sorted
	// output keeps results stable for identical stacks.
	out := make([]string, 0, len(words))
	for w := range words {
		out = append(out, w)
	}
	sort.Strings(out)

	return strings.Join(out, ", "), nil
}

// KeywordsForLora is the single-reference convenience form of
// KeywordsForStack.
func (m *manager) KeywordsForLora(ctx context.Context, ref LoraRef) (string, error) {
	return m.KeywordsForStack(ctx, LoraStack{ref})
}
