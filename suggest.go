package nativejinja

import (
	"fmt"
	"sort"

	"github.com/sahilm/fuzzy"
)

// suggestName produces a " (did you mean x?)" suffix for unknown
// filter, test and function errors, or "" when nothing in the registry
// resembles the requested name.
func suggestName(name string, candidates []string) string {
	if name == "" || len(candidates) == 0 {
		return ""
	}
	sort.Strings(candidates)

	matches := fuzzy.Find(name, candidates)
	if len(matches) > 0 {
		return fmt.Sprintf(" (did you mean %s?)", matches[0].Str)
	}

	// A trailing typo hides the registered name as a subsequence of
	// the typed one instead, so probe the other direction too.
	best := ""
	bestScore := 0
	for _, cand := range candidates {
		if m := fuzzy.Find(cand, []string{name}); len(m) > 0 && m[0].Score > bestScore {
			best, bestScore = cand, m[0].Score
		}
	}
	if best != "" {
		return fmt.Sprintf(" (did you mean %s?)", best)
	}
	return ""
}
